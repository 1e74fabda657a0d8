package actions

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/aggregator"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/params"
)

var buyTokenAddr = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")

type fixedSource struct {
	name  string
	quote aggregator.Quote
	err   error
}

func (f fixedSource) Name() string { return f.name }

func (f fixedSource) Quote(context.Context, aggregator.Request) (aggregator.Quote, error) {
	if f.err != nil {
		return aggregator.Quote{}, f.err
	}
	return f.quote, nil
}

func swapExtractor() params.Extractor {
	return params.NewStatic(map[string]any{
		"swap": swapParams{Amount: "100", FromToken: tokenAddr.Hex(), ToToken: buyTokenAddr.Hex()},
	})
}

func routedQuote(minOut int64, spender common.Address) aggregator.Quote {
	return aggregator.Quote{
		Source:          "lifi",
		Kind:            aggregator.KindRouted,
		Out:             big.NewInt(minOut + 1000),
		MinOut:          big.NewInt(minOut),
		To:              common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		Data:            common.FromHex("0x01"),
		ApprovalSpender: spender,
	}
}

func rfqQuote(minOut int64, spender common.Address) aggregator.Quote {
	return aggregator.Quote{
		Source:          "bebop",
		Kind:            aggregator.KindRFQ,
		Out:             big.NewInt(minOut + 500),
		MinOut:          big.NewInt(minOut),
		To:              common.HexToAddress("0x00000000000000000000000000000000000000f2"),
		Data:            common.FromHex("0x02"),
		ApprovalSpender: spender,
	}
}

func TestSwapPicksBestQuoteAndApprovesWhenShort(t *testing.T) {
	spender := common.HexToAddress("0x000000000000000000000000000000000000beef")
	backend := &stubBackend{
		t:        t,
		chainID:  1,
		decimals: 6,
		balance:  big.NewInt(1_000_000_000),
		// Allowance below the 100e6 input forces an approval first.
		allowance: big.NewInt(0),
	}
	deps := testDeps(t, backend, swapExtractor(), nil)
	deps.Router = NewRouter(
		fixedSource{name: "lifi", quote: routedQuote(990_000, spender)},
		fixedSource{name: "bebop", quote: rfqQuote(995_000, spender)},
	)

	res, err := SwapAction().Handler(context.Background(), deps, "swap 100 USDC for DAI")
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(backend.submitted) != 2 {
		t.Fatalf("submitted %d txs, want approval then swap", len(backend.submitted))
	}
	if backend.submitted[0].Kind != "approval" || backend.submitted[0].To != tokenAddr {
		t.Fatalf("first tx %+v, want approval on the sell token", backend.submitted[0])
	}
	// The better bebop RFQ quote settles.
	if backend.submitted[1].To != common.HexToAddress("0x00000000000000000000000000000000000000f2") {
		t.Fatalf("settled with %s, want bebop settlement contract", backend.submitted[1].To.Hex())
	}
	if !strings.Contains(res.Text, "bebop") {
		t.Fatalf("reply %q", res.Text)
	}
}

func TestSwapSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	spender := common.HexToAddress("0x000000000000000000000000000000000000beef")
	backend := &stubBackend{
		t:         t,
		chainID:   1,
		decimals:  6,
		balance:   big.NewInt(1_000_000_000),
		allowance: big.NewInt(1_000_000_000), // covers 100e6
	}
	deps := testDeps(t, backend, swapExtractor(), nil)
	deps.Router = NewRouter(fixedSource{name: "bebop", quote: rfqQuote(995_000, spender)})

	if _, err := SwapAction().Handler(context.Background(), deps, "swap 100 USDC for DAI"); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(backend.submitted) != 1 {
		t.Fatalf("submitted %d txs, want just the swap", len(backend.submitted))
	}
	if backend.submitted[0].Kind != "swap" {
		t.Fatalf("tx kind %s", backend.submitted[0].Kind)
	}
}

func TestSwapFallsBackWhenBestQuoteFails(t *testing.T) {
	backend := &stubBackend{
		t:         t,
		chainID:   1,
		decimals:  6,
		balance:   big.NewInt(1_000_000_000),
		allowance: big.NewInt(1_000_000_000),
		submitErr: map[int]error{0: agenterr.New(agenterr.CodeReverted, "maker rejected")},
	}
	deps := testDeps(t, backend, swapExtractor(), nil)
	deps.Router = NewRouter(
		fixedSource{name: "lifi", quote: routedQuote(990_000, common.Address{})},
		fixedSource{name: "bebop", quote: rfqQuote(995_000, common.Address{})},
	)

	res, err := SwapAction().Handler(context.Background(), deps, "swap 100 USDC for DAI")
	if err != nil {
		t.Fatalf("swap should fall back, got %v", err)
	}
	if len(backend.submitted) != 2 {
		t.Fatalf("submitted %d txs, want failed best then fallback", len(backend.submitted))
	}
	if !strings.Contains(res.Text, "lifi") {
		t.Fatalf("fallback reply %q", res.Text)
	}
}

func TestSwapNoRouteWhenAllSourcesFail(t *testing.T) {
	backend := &stubBackend{t: t, chainID: 1, decimals: 6, balance: big.NewInt(1_000_000_000)}
	deps := testDeps(t, backend, swapExtractor(), nil)
	deps.Router = NewRouter(
		fixedSource{name: "lifi", err: agenterr.New(agenterr.CodeNoRoute, "no route")},
		fixedSource{name: "bebop", err: agenterr.New(agenterr.CodeUnsupported, "pair not supported")},
	)

	_, err := SwapAction().Handler(context.Background(), deps, "swap 100 USDC for DAI")
	if !agenterr.IsCode(err, agenterr.CodeNoRoute) {
		t.Fatalf("expected no-route error, got %v", err)
	}
}

func TestBridgeRejectsSameChain(t *testing.T) {
	backend := &stubBackend{t: t, chainID: 1}
	extractor := params.NewStatic(map[string]any{
		"bridge": bridgeParams{Amount: "0.2", Token: "ETH", ToChain: "mainnet"},
	})
	deps := testDeps(t, backend, extractor, big.NewInt(1_000_000_000_000_000_000))
	deps.Router = NewRouter(fixedSource{name: "lifi", quote: routedQuote(1, common.Address{})})

	_, err := BridgeAction().Handler(context.Background(), deps, "bridge 0.2 ETH to mainnet")
	if !agenterr.IsCode(err, agenterr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestBridgeNativeToOtherChain(t *testing.T) {
	backend := &stubBackend{t: t, chainID: 1}
	extractor := params.NewStatic(map[string]any{
		"bridge": bridgeParams{Amount: "0.2", Token: "ETH", ToChain: "base"},
	})
	deps := testDeps(t, backend, extractor, big.NewInt(1_000_000_000_000_000_000))
	quote := routedQuote(190_000_000_000_000_000, common.Address{})
	quote.Value = big.NewInt(200_000_000_000_000_000)
	deps.Router = NewRouter(fixedSource{name: "lifi", quote: quote})

	res, err := BridgeAction().Handler(context.Background(), deps, "bridge 0.2 ETH to base")
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if len(backend.submitted) != 1 {
		t.Fatalf("submitted %d txs, want 1", len(backend.submitted))
	}
	if backend.submitted[0].Kind != "bridge" {
		t.Fatalf("kind %s", backend.submitted[0].Kind)
	}
	if backend.submitted[0].Value.Cmp(big.NewInt(200_000_000_000_000_000)) != 0 {
		t.Fatalf("value %s", backend.submitted[0].Value)
	}
	if !strings.Contains(res.Text, "mainnet") || !strings.Contains(res.Text, "base") {
		t.Fatalf("reply %q", res.Text)
	}
}

// recordingSource captures the request handed to the aggregator so tests can
// assert what the action asked for.
type recordingSource struct {
	fixedSource
	last *aggregator.Request
}

func (r recordingSource) Quote(ctx context.Context, req aggregator.Request) (aggregator.Quote, error) {
	*r.last = req
	return r.fixedSource.Quote(ctx, req)
}

func TestBridgeUsesDestinationToken(t *testing.T) {
	destToken := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	backend := &stubBackend{
		t:         t,
		chainID:   1,
		decimals:  6,
		balance:   big.NewInt(1_000_000_000),
		allowance: big.NewInt(1_000_000_000),
	}
	extractor := params.NewStatic(map[string]any{
		"bridge": bridgeParams{Amount: "100", Token: tokenAddr.Hex(), ToToken: destToken.Hex(), ToChain: "base"},
	})
	deps := testDeps(t, backend, extractor, nil)
	var seen aggregator.Request
	deps.Router = NewRouter(recordingSource{
		fixedSource: fixedSource{name: "lifi", quote: routedQuote(95_000_000, common.Address{})},
		last:        &seen,
	})

	if _, err := BridgeAction().Handler(context.Background(), deps, "bridge 100 USDC to base as USDC.e"); err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if seen.FromToken != tokenAddr {
		t.Fatalf("from token %s, want %s", seen.FromToken.Hex(), tokenAddr.Hex())
	}
	if seen.ToToken != destToken {
		t.Fatalf("destination token %s, want %s", seen.ToToken.Hex(), destToken.Hex())
	}
}

func TestBridgeRequiresDestinationTokenForERC20(t *testing.T) {
	backend := &stubBackend{t: t, chainID: 1, decimals: 6, balance: big.NewInt(1_000_000_000)}
	extractor := params.NewStatic(map[string]any{
		"bridge": bridgeParams{Amount: "100", Token: tokenAddr.Hex(), ToChain: "base"},
	})
	deps := testDeps(t, backend, extractor, nil)
	deps.Router = NewRouter(fixedSource{name: "lifi", quote: routedQuote(1, common.Address{})})

	_, err := BridgeAction().Handler(context.Background(), deps, "bridge 100 USDC to base")
	if !agenterr.IsCode(err, agenterr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestRouterQuotesRanked(t *testing.T) {
	router := NewRouter(
		fixedSource{name: "lifi", quote: routedQuote(990_000, common.Address{})},
		fixedSource{name: "bebop", quote: rfqQuote(995_000, common.Address{})},
	)
	quotes, err := router.Quotes(context.Background(), aggregator.Request{FromChainID: 1, Amount: big.NewInt(1)})
	if err != nil {
		t.Fatalf("Quotes: %v", err)
	}
	if len(quotes) != 2 || quotes[0].Source != "bebop" {
		t.Fatalf("rank order wrong: %+v", quotes)
	}
}
