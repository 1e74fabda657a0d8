package actions

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/aggregator"
	"github.com/hyphalabs/evm-agent/internal/chains"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/execution"
)

// Router fans a request out to every quote source in parallel, ranks the
// answers, and walks them best-first until one settles.
type Router struct {
	sources []aggregator.Source
}

func NewRouter(sources ...aggregator.Source) *Router {
	return &Router{sources: sources}
}

// Quotes collects one quote per source. Individual source failures are
// dropped; the request only fails when nobody can price it.
func (r *Router) Quotes(ctx context.Context, req aggregator.Request) ([]aggregator.Quote, error) {
	if len(r.sources) == 0 {
		return nil, agenterr.New(agenterr.CodeNoRoute, "no quote sources configured")
	}
	var (
		mu     sync.Mutex
		quotes []aggregator.Quote
		errs   []string
		wg     sync.WaitGroup
	)
	for _, source := range r.sources {
		wg.Add(1)
		go func(s aggregator.Source) {
			defer wg.Done()
			quote, err := s.Quote(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
				return
			}
			quotes = append(quotes, quote)
		}(source)
	}
	wg.Wait()

	if len(quotes) == 0 {
		return nil, agenterr.New(agenterr.CodeNoRoute, "no route found: "+strings.Join(errs, "; "))
	}
	return aggregator.Rank(quotes), nil
}

// Settle tries quotes in rank order: approve when the allowance is short,
// submit, and fall through to the next quote when a submission fails.
func (r *Router) Settle(ctx context.Context, backend execution.Backend, req aggregator.Request, quotes []aggregator.Quote, kind string) (aggregator.Quote, execution.TxRecord, error) {
	var lastErr error
	for _, quote := range quotes {
		if req.FromToken != (common.Address{}) && quote.NeedsApproval() {
			if _, err := ensureAllowance(ctx, backend, req.FromToken, quote.ApprovalSpender, req.Amount); err != nil {
				lastErr = err
				continue
			}
		}
		rec, err := backend.Submit(ctx, execution.TxRequest{
			To:          quote.To,
			Value:       quote.Value,
			Data:        quote.Data,
			Kind:        kind,
			Description: fmt.Sprintf("%s via %s (%s)", kind, quote.Source, quote.Route),
		})
		if err != nil {
			lastErr = err
			continue
		}
		return quote, rec, nil
	}
	if lastErr == nil {
		lastErr = agenterr.New(agenterr.CodeNoRoute, "no settleable quotes")
	}
	return aggregator.Quote{}, execution.TxRecord{}, lastErr
}

type swapParams struct {
	Amount      string `json:"amount"`
	FromToken   string `json:"from_token"`
	ToToken     string `json:"to_token"`
	Chain       string `json:"chain"`
	SlippageBps int64  `json:"slippage_bps"`
}

const swapInstructions = `Extract the swap the user wants as JSON:
{"amount": "<decimal amount of the input token>", "from_token": "<token address or native symbol>", "to_token": "<token address or native symbol>", "chain": "<chain name or empty>", "slippage_bps": <integer or 0 for default>}`

func SwapAction() Action {
	return Action{
		Name:        "swap",
		Description: "Swap one token for another on the current chain using aggregator quotes",
		Triggers:    []string{"swap", "exchange", "convert", "trade"},
		Examples: []string{
			"swap 1 ETH for USDC",
			"convert 500 USDC to DAI with 0.3% slippage",
		},
		Handler: handleSwap,
	}
}

func handleSwap(ctx context.Context, deps Deps, conversation string) (Result, error) {
	var p swapParams
	if err := deps.Extractor.Extract(ctx, conversation, swapInstructions, &p); err != nil {
		return Result{}, agenterr.Wrap(agenterr.CodeUsage, "extract swap parameters", err)
	}
	if strings.TrimSpace(p.Chain) != "" {
		if _, err := deps.Wallet.SwitchChain(p.Chain); err != nil {
			return Result{}, err
		}
	}
	chain := deps.Wallet.CurrentChain()

	fromToken, fromNative, err := parseToken(p.FromToken, chain.Currency.Symbol)
	if err != nil {
		return Result{}, err
	}
	toToken, _, err := parseToken(p.ToToken, chain.Currency.Symbol)
	if err != nil {
		return Result{}, err
	}

	backend, cleanup, err := deps.BackendFor(ctx)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	amount, err := resolveAmount(ctx, backend, chain, fromToken, fromNative, p.Amount)
	if err != nil {
		return Result{}, err
	}
	slippage := p.SlippageBps
	if slippage <= 0 {
		slippage = deps.Settings.SlippageBps
	}

	req := aggregator.Request{
		FromChainID: chain.ID,
		FromToken:   fromToken,
		ToToken:     toToken,
		Amount:      amount,
		Sender:      backend.From(),
		SlippageBps: slippage,
	}
	quotes, err := deps.Router.Quotes(ctx, req)
	if err != nil {
		return Result{}, err
	}
	quote, rec, err := deps.Router.Settle(ctx, backend, req, quotes, "swap")
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text: fmt.Sprintf("Swapped %s via %s, minimum received %s. Transaction: %s",
			p.Amount, quote.Source, quote.MinOut, rec.Hash.Hex()),
		Data: quote,
		Tx:   recordToModel(rec),
	}, nil
}

func resolveAmount(ctx context.Context, backend execution.Backend, chain chains.Chain, token common.Address, native bool, amount string) (*big.Int, error) {
	if native {
		value, err := chain.ParseNative(amount)
		if err != nil {
			return nil, agenterr.Wrap(agenterr.CodeUsage, "parse amount", err)
		}
		return value, nil
	}
	decimals, err := execution.TokenDecimals(ctx, backend, token)
	if err != nil {
		return nil, err
	}
	value, err := chains.ParseUnits(amount, int(decimals))
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeUsage, "parse amount", err)
	}
	return value, nil
}
