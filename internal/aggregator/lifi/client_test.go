package lifi

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/aggregator"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/httpx"
)

func newQuoteServer(t *testing.T, handler func(q map[string]string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		params := map[string]string{}
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(handler(params))); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
}

const sampleQuoteBody = `{
	"id": "q-1",
	"estimate": {
		"toAmount": "950000",
		"toAmountMin": "945000",
		"approvalAddress": "0x0000000000000000000000000000000000000abc",
		"feeCosts": [{"amountUSD": "0.30"}],
		"gasCosts": [{"amountUSD": "0.12"}],
		"executionDuration": 45
	},
	"toolDetails": {"key": "across", "name": "Across"},
	"tool": "across",
	"transactionRequest": {
		"to": "0x00000000000000000000000000000000000000f1",
		"data": "0xdeadbeef",
		"value": "0x0",
		"chainId": 1
	}
}`

func baseRequest() aggregator.Request {
	return aggregator.Request{
		FromChainID: 1,
		ToChainID:   8453,
		FromToken:   common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		ToToken:     common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		Amount:      big.NewInt(1_000_000),
		Sender:      common.HexToAddress("0x00000000000000000000000000000000000000AA"),
		SlippageBps: 50,
	}
}

func TestQuoteBridgeRoute(t *testing.T) {
	var gotFromChain, gotToChain string
	srv := newQuoteServer(t, func(q map[string]string) string {
		gotFromChain, gotToChain = q["fromChain"], q["toChain"]
		return sampleQuoteBody
	})
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0)).WithBaseURL(srv.URL)
	quote, err := c.Quote(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if gotFromChain != "1" || gotToChain != "8453" {
		t.Fatalf("queried chains %s->%s", gotFromChain, gotToChain)
	}
	if quote.Source != "lifi" || quote.Kind != aggregator.KindRouted {
		t.Fatalf("unexpected quote identity: %s/%s", quote.Source, quote.Kind)
	}
	if quote.Out.Cmp(big.NewInt(950000)) != 0 || quote.MinOut.Cmp(big.NewInt(945000)) != 0 {
		t.Fatalf("unexpected amounts out=%s min=%s", quote.Out, quote.MinOut)
	}
	if !quote.NeedsApproval() {
		t.Fatal("erc20 input should carry an approval spender")
	}
	if quote.Route != "Across" {
		t.Fatalf("route = %q", quote.Route)
	}
	if quote.FeeUSD < 0.41 || quote.FeeUSD > 0.43 {
		t.Fatalf("fee = %f", quote.FeeUSD)
	}
}

func TestQuoteSameChainDefaultsToChain(t *testing.T) {
	var gotToChain string
	srv := newQuoteServer(t, func(q map[string]string) string {
		gotToChain = q["toChain"]
		return sampleQuoteBody
	})
	defer srv.Close()

	req := baseRequest()
	req.ToChainID = 0
	c := New(httpx.New(2*time.Second, 0)).WithBaseURL(srv.URL)
	if _, err := c.Quote(context.Background(), req); err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if gotToChain != "1" {
		t.Fatalf("toChain = %s, want 1", gotToChain)
	}
}

func TestQuoteNativeInputSkipsApproval(t *testing.T) {
	srv := newQuoteServer(t, func(q map[string]string) string { return sampleQuoteBody })
	defer srv.Close()

	req := baseRequest()
	req.FromToken = common.Address{}
	c := New(httpx.New(2*time.Second, 0)).WithBaseURL(srv.URL)
	quote, err := c.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.NeedsApproval() {
		t.Fatal("native input must not need approval")
	}
}

func TestQuoteMissingPayloadIsNoRoute(t *testing.T) {
	srv := newQuoteServer(t, func(q map[string]string) string {
		return `{"estimate": {"toAmount": "950000"}}`
	})
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0)).WithBaseURL(srv.URL)
	_, err := c.Quote(context.Background(), baseRequest())
	if !agenterr.IsCode(err, agenterr.CodeNoRoute) {
		t.Fatalf("expected no-route error, got %v", err)
	}
}

func TestQuoteRejectsWrongChainPayload(t *testing.T) {
	srv := newQuoteServer(t, func(q map[string]string) string {
		return `{
			"estimate": {"toAmount": "950000"},
			"transactionRequest": {"to": "0x00000000000000000000000000000000000000f1", "data": "0x01", "chainId": 10}
		}`
	})
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0)).WithBaseURL(srv.URL)
	if _, err := c.Quote(context.Background(), baseRequest()); !agenterr.IsCode(err, agenterr.CodeNoRoute) {
		t.Fatalf("expected no-route error, got %v", err)
	}
}

func TestQuoteValidatesInput(t *testing.T) {
	c := New(httpx.New(2*time.Second, 0))
	req := baseRequest()
	req.Amount = big.NewInt(0)
	if _, err := c.Quote(context.Background(), req); !agenterr.IsCode(err, agenterr.CodeUsage) {
		t.Fatalf("expected usage error for zero amount, got %v", err)
	}
	req = baseRequest()
	req.Sender = common.Address{}
	if _, err := c.Quote(context.Background(), req); !agenterr.IsCode(err, agenterr.CodeUsage) {
		t.Fatalf("expected usage error for missing sender, got %v", err)
	}
	req = baseRequest()
	req.SlippageBps = 10_000
	if _, err := c.Quote(context.Background(), req); !agenterr.IsCode(err, agenterr.CodeUsage) {
		t.Fatalf("expected usage error for excessive slippage, got %v", err)
	}
}
