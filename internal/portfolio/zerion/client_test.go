package zerion

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/httpx"
)

const positionsBody = `{
  "data": [
    {
      "attributes": {
        "value": 4821.55,
        "quantity": {"numeric": "1.204"},
        "fungible_info": {"name": "Ethereum", "symbol": "ETH"}
      },
      "relationships": {"chain": {"data": {"id": "ethereum"}}}
    },
    {
      "attributes": {
        "value": 250.0,
        "quantity": {"numeric": "250.0"},
        "fungible_info": {"name": "USD Coin", "symbol": "USDC"}
      },
      "relationships": {"chain": {"data": {"id": "base"}}}
    },
    {
      "attributes": {
        "value": null,
        "quantity": {"numeric": "12"},
        "fungible_info": {"name": "Dust Token", "symbol": "DUST"}
      },
      "relationships": {"chain": {"data": {"id": "polygon"}}}
    }
  ]
}`

func TestPositions(t *testing.T) {
	addr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(positionsBody))
	}))
	defer srv.Close()

	client, err := New(httpx.New(5*time.Second, 0), "zk_test_key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	client.WithBaseURL(srv.URL)

	portfolio, err := client.Positions(context.Background(), addr)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}

	wantPath := "/wallets/" + strings.ToLower(addr.Hex()) + "/positions/"
	if gotPath != wantPath {
		t.Errorf("path = %q, want %q", gotPath, wantPath)
	}
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("zk_test_key:"))
	if gotAuth != wantAuth {
		t.Errorf("auth header = %q, want %q", gotAuth, wantAuth)
	}

	if len(portfolio.Positions) != 3 {
		t.Fatalf("positions = %d, want 3", len(portfolio.Positions))
	}
	if portfolio.Positions[0].Symbol != "ETH" || portfolio.Positions[0].Chain != "ethereum" {
		t.Errorf("first position = %+v", portfolio.Positions[0])
	}
	if portfolio.Positions[0].Quantity != "1.204" {
		t.Errorf("quantity = %q, want 1.204", portfolio.Positions[0].Quantity)
	}
	if portfolio.TotalUSD != 4821.55+250.0 {
		t.Errorf("total = %v, want %v", portfolio.TotalUSD, 4821.55+250.0)
	}
	if portfolio.Positions[2].ValueUSD != 0 {
		t.Errorf("null value should map to zero, got %v", portfolio.Positions[2].ValueUSD)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(httpx.New(time.Second, 0), "  "); err == nil {
		t.Fatal("expected error for blank api key")
	}
}
