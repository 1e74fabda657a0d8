package bebop

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/aggregator"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/httpx"
	"github.com/hyphalabs/evm-agent/internal/registry"
)

// Client asks Bebop's market makers for a firm same-chain quote. The response
// carries a prebuilt settlement transaction, so unlike routed aggregators the
// calldata needs no further assembly.
type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: registry.BebopBaseURL}
}

// WithBaseURL overrides the API host, used by tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

func (c *Client) Name() string { return "bebop" }

type quoteResponse struct {
	Status  string `json:"status"`
	QuoteID string `json:"quoteId"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
	ApprovalTarget string `json:"approvalTarget"`
	Expiry         int64  `json:"expiry"`
	Tx             struct {
		To    string `json:"to"`
		Value string `json:"value"`
		Data  string `json:"data"`
	} `json:"tx"`
	BuyTokens map[string]struct {
		Amount        string `json:"amount"`
		MinimumAmount string `json:"minimumAmount"`
	} `json:"buyTokens"`
}

func (c *Client) Quote(ctx context.Context, req aggregator.Request) (aggregator.Quote, error) {
	if !req.SameChain() {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeUnsupported, "bebop quotes are same-chain only")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeUsage, "quote amount must be greater than zero")
	}
	if req.Sender == (common.Address{}) {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeUsage, "quote requires sender address")
	}
	if req.FromToken == (common.Address{}) || req.ToToken == (common.Address{}) {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeUnsupported, "bebop trades ERC-20 pairs only")
	}
	recipient := req.Recipient
	if recipient == (common.Address{}) {
		recipient = req.Sender
	}

	vals := url.Values{}
	vals.Set("sell_tokens", strings.ToLower(req.FromToken.Hex()))
	vals.Set("buy_tokens", strings.ToLower(req.ToToken.Hex()))
	vals.Set("sell_amounts", req.Amount.String())
	vals.Set("taker_address", req.Sender.Hex())
	vals.Set("receiver_address", recipient.Hex())
	vals.Set("approval_type", "Standard")
	vals.Set("gasless", "false")

	reqURL := fmt.Sprintf("%s/router/%d/v1/quote?%s", c.baseURL, req.FromChainID, vals.Encode())
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return aggregator.Quote{}, agenterr.Wrap(agenterr.CodeInternal, "build bebop quote request", err)
	}
	var resp quoteResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return aggregator.Quote{}, err
	}
	if strings.TrimSpace(resp.Error.Message) != "" {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeNoRoute, "bebop: "+resp.Error.Message)
	}
	if strings.TrimSpace(resp.Tx.To) == "" || strings.TrimSpace(resp.Tx.Data) == "" {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeNoRoute, "bebop quote missing settlement transaction")
	}

	buy, ok := resp.BuyTokens[strings.ToLower(req.ToToken.Hex())]
	if !ok {
		// Some responses key by checksummed address.
		buy, ok = resp.BuyTokens[req.ToToken.Hex()]
	}
	if !ok {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeNoRoute, "bebop quote missing buy token amounts")
	}
	out, ok := new(big.Int).SetString(strings.TrimSpace(buy.Amount), 10)
	if !ok {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeUnavailable, "bebop buy amount is not an integer")
	}
	minOut := out
	if v, ok := new(big.Int).SetString(strings.TrimSpace(buy.MinimumAmount), 10); ok {
		minOut = v
	}
	value, err := hexOrDecimalBig(resp.Tx.Value)
	if err != nil {
		return aggregator.Quote{}, agenterr.Wrap(agenterr.CodeUnavailable, "parse bebop transaction value", err)
	}

	quote := aggregator.Quote{
		Source: "bebop",
		Kind:   aggregator.KindRFQ,
		Out:    out,
		MinOut: minOut,
		To:     common.HexToAddress(resp.Tx.To),
		Value:  value,
		Data:   common.FromHex(ensureHexPrefix(resp.Tx.Data)),
		Route:  "bebop-rfq",
	}
	if common.IsHexAddress(resp.ApprovalTarget) {
		quote.ApprovalSpender = common.HexToAddress(resp.ApprovalTarget)
	}
	return quote, nil
}

func ensureHexPrefix(v string) string {
	clean := strings.TrimSpace(v)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		return clean
	}
	return "0x" + clean
}

func hexOrDecimalBig(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		n := new(big.Int)
		if _, ok := n.SetString(clean[2:], 16); !ok {
			return nil, fmt.Errorf("invalid hex value %q", v)
		}
		return n, nil
	}
	n, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value %q", v)
	}
	return n, nil
}
