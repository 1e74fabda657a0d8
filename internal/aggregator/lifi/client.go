package lifi

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/aggregator"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/httpx"
	"github.com/hyphalabs/evm-agent/internal/registry"
)

// Client quotes swaps and bridge routes through the LI.FI aggregator. The
// same /quote endpoint serves both; a bridge is a quote whose toChain differs
// from fromChain.
type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: registry.LiFiBaseURL}
}

// WithBaseURL overrides the API host, used by tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

func (c *Client) Name() string { return "lifi" }

type quoteResponse struct {
	ID       string `json:"id"`
	Estimate struct {
		ToAmount        string `json:"toAmount"`
		ToAmountMin     string `json:"toAmountMin"`
		ApprovalAddress string `json:"approvalAddress"`
		FeeCosts        []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"feeCosts"`
		GasCosts []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"gasCosts"`
		ExecutionDuration int64 `json:"executionDuration"`
	} `json:"estimate"`
	ToolDetails struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"toolDetails"`
	Tool               string `json:"tool"`
	TransactionRequest struct {
		To      string `json:"to"`
		From    string `json:"from"`
		Data    string `json:"data"`
		Value   string `json:"value"`
		ChainID int64  `json:"chainId"`
	} `json:"transactionRequest"`
}

func (c *Client) Quote(ctx context.Context, req aggregator.Request) (aggregator.Quote, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeUsage, "quote amount must be greater than zero")
	}
	if req.Sender == (common.Address{}) {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeUsage, "quote requires sender address")
	}
	recipient := req.Recipient
	if recipient == (common.Address{}) {
		recipient = req.Sender
	}
	slippageBps := req.SlippageBps
	if slippageBps <= 0 {
		slippageBps = 50
	}
	if slippageBps >= 10_000 {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeUsage, "slippage bps must be less than 10000")
	}
	toChain := req.ToChainID
	if toChain == 0 {
		toChain = req.FromChainID
	}

	vals := url.Values{}
	vals.Set("fromChain", strconv.FormatInt(req.FromChainID, 10))
	vals.Set("toChain", strconv.FormatInt(toChain, 10))
	vals.Set("fromToken", tokenParam(req.FromToken))
	vals.Set("toToken", tokenParam(req.ToToken))
	vals.Set("fromAmount", req.Amount.String())
	vals.Set("slippage", formatSlippage(slippageBps))
	vals.Set("fromAddress", req.Sender.Hex())
	vals.Set("toAddress", recipient.Hex())

	reqURL := c.baseURL + "/quote?" + vals.Encode()
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return aggregator.Quote{}, agenterr.Wrap(agenterr.CodeInternal, "build lifi quote request", err)
	}
	var resp quoteResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return aggregator.Quote{}, err
	}
	if strings.TrimSpace(resp.Estimate.ToAmount) == "" {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeNoRoute, "lifi quote missing output amount")
	}
	if strings.TrimSpace(resp.TransactionRequest.To) == "" || strings.TrimSpace(resp.TransactionRequest.Data) == "" {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeNoRoute, "lifi quote missing executable transaction payload")
	}
	if resp.TransactionRequest.ChainID != 0 && resp.TransactionRequest.ChainID != req.FromChainID {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeNoRoute, "lifi transaction chain does not match source chain")
	}

	out, ok := new(big.Int).SetString(resp.Estimate.ToAmount, 10)
	if !ok {
		return aggregator.Quote{}, agenterr.New(agenterr.CodeUnavailable, "lifi quote output amount is not an integer")
	}
	minOut := out
	if v, ok := new(big.Int).SetString(strings.TrimSpace(resp.Estimate.ToAmountMin), 10); ok {
		minOut = v
	}
	value, err := hexToBig(resp.TransactionRequest.Value)
	if err != nil {
		return aggregator.Quote{}, agenterr.Wrap(agenterr.CodeUnavailable, "parse lifi transaction value", err)
	}

	feeUSD := 0.0
	for _, item := range resp.Estimate.FeeCosts {
		v, _ := strconv.ParseFloat(item.AmountUSD, 64)
		feeUSD += v
	}
	for _, item := range resp.Estimate.GasCosts {
		v, _ := strconv.ParseFloat(item.AmountUSD, 64)
		feeUSD += v
	}
	route := resp.ToolDetails.Name
	if route == "" {
		route = resp.Tool
	}

	quote := aggregator.Quote{
		Source:         "lifi",
		Kind:           aggregator.KindRouted,
		Out:            out,
		MinOut:         minOut,
		To:             common.HexToAddress(resp.TransactionRequest.To),
		Value:          value,
		Data:           common.FromHex(ensureHexPrefix(resp.TransactionRequest.Data)),
		Route:          route,
		FeeUSD:         feeUSD,
		EstimatedTimeS: resp.Estimate.ExecutionDuration,
	}
	// Native input needs no approval regardless of the reported spender.
	if req.FromToken != (common.Address{}) && common.IsHexAddress(resp.Estimate.ApprovalAddress) {
		quote.ApprovalSpender = common.HexToAddress(resp.Estimate.ApprovalAddress)
	}
	return quote, nil
}

// The zero address means the native asset; LI.FI expects it spelled out.
func tokenParam(addr common.Address) string {
	if addr == (common.Address{}) {
		return "0x0000000000000000000000000000000000000000"
	}
	return strings.ToLower(addr.Hex())
}

func formatSlippage(bps int64) string {
	return strconv.FormatFloat(float64(bps)/10000, 'f', 6, 64)
}

func ensureHexPrefix(v string) string {
	clean := strings.TrimSpace(v)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		return clean
	}
	return "0x" + clean
}

func hexToBig(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return big.NewInt(0), nil
	}
	clean = strings.TrimPrefix(clean, "0x")
	clean = strings.TrimPrefix(clean, "0X")
	if clean == "" {
		return big.NewInt(0), nil
	}
	n := new(big.Int)
	if _, ok := n.SetString(clean, 16); !ok {
		return nil, fmt.Errorf("invalid hex value %q", v)
	}
	return n, nil
}
