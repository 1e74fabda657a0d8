package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/aggregator"
	"github.com/hyphalabs/evm-agent/internal/chains"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
)

type bridgeParams struct {
	Amount    string `json:"amount"`
	Token     string `json:"token"`
	ToToken   string `json:"to_token"`
	FromChain string `json:"from_chain"`
	ToChain   string `json:"to_chain"`
	Recipient string `json:"recipient"`
}

const bridgeInstructions = `Extract the bridge transfer the user wants as JSON:
{"amount": "<decimal amount>", "token": "<token address or native symbol>", "to_token": "<destination token address or native symbol, empty when bridging the native asset>", "from_chain": "<chain name or empty for the current chain>", "to_chain": "<destination chain name>", "recipient": "<0x address or empty to keep the sender>"}`

func BridgeAction() Action {
	return Action{
		Name:        "bridge",
		Description: "Move tokens from one chain to another through a bridge route",
		Triggers:    []string{"bridge", "move to", "cross-chain", "cross chain"},
		Examples: []string{
			"bridge 0.2 ETH from mainnet to base",
			"move 250 USDC to arbitrum",
		},
		Handler: handleBridge,
	}
}

func handleBridge(ctx context.Context, deps Deps, conversation string) (Result, error) {
	var p bridgeParams
	if err := deps.Extractor.Extract(ctx, conversation, bridgeInstructions, &p); err != nil {
		return Result{}, agenterr.Wrap(agenterr.CodeUsage, "extract bridge parameters", err)
	}
	if strings.TrimSpace(p.ToChain) == "" {
		return Result{}, agenterr.New(agenterr.CodeUsage, "bridge requires a destination chain")
	}
	toChain, err := chains.ByName(p.ToChain)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(p.FromChain) != "" {
		if _, err := deps.Wallet.SwitchChain(p.FromChain); err != nil {
			return Result{}, err
		}
	}
	fromChain := deps.Wallet.CurrentChain()
	if toChain.ID == fromChain.ID {
		return Result{}, agenterr.New(agenterr.CodeUsage, "source and destination chains are the same; use a swap instead")
	}

	token, native, err := parseToken(p.Token, fromChain.Currency.Symbol)
	if err != nil {
		return Result{}, err
	}
	// The destination token is resolved against the destination chain; the
	// zero address stands for its native asset. A source-chain ERC-20 address
	// rarely exists on the other chain, so we only default when bridging the
	// native asset.
	toToken := common.Address{}
	if strings.TrimSpace(p.ToToken) != "" {
		toToken, _, err = parseToken(p.ToToken, toChain.Currency.Symbol)
		if err != nil {
			return Result{}, err
		}
	} else if !native {
		return Result{}, agenterr.New(agenterr.CodeUsage, "bridge requires a destination token when the source token is not the native asset")
	}
	recipient := common.Address{}
	if strings.TrimSpace(p.Recipient) != "" {
		recipient, err = parseAddress("recipient", p.Recipient)
		if err != nil {
			return Result{}, err
		}
	}

	backend, cleanup, err := deps.BackendFor(ctx)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	amount, err := resolveAmount(ctx, backend, fromChain, token, native, p.Amount)
	if err != nil {
		return Result{}, err
	}

	req := aggregator.Request{
		FromChainID: fromChain.ID,
		ToChainID:   toChain.ID,
		FromToken:   token,
		ToToken:     toToken,
		Amount:      amount,
		Sender:      backend.From(),
		Recipient:   recipient,
		SlippageBps: deps.Settings.SlippageBps,
	}
	quotes, err := deps.Router.Quotes(ctx, req)
	if err != nil {
		return Result{}, err
	}
	quote, rec, err := deps.Router.Settle(ctx, backend, req, quotes, "bridge")
	if err != nil {
		return Result{}, err
	}

	text := fmt.Sprintf("Bridging %s from %s to %s via %s (route %s, about %ds). Transaction: %s",
		p.Amount, fromChain.Name, toChain.Name, quote.Source, quote.Route, quote.EstimatedTimeS, rec.Hash.Hex())
	return Result{Text: text, Data: quote, Tx: recordToModel(rec)}, nil
}
