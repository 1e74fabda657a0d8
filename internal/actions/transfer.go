package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/chains"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/execution"
)

type transferParams struct {
	Amount    string `json:"amount"`
	Token     string `json:"token"`
	Recipient string `json:"recipient"`
	Chain     string `json:"chain"`
}

const transferInstructions = `Extract the transfer the user wants as JSON:
{"amount": "<decimal amount>", "token": "<token address, or the native symbol>", "recipient": "<0x address>", "chain": "<chain name or empty for the current chain>"}`

func TransferAction() Action {
	return Action{
		Name:        "transfer",
		Description: "Send native currency or an ERC-20 token to an address",
		Triggers:    []string{"transfer", "send", "pay"},
		Examples: []string{
			"send 0.5 ETH to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
			"transfer 100 USDC on base to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		},
		Handler: handleTransfer,
	}
}

func handleTransfer(ctx context.Context, deps Deps, conversation string) (Result, error) {
	var p transferParams
	if err := deps.Extractor.Extract(ctx, conversation, transferInstructions, &p); err != nil {
		return Result{}, agenterr.Wrap(agenterr.CodeUsage, "extract transfer parameters", err)
	}
	recipient, err := parseAddress("recipient", p.Recipient)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(p.Chain) != "" {
		if _, err := deps.Wallet.SwitchChain(p.Chain); err != nil {
			return Result{}, err
		}
	}
	chain := deps.Wallet.CurrentChain()

	token, native, err := parseToken(p.Token, chain.Currency.Symbol)
	if err != nil {
		return Result{}, err
	}

	backend, cleanup, err := deps.BackendFor(ctx)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	if native {
		return transferNative(ctx, deps, backend, chain, recipient, p.Amount)
	}
	return transferToken(ctx, backend, token, recipient, p.Amount)
}

func transferNative(ctx context.Context, deps Deps, backend execution.Backend, chain chains.Chain, to common.Address, amount string) (Result, error) {
	value, err := chain.ParseNative(amount)
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.CodeUsage, "parse transfer amount", err)
	}
	if value.Sign() <= 0 {
		return Result{}, agenterr.New(agenterr.CodeUsage, "transfer amount must be greater than zero")
	}

	// Refuse before broadcasting when the wallet clearly cannot cover the
	// amount. Gas on top of a zero margin still fails on-chain, but this
	// catches the common case with a readable message.
	if balanceText, berr := deps.Wallet.Balance(ctx, ""); berr == nil && balanceText != "" {
		if balance, perr := chain.ParseNative(balanceText); perr == nil && value.Cmp(balance) > 0 {
			return Result{}, agenterr.New(agenterr.CodeBlocked,
				fmt.Sprintf("transfer exceeds balance: need %s %s, have %s %s",
					amount, chain.Currency.Symbol, balanceText, chain.Currency.Symbol))
		}
	}

	rec, err := backend.Submit(ctx, execution.TxRequest{
		To:          to,
		Value:       value,
		Kind:        "transfer",
		Description: fmt.Sprintf("send %s %s to %s", amount, chain.Currency.Symbol, to.Hex()),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text: fmt.Sprintf("Sent %s %s to %s. Transaction: %s", amount, chain.Currency.Symbol, to.Hex(), rec.Hash.Hex()),
		Tx:   recordToModel(rec),
	}, nil
}

func transferToken(ctx context.Context, backend execution.Backend, token, to common.Address, amount string) (Result, error) {
	decimals, err := execution.TokenDecimals(ctx, backend, token)
	if err != nil {
		return Result{}, err
	}
	value, err := chains.ParseUnits(amount, int(decimals))
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.CodeUsage, "parse transfer amount", err)
	}
	if value.Sign() <= 0 {
		return Result{}, agenterr.New(agenterr.CodeUsage, "transfer amount must be greater than zero")
	}

	if balance, berr := execution.TokenBalance(ctx, backend, token, backend.From()); berr == nil && value.Cmp(balance) > 0 {
		return Result{}, agenterr.New(agenterr.CodeBlocked,
			fmt.Sprintf("transfer exceeds balance: need %s, have %s (token %s)",
				amount, chains.FormatUnits(balance, int(decimals)), token.Hex()))
	}

	data, err := execution.PackTransfer(to, value)
	if err != nil {
		return Result{}, err
	}
	rec, err := backend.Submit(ctx, execution.TxRequest{
		To:          token,
		Data:        data,
		Kind:        "transfer",
		Description: fmt.Sprintf("send %s of token %s to %s", amount, token.Hex(), to.Hex()),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text: fmt.Sprintf("Sent %s of %s to %s. Transaction: %s", amount, token.Hex(), to.Hex(), rec.Hash.Hex()),
		Tx:   recordToModel(rec),
	}, nil
}
