package agent

import (
	"context"
	"fmt"

	"github.com/hyphalabs/evm-agent/internal/wallet"
)

// WalletProvider injects the wallet's address, chain, and balance into the
// conversation so the extractor and handlers know the current state.
type WalletProvider struct {
	wallet *wallet.Wallet
}

func NewWalletProvider(w *wallet.Wallet) *WalletProvider {
	return &WalletProvider{wallet: w}
}

func (p *WalletProvider) Name() string { return "wallet-status" }

func (p *WalletProvider) Provide(ctx context.Context) (string, error) {
	status := p.wallet.Status(ctx)
	text := fmt.Sprintf("Wallet address: %s\nCurrent chain: %s (chain id %d)", status.Address, status.Chain, status.ChainID)
	if status.Balance != "" {
		text += fmt.Sprintf("\nNative balance: %s %s", status.Balance, status.Symbol)
	}
	return text, nil
}
