package app

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/httpx"
	"github.com/hyphalabs/evm-agent/internal/portfolio/zerion"
)

func (s *runtimeState) newPortfolioCommand() *cobra.Command {
	var addressArg string
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Cross-chain token positions via Zerion (API key required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			address := s.wallet.Address()
			if clean := strings.TrimSpace(addressArg); clean != "" {
				if !common.IsHexAddress(clean) {
					return agenterr.New(agenterr.CodeUsage, fmt.Sprintf("invalid address %q", addressArg))
				}
				address = common.HexToAddress(clean)
			}

			client, err := zerion.New(httpx.New(s.settings.Timeout, s.settings.Retries), s.settings.ZerionAPIKey)
			if err != nil {
				return err
			}
			if s.settings.ZerionBaseURL != "" {
				client.WithBaseURL(s.settings.ZerionBaseURL)
			}

			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			portfolio, err := client.Positions(ctx, address)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), portfolio)
		},
	}
	cmd.Flags().StringVar(&addressArg, "address", "", "Wallet address (defaults to the agent's own)")
	return cmd
}
