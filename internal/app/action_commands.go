package app

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/hyphalabs/evm-agent/internal/actions"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
)

// literalExtractor feeds a fixed JSON object to the action, so scripted
// callers can skip the language model entirely (--params).
type literalExtractor struct {
	raw string
}

func (l literalExtractor) Extract(_ context.Context, _, _ string, out any) error {
	if err := json.Unmarshal([]byte(l.raw), out); err != nil {
		return agenterr.Wrap(agenterr.CodeUsage, "parse --params json", err)
	}
	return nil
}

func (s *runtimeState) newTransferCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <message>",
		Short: "Send native value or ERC-20 tokens",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAction(cmd, actions.TransferAction(), args)
		},
	}
}

func (s *runtimeState) newBridgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge <message>",
		Short: "Bridge an asset to another chain via aggregator routes",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAction(cmd, actions.BridgeAction(), args)
		},
	}
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "swap <message>",
		Short: "Swap tokens through the best-ranked aggregator quote",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAction(cmd, actions.SwapAction(), args)
		},
	}
}
