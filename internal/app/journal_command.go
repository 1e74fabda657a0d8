package app

import (
	"strings"

	"github.com/spf13/cobra"

	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
)

func (s *runtimeState) newJournalCommand() *cobra.Command {
	var kindArg, hashArg string
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recorded transaction submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.journal == nil {
				return agenterr.New(agenterr.CodeConfig, "journal is disabled; enable journal in config or EVMAGENT_JOURNAL=true")
			}
			if hash := strings.TrimSpace(hashArg); hash != "" {
				entry, err := s.journal.ByHash(hash)
				if err != nil {
					return err
				}
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), entry)
			}
			entries, err := s.journal.Recent(strings.TrimSpace(kindArg), limit)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), entries)
		},
	}
	cmd.Flags().StringVar(&kindArg, "kind", "", "Filter by entry kind (transfer, swap, approval, ...)")
	cmd.Flags().StringVar(&hashArg, "hash", "", "Look up a single entry by transaction hash")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to return")
	return cmd
}
