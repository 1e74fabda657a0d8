package app

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/hyphalabs/evm-agent/internal/actions"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/governance"
	"github.com/hyphalabs/evm-agent/internal/model"
)

func (s *runtimeState) newGovCommand() *cobra.Command {
	root := &cobra.Command{Use: "gov", Short: "Governor proposal lifecycle"}

	propose := &cobra.Command{
		Use:   "propose <message>",
		Short: "Submit a proposal to the governor",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAction(cmd, actions.ProposeAction(), args)
		},
	}
	vote := &cobra.Command{
		Use:   "vote <message>",
		Short: "Cast a vote on an active proposal",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAction(cmd, actions.VoteAction(), args)
		},
	}
	queue := &cobra.Command{
		Use:   "queue <message>",
		Short: "Queue a succeeded proposal into the timelock",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAction(cmd, actions.QueueAction(), args)
		},
	}
	execute := &cobra.Command{
		Use:   "execute <message>",
		Short: "Execute a queued proposal after its delay elapses",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAction(cmd, actions.ExecuteAction(), args)
		},
	}

	root.AddCommand(propose)
	root.AddCommand(vote)
	root.AddCommand(queue)
	root.AddCommand(execute)
	root.AddCommand(s.newGovStateCommand())
	return root
}

func (s *runtimeState) newGovStateCommand() *cobra.Command {
	var proposalArg, governorArg string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Read a proposal's state, tally, and schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			proposalID, err := parseProposalID(proposalArg)
			if err != nil {
				return err
			}
			governorAddr := strings.TrimSpace(governorArg)
			if governorAddr == "" {
				governorAddr = s.settings.GovernorAddress
			}
			if governorAddr == "" {
				return agenterr.New(agenterr.CodeConfig, "no governor address configured; set governance.governor or pass --governor")
			}
			if !common.IsHexAddress(governorAddr) {
				return agenterr.New(agenterr.CodeUsage, fmt.Sprintf("invalid governor address %q", governorAddr))
			}

			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			backend, err := s.wallet.Backend(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			gov := governance.NewGovernor(backend, common.HexToAddress(governorAddr))
			status, err := gov.ProposalStatus(ctx, proposalID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), governanceStatusToModel(status))
		},
	}
	cmd.Flags().StringVar(&proposalArg, "proposal", "", "Proposal id (decimal or 0x-prefixed)")
	cmd.Flags().StringVar(&governorArg, "governor", "", "Governor contract address")
	_ = cmd.MarkFlagRequired("proposal")
	return cmd
}

func parseProposalID(raw string) (*big.Int, error) {
	clean := strings.TrimSpace(raw)
	base := 10
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		clean = clean[2:]
		base = 16
	}
	id, ok := new(big.Int).SetString(clean, base)
	if !ok || id.Sign() < 0 {
		return nil, agenterr.New(agenterr.CodeUsage, fmt.Sprintf("invalid proposal id %q", raw))
	}
	return id, nil
}

func governanceStatusToModel(status governance.Status) model.GovernanceStatus {
	out := model.GovernanceStatus{
		ProposalID:   status.ProposalID.String(),
		State:        status.State.String(),
		AgainstVotes: status.Votes.Against.String(),
		ForVotes:     status.Votes.For.String(),
		AbstainVotes: status.Votes.Abstain.String(),
	}
	if status.Snapshot != nil {
		out.Snapshot = status.Snapshot.String()
	}
	if status.Deadline != nil {
		out.Deadline = status.Deadline.String()
	}
	if status.ETA != nil && status.ETA.Sign() > 0 {
		out.Eta = status.ETA.String()
	}
	return out
}
