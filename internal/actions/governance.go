package actions

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/governance"
	"github.com/hyphalabs/evm-agent/internal/model"
)

// governanceTarget resolves the governor address: the extracted parameter
// wins, then the configured default.
func governanceTarget(deps Deps, extracted string) (common.Address, error) {
	raw := strings.TrimSpace(extracted)
	if raw == "" {
		raw = strings.TrimSpace(deps.Settings.GovernorAddress)
	}
	if raw == "" {
		return common.Address{}, agenterr.New(agenterr.CodeConfig,
			"no governor address: mention one in the request or set governance.governor in the config")
	}
	return parseAddress("governor", raw)
}

type proposalParams struct {
	Governor    string   `json:"governor"`
	Targets     []string `json:"targets"`
	Values      []string `json:"values"`
	Calldatas   []string `json:"calldatas"`
	Description string   `json:"description"`
	Chain       string   `json:"chain"`
}

func (p proposalParams) toProposal() (governance.Proposal, error) {
	if len(p.Targets) == 0 {
		return governance.Proposal{}, agenterr.New(agenterr.CodeUsage, "proposal needs at least one target")
	}
	if len(p.Values) != len(p.Targets) || len(p.Calldatas) != len(p.Targets) {
		return governance.Proposal{}, agenterr.New(agenterr.CodeUsage,
			"proposal targets, values, and calldatas must have the same length")
	}
	out := governance.Proposal{Description: p.Description}
	for i := range p.Targets {
		target, err := parseAddress("proposal target", p.Targets[i])
		if err != nil {
			return governance.Proposal{}, err
		}
		value := big.NewInt(0)
		if strings.TrimSpace(p.Values[i]) != "" {
			v, ok := new(big.Int).SetString(strings.TrimSpace(p.Values[i]), 10)
			if !ok || v.Sign() < 0 {
				return governance.Proposal{}, agenterr.New(agenterr.CodeUsage,
					fmt.Sprintf("invalid proposal value %q", p.Values[i]))
			}
			value = v
		}
		out.Targets = append(out.Targets, target)
		out.Values = append(out.Values, value)
		out.Calldatas = append(out.Calldatas, common.FromHex(strings.TrimSpace(p.Calldatas[i])))
	}
	return out, nil
}

const proposeInstructions = `Extract the governance proposal as JSON:
{"governor": "<0x governor address or empty>", "targets": ["<0x address>"], "values": ["<wei amount, 0 if unspecified>"], "calldatas": ["<0x hex calldata, 0x if none>"], "description": "<full proposal description>", "chain": "<chain name or empty>"}`

func ProposeAction() Action {
	return Action{
		Name:        "governance-propose",
		Description: "Create an on-chain governance proposal",
		Triggers:    []string{"propose", "proposal", "submit to governance"},
		Examples: []string{
			"propose transferring 1000 USDC from the treasury to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		},
		Handler: handlePropose,
	}
}

func handlePropose(ctx context.Context, deps Deps, conversation string) (Result, error) {
	var p proposalParams
	if err := deps.Extractor.Extract(ctx, conversation, proposeInstructions, &p); err != nil {
		return Result{}, agenterr.Wrap(agenterr.CodeUsage, "extract proposal parameters", err)
	}
	governor, err := governanceTarget(deps, p.Governor)
	if err != nil {
		return Result{}, err
	}
	proposal, err := p.toProposal()
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(p.Chain) != "" {
		if _, err := deps.Wallet.SwitchChain(p.Chain); err != nil {
			return Result{}, err
		}
	}

	backend, cleanup, err := deps.BackendFor(ctx)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	gov := governance.NewGovernor(backend, governor)
	receipt, err := gov.Propose(ctx, proposal)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text: fmt.Sprintf("Created proposal %s on governor %s. Voting opens after the voting delay. Transaction: %s",
			receipt.ProposalID, governor.Hex(), receipt.Tx.Hash.Hex()),
		Data: model.GovernanceStatus{ProposalID: receipt.ProposalID.String(), State: governance.StatePending.String()},
		Tx:   recordToModel(receipt.Tx),
	}, nil
}

type voteParams struct {
	Governor   string `json:"governor"`
	ProposalID string `json:"proposal_id"`
	Support    string `json:"support"`
	Chain      string `json:"chain"`
}

const voteInstructions = `Extract the governance vote as JSON:
{"governor": "<0x governor address or empty>", "proposal_id": "<decimal proposal id>", "support": "<for|against|abstain>", "chain": "<chain name or empty>"}`

func VoteAction() Action {
	return Action{
		Name:        "governance-vote",
		Description: "Cast a vote on an active governance proposal",
		Triggers:    []string{"vote", "cast"},
		Examples: []string{
			"vote for proposal 42",
			"vote against proposal 17 on the governor at 0x1234...",
		},
		Handler: handleVote,
	}
}

func handleVote(ctx context.Context, deps Deps, conversation string) (Result, error) {
	var p voteParams
	if err := deps.Extractor.Extract(ctx, conversation, voteInstructions, &p); err != nil {
		return Result{}, agenterr.Wrap(agenterr.CodeUsage, "extract vote parameters", err)
	}
	governor, err := governanceTarget(deps, p.Governor)
	if err != nil {
		return Result{}, err
	}
	proposalID, ok := new(big.Int).SetString(strings.TrimSpace(p.ProposalID), 10)
	if !ok {
		return Result{}, agenterr.New(agenterr.CodeUsage, fmt.Sprintf("invalid proposal id %q", p.ProposalID))
	}
	support, err := governance.ParseVoteSupport(strings.ToLower(strings.TrimSpace(p.Support)))
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.CodeUsage, "parse vote support", err)
	}
	if strings.TrimSpace(p.Chain) != "" {
		if _, err := deps.Wallet.SwitchChain(p.Chain); err != nil {
			return Result{}, err
		}
	}

	backend, cleanup, err := deps.BackendFor(ctx)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	gov := governance.NewGovernor(backend, governor)
	rec, err := gov.CastVote(ctx, proposalID, support)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text: fmt.Sprintf("Voted %s on proposal %s. Transaction: %s", support, proposalID, rec.Hash.Hex()),
		Tx:   recordToModel(rec),
	}, nil
}

func QueueAction() Action {
	return Action{
		Name:        "governance-queue",
		Description: "Queue a succeeded proposal into the timelock",
		Triggers:    []string{"queue"},
		Examples: []string{
			"queue the treasury transfer proposal",
		},
		Handler: handleQueue,
	}
}

func handleQueue(ctx context.Context, deps Deps, conversation string) (Result, error) {
	return handleLifecycleStep(ctx, deps, conversation, "queue")
}

func ExecuteAction() Action {
	return Action{
		Name:        "governance-execute",
		Description: "Execute a queued proposal after its timelock delay",
		Triggers:    []string{"execute"},
		Examples: []string{
			"execute proposal 42 now that the timelock expired",
		},
		Handler: handleExecute,
	}
}

func handleExecute(ctx context.Context, deps Deps, conversation string) (Result, error) {
	return handleLifecycleStep(ctx, deps, conversation, "execute")
}

// Queue and execute need the full proposal content again: the governor only
// stores the hash, so the conversation must restate targets and description.
func handleLifecycleStep(ctx context.Context, deps Deps, conversation, step string) (Result, error) {
	var p proposalParams
	if err := deps.Extractor.Extract(ctx, conversation, proposeInstructions, &p); err != nil {
		return Result{}, agenterr.Wrap(agenterr.CodeUsage, "extract "+step+" parameters", err)
	}
	governor, err := governanceTarget(deps, p.Governor)
	if err != nil {
		return Result{}, err
	}
	proposal, err := p.toProposal()
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(p.Chain) != "" {
		if _, err := deps.Wallet.SwitchChain(p.Chain); err != nil {
			return Result{}, err
		}
	}

	backend, cleanup, err := deps.BackendFor(ctx)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	gov := governance.NewGovernor(backend, governor)
	proposalID, err := governance.ProposalID(proposal)
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.CodeInternal, "derive proposal id", err)
	}

	switch step {
	case "queue":
		tx, err := gov.Queue(ctx, proposal)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Text: fmt.Sprintf("Queued proposal %s into the timelock. Execute after the delay elapses. Transaction: %s",
				proposalID, tx.Hash.Hex()),
			Data: model.GovernanceStatus{ProposalID: proposalID.String(), State: governance.StateQueued.String()},
			Tx:   recordToModel(tx),
		}, nil
	case "execute":
		tx, err := gov.Execute(ctx, proposal)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Text: fmt.Sprintf("Executed proposal %s. Transaction: %s", proposalID, tx.Hash.Hex()),
			Data: model.GovernanceStatus{ProposalID: proposalID.String(), State: governance.StateExecuted.String()},
			Tx:   recordToModel(tx),
		}, nil
	default:
		return Result{}, agenterr.New(agenterr.CodeInternal, "unknown lifecycle step "+step)
	}
}
