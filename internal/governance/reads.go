package governance

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
)

// VoteTally is the proposalVotes triple.
type VoteTally struct {
	Against *big.Int
	For     *big.Int
	Abstain *big.Int
}

// Status is everything the agent reports about one proposal in one view.
type Status struct {
	ProposalID *big.Int
	State      ProposalState
	Votes      VoteTally
	Snapshot   *big.Int
	Deadline   *big.Int
	ETA        *big.Int
}

func (g *Governor) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "pack "+method, err)
	}
	out, err := g.backend.Call(ctx, ethereum.CallMsg{From: g.backend.From(), To: &to, Data: data})
	if err != nil {
		return nil, err
	}
	vals, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeUnavailable, "decode "+method, err)
	}
	return vals, nil
}

func (g *Governor) callUint(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) (*big.Int, error) {
	vals, err := g.call(ctx, to, parsed, method, args...)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, agenterr.New(agenterr.CodeUnavailable, method+" returned no value")
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, agenterr.New(agenterr.CodeUnavailable, "unexpected "+method+" type")
	}
	return v, nil
}

// State reads the governor's state machine for a proposal.
func (g *Governor) State(ctx context.Context, proposalID *big.Int) (ProposalState, error) {
	parsed, _, err := parsedABIs()
	if err != nil {
		return 0, agenterr.Wrap(agenterr.CodeInternal, "parse governor abi", err)
	}
	vals, err := g.call(ctx, g.governor, parsed, "state", proposalID)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, agenterr.New(agenterr.CodeUnavailable, "state returned no value")
	}
	raw, ok := vals[0].(uint8)
	if !ok {
		return 0, agenterr.New(agenterr.CodeUnavailable, "unexpected state type")
	}
	return ProposalState(raw), nil
}

// Votes reads the current tally for a proposal.
func (g *Governor) Votes(ctx context.Context, proposalID *big.Int) (VoteTally, error) {
	parsed, _, err := parsedABIs()
	if err != nil {
		return VoteTally{}, agenterr.Wrap(agenterr.CodeInternal, "parse governor abi", err)
	}
	vals, err := g.call(ctx, g.governor, parsed, "proposalVotes", proposalID)
	if err != nil {
		return VoteTally{}, err
	}
	if len(vals) != 3 {
		return VoteTally{}, agenterr.New(agenterr.CodeUnavailable, "unexpected proposalVotes shape")
	}
	against, ok1 := vals[0].(*big.Int)
	forVotes, ok2 := vals[1].(*big.Int)
	abstain, ok3 := vals[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return VoteTally{}, agenterr.New(agenterr.CodeUnavailable, "unexpected proposalVotes types")
	}
	return VoteTally{Against: against, For: forVotes, Abstain: abstain}, nil
}

// VotingDelay reads the blocks between proposal creation and vote start.
func (g *Governor) VotingDelay(ctx context.Context) (*big.Int, error) {
	parsed, _, err := parsedABIs()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "parse governor abi", err)
	}
	return g.callUint(ctx, g.governor, parsed, "votingDelay")
}

// VotingPeriod reads the length of the voting window in blocks.
func (g *Governor) VotingPeriod(ctx context.Context) (*big.Int, error) {
	parsed, _, err := parsedABIs()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "parse governor abi", err)
	}
	return g.callUint(ctx, g.governor, parsed, "votingPeriod")
}

// Timelock reads the governor's attached timelock controller address.
func (g *Governor) Timelock(ctx context.Context) (common.Address, error) {
	parsed, _, err := parsedABIs()
	if err != nil {
		return common.Address{}, agenterr.Wrap(agenterr.CodeInternal, "parse governor abi", err)
	}
	vals, err := g.call(ctx, g.governor, parsed, "timelock")
	if err != nil {
		return common.Address{}, err
	}
	if len(vals) == 0 {
		return common.Address{}, agenterr.New(agenterr.CodeUnavailable, "timelock returned no value")
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, agenterr.New(agenterr.CodeUnavailable, "unexpected timelock type")
	}
	return addr, nil
}

// ProposalStatus aggregates state, votes, snapshot, deadline, and eta.
func (g *Governor) ProposalStatus(ctx context.Context, proposalID *big.Int) (Status, error) {
	parsed, _, err := parsedABIs()
	if err != nil {
		return Status{}, agenterr.Wrap(agenterr.CodeInternal, "parse governor abi", err)
	}
	state, err := g.State(ctx, proposalID)
	if err != nil {
		return Status{}, err
	}
	votes, err := g.Votes(ctx, proposalID)
	if err != nil {
		return Status{}, err
	}
	snapshot, err := g.callUint(ctx, g.governor, parsed, "proposalSnapshot", proposalID)
	if err != nil {
		return Status{}, err
	}
	deadline, err := g.callUint(ctx, g.governor, parsed, "proposalDeadline", proposalID)
	if err != nil {
		return Status{}, err
	}
	eta, err := g.callUint(ctx, g.governor, parsed, "proposalEta", proposalID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		ProposalID: proposalID,
		State:      state,
		Votes:      votes,
		Snapshot:   snapshot,
		Deadline:   deadline,
		ETA:        eta,
	}, nil
}

// MinDelay reads the timelock's minimum execution delay in seconds.
func (g *Governor) MinDelay(ctx context.Context, timelock common.Address) (*big.Int, error) {
	_, parsed, err := parsedABIs()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "parse timelock abi", err)
	}
	return g.callUint(ctx, timelock, parsed, "getMinDelay")
}

// OperationStatus classifies a timelock operation id.
func (g *Governor) OperationStatus(ctx context.Context, timelock common.Address, operationID common.Hash) (OperationState, error) {
	_, parsed, err := parsedABIs()
	if err != nil {
		return "", agenterr.Wrap(agenterr.CodeInternal, "parse timelock abi", err)
	}
	readBool := func(method string) (bool, error) {
		vals, err := g.call(ctx, timelock, parsed, method, operationID)
		if err != nil {
			return false, err
		}
		if len(vals) == 0 {
			return false, agenterr.New(agenterr.CodeUnavailable, method+" returned no value")
		}
		b, ok := vals[0].(bool)
		if !ok {
			return false, agenterr.New(agenterr.CodeUnavailable, "unexpected "+method+" type")
		}
		return b, nil
	}

	done, err := readBool("isOperationDone")
	if err != nil {
		return "", err
	}
	if done {
		return OperationDone, nil
	}
	ready, err := readBool("isOperationReady")
	if err != nil {
		return "", err
	}
	if ready {
		return OperationReady, nil
	}
	pending, err := readBool("isOperationPending")
	if err != nil {
		return "", err
	}
	if pending {
		return OperationWaiting, nil
	}
	return OperationUnset, nil
}
