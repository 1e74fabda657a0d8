package governance

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/execution"
	"github.com/hyphalabs/evm-agent/internal/registry"
)

var (
	governorParseOnce sync.Once
	governorABI       abi.ABI
	timelockABI       abi.ABI
	governorParseErr  error
)

func parsedABIs() (abi.ABI, abi.ABI, error) {
	governorParseOnce.Do(func() {
		governorABI, governorParseErr = abi.JSON(strings.NewReader(registry.GovernorABI))
		if governorParseErr != nil {
			return
		}
		timelockABI, governorParseErr = abi.JSON(strings.NewReader(registry.TimelockControllerABI))
	})
	return governorABI, timelockABI, governorParseErr
}

// Governor drives an OpenZeppelin Governor plus its TimelockController
// through the full lifecycle: propose, vote, queue, execute.
type Governor struct {
	backend  execution.Backend
	governor common.Address
}

func NewGovernor(backend execution.Backend, governor common.Address) *Governor {
	return &Governor{backend: backend, governor: governor}
}

func (g *Governor) Address() common.Address { return g.governor }

// ProposalReceipt ties a submitted governance transaction to the proposal id
// the governor assigned it.
type ProposalReceipt struct {
	ProposalID *big.Int
	Tx         execution.TxRecord
}

// Propose submits the proposal and recovers the on-chain proposal id, first
// from the ProposalCreated log and falling back to the locally computed hash.
func (g *Governor) Propose(ctx context.Context, p Proposal) (ProposalReceipt, error) {
	parsed, _, err := parsedABIs()
	if err != nil {
		return ProposalReceipt{}, agenterr.Wrap(agenterr.CodeInternal, "parse governor abi", err)
	}
	if err := p.Validate(); err != nil {
		return ProposalReceipt{}, agenterr.Wrap(agenterr.CodeUsage, "invalid proposal", err)
	}
	if strings.TrimSpace(p.Description) == "" {
		return ProposalReceipt{}, agenterr.New(agenterr.CodeUsage, "proposal description is required")
	}
	data, err := parsed.Pack("propose", p.Targets, p.Values, p.Calldatas, p.Description)
	if err != nil {
		return ProposalReceipt{}, agenterr.Wrap(agenterr.CodeInternal, "pack propose", err)
	}
	rec, err := g.backend.Submit(ctx, execution.TxRequest{
		To:          g.governor,
		Data:        data,
		Kind:        "governance_propose",
		Description: summarize(p.Description),
	})
	if err != nil {
		return ProposalReceipt{Tx: rec}, err
	}

	if id, ok := proposalIDFromLogs(parsed, rec.Logs); ok {
		return ProposalReceipt{ProposalID: id, Tx: rec}, nil
	}
	id, err := ProposalID(p)
	if err != nil {
		return ProposalReceipt{Tx: rec}, agenterr.Wrap(agenterr.CodeInternal, "derive proposal id", err)
	}
	return ProposalReceipt{ProposalID: id, Tx: rec}, nil
}

// CastVote votes on an active proposal.
func (g *Governor) CastVote(ctx context.Context, proposalID *big.Int, support VoteSupport) (execution.TxRecord, error) {
	parsed, _, err := parsedABIs()
	if err != nil {
		return execution.TxRecord{}, agenterr.Wrap(agenterr.CodeInternal, "parse governor abi", err)
	}
	if proposalID == nil {
		return execution.TxRecord{}, agenterr.New(agenterr.CodeUsage, "missing proposal id")
	}
	data, err := parsed.Pack("castVote", proposalID, uint8(support))
	if err != nil {
		return execution.TxRecord{}, agenterr.Wrap(agenterr.CodeInternal, "pack castVote", err)
	}
	return g.backend.Submit(ctx, execution.TxRequest{
		To:          g.governor,
		Data:        data,
		Kind:        "governance_vote",
		Description: fmt.Sprintf("vote %s on proposal %s", support, proposalID),
	})
}

// Queue moves a succeeded proposal into the timelock.
func (g *Governor) Queue(ctx context.Context, p Proposal) (execution.TxRecord, error) {
	parsed, _, err := parsedABIs()
	if err != nil {
		return execution.TxRecord{}, agenterr.Wrap(agenterr.CodeInternal, "parse governor abi", err)
	}
	if err := p.Validate(); err != nil {
		return execution.TxRecord{}, agenterr.Wrap(agenterr.CodeUsage, "invalid proposal", err)
	}
	data, err := parsed.Pack("queue", p.Targets, p.Values, p.Calldatas, DescriptionHash(p.Description))
	if err != nil {
		return execution.TxRecord{}, agenterr.Wrap(agenterr.CodeInternal, "pack queue", err)
	}
	return g.backend.Submit(ctx, execution.TxRequest{
		To:          g.governor,
		Data:        data,
		Kind:        "governance_queue",
		Description: summarize(p.Description),
	})
}

// Execute runs a queued proposal once its timelock delay has elapsed. The
// transaction itself carries no value: the timelock funds the operations it
// releases, so the proposal's values are spent from its balance, not ours.
func (g *Governor) Execute(ctx context.Context, p Proposal) (execution.TxRecord, error) {
	parsed, _, err := parsedABIs()
	if err != nil {
		return execution.TxRecord{}, agenterr.Wrap(agenterr.CodeInternal, "parse governor abi", err)
	}
	if err := p.Validate(); err != nil {
		return execution.TxRecord{}, agenterr.Wrap(agenterr.CodeUsage, "invalid proposal", err)
	}
	data, err := parsed.Pack("execute", p.Targets, p.Values, p.Calldatas, DescriptionHash(p.Description))
	if err != nil {
		return execution.TxRecord{}, agenterr.Wrap(agenterr.CodeInternal, "pack execute", err)
	}
	return g.backend.Submit(ctx, execution.TxRequest{
		To:          g.governor,
		Data:        data,
		Kind:        "governance_execute",
		Description: summarize(p.Description),
	})
}

func proposalIDFromLogs(parsed abi.ABI, logs []execution.LogRecord) (*big.Int, bool) {
	event, ok := parsed.Events["ProposalCreated"]
	if !ok {
		return nil, false
	}
	for _, lg := range logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}
		vals, err := event.Inputs.Unpack(lg.Data)
		if err != nil || len(vals) == 0 {
			continue
		}
		if id, ok := vals[0].(*big.Int); ok {
			return id, true
		}
	}
	return nil, false
}

func summarize(description string) string {
	clean := strings.TrimSpace(description)
	if idx := strings.IndexByte(clean, '\n'); idx >= 0 {
		clean = clean[:idx]
	}
	if len(clean) > 120 {
		clean = clean[:117] + "..."
	}
	return clean
}
