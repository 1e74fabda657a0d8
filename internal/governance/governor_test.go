package governance

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/execution"
	"github.com/hyphalabs/evm-agent/internal/registry"
)

type stubBackend struct {
	chainID int64
	from    common.Address
	call    func(msg ethereum.CallMsg) ([]byte, error)
	submit  func(req execution.TxRequest) (execution.TxRecord, error)

	submitted []execution.TxRequest
}

func (s *stubBackend) ChainID() int64       { return s.chainID }
func (s *stubBackend) From() common.Address { return s.from }

func (s *stubBackend) Call(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return s.call(msg)
}

func (s *stubBackend) Submit(_ context.Context, req execution.TxRequest) (execution.TxRecord, error) {
	s.submitted = append(s.submitted, req)
	if s.submit != nil {
		return s.submit(req)
	}
	return execution.TxRecord{
		From:    s.from,
		To:      req.To,
		Value:   req.Value,
		Data:    req.Data,
		ChainID: s.chainID,
		Status:  execution.TxStatusConfirmed,
	}, nil
}

func mustGovernorABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(registry.GovernorABI))
	if err != nil {
		t.Fatalf("parse governor abi: %v", err)
	}
	return parsed
}

var govAddr = common.HexToAddress("0x9999999999999999999999999999999999999999")

func TestProposeRecoversIDFromLog(t *testing.T) {
	parsed := mustGovernorABI(t)
	p := sampleProposal()
	wantID := big.NewInt(424242)

	event := parsed.Events["ProposalCreated"]
	logData, err := event.Inputs.Pack(
		wantID,
		common.HexToAddress("0x7777777777777777777777777777777777777777"),
		p.Targets,
		p.Values,
		[]string{""},
		p.Calldatas,
		big.NewInt(100),
		big.NewInt(200),
		p.Description,
	)
	if err != nil {
		t.Fatalf("pack ProposalCreated data: %v", err)
	}

	backend := &stubBackend{
		chainID: 1,
		from:    common.HexToAddress("0x7777777777777777777777777777777777777777"),
		submit: func(req execution.TxRequest) (execution.TxRecord, error) {
			return execution.TxRecord{
				To:      req.To,
				Data:    req.Data,
				ChainID: 1,
				Status:  execution.TxStatusConfirmed,
				Logs: []execution.LogRecord{
					{Address: govAddr, Topics: []common.Hash{event.ID}, Data: logData},
				},
			}, nil
		},
	}

	gov := NewGovernor(backend, govAddr)
	receipt, err := gov.Propose(context.Background(), p)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if receipt.ProposalID.Cmp(wantID) != 0 {
		t.Fatalf("proposal id = %s, want %s", receipt.ProposalID, wantID)
	}
	if len(backend.submitted) != 1 || backend.submitted[0].To != govAddr {
		t.Fatalf("expected one submission to the governor, got %+v", backend.submitted)
	}
}

func TestProposeFallsBackToComputedID(t *testing.T) {
	p := sampleProposal()
	backend := &stubBackend{chainID: 1}

	gov := NewGovernor(backend, govAddr)
	receipt, err := gov.Propose(context.Background(), p)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	want, err := ProposalID(p)
	if err != nil {
		t.Fatalf("ProposalID: %v", err)
	}
	if receipt.ProposalID.Cmp(want) != 0 {
		t.Fatalf("proposal id = %s, want locally computed %s", receipt.ProposalID, want)
	}
}

func TestProposeRequiresDescription(t *testing.T) {
	p := sampleProposal()
	p.Description = "   "
	gov := NewGovernor(&stubBackend{chainID: 1}, govAddr)
	if _, err := gov.Propose(context.Background(), p); err == nil {
		t.Fatal("expected error for blank description")
	}
}

func TestCastVotePacksSupport(t *testing.T) {
	parsed := mustGovernorABI(t)
	backend := &stubBackend{chainID: 1}
	gov := NewGovernor(backend, govAddr)

	id := big.NewInt(55)
	if _, err := gov.CastVote(context.Background(), id, VoteFor); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	want, err := parsed.Pack("castVote", id, uint8(VoteFor))
	if err != nil {
		t.Fatalf("pack castVote: %v", err)
	}
	if len(backend.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(backend.submitted))
	}
	if common.Bytes2Hex(backend.submitted[0].Data) != common.Bytes2Hex(want) {
		t.Fatal("castVote calldata mismatch")
	}
}

func TestQueueUsesDescriptionHash(t *testing.T) {
	parsed := mustGovernorABI(t)
	p := sampleProposal()
	backend := &stubBackend{chainID: 1}
	gov := NewGovernor(backend, govAddr)

	if _, err := gov.Queue(context.Background(), p); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	want, err := parsed.Pack("queue", p.Targets, p.Values, p.Calldatas, DescriptionHash(p.Description))
	if err != nil {
		t.Fatalf("pack queue: %v", err)
	}
	if common.Bytes2Hex(backend.submitted[0].Data) != common.Bytes2Hex(want) {
		t.Fatal("queue calldata mismatch")
	}
}

func TestExecuteSubmitsZeroValue(t *testing.T) {
	p := sampleProposal()
	p.Targets = append(p.Targets, common.HexToAddress("0x2222222222222222222222222222222222222222"))
	p.Values = []*big.Int{big.NewInt(3), big.NewInt(4)}
	p.Calldatas = append(p.Calldatas, []byte{})

	backend := &stubBackend{chainID: 1}
	gov := NewGovernor(backend, govAddr)
	if _, err := gov.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// The timelock pays for the operations it releases; even a proposal with
	// nonzero values must not fund the execute call itself.
	if got := backend.submitted[0].Value; got != nil && got.Sign() != 0 {
		t.Fatalf("execute submitted value = %s, want zero-value transaction", got)
	}
}

func TestParseVoteSupport(t *testing.T) {
	cases := map[string]VoteSupport{
		"for": VoteFor, "yes": VoteFor, "1": VoteFor,
		"against": VoteAgainst, "no": VoteAgainst, "0": VoteAgainst,
		"abstain": VoteAbstain, "2": VoteAbstain,
	}
	for in, want := range cases {
		got, err := ParseVoteSupport(in)
		if err != nil {
			t.Fatalf("ParseVoteSupport(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseVoteSupport(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseVoteSupport("maybe"); err == nil {
		t.Fatal("expected error for invalid support")
	}
}
