package governance

import "fmt"

// ProposalState mirrors the governor's state machine.
type ProposalState uint8

const (
	StatePending ProposalState = iota
	StateActive
	StateCanceled
	StateDefeated
	StateSucceeded
	StateQueued
	StateExpired
	StateExecuted
)

func (s ProposalState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateCanceled:
		return "canceled"
	case StateDefeated:
		return "defeated"
	case StateSucceeded:
		return "succeeded"
	case StateQueued:
		return "queued"
	case StateExpired:
		return "expired"
	case StateExecuted:
		return "executed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// VoteSupport encodes the castVote support values.
type VoteSupport uint8

const (
	VoteAgainst VoteSupport = 0
	VoteFor     VoteSupport = 1
	VoteAbstain VoteSupport = 2
)

func ParseVoteSupport(v string) (VoteSupport, error) {
	switch v {
	case "against", "no", "0":
		return VoteAgainst, nil
	case "for", "yes", "1":
		return VoteFor, nil
	case "abstain", "2":
		return VoteAbstain, nil
	default:
		return 0, fmt.Errorf("invalid vote support %q (expected for|against|abstain)", v)
	}
}

func (v VoteSupport) String() string {
	switch v {
	case VoteAgainst:
		return "against"
	case VoteFor:
		return "for"
	case VoteAbstain:
		return "abstain"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(v))
	}
}

// OperationState describes a timelock operation.
type OperationState string

const (
	OperationUnset   OperationState = "unset"
	OperationWaiting OperationState = "waiting"
	OperationReady   OperationState = "ready"
	OperationDone    OperationState = "done"
)
