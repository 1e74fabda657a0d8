package execution

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type TxStatus string

const (
	TxStatusSimulated TxStatus = "simulated"
	TxStatusSubmitted TxStatus = "submitted"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusReverted  TxStatus = "reverted"
	TxStatusFailed    TxStatus = "failed"
)

// TxRequest describes a single transaction to submit. Value may be nil for
// zero-value calls and Data may be empty for plain transfers.
type TxRequest struct {
	To          common.Address
	Value       *big.Int
	Data        []byte
	Kind        string
	Description string
}

// TxRecord is the durable result of a submitted transaction.
type TxRecord struct {
	Hash    common.Hash
	From    common.Address
	To      common.Address
	Value   *big.Int
	Data    []byte
	ChainID int64
	Status  TxStatus
	Logs    []LogRecord
}

// LogRecord keeps the parts of a receipt log the agent reports back.
type LogRecord struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

type Options struct {
	Simulate           bool
	PollInterval       time.Duration
	StepTimeout        time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
}

func DefaultOptions() Options {
	return Options{
		Simulate:      true,
		PollInterval:  2 * time.Second,
		StepTimeout:   2 * time.Minute,
		GasMultiplier: 1.2,
	}
}

// Backend is the narrow surface action handlers and governance calls need
// from a connected wallet. The production implementation wraps an ethclient
// plus a signer; tests substitute an in-memory stub.
type Backend interface {
	ChainID() int64
	From() common.Address
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	Submit(ctx context.Context, req TxRequest) (TxRecord, error)
}
