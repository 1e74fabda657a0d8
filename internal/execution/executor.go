package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/execution/signer"
)

// NodeBackend submits transactions through a JSON-RPC node with a local
// signer. It implements Backend.
type NodeBackend struct {
	client  *ethclient.Client
	signer  signer.Signer
	chainID *big.Int
	opts    Options
	journal *Journal
}

func NewNodeBackend(ctx context.Context, rpcURL string, txSigner signer.Signer, opts Options) (*NodeBackend, error) {
	if txSigner == nil {
		return nil, agenterr.New(agenterr.CodeSigner, "missing signer")
	}
	if strings.TrimSpace(rpcURL) == "" {
		return nil, agenterr.New(agenterr.CodeConfig, "missing rpc url")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeUnavailable, "connect rpc", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, agenterr.Wrap(agenterr.CodeUnavailable, "read chain id", err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	return &NodeBackend{client: client, signer: txSigner, chainID: chainID, opts: opts}, nil
}

// WithJournal attaches a journal; submitted transactions are persisted to it.
func (b *NodeBackend) WithJournal(j *Journal) *NodeBackend {
	b.journal = j
	return b
}

func (b *NodeBackend) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

func (b *NodeBackend) ChainID() int64 {
	return b.chainID.Int64()
}

func (b *NodeBackend) From() common.Address {
	return b.signer.Address()
}

func (b *NodeBackend) Client() *ethclient.Client {
	return b.client
}

func (b *NodeBackend) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	out, err := b.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeUnavailable, "eth_call", err)
	}
	return out, nil
}

// Submit simulates, prices, signs, broadcasts, and waits for the receipt of a
// single EIP-1559 transaction.
func (b *NodeBackend) Submit(ctx context.Context, req TxRequest) (TxRecord, error) {
	rec := TxRecord{
		From:    b.signer.Address(),
		To:      req.To,
		Value:   valueOrZero(req.Value),
		Data:    req.Data,
		ChainID: b.chainID.Int64(),
	}
	msg := ethereum.CallMsg{From: rec.From, To: &req.To, Value: rec.Value, Data: req.Data}

	if b.opts.Simulate {
		if _, err := b.client.CallContract(ctx, msg, nil); err != nil {
			rec.Status = TxStatusFailed
			b.record(rec, req, err)
			return rec, agenterr.Wrap(agenterr.CodeReverted, "simulate transaction (eth_call)", err)
		}
		rec.Status = TxStatusSimulated
	}

	gasLimit, err := b.client.EstimateGas(ctx, msg)
	if err != nil {
		rec.Status = TxStatusFailed
		b.record(rec, req, err)
		return rec, agenterr.Wrap(agenterr.CodeReverted, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * b.opts.GasMultiplier)

	tipCap, err := b.resolveTipCap(ctx)
	if err != nil {
		return rec, err
	}
	header, err := b.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return rec, agenterr.Wrap(agenterr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, b.opts.MaxFeeGwei)
	if err != nil {
		return rec, err
	}

	nonce, err := b.client.PendingNonceAt(ctx, rec.From)
	if err != nil {
		return rec, agenterr.Wrap(agenterr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   b.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &req.To,
		Value:     rec.Value,
		Data:      req.Data,
	})
	signed, err := b.signer.SignTx(b.chainID, tx)
	if err != nil {
		return rec, agenterr.Wrap(agenterr.CodeSigner, "sign transaction", err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		rec.Status = TxStatusFailed
		b.record(rec, req, err)
		return rec, agenterr.Wrap(agenterr.CodeUnavailable, "broadcast transaction", err)
	}
	rec.Hash = signed.Hash()
	rec.Status = TxStatusSubmitted
	b.record(rec, req, nil)

	receipt, err := b.waitReceipt(ctx, signed.Hash())
	if err != nil {
		b.record(rec, req, err)
		return rec, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		rec.Status = TxStatusReverted
		b.record(rec, req, nil)
		return rec, agenterr.New(agenterr.CodeReverted, "transaction reverted on-chain")
	}
	rec.Status = TxStatusConfirmed
	for _, lg := range receipt.Logs {
		if lg == nil {
			continue
		}
		rec.Logs = append(rec.Logs, LogRecord{Address: lg.Address, Topics: lg.Topics, Data: lg.Data})
	}
	b.record(rec, req, nil)
	return rec, nil
}

func (b *NodeBackend) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, b.opts.StepTimeout)
	defer cancel()
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := b.client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			// Transient RPC polling failures are retried until timeout.
		}
		select {
		case <-waitCtx.Done():
			return nil, agenterr.Wrap(agenterr.CodeTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (b *NodeBackend) record(rec TxRecord, req TxRequest, cause error) {
	if b.journal == nil {
		return
	}
	_ = b.journal.Record(rec, req, cause)
}

func (b *NodeBackend) resolveTipCap(ctx context.Context) (*big.Int, error) {
	if strings.TrimSpace(b.opts.MaxPriorityFeeGwei) != "" {
		v, err := parseGwei(b.opts.MaxPriorityFeeGwei)
		if err != nil {
			return nil, agenterr.Wrap(agenterr.CodeUsage, "parse max priority fee", err)
		}
		return v, nil
	}
	tipCap, err := b.client.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, agenterr.Wrap(agenterr.CodeUsage, "parse max fee", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, agenterr.New(agenterr.CodeUsage, "max fee must be >= max priority fee")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
