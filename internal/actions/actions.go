// Package actions implements the operations the agent can perform on behalf
// of its wallet: transfers, swaps, bridges, and governance.
package actions

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/config"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/execution"
	"github.com/hyphalabs/evm-agent/internal/model"
	"github.com/hyphalabs/evm-agent/internal/params"
	"github.com/hyphalabs/evm-agent/internal/wallet"
)

// Deps carries everything a handler needs. NewBackend dials the wallet's
// current chain in production; tests install a stub.
type Deps struct {
	Wallet     *wallet.Wallet
	Extractor  params.Extractor
	Router     *Router
	Settings   config.Settings
	NewBackend func(ctx context.Context) (execution.Backend, func(), error)
}

// BackendFor returns a submission backend and its cleanup.
func (d Deps) BackendFor(ctx context.Context) (execution.Backend, func(), error) {
	if d.NewBackend != nil {
		return d.NewBackend(ctx)
	}
	backend, err := d.Wallet.Backend(ctx)
	if err != nil {
		return nil, nil, err
	}
	return backend, backend.Close, nil
}

// Result is what an action hands back to the conversation loop.
type Result struct {
	Text string
	Data any
	Tx   *model.TransactionRecord
}

// Action pairs intent matching with a handler.
type Action struct {
	Name        string
	Description string
	Triggers    []string
	Examples    []string
	Handler     func(ctx context.Context, deps Deps, conversation string) (Result, error)
}

// Match reports whether the message looks like a request for this action.
// Matching is keyword-based; the extractor resolves the details afterwards.
func (a Action) Match(message string) bool {
	lower := strings.ToLower(message)
	for _, trigger := range a.Triggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

func (a Action) Info() model.ActionInfo {
	return model.ActionInfo{Name: a.Name, Description: a.Description, Examples: a.Examples}
}

// All returns every action the plugin registers. Order matters for intent
// matching: governance verbs come first so "propose transferring funds"
// routes to propose rather than transfer, and bridge precedes swap and
// transfer for the same reason.
func All() []Action {
	return []Action{
		ProposeAction(),
		VoteAction(),
		QueueAction(),
		ExecuteAction(),
		BridgeAction(),
		SwapAction(),
		TransferAction(),
	}
}

func parseAddress(field, raw string) (common.Address, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return common.Address{}, agenterr.New(agenterr.CodeUsage, "missing "+field)
	}
	if !common.IsHexAddress(clean) {
		return common.Address{}, agenterr.New(agenterr.CodeUsage, fmt.Sprintf("invalid %s %q", field, raw))
	}
	return common.HexToAddress(clean), nil
}

// parseToken resolves a token parameter: empty or a native-symbol spelling
// means the chain's native asset (zero address).
func parseToken(raw, nativeSymbol string) (common.Address, bool, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" || strings.EqualFold(clean, nativeSymbol) || strings.EqualFold(clean, "native") {
		return common.Address{}, true, nil
	}
	if !common.IsHexAddress(clean) {
		return common.Address{}, false, agenterr.New(agenterr.CodeUsage,
			fmt.Sprintf("token %q is neither the native symbol nor an address", raw))
	}
	return common.HexToAddress(clean), false, nil
}

func recordToModel(rec execution.TxRecord) *model.TransactionRecord {
	out := &model.TransactionRecord{
		Hash:    rec.Hash.Hex(),
		From:    rec.From.Hex(),
		To:      rec.To.Hex(),
		ChainID: rec.ChainID,
		Status:  string(rec.Status),
	}
	if rec.Value != nil {
		out.Value = rec.Value.String()
	}
	if len(rec.Data) > 0 {
		out.Data = "0x" + common.Bytes2Hex(rec.Data)
	}
	out.Logs = len(rec.Logs)
	for _, lg := range rec.Logs {
		for _, topic := range lg.Topics {
			out.Topics = append(out.Topics, topic.Hex())
		}
	}
	return out
}

// ensureAllowance submits an approval only when the current allowance cannot
// cover the amount.
func ensureAllowance(ctx context.Context, backend execution.Backend, token, spender common.Address, amount *big.Int) (bool, error) {
	current, err := execution.Allowance(ctx, backend, token, backend.From(), spender)
	if err != nil {
		return false, err
	}
	if current.Cmp(amount) >= 0 {
		return false, nil
	}
	data, err := execution.PackApprove(spender, amount)
	if err != nil {
		return false, err
	}
	if _, err := backend.Submit(ctx, execution.TxRequest{
		To:          token,
		Data:        data,
		Kind:        "approval",
		Description: "approve spender " + spender.Hex(),
	}); err != nil {
		return false, err
	}
	return true, nil
}
