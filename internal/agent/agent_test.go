package agent

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/actions"
	"github.com/hyphalabs/evm-agent/internal/chains"
	"github.com/hyphalabs/evm-agent/internal/config"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/execution"
	"github.com/hyphalabs/evm-agent/internal/execution/signer"
	"github.com/hyphalabs/evm-agent/internal/params"
	"github.com/hyphalabs/evm-agent/internal/wallet"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type replayBackend struct {
	chainID   int64
	from      common.Address
	submitted []execution.TxRequest
	submitErr error
}

func (b *replayBackend) ChainID() int64       { return b.chainID }
func (b *replayBackend) From() common.Address { return b.from }

func (b *replayBackend) Call(context.Context, ethereum.CallMsg) ([]byte, error) {
	return nil, agenterr.New(agenterr.CodeInternal, "unexpected call")
}

func (b *replayBackend) Submit(_ context.Context, req execution.TxRequest) (execution.TxRecord, error) {
	if b.submitErr != nil {
		return execution.TxRecord{}, b.submitErr
	}
	b.submitted = append(b.submitted, req)
	return execution.TxRecord{
		Hash:    common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000bb"),
		From:    b.from,
		To:      req.To,
		Value:   req.Value,
		ChainID: b.chainID,
		Status:  execution.TxStatusConfirmed,
	}, nil
}

func testRuntime(t *testing.T, backend *replayBackend, extractor params.Extractor) *Runtime {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	w, err := wallet.New(s, config.Settings{Chains: []string{"mainnet"}, BalanceTTL: time.Minute}, nil)
	if err != nil {
		t.Fatalf("build wallet: %v", err)
	}
	w.WithFetcher(func(context.Context, chains.Chain, common.Address) (*big.Int, error) {
		return big.NewInt(3_000_000_000_000_000_000), nil
	})
	backend.from = w.Address()
	deps := actions.Deps{
		Wallet:    w,
		Extractor: extractor,
		Settings:  config.Settings{SlippageBps: 50},
		NewBackend: func(context.Context) (execution.Backend, func(), error) {
			return backend, func() {}, nil
		},
	}
	return NewRuntime(NewPlugin(NewWalletProvider(w)), deps)
}

func TestHandleMessageRoutesTransfer(t *testing.T) {
	backend := &replayBackend{chainID: 1}
	extractor := params.NewStatic(map[string]any{
		"Wallet address": map[string]string{
			"amount":    "1",
			"token":     "ETH",
			"recipient": "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		},
	})
	rt := testRuntime(t, backend, extractor)

	reply, err := rt.HandleMessage(context.Background(), "send 1 ETH to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply.Action != "transfer" {
		t.Fatalf("routed to %s", reply.Action)
	}
	if reply.Tx == nil || len(backend.submitted) != 1 {
		t.Fatal("transfer did not submit")
	}
}

// The wallet provider's context must be prepended to what the extractor sees.
func TestHandleMessageInjectsWalletContext(t *testing.T) {
	backend := &replayBackend{chainID: 1}
	// The static extractor keys on text only the provider adds.
	extractor := params.NewStatic(map[string]any{
		"Current chain: mainnet": map[string]string{
			"amount":    "0.5",
			"token":     "ETH",
			"recipient": "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		},
	})
	rt := testRuntime(t, backend, extractor)

	if _, err := rt.HandleMessage(context.Background(), "send half an eth please"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
}

// A failing handler must name the action in its message and keep the typed
// code so the exit-code mapping still reflects the underlying failure.
func TestHandleMessageNamesFailingAction(t *testing.T) {
	backend := &replayBackend{
		chainID:   1,
		submitErr: agenterr.New(agenterr.CodeReverted, "execution reverted"),
	}
	extractor := params.NewStatic(map[string]any{
		"Wallet address": map[string]string{
			"amount":    "1",
			"token":     "ETH",
			"recipient": "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		},
	})
	rt := testRuntime(t, backend, extractor)

	_, err := rt.HandleMessage(context.Background(), "send 1 ETH to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e")
	if !agenterr.IsCode(err, agenterr.CodeReverted) {
		t.Fatalf("expected reverted error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "transfer failed: ") {
		t.Fatalf("error %q should name the failing action", err)
	}
}

func TestHandleMessageNoMatch(t *testing.T) {
	rt := testRuntime(t, &replayBackend{chainID: 1}, params.NewStatic(nil))
	_, err := rt.HandleMessage(context.Background(), "what's the weather like")
	if !agenterr.IsCode(err, agenterr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "transfer") {
		t.Fatalf("error should list actions: %v", err)
	}
}

func TestHandleMessageEmpty(t *testing.T) {
	rt := testRuntime(t, &replayBackend{chainID: 1}, params.NewStatic(nil))
	if _, err := rt.HandleMessage(context.Background(), "  "); !agenterr.IsCode(err, agenterr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestPluginActionInfos(t *testing.T) {
	plugin := NewPlugin()
	infos := plugin.ActionInfos()
	if len(infos) != 7 {
		t.Fatalf("got %d actions, want 7", len(infos))
	}
	names := map[string]bool{}
	for _, info := range infos {
		names[info.Name] = true
	}
	for _, want := range []string{"transfer", "swap", "bridge", "governance-propose", "governance-vote", "governance-queue", "governance-execute"} {
		if !names[want] {
			t.Fatalf("missing action %s", want)
		}
	}
}
