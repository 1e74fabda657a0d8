package actions

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hyphalabs/evm-agent/internal/chains"
	"github.com/hyphalabs/evm-agent/internal/config"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/execution"
	"github.com/hyphalabs/evm-agent/internal/execution/signer"
	"github.com/hyphalabs/evm-agent/internal/params"
	"github.com/hyphalabs/evm-agent/internal/registry"
	"github.com/hyphalabs/evm-agent/internal/wallet"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	tokenAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	recipient = common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e")
)

// stubBackend answers ERC-20 view calls from fixed fields and records every
// submission.
type stubBackend struct {
	t         *testing.T
	chainID   int64
	from      common.Address
	decimals  uint8
	balance   *big.Int
	allowance *big.Int

	submitted []execution.TxRequest
	submitErr map[int]error // by submission index
}

func (s *stubBackend) ChainID() int64       { return s.chainID }
func (s *stubBackend) From() common.Address { return s.from }

func (s *stubBackend) Call(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	if err != nil {
		s.t.Fatalf("parse erc20 abi: %v", err)
	}
	if len(msg.Data) < 4 {
		s.t.Fatal("short calldata")
	}
	for name, method := range parsed.Methods {
		if common.Bytes2Hex(method.ID) != common.Bytes2Hex(msg.Data[:4]) {
			continue
		}
		switch name {
		case "decimals":
			return method.Outputs.Pack(s.decimals)
		case "balanceOf":
			return method.Outputs.Pack(s.balance)
		case "allowance":
			return method.Outputs.Pack(s.allowance)
		}
	}
	s.t.Fatalf("unexpected call %x", msg.Data[:4])
	return nil, nil
}

func (s *stubBackend) Submit(_ context.Context, req execution.TxRequest) (execution.TxRecord, error) {
	idx := len(s.submitted)
	s.submitted = append(s.submitted, req)
	if err, ok := s.submitErr[idx]; ok {
		return execution.TxRecord{}, err
	}
	return execution.TxRecord{
		Hash:    common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa"),
		From:    s.from,
		To:      req.To,
		Value:   req.Value,
		Data:    req.Data,
		ChainID: s.chainID,
		Status:  execution.TxStatusConfirmed,
	}, nil
}

func testDeps(t *testing.T, backend *stubBackend, extractor params.Extractor, nativeBalance *big.Int) Deps {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	w, err := wallet.New(s, config.Settings{
		Chains:     []string{"mainnet", "base"},
		BalanceTTL: time.Minute,
	}, nil)
	if err != nil {
		t.Fatalf("build wallet: %v", err)
	}
	w.WithFetcher(func(_ context.Context, _ chains.Chain, _ common.Address) (*big.Int, error) {
		if nativeBalance == nil {
			return big.NewInt(0), nil
		}
		return nativeBalance, nil
	})
	backend.from = w.Address()
	return Deps{
		Wallet:    w,
		Extractor: extractor,
		Settings:  config.Settings{SlippageBps: 50},
		NewBackend: func(context.Context) (execution.Backend, func(), error) {
			return backend, func() {}, nil
		},
	}
}

func TestTransferNative(t *testing.T) {
	backend := &stubBackend{t: t, chainID: 1}
	extractor := params.NewStatic(map[string]any{
		"send": transferParams{Amount: "0.5", Token: "ETH", Recipient: recipient.Hex()},
	})
	deps := testDeps(t, backend, extractor, big.NewInt(2_000_000_000_000_000_000))

	res, err := TransferAction().Handler(context.Background(), deps, "send 0.5 ETH to "+recipient.Hex())
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(backend.submitted) != 1 {
		t.Fatalf("submitted %d txs, want 1", len(backend.submitted))
	}
	tx := backend.submitted[0]
	if tx.To != recipient || tx.Value.Cmp(big.NewInt(500_000_000_000_000_000)) != 0 || len(tx.Data) != 0 {
		t.Fatalf("unexpected tx %+v", tx)
	}
	if res.Tx == nil || res.Tx.Status != string(execution.TxStatusConfirmed) {
		t.Fatalf("result tx %+v", res.Tx)
	}
	if !strings.Contains(res.Text, "0.5 ETH") {
		t.Fatalf("reply %q", res.Text)
	}
}

func TestTransferExceedingBalanceIsBlocked(t *testing.T) {
	backend := &stubBackend{t: t, chainID: 1}
	extractor := params.NewStatic(map[string]any{
		"send": transferParams{Amount: "5", Token: "ETH", Recipient: recipient.Hex()},
	})
	deps := testDeps(t, backend, extractor, big.NewInt(1_000_000_000_000_000_000))

	_, err := TransferAction().Handler(context.Background(), deps, "send 5 ETH")
	if !agenterr.IsCode(err, agenterr.CodeBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
	if !strings.Contains(err.Error(), "transfer exceeds balance") {
		t.Fatalf("error message %q", err.Error())
	}
	if len(backend.submitted) != 0 {
		t.Fatal("must not broadcast when balance is short")
	}
}

func TestTransferERC20(t *testing.T) {
	backend := &stubBackend{
		t:       t,
		chainID: 1,
		// 6-decimal token with a 1000.00 balance.
		decimals: 6,
		balance:  big.NewInt(1_000_000_000),
	}
	extractor := params.NewStatic(map[string]any{
		"transfer": transferParams{Amount: "250", Token: tokenAddr.Hex(), Recipient: recipient.Hex()},
	})
	deps := testDeps(t, backend, extractor, nil)

	_, err := TransferAction().Handler(context.Background(), deps, "transfer 250 USDC")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(backend.submitted) != 1 {
		t.Fatalf("submitted %d txs, want 1", len(backend.submitted))
	}
	tx := backend.submitted[0]
	if tx.To != tokenAddr {
		t.Fatalf("tx target %s, want token", tx.To.Hex())
	}
	// transfer(address,uint256) with 250e6.
	if common.Bytes2Hex(tx.Data[:4]) != "a9059cbb" {
		t.Fatalf("selector %x", tx.Data[:4])
	}
	amount := new(big.Int).SetBytes(tx.Data[36:68])
	if amount.Cmp(big.NewInt(250_000_000)) != 0 {
		t.Fatalf("amount %s", amount)
	}
}

func TestTransferSwitchesChain(t *testing.T) {
	backend := &stubBackend{t: t, chainID: 8453}
	extractor := params.NewStatic(map[string]any{
		"send": transferParams{Amount: "0.1", Token: "ETH", Recipient: recipient.Hex(), Chain: "base"},
	})
	deps := testDeps(t, backend, extractor, big.NewInt(1_000_000_000_000_000_000))

	if _, err := TransferAction().Handler(context.Background(), deps, "send 0.1 ETH on base"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := deps.Wallet.CurrentChain().Name; got != "base" {
		t.Fatalf("current chain %s, want base", got)
	}
}

func TestActionMatching(t *testing.T) {
	transfer := TransferAction()
	if !transfer.Match("Please SEND 1 eth to alice") {
		t.Fatal("transfer should match send requests")
	}
	if transfer.Match("what is my balance") {
		t.Fatal("transfer must not match balance queries")
	}
	vote := VoteAction()
	if !vote.Match("vote for proposal 42") {
		t.Fatal("vote should match")
	}
}
