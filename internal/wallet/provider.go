package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hyphalabs/evm-agent/internal/cache"
	"github.com/hyphalabs/evm-agent/internal/chains"
	"github.com/hyphalabs/evm-agent/internal/config"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/execution"
	"github.com/hyphalabs/evm-agent/internal/execution/signer"
	"github.com/hyphalabs/evm-agent/internal/model"
)

// BalanceFetcher reads a native balance from a chain. Swapped out in tests.
type BalanceFetcher func(ctx context.Context, chain chains.Chain, addr common.Address) (*big.Int, error)

// Wallet is the agent's view of its own account: one signer, a set of
// registered chains, and a current chain that all actions run against.
// Balances go through a short in-memory TTL cache layered on the persisted
// cache so a restarted agent still answers immediately.
type Wallet struct {
	signer signer.Signer

	mu         sync.Mutex
	registered map[string]chains.Chain
	overrides  map[string]string
	current    chains.Chain
	memory     map[string]balanceEntry

	persisted  *cache.Store
	balanceTTL time.Duration
	execOpts   execution.Options
	journal    *execution.Journal

	fetch BalanceFetcher
	now   func() time.Time
}

type balanceEntry struct {
	value *big.Int
	at    time.Time
}

// New builds a wallet from settings. The chain list comes from the settings'
// enabled chains; an empty list registers only the default chain.
func New(txSigner signer.Signer, settings config.Settings, persisted *cache.Store) (*Wallet, error) {
	if txSigner == nil {
		return nil, agenterr.New(agenterr.CodeSigner, "wallet requires a signer")
	}
	names := settings.Chains
	if len(names) == 0 {
		name := settings.DefaultChain
		if strings.TrimSpace(name) == "" {
			name = "mainnet"
		}
		names = []string{name}
	}

	registered := make(map[string]chains.Chain, len(names))
	var current chains.Chain
	for i, name := range names {
		chain, err := chains.ByName(name)
		if err != nil {
			return nil, err
		}
		if override, ok := settings.RPCOverrides[chain.Name]; ok {
			chain = chain.WithRPC(override)
		}
		registered[chain.Name] = chain
		if i == 0 {
			current = chain
		}
	}
	if strings.TrimSpace(settings.DefaultChain) != "" {
		chain, err := chains.ByName(settings.DefaultChain)
		if err != nil {
			return nil, err
		}
		if c, ok := registered[chain.Name]; ok {
			current = c
		}
	}

	ttl := settings.BalanceTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	opts := execution.DefaultOptions()
	opts.Simulate = settings.Simulate

	return &Wallet{
		signer:     txSigner,
		registered: registered,
		overrides:  settings.RPCOverrides,
		current:    current,
		memory:     make(map[string]balanceEntry),
		persisted:  persisted,
		balanceTTL: ttl,
		execOpts:   opts,
		fetch:      fetchViaRPC,
		now:        time.Now,
	}, nil
}

// WithJournal routes submitted transactions into the journal.
func (w *Wallet) WithJournal(j *execution.Journal) *Wallet {
	w.journal = j
	return w
}

// WithFetcher replaces the balance fetcher, used by tests.
func (w *Wallet) WithFetcher(f BalanceFetcher) *Wallet {
	w.fetch = f
	return w
}

func fetchViaRPC(ctx context.Context, chain chains.Chain, addr common.Address) (*big.Int, error) {
	client, err := ethclient.DialContext(ctx, chain.Endpoint())
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeUnavailable, "connect rpc", err)
	}
	defer client.Close()
	balance, err := client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeUnavailable, "read balance", err)
	}
	return balance, nil
}

func (w *Wallet) Address() common.Address {
	return w.signer.Address()
}

func (w *Wallet) CurrentChain() chains.Chain {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Chains lists the registered chains, current first flagged.
func (w *Wallet) Chains() []model.ChainInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	infos := make([]model.ChainInfo, 0, len(w.registered))
	for _, chain := range w.registered {
		infos = append(infos, model.ChainInfo{
			Name:        chain.Name,
			DisplayName: chain.DisplayName,
			ChainID:     chain.ID,
			Symbol:      chain.Currency.Symbol,
			RPCURL:      chain.Endpoint(),
			Current:     chain.Name == w.current.Name,
		})
	}
	return infos
}

// SwitchChain moves the wallet's current chain. Unknown names return a config
// error; known but unregistered chains are registered on the fly.
func (w *Wallet) SwitchChain(name string) (chains.Chain, error) {
	chain, err := chains.ByName(name)
	if err != nil {
		return chains.Chain{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.registered[chain.Name]; ok {
		chain = existing
	} else {
		// Chains registered on the fly honor the same RPC overrides as the
		// ones enabled at startup.
		if override, ok := w.overrides[chain.Name]; ok {
			chain = chain.WithRPC(override)
		}
		w.registered[chain.Name] = chain
	}
	w.current = chain
	return chain, nil
}

// Balance reads the native balance on the named chain, or the current chain
// when name is empty. Asking about a chain the wallet has not registered
// reports an empty balance rather than an error, so conversational checks
// like "how much do I have on blast" stay non-fatal.
func (w *Wallet) Balance(ctx context.Context, name string) (string, error) {
	w.mu.Lock()
	chain := w.current
	if strings.TrimSpace(name) != "" {
		resolved, err := chains.ByName(name)
		if err != nil {
			w.mu.Unlock()
			return "", err
		}
		registered, ok := w.registered[resolved.Name]
		if !ok {
			w.mu.Unlock()
			return "", nil
		}
		chain = registered
	}
	w.mu.Unlock()

	raw, err := w.balanceBaseUnits(ctx, chain)
	if err != nil {
		return "", err
	}
	return chain.FormatNative(raw), nil
}

func (w *Wallet) balanceBaseUnits(ctx context.Context, chain chains.Chain) (*big.Int, error) {
	key := fmt.Sprintf("balance:%d:%s", chain.ID, strings.ToLower(w.Address().Hex()))

	w.mu.Lock()
	if entry, ok := w.memory[key]; ok && w.now().Sub(entry.at) < w.balanceTTL {
		value := new(big.Int).Set(entry.value)
		w.mu.Unlock()
		return value, nil
	}
	w.mu.Unlock()

	if w.persisted != nil {
		if res, err := w.persisted.Get(key); err == nil && res.Hit && !res.Stale {
			if value, ok := new(big.Int).SetString(string(res.Value), 10); ok {
				w.remember(key, value)
				return value, nil
			}
		}
	}

	value, err := w.fetch(ctx, chain, w.Address())
	if err != nil {
		return nil, err
	}
	w.remember(key, value)
	if w.persisted != nil {
		_ = w.persisted.Set(key, []byte(value.String()), w.balanceTTL)
	}
	return value, nil
}

func (w *Wallet) remember(key string, value *big.Int) {
	w.mu.Lock()
	w.memory[key] = balanceEntry{value: new(big.Int).Set(value), at: w.now()}
	w.mu.Unlock()
}

// Status summarizes the wallet for context injection and the status command.
func (w *Wallet) Status(ctx context.Context) model.WalletStatus {
	chain := w.CurrentChain()
	status := model.WalletStatus{
		Address: w.Address().Hex(),
		Chain:   chain.Name,
		ChainID: chain.ID,
		Symbol:  chain.Currency.Symbol,
	}
	if balance, err := w.balanceBaseUnits(ctx, chain); err == nil {
		status.Balance = chain.FormatNative(balance)
	}
	return status
}

// Backend dials the current chain and returns a submission backend bound to
// the wallet's signer. The caller owns the returned backend's lifetime.
func (w *Wallet) Backend(ctx context.Context) (*execution.NodeBackend, error) {
	chain := w.CurrentChain()
	backend, err := execution.NewNodeBackend(ctx, chain.Endpoint(), w.signer, w.execOpts)
	if err != nil {
		return nil, err
	}
	if backend.ChainID() != chain.ID {
		backend.Close()
		return nil, agenterr.New(agenterr.CodeConfig,
			fmt.Sprintf("rpc endpoint reports chain id %d, expected %d for %s", backend.ChainID(), chain.ID, chain.Name))
	}
	if w.journal != nil {
		backend.WithJournal(w.journal)
	}
	return backend, nil
}

// Forget drops cached balances, forcing the next read through to the chain.
func (w *Wallet) Forget() {
	w.mu.Lock()
	w.memory = make(map[string]balanceEntry)
	w.mu.Unlock()
}
