package chains

import (
	"fmt"
	"sort"
	"strings"

	clierr "github.com/hyphalabs/evm-agent/internal/errors"
)

// Currency describes a chain's native asset.
type Currency struct {
	Symbol   string
	Decimals int
}

// Chain is an immutable chain descriptor: setting an RPC override produces a
// new value rather than mutating a registered one.
type Chain struct {
	ID          int64
	Name        string
	DisplayName string
	Currency    Currency
	RPCURL      string
	RPCOverride string
}

// Endpoint returns the RPC URL to dial: the configured override when present,
// else the chain's default public endpoint.
func (c Chain) Endpoint() string {
	if strings.TrimSpace(c.RPCOverride) != "" {
		return strings.TrimSpace(c.RPCOverride)
	}
	return c.RPCURL
}

// WithRPC returns a copy of the descriptor with the given RPC override.
func (c Chain) WithRPC(url string) Chain {
	c.RPCOverride = strings.TrimSpace(url)
	return c
}

func (c Chain) String() string {
	return fmt.Sprintf("%s (chain id %d)", c.DisplayName, c.ID)
}

var eth = Currency{Symbol: "ETH", Decimals: 18}

// Static base chain table. Configuration can override endpoints but never
// invents new base names; an unrecognized name is a hard error.
var chainByName = map[string]Chain{
	"mainnet":   {ID: 1, Name: "mainnet", DisplayName: "Ethereum", Currency: eth, RPCURL: "https://eth.llamarpc.com"},
	"sepolia":   {ID: 11155111, Name: "sepolia", DisplayName: "Sepolia", Currency: eth, RPCURL: "https://rpc.sepolia.org"},
	"base":      {ID: 8453, Name: "base", DisplayName: "Base", Currency: eth, RPCURL: "https://mainnet.base.org"},
	"arbitrum":  {ID: 42161, Name: "arbitrum", DisplayName: "Arbitrum", Currency: eth, RPCURL: "https://arb1.arbitrum.io/rpc"},
	"optimism":  {ID: 10, Name: "optimism", DisplayName: "Optimism", Currency: eth, RPCURL: "https://mainnet.optimism.io"},
	"polygon":   {ID: 137, Name: "polygon", DisplayName: "Polygon", Currency: Currency{Symbol: "POL", Decimals: 18}, RPCURL: "https://polygon-rpc.com"},
	"bsc":       {ID: 56, Name: "bsc", DisplayName: "BNB Smart Chain", Currency: Currency{Symbol: "BNB", Decimals: 18}, RPCURL: "https://bsc-dataseed.binance.org"},
	"avalanche": {ID: 43114, Name: "avalanche", DisplayName: "Avalanche", Currency: Currency{Symbol: "AVAX", Decimals: 18}, RPCURL: "https://api.avax.network/ext/bc/C/rpc"},
	"gnosis":    {ID: 100, Name: "gnosis", DisplayName: "Gnosis", Currency: Currency{Symbol: "xDAI", Decimals: 18}, RPCURL: "https://rpc.gnosischain.com"},
	"linea":     {ID: 59144, Name: "linea", DisplayName: "Linea", Currency: eth, RPCURL: "https://rpc.linea.build"},
	"scroll":    {ID: 534352, Name: "scroll", DisplayName: "Scroll", Currency: eth, RPCURL: "https://rpc.scroll.io"},
	"blast":     {ID: 81457, Name: "blast", DisplayName: "Blast", Currency: eth, RPCURL: "https://rpc.blast.io"},
	"zksync":    {ID: 324, Name: "zksync", DisplayName: "zkSync Era", Currency: eth, RPCURL: "https://mainnet.era.zksync.io"},
	"mantle":    {ID: 5000, Name: "mantle", DisplayName: "Mantle", Currency: Currency{Symbol: "MNT", Decimals: 18}, RPCURL: "https://rpc.mantle.xyz"},
	"celo":      {ID: 42220, Name: "celo", DisplayName: "Celo", Currency: Currency{Symbol: "CELO", Decimals: 18}, RPCURL: "https://forno.celo.org"},
	"fraxtal":   {ID: 252, Name: "fraxtal", DisplayName: "Fraxtal", Currency: Currency{Symbol: "frxETH", Decimals: 18}, RPCURL: "https://rpc.frax.com"},
}

var aliases = map[string]string{
	"ethereum": "mainnet",
	"eth":      "mainnet",
	"matic":    "polygon",
	"arb":      "arbitrum",
	"op":       "optimism",
	"avax":     "avalanche",
}

// ByName resolves a base chain identifier from the static table.
func ByName(name string) (Chain, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	if norm == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain name is required")
	}
	if target, ok := aliases[norm]; ok {
		norm = target
	}
	chain, ok := chainByName[norm]
	if !ok {
		return Chain{}, clierr.New(clierr.CodeConfig, fmt.Sprintf("unrecognized chain %q", name))
	}
	return chain, nil
}

// ByID resolves a descriptor from a numeric chain id.
func ByID(id int64) (Chain, bool) {
	for _, chain := range chainByName {
		if chain.ID == id {
			return chain, true
		}
	}
	return Chain{}, false
}

// Names returns the sorted base chain identifiers.
func Names() []string {
	out := make([]string, 0, len(chainByName))
	for name := range chainByName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
