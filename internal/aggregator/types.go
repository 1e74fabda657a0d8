package aggregator

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// QuoteKind distinguishes how a quote is turned into a transaction. Routed
// quotes carry an aggregator-built transaction request with a separate
// approval spender; RFQ quotes carry a market maker's prebuilt settlement
// transaction.
type QuoteKind string

const (
	KindRouted QuoteKind = "routed"
	KindRFQ    QuoteKind = "rfq"
)

// Request describes a swap or bridge the agent wants priced. Token addresses
// use the zero address for the chain's native asset.
type Request struct {
	FromChainID int64
	ToChainID   int64
	FromToken   common.Address
	ToToken     common.Address
	Amount      *big.Int
	Sender      common.Address
	Recipient   common.Address
	SlippageBps int64
}

func (r Request) SameChain() bool {
	return r.ToChainID == 0 || r.ToChainID == r.FromChainID
}

// Quote is one priced route from one source.
type Quote struct {
	Source string
	Kind   QuoteKind

	Out    *big.Int
	MinOut *big.Int

	// Transaction to submit on the source chain.
	To    common.Address
	Value *big.Int
	Data  []byte

	// Spender to approve before submitting, when the input is an ERC-20.
	ApprovalSpender common.Address

	Route          string
	FeeUSD         float64
	EstimatedTimeS int64
}

func (q Quote) NeedsApproval() bool {
	return q.ApprovalSpender != (common.Address{})
}

// Source prices a request. Implementations return a typed error when they
// cannot serve the pair.
type Source interface {
	Name() string
	Quote(ctx context.Context, req Request) (Quote, error)
}

// Rank orders quotes by guaranteed output, best first. Minimum outputs are
// compared as raw integers without normalizing denominations, so callers must
// only rank quotes for the same destination token. Ties keep arrival order.
func Rank(quotes []Quote) []Quote {
	ranked := make([]Quote, len(quotes))
	copy(ranked, quotes)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].MinOut, ranked[j].MinOut
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Cmp(b) > 0
	})
	return ranked
}
