package aggregator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRankOrdersByMinOutDescending(t *testing.T) {
	quotes := []Quote{
		{Source: "lifi", MinOut: big.NewInt(900)},
		{Source: "bebop", MinOut: big.NewInt(1100)},
		{Source: "other", MinOut: big.NewInt(1000)},
	}
	ranked := Rank(quotes)
	if ranked[0].Source != "bebop" || ranked[1].Source != "other" || ranked[2].Source != "lifi" {
		t.Fatalf("unexpected order: %s %s %s", ranked[0].Source, ranked[1].Source, ranked[2].Source)
	}
	// Input slice is untouched.
	if quotes[0].Source != "lifi" {
		t.Fatal("Rank mutated its input")
	}
}

func TestRankTiesKeepArrivalOrder(t *testing.T) {
	quotes := []Quote{
		{Source: "first", MinOut: big.NewInt(500)},
		{Source: "second", MinOut: big.NewInt(500)},
	}
	ranked := Rank(quotes)
	if ranked[0].Source != "first" || ranked[1].Source != "second" {
		t.Fatalf("tie order changed: %s %s", ranked[0].Source, ranked[1].Source)
	}
}

func TestRankNilMinOutSortsLast(t *testing.T) {
	quotes := []Quote{
		{Source: "broken"},
		{Source: "good", MinOut: big.NewInt(1)},
	}
	ranked := Rank(quotes)
	if ranked[0].Source != "good" {
		t.Fatalf("nil MinOut ranked first: %s", ranked[0].Source)
	}
}

func TestNeedsApproval(t *testing.T) {
	q := Quote{}
	if q.NeedsApproval() {
		t.Fatal("zero spender must not need approval")
	}
	q.ApprovalSpender = common.HexToAddress("0x1111111111111111111111111111111111111111")
	if !q.NeedsApproval() {
		t.Fatal("non-zero spender must need approval")
	}
}

func TestRequestSameChain(t *testing.T) {
	if !(Request{FromChainID: 1}).SameChain() {
		t.Fatal("zero ToChainID is same-chain")
	}
	if !(Request{FromChainID: 1, ToChainID: 1}).SameChain() {
		t.Fatal("equal ids are same-chain")
	}
	if (Request{FromChainID: 1, ToChainID: 8453}).SameChain() {
		t.Fatal("different ids are cross-chain")
	}
}
