package execution

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/registry"
)

var (
	erc20Once sync.Once
	erc20ABI  abi.ABI
	erc20Err  error
)

func parsedERC20() (abi.ABI, error) {
	erc20Once.Do(func() {
		erc20ABI, erc20Err = abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	})
	return erc20ABI, erc20Err
}

// TokenDecimals reads decimals() from an ERC-20 contract.
func TokenDecimals(ctx context.Context, backend Backend, token common.Address) (uint8, error) {
	parsed, err := parsedERC20()
	if err != nil {
		return 0, agenterr.Wrap(agenterr.CodeInternal, "parse erc20 abi", err)
	}
	data, err := parsed.Pack("decimals")
	if err != nil {
		return 0, agenterr.Wrap(agenterr.CodeInternal, "pack decimals", err)
	}
	out, err := backend.Call(ctx, ethereum.CallMsg{From: backend.From(), To: &token, Data: data})
	if err != nil {
		return 0, err
	}
	vals, err := parsed.Unpack("decimals", out)
	if err != nil || len(vals) == 0 {
		return 0, agenterr.Wrap(agenterr.CodeUnavailable, "decode decimals", err)
	}
	dec, ok := vals[0].(uint8)
	if !ok {
		return 0, agenterr.New(agenterr.CodeUnavailable, "unexpected decimals type")
	}
	return dec, nil
}

// TokenBalance reads balanceOf(account) from an ERC-20 contract.
func TokenBalance(ctx context.Context, backend Backend, token, account common.Address) (*big.Int, error) {
	parsed, err := parsedERC20()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "parse erc20 abi", err)
	}
	data, err := parsed.Pack("balanceOf", account)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "pack balanceOf", err)
	}
	out, err := backend.Call(ctx, ethereum.CallMsg{From: backend.From(), To: &token, Data: data})
	if err != nil {
		return nil, err
	}
	vals, err := parsed.Unpack("balanceOf", out)
	if err != nil || len(vals) == 0 {
		return nil, agenterr.Wrap(agenterr.CodeUnavailable, "decode balanceOf", err)
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, agenterr.New(agenterr.CodeUnavailable, "unexpected balanceOf type")
	}
	return bal, nil
}

// Allowance reads allowance(owner, spender) from an ERC-20 contract.
func Allowance(ctx context.Context, backend Backend, token, owner, spender common.Address) (*big.Int, error) {
	parsed, err := parsedERC20()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "parse erc20 abi", err)
	}
	data, err := parsed.Pack("allowance", owner, spender)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "pack allowance", err)
	}
	out, err := backend.Call(ctx, ethereum.CallMsg{From: backend.From(), To: &token, Data: data})
	if err != nil {
		return nil, err
	}
	vals, err := parsed.Unpack("allowance", out)
	if err != nil || len(vals) == 0 {
		return nil, agenterr.Wrap(agenterr.CodeUnavailable, "decode allowance", err)
	}
	allowance, ok := vals[0].(*big.Int)
	if !ok {
		return nil, agenterr.New(agenterr.CodeUnavailable, "unexpected allowance type")
	}
	return allowance, nil
}

// PackApprove builds approve(spender, amount) calldata.
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	parsed, err := parsedERC20()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "parse erc20 abi", err)
	}
	data, err := parsed.Pack("approve", spender, amount)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "pack approve", err)
	}
	return data, nil
}

// PackTransfer builds transfer(to, amount) calldata.
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	parsed, err := parsedERC20()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "parse erc20 abi", err)
	}
	data, err := parsed.Pack("transfer", to, amount)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.CodeInternal, "pack transfer", err)
	}
	return data, nil
}
