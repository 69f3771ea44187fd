// Package router wraps the PancakeSwap V2 read and write entry points behind
// typed helpers so the callers never touch raw calldata.
package router

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nitikeshq/swapwallet/internal/chain"
)

// Gas budgets for router swap submissions. Fee estimates use the same numbers
// so the displayed cost matches what is actually submitted.
const (
	GasLimitTokenSwap  uint64 = 300000
	GasLimitNativeSwap uint64 = 250000
)

// GasLimitFor picks the swap gas budget by token shape.
func GasLimitFor(fromNative, toNative bool) uint64 {
	if fromNative || toNative {
		return GasLimitNativeSwap
	}
	return GasLimitTokenSwap
}

// Router performs read calls and builds swap calldata against a V2 router contract.
type Router struct {
	client  chain.Client
	address common.Address
}

// New binds a router helper to the given contract address.
func New(client chain.Client, address common.Address) *Router {
	return &Router{client: client, address: address}
}

// Address returns the router contract address (the ERC-20 spender for approvals).
func (r *Router) Address() common.Address { return r.address }

// AmountsOut runs the router's pricing call and returns the output amount for
// every hop of the path, amountIn first.
func (r *Router) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut call: %w", err)
	}
	out, err := routerABI.Unpack("getAmountsOut", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack getAmountsOut: %w", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("getAmountsOut returned no amounts")
	}
	return amounts, nil
}

// Reserves reads the raw reserve slots of a V2 pair.
func (r *Router) Reserves(ctx context.Context, pair common.Address) (reserve0, reserve1 *big.Int, err error) {
	data, err := pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("pack getReserves: %w", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &pair, Data: data}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves call: %w", err)
	}
	out, err := pairABI.Unpack("getReserves", raw)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack getReserves: %w", err)
	}
	reserve0, ok0 := out[0].(*big.Int)
	reserve1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("getReserves returned unexpected types")
	}
	return reserve0, reserve1, nil
}

// Token0 resolves which token occupies a pair's first reserve slot.
func (r *Router) Token0(ctx context.Context, pair common.Address) (common.Address, error) {
	data, err := pairABI.Pack("token0")
	if err != nil {
		return common.Address{}, fmt.Errorf("pack token0: %w", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &pair, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("token0 call: %w", err)
	}
	out, err := pairABI.Unpack("token0", raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack token0: %w", err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("token0 returned unexpected type")
	}
	return addr, nil
}

// Allowance reads the spend allowance granted by owner to the router.
func (r *Router) Allowance(ctx context.Context, tokenAddr, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, r.address)
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("allowance call: %w", err)
	}
	out, err := erc20ABI.Unpack("allowance", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack allowance: %w", err)
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("allowance returned unexpected type")
	}
	return amount, nil
}

// BalanceOf reads an ERC-20 balance.
func (r *Router) BalanceOf(ctx context.Context, tokenAddr, account common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call: %w", err)
	}
	out, err := erc20ABI.Unpack("balanceOf", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned unexpected type")
	}
	return amount, nil
}

// ApproveCalldata builds ERC-20 approve calldata granting the router a spend amount.
func (r *Router) ApproveCalldata(amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", r.address, amount)
}

// SwapCalldata builds calldata for the fee-on-transfer swap entry point matching
// the token shape. For a native input the amountIn rides as transaction value and
// nativeValue is returned non-nil.
func (r *Router) SwapCalldata(fromNative, toNative bool, amountIn, amountOutMin *big.Int, path []common.Address, recipient common.Address, deadline *big.Int) (data []byte, nativeValue *big.Int, err error) {
	switch {
	case fromNative:
		data, err = routerABI.Pack("swapExactETHForTokensSupportingFeeOnTransferTokens", amountOutMin, path, recipient, deadline)
		nativeValue = amountIn
	case toNative:
		data, err = routerABI.Pack("swapExactTokensForETHSupportingFeeOnTransferTokens", amountIn, amountOutMin, path, recipient, deadline)
	default:
		data, err = routerABI.Pack("swapExactTokensForTokensSupportingFeeOnTransferTokens", amountIn, amountOutMin, path, recipient, deadline)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("pack swap calldata: %w", err)
	}
	return data, nativeValue, nil
}
