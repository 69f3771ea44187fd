package router

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeClient struct {
	responses map[string][]byte // method selector hex -> packed return data
	err       error
}

func (f *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.responses[common.Bytes2Hex(msg.Data[:4])], nil
}

func (f *fakeClient) SendTransaction(context.Context, *types.Transaction) error { return nil }
func (f *fakeClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 0, nil }
func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error)              { return big.NewInt(1), nil }

func selector(t *testing.T, contract string, method string) string {
	t.Helper()
	var parsed = routerABI
	switch contract {
	case "pair":
		parsed = pairABI
	case "erc20":
		parsed = erc20ABI
	}
	m, ok := parsed.Methods[method]
	if !ok {
		t.Fatalf("unknown method %s", method)
	}
	return common.Bytes2Hex(m.ID)
}

func TestAmountsOut(t *testing.T) {
	amounts := []*big.Int{big.NewInt(1000), big.NewInt(500)}
	packed, err := routerABI.Methods["getAmountsOut"].Outputs.Pack(amounts)
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	client := &fakeClient{responses: map[string][]byte{
		selector(t, "router", "getAmountsOut"): packed,
	}}
	r := New(client, common.HexToAddress("0x1"))

	path := []common.Address{common.HexToAddress("0x2"), common.HexToAddress("0x3")}
	out, err := r.AmountsOut(context.Background(), big.NewInt(1000), path)
	if err != nil {
		t.Fatalf("AmountsOut returned error: %v", err)
	}
	if len(out) != 2 || out[1].Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected amounts %v", out)
	}
}

func TestAmountsOutPropagatesError(t *testing.T) {
	r := New(&fakeClient{err: errors.New("rpc down")}, common.HexToAddress("0x1"))
	if _, err := r.AmountsOut(context.Background(), big.NewInt(1), []common.Address{{}, {}}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestReservesAndToken0(t *testing.T) {
	reserves, err := pairABI.Methods["getReserves"].Outputs.Pack(
		big.NewInt(4000), big.NewInt(2000), uint32(0))
	if err != nil {
		t.Fatalf("pack reserves: %v", err)
	}
	tokenAddr := common.HexToAddress("0xabc")
	token0, err := pairABI.Methods["token0"].Outputs.Pack(tokenAddr)
	if err != nil {
		t.Fatalf("pack token0: %v", err)
	}
	client := &fakeClient{responses: map[string][]byte{
		selector(t, "pair", "getReserves"): reserves,
		selector(t, "pair", "token0"):      token0,
	}}
	r := New(client, common.HexToAddress("0x1"))

	r0, r1, err := r.Reserves(context.Background(), common.HexToAddress("0x2"))
	if err != nil {
		t.Fatalf("Reserves returned error: %v", err)
	}
	if r0.Cmp(big.NewInt(4000)) != 0 || r1.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("unexpected reserves %v %v", r0, r1)
	}

	got, err := r.Token0(context.Background(), common.HexToAddress("0x2"))
	if err != nil {
		t.Fatalf("Token0 returned error: %v", err)
	}
	if got != tokenAddr {
		t.Fatalf("unexpected token0 %s", got.Hex())
	}
}

func TestAllowance(t *testing.T) {
	packed, err := erc20ABI.Methods["allowance"].Outputs.Pack(big.NewInt(777))
	if err != nil {
		t.Fatalf("pack allowance: %v", err)
	}
	client := &fakeClient{responses: map[string][]byte{
		selector(t, "erc20", "allowance"): packed,
	}}
	r := New(client, common.HexToAddress("0x1"))

	got, err := r.Allowance(context.Background(), common.HexToAddress("0x2"), common.HexToAddress("0x3"))
	if err != nil {
		t.Fatalf("Allowance returned error: %v", err)
	}
	if got.Cmp(big.NewInt(777)) != 0 {
		t.Fatalf("unexpected allowance %v", got)
	}
}

func TestSwapCalldataShapes(t *testing.T) {
	path := []common.Address{common.HexToAddress("0x2"), common.HexToAddress("0x3")}
	r := New(&fakeClient{}, common.HexToAddress("0x1"))
	recipient := common.HexToAddress("0x4")
	deadline := big.NewInt(9999)

	data, value, err := r.SwapCalldata(true, false, big.NewInt(10), big.NewInt(9), path, recipient, deadline)
	if err != nil {
		t.Fatalf("native-in calldata: %v", err)
	}
	if value == nil || value.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("native-in swap should carry value, got %v", value)
	}
	if want := routerABI.Methods["swapExactETHForTokensSupportingFeeOnTransferTokens"].ID; common.Bytes2Hex(data[:4]) != common.Bytes2Hex(want) {
		t.Fatalf("wrong selector for native-in swap")
	}

	data, value, err = r.SwapCalldata(false, true, big.NewInt(10), big.NewInt(9), path, recipient, deadline)
	if err != nil {
		t.Fatalf("native-out calldata: %v", err)
	}
	if value != nil {
		t.Fatalf("token-in swap should not carry value")
	}
	if want := routerABI.Methods["swapExactTokensForETHSupportingFeeOnTransferTokens"].ID; common.Bytes2Hex(data[:4]) != common.Bytes2Hex(want) {
		t.Fatalf("wrong selector for native-out swap")
	}

	data, _, err = r.SwapCalldata(false, false, big.NewInt(10), big.NewInt(9), path, recipient, deadline)
	if err != nil {
		t.Fatalf("token-token calldata: %v", err)
	}
	if want := routerABI.Methods["swapExactTokensForTokensSupportingFeeOnTransferTokens"].ID; common.Bytes2Hex(data[:4]) != common.Bytes2Hex(want) {
		t.Fatalf("wrong selector for token-token swap")
	}
}
