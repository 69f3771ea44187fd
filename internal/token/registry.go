// Package token holds the static BSC token and contract registry consumed by the
// quoting, swap, and pricing layers.
package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// BSC chain identifiers.
const (
	ChainID        = 56
	TestnetChainID = 97
)

// PancakeSwap V2 contract addresses on BSC mainnet.
var (
	RouterAddress  = common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	FactoryAddress = common.HexToAddress("0xCA143Ce32Fe78f1f7019d7d551a6402fC5350c73")
	PoolYHTUSDT    = common.HexToAddress("0x6fd64bd3c577b9613ee293d38e6018536d05c799")
)

// ErrUnknownToken is returned when a symbol has no registry entry.
var ErrUnknownToken = errors.New("unknown token symbol")

// Token describes a tradable asset on the configured chain.
type Token struct {
	Symbol   string
	Name     string
	Address  common.Address
	Decimals int
	Native   bool
}

var registry = map[string]Token{
	"YHT": {
		Symbol:   "YHT",
		Name:     "Yahoo Token",
		Address:  common.HexToAddress("0x3279eF4614f241a389114C77CdD28b70fcA9537a"),
		Decimals: 18,
	},
	"USDT": {
		Symbol:   "USDT",
		Name:     "Tether USD",
		Address:  common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"),
		Decimals: 18,
	},
	"BNB": {
		Symbol:   "BNB",
		Name:     "Binance Coin",
		Address:  common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"),
		Decimals: 18,
		Native:   true,
	},
	"WBNB": {
		Symbol:   "WBNB",
		Name:     "Wrapped BNB",
		Address:  common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"),
		Decimals: 18,
	},
}

// Lookup resolves a symbol (case-insensitive) to its registry entry.
func Lookup(symbol string) (Token, error) {
	tok, ok := registry[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
	}
	return tok, nil
}

// MustGet resolves a symbol known at compile time; panics on a registry miss.
func MustGet(symbol string) Token {
	tok, err := Lookup(symbol)
	if err != nil {
		panic(err)
	}
	return tok
}

// Symbols returns every registered symbol.
func Symbols() []string {
	out := make([]string, 0, len(registry))
	for sym := range registry {
		out = append(out, sym)
	}
	return out
}

// PairKey composes the canonical trading-pair key, e.g. "YHT/USDT".
func PairKey(base, quote string) string {
	return strings.ToUpper(strings.TrimSpace(base)) + "/" + strings.ToUpper(strings.TrimSpace(quote))
}

// NormalizeAddress lower-cases a wallet address so it can serve as a store key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
