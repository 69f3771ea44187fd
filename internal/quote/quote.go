// Package quote computes point-in-time swap quotes against the router's
// pricing call. A quote is a snapshot, not an execution guarantee; the
// on-chain floor is the minimum-received amount.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nitikeshq/swapwallet/internal/chain"
	"github.com/nitikeshq/swapwallet/internal/metrics"
	"github.com/nitikeshq/swapwallet/internal/router"
	"github.com/nitikeshq/swapwallet/internal/token"
)

var (
	ErrInvalidToken       = errors.New("invalid token symbol")
	ErrInvalidAmount      = errors.New("amount must be a positive decimal")
	ErrInvalidSlippage    = errors.New("slippage must be in [0, 10000) basis points")
	ErrPricingUnavailable = errors.New("router pricing unavailable")
)

// fallbackNetworkFee is used when the gas price lookup fails; roughly the cost
// of a router swap at typical BSC gas prices, in BNB.
const fallbackNetworkFee = "0.005"

// Quote is a snapshot of expected swap output for a trade intent.
type Quote struct {
	FromToken       string           `json:"fromToken"`
	ToToken         string           `json:"toToken"`
	FromAmount      string           `json:"fromAmount"`
	ToAmount        string           `json:"toAmount"`
	Price           string           `json:"price"`
	SlippageBps     int              `json:"slippageBps"`
	MinimumReceived string           `json:"minimumReceived"`
	NetworkFee      string           `json:"networkFee"` // denominated in BNB
	Route           []common.Address `json:"route"`
	AmountInWei     *big.Int         `json:"-"`
	MinOutWei       *big.Int         `json:"-"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Pair returns the quote's trading-pair key.
func (q *Quote) Pair() string { return token.PairKey(q.FromToken, q.ToToken) }

// Age reports how long ago the quote was computed.
func (q *Quote) Age() time.Duration { return time.Since(q.CreatedAt) }

// Engine resolves paths and prices trade intents through the router.
type Engine struct {
	router *router.Router
	client chain.Client
	log    zerolog.Logger
}

// NewEngine wires a quote engine to the router helper and chain client.
func NewEngine(r *router.Router, client chain.Client, log zerolog.Logger) *Engine {
	return &Engine{router: r, client: client, log: log}
}

// Quote prices a trade intent. It performs only read calls and is safe to call
// repeatedly; late results for a superseded request should simply be dropped.
func (e *Engine) Quote(ctx context.Context, fromSym, toSym, amountIn string, slippageBps int) (*Quote, error) {
	from, err := token.Lookup(fromSym)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, fromSym)
	}
	to, err := token.Lookup(toSym)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, toSym)
	}
	amount, err := decimal.NewFromString(amountIn)
	if err != nil || !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if slippageBps < 0 || slippageBps >= 10000 {
		return nil, ErrInvalidSlippage
	}

	path := buildPath(from, to)
	inWei := toWei(amount, from.Decimals)

	amounts, err := e.router.AmountsOut(ctx, inWei, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}
	outWei := amounts[len(amounts)-1]
	if outWei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: zero output", ErrPricingUnavailable)
	}
	outAmount := fromWei(outWei, to.Decimals)

	// Integer math on wei truncates, i.e. rounds toward zero, so the guarantee
	// is never overstated.
	minOutWei := new(big.Int).Mul(outWei, big.NewInt(int64(10000-slippageBps)))
	minOutWei.Div(minOutWei, big.NewInt(10000))

	q := &Quote{
		FromToken:       from.Symbol,
		ToToken:         to.Symbol,
		FromAmount:      amount.String(),
		ToAmount:        outAmount.String(),
		Price:           amount.Div(outAmount).String(),
		SlippageBps:     slippageBps,
		MinimumReceived: fromWei(minOutWei, to.Decimals).String(),
		NetworkFee:      e.estimateNetworkFee(ctx, from, to),
		Route:           path,
		AmountInWei:     inWei,
		MinOutWei:       minOutWei,
		CreatedAt:       time.Now().UTC(),
	}
	metrics.QuotesTotal.WithLabelValues(q.Pair()).Inc()
	e.log.Debug().Str("pair", q.Pair()).Str("in", q.FromAmount).Str("out", q.ToAmount).Msg("quote computed")
	return q, nil
}

// estimateNetworkFee multiplies the executor's gas budget for the swap shape
// by the current gas price. A failed lookup degrades to the fixed fallback; it
// never fails the quote.
func (e *Engine) estimateNetworkFee(ctx context.Context, from, to token.Token) string {
	gasLimit := router.GasLimitFor(from.Native, to.Native)
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil || gasPrice == nil {
		e.log.Warn().Err(err).Msg("gas price lookup failed, using fallback fee")
		return fallbackNetworkFee
	}
	feeWei := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
	return fromWei(feeWei, 18).String()
}

// buildPath picks the router path: the known direct pools (YHT/USDT, anything
// against WBNB) swap directly, everything else hops through WBNB.
func buildPath(from, to token.Token) []common.Address {
	wbnb := token.MustGet("WBNB").Address
	if from.Address == wbnb || to.Address == wbnb {
		return []common.Address{from.Address, to.Address}
	}
	if isYHTUSDTPair(from, to) {
		return []common.Address{from.Address, to.Address}
	}
	return []common.Address{from.Address, wbnb, to.Address}
}

func isYHTUSDTPair(a, b token.Token) bool {
	return (a.Symbol == "YHT" && b.Symbol == "USDT") || (a.Symbol == "USDT" && b.Symbol == "YHT")
}

func toWei(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}

func fromWei(wei *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -int32(decimals))
}
