// Package swap submits router swap transactions and tracks their confirmation
// lifecycle. A pending record is persisted before Submit returns, so a lost
// poll can never lose the transaction.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nitikeshq/swapwallet/internal/chain"
	"github.com/nitikeshq/swapwallet/internal/quote"
	"github.com/nitikeshq/swapwallet/internal/referral"
	"github.com/nitikeshq/swapwallet/internal/router"
	"github.com/nitikeshq/swapwallet/internal/store"
	"github.com/nitikeshq/swapwallet/internal/token"
)

var (
	// ErrStaleQuote is returned when a quote is older than the executor's TTL.
	ErrStaleQuote = errors.New("quote is stale, re-quote before swapping")
	// ErrApprovalFailed is returned when the allowance top-up did not confirm.
	ErrApprovalFailed = errors.New("token approval failed")
	// ErrRouterRejected is returned when the router declines the submission.
	ErrRouterRejected = errors.New("router rejected swap")
)

// YHT -> USDT swaps carry a 5% burn recorded for bookkeeping; the token
// contract enforces the actual burn.
var burnRate = decimal.NewFromFloat(0.05)

// Options tune the executor's timing. Zero values take the production defaults.
type Options struct {
	QuoteTTL        time.Duration
	Deadline        time.Duration
	PollInterval    time.Duration
	RetryInterval   time.Duration
	MaxPollAttempts int
}

func (o Options) withDefaults() Options {
	if o.QuoteTTL <= 0 {
		o.QuoteTTL = 30 * time.Second
	}
	if o.Deadline <= 0 {
		o.Deadline = 20 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 10 * time.Second
	}
	if o.MaxPollAttempts <= 0 {
		o.MaxPollAttempts = 120
	}
	return o
}

// Executor turns quotes into submitted swap transactions.
type Executor struct {
	client chain.Client
	router *router.Router
	store  *store.Store
	ledger *referral.Ledger
	log    zerolog.Logger
	opts   Options
}

// NewExecutor wires the swap pipeline. The referral ledger may be nil when
// commission bookkeeping is disabled.
func NewExecutor(client chain.Client, r *router.Router, s *store.Store, ledger *referral.Ledger, log zerolog.Logger, opts Options) *Executor {
	return &Executor{
		client: client,
		router: r,
		store:  s,
		ledger: ledger,
		log:    log,
		opts:   opts.withDefaults(),
	}
}

// Submit executes a quoted swap for the wallet owner. Non-native inputs are
// approved first and the approval must confirm before the swap is sent; the
// two are never in flight together. On success the pending record is already
// persisted and a confirmation watcher is running.
func (e *Executor) Submit(ctx context.Context, q *quote.Quote, wallet *chain.Wallet, referralCode string) (store.SwapTransaction, *Watcher, error) {
	if wallet == nil {
		return store.SwapTransaction{}, nil, chain.ErrNoSigner
	}
	if q.Age() > e.opts.QuoteTTL {
		return store.SwapTransaction{}, nil, ErrStaleQuote
	}
	from := token.MustGet(q.FromToken)
	to := token.MustGet(q.ToToken)
	owner := wallet.Address()

	if !from.Native {
		if err := e.ensureAllowance(ctx, wallet, from, q.AmountInWei); err != nil {
			return store.SwapTransaction{}, nil, err
		}
	}

	deadline := big.NewInt(time.Now().Add(e.opts.Deadline).Unix())
	data, value, err := e.router.SwapCalldata(from.Native, to.Native, q.AmountInWei, q.MinOutWei, q.Route, owner, deadline)
	if err != nil {
		return store.SwapTransaction{}, nil, err
	}
	signed, err := e.send(ctx, wallet, e.router.Address(), data, value, router.GasLimitFor(from.Native, to.Native))
	if err != nil {
		return store.SwapTransaction{}, nil, fmt.Errorf("%w: %v", ErrRouterRejected, err)
	}
	txHash := signed.Hash().Hex()

	rec, err := e.store.CreateTransaction(store.SwapTransaction{
		OwnerAddr:  token.NormalizeAddress(owner.Hex()),
		TxHash:     txHash,
		FromToken:  q.FromToken,
		ToToken:    q.ToToken,
		FromAmount: q.FromAmount,
		ToAmount:   q.ToAmount,
		Status:     store.StatusPending,
		BurningFee: BurnFeeFor(q.FromToken, q.ToToken, q.FromAmount).String(),
	})
	if err != nil {
		// The swap is on chain regardless; surface the bookkeeping failure loudly.
		e.log.Error().Err(err).Str("tx", txHash).Msg("failed to persist pending swap record")
		return store.SwapTransaction{}, nil, err
	}
	e.log.Info().Str("tx", txHash).Str("pair", q.Pair()).Msg("swap submitted")

	watcher := e.watch(rec, referralCode)
	return rec, watcher, nil
}

// BurnFeeFor returns the recorded burn fee for a swap direction: 5% of the
// input amount on YHT -> USDT, zero otherwise.
func BurnFeeFor(fromToken, toToken, fromAmount string) decimal.Decimal {
	if fromToken != "YHT" || toToken != "USDT" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(fromAmount)
	if err != nil {
		return decimal.Zero
	}
	return amount.Mul(burnRate)
}

// ensureAllowance tops up the router's spend allowance when it is short,
// waiting for the approval receipt before returning.
func (e *Executor) ensureAllowance(ctx context.Context, wallet *chain.Wallet, tok token.Token, amountIn *big.Int) error {
	owner := wallet.Address()
	allowance, err := e.router.Allowance(ctx, tok.Address, owner)
	if err != nil {
		return fmt.Errorf("%w: allowance check: %v", ErrApprovalFailed, err)
	}
	if allowance.Cmp(amountIn) >= 0 {
		return nil
	}
	data, err := e.router.ApproveCalldata(amountIn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApprovalFailed, err)
	}
	signed, err := e.send(ctx, wallet, tok.Address, data, nil, 60000)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApprovalFailed, err)
	}
	receipt, err := e.awaitReceipt(ctx, signed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApprovalFailed, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: approval reverted", ErrApprovalFailed)
	}
	e.log.Info().Str("token", tok.Symbol).Str("tx", signed.Hash().Hex()).Msg("router allowance approved")
	return nil
}

// awaitReceipt blocks until the transaction has a receipt, polling at the
// configured cadence.
func (e *Executor) awaitReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for attempt := 0; attempt < e.opts.MaxPollAttempts; attempt++ {
		receipt, err := e.client.TransactionReceipt(ctx, tx.Hash())
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, fmt.Errorf("no receipt for %s", tx.Hash().Hex())
}

func (e *Executor) send(ctx context.Context, wallet *chain.Wallet, to common.Address, data []byte, value *big.Int, gasLimit uint64) (*types.Transaction, error) {
	owner := wallet.Address()
	nonce, err := e.client.PendingNonceAt(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	if value == nil {
		value = big.NewInt(0)
	}
	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := wallet.SignTx(tx)
	if err != nil {
		return nil, err
	}
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	return signed, nil
}
