package swap

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/nitikeshq/swapwallet/internal/metrics"
	"github.com/nitikeshq/swapwallet/internal/store"
)

// Outcome reports how a confirmation watch ended.
type Outcome string

const (
	// OutcomeConfirmed means a success receipt was observed.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeFailed means the chain reported an explicit revert.
	OutcomeFailed Outcome = "failed"
	// OutcomeUnknown means polling exhausted its budget without a receipt.
	// The record stays pending; unknown is not failure.
	OutcomeUnknown Outcome = "unknown"
)

// Watcher owns the background confirmation poll for one transaction hash.
type Watcher struct {
	txHash  string
	outcome Outcome
	done    chan struct{}
	cancel  context.CancelFunc
}

// watch starts a confirmation poller for a freshly persisted pending record.
// Each watcher touches only its own transaction row.
func (e *Executor) watch(rec store.SwapTransaction, referralCode string) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		txHash: rec.TxHash,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go w.run(ctx, e, rec, referralCode)
	return w
}

// Stop cancels the poll early. The watcher reports OutcomeUnknown.
func (w *Watcher) Stop() { w.cancel() }

// Done closes once the watcher has settled its outcome.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Outcome is valid after Done is closed.
func (w *Watcher) Outcome() Outcome { return w.outcome }

// TxHash identifies the watched transaction.
func (w *Watcher) TxHash() string { return w.txHash }

func (w *Watcher) run(ctx context.Context, e *Executor, rec store.SwapTransaction, referralCode string) {
	defer close(w.done)
	defer w.cancel()

	hash := common.HexToHash(rec.TxHash)
	delay := e.opts.PollInterval
	for attempt := 0; attempt < e.opts.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			w.outcome = OutcomeUnknown
			return
		case <-time.After(delay):
		}

		receipt, err := e.client.TransactionReceipt(ctx, hash)
		switch {
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet.
			delay = e.opts.PollInterval
		case err != nil:
			// Transient chain errors back off and retry; only an explicit
			// failure receipt may mark the transaction failed.
			delay = e.opts.RetryInterval
			e.log.Warn().Err(err).Str("tx", rec.TxHash).Msg("receipt poll failed, retrying")
		case receipt == nil:
			delay = e.opts.PollInterval
		case receipt.Status == types.ReceiptStatusSuccessful:
			w.settle(e, rec, store.StatusConfirmed, receipt.BlockNumber.Uint64(), referralCode)
			w.outcome = OutcomeConfirmed
			return
		default:
			w.settle(e, rec, store.StatusFailed, 0, "")
			w.outcome = OutcomeFailed
			return
		}
	}
	e.log.Warn().Str("tx", rec.TxHash).Msg("confirmation polling exhausted, outcome unknown")
	w.outcome = OutcomeUnknown
}

func (w *Watcher) settle(e *Executor, rec store.SwapTransaction, status string, block uint64, referralCode string) {
	if err := e.store.UpdateTransactionStatus(rec.TxHash, status, block); err != nil {
		e.log.Error().Err(err).Str("tx", rec.TxHash).Msg("failed to record transaction status")
		return
	}
	metrics.SwapsTotal.WithLabelValues(status).Inc()
	e.log.Info().Str("tx", rec.TxHash).Str("status", status).Msg("swap settled")

	if status == store.StatusConfirmed && e.ledger != nil && referralCode != "" {
		rec.Status = status
		e.ledger.ProcessSwap(referralCode, rec)
	}
}
