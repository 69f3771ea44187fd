// Package referral maintains referral codes, commission accrual, and
// milestone-bonus entitlement state.
package referral

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nitikeshq/swapwallet/internal/metrics"
	"github.com/nitikeshq/swapwallet/internal/store"
	"github.com/nitikeshq/swapwallet/internal/token"
)

var (
	// ErrDuplicateAddress is returned when an account already exists for a wallet.
	ErrDuplicateAddress = errors.New("account already exists")
	// ErrNotEligible is returned when claiming a bonus before the milestone.
	ErrNotEligible = errors.New("milestone not achieved")
	// ErrAlreadyClaimed is returned when the bonus was already claimed.
	ErrAlreadyClaimed = errors.New("bonus already claimed")
)

// Commission rules: 10% of the USDT leg of a swap; the milestone latches at
// 200,000 USDT of cumulative earnings.
var (
	commissionRate     = decimal.NewFromFloat(0.10)
	milestoneThreshold = decimal.NewFromInt(200_000)
)

const stableSymbol = "USDT"

// Code generation: unambiguous upper-alphanumerics (no 0/O/1/I), 8 characters,
// retried against the code index until unique.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 8
	codeRetries  = 10
)

// Ledger owns account and commission bookkeeping on top of the store.
type Ledger struct {
	store *store.Store
	log   zerolog.Logger
}

// NewLedger wires a referral ledger to its persistence layer.
func NewLedger(s *store.Store, log zerolog.Logger) *Ledger {
	return &Ledger{store: s, log: log}
}

// CreateAccount registers a wallet, generating a unique referral code when none
// is supplied. referredBy is an optional referral code and is recorded as-is;
// an unknown code only costs the referrer its commissions.
func (l *Ledger) CreateAccount(address, referredBy string) (store.Account, error) {
	address = token.NormalizeAddress(address)
	if _, err := l.store.Account(address); err == nil {
		return store.Account{}, fmt.Errorf("%w: %s", ErrDuplicateAddress, address)
	}

	var lastErr error
	for attempt := 0; attempt < codeRetries; attempt++ {
		code, err := generateCode()
		if err != nil {
			return store.Account{}, fmt.Errorf("generate referral code: %w", err)
		}
		acct, err := l.store.CreateAccount(store.Account{
			Address:      address,
			ReferralCode: code,
			ReferredBy:   referredBy,
		})
		if err == nil {
			l.log.Info().Str("address", address).Str("code", code).Msg("account created")
			return acct, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return store.Account{}, err
		}
		// Either the address raced in or the code collided; re-check the address.
		if _, lookupErr := l.store.Account(address); lookupErr == nil {
			return store.Account{}, fmt.Errorf("%w: %s", ErrDuplicateAddress, address)
		}
		lastErr = err
	}
	return store.Account{}, fmt.Errorf("referral code space exhausted: %w", lastErr)
}

// ValidateCode resolves a referral code to the referrer's address.
func (l *Ledger) ValidateCode(code string) (string, error) {
	acct, err := l.store.AccountByCode(code)
	if err != nil {
		return "", err
	}
	return acct.Address, nil
}

// ProcessSwap attributes a settled swap to the referral code active at swap
// time. Every failure path is a logged no-op: bookkeeping must never undo an
// already-submitted swap.
func (l *Ledger) ProcessSwap(code string, swap store.SwapTransaction) {
	if code == "" {
		return
	}
	referrer, err := l.ValidateCode(code)
	if err != nil {
		l.log.Warn().Str("code", code).Str("tx", swap.TxHash).Msg("unknown referral code, skipping commission")
		return
	}
	amount, ok := CommissionFor(swap)
	if !ok {
		return
	}
	if _, err := l.RecordCommission(referrer, swap.OwnerAddr, swap.TxHash, amount, stableSymbol); err != nil {
		l.log.Error().Err(err).Str("tx", swap.TxHash).Msg("commission bookkeeping failed")
	}
}

// CommissionFor computes the commission for a swap: 10% of the stable-asset
// leg. Swaps with no USDT leg earn nothing.
func CommissionFor(swap store.SwapTransaction) (decimal.Decimal, bool) {
	var leg string
	switch {
	case swap.FromToken == stableSymbol:
		leg = swap.FromAmount
	case swap.ToToken == stableSymbol:
		leg = swap.ToAmount
	default:
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(leg)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount.Mul(commissionRate), true
}

// RecordCommission persists a commission row and accrues the referrer's earnings.
func (l *Ledger) RecordCommission(referrer, refereeRef, txID string, amount decimal.Decimal, commissionToken string) (store.Referral, error) {
	ref, err := l.store.CreateReferral(store.Referral{
		ReferrerAddr:     referrer,
		RefereeRef:       refereeRef,
		TransactionID:    txID,
		CommissionAmount: amount.String(),
		CommissionToken:  commissionToken,
	})
	if err != nil {
		return store.Referral{}, err
	}
	if err := l.AccrueEarnings(referrer, amount); err != nil {
		return ref, err
	}
	metrics.CommissionsTotal.Inc()
	l.log.Info().Str("referrer", referrer).Str("amount", amount.String()).Str("tx", txID).Msg("commission recorded")
	return ref, nil
}

// AccrueEarnings adds to a referrer's cumulative total with exact decimal
// arithmetic. The store serializes the read-modify-write, so concurrent
// accruals for the same referrer cannot be lost. The milestone flag is a
// one-way latch set the first time the total reaches the threshold.
func (l *Ledger) AccrueEarnings(address string, amount decimal.Decimal) error {
	crossed := false
	_, err := l.store.MutateAccount(address, func(acct *store.Account) error {
		current, err := decimal.NewFromString(acct.TotalEarnings)
		if err != nil {
			current = decimal.Zero
		}
		total := current.Add(amount)
		acct.TotalEarnings = total.String()
		if !acct.MilestoneAchieved && total.GreaterThanOrEqual(milestoneThreshold) {
			acct.MilestoneAchieved = true
			crossed = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if crossed {
		l.log.Info().Str("address", address).Msg("earnings milestone achieved")
	}
	return nil
}

// ClaimMilestoneBonus records entitlement to the one-time bonus. The payout
// itself happens off-system; this only guards the claim state.
func (l *Ledger) ClaimMilestoneBonus(address string) error {
	_, err := l.store.MutateAccount(address, func(acct *store.Account) error {
		if !acct.MilestoneAchieved {
			return ErrNotEligible
		}
		if acct.BTCBonusClaimed {
			return ErrAlreadyClaimed
		}
		acct.BTCBonusClaimed = true
		return nil
	})
	return err
}

// MarkCommissionPaid transitions a commission row to paid.
func (l *Ledger) MarkCommissionPaid(id string) error {
	return l.store.MarkReferralPaid(id)
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
