// Package analytics builds admin-facing aggregates from stored records. All
// figures are computed on read; nothing here writes to the store.
package analytics

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nitikeshq/swapwallet/internal/store"
)

// Summary is the admin dashboard aggregate.
type Summary struct {
	TotalUsers        int    `json:"totalUsers"`
	MilestoneAchieved int    `json:"milestoneAchieved"`
	TotalSwaps        int    `json:"totalSwaps"`
	ConfirmedSwaps    int    `json:"confirmedSwaps"`
	PendingSwaps      int    `json:"pendingSwaps"`
	FailedSwaps       int    `json:"failedSwaps"`
	VolumeUSDT        string `json:"volumeUsdt"`
	BurnedYHT         string `json:"burnedYht"`
	TotalCommission   string `json:"totalCommission"`
	PaidCommission    string `json:"paidCommission"`
	PendingCommission string `json:"pendingCommission"`
}

// Service reads store records and aggregates them.
type Service struct {
	store *store.Store
	log   zerolog.Logger
}

func New(s *store.Store, log zerolog.Logger) *Service {
	return &Service{store: s, log: log}
}

// Summary walks accounts, transactions, and referrals in one pass each.
// Malformed monetary strings are skipped rather than failing the whole report.
func (s *Service) Summary() (Summary, error) {
	var out Summary

	accounts, err := s.store.Accounts()
	if err != nil {
		return Summary{}, err
	}
	out.TotalUsers = len(accounts)
	for _, acct := range accounts {
		if acct.MilestoneAchieved {
			out.MilestoneAchieved++
		}
	}

	txs, err := s.store.Transactions()
	if err != nil {
		return Summary{}, err
	}
	out.TotalSwaps = len(txs)
	volume := decimal.Zero
	burned := decimal.Zero
	for _, tx := range txs {
		switch tx.Status {
		case store.StatusConfirmed:
			out.ConfirmedSwaps++
			volume = volume.Add(s.usdtLeg(tx))
			burned = burned.Add(s.parse(tx.BurningFee, "burningFee", tx.TxHash))
		case store.StatusFailed:
			out.FailedSwaps++
		default:
			out.PendingSwaps++
		}
	}
	out.VolumeUSDT = volume.String()
	out.BurnedYHT = burned.String()

	refs, err := s.store.Referrals()
	if err != nil {
		return Summary{}, err
	}
	total := decimal.Zero
	paid := decimal.Zero
	for _, ref := range refs {
		amount := s.parse(ref.CommissionAmount, "commissionAmount", ref.ID)
		total = total.Add(amount)
		if ref.Status == store.CommissionPaid {
			paid = paid.Add(amount)
		}
	}
	out.TotalCommission = total.String()
	out.PaidCommission = paid.String()
	out.PendingCommission = total.Sub(paid).String()

	return out, nil
}

// usdtLeg picks the stable side of a confirmed swap for volume accounting.
func (s *Service) usdtLeg(tx store.SwapTransaction) decimal.Decimal {
	switch {
	case tx.ToToken == "USDT":
		return s.parse(tx.ToAmount, "toAmount", tx.TxHash)
	case tx.FromToken == "USDT":
		return s.parse(tx.FromAmount, "fromAmount", tx.TxHash)
	}
	return decimal.Zero
}

func (s *Service) parse(raw, field, id string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		s.log.Warn().Str("field", field).Str("record", id).Str("value", raw).Msg("skipping malformed amount")
		return decimal.Zero
	}
	return d
}
