package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "swapwallet.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndLookupAccount(t *testing.T) {
	s := openTestStore(t)

	created, err := s.CreateAccount(Account{Address: "0xABCD", ReferralCode: "YHT12345"})
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if created.Address != "0xabcd" {
		t.Fatalf("address not normalized: %s", created.Address)
	}
	if created.TotalEarnings != "0" {
		t.Fatalf("expected zero earnings, got %s", created.TotalEarnings)
	}

	byAddr, err := s.Account("0xAbCd")
	if err != nil {
		t.Fatalf("Account returned error: %v", err)
	}
	if byAddr.ReferralCode != "YHT12345" {
		t.Fatalf("unexpected code %s", byAddr.ReferralCode)
	}

	byCode, err := s.AccountByCode("YHT12345")
	if err != nil {
		t.Fatalf("AccountByCode returned error: %v", err)
	}
	if byCode.Address != "0xabcd" {
		t.Fatalf("unexpected address %s", byCode.Address)
	}
}

func TestCreateAccountDuplicates(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateAccount(Account{Address: "0x1", ReferralCode: "CODE1"}); err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if _, err := s.CreateAccount(Account{Address: "0x1"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for address, got %v", err)
	}
	if _, err := s.CreateAccount(Account{Address: "0x2", ReferralCode: "CODE1"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for code, got %v", err)
	}
}

func TestMutateAccountMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.MutateAccount("0xnone", func(*Account) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	s := openTestStore(t)

	swap, err := s.CreateTransaction(SwapTransaction{
		OwnerAddr:  "0xOwner",
		TxHash:     "0xhash1",
		FromToken:  "YHT",
		ToToken:    "USDT",
		FromAmount: "1000",
		ToAmount:   "500",
	})
	if err != nil {
		t.Fatalf("CreateTransaction returned error: %v", err)
	}
	if swap.Status != StatusPending || swap.BurningFee != "0" || swap.ID == "" {
		t.Fatalf("unexpected defaults: %+v", swap)
	}

	if _, err := s.CreateTransaction(SwapTransaction{OwnerAddr: "0xOwner", TxHash: "0xhash1"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := s.UpdateTransactionStatus("0xhash1", StatusConfirmed, 42); err != nil {
		t.Fatalf("UpdateTransactionStatus returned error: %v", err)
	}
	got, err := s.TransactionByHash("0xhash1")
	if err != nil {
		t.Fatalf("TransactionByHash returned error: %v", err)
	}
	if got.Status != StatusConfirmed || got.BlockNumber != 42 || got.ConfirmedAt == nil {
		t.Fatalf("confirmation not recorded: %+v", got)
	}
}

func TestTransactionStatusIsMonotonic(t *testing.T) {
	s := openTestStore(t)

	for hash, terminal := range map[string]string{"0xa": StatusConfirmed, "0xb": StatusFailed} {
		if _, err := s.CreateTransaction(SwapTransaction{OwnerAddr: "0x1", TxHash: hash}); err != nil {
			t.Fatalf("CreateTransaction returned error: %v", err)
		}
		if err := s.UpdateTransactionStatus(hash, terminal, 0); err != nil {
			t.Fatalf("first transition returned error: %v", err)
		}
		if err := s.UpdateTransactionStatus(hash, StatusFailed, 0); !errors.Is(err, ErrTerminalStatus) {
			t.Fatalf("expected ErrTerminalStatus after %s, got %v", terminal, err)
		}
		got, _ := s.TransactionByHash(hash)
		if got.Status != terminal {
			t.Fatalf("terminal status overwritten: %s", got.Status)
		}
	}
}

func TestTransactionsByOwnerNewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := s.CreateTransaction(SwapTransaction{
			OwnerAddr: "0xOwner",
			TxHash:    string(rune('a'+i)) + "-hash",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("CreateTransaction returned error: %v", err)
		}
	}
	if _, err := s.CreateTransaction(SwapTransaction{OwnerAddr: "0xOther", TxHash: "other-hash"}); err != nil {
		t.Fatalf("CreateTransaction returned error: %v", err)
	}

	txs, err := s.TransactionsByOwner("0xOwner", 3)
	if err != nil {
		t.Fatalf("TransactionsByOwner returned error: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	if txs[0].TxHash != "e-hash" || txs[2].TxHash != "c-hash" {
		t.Fatalf("unexpected ordering: %s .. %s", txs[0].TxHash, txs[2].TxHash)
	}
}

func TestReferralRoundTrip(t *testing.T) {
	s := openTestStore(t)

	ref, err := s.CreateReferral(Referral{
		ReferrerAddr:     "0xRef",
		RefereeRef:       "0xhash9",
		TransactionID:    "0xhash9",
		CommissionAmount: "50",
		CommissionToken:  "USDT",
	})
	if err != nil {
		t.Fatalf("CreateReferral returned error: %v", err)
	}
	if ref.ID == "" || ref.Status != CommissionPending {
		t.Fatalf("unexpected defaults: %+v", ref)
	}

	refs, err := s.ReferralsByReferrer("0xREF")
	if err != nil {
		t.Fatalf("ReferralsByReferrer returned error: %v", err)
	}
	if len(refs) != 1 || refs[0].CommissionAmount != "50" {
		t.Fatalf("unexpected referrals: %+v", refs)
	}

	if err := s.MarkReferralPaid(ref.ID); err != nil {
		t.Fatalf("MarkReferralPaid returned error: %v", err)
	}
	refs, _ = s.ReferralsByReferrer("0xref")
	if refs[0].Status != CommissionPaid || refs[0].PaidAt == nil {
		t.Fatalf("paid transition not recorded: %+v", refs[0])
	}
}

func TestPriceSeries(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	for i, age := range []time.Duration{48 * time.Hour, 2 * time.Hour, 10 * time.Minute} {
		_, err := s.AppendPrice(PriceSample{
			TokenPair: "YHT/USDT",
			Price:     []string{"0.40", "0.48", "0.50"}[i],
			Source:    "pancakeswap",
			Timestamp: now.Add(-age),
		})
		if err != nil {
			t.Fatalf("AppendPrice returned error: %v", err)
		}
	}
	if _, err := s.AppendPrice(PriceSample{TokenPair: "BNB/USD", Price: "640", Source: "coingecko", Timestamp: now}); err != nil {
		t.Fatalf("AppendPrice returned error: %v", err)
	}

	latest, err := s.LatestPrice("YHT/USDT")
	if err != nil {
		t.Fatalf("LatestPrice returned error: %v", err)
	}
	if latest.Price != "0.50" {
		t.Fatalf("unexpected latest price %s", latest.Price)
	}

	history, err := s.PriceHistory("YHT/USDT", 24*time.Hour)
	if err != nil {
		t.Fatalf("PriceHistory returned error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 samples in window, got %d", len(history))
	}
	if history[0].Price != "0.48" || history[1].Price != "0.50" {
		t.Fatalf("unexpected window ordering: %+v", history)
	}

	if _, err := s.LatestPrice("NOPE/USD"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSettingsUpsert(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutSetting(Setting{Key: "swap_enabled", Value: "true", Description: "master switch"}); err != nil {
		t.Fatalf("PutSetting returned error: %v", err)
	}
	if err := s.PutSetting(Setting{Key: "swap_enabled", Value: "false"}); err != nil {
		t.Fatalf("PutSetting returned error: %v", err)
	}

	got, err := s.GetSetting("swap_enabled")
	if err != nil {
		t.Fatalf("GetSetting returned error: %v", err)
	}
	if got.Value != "false" {
		t.Fatalf("expected overwrite, got %s", got.Value)
	}

	all, err := s.ListSettings()
	if err != nil {
		t.Fatalf("ListSettings returned error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 setting, got %d", len(all))
	}
}
