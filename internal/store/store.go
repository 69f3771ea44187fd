// Package store persists accounts, swap transactions, referral commissions,
// price samples, and admin settings in a single bolt database. One Store is
// constructed per process and handed to each component; tests open their own
// file under t.TempDir().
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/nitikeshq/swapwallet/internal/token"
)

var (
	bucketAccounts  = []byte("accounts")
	bucketCodes     = []byte("referralCodes")
	bucketTxs       = []byte("transactions")
	bucketOwnerTxs  = []byte("ownerTransactions")
	bucketReferrals = []byte("referrals")
	bucketRefIdx    = []byte("referrerIndex")
	bucketPrices    = []byte("prices")
	bucketSettings  = []byte("settings")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a create collides with an existing key.
	ErrDuplicate = errors.New("record already exists")
	// ErrTerminalStatus is returned when a write would leave a terminal transaction status.
	ErrTerminalStatus = errors.New("transaction status is terminal")
)

// Swap transaction lifecycle statuses. Confirmed and failed are terminal.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Referral commission statuses.
const (
	CommissionPending = "pending"
	CommissionPaid    = "paid"
)

// Account is a wallet-addressed user with referral state. Monetary fields are
// decimal strings; arithmetic on them happens in the referral ledger.
type Account struct {
	Address           string    `json:"address"`
	ReferralCode      string    `json:"referralCode,omitempty"`
	ReferredBy        string    `json:"referredBy,omitempty"`
	TotalEarnings     string    `json:"totalEarnings"`
	MilestoneAchieved bool      `json:"milestoneAchieved"`
	BTCBonusClaimed   bool      `json:"btcBonusClaimed"`
	CreatedAt         time.Time `json:"createdAt"`
}

// SwapTransaction is the persisted record of a submitted on-chain swap.
type SwapTransaction struct {
	ID          string     `json:"id"`
	OwnerAddr   string     `json:"ownerAddress"`
	TxHash      string     `json:"txHash"`
	FromToken   string     `json:"fromToken"`
	ToToken     string     `json:"toToken"`
	FromAmount  string     `json:"fromAmount"`
	ToAmount    string     `json:"toAmount"`
	Status      string     `json:"status"`
	BurningFee  string     `json:"burningFee"`
	BlockNumber uint64     `json:"blockNumber,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// Referral records a single commission owed to a referrer.
type Referral struct {
	ID               string     `json:"id"`
	ReferrerAddr     string     `json:"referrerAddress"`
	RefereeRef       string     `json:"refereeRef"`
	TransactionID    string     `json:"transactionId"`
	CommissionAmount string     `json:"commissionAmount"`
	CommissionToken  string     `json:"commissionToken"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
}

// PriceSample is one append-only point of a pair's price series.
type PriceSample struct {
	ID        string    `json:"id"`
	TokenPair string    `json:"tokenPair"`
	Price     string    `json:"price"`
	Volume24h string    `json:"volume24h,omitempty"`
	Liquidity string    `json:"liquidity,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Setting is an admin-owned configuration row, overwritten in place.
type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store wraps the bolt handle.
type Store struct {
	db *bolt.DB
}

// Open initialises (and migrates) the bolt-backed store.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			bucketAccounts, bucketCodes, bucketTxs, bucketOwnerTxs,
			bucketReferrals, bucketRefIdx, bucketPrices, bucketSettings,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- accounts ---

// Account loads an account by wallet address.
func (s *Store) Account(address string) (Account, error) {
	var acct Account
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAccounts).Get([]byte(token.NormalizeAddress(address)))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &acct)
	})
	return acct, err
}

// AccountByCode resolves a referral code to its owning account.
func (s *Store) AccountByCode(code string) (Account, error) {
	var acct Account
	err := s.db.View(func(tx *bolt.Tx) error {
		addr := tx.Bucket(bucketCodes).Get([]byte(code))
		if addr == nil {
			return ErrNotFound
		}
		raw := tx.Bucket(bucketAccounts).Get(addr)
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &acct)
	})
	return acct, err
}

// CreateAccount inserts a new account and its referral-code index entry.
// Fails with ErrDuplicate when the address or the code is already taken.
func (s *Store) CreateAccount(acct Account) (Account, error) {
	acct.Address = token.NormalizeAddress(acct.Address)
	if acct.TotalEarnings == "" {
		acct.TotalEarnings = "0"
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		if accounts.Get([]byte(acct.Address)) != nil {
			return fmt.Errorf("%w: address %s", ErrDuplicate, acct.Address)
		}
		codes := tx.Bucket(bucketCodes)
		if acct.ReferralCode != "" {
			if codes.Get([]byte(acct.ReferralCode)) != nil {
				return fmt.Errorf("%w: referral code %s", ErrDuplicate, acct.ReferralCode)
			}
			if err := codes.Put([]byte(acct.ReferralCode), []byte(acct.Address)); err != nil {
				return err
			}
		}
		raw, err := json.Marshal(acct)
		if err != nil {
			return err
		}
		return accounts.Put([]byte(acct.Address), raw)
	})
	return acct, err
}

// MutateAccount applies a read-modify-write mutation to an account inside one
// write transaction. Bolt serializes writers, so concurrent mutations of the
// same account cannot lose updates.
func (s *Store) MutateAccount(address string, fn func(*Account) error) (Account, error) {
	key := []byte(token.NormalizeAddress(address))
	var result Account
	err := s.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		raw := accounts.Get(key)
		if raw == nil {
			return ErrNotFound
		}
		var acct Account
		if err := json.Unmarshal(raw, &acct); err != nil {
			return err
		}
		if err := fn(&acct); err != nil {
			return err
		}
		updated, err := json.Marshal(acct)
		if err != nil {
			return err
		}
		result = acct
		return accounts.Put(key, updated)
	})
	return result, err
}

// Accounts returns every account (admin read model).
func (s *Store) Accounts() ([]Account, error) {
	var out []Account
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(_, raw []byte) error {
			var acct Account
			if err := json.Unmarshal(raw, &acct); err != nil {
				return err
			}
			out = append(out, acct)
			return nil
		})
	})
	return out, err
}

// --- transactions ---

func ownerTxKey(owner string, createdAt time.Time, hash string) []byte {
	return []byte(owner + "|" + createdAt.UTC().Format(time.RFC3339Nano) + "|" + hash)
}

// CreateTransaction persists a pending swap record keyed by transaction hash.
func (s *Store) CreateTransaction(swap SwapTransaction) (SwapTransaction, error) {
	swap.OwnerAddr = token.NormalizeAddress(swap.OwnerAddr)
	if swap.ID == "" {
		swap.ID = uuid.NewString()
	}
	if swap.Status == "" {
		swap.Status = StatusPending
	}
	if swap.BurningFee == "" {
		swap.BurningFee = "0"
	}
	if swap.CreatedAt.IsZero() {
		swap.CreatedAt = time.Now().UTC()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		txs := tx.Bucket(bucketTxs)
		if txs.Get([]byte(swap.TxHash)) != nil {
			return fmt.Errorf("%w: tx %s", ErrDuplicate, swap.TxHash)
		}
		raw, err := json.Marshal(swap)
		if err != nil {
			return err
		}
		if err := txs.Put([]byte(swap.TxHash), raw); err != nil {
			return err
		}
		return tx.Bucket(bucketOwnerTxs).Put(ownerTxKey(swap.OwnerAddr, swap.CreatedAt, swap.TxHash), []byte(swap.TxHash))
	})
	return swap, err
}

// TransactionByHash loads a swap record by its on-chain hash.
func (s *Store) TransactionByHash(txHash string) (SwapTransaction, error) {
	var swap SwapTransaction
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTxs).Get([]byte(txHash))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &swap)
	})
	return swap, err
}

// TransactionsByOwner returns the owner's swaps, newest first, up to limit.
func (s *Store) TransactionsByOwner(owner string, limit int) ([]SwapTransaction, error) {
	if limit <= 0 {
		limit = 10
	}
	prefix := []byte(token.NormalizeAddress(owner) + "|")
	var out []SwapTransaction
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketOwnerTxs).Cursor()
		txs := tx.Bucket(bucketTxs)
		var hashes [][]byte
		for k, v := idx.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = idx.Next() {
			hashes = append(hashes, v)
		}
		for i := len(hashes) - 1; i >= 0 && len(out) < limit; i-- {
			raw := txs.Get(hashes[i])
			if raw == nil {
				continue
			}
			var swap SwapTransaction
			if err := json.Unmarshal(raw, &swap); err != nil {
				return err
			}
			out = append(out, swap)
		}
		return nil
	})
	return out, err
}

// Transactions returns every swap record (admin read model).
func (s *Store) Transactions() ([]SwapTransaction, error) {
	var out []SwapTransaction
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTxs).ForEach(func(_, raw []byte) error {
			var swap SwapTransaction
			if err := json.Unmarshal(raw, &swap); err != nil {
				return err
			}
			out = append(out, swap)
			return nil
		})
	})
	return out, err
}

// UpdateTransactionStatus moves a pending transaction to a new status. Terminal
// statuses are never overwritten.
func (s *Store) UpdateTransactionStatus(txHash, status string, blockNumber uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		txs := tx.Bucket(bucketTxs)
		raw := txs.Get([]byte(txHash))
		if raw == nil {
			return ErrNotFound
		}
		var swap SwapTransaction
		if err := json.Unmarshal(raw, &swap); err != nil {
			return err
		}
		if swap.Status == StatusConfirmed || swap.Status == StatusFailed {
			return fmt.Errorf("%w: %s is %s", ErrTerminalStatus, txHash, swap.Status)
		}
		swap.Status = status
		if blockNumber > 0 {
			swap.BlockNumber = blockNumber
		}
		if status == StatusConfirmed {
			now := time.Now().UTC()
			swap.ConfirmedAt = &now
		}
		updated, err := json.Marshal(swap)
		if err != nil {
			return err
		}
		return txs.Put([]byte(txHash), updated)
	})
}

// --- referrals ---

func referrerIdxKey(referrer string, createdAt time.Time, id string) []byte {
	return []byte(referrer + "|" + createdAt.UTC().Format(time.RFC3339Nano) + "|" + id)
}

// CreateReferral records a commission row for a referrer.
func (s *Store) CreateReferral(ref Referral) (Referral, error) {
	ref.ReferrerAddr = token.NormalizeAddress(ref.ReferrerAddr)
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.Status == "" {
		ref.Status = CommissionPending
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(ref)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketReferrals).Put([]byte(ref.ID), raw); err != nil {
			return err
		}
		return tx.Bucket(bucketRefIdx).Put(referrerIdxKey(ref.ReferrerAddr, ref.CreatedAt, ref.ID), []byte(ref.ID))
	})
	return ref, err
}

// ReferralsByReferrer lists the commissions owed to one referrer, oldest first.
func (s *Store) ReferralsByReferrer(referrer string) ([]Referral, error) {
	prefix := []byte(token.NormalizeAddress(referrer) + "|")
	var out []Referral
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketRefIdx).Cursor()
		refs := tx.Bucket(bucketReferrals)
		for k, v := idx.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = idx.Next() {
			raw := refs.Get(v)
			if raw == nil {
				continue
			}
			var ref Referral
			if err := json.Unmarshal(raw, &ref); err != nil {
				return err
			}
			out = append(out, ref)
		}
		return nil
	})
	return out, err
}

// Referrals returns every commission row (admin read model).
func (s *Store) Referrals() ([]Referral, error) {
	var out []Referral
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReferrals).ForEach(func(_, raw []byte) error {
			var ref Referral
			if err := json.Unmarshal(raw, &ref); err != nil {
				return err
			}
			out = append(out, ref)
			return nil
		})
	})
	return out, err
}

// MarkReferralPaid transitions a commission from pending to paid.
func (s *Store) MarkReferralPaid(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		refs := tx.Bucket(bucketReferrals)
		raw := refs.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		var ref Referral
		if err := json.Unmarshal(raw, &ref); err != nil {
			return err
		}
		if ref.Status == CommissionPaid {
			return nil
		}
		now := time.Now().UTC()
		ref.Status = CommissionPaid
		ref.PaidAt = &now
		updated, err := json.Marshal(ref)
		if err != nil {
			return err
		}
		return refs.Put([]byte(id), updated)
	})
}

// --- prices ---

func priceKey(pair string, ts time.Time) []byte {
	return []byte(pair + "|" + ts.UTC().Format(time.RFC3339Nano))
}

// AppendPrice adds one sample to a pair's series. Samples are never mutated.
func (s *Store) AppendPrice(sample PriceSample) (PriceSample, error) {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(sample)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPrices).Put(priceKey(sample.TokenPair, sample.Timestamp), raw)
	})
	return sample, err
}

// LatestPrice returns the most recent sample for a pair.
func (s *Store) LatestPrice(pair string) (PriceSample, error) {
	var sample PriceSample
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPrices).Cursor()
		prefix := []byte(pair + "|")
		// Seek past the prefix range, then step back to its last key.
		k, v := c.Seek(append(prefix, 0xff))
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		if k == nil || !bytes.HasPrefix(k, prefix) {
			return ErrNotFound
		}
		return json.Unmarshal(v, &sample)
	})
	return sample, err
}

// PriceHistory returns a pair's samples inside the trailing window, oldest first.
func (s *Store) PriceHistory(pair string, window time.Duration) ([]PriceSample, error) {
	cutoff := time.Now().UTC().Add(-window)
	prefix := []byte(pair + "|")
	var out []PriceSample
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPrices).Cursor()
		for k, v := c.Seek(priceKey(pair, cutoff)); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var sample PriceSample
			if err := json.Unmarshal(v, &sample); err != nil {
				return err
			}
			out = append(out, sample)
		}
		return nil
	})
	return out, err
}

// --- settings ---

// PutSetting upserts an admin setting, overwriting any previous value.
func (s *Store) PutSetting(setting Setting) error {
	setting.UpdatedAt = time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(setting)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSettings).Put([]byte(setting.Key), raw)
	})
}

// GetSetting loads a setting by key.
func (s *Store) GetSetting(key string) (Setting, error) {
	var setting Setting
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSettings).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &setting)
	})
	return setting, err
}

// ListSettings returns every setting row.
func (s *Store) ListSettings() ([]Setting, error) {
	var out []Setting
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).ForEach(func(_, raw []byte) error {
			var setting Setting
			if err := json.Unmarshal(raw, &setting); err != nil {
				return err
			}
			out = append(out, setting)
			return nil
		})
	})
	return out, err
}
