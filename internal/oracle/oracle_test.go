package oracle

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/nitikeshq/swapwallet/internal/router"
	"github.com/nitikeshq/swapwallet/internal/store"
	"github.com/nitikeshq/swapwallet/internal/token"
)

var pairABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(`[
  {"name":"getReserves","type":"function","stateMutability":"view","inputs":[],
   "outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},
              {"name":"blockTimestampLast","type":"uint32"}]},
  {"name":"token0","type":"function","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"address"}]}]`))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// fakePool answers getReserves and token0 by inspecting the call selector.
type fakePool struct {
	reserve0 *big.Int
	reserve1 *big.Int
	token0   common.Address
	callErr  error
}

func (f *fakePool) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	if len(msg.Data) < 4 {
		return nil, errors.New("missing selector")
	}
	switch {
	case string(msg.Data[:4]) == string(pairABI.Methods["getReserves"].ID):
		return pairABI.Methods["getReserves"].Outputs.Pack(f.reserve0, f.reserve1, uint32(0))
	case string(msg.Data[:4]) == string(pairABI.Methods["token0"].ID):
		return pairABI.Methods["token0"].Outputs.Pack(f.token0)
	}
	return nil, errors.New("unexpected call")
}

func (f *fakePool) SendTransaction(context.Context, *types.Transaction) error { return nil }
func (f *fakePool) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}
func (f *fakePool) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 0, nil }
func (f *fakePool) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

type captureHub struct {
	mu      sync.Mutex
	updates []Update
}

func (h *captureHub) Broadcast(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, u)
}

func (h *captureHub) snapshot() []Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Update(nil), h.updates...)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "oracle.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func reserves(amount string) *big.Int {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		panic("bad reserve amount")
	}
	return new(big.Int).Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newOracle(client *fakePool, s *store.Store, hub Broadcaster, opts Options) *Oracle {
	return New(router.New(client, token.RouterAddress), s, hub, zerolog.Nop(), opts)
}

func TestPoolPriceOrientsByToken0(t *testing.T) {
	s := newTestStore(t)
	yht := token.MustGet("YHT")
	usdt := token.MustGet("USDT")

	// 1,000,000 YHT against 2,000,000 USDT regardless of slot order.
	cases := []struct {
		name string
		pool *fakePool
	}{
		{"yht in slot0", &fakePool{reserve0: reserves("1000000"), reserve1: reserves("2000000"), token0: yht.Address}},
		{"usdt in slot0", &fakePool{reserve0: reserves("2000000"), reserve1: reserves("1000000"), token0: usdt.Address}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := newOracle(tc.pool, s, nil, Options{})
			update, err := o.PoolPrice(context.Background(), PairYHTUSDT)
			if err != nil {
				t.Fatalf("PoolPrice returned error: %v", err)
			}
			if update.Price != "2.00000000" {
				t.Fatalf("unexpected price %s", update.Price)
			}
			if update.Source != SourcePool {
				t.Fatalf("unexpected source %s", update.Source)
			}
		})
	}
}

func TestPoolPriceUnavailable(t *testing.T) {
	s := newTestStore(t)
	o := newOracle(&fakePool{callErr: errors.New("rpc down")}, s, nil, Options{})
	if _, err := o.PoolPrice(context.Background(), PairYHTUSDT); !errors.Is(err, ErrPoolUnavailable) {
		t.Fatalf("expected ErrPoolUnavailable, got %v", err)
	}
	if _, err := o.PoolPrice(context.Background(), "YHT/BNB"); !errors.Is(err, ErrPoolUnavailable) {
		t.Fatalf("unknown pair should report ErrPoolUnavailable, got %v", err)
	}
}

func TestPoolPriceChange24h(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AppendPrice(store.PriceSample{
		TokenPair: PairYHTUSDT,
		Price:     "1.60000000",
		Source:    SourcePool,
		Timestamp: time.Now().UTC().Add(-12 * time.Hour),
	}); err != nil {
		t.Fatalf("AppendPrice returned error: %v", err)
	}

	pool := &fakePool{reserve0: reserves("1000000"), reserve1: reserves("2000000"), token0: token.MustGet("YHT").Address}
	o := newOracle(pool, s, nil, Options{})
	update, err := o.PoolPrice(context.Background(), PairYHTUSDT)
	if err != nil {
		t.Fatalf("PoolPrice returned error: %v", err)
	}
	// 1.6 -> 2.0 is +25%
	if update.Change24h != "+25.00" {
		t.Fatalf("unexpected 24h change %s", update.Change24h)
	}
}

func TestExternalPriceFromFeed(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "binancecoin") {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"binancecoin":{"usd":640.25,"usd_24h_change":2.15}}`))
	}))
	defer feed.Close()

	s := newTestStore(t)
	o := newOracle(&fakePool{}, s, nil, Options{FeedBaseURL: feed.URL})
	update, err := o.ExternalPrice(context.Background())
	if err != nil {
		t.Fatalf("ExternalPrice returned error: %v", err)
	}
	if update.Price != "640.25" {
		t.Fatalf("unexpected price %s", update.Price)
	}
	if update.Change24h != "+2.15" {
		t.Fatalf("unexpected change %s", update.Change24h)
	}
	if update.Source != SourceFeed {
		t.Fatalf("unexpected source %s", update.Source)
	}
}

func TestExternalPriceFallsBackToCachedSample(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer feed.Close()

	s := newTestStore(t)
	if _, err := s.AppendPrice(store.PriceSample{
		TokenPair: PairBNBUSD,
		Price:     "612.50",
		Source:    SourceFeed,
		Timestamp: time.Now().UTC().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("AppendPrice returned error: %v", err)
	}

	o := newOracle(&fakePool{}, s, nil, Options{FeedBaseURL: feed.URL})
	update, err := o.ExternalPrice(context.Background())
	if err != nil {
		t.Fatalf("fallback must not surface an error: %v", err)
	}
	if update.Price != "612.50" {
		t.Fatalf("expected cached price, got %s", update.Price)
	}
}

func TestExternalPriceFallsBackToDefault(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer feed.Close()

	s := newTestStore(t)
	o := newOracle(&fakePool{}, s, nil, Options{FeedBaseURL: feed.URL, DefaultBNBPrice: "635.42"})
	update, err := o.ExternalPrice(context.Background())
	if err != nil {
		t.Fatalf("fallback must not surface an error: %v", err)
	}
	if update.Price != "635.42" {
		t.Fatalf("expected default price, got %s", update.Price)
	}
}

func TestSamplerRecordsAndBroadcasts(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"binancecoin":{"usd":640,"usd_24h_change":0}}`))
	}))
	defer feed.Close()

	s := newTestStore(t)
	pool := &fakePool{reserve0: reserves("1000000"), reserve1: reserves("2000000"), token0: token.MustGet("YHT").Address}
	hub := &captureHub{}
	o := newOracle(pool, s, hub, Options{FeedBaseURL: feed.URL, SampleInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(done)
	}()
	// Run samples once up front; give the goroutine a moment then stop it.
	deadline := time.After(2 * time.Second)
	for {
		if len(hub.snapshot()) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for samples")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if _, err := s.LatestPrice(PairYHTUSDT); err != nil {
		t.Fatalf("pool sample not stored: %v", err)
	}
	if _, err := s.LatestPrice(PairBNBUSD); err != nil {
		t.Fatalf("feed sample not stored: %v", err)
	}
	pairs := map[string]bool{}
	for _, u := range hub.snapshot() {
		pairs[u.Pair] = true
	}
	if !pairs[PairYHTUSDT] || !pairs[PairBNBUSD] {
		t.Fatalf("expected both pairs broadcast, got %v", pairs)
	}
}
