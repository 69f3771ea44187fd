// Package oracle derives the YHT/USDT price from pool reserves and mirrors the
// BNB price from an external feed, appending every reading to the stored price
// series. Prices are snapshots; consumers check the sample timestamp.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nitikeshq/swapwallet/internal/metrics"
	"github.com/nitikeshq/swapwallet/internal/router"
	"github.com/nitikeshq/swapwallet/internal/store"
	"github.com/nitikeshq/swapwallet/internal/token"
)

var (
	// ErrPoolUnavailable is returned when the pool read fails.
	ErrPoolUnavailable = errors.New("liquidity pool unavailable")
	// ErrFeedUnavailable is returned when the external feed fails and no
	// cached or default value exists.
	ErrFeedUnavailable = errors.New("price feed unavailable")
)

// Price sources recorded on samples.
const (
	SourcePool = "pancakeswap"
	SourceFeed = "coingecko"
)

// PairYHTUSDT is the only pool-backed pair; BNB uses the external feed.
const (
	PairYHTUSDT = "YHT/USDT"
	PairBNBUSD  = "BNB/USD"
)

// Update is one price reading pushed to subscribers.
type Update struct {
	Pair      string    `json:"pair"`
	Price     string    `json:"price"`
	Change24h string    `json:"change24h"`
	Liquidity string    `json:"liquidity,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster receives every sampled price; the websocket hub implements it.
type Broadcaster interface {
	Broadcast(Update)
}

// Options tunes the oracle.
type Options struct {
	FeedBaseURL     string
	SampleInterval  time.Duration
	DefaultBNBPrice string
}

func (o Options) withDefaults() Options {
	if o.FeedBaseURL == "" {
		o.FeedBaseURL = "https://api.coingecko.com"
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = 30 * time.Second
	}
	if o.DefaultBNBPrice == "" {
		o.DefaultBNBPrice = "635.42"
	}
	return o
}

// Oracle reads pool and feed prices and owns the background sampler.
type Oracle struct {
	router *router.Router
	store  *store.Store
	http   *http.Client
	hub    Broadcaster
	log    zerolog.Logger
	opts   Options
}

// New wires an oracle. hub may be nil when nothing subscribes to live updates.
func New(r *router.Router, s *store.Store, hub Broadcaster, log zerolog.Logger, opts Options) *Oracle {
	return &Oracle{
		router: r,
		store:  s,
		http:   &http.Client{Timeout: 10 * time.Second},
		hub:    hub,
		log:    log,
		opts:   opts.withDefaults(),
	}
}

// PoolPrice derives the pair price from pool reserve ratios. The reserve slots
// are resolved through token0 explicitly; pool ordering is never assumed.
func (o *Oracle) PoolPrice(ctx context.Context, pairKey string) (Update, error) {
	if pairKey != PairYHTUSDT {
		return Update{}, fmt.Errorf("%w: no pool for %s", ErrPoolUnavailable, pairKey)
	}
	reserve0, reserve1, err := o.router.Reserves(ctx, token.PoolYHTUSDT)
	if err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrPoolUnavailable, err)
	}
	token0, err := o.router.Token0(ctx, token.PoolYHTUSDT)
	if err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrPoolUnavailable, err)
	}

	yht := token.MustGet("YHT")
	baseReserve, quoteReserve := reserve0, reserve1
	if token0 != yht.Address {
		baseReserve, quoteReserve = reserve1, reserve0
	}
	if baseReserve.Sign() == 0 {
		return Update{}, fmt.Errorf("%w: empty base reserve", ErrPoolUnavailable)
	}

	base := decimal.NewFromBigInt(baseReserve, -int32(yht.Decimals))
	quote := decimal.NewFromBigInt(quoteReserve, -int32(token.MustGet("USDT").Decimals))
	price := quote.Div(base)

	return Update{
		Pair:      pairKey,
		Price:     price.StringFixed(8),
		Change24h: o.change24h(pairKey, price),
		Liquidity: quote.Mul(decimal.NewFromInt(2)).StringFixed(2),
		Source:    SourcePool,
		Timestamp: time.Now().UTC(),
	}, nil
}

// coingeckoResponse mirrors the simple-price endpoint body.
type coingeckoResponse struct {
	Binancecoin struct {
		USD       float64 `json:"usd"`
		Change24h float64 `json:"usd_24h_change"`
	} `json:"binancecoin"`
}

// ExternalPrice fetches the BNB price from the feed. Failures degrade to the
// last stored sample and then to the configured default; display beats blocking.
func (o *Oracle) ExternalPrice(ctx context.Context) (Update, error) {
	update, err := o.fetchFeed(ctx)
	if err == nil {
		return update, nil
	}
	o.log.Warn().Err(err).Msg("price feed failed, falling back")

	if cached, cacheErr := o.store.LatestPrice(PairBNBUSD); cacheErr == nil {
		return Update{
			Pair:      PairBNBUSD,
			Price:     cached.Price,
			Change24h: "0",
			Source:    cached.Source,
			Timestamp: cached.Timestamp,
		}, nil
	}
	return Update{
		Pair:      PairBNBUSD,
		Price:     o.opts.DefaultBNBPrice,
		Change24h: "0",
		Source:    SourceFeed,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (o *Oracle) fetchFeed(ctx context.Context) (Update, error) {
	url := o.opts.FeedBaseURL + "/api/v3/simple/price?ids=binancecoin&vs_currencies=usd&include_24hr_change=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Update{}, fmt.Errorf("%w: status %d", ErrFeedUnavailable, resp.StatusCode)
	}
	var body coingeckoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	if body.Binancecoin.USD <= 0 {
		return Update{}, fmt.Errorf("%w: missing price", ErrFeedUnavailable)
	}
	return Update{
		Pair:      PairBNBUSD,
		Price:     decimal.NewFromFloat(body.Binancecoin.USD).String(),
		Change24h: fmt.Sprintf("%+.2f", body.Binancecoin.Change24h),
		Source:    SourceFeed,
		Timestamp: time.Now().UTC(),
	}, nil
}

// change24h compares against the oldest stored sample inside the 24h window.
func (o *Oracle) change24h(pairKey string, current decimal.Decimal) string {
	history, err := o.store.PriceHistory(pairKey, 24*time.Hour)
	if err != nil || len(history) == 0 {
		return "0"
	}
	oldest, err := decimal.NewFromString(history[0].Price)
	if err != nil || !oldest.IsPositive() {
		return "0"
	}
	change := current.Sub(oldest).Div(oldest).Mul(decimal.NewFromInt(100))
	f, _ := change.Float64()
	return fmt.Sprintf("%+.2f", f)
}

// Run samples prices at the configured cadence until the context is canceled.
func (o *Oracle) Run(ctx context.Context) error {
	o.sampleOnce(ctx)

	ticker := time.NewTicker(o.opts.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.sampleOnce(ctx)
		}
	}
}

func (o *Oracle) sampleOnce(ctx context.Context) {
	if update, err := o.PoolPrice(ctx, PairYHTUSDT); err != nil {
		o.log.Warn().Err(err).Msg("pool price sample failed")
	} else {
		o.record(update)
	}
	if update, err := o.ExternalPrice(ctx); err != nil {
		o.log.Warn().Err(err).Msg("external price sample failed")
	} else {
		o.record(update)
	}
}

func (o *Oracle) record(update Update) {
	_, err := o.store.AppendPrice(store.PriceSample{
		TokenPair: update.Pair,
		Price:     update.Price,
		Liquidity: update.Liquidity,
		Source:    update.Source,
		Timestamp: update.Timestamp,
	})
	if err != nil {
		o.log.Error().Err(err).Str("pair", update.Pair).Msg("failed to append price sample")
		return
	}
	metrics.PriceSamplesTotal.WithLabelValues(update.Source).Inc()
	if o.hub != nil {
		o.hub.Broadcast(update)
	}
}
