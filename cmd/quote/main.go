package main

import (
	"context"
	"flag"
	"log"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/nitikeshq/swapwallet/internal/chain"
	"github.com/nitikeshq/swapwallet/internal/config"
	"github.com/nitikeshq/swapwallet/internal/quote"
	"github.com/nitikeshq/swapwallet/internal/referral"
	"github.com/nitikeshq/swapwallet/internal/router"
	"github.com/nitikeshq/swapwallet/internal/store"
	"github.com/nitikeshq/swapwallet/internal/swap"
	"github.com/nitikeshq/swapwallet/internal/token"
)

func main() {
	var (
		cfgPath  = flag.String("config", "internal/config/config.yaml", "config file")
		from     = flag.String("from", "YHT", "input token symbol")
		to       = flag.String("to", "USDT", "output token symbol")
		amount   = flag.String("amount", "1", "input amount in token units")
		slippage = flag.Int("slippage", 50, "slippage tolerance in basis points")
		execute  = flag.Bool("execute", false, "submit the swap on-chain (requires SWAPWALLET_PRIVATE_KEY)")
		referrer = flag.String("ref", "", "referral code to credit on confirmation")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	client, err := chain.Dial(cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("rpc: %v", err)
	}

	rtr := router.New(client, token.RouterAddress)
	engine := quote.NewEngine(rtr, client, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	q, err := engine.Quote(ctx, *from, *to, *amount, *slippage)
	if err != nil {
		log.Fatalf("quote: %v", err)
	}
	log.Printf("%s %s -> %s %s (price %s, min received %s, network fee %s BNB)",
		q.FromAmount, q.FromToken, q.ToAmount, q.ToToken, q.Price, q.MinimumReceived, q.NetworkFee)

	if !*execute {
		return
	}

	wallet, err := chain.LoadWalletFromEnv(cfg.Chain.ChainID)
	if err != nil {
		log.Fatalf("wallet: %v", err)
	}

	fromTok, err := token.Lookup(*from)
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	if !fromTok.Native {
		balance, err := rtr.BalanceOf(ctx, fromTok.Address, wallet.Address())
		if err != nil {
			log.Fatalf("balance: %v", err)
		}
		if balance.Cmp(q.AmountInWei) < 0 {
			log.Fatalf("insufficient %s balance for %s", fromTok.Symbol, q.FromAmount)
		}
	}

	db, err := store.Open(filepath.Clean(cfg.Store.Path))
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer db.Close()

	ledger := referral.NewLedger(db, zerolog.Nop())
	exec := swap.NewExecutor(client, rtr, db, ledger, zerolog.Nop(), swap.Options{
		QuoteTTL:        time.Duration(cfg.Chain.QuoteTTLSecs) * time.Second,
		Deadline:        time.Duration(cfg.Chain.DeadlineMins) * time.Minute,
		PollInterval:    time.Duration(cfg.Chain.PollIntervalSecs) * time.Second,
		RetryInterval:   time.Duration(cfg.Chain.RetryIntervalSecs) * time.Second,
		MaxPollAttempts: cfg.Chain.MaxPollAttempts,
	})

	rec, watcher, err := exec.Submit(context.Background(), q, wallet, *referrer)
	if err != nil {
		log.Fatalf("swap: %v", err)
	}
	log.Printf("submitted tx: %s", rec.TxHash)

	<-watcher.Done()
	log.Printf("outcome: %s", watcher.Outcome())
}
