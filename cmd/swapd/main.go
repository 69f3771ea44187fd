package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/nitikeshq/swapwallet/internal/analytics"
	"github.com/nitikeshq/swapwallet/internal/api"
	"github.com/nitikeshq/swapwallet/internal/chain"
	"github.com/nitikeshq/swapwallet/internal/config"
	"github.com/nitikeshq/swapwallet/internal/metrics"
	"github.com/nitikeshq/swapwallet/internal/oracle"
	"github.com/nitikeshq/swapwallet/internal/quote"
	"github.com/nitikeshq/swapwallet/internal/referral"
	"github.com/nitikeshq/swapwallet/internal/router"
	"github.com/nitikeshq/swapwallet/internal/store"
	"github.com/nitikeshq/swapwallet/internal/token"
	"github.com/nitikeshq/swapwallet/internal/util"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		log := util.NewLogger("info")
		log.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("open store")
	}
	defer db.Close()

	client, err := chain.Dial(cfg.Chain.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Str("rpc", cfg.Chain.RPCURL).Msg("dial chain")
	}

	rtr := router.New(client, token.RouterAddress)
	ledger := referral.NewLedger(db, log)
	engine := quote.NewEngine(rtr, client, log)

	hub := api.NewHub(log)
	go hub.Run(ctx)

	oracleSvc := oracle.New(rtr, db, hub, log, oracle.Options{
		FeedBaseURL:     cfg.Oracle.FeedBaseURL,
		SampleInterval:  time.Duration(cfg.Oracle.SampleIntervalMs) * time.Millisecond,
		DefaultBNBPrice: cfg.Oracle.DefaultBNBPrice,
	})
	go func() {
		if err := oracleSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("price sampler stopped")
			cancel()
		}
	}()

	secret := os.Getenv(cfg.Admin.JWTSecretEnv)
	if secret == "" {
		log.Warn().Str("env", cfg.Admin.JWTSecretEnv).Msg("admin secret unset, admin surface locked out")
	}
	server := api.NewServer(db, ledger, engine, oracleSvc, analytics.New(db, log), hub, []byte(secret), log)

	httpSrv := &http.Server{
		Addr:              cfg.App.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.App.ListenAddr).Msg("api up")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}
