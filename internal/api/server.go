// Package api exposes the HTTP surface: wallet accounts, swap history,
// referrals, prices, quotes, and a JWT-guarded admin area.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/nitikeshq/swapwallet/internal/analytics"
	"github.com/nitikeshq/swapwallet/internal/oracle"
	"github.com/nitikeshq/swapwallet/internal/quote"
	"github.com/nitikeshq/swapwallet/internal/referral"
	"github.com/nitikeshq/swapwallet/internal/store"
	"github.com/nitikeshq/swapwallet/internal/token"
)

// Quoter prices a proposed swap.
type Quoter interface {
	Quote(ctx context.Context, fromSym, toSym, amountIn string, slippageBps int) (*quote.Quote, error)
}

// PriceSource serves live price reads.
type PriceSource interface {
	PoolPrice(ctx context.Context, pairKey string) (oracle.Update, error)
	ExternalPrice(ctx context.Context) (oracle.Update, error)
}

// Server holds the route dependencies.
type Server struct {
	store     *store.Store
	ledger    *referral.Ledger
	quoter    Quoter
	prices    PriceSource
	analytics *analytics.Service
	hub       *Hub
	jwtSecret []byte
	log       zerolog.Logger
}

func NewServer(s *store.Store, ledger *referral.Ledger, quoter Quoter, prices PriceSource, an *analytics.Service, hub *Hub, jwtSecret []byte, log zerolog.Logger) *Server {
	return &Server{
		store:     s,
		ledger:    ledger,
		quoter:    quoter,
		prices:    prices,
		analytics: an,
		hub:       hub,
		jwtSecret: jwtSecret,
		log:       log,
	}
}

// Handler assembles the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLog)

	r.Route("/api", func(r chi.Router) {
		r.Get("/users", s.handleListUsers)
		r.Post("/users", s.handleCreateUser)
		r.Get("/users/{address}", s.handleGetUser)
		r.Post("/users/{address}/claim-bonus", s.handleClaimBonus)
		r.Get("/transactions/{address}", s.handleTransactions)
		r.Get("/referrals/{address}", s.handleReferrals)
		r.Get("/referral-code/{code}", s.handleValidateCode)
		r.Get("/prices/{pair}", s.handlePrice)
		r.Get("/prices/{pair}/history", s.handlePriceHistory)
		r.Post("/quotes", s.handleQuote)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/summary", s.handleAdminSummary)
			r.Get("/settings", s.handleListSettings)
			r.Put("/settings", s.handlePutSetting)
			r.Put("/referrals/{id}/paid", s.handleMarkPaid)
		})
	})

	if s.hub != nil {
		r.Get("/ws/prices", s.hub.ServeWS)
	}
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// requireAdmin checks a Bearer token signed with the shared admin secret.
// An empty secret disables the admin surface entirely: jwt.Parse would
// otherwise verify tokens signed with the empty key.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.jwtSecret) == 0 {
			writeError(w, http.StatusUnauthorized, "admin surface disabled")
			return
		}
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.jwtSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- users ---

type createUserRequest struct {
	Address    string `json:"address"`
	ReferredBy string `json:"referredBy,omitempty"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	acct, err := s.ledger.CreateAccount(req.Address, req.ReferredBy)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	accounts, err := s.store.Accounts()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	address := token.NormalizeAddress(chi.URLParam(r, "address"))
	acct, err := s.store.Account(address)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleClaimBonus(w http.ResponseWriter, r *http.Request) {
	address := token.NormalizeAddress(chi.URLParam(r, "address"))
	if err := s.ledger.ClaimMilestoneBonus(address); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"claimed": true})
}

// --- transactions & referrals ---

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	address := token.NormalizeAddress(chi.URLParam(r, "address"))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	txs, err := s.store.TransactionsByOwner(address, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleReferrals(w http.ResponseWriter, r *http.Request) {
	address := token.NormalizeAddress(chi.URLParam(r, "address"))
	refs, err := s.store.ReferralsByReferrer(address)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleValidateCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	referrer, err := s.ledger.ValidateCode(code)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "referrerAddress": referrer})
}

// --- prices ---

// pairParam accepts "YHT-USDT" in the path for the stored key "YHT/USDT".
func pairParam(r *http.Request) string {
	return strings.ReplaceAll(chi.URLParam(r, "pair"), "-", "/")
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	pair := pairParam(r)
	switch pair {
	case oracle.PairYHTUSDT:
		update, err := s.prices.PoolPrice(r.Context(), pair)
		if err == nil {
			writeJSON(w, http.StatusOK, update)
			return
		}
		// fall back to the last stored sample
		sample, cacheErr := s.store.LatestPrice(pair)
		if cacheErr != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, oracle.Update{
			Pair:      sample.TokenPair,
			Price:     sample.Price,
			Change24h: "0",
			Liquidity: sample.Liquidity,
			Source:    sample.Source,
			Timestamp: sample.Timestamp,
		})
	case oracle.PairBNBUSD:
		update, err := s.prices.ExternalPrice(r.Context())
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, update)
	default:
		writeError(w, http.StatusNotFound, "unknown pair")
	}
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	pair := pairParam(r)
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}
	history, err := s.store.PriceHistory(pair, time.Duration(hours)*time.Hour)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// --- quotes ---

type quoteRequest struct {
	FromToken   string `json:"fromToken"`
	ToToken     string `json:"toToken"`
	Amount      string `json:"amount"`
	SlippageBps int    `json:"slippageBps"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	q, err := s.quoter.Quote(r.Context(), req.FromToken, req.ToToken, req.Amount, req.SlippageBps)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// --- admin ---

func (s *Server) handleAdminSummary(w http.ResponseWriter, _ *http.Request) {
	sum, err := s.analytics.Summary()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleListSettings(w http.ResponseWriter, _ *http.Request) {
	settings, err := s.store.ListSettings()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	var setting store.Setting
	if err := json.NewDecoder(r.Body).Decode(&setting); err != nil || setting.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if err := s.store.PutSetting(setting); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.MarkCommissionPaid(chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paid": true})
}

// --- responses ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps sentinel errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, referral.ErrDuplicateAddress), errors.Is(err, store.ErrDuplicate),
		errors.Is(err, referral.ErrAlreadyClaimed), errors.Is(err, store.ErrTerminalStatus):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, referral.ErrNotEligible),
		errors.Is(err, quote.ErrInvalidToken), errors.Is(err, quote.ErrInvalidAmount),
		errors.Is(err, quote.ErrInvalidSlippage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, quote.ErrPricingUnavailable), errors.Is(err, oracle.ErrPoolUnavailable),
		errors.Is(err, oracle.ErrFeedUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
