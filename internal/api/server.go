package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/mtlprog/fundfee/internal/fund"
)

// NewServer creates an HTTP server with all routes configured. Mutating routes require
// the admin key when one is set.
func NewServer(port string, funds *fund.Service, rates RateBook, adminAPIKey string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(funds, rates, adminAPIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewRouter returns the API routes.
func NewRouter(funds *fund.Service, rates RateBook, adminAPIKey string) http.Handler {
	handler := NewHandler(funds, rates)

	protect := func(h http.HandlerFunc) http.Handler {
		if adminAPIKey == "" {
			return h
		}
		return requireAuth(adminAPIKey, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/funds", handler.ListFunds)
	mux.HandleFunc("GET /api/v1/funds/{id}", handler.GetFund)
	mux.HandleFunc("GET /api/v1/funds/{id}/value", handler.GetValue)
	mux.HandleFunc("GET /api/v1/funds/{id}/settlements", handler.ListSettlements)
	mux.HandleFunc("GET /api/v1/rates", handler.ListRates)

	mux.Handle("POST /api/v1/funds", protect(handler.CreateFund))
	mux.Handle("POST /api/v1/funds/{id}/fees", protect(handler.AttachFees))
	mux.Handle("POST /api/v1/funds/{id}/dispatch", protect(handler.Dispatch))
	mux.Handle("PUT /api/v1/funds/{id}/protocol-fee", protect(handler.SetProtocolFee))
	mux.Handle("POST /api/v1/funds/{id}/payout", protect(handler.Payout))
	mux.Handle("POST /api/v1/funds/{id}/buy", protect(handler.Buy))
	mux.Handle("POST /api/v1/funds/{id}/redeem", protect(handler.Redeem))
	mux.Handle("POST /api/v1/funds/{id}/sync", protect(handler.SyncHoldings))
	mux.Handle("POST /api/v1/funds/{id}/tick", protect(handler.Tick))

	return mux
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
