package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"deepticker/internal/portfolio"
	"deepticker/internal/quote"
	"deepticker/internal/resolver"
)

// quoteService is the slice of the resolver the handlers need.
type quoteService interface {
	Refresh(ctx context.Context, symbols []string) map[string]resolver.Result
	Search(ctx context.Context, query string) ([]quote.SearchResult, error)
}

type server struct {
	quotes    quoteService
	portfolio *portfolio.Store
	log       *logrus.Logger
	timeout   time.Duration
}

func newServer(quotes quoteService, pf *portfolio.Store, timeout time.Duration, log *logrus.Logger) *server {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &server{quotes: quotes, portfolio: pf, log: log, timeout: timeout}
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/v1/quotes", s.handleQuotes).Methods(http.MethodGet)
	r.HandleFunc("/v1/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/v1/portfolio", s.handlePortfolioList).Methods(http.MethodGet)
	r.HandleFunc("/v1/portfolio", s.handlePortfolioAdd).Methods(http.MethodPost)
	r.HandleFunc("/v1/portfolio/refresh", s.handlePortfolioRefresh).Methods(http.MethodPost)
	r.HandleFunc("/v1/portfolio/{symbol}", s.handlePortfolioRemove).Methods(http.MethodDelete)
	return withJSONHeaders(withGzip(recoverPanic(limitBody(r))))
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type quoteResult struct {
	Quote *quote.Quote `json:"quote,omitempty"`
	Error string       `json:"error,omitempty"`
}

type quotesResponse struct {
	Quotes map[string]quoteResult `json:"quotes"`
}

func (s *server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	symbols := splitCSV(raw)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "missing symbols query param")
		return
	}
	if len(symbols) > 100 {
		writeError(w, http.StatusBadRequest, "too many symbols (max 100)")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	results := s.quotes.Refresh(ctx, symbols)
	resp := quotesResponse{Quotes: make(map[string]quoteResult, len(results))}
	failed := 0
	for sym, res := range results {
		if res.Err != nil {
			failed++
			resp.Quotes[sym] = quoteResult{Error: res.Err.Error()}
			continue
		}
		q := res.Quote
		resp.Quotes[sym] = quoteResult{Quote: &q}
	}
	status := http.StatusOK
	if failed == len(results) {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

type searchResponse struct {
	Results []quote.SearchResult `json:"results"`
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q query param")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	results, err := s.quotes.Search(ctx, q)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if results == nil {
		results = []quote.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

type portfolioResponse struct {
	Holdings   []portfolio.Holding `json:"holdings"`
	TotalValue decimal.Decimal     `json:"total_value"`
}

func (s *server) handlePortfolioList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, portfolioResponse{
		Holdings:   s.portfolio.Holdings(),
		TotalValue: s.portfolio.TotalValue(),
	})
}

type addHoldingRequest struct {
	Symbol        string           `json:"symbol"`
	Quantity      decimal.Decimal  `json:"quantity"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
}

func (s *server) handlePortfolioAdd(w http.ResponseWriter, r *http.Request) {
	var body addHoldingRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h, err := s.portfolio.Add(body.Symbol, body.Quantity, body.PurchasePrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *server) handlePortfolioRemove(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if err := s.portfolio.Remove(symbol); err != nil {
		if errors.Is(err, portfolio.ErrNotHeld) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type refreshResponse struct {
	Errors map[string]string `json:"errors,omitempty"`
}

func (s *server) handlePortfolioRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	failures := s.portfolio.RefreshAll(ctx)
	resp := refreshResponse{}
	if len(failures) > 0 {
		resp.Errors = make(map[string]string, len(failures))
		for sym, err := range failures {
			resp.Errors[sym] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses responses when the client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
