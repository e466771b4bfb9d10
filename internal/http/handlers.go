package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/aggregate"
	"fintrack/internal/core"
	"fintrack/internal/tracker"
)

type (
	summaryResponse struct {
		Totals    aggregate.Totals `json:"totals"`
		Budget    aggregate.Budget `json:"budget"`
		Formatted formattedSummary `json:"formatted"`
	}

	formattedSummary struct {
		Income  string `json:"income"`
		Expense string `json:"expense"`
		Balance string `json:"balance"`
		Budget  string `json:"budget"`
	}

	listResponse struct {
		Filter       string             `json:"filter"`
		Transactions []core.Transaction `json:"transactions"`
	}
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"storage": "ok"}
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["storage"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}
	respondJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	traceMetrics := s.trace.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP ledger_transactions Current number of transactions\n")
	fmt.Fprintf(w, "# TYPE ledger_transactions gauge\n")
	fmt.Fprintf(w, "ledger_transactions %d\n\n", len(s.tracker.Transactions()))

	reportStats := s.tracker.ReportCacheStats()
	fmt.Fprintf(w, "# HELP report_cache_hits_total Aggregate reports served from cache\n")
	fmt.Fprintf(w, "# TYPE report_cache_hits_total counter\n")
	fmt.Fprintf(w, "report_cache_hits_total %d\n", reportStats.Hits)
	fmt.Fprintf(w, "report_cache_misses_total %d\n\n", reportStats.Misses)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", limitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f := s.filterFrom(r)
	respondJSON(w, http.StatusOK, listResponse{
		Filter:       f.String(),
		Transactions: aggregate.Listing(s.tracker.Transactions(), f),
	})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid request body").Write(w)
		return
	}

	tx, err := s.tracker.SubmitNew(r.Context(), tracker.Fields{
		Name:     p.Get("name"),
		Amount:   p.Get("amount"),
		Date:     p.Get("date"),
		Type:     p.Get("type"),
		Category: p.Get("category"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/v1/transactions/"+tx.ID).
		Payload(tx).
		Write(w)
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid request body").Write(w)
		return
	}

	tx, err := s.tracker.EditField(r.Context(), chi.URLParam(r, "id"), p.Get("field"), p.Get("value"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	d, err := s.tracker.RequestDelete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	tx, err := s.tracker.RequestUndo(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	r := s.tracker.Summary()
	totals, budget := r.Totals, r.Budget
	respondJSON(w, http.StatusOK, summaryResponse{
		Totals: totals,
		Budget: budget,
		Formatted: formattedSummary{
			Income:  core.FormatCurrency(totals.Income),
			Expense: core.FormatCurrency(-totals.Expense),
			Balance: core.FormatCurrency(totals.Balance),
			Budget:  fmt.Sprintf("%s / %s (%.0f%%)", core.FormatUnsigned(budget.Spent), core.FormatUnsigned(budget.Limit), budget.Percent),
		},
	})
}

func (s *Server) handleCategoryChart(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.tracker.Categories())
}

func (s *Server) handleBalanceChart(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.tracker.BalanceSeries())
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.tracker.ViewWith(r.Context(), s.filterFrom(r)))
}

func (s *Server) handleChangeFilter(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid request body").Write(w)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"filter": s.tracker.ChangeFilter(p.Get("filter"))})
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"theme": string(s.tracker.Theme(r.Context()))})
}

func (s *Server) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	t, err := s.tracker.ToggleTheme(r.Context())
	if err != nil {
		respondError(w, r, fmt.Errorf("toggle theme: %w", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"theme": string(t)})
}

// filterFrom reads ?filter= and falls back to the tracker's current filter.
func (s *Server) filterFrom(r *http.Request) aggregate.Filter {
	if r.URL.Query().Has("filter") {
		return aggregate.ParseFilter(r.URL.Query().Get("filter"))
	}
	return s.tracker.Filter()
}
