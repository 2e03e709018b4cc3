package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"eiademand/internal/core"
	applog "eiademand/internal/log"
	"eiademand/internal/middleware/trace"
	"eiademand/internal/services"
)

const dateLayout = "2006-01-02"

type pointResponse struct {
	Date     string  `json:"date"`
	Category string  `json:"category"`
	Demand   float64 `json:"demand"`
}

type demandResponse struct {
	Dataset       string          `json:"dataset"`
	Title         string          `json:"title"`
	UnitLabel     string          `json:"unit_label"`
	CategoryLabel string          `json:"category_label"`
	Start         string          `json:"start"`
	End           string          `json:"end"`
	EasternOnly   bool            `json:"eastern_only"`
	Categories    []string        `json:"categories"`
	Totals        core.TopSet     `json:"totals"`
	Points        []pointResponse `json:"points"`
	Empty         bool            `json:"empty"`
	Warning       string          `json:"warning,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func newDemandResponse(r services.Report) demandResponse {
	resp := demandResponse{
		Dataset:       r.Dataset.Name,
		Title:         r.Dataset.Title,
		UnitLabel:     r.Scale.Label,
		CategoryLabel: r.Dataset.CategoryLabel,
		Start:         r.Start,
		End:           r.End,
		EasternOnly:   r.EasternOnly,
		Categories:    r.Categories(),
		Totals:        r.Top,
		Points:        make([]pointResponse, 0, len(r.Points)),
		Empty:         r.Empty,
		Warning:       r.Warning,
	}
	if resp.Totals == nil {
		resp.Totals = core.TopSet{}
	}
	for _, p := range r.Points {
		resp.Points = append(resp.Points, pointResponse{
			Date:     p.Period.UTC().Format(dateLayout),
			Category: p.Category,
			Demand:   p.Demand,
		})
	}
	return resp
}

// handleDemand serves GET /api/demand.
func (s *Server) handleDemand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := ParseDemandQuery(r.URL.Query(), s.defaults)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.builder.Build(r.Context(), req)
	if err != nil {
		status, msg := statusForError(err)
		logger := applog.FromContext(r.Context())
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), "Demand report failed",
				append(applog.NewFields().WithWindow(req.Dataset, req.Start, req.End).WithError(err).ToSlice(),
					applog.FieldStatusCode, status)...)
		} else {
			logger.WarnContext(r.Context(), "Demand request rejected",
				applog.FieldDataset, req.Dataset,
				applog.FieldError, err.Error())
		}
		s.writeError(w, r, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, newDemandResponse(report))
}

// handleDatasets serves GET /api/datasets.
func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"datasets": s.builder.Datasets(),
		"defaults": map[string]any{
			"dataset": s.defaults.Dataset,
			"start":   s.defaults.Start,
			"end":     s.defaults.End,
			"units":   s.defaults.Unit,
			"top":     s.defaults.TopN,
			"eastern": s.defaults.EasternOnly,
		},
	})
}

// statusForError maps service errors onto HTTP statuses and client-facing messages.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrUnknownDataset):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case services.IsFetchError(err):
		return http.StatusBadGateway, services.NoDataWarning
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady reports whether the service can answer demand requests.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.builder == nil {
		checks["demand_service"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if n := len(s.builder.Datasets()); n == 0 {
		checks["demand_service"] = "failed: no datasets configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["demand_service"] = map[string]any{"datasets": n, "status": "ok"}
	}

	if cr, ok := s.builder.(cacheReporter); ok {
		st := cr.CacheStats()
		checks["cache"] = map[string]any{"entries": st.Size, "status": "ok"}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	uptime := time.Since(s.appMetrics.uptime)

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	if cr, ok := s.builder.(cacheReporter); ok {
		st := cr.CacheStats()
		fmt.Fprintf(w, "# HELP cache_hits_total Total cache hits\n")
		fmt.Fprintf(w, "# TYPE cache_hits_total counter\n")
		fmt.Fprintf(w, "cache_hits_total %d\n\n", st.Hits)

		fmt.Fprintf(w, "# HELP cache_misses_total Total cache misses\n")
		fmt.Fprintf(w, "# TYPE cache_misses_total counter\n")
		fmt.Fprintf(w, "cache_misses_total %d\n\n", st.Misses)

		fmt.Fprintf(w, "# HELP cache_evictions_total Entries evicted for capacity\n")
		fmt.Fprintf(w, "# TYPE cache_evictions_total counter\n")
		fmt.Fprintf(w, "cache_evictions_total %d\n\n", st.Evictions)

		fmt.Fprintf(w, "# HELP cache_entries Current cache entries\n")
		fmt.Fprintf(w, "# TYPE cache_entries gauge\n")
		fmt.Fprintf(w, "cache_entries %d\n\n", st.Size)
	}

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", uptime.Seconds())
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	s.writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
