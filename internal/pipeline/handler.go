package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/quality"
)

// ReportLister reads persisted quality reports, newest first.
type ReportLister interface {
	Latest(ctx context.Context) (*quality.Report, error)
	List(ctx context.Context, limit int) ([]quality.Report, error)
}

// Handler serves the status API of a long-running transform.
type Handler struct {
	runner  *Runner
	reports ReportLister
	logger  *slog.Logger
}

// NewHandler builds the status API. reports may be nil when quality reports
// are not persisted.
func NewHandler(runner *Runner, reports ReportLister) *Handler {
	return &Handler{
		runner:  runner,
		reports: reports,
		logger:  slog.Default().With("component", "status-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/runs/last", h.LastRun)
	mux.HandleFunc("GET /api/v1/quality/latest", h.LatestReport)
	mux.HandleFunc("GET /api/v1/quality/reports", h.Reports)
}

// LastRun serves the summary of the most recent finished run.
func (h *Handler) LastRun(w http.ResponseWriter, r *http.Request) {
	last := h.runner.Last()
	if last == nil {
		h.write(w, http.StatusNotFound, map[string]string{"error": "no run has finished yet"})
		return
	}
	h.write(w, http.StatusOK, last)
}

// LatestReport serves the newest persisted quality report.
func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		h.write(w, http.StatusNotFound, map[string]string{"error": "quality reports are not persisted"})
		return
	}
	report, err := h.reports.Latest(r.Context())
	if err != nil {
		h.logger.Error("reading latest quality report", "error", err)
		h.write(w, http.StatusInternalServerError, map[string]string{"error": "quality reports unavailable"})
		return
	}
	if report == nil {
		h.write(w, http.StatusNotFound, map[string]string{"error": "no quality report yet"})
		return
	}
	h.write(w, http.StatusOK, report)
}

// Reports serves up to limit persisted reports, newest first.
func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		h.write(w, http.StatusNotFound, map[string]string{"error": "quality reports are not persisted"})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			h.write(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}
	reports, err := h.reports.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing quality reports", "error", err)
		h.write(w, http.StatusInternalServerError, map[string]string{"error": "quality reports unavailable"})
		return
	}
	if reports == nil {
		reports = []quality.Report{}
	}
	h.write(w, http.StatusOK, reports)
}

func (h *Handler) write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
