// Package api is the HTTP surface of the monitor: manual run triggers,
// record listing and the audit report.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/pipeline"
	"github.com/ignite/adchange-monitor/internal/pkg/distlock"
	"github.com/ignite/adchange-monitor/internal/pkg/httputil"
	"github.com/ignite/adchange-monitor/internal/records"
	"github.com/ignite/adchange-monitor/internal/report"
)

// maxBackfillDays bounds manual backfills.
const maxBackfillDays = 365

// Runner is the pipeline as the handlers use it.
type Runner interface {
	RunIngestion(ctx context.Context) (*pipeline.IngestionResult, error)
	RunMeasurement(ctx context.Context) (*pipeline.MeasurementResult, error)
	RunFullCycle(ctx context.Context) (*pipeline.CycleResult, error)
	RunBackfill(ctx context.Context, days int) (*pipeline.IngestionResult, error)
	Records(ctx context.Context) ([]records.Row, error)
}

// Handlers contains the HTTP handlers.
type Handlers struct {
	runner Runner
	report *report.Renderer
	window time.Duration
	now    func() time.Time
}

// NewHandlers creates the handlers.
func NewHandlers(runner Runner, renderer *report.Renderer, window time.Duration) *Handlers {
	return &Handlers{
		runner: runner,
		report: renderer,
		window: window,
		now:    time.Now,
	}
}

// respondRun maps a run outcome to a response. A held lock is a conflict;
// losing every channel is a bad gateway and still carries the partial result.
func respondRun(w http.ResponseWriter, result interface{}, err error) {
	switch {
	case err == nil:
		httputil.OK(w, result)
	case errors.Is(err, distlock.ErrLocked):
		httputil.ErrorCode(w, http.StatusConflict, "run_in_progress", "another run is in progress")
	case errors.Is(err, pipeline.ErrAllChannelsFailed):
		httputil.JSON(w, http.StatusBadGateway, httputil.ErrorResponse{
			Error:   "change history could not be fetched",
			Code:    "all_channels_failed",
			Details: result,
		})
	default:
		httputil.InternalError(w, err)
	}
}

// RunIngestion handles POST /api/runs/ingestion.
func (h *Handlers) RunIngestion(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.RunIngestion(r.Context())
	respondRun(w, res, err)
}

// RunMeasurement handles POST /api/runs/measurement.
func (h *Handlers) RunMeasurement(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.RunMeasurement(r.Context())
	respondRun(w, res, err)
}

// RunFullCycle handles POST /api/runs/full.
func (h *Handlers) RunFullCycle(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.RunFullCycle(r.Context())
	respondRun(w, res, err)
}

// RunBackfill handles POST /api/runs/backfill?days=N.
func (h *Handlers) RunBackfill(w http.ResponseWriter, r *http.Request) {
	days := 90
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxBackfillDays {
			httputil.BadRequest(w, "days must be between 1 and 365")
			return
		}
		days = n
	}
	res, err := h.runner.RunBackfill(r.Context(), days)
	respondRun(w, res, err)
}

// recordView is a records row as returned by GET /api/records.
type recordView struct {
	Row   int                `json:"row"`
	State domain.RecordState `json:"state"`
	domain.ChangeRecord
}

// ListRecords handles GET /api/records with optional state and
// campaign_id filters.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	rows, err := h.runner.Records(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	state := strings.ToUpper(r.URL.Query().Get("state"))
	if state != "" && state != string(domain.StatePending) && state != string(domain.StateFinalized) {
		httputil.BadRequest(w, "state must be pending or finalized")
		return
	}
	campaignID := r.URL.Query().Get("campaign_id")

	out := make([]recordView, 0, len(rows))
	for _, row := range rows {
		rec := row.Record
		if state != "" && string(rec.State()) != state {
			continue
		}
		if campaignID != "" && rec.CampaignID != campaignID {
			continue
		}
		out = append(out, recordView{Row: row.Number, State: rec.State(), ChangeRecord: rec})
	}

	httputil.OK(w, map[string]interface{}{
		"records": out,
		"count":   len(out),
	})
}

// Report handles GET /api/report.
func (h *Handlers) Report(w http.ResponseWriter, r *http.Request) {
	rows, err := h.runner.Records(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	body, err := h.report.Render(rows, h.window, h.now())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Text(w, http.StatusOK, "text/markdown; charset=utf-8", body)
}
