// Package pipeline runs the monitor: ingestion of new change events and
// measurement of recorded ones, one run at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adchange-monitor/internal/classifier"
	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/ledger"
	"github.com/ignite/adchange-monitor/internal/maintenance"
	"github.com/ignite/adchange-monitor/internal/measurement"
	"github.com/ignite/adchange-monitor/internal/pkg/distlock"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
	"github.com/ignite/adchange-monitor/internal/pkg/metrics"
	"github.com/ignite/adchange-monitor/internal/records"
)

// ErrAllChannelsFailed is returned when no channel could be fetched.
var ErrAllChannelsFailed = errors.New("pipeline: all channels failed")

// Ledger is the dedup ledger with point lookups.
type Ledger interface {
	ledger.Ledger
	Get(eventID string) (domain.LedgerEntry, bool)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Fetcher     *Fetcher
	Classifier  *classifier.Classifier
	Ledger      Ledger
	Records     *records.Book
	Snapshotter measurement.Snapshotter
	// Lock serializes runs; nil means no locking.
	Lock distlock.DistLock
}

// Settings are the tunables of a Pipeline.
type Settings struct {
	Channels []classifier.Channel
	Window   time.Duration
	Lookback time.Duration
}

// IngestionResult summarizes one ingestion run.
type IngestionResult struct {
	RunID          string   `json:"run_id"`
	Fetched        int      `json:"fetched"`
	Filtered       int      `json:"filtered"`
	Malformed      int      `json:"malformed"`
	Duplicates     int      `json:"duplicates"`
	Ingested       int      `json:"ingested"`
	Failed         int      `json:"failed"`
	FailedChannels []string `json:"failed_channels,omitempty"`
}

// MeasurementResult summarizes one measurement run.
type MeasurementResult struct {
	RunID string `json:"run_id"`
	measurement.Result
}

// CycleResult is a full ingestion + measurement + maintenance cycle.
type CycleResult struct {
	RunID            string             `json:"run_id"`
	Ingestion        *IngestionResult   `json:"ingestion,omitempty"`
	IngestionError   string             `json:"ingestion_error,omitempty"`
	Measurement      *MeasurementResult `json:"measurement,omitempty"`
	BeforeCellsFixed int                `json:"before_cells_fixed"`
	SummariesFixed   int                `json:"summaries_fixed"`
}

// Pipeline is the single canonical monitoring pipeline.
type Pipeline struct {
	fetcher    *Fetcher
	classifier *classifier.Classifier
	ledger     Ledger
	book       *records.Book
	snap       measurement.Snapshotter
	lock       distlock.DistLock

	channels []classifier.Channel
	window   time.Duration
	lookback time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last *RunStatus
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline.
func New(deps Deps, settings Settings, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:    deps.Fetcher,
		classifier: deps.Classifier,
		ledger:     deps.Ledger,
		book:       deps.Records,
		snap:       deps.Snapshotter,
		lock:       deps.Lock,
		channels:   settings.Channels,
		window:     settings.Window,
		lookback:   settings.Lookback,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.lock == nil {
		return fn(ctx)
	}
	return distlock.WithLock(ctx, p.lock, fn)
}

// RunStatus describes the most recent finished run.
type RunStatus struct {
	Kind       string    `json:"kind"`
	FinishedAt time.Time `json:"finished_at"`
	Duration   string    `json:"duration"`
	Error      string    `json:"error,omitempty"`
}

// LastRun returns the most recent finished run, if any.
func (p *Pipeline) LastRun() (RunStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return RunStatus{}, false
	}
	return *p.last, true
}

func (p *Pipeline) observe(kind string, start time.Time, err error) {
	elapsed := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		metrics.LastSuccess.WithLabelValues(kind).SetToCurrentTime()
	}
	metrics.RunDuration.WithLabelValues(kind, status).Observe(elapsed.Seconds())

	// A run refused by the lock did not run.
	if errors.Is(err, distlock.ErrLocked) {
		return
	}
	rs := &RunStatus{Kind: kind, FinishedAt: time.Now().UTC(), Duration: elapsed.Round(time.Millisecond).String()}
	if err != nil {
		rs.Error = err.Error()
	}
	p.mu.Lock()
	p.last = rs
	p.mu.Unlock()
}

// RunIngestion fetches the trailing lookback window and records new events.
func (p *Pipeline) RunIngestion(ctx context.Context) (*IngestionResult, error) {
	return p.runIngestion(ctx, "ingestion", p.lookback)
}

// RunBackfill ingests over the trailing days instead of the normal lookback.
func (p *Pipeline) RunBackfill(ctx context.Context, days int) (*IngestionResult, error) {
	if days <= 0 {
		return nil, fmt.Errorf("pipeline: backfill days must be positive, got %d", days)
	}
	return p.runIngestion(ctx, "backfill", time.Duration(days)*24*time.Hour)
}

func (p *Pipeline) runIngestion(ctx context.Context, kind string, lookback time.Duration) (*IngestionResult, error) {
	var res *IngestionResult
	start := time.Now()
	err := p.locked(ctx, func(ctx context.Context) error {
		var err error
		res, err = p.ingest(ctx, uuid.NewString(), lookback)
		return err
	})
	p.observe(kind, start, err)
	return res, err
}

// RunMeasurement finalizes pending records whose window has closed.
func (p *Pipeline) RunMeasurement(ctx context.Context) (*MeasurementResult, error) {
	var res *MeasurementResult
	start := time.Now()
	err := p.locked(ctx, func(ctx context.Context) error {
		var err error
		res, err = p.measure(ctx, uuid.NewString())
		return err
	})
	p.observe("measurement", start, err)
	return res, err
}

// RunFullCycle runs ingestion, measurement and row maintenance under one
// lock. An ingestion failure is reported in the result and measurement
// still runs; the cycle still returns ErrAllChannelsFailed afterwards.
func (p *Pipeline) RunFullCycle(ctx context.Context) (*CycleResult, error) {
	runID := uuid.NewString()
	res := &CycleResult{RunID: runID}
	start := time.Now()

	var ingestErr error
	err := p.locked(ctx, func(ctx context.Context) error {
		ing, err := p.ingest(ctx, runID, p.lookback)
		res.Ingestion = ing
		if err != nil {
			ingestErr = err
			res.IngestionError = err.Error()
			logger.Error("pipeline: ingestion failed", "run_id", runID, "error", err)
		}

		m, err := p.measure(ctx, runID)
		if err != nil {
			return err
		}
		res.Measurement = m

		if res.BeforeCellsFixed, err = maintenance.FixEmptyBefore(ctx, p.book); err != nil {
			return fmt.Errorf("fixing empty before metrics: %w", err)
		}
		if res.SummariesFixed, err = maintenance.ReformatLegacySummaries(ctx, p.book); err != nil {
			return fmt.Errorf("reformatting summaries: %w", err)
		}
		if errors.Is(ingestErr, ErrAllChannelsFailed) {
			return ingestErr
		}
		return nil
	})
	p.observe("full", start, err)
	return res, err
}

func (p *Pipeline) prepare(ctx context.Context) error {
	if err := p.book.EnsureSchema(ctx); err != nil {
		return err
	}
	return p.ledger.Load(ctx)
}

func (p *Pipeline) ingest(ctx context.Context, runID string, lookback time.Duration) (*IngestionResult, error) {
	res := &IngestionResult{RunID: runID}
	if err := p.prepare(ctx); err != nil {
		return res, fmt.Errorf("preparing store: %w", err)
	}

	end := p.now().UTC()
	start := end.Add(-lookback)
	logger.Info("pipeline: ingestion started",
		"run_id", runID,
		"start", start.Format(time.RFC3339),
		"end", end.Format(time.RFC3339),
		"channels", len(p.channels),
	)

	for _, ch := range p.channels {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		events, err := p.fetcher.Fetch(ctx, start, end, ch)
		if err != nil {
			res.FailedChannels = append(res.FailedChannels, ch.Category)
			logger.Error("pipeline: channel fetch failed", "run_id", runID, "channel", ch.Category, "error", err)
			continue
		}
		res.Fetched += len(events)

		kept, malformed := p.classifier.ClassifyBatch(events, ch)
		filtered := len(events) - len(kept) - malformed
		res.Malformed += malformed
		res.Filtered += filtered
		metrics.EventsSkipped.WithLabelValues(ch.Category, "malformed").Add(float64(malformed))
		metrics.EventsSkipped.WithLabelValues(ch.Category, "filtered").Add(float64(filtered))

		for _, cc := range kept {
			written, err := p.record(ctx, cc)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				res.Failed++
				metrics.EventsSkipped.WithLabelValues(ch.Category, "error").Inc()
				logger.Error("pipeline: recording change failed",
					"run_id", runID,
					"channel", ch.Category,
					"event_id", cc.Event.EventID(),
					"error", err,
				)
				continue
			}
			if !written {
				res.Duplicates++
				metrics.EventsSkipped.WithLabelValues(ch.Category, "duplicate").Inc()
				continue
			}
			res.Ingested++
			metrics.EventsIngested.WithLabelValues(ch.Category).Inc()
		}
	}

	logger.Info("pipeline: ingestion complete",
		"run_id", runID,
		"fetched", res.Fetched,
		"ingested", res.Ingested,
		"duplicates", res.Duplicates,
		"filtered", res.Filtered,
		"malformed", res.Malformed,
		"failed", res.Failed,
	)

	if len(p.channels) > 0 && len(res.FailedChannels) == len(p.channels) {
		return res, ErrAllChannelsFailed
	}
	return res, nil
}

// record writes the ledger entry, then the records row. The ledger write
// comes first so a row never exists without its dedup guard.
func (p *Pipeline) record(ctx context.Context, cc classifier.ClassifiedChange) (bool, error) {
	ev := cc.Event
	id := ev.EventID()

	seen, err := p.ledger.Has(ctx, id)
	if err != nil {
		return false, fmt.Errorf("checking ledger for %s: %w", id, err)
	}
	if seen {
		logger.Debug("pipeline: already ingested", "event_id", id)
		return false, nil
	}

	before := p.snap.Snapshot(ctx, ev.CampaignID, ev.Timestamp.Add(-p.window), ev.Timestamp)

	written, err := p.ledger.Record(ctx, domain.LedgerEntry{
		Category:   cc.Category,
		CampaignID: ev.CampaignID,
		EventID:    id,
		FirstSeen:  ev.Timestamp,
	})
	if err != nil {
		return false, err
	}
	if !written {
		return false, nil
	}

	rec := domain.ChangeRecord{
		CampaignName:      ev.CampaignName,
		CampaignID:        ev.CampaignID,
		Before:            before,
		DisplayChangeType: cc.DisplayChangeType,
		EventID:           id,
		EventTime:         ev.Timestamp,
		Summary:           cc.Summary,
		AuctionInsight:    before.AuctionInsight,
	}
	if err := p.book.Append(ctx, rec); err != nil {
		return false, err
	}
	logger.Info("pipeline: change recorded",
		"event_id", id,
		"campaign_id", ev.CampaignID,
		"type", cc.DisplayChangeType,
	)
	return true, nil
}

func (p *Pipeline) measure(ctx context.Context, runID string) (*MeasurementResult, error) {
	if err := p.prepare(ctx); err != nil {
		return nil, fmt.Errorf("preparing store: %w", err)
	}
	sched := measurement.NewScheduler(p.book, p.snap, p.window,
		measurement.WithClock(p.now),
		measurement.WithEventLookup(p.ledger),
	)
	res, err := sched.Run(ctx)
	metrics.RecordsFinalized.Add(float64(res.Finalized))
	if err != nil {
		return nil, err
	}
	return &MeasurementResult{RunID: runID, Result: res}, nil
}

// Records lists the records table.
func (p *Pipeline) Records(ctx context.Context) ([]records.Row, error) {
	return p.book.List(ctx)
}
