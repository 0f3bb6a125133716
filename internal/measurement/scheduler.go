package measurement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
	"github.com/ignite/adchange-monitor/internal/records"
)

// RecordStore is the records table as the scheduler sees it.
type RecordStore interface {
	List(ctx context.Context) ([]records.Row, error)
	Finalize(ctx context.Context, row int, after domain.Metrics, narrative string) error
}

// Snapshotter produces performance snapshots; it never fails.
type Snapshotter interface {
	Snapshot(ctx context.Context, campaignID string, start, end time.Time) domain.Metrics
}

// EventLookup resolves event times for rows whose date cell is unreadable.
type EventLookup interface {
	Get(eventID string) (domain.LedgerEntry, bool)
}

// Result summarizes one scheduler run.
type Result struct {
	Campaigns int `json:"campaigns"`
	Pending   int `json:"pending"`
	Finalized int `json:"finalized"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Scheduler finalizes pending records whose measurement window has closed.
type Scheduler struct {
	store  RecordStore
	snap   Snapshotter
	lookup EventLookup
	window time.Duration
	now    func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithEventLookup sets the fallback source of event times.
func WithEventLookup(l EventLookup) Option {
	return func(s *Scheduler) { s.lookup = l }
}

// NewScheduler creates a scheduler with the given measurement window.
func NewScheduler(store RecordStore, snap Snapshotter, window time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		snap:   snap,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type timedRow struct {
	row records.Row
	at  time.Time
}

// Run evaluates every pending record once. Only a failure to list the
// records fails the run; a row that cannot be finalized is logged, counted
// in Failed and left pending for the next run.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	var res Result

	rows, err := s.store.List(ctx)
	if err != nil {
		return res, fmt.Errorf("listing records: %w", err)
	}

	byCampaign := make(map[string][]timedRow)
	for _, r := range rows {
		at := r.Record.EventTime
		if at.IsZero() && s.lookup != nil {
			if e, ok := s.lookup.Get(r.Record.EventID); ok {
				at = e.FirstSeen
			}
		}
		if at.IsZero() {
			logger.Warn("measurement: record has no event time", "row", r.Number, "event_id", r.Record.EventID)
			res.Skipped++
			continue
		}
		byCampaign[r.Record.CampaignID] = append(byCampaign[r.Record.CampaignID], timedRow{row: r, at: at})
	}

	campaigns := make([]string, 0, len(byCampaign))
	for id := range byCampaign {
		campaigns = append(campaigns, id)
	}
	sort.Strings(campaigns)
	res.Campaigns = len(campaigns)

	now := s.now().UTC()
	for _, id := range campaigns {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		events := byCampaign[id]
		sort.SliceStable(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })

		for i, ev := range events {
			if ev.row.Record.State() == domain.StateFinalized {
				continue
			}
			var next *time.Time
			if i+1 < len(events) {
				t := events[i+1].at
				next = &t
			}

			d := Decide(ev.at, next, now, s.window)
			if !d.Finalize {
				res.Pending++
				continue
			}

			after := s.snap.Snapshot(ctx, id, d.AfterStart, d.AfterEnd)
			text := Narrative(ev.row.Record.CampaignName, d, s.window, ev.row.Record.Before, after)
			if err := s.store.Finalize(ctx, ev.row.Number, after, text); err != nil {
				res.Failed++
				logger.Error("measurement: finalize failed",
					"campaign_id", id,
					"row", ev.row.Number,
					"event_id", ev.row.Record.EventID,
					"error", err,
				)
				continue
			}
			res.Finalized++
			logger.Info("measurement: record finalized",
				"campaign_id", id,
				"row", ev.row.Number,
				"cut_by_next", d.CutByNext,
				"days", fmt.Sprintf("%.1f", d.DaysBetween),
			)
		}
	}

	logger.Info("measurement: run complete",
		"campaigns", res.Campaigns,
		"finalized", res.Finalized,
		"pending", res.Pending,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, nil
}
