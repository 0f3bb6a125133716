package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/adchange-monitor/internal/classifier"
	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
	"github.com/ignite/adchange-monitor/internal/pkg/metrics"
)

// ChangeSource queries the change history API.
type ChangeSource interface {
	ChangeEvents(ctx context.Context, start, end time.Time, resourceTypes []string) ([]domain.ChangeEvent, error)
}

// Archiver stores the raw fetched batch for audit.
type Archiver interface {
	Archive(ctx context.Context, channel string, fetchedAt time.Time, events []domain.ChangeEvent) (string, error)
}

// Fetcher fetches one channel's change events and optionally archives them.
type Fetcher struct {
	source  ChangeSource
	archive Archiver
}

// NewFetcher creates a Fetcher. archive may be nil.
func NewFetcher(source ChangeSource, archive Archiver) *Fetcher {
	return &Fetcher{source: source, archive: archive}
}

// Fetch returns the channel's events in [start, end]. An archive failure is
// logged and does not fail the fetch.
func (f *Fetcher) Fetch(ctx context.Context, start, end time.Time, ch classifier.Channel) ([]domain.ChangeEvent, error) {
	events, err := f.source.ChangeEvents(ctx, start, end, ch.ResourceTypes)
	if err != nil {
		metrics.FetchFailures.WithLabelValues(ch.Category).Inc()
		return nil, fmt.Errorf("fetching %s changes: %w", ch.Category, err)
	}
	metrics.EventsFetched.WithLabelValues(ch.Category).Add(float64(len(events)))

	if f.archive != nil && len(events) > 0 {
		key, err := f.archive.Archive(ctx, ch.Category, end, events)
		if err != nil {
			logger.Warn("pipeline: archive failed", "channel", ch.Category, "error", err)
		} else {
			logger.Debug("pipeline: batch archived", "channel", ch.Category, "key", key)
		}
	}
	return events, nil
}
