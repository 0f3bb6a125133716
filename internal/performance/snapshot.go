// Package performance turns campaign metrics into before/after snapshots.
package performance

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
)

// MetricsSource returns the aggregated campaign metrics for an inclusive
// date range, or nil when there is no data.
type MetricsSource interface {
	CampaignMetrics(ctx context.Context, campaignID string, start, end time.Time) (*domain.RawMetrics, error)
}

// Snapshotter never fails: errors and empty results become domain.NoData().
type Snapshotter struct {
	source MetricsSource
}

// NewSnapshotter creates a Snapshotter over source.
func NewSnapshotter(source MetricsSource) *Snapshotter {
	return &Snapshotter{source: source}
}

// Snapshot returns the campaign's performance over [start, end].
func (s *Snapshotter) Snapshot(ctx context.Context, campaignID string, start, end time.Time) domain.Metrics {
	raw, err := s.source.CampaignMetrics(ctx, campaignID, start, end)
	if err != nil {
		logger.Warn("performance: metrics unavailable",
			"campaign_id", campaignID,
			"start", start.UTC().Format("2006-01-02"),
			"end", end.UTC().Format("2006-01-02"),
			"error", err,
		)
		return domain.NoData()
	}
	if raw == nil {
		logger.Debug("performance: no rows", "campaign_id", campaignID)
		return domain.NoData()
	}
	return Convert(*raw)
}

// Convert applies unit conversion: CPC from micros, CTR and conversion rate
// as percentages.
func Convert(raw domain.RawMetrics) domain.Metrics {
	m := domain.Metrics{
		CPC:            raw.AverageCPCMicros / 1e6,
		CTR:            raw.CTR * 100,
		Impressions:    raw.Impressions,
		AuctionInsight: AuctionInsight(raw),
	}
	if raw.Clicks > 0 {
		m.ConversionRate = raw.Conversions / float64(raw.Clicks) * 100
	}
	return m
}

// AuctionInsight renders impression share figures, or "N/A" when the
// search impression share is absent or zero.
func AuctionInsight(raw domain.RawMetrics) string {
	if raw.SearchImpressionShare == nil || *raw.SearchImpressionShare == 0 {
		return domain.NotAvailableInsight
	}
	return fmt.Sprintf("Impression Share: %.2f%%, Top: %.2f%%, Abs Top: %.2f%%",
		*raw.SearchImpressionShare*100,
		share(raw.SearchTopImpressionShare),
		share(raw.SearchAbsoluteTopImpressionShare))
}

func share(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v * 100
}
