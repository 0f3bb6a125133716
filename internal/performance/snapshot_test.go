package performance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/adchange-monitor/internal/domain"
)

type fakeSource struct {
	raw *domain.RawMetrics
	err error

	gotCampaign string
	gotStart    time.Time
	gotEnd      time.Time
}

func (f *fakeSource) CampaignMetrics(ctx context.Context, campaignID string, start, end time.Time) (*domain.RawMetrics, error) {
	f.gotCampaign, f.gotStart, f.gotEnd = campaignID, start, end
	return f.raw, f.err
}

func ptr(v float64) *float64 { return &v }

func TestSnapshot_Converts(t *testing.T) {
	src := &fakeSource{raw: &domain.RawMetrics{
		AverageCPCMicros:                 1_250_000,
		CTR:                              0.025,
		Conversions:                      3,
		Clicks:                           60,
		Impressions:                      2400,
		SearchImpressionShare:            ptr(0.5123),
		SearchTopImpressionShare:         ptr(0.3),
		SearchAbsoluteTopImpressionShare: nil,
	}}
	start := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	m := NewSnapshotter(src).Snapshot(context.Background(), "111", start, end)

	assert.Equal(t, "111", src.gotCampaign)
	assert.Equal(t, start, src.gotStart)
	assert.Equal(t, end, src.gotEnd)
	assert.InDelta(t, 1.25, m.CPC, 1e-9)
	assert.InDelta(t, 2.5, m.CTR, 1e-9)
	assert.InDelta(t, 5.0, m.ConversionRate, 1e-9)
	assert.Equal(t, int64(2400), m.Impressions)
	assert.Equal(t, "Impression Share: 51.23%, Top: 30.00%, Abs Top: 0.00%", m.AuctionInsight)
}

func TestSnapshot_EmptyResult(t *testing.T) {
	m := NewSnapshotter(&fakeSource{}).Snapshot(context.Background(), "111", time.Now(), time.Now())
	assert.Equal(t, domain.Metrics{AuctionInsight: "No data available"}, m)
}

func TestSnapshot_ErrorIsNoData(t *testing.T) {
	m := NewSnapshotter(&fakeSource{err: errors.New("boom")}).Snapshot(context.Background(), "111", time.Now(), time.Now())
	assert.Equal(t, domain.NoData(), m)
}

func TestConvert_ZeroClicks(t *testing.T) {
	m := Convert(domain.RawMetrics{Conversions: 4, Clicks: 0})
	assert.Equal(t, 0.0, m.ConversionRate)
	assert.Equal(t, "N/A", m.AuctionInsight)
}

func TestAuctionInsight_ZeroShareIsNA(t *testing.T) {
	assert.Equal(t, "N/A", AuctionInsight(domain.RawMetrics{SearchImpressionShare: ptr(0)}))
}
