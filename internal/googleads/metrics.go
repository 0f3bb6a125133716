package googleads

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/adchange-monitor/internal/domain"
)

const queryDateLayout = "2006-01-02"

// BuildCampaignMetricsQuery renders the campaign performance query for the
// inclusive date range [start, end], dates taken in UTC.
func BuildCampaignMetricsQuery(campaignID string, start, end time.Time) string {
	return fmt.Sprintf(`SELECT
  campaign.id,
  metrics.average_cpc,
  metrics.ctr,
  metrics.conversions,
  metrics.clicks,
  metrics.impressions,
  metrics.search_impression_share,
  metrics.search_top_impression_share,
  metrics.search_absolute_top_impression_share
FROM campaign
WHERE campaign.id = '%s'
  AND segments.date BETWEEN '%s' AND '%s'`,
		campaignID,
		start.UTC().Format(queryDateLayout),
		end.UTC().Format(queryDateLayout))
}

// CampaignMetrics returns the aggregated metrics row for a campaign, or nil
// when the API returned no rows.
func (c *Client) CampaignMetrics(ctx context.Context, campaignID string, start, end time.Time) (*domain.RawMetrics, error) {
	if !isNumericID(campaignID) {
		return nil, fmt.Errorf("googleads: invalid campaign id %q", campaignID)
	}

	rows, err := c.Search(ctx, BuildCampaignMetricsQuery(campaignID, start, end))
	if err != nil {
		return nil, fmt.Errorf("fetching campaign metrics: %w", err)
	}
	if len(rows) == 0 || rows[0].Metrics == nil {
		return nil, nil
	}

	m := rows[0].Metrics
	return &domain.RawMetrics{
		AverageCPCMicros:                 float64(m.AverageCPC),
		CTR:                              float64(m.CTR),
		Conversions:                      float64(m.Conversions),
		Clicks:                           int64(m.Clicks),
		Impressions:                      int64(m.Impressions),
		SearchImpressionShare:            m.SearchImpressionShare.Ptr(),
		SearchTopImpressionShare:         m.SearchTopImpressionShare.Ptr(),
		SearchAbsoluteTopImpressionShare: m.SearchAbsoluteTopImpressionShare.Ptr(),
	}, nil
}

func isNumericID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
