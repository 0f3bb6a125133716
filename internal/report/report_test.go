package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/records"
)

func sampleRows() []records.Row {
	base := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	return []records.Row{
		{Number: 2, Record: domain.ChangeRecord{
			CampaignName:      "Brand",
			CampaignID:        "111",
			Before:            domain.Metrics{CPC: 1.25, CTR: 2.5, ConversionRate: 4},
			After:             &domain.Metrics{CPC: 1.5, CTR: 2.5, ConversionRate: 4},
			DisplayChangeType: "[BUDGET] Campaign CAMPAIGN_BUDGET",
			EventID:           "e1",
			EventTime:         base,
			Summary:           "Increased Campaign daily budget from $2.00 to $3.50",
			AuctionInsight:    "N/A",
			CutoffInsight:     `During 14 days, "Brand" has seen an increase of 20.00% in CPC.`,
		}},
		{Number: 3, Record: domain.ChangeRecord{
			CampaignName:      "Acme Generic",
			CampaignID:        "222",
			DisplayChangeType: "[AUDIENCE] Keyword AD_GROUP_CRITERION",
			EventID:           "e2",
			EventTime:         base.Add(time.Hour),
			Summary:           `Keyword CREATE: Keyword added: "running shoes" (PHRASE)`,
		}},
	}
}

func TestRender(t *testing.T) {
	r, err := New("")
	require.NoError(t, err)

	out, err := r.Render(sampleRows(), 14*24*time.Hour, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Contains(t, out, "Generated 2025-03-20T00:00:00Z. Measurement window: 14 days.")
	assert.Contains(t, out, "2 records: 1 finalized, 1 pending.")
	assert.Contains(t, out, "## Brand (111)")
	assert.Contains(t, out, "CPC 1.25 -> 1.50, CTR 2.50% -> 2.50%")
	assert.Contains(t, out, `During 14 days, "Brand" has seen an increase of 20.00% in CPC.`)
	assert.Contains(t, out, "03/01/2025 19:00:00 [AUDIENCE] Keyword AD_GROUP_CRITERION [PENDING]")
	assert.Contains(t, out, "CPC 0.00, CTR 0.00%, Conversion Rate 0.00%")
	assert.Less(t, strings.Index(out, "## Acme Generic"), strings.Index(out, "## Brand"))
}

func TestRender_CustomTemplate(t *testing.T) {
	r, err := New(`{% for c in campaigns %}{{ c.id }};{% endfor %}`)
	require.NoError(t, err)

	out, err := r.Render(sampleRows(), 14*24*time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "222;111;", out)
}

func TestNew_InvalidTemplate(t *testing.T) {
	_, err := New(`{% for c in campaigns %}`)
	assert.Error(t, err)
}

func TestBindings_Empty(t *testing.T) {
	b := Bindings(nil, 14*24*time.Hour, time.Now())
	assert.Equal(t, 0, b["total"])
	assert.Empty(t, b["campaigns"])
}
