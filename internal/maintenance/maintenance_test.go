package maintenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/records"
	"github.com/ignite/adchange-monitor/internal/storage"
)

func legacyRow(summary, display string) []string {
	row := make([]string, len(records.Header))
	row[0] = "Brand"
	row[1] = "111"
	row[8] = display
	row[9] = "111-CAMPAIGN_BUDGET-2025-03-01 10:15:30"
	row[10] = "03/01/2025 18:15:30"
	row[11] = summary
	return row
}

func newSheet(t *testing.T, rows ...[]string) (*records.Book, *storage.MemoryTable) {
	t.Helper()
	ctx := context.Background()
	table := storage.NewMemoryTable("Budget Monitoring")
	require.NoError(t, table.AppendRow(ctx, records.Header))
	for _, r := range rows {
		require.NoError(t, table.AppendRow(ctx, r))
	}
	return records.NewBook(table), table
}

func TestFixEmptyBefore(t *testing.T) {
	ctx := context.Background()
	row := legacyRow("", "[BUDGET] Campaign CAMPAIGN_BUDGET")
	row[2] = "1.5"
	book, table := newSheet(t, row)

	fixed, err := FixEmptyBefore(ctx, book)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)

	rows, _ := table.ReadAll(ctx)
	assert.Equal(t, "1.5", rows[1][2])
	assert.Equal(t, "0", rows[1][4])
	assert.Equal(t, "0", rows[1][6])

	fixed, err = FixEmptyBefore(ctx, book)
	require.NoError(t, err)
	assert.Equal(t, 0, fixed)
}

func TestFixEmptyBefore_MissingColumns(t *testing.T) {
	ctx := context.Background()
	table := storage.NewMemoryTable("Budget Monitoring")
	require.NoError(t, table.AppendRow(ctx, []string{"Campaign ID", "Change Events ID"}))

	fixed, err := FixEmptyBefore(ctx, records.NewBook(table))
	require.NoError(t, err)
	assert.Equal(t, 0, fixed)
}

func TestReformatLegacySummaries(t *testing.T) {
	ctx := context.Background()
	budget := legacyRow(
		`Old={"campaignBudget":{"amountMicros":"2000000"}}, New={"campaignBudget":{"amountMicros":"3500000"}}`,
		"[BUDGET] Campaign CAMPAIGN_BUDGET")
	bidding := legacyRow(
		`Old={"campaign":{"targetCpa":{"targetCpaMicros":"5000000"}}}, New={"campaign":{"targetCpa":{"targetCpaMicros":"7500000"}}}`,
		"[BUDGET] Campaign CAMPAIGN")
	modern := legacyRow("Budget change detected", "[BUDGET] Campaign CAMPAIGN_BUDGET")
	broken := legacyRow(`Old=not json, New={"targetCpa":1`, "[BUDGET] Campaign CAMPAIGN")
	book, table := newSheet(t, budget, bidding, modern, broken)

	n, err := ReformatLegacySummaries(ctx, book)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, _ := table.ReadAll(ctx)
	assert.Equal(t, "Increased Campaign daily budget from $2.00 to $3.50", rows[1][11])
	assert.Equal(t, `Increased Target CPA bid at Campaign level for "Brand" from $5.00 to $7.50`, rows[2][11])
	assert.Equal(t, "Budget change detected", rows[3][11])
	assert.Equal(t, `Old=not json, New={"targetCpa":1`, rows[4][11])
}

func TestReformatSummary_BareCampaignObject(t *testing.T) {
	got, ok := ReformatSummary(
		`Old={"targetRoas":{"targetRoas":3.5}}, New={"targetRoas":{"targetRoas":4}}`,
		domain.LevelCampaign, "")
	require.True(t, ok)
	assert.Equal(t, "Increased Target ROAS bid at Campaign level from 350.00% to 400.00%", got)
}

func TestReformatSummary_NumericMicros(t *testing.T) {
	got, ok := ReformatSummary(
		`Old={"campaignBudget":{"amountMicros": 5000000}}, New={"campaignBudget":{"amountMicros": 4000000}}`,
		domain.LevelAdGroup, "")
	require.True(t, ok)
	assert.Equal(t, "Decreased Ad Group daily budget from $5.00 to $4.00", got)
}

func TestLevelFromDisplay(t *testing.T) {
	assert.Equal(t, domain.LevelAdGroup, LevelFromDisplay("[AUDIENCE] Ad Group AD_GROUP_CRITERION"))
	assert.Equal(t, domain.LevelKeyword, LevelFromDisplay("[AUDIENCE] Keyword AD_GROUP_CRITERION (CREATE)"))
	assert.Equal(t, domain.LevelCampaign, LevelFromDisplay("[BUDGET] Campaign CAMPAIGN"))
	assert.Equal(t, domain.LevelCampaign, LevelFromDisplay(""))
}
