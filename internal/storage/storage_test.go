package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runTableContract exercises the behavior every backend must share.
func runTableContract(t *testing.T, table Table) {
	t.Helper()
	ctx := context.Background()

	rows, err := table.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, table.AppendRow(ctx, []string{"Tab", "Campaign ID", "Change Events ID", "Date"}))
	require.NoError(t, table.AppendRow(ctx, []string{"Budget", "111", "111-CAMPAIGN-2025-03-01 10:15:30", "03/01/2025 18:15:30"}))
	require.NoError(t, table.AppendRow(ctx, []string{"Audience", "222", `id with "quotes", commas`}))

	rows, err = table.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Campaign ID", rows[0][1])
	assert.Equal(t, "03/01/2025 18:15:30", rows[1][3])
	assert.Equal(t, `id with "quotes", commas`, rows[2][2])

	// Short rows are padded up to the target column.
	require.NoError(t, table.SetCell(ctx, 3, 6, "late"))
	rows, err = table.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Audience", "222", `id with "quotes", commas`, "", "", "late"}, rows[2])

	require.NoError(t, table.SetCell(ctx, 2, 1, "Bidding"))
	rows, err = table.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bidding", rows[1][0])
	assert.Equal(t, "111", rows[1][1])

	assert.ErrorIs(t, table.SetCell(ctx, 4, 1, "x"), ErrRowOutOfRange)
	assert.ErrorIs(t, table.SetCell(ctx, 0, 1, "x"), ErrRowOutOfRange)
	assert.ErrorIs(t, table.SetCell(ctx, 1, 0, "x"), ErrRowOutOfRange)
}

func TestMemoryTable(t *testing.T) {
	table := NewMemoryTable("campaignIgnore")
	assert.Equal(t, "campaignIgnore", table.Name())
	runTableContract(t, table)
}

func TestMemoryTable_ReadAllReturnsCopies(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable("t")
	require.NoError(t, table.AppendRow(ctx, []string{"a"}))

	rows, _ := table.ReadAll(ctx)
	rows[0][0] = "mutated"

	rows, _ = table.ReadAll(ctx)
	assert.Equal(t, "a", rows[0][0])
}

func TestLocalTable(t *testing.T) {
	dir := t.TempDir()
	table, err := NewLocalTable(dir, "Budget Monitoring")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "budget_monitoring.csv"), table.Path())
	runTableContract(t, table)

	// Survives reopening.
	reopened, err := NewLocalTable(dir, "Budget Monitoring")
	require.NoError(t, err)
	rows, err := reopened.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	assert.Empty(t, leftovers)
}

func TestLocalTable_MultilineCell(t *testing.T) {
	ctx := context.Background()
	table, err := NewLocalTable(t.TempDir(), "records")
	require.NoError(t, err)

	require.NoError(t, table.AppendRow(ctx, []string{"line one\nline two", "x"}))
	rows, err := table.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "line one\nline two", rows[0][0])

	data, err := os.ReadFile(table.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"line one`)
}

func TestColumnIndex(t *testing.T) {
	header := []string{"Campaign Name", "Campaign ID", " Cut-off Insights "}
	assert.Equal(t, 2, ColumnIndex(header, "campaign id"))
	assert.Equal(t, 3, ColumnIndex(header, "Cut-off Insights"))
	assert.Equal(t, 0, ColumnIndex(header, "AI Insights"))

	assert.Equal(t, "Campaign ID", Cell(header, 2))
	assert.Equal(t, "", Cell(header, 9))
}
