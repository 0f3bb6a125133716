package measurement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/records"
	"github.com/ignite/adchange-monitor/internal/storage"
)

const window = 14 * 24 * time.Hour

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPctChange(t *testing.T) {
	assert.Equal(t, 0.0, PctChange(0, 0))
	assert.Equal(t, 100.0, PctChange(0, 5))
	assert.Equal(t, -50.0, PctChange(10, 5))
	assert.Equal(t, 50.0, PctChange(10, 15))
	assert.Equal(t, 0.0, PctChange(0, -1))
}

func TestFormatMetricChanges(t *testing.T) {
	tests := []struct {
		name           string
		cpc, ctr, conv float64
		want           string
	}{
		{"none", 0, 0, 0, "no significant changes in metrics"},
		{"one", 20, 0, 0, "an increase of 20.00% in CPC"},
		{"two", 0, 12.5, -3.2, "an increase of 12.50% in CTR and a decrease of 3.20% in Conversion Rate"},
		{"three", -10, 5, 1.234, "a decrease of 10.00% in CPC, an increase of 5.00% in CTR, and an increase of 1.23% in Conversion Rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMetricChanges(tt.cpc, tt.ctr, tt.conv))
		})
	}
}

func TestDecide(t *testing.T) {
	t.Run("natural window elapsed", func(t *testing.T) {
		now := base.Add(time.Duration(14.2 * float64(day)))
		d := Decide(base, nil, now, window)
		assert.True(t, d.Finalize)
		assert.False(t, d.CutByNext)
		assert.Equal(t, base, d.AfterStart)
		assert.Equal(t, base.Add(window), d.AfterEnd)
	})

	t.Run("natural window open", func(t *testing.T) {
		d := Decide(base, nil, base.Add(13*day), window)
		assert.False(t, d.Finalize)
	})

	t.Run("successor too close", func(t *testing.T) {
		next := base.Add(12 * time.Hour)
		d := Decide(base, &next, base.Add(20*day), window)
		assert.False(t, d.Finalize)
		assert.InDelta(t, 0.5, d.DaysBetween, 1e-9)
	})

	t.Run("successor two days later", func(t *testing.T) {
		next := base.Add(2 * day)
		now := base.Add(3 * day)
		d := Decide(base, &next, now, window)
		assert.True(t, d.Finalize)
		assert.True(t, d.CutByNext)
		assert.InDelta(t, 2.0, d.DaysBetween, 1e-9)
		assert.Equal(t, next, d.AfterEnd)
	})

	t.Run("after window capped at now", func(t *testing.T) {
		next := base.Add(5 * day)
		now := base.Add(4 * day)
		d := Decide(base, &next, now, window)
		assert.Equal(t, now, d.AfterEnd)
	})
}

func TestNarrative(t *testing.T) {
	before := domain.Metrics{CPC: 1, CTR: 2, ConversionRate: 4}
	after := domain.Metrics{CPC: 1.2, CTR: 2, ConversionRate: 3}

	natural := Narrative("Brand", Decision{DaysBetween: 14}, window, before, after)
	assert.Equal(t, `During 14 days, "Brand" has seen an increase of 20.00% in CPC and a decrease of 25.00% in Conversion Rate.`, natural)

	cut := Narrative("Brand", Decision{CutByNext: true, DaysBetween: 2}, window, before, before)
	assert.Equal(t, `During 2.0 days, "Brand" has seen no significant changes in metrics. Cut-off by newer change event.`, cut)
}

type fakeSnap struct {
	calls []snapCall
	m     domain.Metrics
}

type snapCall struct {
	campaign   string
	start, end time.Time
}

func (f *fakeSnap) Snapshot(ctx context.Context, campaignID string, start, end time.Time) domain.Metrics {
	f.calls = append(f.calls, snapCall{campaignID, start, end})
	return f.m
}

func newBook(t *testing.T, recs ...domain.ChangeRecord) (*records.Book, *storage.MemoryTable) {
	t.Helper()
	ctx := context.Background()
	table := storage.NewMemoryTable("Budget Monitoring")
	book := records.NewBook(table)
	require.NoError(t, book.EnsureSchema(ctx))
	for _, r := range recs {
		require.NoError(t, book.Append(ctx, r))
	}
	return book, table
}

func record(campaign, id string, at time.Time) domain.ChangeRecord {
	return domain.ChangeRecord{
		CampaignName: "Brand",
		CampaignID:   campaign,
		Before:       domain.Metrics{CPC: 1, CTR: 2, ConversionRate: 4},
		EventID:      id,
		EventTime:    at,
	}
}

func TestScheduler_NaturalFinalization(t *testing.T) {
	ctx := context.Background()
	book, _ := newBook(t, record("111", "e1", base))
	snap := &fakeSnap{m: domain.Metrics{CPC: 1.5, CTR: 2, ConversionRate: 4}}
	now := base.Add(time.Duration(14.2 * float64(day)))

	res, err := NewScheduler(book, snap, window, WithClock(func() time.Time { return now })).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Finalized)

	require.Len(t, snap.calls, 1)
	assert.Equal(t, base, snap.calls[0].start)
	assert.Equal(t, base.Add(window), snap.calls[0].end)

	rows, err := book.List(ctx)
	require.NoError(t, err)
	rec := rows[0].Record
	assert.Equal(t, domain.StateFinalized, rec.State())
	assert.Equal(t, `During 14 days, "Brand" has seen an increase of 50.00% in CPC.`, rec.CutoffInsight)
	require.NotNil(t, rec.After)
	assert.Equal(t, 1.5, rec.After.CPC)
}

func TestScheduler_SuccessorRules(t *testing.T) {
	ctx := context.Background()
	book, _ := newBook(t,
		record("111", "e1", base),
		record("111", "e2", base.Add(12*time.Hour)),
		record("111", "e3", base.Add(60*time.Hour)),
	)
	snap := &fakeSnap{m: domain.Metrics{CPC: 1, CTR: 2, ConversionRate: 4}}
	now := base.Add(5 * day)

	res, err := NewScheduler(book, snap, window, WithClock(func() time.Time { return now })).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Finalized)
	assert.Equal(t, 2, res.Pending)

	rows, err := book.List(ctx)
	require.NoError(t, err)
	byID := map[string]domain.ChangeRecord{}
	for _, r := range rows {
		byID[r.Record.EventID] = r.Record
	}
	assert.Equal(t, domain.StatePending, byID["e1"].State(), "0.5 day successor keeps the record pending")
	assert.Equal(t, `During 2.0 days, "Brand" has seen no significant changes in metrics. Cut-off by newer change event.`, byID["e2"].CutoffInsight)
	assert.Equal(t, domain.StatePending, byID["e3"].State())
}

func TestScheduler_SkipsFinalizedAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	book, _ := newBook(t, record("111", "e1", base))
	snap := &fakeSnap{}
	now := base.Add(20 * day)
	s := NewScheduler(book, snap, window, WithClock(func() time.Time { return now }))

	_, err := s.Run(ctx)
	require.NoError(t, err)
	res, err := s.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Finalized)
	assert.Len(t, snap.calls, 1)
}

func TestScheduler_FinalizedRowStillBoundsPredecessor(t *testing.T) {
	ctx := context.Background()
	done := record("111", "e2", base.Add(3*day))
	done.CutoffInsight = "During 14 days, ..."
	book, _ := newBook(t, record("111", "e1", base), done)
	snap := &fakeSnap{}
	now := base.Add(20 * day)

	_, err := NewScheduler(book, snap, window, WithClock(func() time.Time { return now })).Run(ctx)
	require.NoError(t, err)

	require.Len(t, snap.calls, 1)
	assert.Equal(t, base.Add(3*day), snap.calls[0].end)
}

func TestScheduler_CampaignsIndependent(t *testing.T) {
	ctx := context.Background()
	book, _ := newBook(t,
		record("111", "a", base),
		record("222", "b", base.Add(2*day)),
	)
	snap := &fakeSnap{}
	now := base.Add(15 * day)

	res, err := NewScheduler(book, snap, window, WithClock(func() time.Time { return now })).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Campaigns)
	assert.Equal(t, 1, res.Finalized)
	assert.Equal(t, 1, res.Pending)
}

// failingStore fails Finalize for one row number.
type failingStore struct {
	*records.Book
	failRow int
}

func (f *failingStore) Finalize(ctx context.Context, row int, after domain.Metrics, narrative string) error {
	if row == f.failRow {
		return errors.New("row is gone")
	}
	return f.Book.Finalize(ctx, row, after, narrative)
}

func TestScheduler_FinalizeFailureDoesNotAbortRun(t *testing.T) {
	ctx := context.Background()
	book, _ := newBook(t,
		record("111", "a", base),
		record("222", "b", base),
	)
	store := &failingStore{Book: book, failRow: 2}
	now := base.Add(15 * day)

	res, err := NewScheduler(store, &fakeSnap{}, window, WithClock(func() time.Time { return now })).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Finalized)

	rows, err := book.List(ctx)
	require.NoError(t, err)
	byID := map[string]domain.ChangeRecord{}
	for _, r := range rows {
		byID[r.Record.EventID] = r.Record
	}
	assert.Equal(t, domain.StatePending, byID["a"].State())
	assert.Equal(t, domain.StateFinalized, byID["b"].State())
}

type lookup map[string]domain.LedgerEntry

func (l lookup) Get(id string) (domain.LedgerEntry, bool) {
	e, ok := l[id]
	return e, ok
}

func TestScheduler_FallsBackToLedgerTime(t *testing.T) {
	ctx := context.Background()
	book, table := newBook(t, record("111", "e1", base))
	require.NoError(t, table.SetCell(ctx, 2, 11, ""))
	require.NoError(t, table.AppendRow(ctx, []string{"Other", "333", "", "", "", "", "", "", "", "orphan"}))

	snap := &fakeSnap{}
	now := base.Add(15 * day)
	res, err := NewScheduler(book, snap, window,
		WithClock(func() time.Time { return now }),
		WithEventLookup(lookup{"e1": {EventID: "e1", FirstSeen: base}}),
	).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Finalized)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "111", snap.calls[0].campaign)
}
