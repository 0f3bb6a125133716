// Package ledger records which change events have been ingested. The ledger
// sheet is the source of truth; the in-process map and the optional Redis
// set are caches over it.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
	"github.com/ignite/adchange-monitor/internal/storage"
)

// Ledger column headers.
const (
	ColTab      = "Tab"
	ColCampaign = "Campaign ID"
	ColEventID  = "Change Events ID"
	ColDate     = "Date"
)

// Header is the ledger sheet header row.
var Header = []string{ColTab, ColCampaign, ColEventID, ColDate}

// Ledger is the dedup guard used by ingestion.
type Ledger interface {
	Load(ctx context.Context) error
	Has(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, entry domain.LedgerEntry) (bool, error)
	Iterate(ctx context.Context, fn func(domain.LedgerEntry) bool) error
}

// SheetLedger is a Ledger over a storage.Table.
type SheetLedger struct {
	table storage.Table

	redis    *redis.Client
	redisKey string

	mu      sync.Mutex
	loaded  bool
	entries map[string]domain.LedgerEntry
	order   []string
}

// Option configures a SheetLedger.
type Option func(*SheetLedger)

// WithRedisCache shares seen event ids with other processes through a Redis
// set. An empty key keeps the default.
func WithRedisCache(client *redis.Client, key string) Option {
	return func(l *SheetLedger) {
		l.redis = client
		if key != "" {
			l.redisKey = key
		}
	}
}

// NewSheetLedger creates a ledger over table.
func NewSheetLedger(table storage.Table, opts ...Option) *SheetLedger {
	l := &SheetLedger{
		table:    table,
		redisKey: "adchange:ledger",
		entries:  make(map[string]domain.LedgerEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type columns struct {
	tab, campaign, eventID, date int
}

// resolveColumns finds columns by header name, falling back to the fixed
// Tab / Campaign ID / Change Events ID / Date order when the header is
// unrecognized.
func resolveColumns(header []string) columns {
	c := columns{
		tab:      storage.ColumnIndex(header, ColTab),
		campaign: storage.ColumnIndex(header, ColCampaign),
		eventID:  storage.ColumnIndex(header, ColEventID),
		date:     storage.ColumnIndex(header, ColDate),
	}
	if c.eventID == 0 {
		return columns{tab: 1, campaign: 2, eventID: 3, date: 4}
	}
	return c
}

// Load (re)reads the ledger sheet, writing the header row into an empty
// sheet, and rebuilds the Redis set from it.
func (l *SheetLedger) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.table.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}

	if len(rows) == 0 {
		if err := l.table.AppendRow(ctx, Header); err != nil {
			return fmt.Errorf("writing ledger header: %w", err)
		}
		rows = [][]string{Header}
	}

	l.entries, l.order = parseRows(rows)
	l.loaded = true
	l.resetRedisLocked(ctx)

	logger.Debug("ledger: loaded", "sheet", l.table.Name(), "entries", len(l.order))
	return nil
}

// parseRows turns sheet rows (header first) into entries, skipping blank
// and repeated ids.
func parseRows(rows [][]string) (map[string]domain.LedgerEntry, []string) {
	entries := make(map[string]domain.LedgerEntry, len(rows))
	order := make([]string, 0, len(rows))
	if len(rows) == 0 {
		return entries, order
	}
	cols := resolveColumns(rows[0])
	for _, row := range rows[1:] {
		id := strings.TrimSpace(storage.Cell(row, cols.eventID))
		if id == "" {
			continue
		}
		if _, dup := entries[id]; dup {
			continue
		}
		entry := domain.LedgerEntry{
			Category:   storage.Cell(row, cols.tab),
			CampaignID: storage.Cell(row, cols.campaign),
			EventID:    id,
		}
		if ts, err := time.Parse(domain.RecordTimeLayout, storage.Cell(row, cols.date)); err == nil {
			entry.FirstSeen = ts
		}
		entries[id] = entry
		order = append(order, id)
	}
	return entries, order
}

// resetRedisLocked replaces the Redis set with the ids read from the sheet,
// so ids whose rows were removed stop counting as seen.
func (l *SheetLedger) resetRedisLocked(ctx context.Context) {
	if l.redis == nil {
		return
	}
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, l.redisKey)
		if len(l.order) > 0 {
			members := make([]interface{}, len(l.order))
			for i, id := range l.order {
				members[i] = id
			}
			pipe.SAdd(ctx, l.redisKey, members...)
		}
		return nil
	})
	if err != nil {
		logger.Warn("ledger: redis warm-up failed", "key", l.redisKey, "error", err)
	}
}

func (l *SheetLedger) ensureLoadedLocked(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	l.mu.Unlock()
	err := l.Load(ctx)
	l.mu.Lock()
	return err
}

// Has reports whether eventID has a ledger row. The local map answers
// first; a Redis hit for an unknown id, written by another process since
// the last Load, is confirmed against the sheet before it counts.
func (l *SheetLedger) Has(ctx context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoadedLocked(ctx); err != nil {
		return false, err
	}
	return l.hasLocked(ctx, eventID)
}

func (l *SheetLedger) hasLocked(ctx context.Context, eventID string) (bool, error) {
	if _, ok := l.entries[eventID]; ok {
		return true, nil
	}
	if l.redis == nil {
		return false, nil
	}
	seen, err := l.redis.SIsMember(ctx, l.redisKey, eventID).Result()
	if err != nil {
		logger.Warn("ledger: redis lookup failed", "event_id", eventID, "error", err)
		return false, nil
	}
	if !seen {
		return false, nil
	}
	return l.confirmLocked(ctx, eventID)
}

// confirmLocked re-reads the sheet to check a Redis hit. Rows found are
// merged into the local map; an id with no row is dropped from Redis.
func (l *SheetLedger) confirmLocked(ctx context.Context, eventID string) (bool, error) {
	rows, err := l.table.ReadAll(ctx)
	if err != nil {
		return false, fmt.Errorf("confirming ledger entry %s: %w", eventID, err)
	}
	entries, order := parseRows(rows)
	for _, id := range order {
		if _, ok := l.entries[id]; !ok {
			l.entries[id] = entries[id]
			l.order = append(l.order, id)
		}
	}
	if _, ok := entries[eventID]; ok {
		return true, nil
	}

	logger.Warn("ledger: dropping stale redis entry", "event_id", eventID, "key", l.redisKey)
	if err := l.redis.SRem(ctx, l.redisKey, eventID).Err(); err != nil {
		logger.Warn("ledger: redis remove failed", "event_id", eventID, "error", err)
	}
	return false, nil
}

// Record appends entry unless its event id is already known. It reports
// whether a row was written; a duplicate is not an error.
func (l *SheetLedger) Record(ctx context.Context, entry domain.LedgerEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoadedLocked(ctx); err != nil {
		return false, err
	}
	seen, err := l.hasLocked(ctx, entry.EventID)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}

	row := []string{
		entry.Category,
		entry.CampaignID,
		entry.EventID,
		entry.FirstSeen.UTC().Format(domain.RecordTimeLayout),
	}
	if err := l.table.AppendRow(ctx, row); err != nil {
		return false, fmt.Errorf("recording ledger entry %s: %w", entry.EventID, err)
	}

	l.entries[entry.EventID] = entry
	l.order = append(l.order, entry.EventID)

	if l.redis != nil {
		if err := l.redis.SAdd(ctx, l.redisKey, entry.EventID).Err(); err != nil {
			logger.Warn("ledger: redis add failed", "event_id", entry.EventID, "error", err)
		}
	}
	return true, nil
}

// Iterate calls fn for each entry in sheet order until fn returns false.
func (l *SheetLedger) Iterate(ctx context.Context, fn func(domain.LedgerEntry) bool) error {
	l.mu.Lock()
	if err := l.ensureLoadedLocked(ctx); err != nil {
		l.mu.Unlock()
		return err
	}
	entries := make([]domain.LedgerEntry, len(l.order))
	for i, id := range l.order {
		entries[i] = l.entries[id]
	}
	l.mu.Unlock()

	for _, e := range entries {
		if !fn(e) {
			return nil
		}
	}
	return nil
}

// Get returns the entry for eventID from the local cache.
func (l *SheetLedger) Get(eventID string) (domain.LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[eventID]
	return e, ok
}

// Len is the number of locally known entries.
func (l *SheetLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
