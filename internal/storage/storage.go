// Package storage holds the tabular store behind the records and ledger
// tables: a sheet-like contract of append-row, read-all and set-cell, with
// memory, local CSV and DynamoDB backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrRowOutOfRange is returned by SetCell for a row that does not exist.
var ErrRowOutOfRange = errors.New("storage: row out of range")

// Table is one logical sheet. Coordinates are 1-based and row 1 is the
// header row. Rows may have different lengths; SetCell pads a short row.
type Table interface {
	Name() string
	ReadAll(ctx context.Context) ([][]string, error)
	AppendRow(ctx context.Context, cells []string) error
	SetCell(ctx context.Context, row, col int, value string) error
}

// ColumnIndex returns the 1-based column of name in header, matching
// case-insensitively after trimming. It returns 0 when the column is absent.
func ColumnIndex(header []string, name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i + 1
		}
	}
	return 0
}

// Cell returns the value at 1-based col of row, or "" when the row is short.
func Cell(row []string, col int) string {
	if col < 1 || col > len(row) {
		return ""
	}
	return row[col-1]
}

func validateCoords(row, col int) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("%w: row %d col %d", ErrRowOutOfRange, row, col)
	}
	return nil
}

func setPadded(cells []string, col int, value string) []string {
	for len(cells) < col {
		cells = append(cells, "")
	}
	cells[col-1] = value
	return cells
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// MemoryTable keeps rows in process memory. Used by tests and the
// "memory" storage type.
type MemoryTable struct {
	name string
	mu   sync.RWMutex
	rows [][]string
}

// NewMemoryTable creates an empty in-memory table.
func NewMemoryTable(name string) *MemoryTable {
	return &MemoryTable{name: name}
}

func (t *MemoryTable) Name() string { return t.name }

func (t *MemoryTable) ReadAll(ctx context.Context) ([][]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyRows(t.rows), nil
}

func (t *MemoryTable) AppendRow(ctx context.Context, cells []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, append([]string(nil), cells...))
	return nil
}

func (t *MemoryTable) SetCell(ctx context.Context, row, col int, value string) error {
	if err := validateCoords(row, col); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if row > len(t.rows) {
		return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, t.name, row)
	}
	t.rows[row-1] = setPadded(t.rows[row-1], col, value)
	return nil
}
