// Package postgres stores the records and ledger sheets in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/adchange-monitor/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_sheet_rows (
	sheet      TEXT        NOT NULL,
	row_num    INTEGER     NOT NULL,
	cells      TEXT[]      NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (sheet, row_num)
)`

// EnsureSchema creates the sheet table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit_sheet_rows: %w", err)
	}
	return nil
}

// SheetTable implements storage.Table on one sheet of audit_sheet_rows.
type SheetTable struct {
	db    *sql.DB
	sheet string
}

// NewSheetTable creates a Postgres-backed sheet.
func NewSheetTable(db *sql.DB, sheet string) *SheetTable {
	return &SheetTable{db: db, sheet: sheet}
}

func (t *SheetTable) Name() string { return t.sheet }

func (t *SheetTable) ReadAll(ctx context.Context) ([][]string, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT row_num, cells
		FROM audit_sheet_rows
		WHERE sheet = $1
		ORDER BY row_num
	`, t.sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", t.sheet, err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var n int
		var cells pq.StringArray
		if err := rows.Scan(&n, &cells); err != nil {
			return nil, fmt.Errorf("scan sheet row: %w", err)
		}
		for len(out) < n-1 {
			out = append(out, []string{})
		}
		out = append(out, []string(cells))
	}
	return out, rows.Err()
}

func (t *SheetTable) AppendRow(ctx context.Context, cells []string) error {
	if cells == nil {
		cells = []string{}
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO audit_sheet_rows (sheet, row_num, cells)
		SELECT $1, COALESCE(MAX(row_num), 0) + 1, $2
		FROM audit_sheet_rows
		WHERE sheet = $1
	`, t.sheet, pq.Array(cells))
	if err != nil {
		return fmt.Errorf("append to sheet %s: %w", t.sheet, err)
	}
	return nil
}

func (t *SheetTable) SetCell(ctx context.Context, row, col int, value string) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("%w: row %d col %d", storage.ErrRowOutOfRange, row, col)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set cell: %w", err)
	}
	defer tx.Rollback()

	var cells pq.StringArray
	err = tx.QueryRowContext(ctx, `
		SELECT cells FROM audit_sheet_rows
		WHERE sheet = $1 AND row_num = $2
		FOR UPDATE
	`, t.sheet, row).Scan(&cells)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s row %d", storage.ErrRowOutOfRange, t.sheet, row)
	}
	if err != nil {
		return fmt.Errorf("lock sheet row: %w", err)
	}

	for len(cells) < col {
		cells = append(cells, "")
	}
	cells[col-1] = value

	if _, err := tx.ExecContext(ctx, `
		UPDATE audit_sheet_rows
		SET cells = $3, updated_at = NOW()
		WHERE sheet = $1 AND row_num = $2
	`, t.sheet, row, pq.Array([]string(cells))); err != nil {
		return fmt.Errorf("update sheet row: %w", err)
	}
	return tx.Commit()
}
