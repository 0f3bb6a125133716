package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocalTable stores a sheet as a CSV file under a data directory.
type LocalTable struct {
	name string
	path string
	mu   sync.Mutex
}

// NewLocalTable creates the data directory if needed. The file is created on
// first append.
func NewLocalTable(dir, name string) (*LocalTable, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &LocalTable{
		name: name,
		path: filepath.Join(dir, fileName(name)),
	}, nil
}

// fileName maps "Budget Monitoring" to "budget_monitoring.csv".
func fileName(sheet string) string {
	s := strings.ToLower(strings.TrimSpace(sheet))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
	return s + ".csv"
}

func (t *LocalTable) Name() string { return t.name }

// Path returns the backing file path.
func (t *LocalTable) Path() string { return t.path }

func (t *LocalTable) ReadAll(ctx context.Context) ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readLocked()
}

func (t *LocalTable) readLocked() ([][]string, error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", t.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", t.path, err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func (t *LocalTable) AppendRow(ctx context.Context, cells []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", t.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(cells); err != nil {
		return fmt.Errorf("writing %s: %w", t.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", t.path, err)
	}
	return f.Sync()
}

func (t *LocalTable) SetCell(ctx context.Context, row, col int, value string) error {
	if err := validateCoords(row, col); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.readLocked()
	if err != nil {
		return err
	}
	if row > len(rows) {
		return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, t.name, row)
	}
	rows[row-1] = setPadded(rows[row-1], col, value)
	return t.rewriteLocked(rows)
}

// rewriteLocked replaces the file atomically via a temp file and rename.
func (t *LocalTable) rewriteLocked(rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return os.Rename(tmp.Name(), t.path)
}
