// Package records maps domain.ChangeRecord onto the records table. Every
// column is addressed through the header row, so operators may reorder or
// add columns without breaking the monitor.
package records

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
	"github.com/ignite/adchange-monitor/internal/storage"
)

// ErrColumnMissing is returned when a required header is absent.
var ErrColumnMissing = errors.New("records: column missing")

// Column headers.
const (
	ColCampaignName  = "Campaign Name"
	ColCampaignID    = "Campaign ID"
	ColCPCBefore     = "CPC Before"
	ColCPCAfter      = "CPC After"
	ColCTRBefore     = "CTR Before"
	ColCTRAfter      = "CTR After"
	ColConvBefore    = "Conversion Rate Before"
	ColConvAfter     = "Conversion Rate After"
	ColChangeType    = "Changes Events"
	ColEventID       = "Change Events ID"
	ColDate          = "date"
	ColSummary       = "Change Event Summary"
	ColAuction       = "auction insights"
	ColCutoff        = "Cut-off Insights"
	legacyColInsight = "AI Insights"
)

// Header is the records table header written into an empty table.
var Header = []string{
	ColCampaignName, ColCampaignID,
	ColCPCBefore, ColCPCAfter,
	ColCTRBefore, ColCTRAfter,
	ColConvBefore, ColConvAfter,
	ColChangeType, ColEventID, ColDate, ColSummary, ColAuction, ColCutoff,
}

// Row is a parsed records row with its 1-based table row number.
type Row struct {
	Number int
	Record domain.ChangeRecord
	Cells  []string
}

// Book reads and writes change records.
type Book struct {
	table storage.Table

	mu     sync.Mutex
	header []string
}

// NewBook wraps table.
func NewBook(table storage.Table) *Book {
	return &Book{table: table}
}

// Name is the underlying table name.
func (b *Book) Name() string { return b.table.Name() }

// EnsureSchema writes the header into an empty table, renames the legacy
// "AI Insights" column and appends "Cut-off Insights" when absent.
func (b *Book) EnsureSchema(ctx context.Context) error {
	rows, err := b.table.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("reading %s header: %w", b.table.Name(), err)
	}

	if len(rows) == 0 {
		if err := b.table.AppendRow(ctx, Header); err != nil {
			return fmt.Errorf("writing %s header: %w", b.table.Name(), err)
		}
		b.setHeader(Header)
		logger.Info("records: header written", "sheet", b.table.Name())
		return nil
	}

	header := append([]string(nil), rows[0]...)
	if storage.ColumnIndex(header, ColCutoff) == 0 {
		if col := storage.ColumnIndex(header, legacyColInsight); col > 0 {
			if err := b.table.SetCell(ctx, 1, col, ColCutoff); err != nil {
				return fmt.Errorf("renaming %q column: %w", legacyColInsight, err)
			}
			header[col-1] = ColCutoff
			logger.Info("records: renamed column", "from", legacyColInsight, "to", ColCutoff)
		} else {
			col := len(header) + 1
			if err := b.table.SetCell(ctx, 1, col, ColCutoff); err != nil {
				return fmt.Errorf("adding %q column: %w", ColCutoff, err)
			}
			header = append(header, ColCutoff)
			logger.Info("records: added column", "column", ColCutoff)
		}
	}
	b.setHeader(header)
	return nil
}

func (b *Book) setHeader(h []string) {
	b.mu.Lock()
	b.header = append([]string(nil), h...)
	b.mu.Unlock()
}

func (b *Book) cachedHeader(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	h := b.header
	b.mu.Unlock()
	if h != nil {
		return h, nil
	}
	rows, err := b.table.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading %s header: %w", b.table.Name(), err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s has no header row", ErrColumnMissing, b.table.Name())
	}
	b.setHeader(rows[0])
	return rows[0], nil
}

// Column returns the 1-based index of name, or ErrColumnMissing.
func (b *Book) Column(ctx context.Context, name string) (int, error) {
	header, err := b.cachedHeader(ctx)
	if err != nil {
		return 0, err
	}
	col := storage.ColumnIndex(header, name)
	if col == 0 {
		return 0, fmt.Errorf("%w: %q in %s", ErrColumnMissing, name, b.table.Name())
	}
	return col, nil
}

// Append writes rec as a new row. After-metric and cut-off cells are left
// blank.
func (b *Book) Append(ctx context.Context, rec domain.ChangeRecord) error {
	header, err := b.cachedHeader(ctx)
	if err != nil {
		return err
	}
	for _, required := range []string{ColCampaignID, ColEventID} {
		if storage.ColumnIndex(header, required) == 0 {
			return fmt.Errorf("%w: %q in %s", ErrColumnMissing, required, b.table.Name())
		}
	}

	values := map[string]string{
		ColCampaignName: rec.CampaignName,
		ColCampaignID:   rec.CampaignID,
		ColCPCBefore:    FormatNumber(rec.Before.CPC),
		ColCTRBefore:    FormatNumber(rec.Before.CTR),
		ColConvBefore:   FormatNumber(rec.Before.ConversionRate),
		ColChangeType:   rec.DisplayChangeType,
		ColEventID:      rec.EventID,
		ColDate:         rec.EventTime.UTC().Format(domain.RecordTimeLayout),
		ColSummary:      rec.Summary,
		ColAuction:      rec.AuctionInsight,
	}
	if rec.After != nil {
		values[ColCPCAfter] = FormatNumber(rec.After.CPC)
		values[ColCTRAfter] = FormatNumber(rec.After.CTR)
		values[ColConvAfter] = FormatNumber(rec.After.ConversionRate)
	}
	values[ColCutoff] = rec.CutoffInsight

	row := make([]string, len(header))
	for name, v := range values {
		if col := storage.ColumnIndex(header, name); col > 0 {
			row[col-1] = v
		}
	}
	if err := b.table.AppendRow(ctx, row); err != nil {
		return fmt.Errorf("appending record %s: %w", rec.EventID, err)
	}
	return nil
}

// List returns every data row that carries a campaign id and event id.
func (b *Book) List(ctx context.Context) ([]Row, error) {
	rows, err := b.table.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", b.table.Name(), err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	b.setHeader(header)

	idx := make(map[string]int, len(Header))
	for _, name := range Header {
		idx[name] = storage.ColumnIndex(header, name)
	}
	for _, required := range []string{ColCampaignID, ColEventID} {
		if idx[required] == 0 {
			return nil, fmt.Errorf("%w: %q in %s", ErrColumnMissing, required, b.table.Name())
		}
	}
	cell := func(row []string, name string) string {
		return strings.TrimSpace(storage.Cell(row, idx[name]))
	}

	out := make([]Row, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec := domain.ChangeRecord{
			CampaignName:      cell(row, ColCampaignName),
			CampaignID:        cell(row, ColCampaignID),
			DisplayChangeType: cell(row, ColChangeType),
			EventID:           cell(row, ColEventID),
			Summary:           cell(row, ColSummary),
			AuctionInsight:    cell(row, ColAuction),
			CutoffInsight:     cell(row, ColCutoff),
			Before: domain.Metrics{
				CPC:            ParseNumber(cell(row, ColCPCBefore)),
				CTR:            ParseNumber(cell(row, ColCTRBefore)),
				ConversionRate: ParseNumber(cell(row, ColConvBefore)),
			},
		}
		if rec.CampaignID == "" || rec.EventID == "" {
			continue
		}

		cpcAfter, ctrAfter, convAfter := cell(row, ColCPCAfter), cell(row, ColCTRAfter), cell(row, ColConvAfter)
		if cpcAfter != "" || ctrAfter != "" || convAfter != "" {
			rec.After = &domain.Metrics{
				CPC:            ParseNumber(cpcAfter),
				CTR:            ParseNumber(ctrAfter),
				ConversionRate: ParseNumber(convAfter),
			}
		}
		if ts, err := time.Parse(domain.RecordTimeLayout, cell(row, ColDate)); err == nil {
			rec.EventTime = ts
		}

		out = append(out, Row{Number: i + 2, Record: rec, Cells: row})
	}
	return out, nil
}

// Finalize writes the after metrics and the narrative to row. The narrative
// is written last, so a row only reads as finalized once its metrics are in.
func (b *Book) Finalize(ctx context.Context, row int, after domain.Metrics, narrative string) error {
	writes := []struct {
		column string
		value  string
	}{
		{ColCPCAfter, FormatNumber(after.CPC)},
		{ColCTRAfter, FormatNumber(after.CTR)},
		{ColConvAfter, FormatNumber(after.ConversionRate)},
		{ColCutoff, narrative},
	}
	for _, w := range writes {
		if err := b.SetField(ctx, row, w.column, w.value); err != nil {
			return fmt.Errorf("finalizing row %d: %w", row, err)
		}
	}
	return nil
}

// SetField writes value into the named column of row.
func (b *Book) SetField(ctx context.Context, row int, column, value string) error {
	col, err := b.Column(ctx, column)
	if err != nil {
		return err
	}
	return b.table.SetCell(ctx, row, col, value)
}

// FormatNumber renders a metric with the shortest exact representation.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseNumber reads a metric cell; blank or non-numeric cells read as 0.
func ParseNumber(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
