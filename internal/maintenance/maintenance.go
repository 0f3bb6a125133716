// Package maintenance repairs records rows written by older versions of the
// monitor.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ignite/adchange-monitor/internal/classifier"
	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/googleads"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
	"github.com/ignite/adchange-monitor/internal/records"
	"github.com/ignite/adchange-monitor/internal/storage"
)

// Sheet is the part of records.Book the maintenance jobs use.
type Sheet interface {
	List(ctx context.Context) ([]records.Row, error)
	Column(ctx context.Context, name string) (int, error)
	SetField(ctx context.Context, row int, column, value string) error
}

var beforeColumns = []string{records.ColCPCBefore, records.ColCTRBefore, records.ColConvBefore}

// FixEmptyBefore writes 0 into blank before-metric cells. It returns the
// number of cells written. A table without the before columns is left alone.
func FixEmptyBefore(ctx context.Context, sheet Sheet) (int, error) {
	cols := make(map[string]int, len(beforeColumns))
	for _, name := range beforeColumns {
		col, err := sheet.Column(ctx, name)
		if errors.Is(err, records.ErrColumnMissing) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		cols[name] = col
	}

	rows, err := sheet.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing records: %w", err)
	}

	fixed := 0
	for _, r := range rows {
		for _, name := range beforeColumns {
			if strings.TrimSpace(storage.Cell(r.Cells, cols[name])) != "" {
				continue
			}
			if err := sheet.SetField(ctx, r.Number, name, "0"); err != nil {
				return fixed, fmt.Errorf("fixing %s in row %d: %w", name, r.Number, err)
			}
			fixed++
		}
	}
	if fixed > 0 {
		logger.Info("maintenance: filled empty before metrics", "cells", fixed)
	}
	return fixed, nil
}

var (
	legacyOldBudget = regexp.MustCompile(`Old=.*?"amountMicros":\s*"?(\d+)"?`)
	legacyNewBudget = regexp.MustCompile(`New=.*?"amountMicros":\s*"?(\d+)"?`)

	biddingMarkers = []string{"bidding_strategy", "targetCpa", "targetRoas", "manualCpc", "maximizeConversions"}
)

// ReformatLegacySummaries re-renders summaries stored as raw
// "Old={json}, New={json}" payloads. Unparseable summaries are kept.
func ReformatLegacySummaries(ctx context.Context, sheet Sheet) (int, error) {
	if _, err := sheet.Column(ctx, records.ColSummary); err != nil {
		if errors.Is(err, records.ErrColumnMissing) {
			return 0, nil
		}
		return 0, err
	}

	rows, err := sheet.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing records: %w", err)
	}

	updated := 0
	for _, r := range rows {
		summary := r.Record.Summary
		if !strings.Contains(summary, "Old=") {
			continue
		}
		rewritten, ok := ReformatSummary(summary, LevelFromDisplay(r.Record.DisplayChangeType), r.Record.CampaignName)
		if !ok || rewritten == summary {
			continue
		}
		if err := sheet.SetField(ctx, r.Number, records.ColSummary, rewritten); err != nil {
			return updated, fmt.Errorf("rewriting summary in row %d: %w", r.Number, err)
		}
		updated++
	}
	if updated > 0 {
		logger.Info("maintenance: reformatted legacy summaries", "rows", updated)
	}
	return updated, nil
}

// ReformatSummary renders a legacy summary through the budget or bidding
// formatters. ok is false when the payload could not be interpreted.
func ReformatSummary(summary string, level domain.ChangeLevel, campaignName string) (string, bool) {
	if strings.Contains(summary, "campaignBudget") && strings.Contains(summary, "amountMicros") {
		return reformatBudget(summary, level)
	}
	for _, m := range biddingMarkers {
		if strings.Contains(summary, m) {
			return reformatBidding(summary, level, campaignName)
		}
	}
	return "", false
}

func reformatBudget(summary string, level domain.ChangeLevel) (string, bool) {
	oldM := legacyOldBudget.FindStringSubmatch(summary)
	newM := legacyNewBudget.FindStringSubmatch(summary)
	if oldM == nil || newM == nil {
		return "", false
	}
	oldAmt, err1 := strconv.ParseInt(oldM[1], 10, 64)
	newAmt, err2 := strconv.ParseInt(newM[1], 10, 64)
	if err1 != nil || err2 != nil {
		return "", false
	}
	ev := domain.ChangeEvent{
		ResourceType: domain.ResourceCampaignBudget,
		Operation:    domain.OperationModify,
		OldResource:  domain.BudgetResource{AmountMicros: &oldAmt},
		NewResource:  domain.BudgetResource{AmountMicros: &newAmt},
	}
	return classifier.Summarize(ev, level), true
}

func reformatBidding(summary string, level domain.ChangeLevel, campaignName string) (string, bool) {
	oldAt := strings.Index(summary, "Old=")
	sep := strings.Index(summary, ", New=")
	if oldAt < 0 || sep < oldAt {
		return "", false
	}
	oldRaw := strings.TrimSpace(summary[oldAt+len("Old=") : sep])
	newRaw := strings.TrimSpace(summary[sep+len(", New="):])

	oldRes, ok1 := decodeLegacyCampaign(oldRaw)
	newRes, ok2 := decodeLegacyCampaign(newRaw)
	if !ok1 || !ok2 {
		return "", false
	}
	ev := domain.ChangeEvent{
		CampaignName:  campaignName,
		ResourceType:  domain.ResourceCampaign,
		Operation:     domain.OperationModify,
		ChangedFields: "bidding_strategy",
		OldResource:   oldRes,
		NewResource:   newRes,
	}
	return classifier.Summarize(ev, level), true
}

// decodeLegacyCampaign accepts either a changed-resource payload
// ({"campaign": {...}}) or a bare campaign object.
func decodeLegacyCampaign(raw string) (domain.Resource, bool) {
	if !json.Valid([]byte(raw)) {
		return nil, false
	}
	res, err := googleads.DecodeChangedResource(domain.ResourceCampaign, json.RawMessage(raw))
	if err != nil {
		return nil, false
	}
	if c, ok := res.(domain.CampaignResource); ok && c.HasStrategy() {
		return c, true
	}
	wrapped, err := googleads.DecodeChangedResource(domain.ResourceCampaign, json.RawMessage(`{"campaign":`+raw+`}`))
	if err != nil {
		return nil, false
	}
	return wrapped, true
}

// LevelFromDisplay recovers the change level from a display change type
// such as "[BUDGET] Ad Group CAMPAIGN_BUDGET".
func LevelFromDisplay(display string) domain.ChangeLevel {
	rest := display
	if i := strings.Index(rest, "]"); i >= 0 {
		rest = rest[i+1:]
	}
	rest = strings.TrimSpace(rest)
	for _, lvl := range []domain.ChangeLevel{domain.LevelAdGroup, domain.LevelKeyword, domain.LevelAudience, domain.LevelCampaign} {
		if strings.HasPrefix(rest, string(lvl)) {
			return lvl
		}
	}
	return domain.LevelCampaign
}
