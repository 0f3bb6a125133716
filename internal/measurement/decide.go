// Package measurement finalizes change records once enough time has passed
// to judge their impact.
package measurement

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ignite/adchange-monitor/internal/domain"
)

const day = 24 * time.Hour

// Decision is the outcome of evaluating one pending record.
type Decision struct {
	Finalize bool
	// CutByNext is set when a newer change on the same campaign bounds the
	// measurement window.
	CutByNext   bool
	DaysSince   float64
	DaysBetween float64
	AfterStart  time.Time
	AfterEnd    time.Time
}

// Decide evaluates a record at eventTime. next is the event time of the
// following record of the same campaign, if any.
func Decide(eventTime time.Time, next *time.Time, now time.Time, window time.Duration) Decision {
	cutoff := eventTime.Add(window)
	if next != nil {
		cutoff = *next
	}
	d := Decision{
		CutByNext:   next != nil,
		DaysSince:   now.Sub(eventTime).Hours() / 24,
		DaysBetween: cutoff.Sub(eventTime).Hours() / 24,
		AfterStart:  eventTime,
		AfterEnd:    cutoff,
	}
	if now.Before(cutoff) {
		d.AfterEnd = now
	}

	if next == nil {
		d.Finalize = now.Sub(eventTime) >= window
	} else {
		d.Finalize = cutoff.Sub(eventTime) >= day
	}
	return d
}

// PctChange is the relative change from before to after in percent. A zero
// baseline yields 100 when after is positive and 0 otherwise.
func PctChange(before, after float64) float64 {
	if before == 0 {
		if after > 0 {
			return 100
		}
		return 0
	}
	return (after - before) / before * 100
}

// FormatMetricChanges renders the non-zero deltas as an English list.
func FormatMetricChanges(cpc, ctr, conv float64) string {
	var parts []string
	for _, m := range []struct {
		name  string
		delta float64
	}{
		{"CPC", cpc},
		{"CTR", ctr},
		{"Conversion Rate", conv},
	} {
		if m.delta == 0 {
			continue
		}
		dir := "an increase"
		if m.delta < 0 {
			dir = "a decrease"
		}
		parts = append(parts, fmt.Sprintf("%s of %.2f%% in %s", dir, math.Abs(m.delta), m.name))
	}

	switch len(parts) {
	case 0:
		return "no significant changes in metrics"
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}

// Narrative renders the cut-off insight for a finalized record.
func Narrative(campaign string, d Decision, window time.Duration, before, after domain.Metrics) string {
	changes := FormatMetricChanges(
		PctChange(before.CPC, after.CPC),
		PctChange(before.CTR, after.CTR),
		PctChange(before.ConversionRate, after.ConversionRate),
	)
	if d.CutByNext {
		return fmt.Sprintf("During %.1f days, \"%s\" has seen %s. Cut-off by newer change event.", d.DaysBetween, campaign, changes)
	}
	return fmt.Sprintf("During %d days, \"%s\" has seen %s.", int(window/day), campaign, changes)
}
