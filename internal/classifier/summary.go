package classifier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
)

var errUndecodable = errors.New("resource payload could not be decoded")

// formatter returns ok=false when the event is not its kind.
type formatter struct {
	name   string
	format func(ev domain.ChangeEvent, level domain.ChangeLevel) (summary string, ok bool, err error)
}

// formatters run in priority order; the first match wins.
var formatters = []formatter{
	{"budget", formatBudget},
	{"bidding", formatBidding},
	{"keyword", formatKeyword},
	{"audience", formatAudience},
	{"location", formatLocation},
}

// Summarize renders the human readable summary for an event.
func Summarize(ev domain.ChangeEvent, level domain.ChangeLevel) string {
	summary := ""
	for _, f := range formatters {
		s, ok, err := runFormatter(f, ev, level)
		if err != nil {
			logger.Warn("classifier: formatter failed, using generic summary",
				"formatter", f.name, "event_id", ev.EventID(), "error", err)
			summary = genericSummary(ev, level)
			break
		}
		if ok {
			summary = s
			break
		}
	}
	if summary == "" {
		summary = fallbackSummary(ev)
	}

	if ev.AdGroupName != "" {
		summary += " in ad group \"" + ev.AdGroupName + "\""
	}
	return summary
}

func runFormatter(f formatter, ev domain.ChangeEvent, level domain.ChangeLevel) (s string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, ok, err = "", false, fmt.Errorf("%s formatter panic: %v", f.name, r)
		}
	}()
	return f.format(ev, level)
}

func genericSummary(ev domain.ChangeEvent, level domain.ChangeLevel) string {
	return fmt.Sprintf("%s %s on %s", level, ev.Operation, ev.ResourceType)
}

func fallbackSummary(ev domain.ChangeEvent) string {
	if ev.ChangedFields != "" {
		return ev.ChangedFields
	}
	return string(ev.ResourceType)
}

func dollars(micros int64) float64 {
	return float64(micros) / 1_000_000
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func direction(oldV, newV float64) string {
	switch {
	case newV > oldV:
		return "Increased"
	case newV < oldV:
		return "Decreased"
	default:
		return "Changed"
	}
}

func formatBudget(ev domain.ChangeEvent, level domain.ChangeLevel) (string, bool, error) {
	if ev.ResourceType != domain.ResourceCampaignBudget && !ev.ChangedFieldsContain("budget") {
		return "", false, nil
	}

	oldAmt := budgetAmount(ev.OldResource)
	newAmt := budgetAmount(ev.NewResource)

	switch {
	case oldAmt != nil && newAmt != nil:
		o, n := dollars(*oldAmt), dollars(*newAmt)
		return fmt.Sprintf("%s %s daily budget from %s to %s", direction(o, n), level, money(o), money(n)), true, nil
	case newAmt != nil && ev.Operation == domain.OperationCreate:
		return "New budget set to " + money(dollars(*newAmt)), true, nil
	default:
		return "Budget change detected", true, nil
	}
}

func budgetAmount(r domain.Resource) *int64 {
	if b, ok := r.(domain.BudgetResource); ok {
		return b.AmountMicros
	}
	return nil
}

// criterionKind is the subject of a criterion change.
type criterionKind string

const (
	kindKeyword  criterionKind = "Keyword"
	kindAudience criterionKind = "Audience"
	kindLocation criterionKind = "Location"
)

// criterionPrefix renders "{Kind} {level} {operation}: ", leaving out the
// level when it repeats the kind.
func criterionPrefix(kind criterionKind, level domain.ChangeLevel, op domain.Operation) string {
	if string(level) == string(kind) {
		return fmt.Sprintf("%s %s: ", kind, op)
	}
	return fmt.Sprintf("%s %s %s: ", kind, level, op)
}

func criteria(ev domain.ChangeEvent) (oldC, newC *domain.CriterionResource) {
	if c, ok := ev.OldResource.(domain.CriterionResource); ok {
		oldC = &c
	}
	if c, ok := ev.NewResource.(domain.CriterionResource); ok {
		newC = &c
	}
	return oldC, newC
}

func isCriterionType(rt domain.ResourceType) bool {
	return rt == domain.ResourceAdGroupCriterion || rt == domain.ResourceCampaignCriterion
}

func formatKeyword(ev domain.ChangeEvent, level domain.ChangeLevel) (string, bool, error) {
	oldC, newC := criteria(ev)
	var kw *domain.Keyword
	switch {
	case newC != nil && newC.Keyword != nil:
		kw = newC.Keyword
	case oldC != nil && oldC.Keyword != nil:
		kw = oldC.Keyword
	}
	if kw == nil && !(isCriterionType(ev.ResourceType) && ev.ChangedFieldsContain("keyword")) {
		return "", false, nil
	}

	var action string
	switch ev.Operation {
	case domain.OperationCreate:
		action = "Keyword added"
	case domain.OperationRemove:
		action = "Keyword removed"
	default:
		action = "Keyword modified"
	}

	if kw != nil && kw.Text != "" {
		action += ": \"" + kw.Text + "\""
		if kw.MatchType != "" {
			action += " (" + kw.MatchType + ")"
		}
	}
	return criterionPrefix(kindKeyword, level, ev.Operation) + action, true, nil
}

func formatAudience(ev domain.ChangeEvent, level domain.ChangeLevel) (string, bool, error) {
	oldC, newC := criteria(ev)
	isAudience := (newC != nil && newC.IsAudience()) || (oldC != nil && oldC.IsAudience())
	if !isAudience && !(isCriterionType(ev.ResourceType) &&
		(ev.ChangedFieldsContain("audience") || ev.ChangedFieldsContain("user_list") || ev.ChangedFieldsContain("user_interest"))) {
		return "", false, nil
	}

	var action string
	switch ev.Operation {
	case domain.OperationCreate:
		action = "Audience added"
	case domain.OperationRemove:
		action = "Audience removed"
	default:
		action = "Audience targeting modified"
	}
	return criterionPrefix(kindAudience, level, ev.Operation) + action, true, nil
}

func formatLocation(ev domain.ChangeEvent, level domain.ChangeLevel) (string, bool, error) {
	oldC, newC := criteria(ev)
	isLocation := (newC != nil && newC.Location != "") || (oldC != nil && oldC.Location != "")
	if !isLocation && !(isCriterionType(ev.ResourceType) &&
		(ev.ChangedFieldsContain("location") || ev.ChangedFieldsContain("geo_target"))) {
		return "", false, nil
	}

	var action string
	switch ev.Operation {
	case domain.OperationCreate:
		action = "Location targeting added"
	case domain.OperationRemove:
		action = "Location targeting removed"
	default:
		action = "Location targeting modified"
	}
	return criterionPrefix(kindLocation, level, ev.Operation) + action, true, nil
}

// FormatStrategyName renders a bidding strategy type for people.
func FormatStrategyName(t domain.BiddingStrategyType) string {
	switch t {
	case domain.StrategyManualCPC:
		return "Manual CPC"
	case domain.StrategyEnhancedCPC:
		return "Enhanced CPC"
	case domain.StrategyTargetCPA:
		return "Target CPA"
	case domain.StrategyTargetROAS:
		return "Target ROAS"
	case domain.StrategyMaximizeConversions:
		return "Maximize Conversions"
	case domain.StrategyMaximizeConversionValue:
		return "Maximize Conversion Value"
	case domain.StrategyUnknown, "":
		return "Unknown"
	}

	words := strings.Fields(strings.ToLower(strings.ReplaceAll(string(t), "_", " ")))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
