package classifier

import (
	"fmt"

	"github.com/ignite/adchange-monitor/internal/domain"
)

var biddingFields = []string{
	"bidding_strategy", "manual_cpc", "manual_cpm", "enhanced_cpc",
	"target_cpa", "target_roas", "maximize_conversion", "target_spend",
}

// bidValue is the representative value of a strategy: a number for
// target-based strategies, text for manual CPC.
type bidValue struct {
	num  *float64
	text string
}

func (v bidValue) numeric() bool { return v.num != nil }

func formatBidding(ev domain.ChangeEvent, level domain.ChangeLevel) (string, bool, error) {
	if ev.ResourceType != domain.ResourceCampaign {
		return "", false, nil
	}
	if _, bad := ev.OldResource.(domain.UnknownResource); bad {
		return "", false, errUndecodable
	}
	if _, bad := ev.NewResource.(domain.UnknownResource); bad {
		return "", false, errUndecodable
	}

	oldC := campaignOf(ev.OldResource)
	newC := campaignOf(ev.NewResource)

	mentioned := false
	for _, f := range biddingFields {
		if ev.ChangedFieldsContain(f) {
			mentioned = true
			break
		}
	}
	if !mentioned && !oldC.HasStrategy() && !newC.HasStrategy() {
		return "", false, nil
	}

	oldType, newType := oldC.StrategyType(), newC.StrategyType()
	oldVal, newVal := extractBidValue(oldC, oldType), extractBidValue(newC, newType)

	at := fmt.Sprintf(" at %s level", level)
	if ev.CampaignName != "" {
		at += " for \"" + ev.CampaignName + "\""
	}

	bothNumeric := oldVal.numeric() && newVal.numeric()

	if oldType != newType {
		s := "Changed bidding strategy" + at +
			fmt.Sprintf(" from %s to %s", FormatStrategyName(oldType), FormatStrategyName(newType))
		if bothNumeric {
			s += fmt.Sprintf(" from %s to %s", formatBid(oldType, *oldVal.num), formatBid(newType, *newVal.num))
		}
		return s, true, nil
	}

	switch {
	case bothNumeric:
		return fmt.Sprintf("%s %s bid%s from %s to %s",
			direction(*oldVal.num, *newVal.num), FormatStrategyName(newType), at,
			formatBid(oldType, *oldVal.num), formatBid(newType, *newVal.num)), true, nil
	case oldVal.text != "" && newVal.text != "" && oldVal.text != newVal.text:
		return fmt.Sprintf("Changed bidding strategy%s from %s to %s", at, oldVal.text, newVal.text), true, nil
	default:
		return "Changed bidding strategy" + at, true, nil
	}
}

func campaignOf(r domain.Resource) domain.CampaignResource {
	if c, ok := r.(domain.CampaignResource); ok {
		return c
	}
	return domain.CampaignResource{}
}

func extractBidValue(c domain.CampaignResource, t domain.BiddingStrategyType) bidValue {
	switch t {
	case domain.StrategyManualCPC:
		if c.ManualCPC != nil && c.ManualCPC.EnhancedCPCEnabled != nil {
			if *c.ManualCPC.EnhancedCPCEnabled {
				return bidValue{text: "Enhanced CPC"}
			}
			return bidValue{text: "Manual CPC"}
		}
	case domain.StrategyTargetCPA:
		if c.TargetCPA != nil && c.TargetCPA.TargetCPAMicros != nil && *c.TargetCPA.TargetCPAMicros != 0 {
			v := dollars(*c.TargetCPA.TargetCPAMicros)
			return bidValue{num: &v}
		}
	case domain.StrategyTargetROAS:
		if c.TargetROAS != nil && c.TargetROAS.TargetROAS != nil && *c.TargetROAS.TargetROAS != 0 {
			v := *c.TargetROAS.TargetROAS
			return bidValue{num: &v}
		}
	case domain.StrategyMaximizeConversions:
		if c.MaximizeConversions != nil && c.MaximizeConversions.TargetCPAMicros != nil && *c.MaximizeConversions.TargetCPAMicros != 0 {
			v := dollars(*c.MaximizeConversions.TargetCPAMicros)
			return bidValue{num: &v}
		}
	case domain.StrategyMaximizeConversionValue:
		if c.MaximizeConversionValue != nil && c.MaximizeConversionValue.TargetROAS != nil && *c.MaximizeConversionValue.TargetROAS != 0 {
			v := *c.MaximizeConversionValue.TargetROAS
			return bidValue{num: &v}
		}
	}
	return bidValue{}
}

// formatBid renders ROAS fractions as percentages and everything else as
// dollars.
func formatBid(t domain.BiddingStrategyType, v float64) string {
	if t == domain.StrategyTargetROAS || t == domain.StrategyMaximizeConversionValue {
		return fmt.Sprintf("%.2f%%", v*100)
	}
	return money(v)
}
