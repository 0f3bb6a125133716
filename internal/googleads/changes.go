package googleads

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
)

const (
	queryTimeLayout = "2006-01-02 15:04:05"
	// change_date_time comes back as "2025-03-01 10:15:30.123456" in the
	// account timezone.
	changeTimeLayout = "2006-01-02 15:04:05.999999"
)

// BuildChangeEventQuery renders the change_event GAQL query. Window bounds
// are formatted in the account timezone.
func BuildChangeEventQuery(start, end time.Time, loc *time.Location, resourceTypes []string, limit int) string {
	quoted := make([]string, len(resourceTypes))
	for i, t := range resourceTypes {
		quoted[i] = "'" + t + "'"
	}

	return fmt.Sprintf(`SELECT
  change_event.change_date_time,
  change_event.campaign,
  change_event.ad_group,
  change_event.change_resource_type,
  change_event.old_resource,
  change_event.new_resource,
  campaign.name,
  ad_group.name,
  change_event.changed_fields,
  change_event.resource_change_operation
FROM change_event
WHERE change_event.change_date_time BETWEEN '%s' AND '%s'
  AND change_event.change_resource_type IN (%s)
LIMIT %d`,
		start.In(loc).Format(queryTimeLayout),
		end.In(loc).Format(queryTimeLayout),
		strings.Join(quoted, ", "),
		limit)
}

// ChangeEvents fetches change events of the given resource types between
// start and end. Rows without a change_event block are ignored.
func (c *Client) ChangeEvents(ctx context.Context, start, end time.Time, resourceTypes []string) ([]domain.ChangeEvent, error) {
	query := BuildChangeEventQuery(start, end, c.location, resourceTypes, c.queryLimit)

	rows, err := c.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetching change events: %w", err)
	}

	events := make([]domain.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		if row.ChangeEvent == nil {
			continue
		}
		events = append(events, c.toChangeEvent(row))
	}

	logger.Debug("googleads: change events fetched",
		"rows", len(rows), "events", len(events), "resource_types", strings.Join(resourceTypes, ","))
	return events, nil
}

func (c *Client) toChangeEvent(row Row) domain.ChangeEvent {
	ce := row.ChangeEvent
	ev := domain.ChangeEvent{
		RawTimestamp:  ce.ChangeDateTime,
		CampaignID:    resourceID(ce.Campaign),
		AdGroupID:     resourceID(ce.AdGroup),
		ResourceType:  domain.ResourceType(ce.ChangeResourceType),
		Operation:     domain.ParseOperation(ce.ResourceChangeOperation),
		ChangedFields: ce.ChangedFields,
	}
	if row.Campaign != nil {
		ev.CampaignName = row.Campaign.Name
	}
	if row.AdGroup != nil {
		ev.AdGroupName = row.AdGroup.Name
	}

	if ts, err := time.ParseInLocation(changeTimeLayout, ce.ChangeDateTime, c.location); err == nil {
		ev.Timestamp = ts.UTC()
	} else {
		logger.Warn("googleads: unparsable change_date_time", "value", ce.ChangeDateTime, "error", err)
	}

	ev.OldResource = decodeOrUnknown(ev.ResourceType, ce.OldResource)
	ev.NewResource = decodeOrUnknown(ev.ResourceType, ce.NewResource)
	ev.RawOldResource = ce.OldResource
	ev.RawNewResource = ce.NewResource
	return ev
}

func decodeOrUnknown(rt domain.ResourceType, raw json.RawMessage) domain.Resource {
	res, err := DecodeChangedResource(rt, raw)
	if err != nil {
		logger.Warn("googleads: undecodable changed resource", "resource_type", rt, "error", err)
		return domain.UnknownResource{Type: rt, Raw: raw}
	}
	return res
}

// resourceID extracts the entity id from "customers/{cid}/campaigns/{id}".
func resourceID(resourceName string) string {
	if resourceName == "" {
		return ""
	}
	parts := strings.Split(resourceName, "/")
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

// DecodeChangedResource decodes an old_resource/new_resource payload into
// the variant for resourceType. Empty payloads decode to nil.
func DecodeChangedResource(rt domain.ResourceType, raw json.RawMessage) (domain.Resource, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" {
		return nil, nil
	}

	var cr changedResource
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, err
	}

	switch rt {
	case domain.ResourceCampaignBudget:
		if cr.CampaignBudget == nil {
			return domain.BudgetResource{}, nil
		}
		return domain.BudgetResource{
			Name:         cr.CampaignBudget.Name,
			AmountMicros: cr.CampaignBudget.AmountMicros.Ptr(),
		}, nil
	case domain.ResourceCampaign:
		if cr.Campaign == nil {
			return domain.CampaignResource{}, nil
		}
		return cr.Campaign.toDomain(), nil
	case domain.ResourceAdGroupCriterion:
		return cr.AdGroupCriterion.toDomain(rt), nil
	case domain.ResourceCampaignCriterion:
		return cr.CampaignCriterion.toDomain(rt), nil
	case domain.ResourceAdGroupBidModifier:
		if cr.AdGroupBidModifier == nil {
			return domain.BidModifierResource{}, nil
		}
		return domain.BidModifierResource{BidModifier: cr.AdGroupBidModifier.BidModifier.Ptr()}, nil
	default:
		return domain.UnknownResource{Type: rt, Raw: raw}, nil
	}
}

func (w *campaignWire) toDomain() domain.CampaignResource {
	res := domain.CampaignResource{
		Name:                w.Name,
		Status:              w.Status,
		CampaignBudget:      w.CampaignBudget,
		BiddingStrategyType: domain.BiddingStrategyType(w.BiddingStrategyType),
	}
	if w.ManualCpc != nil {
		res.ManualCPC = &domain.ManualCPC{EnhancedCPCEnabled: w.ManualCpc.EnhancedCpcEnabled}
	}
	if w.ManualCpm != nil {
		res.ManualCPM = &domain.ManualCPM{}
	}
	if w.TargetCpa != nil {
		res.TargetCPA = &domain.TargetCPA{TargetCPAMicros: w.TargetCpa.TargetCpaMicros.Ptr()}
	}
	if w.TargetRoas != nil {
		res.TargetROAS = &domain.TargetROAS{TargetROAS: w.TargetRoas.TargetRoas.Ptr()}
	}
	if w.MaximizeConversions != nil {
		res.MaximizeConversions = &domain.MaximizeConversions{TargetCPAMicros: w.MaximizeConversions.TargetCpaMicros.Ptr()}
	}
	if w.MaximizeConversionValue != nil {
		res.MaximizeConversionValue = &domain.MaximizeConversionValue{TargetROAS: w.MaximizeConversionValue.TargetRoas.Ptr()}
	}
	return res
}

func (w *criterionWire) toDomain(rt domain.ResourceType) domain.CriterionResource {
	res := domain.CriterionResource{Type: rt}
	if w == nil {
		return res
	}
	res.Status = w.Status
	res.Negative = w.Negative
	res.CriterionType = w.Type
	res.CPCBidMicros = w.CpcBidMicros.Ptr()
	if w.Keyword != nil {
		res.Keyword = &domain.Keyword{Text: w.Keyword.Text, MatchType: w.Keyword.MatchType}
	}
	if w.UserList != nil {
		res.UserList = w.UserList.UserList
	}
	if w.UserInterest != nil {
		res.UserInterest = w.UserInterest.UserInterestCategory
	}
	if w.Location != nil {
		res.Location = w.Location.GeoTargetConstant
	}
	return res
}
