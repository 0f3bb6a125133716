package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ResourceType enumerates the Google Ads change_event resource categories
// the monitor understands. Unlisted values are carried through verbatim.
type ResourceType string

const (
	ResourceCampaignBudget     ResourceType = "CAMPAIGN_BUDGET"
	ResourceCampaign           ResourceType = "CAMPAIGN"
	ResourceAdGroup            ResourceType = "AD_GROUP"
	ResourceAdGroupCriterion   ResourceType = "AD_GROUP_CRITERION"
	ResourceCampaignCriterion  ResourceType = "CAMPAIGN_CRITERION"
	ResourceAdGroupBidModifier ResourceType = "AD_GROUP_BID_MODIFIER"
)

// Operation is the resource change operation reported with an event.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationModify Operation = "MODIFY"
	OperationRemove Operation = "REMOVE"
)

// ParseOperation normalizes an upstream operation string. The API reports
// modifications as UPDATE; absent or unknown values default to MODIFY.
func ParseOperation(s string) Operation {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREATE":
		return OperationCreate
	case "REMOVE":
		return OperationRemove
	default:
		return OperationModify
	}
}

// ChangeLevel is the entity level at which a change happened.
type ChangeLevel string

const (
	LevelCampaign ChangeLevel = "Campaign"
	LevelAdGroup  ChangeLevel = "Ad Group"
	LevelKeyword  ChangeLevel = "Keyword"
	LevelAudience ChangeLevel = "Audience"
)

// ChangeEvent is a normalized change_event row. It is produced by the
// fetcher and consumed by the classifier; it is never persisted as-is.
type ChangeEvent struct {
	// Timestamp is the parsed change time in UTC.
	Timestamp time.Time `json:"timestamp"`
	// RawTimestamp is the upstream change_date_time string, untouched. It is
	// part of the event identity, so it must never be reformatted.
	RawTimestamp string `json:"raw_timestamp"`

	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	AdGroupID    string `json:"ad_group_id,omitempty"`
	AdGroupName  string `json:"ad_group_name,omitempty"`

	ResourceType  ResourceType `json:"resource_type"`
	Operation     Operation    `json:"operation"`
	ChangedFields string       `json:"changed_fields,omitempty"`

	OldResource Resource `json:"-"`
	NewResource Resource `json:"-"`

	// RawOldResource and RawNewResource are the upstream payloads as
	// received, kept for the change-event archive.
	RawOldResource json.RawMessage `json:"old_resource,omitempty"`
	RawNewResource json.RawMessage `json:"new_resource,omitempty"`
}

// EventID derives the deterministic identity used for deduplication:
// campaign id, resource type and the raw upstream timestamp joined by "-".
func (e ChangeEvent) EventID() string {
	return e.CampaignID + "-" + string(e.ResourceType) + "-" + e.RawTimestamp
}

// HasAdGroup reports whether the event is scoped to an ad group.
func (e ChangeEvent) HasAdGroup() bool {
	return e.AdGroupID != ""
}

// ChangedFieldsContain reports whether the changed-field text contains sub,
// ignoring case and underscores. The REST API reports field paths in
// camelCase ("targetCpa.targetCpaMicros") while filters are usually written
// in snake_case ("target_cpa").
func (e ChangeEvent) ChangedFieldsContain(sub string) bool {
	if e.ChangedFields == "" || sub == "" {
		return false
	}
	return strings.Contains(normalizeField(e.ChangedFields), normalizeField(sub))
}

func normalizeField(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}
