package googleads

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Int64 decodes int64 fields, which the REST API encodes as JSON strings,
// while still accepting bare numbers.
type Int64 int64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Int64) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("googleads: invalid int64 %q: %w", s, err)
	}
	*n = Int64(v)
	return nil
}

// Ptr returns the value as *int64 for domain types.
func (n *Int64) Ptr() *int64 {
	if n == nil {
		return nil
	}
	v := int64(*n)
	return &v
}

// Float64 decodes double fields that may arrive quoted.
type Float64 float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float64) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("googleads: invalid double %q: %w", s, err)
	}
	*f = Float64(v)
	return nil
}

// Ptr returns the value as *float64 for domain types.
func (f *Float64) Ptr() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

// SearchBatch is one element of a searchStream response array.
type SearchBatch struct {
	Results   []Row  `json:"results"`
	FieldMask string `json:"fieldMask,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Row is a GoogleAdsRow reduced to the resources the monitor selects.
type Row struct {
	ChangeEvent *ChangeEventRow `json:"changeEvent,omitempty"`
	Campaign    *CampaignRow    `json:"campaign,omitempty"`
	AdGroup     *AdGroupRow     `json:"adGroup,omitempty"`
	Metrics     *MetricsRow     `json:"metrics,omitempty"`
}

// ChangeEventRow is the change_event resource.
type ChangeEventRow struct {
	ResourceName            string          `json:"resourceName"`
	ChangeDateTime          string          `json:"changeDateTime"`
	ChangeResourceType      string          `json:"changeResourceType"`
	ResourceChangeOperation string          `json:"resourceChangeOperation"`
	ChangedFields           string          `json:"changedFields"`
	Campaign                string          `json:"campaign"`
	AdGroup                 string          `json:"adGroup"`
	OldResource             json.RawMessage `json:"oldResource,omitempty"`
	NewResource             json.RawMessage `json:"newResource,omitempty"`
}

// CampaignRow carries the selected campaign attributes.
type CampaignRow struct {
	ResourceName string `json:"resourceName"`
	ID           Int64  `json:"id"`
	Name         string `json:"name"`
}

// AdGroupRow carries the selected ad group attributes.
type AdGroupRow struct {
	ResourceName string `json:"resourceName"`
	Name         string `json:"name"`
}

// MetricsRow is the metrics block of a campaign performance row.
type MetricsRow struct {
	AverageCPC                       Float64  `json:"averageCpc"`
	CTR                              Float64  `json:"ctr"`
	Conversions                      Float64  `json:"conversions"`
	Clicks                           Int64    `json:"clicks"`
	Impressions                      Int64    `json:"impressions"`
	SearchImpressionShare            *Float64 `json:"searchImpressionShare,omitempty"`
	SearchTopImpressionShare         *Float64 `json:"searchTopImpressionShare,omitempty"`
	SearchAbsoluteTopImpressionShare *Float64 `json:"searchAbsoluteTopImpressionShare,omitempty"`
}

// changedResource is ChangeEvent.old_resource / new_resource. Exactly one
// member is set, matching change_resource_type.
type changedResource struct {
	CampaignBudget     *budgetWire      `json:"campaignBudget,omitempty"`
	Campaign           *campaignWire    `json:"campaign,omitempty"`
	AdGroupCriterion   *criterionWire   `json:"adGroupCriterion,omitempty"`
	CampaignCriterion  *criterionWire   `json:"campaignCriterion,omitempty"`
	AdGroupBidModifier *bidModifierWire `json:"adGroupBidModifier,omitempty"`
}

type budgetWire struct {
	Name         string `json:"name"`
	AmountMicros *Int64 `json:"amountMicros"`
}

type campaignWire struct {
	Name                string `json:"name"`
	Status              string `json:"status"`
	CampaignBudget      string `json:"campaignBudget"`
	BiddingStrategyType string `json:"biddingStrategyType"`
	ManualCpc           *struct {
		EnhancedCpcEnabled *bool `json:"enhancedCpcEnabled"`
	} `json:"manualCpc"`
	ManualCpm *struct{} `json:"manualCpm"`
	TargetCpa *struct {
		TargetCpaMicros *Int64 `json:"targetCpaMicros"`
	} `json:"targetCpa"`
	TargetRoas *struct {
		TargetRoas *Float64 `json:"targetRoas"`
	} `json:"targetRoas"`
	MaximizeConversions *struct {
		TargetCpaMicros *Int64 `json:"targetCpaMicros"`
	} `json:"maximizeConversions"`
	MaximizeConversionValue *struct {
		TargetRoas *Float64 `json:"targetRoas"`
	} `json:"maximizeConversionValue"`
}

type criterionWire struct {
	Status   string `json:"status"`
	Type     string `json:"type"`
	Negative bool   `json:"negative"`
	Keyword  *struct {
		Text      string `json:"text"`
		MatchType string `json:"matchType"`
	} `json:"keyword"`
	UserList *struct {
		UserList string `json:"userList"`
	} `json:"userList"`
	UserInterest *struct {
		UserInterestCategory string `json:"userInterestCategory"`
	} `json:"userInterest"`
	Location *struct {
		GeoTargetConstant string `json:"geoTargetConstant"`
	} `json:"location"`
	CpcBidMicros *Int64 `json:"cpcBidMicros"`
}

type bidModifierWire struct {
	BidModifier *Float64 `json:"bidModifier"`
}

// apiErrorEnvelope is the body of a failed REST call.
type apiErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
