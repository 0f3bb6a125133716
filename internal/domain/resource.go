package domain

// Resource is the before or after snapshot attached to a change event. It is
// a closed set of variants keyed by resource type, so each variant only
// exposes fields that resource can carry.
type Resource interface {
	Kind() ResourceType
	sealed()
}

// BudgetResource is a CAMPAIGN_BUDGET snapshot.
type BudgetResource struct {
	Name         string
	AmountMicros *int64
}

func (BudgetResource) Kind() ResourceType { return ResourceCampaignBudget }
func (BudgetResource) sealed()            {}

// BiddingStrategyType names a campaign bidding strategy.
type BiddingStrategyType string

const (
	StrategyManualCPC               BiddingStrategyType = "MANUAL_CPC"
	StrategyManualCPM               BiddingStrategyType = "MANUAL_CPM"
	StrategyEnhancedCPC             BiddingStrategyType = "ENHANCED_CPC"
	StrategyTargetCPA               BiddingStrategyType = "TARGET_CPA"
	StrategyTargetROAS              BiddingStrategyType = "TARGET_ROAS"
	StrategyMaximizeConversions     BiddingStrategyType = "MAXIMIZE_CONVERSIONS"
	StrategyMaximizeConversionValue BiddingStrategyType = "MAXIMIZE_CONVERSION_VALUE"
	StrategyUnknown                 BiddingStrategyType = "UNKNOWN"
)

// ManualCPC holds the manual CPC strategy settings.
type ManualCPC struct {
	EnhancedCPCEnabled *bool
}

// ManualCPM marks the presence of a manual CPM strategy.
type ManualCPM struct{}

// TargetCPA holds target CPA settings.
type TargetCPA struct {
	TargetCPAMicros *int64
}

// TargetROAS holds target ROAS settings; the value is a fraction (3.5 = 350%).
type TargetROAS struct {
	TargetROAS *float64
}

// MaximizeConversions holds the optional target CPA of the strategy.
type MaximizeConversions struct {
	TargetCPAMicros *int64
}

// MaximizeConversionValue holds the optional target ROAS of the strategy.
type MaximizeConversionValue struct {
	TargetROAS *float64
}

// CampaignResource is a CAMPAIGN snapshot, reduced to the fields the
// monitor reports on.
type CampaignResource struct {
	Name                    string
	Status                  string
	CampaignBudget          string
	BiddingStrategyType     BiddingStrategyType
	ManualCPC               *ManualCPC
	ManualCPM               *ManualCPM
	TargetCPA               *TargetCPA
	TargetROAS              *TargetROAS
	MaximizeConversions     *MaximizeConversions
	MaximizeConversionValue *MaximizeConversionValue
}

func (CampaignResource) Kind() ResourceType { return ResourceCampaign }
func (CampaignResource) sealed()            {}

// StrategyType resolves the bidding strategy: the explicit type first, then
// the first strategy object present in a fixed precedence order.
func (c CampaignResource) StrategyType() BiddingStrategyType {
	switch {
	case c.BiddingStrategyType != "":
		return c.BiddingStrategyType
	case c.ManualCPC != nil:
		return StrategyManualCPC
	case c.ManualCPM != nil:
		return StrategyManualCPM
	case c.TargetCPA != nil:
		return StrategyTargetCPA
	case c.TargetROAS != nil:
		return StrategyTargetROAS
	case c.MaximizeConversions != nil:
		return StrategyMaximizeConversions
	case c.MaximizeConversionValue != nil:
		return StrategyMaximizeConversionValue
	default:
		return StrategyUnknown
	}
}

// HasStrategy reports whether any bidding strategy information is present.
func (c CampaignResource) HasStrategy() bool {
	return c.StrategyType() != StrategyUnknown
}

// Keyword is the keyword criterion payload.
type Keyword struct {
	Text      string
	MatchType string
}

// CriterionResource is an AD_GROUP_CRITERION or CAMPAIGN_CRITERION snapshot.
type CriterionResource struct {
	Type          ResourceType
	Status        string
	Negative      bool
	Keyword       *Keyword
	UserList      string
	UserInterest  string
	Location      string
	CPCBidMicros  *int64
	CriterionType string
}

func (c CriterionResource) Kind() ResourceType { return c.Type }
func (CriterionResource) sealed()              {}

// IsAudience reports whether the criterion targets an audience segment.
func (c CriterionResource) IsAudience() bool {
	return c.UserList != "" || c.UserInterest != ""
}

// BidModifierResource is an AD_GROUP_BID_MODIFIER snapshot.
type BidModifierResource struct {
	BidModifier *float64
}

func (BidModifierResource) Kind() ResourceType { return ResourceAdGroupBidModifier }
func (BidModifierResource) sealed()            {}

// UnknownResource carries a payload the monitor has no typed variant for,
// or one that failed to decode.
type UnknownResource struct {
	Type ResourceType
	Raw  []byte
}

func (u UnknownResource) Kind() ResourceType { return u.Type }
func (UnknownResource) sealed()              {}
