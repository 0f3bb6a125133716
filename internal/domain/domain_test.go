package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeEvent_EventID(t *testing.T) {
	ev := ChangeEvent{
		CampaignID:   "123",
		ResourceType: ResourceCampaignBudget,
		RawTimestamp: "2025-03-01 10:15:30.123456",
	}
	assert.Equal(t, "123-CAMPAIGN_BUDGET-2025-03-01 10:15:30.123456", ev.EventID())
}

func TestParseOperation(t *testing.T) {
	assert.Equal(t, OperationCreate, ParseOperation("create"))
	assert.Equal(t, OperationRemove, ParseOperation("REMOVE"))
	assert.Equal(t, OperationModify, ParseOperation("UPDATE"))
	assert.Equal(t, OperationModify, ParseOperation(""))
}

func TestChangedFieldsContain(t *testing.T) {
	ev := ChangeEvent{ChangedFields: "campaign.Target_CPA.target_cpa_micros"}
	assert.True(t, ev.ChangedFieldsContain("target_cpa"))
	assert.False(t, ev.ChangedFieldsContain("budget"))
	assert.False(t, ChangeEvent{}.ChangedFieldsContain("budget"))

	camel := ChangeEvent{ChangedFields: "targetCpa.targetCpaMicros,userList.userList"}
	assert.True(t, camel.ChangedFieldsContain("target_cpa"))
	assert.True(t, camel.ChangedFieldsContain("user_list"))
}

func TestCampaignResource_StrategyType(t *testing.T) {
	tests := []struct {
		name string
		res  CampaignResource
		want BiddingStrategyType
	}{
		{"explicit wins", CampaignResource{BiddingStrategyType: StrategyTargetROAS, ManualCPC: &ManualCPC{}}, StrategyTargetROAS},
		{"manual cpc before target cpa", CampaignResource{ManualCPC: &ManualCPC{}, TargetCPA: &TargetCPA{}}, StrategyManualCPC},
		{"manual cpm", CampaignResource{ManualCPM: &ManualCPM{}}, StrategyManualCPM},
		{"target roas", CampaignResource{TargetROAS: &TargetROAS{}}, StrategyTargetROAS},
		{"maximize conversions", CampaignResource{MaximizeConversions: &MaximizeConversions{}}, StrategyMaximizeConversions},
		{"maximize value", CampaignResource{MaximizeConversionValue: &MaximizeConversionValue{}}, StrategyMaximizeConversionValue},
		{"nothing", CampaignResource{}, StrategyUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.StrategyType())
		})
	}
}

func TestChangeRecord_State(t *testing.T) {
	r := ChangeRecord{}
	assert.Equal(t, StatePending, r.State())
	r.CutoffInsight = "During 14 days, ..."
	assert.Equal(t, StateFinalized, r.State())
}

func TestResourceKinds(t *testing.T) {
	var res Resource = CriterionResource{Type: ResourceAdGroupCriterion}
	assert.Equal(t, ResourceAdGroupCriterion, res.Kind())
	assert.Equal(t, ResourceCampaignBudget, BudgetResource{}.Kind())
	assert.Equal(t, ResourceType("AD"), UnknownResource{Type: "AD"}.Kind())
	assert.Equal(t, NoDataInsight, NoData().AuctionInsight)
}
