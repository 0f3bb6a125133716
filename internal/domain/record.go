package domain

import "time"

// RecordTimeLayout is how event timestamps are written to the records and
// ledger tables. Values are always in UTC.
const RecordTimeLayout = "01/02/2006 15:04:05"

// Auction insight sentinels.
const (
	NoDataInsight       = "No data available"
	NotAvailableInsight = "N/A"
)

// Metrics is a campaign performance snapshot in human units: CPC in
// currency units, CTR and conversion rate as percentages.
type Metrics struct {
	CPC            float64 `json:"cpc"`
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversion_rate"`
	Impressions    int64   `json:"impressions"`
	AuctionInsight string  `json:"auction_insight"`
}

// NoData is the sentinel returned whenever performance data is missing.
func NoData() Metrics {
	return Metrics{AuctionInsight: NoDataInsight}
}

// RawMetrics is the upstream campaign metrics row before unit conversion.
// Impression share fields are nil when the API omitted them.
type RawMetrics struct {
	AverageCPCMicros                 float64
	CTR                              float64
	Conversions                      float64
	Clicks                           int64
	Impressions                      int64
	SearchImpressionShare            *float64
	SearchTopImpressionShare         *float64
	SearchAbsoluteTopImpressionShare *float64
}

// RecordState is the measurement state of a change record.
type RecordState string

const (
	StatePending   RecordState = "PENDING"
	StateFinalized RecordState = "FINALIZED"
)

// ChangeRecord is the durable row written once per ingested event.
type ChangeRecord struct {
	CampaignName      string    `json:"campaign_name"`
	CampaignID        string    `json:"campaign_id"`
	Before            Metrics   `json:"before"`
	After             *Metrics  `json:"after,omitempty"`
	DisplayChangeType string    `json:"display_change_type"`
	EventID           string    `json:"event_id"`
	EventTime         time.Time `json:"event_time"`
	Summary           string    `json:"summary"`
	AuctionInsight    string    `json:"auction_insight"`
	CutoffInsight     string    `json:"cutoff_insight,omitempty"`
}

// State derives the measurement state: a record is finalized once its
// cut-off insight has been written.
func (r ChangeRecord) State() RecordState {
	if r.CutoffInsight != "" {
		return StateFinalized
	}
	return StatePending
}

// LedgerEntry marks an event id as ingested.
type LedgerEntry struct {
	Category   string    `json:"category"`
	CampaignID string    `json:"campaign_id"`
	EventID    string    `json:"event_id"`
	FirstSeen  time.Time `json:"first_seen"`
}
