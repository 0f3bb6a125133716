// Package report renders the change audit report with Liquid templates.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/osteele/liquid"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/records"
)

// DefaultTemplate renders a Markdown report.
const DefaultTemplate = `# Change audit report

Generated {{ generated_at }}. Measurement window: {{ window_days }} days.

{{ total }} records: {{ finalized }} finalized, {{ pending }} pending.
{% for c in campaigns %}
## {{ c.name }} ({{ c.id }})
{% for r in c.records %}
- {{ r.event_time }} {{ r.change_type }} [{{ r.state }}]
  {{ r.summary }}
  CPC {{ r.before.cpc | fixed }}{% if r.after %} -> {{ r.after.cpc | fixed }}{% endif %}, CTR {{ r.before.ctr | fixed }}%{% if r.after %} -> {{ r.after.ctr | fixed }}%{% endif %}, Conversion Rate {{ r.before.conversion_rate | fixed }}%{% if r.after %} -> {{ r.after.conversion_rate | fixed }}%{% endif %}
  Auction: {{ r.auction | default: "N/A" }}
{% if r.insight != "" %}  {{ r.insight }}
{% endif %}{% endfor %}{% endfor %}`

// Renderer renders records into a report.
type Renderer struct {
	engine *liquid.Engine
	tpl    *liquid.Template
}

// New compiles tpl, or DefaultTemplate when tpl is empty.
func New(tpl string) (*Renderer, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	engine := liquid.NewEngine()
	registerFilters(engine)

	compiled, err := engine.ParseString(tpl)
	if err != nil {
		return nil, fmt.Errorf("parsing report template: %w", err)
	}
	return &Renderer{engine: engine, tpl: compiled}, nil
}

func registerFilters(engine *liquid.Engine) {
	// {{ value | fixed }} renders two decimals.
	engine.RegisterFilter("fixed", func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	})
}

// Render produces the report for rows as of generatedAt.
func (r *Renderer) Render(rows []records.Row, window time.Duration, generatedAt time.Time) (string, error) {
	out, err := r.tpl.RenderString(Bindings(rows, window, generatedAt))
	if err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return out, nil
}

// Bindings builds the template variables: records grouped by campaign,
// campaigns ordered by name and records by event time.
func Bindings(rows []records.Row, window time.Duration, generatedAt time.Time) liquid.Bindings {
	type group struct {
		id, name string
		recs     []domain.ChangeRecord
	}
	groups := map[string]*group{}
	finalized := 0
	for _, row := range rows {
		rec := row.Record
		g, ok := groups[rec.CampaignID]
		if !ok {
			g = &group{id: rec.CampaignID, name: rec.CampaignName}
			groups[rec.CampaignID] = g
		}
		if g.name == "" {
			g.name = rec.CampaignName
		}
		g.recs = append(g.recs, rec)
		if rec.State() == domain.StateFinalized {
			finalized++
		}
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].name != ordered[j].name {
			return ordered[i].name < ordered[j].name
		}
		return ordered[i].id < ordered[j].id
	})

	campaigns := make([]map[string]interface{}, 0, len(ordered))
	for _, g := range ordered {
		sort.SliceStable(g.recs, func(i, j int) bool { return g.recs[i].EventTime.Before(g.recs[j].EventTime) })
		recs := make([]map[string]interface{}, 0, len(g.recs))
		for _, rec := range g.recs {
			recs = append(recs, recordBinding(rec))
		}
		campaigns = append(campaigns, map[string]interface{}{
			"id":      g.id,
			"name":    g.name,
			"records": recs,
		})
	}

	return liquid.Bindings{
		"generated_at": generatedAt.UTC().Format(time.RFC3339),
		"window_days":  int(window / (24 * time.Hour)),
		"total":        len(rows),
		"finalized":    finalized,
		"pending":      len(rows) - finalized,
		"campaigns":    campaigns,
	}
}

func recordBinding(rec domain.ChangeRecord) map[string]interface{} {
	b := map[string]interface{}{
		"event_id":    rec.EventID,
		"event_time":  rec.EventTime.UTC().Format(domain.RecordTimeLayout),
		"change_type": rec.DisplayChangeType,
		"summary":     rec.Summary,
		"state":       string(rec.State()),
		"auction":     rec.AuctionInsight,
		"insight":     rec.CutoffInsight,
		"before":      metricsBinding(rec.Before),
	}
	if rec.After != nil {
		b["after"] = metricsBinding(*rec.After)
	}
	return b
}

func metricsBinding(m domain.Metrics) map[string]interface{} {
	return map[string]interface{}{
		"cpc":             m.CPC,
		"ctr":             m.CTR,
		"conversion_rate": m.ConversionRate,
	}
}
