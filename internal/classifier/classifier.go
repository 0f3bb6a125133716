// Package classifier decides which change events matter, at what level they
// happened, and how to describe them.
package classifier

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ignite/adchange-monitor/internal/domain"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
)

// Channel is one monitored slice of change history: a category tag, the
// resource types it covers and the changed-field substrings that make an
// event relevant. Empty RelevantFields keeps every event of those types.
type Channel struct {
	Category       string
	ResourceTypes  []string
	RelevantFields []string
}

// ClassifiedChange is a kept event with its level, display type and summary.
type ClassifiedChange struct {
	Event             domain.ChangeEvent
	Category          string
	Level             domain.ChangeLevel
	DisplayChangeType string
	Summary           string
}

// Classifier turns change events into ClassifiedChanges.
type Classifier struct {
	includeOperation bool
}

// New creates a Classifier. includeOperation appends the operation to the
// display change type.
func New(includeOperation bool) *Classifier {
	return &Classifier{includeOperation: includeOperation}
}

// Classify returns nil when the event is not relevant to ch, and a
// *MalformedEventError when it lacks the fields needed to identify it.
func (c *Classifier) Classify(ev domain.ChangeEvent, ch Channel) (*ClassifiedChange, error) {
	if !slices.Contains(ch.ResourceTypes, string(ev.ResourceType)) {
		return nil, nil
	}
	if !isRelevant(ev, ch.RelevantFields) {
		return nil, nil
	}

	switch {
	case ev.CampaignID == "":
		return nil, &MalformedEventError{EventID: ev.EventID(), Reason: "missing campaign id"}
	case ev.RawTimestamp == "" || ev.Timestamp.IsZero():
		return nil, &MalformedEventError{EventID: ev.EventID(), Reason: "missing or unparsable change time"}
	}

	level := Level(ev)
	return &ClassifiedChange{
		Event:             ev,
		Category:          ch.Category,
		Level:             level,
		DisplayChangeType: c.displayChangeType(ev, ch.Category, level),
		Summary:           Summarize(ev, level),
	}, nil
}

// ClassifyBatch classifies every event, skipping malformed ones. A panic
// while handling one event skips that event only.
func (c *Classifier) ClassifyBatch(events []domain.ChangeEvent, ch Channel) (kept []ClassifiedChange, skipped int) {
	for _, ev := range events {
		cc, err := c.classifySafe(ev, ch)
		if err != nil {
			skipped++
			logger.Warn("classifier: skipping event", "channel", ch.Category, "error", err)
			continue
		}
		if cc != nil {
			kept = append(kept, *cc)
		}
	}
	return kept, skipped
}

func (c *Classifier) classifySafe(ev domain.ChangeEvent, ch Channel) (cc *ClassifiedChange, err error) {
	defer func() {
		if r := recover(); r != nil {
			cc = nil
			err = &MalformedEventError{EventID: ev.EventID(), Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return c.Classify(ev, ch)
}

func isRelevant(ev domain.ChangeEvent, fields []string) bool {
	if len(fields) == 0 || ev.ChangedFields == "" {
		return true
	}
	for _, f := range fields {
		if ev.ChangedFieldsContain(f) {
			return true
		}
	}
	return false
}

// Level infers the entity level of a change. Keyword and Audience are only
// distinguished for ad group criteria.
func Level(ev domain.ChangeEvent) domain.ChangeLevel {
	if !ev.HasAdGroup() {
		return domain.LevelCampaign
	}
	if ev.ResourceType == domain.ResourceAdGroupCriterion {
		switch {
		case ev.ChangedFieldsContain("keyword"):
			return domain.LevelKeyword
		case ev.ChangedFieldsContain("audience"), ev.ChangedFieldsContain("user_list"):
			return domain.LevelAudience
		}
	}
	return domain.LevelAdGroup
}

func (c *Classifier) displayChangeType(ev domain.ChangeEvent, category string, level domain.ChangeLevel) string {
	s := "[" + strings.ToUpper(category) + "] " + string(level) + " " + string(ev.ResourceType)
	if c.includeOperation {
		s += " (" + string(ev.Operation) + ")"
	}
	return s
}
