// Package engine classifies tracked intervals and folds them into totals,
// payments and summaries. Everything here is request-scoped and free of
// transport concerns.
package engine

import (
	"context"
	"strings"

	"worklog/internal/core"
	"worklog/internal/log"
)

// RuleLookup finds the override rule for a normalized app name.
type RuleLookup interface {
	Get(ctx context.Context, appName string) (core.ClassificationRule, bool, error)
}

// RuleSnapshot is an immutable in-memory view of the rule table, loaded once
// per request so every interval is classified against the same rules.
type RuleSnapshot struct {
	rules map[string]core.ClassificationRule
}

func NewRuleSnapshot(rules []core.ClassificationRule) *RuleSnapshot {
	return &RuleSnapshot{rules: core.RuleIndex(rules)}
}

// LoadRuleSnapshot lists every rule in store.
func LoadRuleSnapshot(ctx context.Context, store core.RuleStore) (*RuleSnapshot, error) {
	rules, err := store.List(ctx, core.RuleFilter{})
	if err != nil {
		return nil, err
	}
	return NewRuleSnapshot(rules), nil
}

func (s *RuleSnapshot) Get(_ context.Context, appName string) (core.ClassificationRule, bool, error) {
	r, ok := s.rules[core.NormalizeAppName(appName)]
	return r, ok, nil
}

func (s *RuleSnapshot) Len() int { return len(s.rules) }

// Classifier decides the billing category of one interval.
type Classifier struct {
	rules  RuleLookup
	logger *log.Logger
}

func NewClassifier(rules RuleLookup, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Classifier{rules: rules, logger: logger.WithComponent(log.ComponentEngine)}
}

// Classify applies, in order: the manager rule for the normalized app name,
// the explicit isBillable flag, then the suggested category ("non..." means
// non-billable, anything else ambiguous). A failing rule lookup is logged and
// skipped; Classify never fails.
func (c *Classifier) Classify(ctx context.Context, interval core.TimeInterval, meta core.Appointment) core.Classification {
	app := core.NormalizeAppName(meta.AppName)

	if c.rules != nil {
		rule, ok, err := c.rules.Get(ctx, app)
		switch {
		case err != nil:
			c.logger.WarnContext(ctx, "Rule lookup failed, falling back to agent hints",
				log.FieldAppName, app,
				log.FieldError, err.Error(),
			)
		case ok && rule.Classification.Valid():
			return rule.Classification
		}
	}

	if meta.IsBillable != nil {
		if *meta.IsBillable {
			return core.Billable
		}
		return core.NonBillable
	}

	if meta.SuggestedCategory != nil &&
		strings.HasPrefix(strings.ToLower(strings.TrimSpace(*meta.SuggestedCategory)), "non") {
		return core.NonBillable
	}
	return core.Ambiguous
}
