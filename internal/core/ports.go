package core

import (
	"context"
	"time"
)

// RuleFilter narrows RuleStore.List. Zero values match everything.
type RuleFilter struct {
	Source          RuleSource
	AppNameContains string
}

// RuleInput is the mutable part of a rule.
type RuleInput struct {
	Classification Classification
	Notes          *string
	Source         RuleSource
}

// RuleStore persists manager-curated classification overrides keyed by
// normalized app name. Mutations check the capability before touching storage.
type RuleStore interface {
	List(ctx context.Context, f RuleFilter) ([]ClassificationRule, error)
	Upsert(ctx context.Context, auth Capability, appName string, in RuleInput) (ClassificationRule, error)
	Remove(ctx context.Context, auth Capability, appName string) error
	Get(ctx context.Context, appName string) (ClassificationRule, bool, error)
}

// EntryFilter selects time entries. ProjectID is required; the rest are optional.
type EntryFilter struct {
	ProjectID string
	TaskID    string
	Username  string
	From      time.Time
	To        time.Time
}

type EntryReader interface {
	ListEntries(ctx context.Context, f EntryFilter) ([]TimeEntry, error)
}

type ProjectReader interface {
	GetProject(ctx context.Context, id string) (Project, error)
}

type RateStore interface {
	ListRates(ctx context.Context, projectID string) ([]MemberRate, error)
	SetRate(ctx context.Context, auth Capability, rate MemberRate) (MemberRate, error)
}

// Normalize validates a rule input and fills defaults.
func (in RuleInput) Normalize() (RuleInput, error) {
	if !in.Classification.Valid() {
		return in, NewValidationError("classification", "must be one of billable, non-billable, ambiguous")
	}
	if in.Source == "" {
		in.Source = SourceManual
	}
	if !in.Source.Valid() {
		return in, NewValidationError("source", "must be one of manual, ai")
	}
	return in, nil
}

// Matches reports whether rule r passes filter f.
func (f RuleFilter) Matches(r ClassificationRule) bool {
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	if f.AppNameContains != "" && !containsFold(r.AppName, f.AppNameContains) {
		return false
	}
	return true
}

// Includes reports whether an entry passes the scalar parts of the filter.
// Time bounds are applied per interval by the reader.
func (f EntryFilter) Includes(e TimeEntry) bool {
	if f.ProjectID != "" && e.ProjectID != f.ProjectID {
		return false
	}
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if f.Username != "" && e.Username != f.Username {
		return false
	}
	return true
}

// InRange reports whether t falls within [From, To). Zero bounds are open.
func (f EntryFilter) InRange(t time.Time) bool {
	if !f.From.IsZero() && t.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.Before(f.To) {
		return false
	}
	return true
}
