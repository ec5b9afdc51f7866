// Package memory is a process-local store used by tests and the memory
// backend. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"worklog/internal/core"
)

type Store struct {
	mu       sync.RWMutex
	rules    map[string]core.ClassificationRule
	rates    map[string]map[string]core.MemberRate // project -> username
	projects map[string]core.Project
	entries  []core.TimeEntry
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		rules:    make(map[string]core.ClassificationRule),
		rates:    make(map[string]map[string]core.MemberRate),
		projects: make(map[string]core.Project),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source. Tests only.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) List(_ context.Context, f core.RuleFilter) ([]core.ClassificationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.ClassificationRule, 0, len(s.rules))
	for _, r := range s.rules {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	core.SortRules(out)
	return out, nil
}

func (s *Store) Upsert(_ context.Context, auth core.Capability, appName string, in core.RuleInput) (core.ClassificationRule, error) {
	if !auth.Verified {
		return core.ClassificationRule{}, core.ErrPermissionDenied
	}
	in, err := in.Normalize()
	if err != nil {
		return core.ClassificationRule{}, err
	}

	rule := core.ClassificationRule{
		AppName:        core.NormalizeAppName(appName),
		Classification: in.Classification,
		Source:         in.Source,
		Notes:          in.Notes,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rule.UpdatedAt = s.now()
	s.rules[rule.AppName] = rule
	return rule, nil
}

func (s *Store) Remove(_ context.Context, auth core.Capability, appName string) error {
	if !auth.Verified {
		return core.ErrPermissionDenied
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, core.NormalizeAppName(appName))
	return nil
}

func (s *Store) Get(_ context.Context, appName string) (core.ClassificationRule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[core.NormalizeAppName(appName)]
	return r, ok, nil
}

func (s *Store) ListRates(_ context.Context, projectID string) ([]core.MemberRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.MemberRate, 0, len(s.rates[projectID]))
	for _, r := range s.rates[projectID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) SetRate(_ context.Context, auth core.Capability, rate core.MemberRate) (core.MemberRate, error) {
	if !auth.Verified {
		return core.MemberRate{}, core.ErrPermissionDenied
	}
	if err := rate.Validate(); err != nil {
		return core.MemberRate{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rate.UpdatedAt = s.now()
	if s.rates[rate.ProjectID] == nil {
		s.rates[rate.ProjectID] = make(map[string]core.MemberRate)
	}
	s.rates[rate.ProjectID][rate.Username] = rate
	return rate, nil
}

func (s *Store) GetProject(_ context.Context, id string) (core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return core.Project{}, core.ErrNotFound
	}
	p.Tasks = append([]core.Task(nil), p.Tasks...)
	return p, nil
}

func (s *Store) SaveProject(_ context.Context, p core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range p.Tasks {
		p.Tasks[i].ProjectID = p.ID
	}
	s.projects[p.ID] = p
	return nil
}

// SaveEntries replaces entries by ID and appends new ones.
func (s *Store) SaveEntries(_ context.Context, entries []core.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.ID == "" {
			return core.NewValidationError("id", "is required for every time entry")
		}
	}
	for _, e := range entries {
		replaced := false
		for i := range s.entries {
			if s.entries[i].ID == e.ID {
				s.entries[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			s.entries = append(s.entries, e)
		}
	}
	return nil
}

// ListEntries returns matching entries. With a time range set, intervals
// starting outside it are dropped and emptied appointments removed.
func (s *Store) ListEntries(_ context.Context, f core.EntryFilter) ([]core.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.TimeEntry
	for _, e := range s.entries {
		if !f.Includes(e) {
			continue
		}
		if f.From.IsZero() && f.To.IsZero() {
			out = append(out, e)
			continue
		}
		trimmed := e
		trimmed.Appointments = nil
		for _, a := range e.Appointments {
			kept := a
			kept.Intervals = nil
			for _, iv := range a.Intervals {
				if f.InRange(iv.StartTime) {
					kept.Intervals = append(kept.Intervals, iv)
				}
			}
			if len(kept.Intervals) > 0 {
				trimmed.Appointments = append(trimmed.Appointments, kept)
			}
		}
		if len(trimmed.Appointments) > 0 {
			out = append(out, trimmed)
		}
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
