// Package memory is a process-local RuleMirror used when no spreadsheet is
// configured and by tests.
package memory

import (
	"context"
	"sync"

	"worklog/internal/core"
	ports "worklog/internal/sheets"
)

type Mirror struct {
	mu     sync.Mutex
	rules  []core.ClassificationRule
	writes int
	err    error
}

var (
	_ ports.RuleMirror      = (*Mirror)(nil)
	_ ports.RuleSheetReader = (*Mirror)(nil)
)

func NewMirror() *Mirror { return &Mirror{} }

// FailWith makes subsequent writes return err; nil restores normal behaviour.
func (m *Mirror) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *Mirror) ReplaceRules(_ context.Context, rules []core.ClassificationRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rules = append([]core.ClassificationRule(nil), rules...)
	m.writes++
	return nil
}

func (m *Mirror) ReadRules(context.Context) ([]core.ClassificationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.ClassificationRule(nil), m.rules...), nil
}

// Writes returns how many successful replacements happened.
func (m *Mirror) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
