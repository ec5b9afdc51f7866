// Package worker keeps the manager-facing rule spreadsheet in step with the
// rule store.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"worklog/internal/amqp"
	"worklog/internal/core"
	"worklog/internal/log"
	"worklog/internal/sheets"
)

// RuleLister is the read side of core.RuleStore.
type RuleLister interface {
	List(ctx context.Context, f core.RuleFilter) ([]core.ClassificationRule, error)
}

// MirrorWorker rewrites the whole rule sheet on every change event and on a
// fixed interval. Full rewrites make events idempotent and order-insensitive.
type MirrorWorker struct {
	rules    RuleLister
	mirror   sheets.RuleMirror
	interval time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	lastSync time.Time
	now      func() time.Time
}

func NewMirrorWorker(rules RuleLister, mirror sheets.RuleMirror, interval time.Duration, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &MirrorWorker{
		rules:    rules,
		mirror:   mirror,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
		now:      time.Now,
	}
}

// HandleRuleChanged resyncs unless a full sync already started after the
// event was emitted.
func (w *MirrorWorker) HandleRuleChanged(ctx context.Context, msg *amqp.RuleChangedMessage) error {
	w.mu.Lock()
	covered := !w.lastSync.IsZero() && w.lastSync.After(msg.Timestamp)
	w.mu.Unlock()

	if covered {
		w.logger.DebugContext(ctx, "Rule change already mirrored",
			log.FieldMessageID, msg.ID, log.FieldAppName, msg.AppName)
		return nil
	}

	w.logger.InfoContext(ctx, "Mirroring rule change",
		log.FieldMessageID, msg.ID,
		log.FieldAppName, msg.AppName,
		log.FieldOperation, string(msg.Action))
	return w.Resync(ctx)
}

// Resync copies the full rule table to the mirror.
func (w *MirrorWorker) Resync(ctx context.Context) error {
	started := w.now()

	rules, err := w.rules.List(ctx, core.RuleFilter{})
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	if err := w.mirror.ReplaceRules(ctx, rules); err != nil {
		return fmt.Errorf("replace mirrored rules: %w", err)
	}

	w.mu.Lock()
	if started.After(w.lastSync) {
		w.lastSync = started
	}
	w.mu.Unlock()

	w.logger.DebugContext(ctx, "Rule mirror in sync", log.FieldCount, len(rules))
	return nil
}

// Run resyncs immediately and then every interval until ctx is done. Failures
// are logged and retried on the next tick.
func (w *MirrorWorker) Run(ctx context.Context) error {
	if err := w.Resync(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Initial rule sync failed", log.FieldError, err.Error())
	}
	if w.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Resync(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic rule sync failed", log.FieldError, err.Error())
			}
		}
	}
}
