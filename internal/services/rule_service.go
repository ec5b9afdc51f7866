// Package services wires storage, the engine and messaging into the use
// cases exposed over HTTP and the CLI.
package services

import (
	"context"
	"fmt"

	"worklog/internal/amqp"
	"worklog/internal/core"
	"worklog/internal/log"
)

// RuleEventPublisher announces rule mutations to other processes.
type RuleEventPublisher interface {
	PublishRuleChanged(ctx context.Context, msg *amqp.RuleChangedMessage) error
}

// Invalidator drops cached views that depend on rules.
type Invalidator interface {
	InvalidateAll()
}

// RuleService guards rule mutations behind the manager/creator role and
// fans successful changes out to the cache and the message bus.
type RuleService struct {
	store     core.RuleStore
	publisher RuleEventPublisher
	cache     Invalidator
	logger    *log.Logger
	events    *log.StructuredLogger
}

// NewRuleService accepts nil publisher and cache.
func NewRuleService(store core.RuleStore, publisher RuleEventPublisher, cache Invalidator, logger *log.Logger) *RuleService {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentRules)
	return &RuleService{
		store:     store,
		publisher: publisher,
		cache:     cache,
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
	}
}

func (s *RuleService) List(ctx context.Context, f core.RuleFilter) ([]core.ClassificationRule, error) {
	rules, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

func (s *RuleService) Get(ctx context.Context, appName string) (core.ClassificationRule, bool, error) {
	return s.store.Get(ctx, appName)
}

func (s *RuleService) Upsert(ctx context.Context, auth core.AuthContext, appName string, in core.RuleInput) (core.ClassificationRule, error) {
	if !auth.CanManage() {
		return core.ClassificationRule{}, core.ErrPermissionDenied
	}
	rule, err := s.store.Upsert(ctx, auth.Capability(), appName, in)
	if err != nil {
		return core.ClassificationRule{}, fmt.Errorf("upsert rule %q: %w", appName, err)
	}

	s.events.LogRuleChanged(ctx, log.OpUpsert, rule.AppName, string(rule.Classification), string(rule.Source), auth.UserID)
	s.afterChange(ctx, amqp.NewRuleUpsertedMessage(rule, auth.UserID))
	return rule, nil
}

// Remove is idempotent: deleting a rule that never existed succeeds.
func (s *RuleService) Remove(ctx context.Context, auth core.AuthContext, appName string) error {
	if !auth.CanManage() {
		return core.ErrPermissionDenied
	}
	if err := s.store.Remove(ctx, auth.Capability(), appName); err != nil {
		return fmt.Errorf("remove rule %q: %w", appName, err)
	}

	s.events.LogRuleChanged(ctx, log.OpDelete, core.NormalizeAppName(appName), "", "", auth.UserID)
	s.afterChange(ctx, amqp.NewRuleDeletedMessage(appName, auth.UserID))
	return nil
}

// afterChange never fails the request; the rule is already stored.
func (s *RuleService) afterChange(ctx context.Context, msg *amqp.RuleChangedMessage) {
	if s.cache != nil {
		s.cache.InvalidateAll()
	}
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No publisher configured, skipping rule event", log.FieldMessageID, msg.ID)
		return
	}
	if err := s.publisher.PublishRuleChanged(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish rule change",
			log.FieldError, err.Error(),
			log.FieldMessageID, msg.ID,
			log.FieldAppName, msg.AppName)
	}
}
