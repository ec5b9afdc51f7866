package services

import (
	"context"
	"fmt"
	"strings"

	"worklog/internal/core"
	"worklog/internal/log"
)

// ProjectInvalidator drops cached views of a single project.
type ProjectInvalidator interface {
	Invalidate(projectID string)
}

type RateService struct {
	store  core.RateStore
	cache  ProjectInvalidator
	logger *log.Logger
}

func NewRateService(store core.RateStore, cache ProjectInvalidator, logger *log.Logger) *RateService {
	if logger == nil {
		logger = log.Default()
	}
	return &RateService{store: store, cache: cache, logger: logger.WithComponent(log.ComponentRates)}
}

func (s *RateService) List(ctx context.Context, projectID string) ([]core.MemberRate, error) {
	rates, err := s.store.ListRates(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	return rates, nil
}

// Set stores a member's hourly rate. Only managers and project creators may.
func (s *RateService) Set(ctx context.Context, auth core.AuthContext, projectID, username string, ratePerHour float64) (core.MemberRate, error) {
	if !auth.CanManage() {
		return core.MemberRate{}, core.ErrPermissionDenied
	}
	rate, err := s.store.SetRate(ctx, auth.Capability(), core.MemberRate{
		ProjectID:   strings.TrimSpace(projectID),
		Username:    strings.TrimSpace(username),
		RatePerHour: ratePerHour,
	})
	if err != nil {
		return core.MemberRate{}, fmt.Errorf("set rate: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(rate.ProjectID)
	}

	s.logger.InfoContext(ctx, "Member rate updated",
		log.FieldProjectID, rate.ProjectID,
		log.FieldMember, rate.Username,
		log.FieldUserID, auth.UserID)
	return rate, nil
}
