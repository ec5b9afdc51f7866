package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"worklog/internal/cache"
	"worklog/internal/core"
	"worklog/internal/engine"
	"worklog/internal/log"
)

// SummaryService loads everything one summary needs exactly once per request
// and caches finished project summaries.
type SummaryService struct {
	rules       core.RuleStore
	entries     core.EntryReader
	projects    core.ProjectReader
	rates       core.RateStore
	cache       cache.Cache[engine.ProjectSummary]
	defaultRate float64
	logger      *log.Logger

	// generation is bumped on every invalidation; a summary is only cached
	// if no invalidation happened while it was being built.
	mu         sync.Mutex
	generation uint64
}

type SummaryDeps struct {
	Rules       core.RuleStore
	Entries     core.EntryReader
	Projects    core.ProjectReader
	Rates       core.RateStore
	Cache       cache.Cache[engine.ProjectSummary] // optional
	DefaultRate float64
	Logger      *log.Logger
}

func NewSummaryService(d SummaryDeps) *SummaryService {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &SummaryService{
		rules:       d.Rules,
		entries:     d.Entries,
		projects:    d.Projects,
		rates:       d.Rates,
		cache:       d.Cache,
		defaultRate: d.DefaultRate,
		logger:      logger.WithComponent(log.ComponentSummary),
	}
}

// ProjectSummary returns the manager view of a project. Missing projects
// yield core.ErrNotFound.
func (s *SummaryService) ProjectSummary(ctx context.Context, projectID string) (engine.ProjectSummary, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(projectID); ok {
			return cached, nil
		}
	}
	generation := s.currentGeneration()

	var (
		project core.Project
		entries []core.TimeEntry
		rules   *engine.RuleSnapshot
		rates   []core.MemberRate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		project, err = s.projects.GetProject(gctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		entries, err = s.entries.ListEntries(gctx, core.EntryFilter{ProjectID: projectID})
		return err
	})
	g.Go(func() (err error) {
		rules, err = engine.LoadRuleSnapshot(gctx, s.rules)
		return err
	})
	g.Go(func() (err error) {
		rates, err = s.rates.ListRates(gctx, projectID)
		return err
	})
	if err := g.Wait(); err != nil {
		return engine.ProjectSummary{}, fmt.Errorf("load project %s: %w", projectID, err)
	}

	classifier := engine.NewClassifier(rules, s.logger)
	summary := engine.BuildProjectSummary(ctx, classifier, project, entries, engine.RateTable(rates), engine.PayOptions{
		DefaultRate: s.defaultRate,
		Budget:      project.Budget,
	})

	s.logger.DebugContext(ctx, "Project summary built",
		log.FieldProjectID, projectID,
		log.FieldCount, len(entries),
		"rules", rules.Len())

	s.store(projectID, generation, summary)
	return summary, nil
}

// TimeLapse returns the per-app breakdown of one task.
func (s *SummaryService) TimeLapse(ctx context.Context, projectID, taskID string) (map[string]engine.TimeLapseGroup, error) {
	var (
		entries []core.TimeEntry
		rules   *engine.RuleSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		entries, err = s.entries.ListEntries(gctx, core.EntryFilter{ProjectID: projectID, TaskID: taskID})
		return err
	})
	g.Go(func() (err error) {
		rules, err = engine.LoadRuleSnapshot(gctx, s.rules)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load task %s/%s: %w", projectID, taskID, err)
	}

	return engine.BuildTimeLapse(ctx, engine.NewClassifier(rules, s.logger), entries), nil
}

// Aggregate classifies the entries selected by f and sums them per group.
// Results are ordered by group key.
func (s *SummaryService) Aggregate(ctx context.Context, f core.EntryFilter, groupBy ...engine.Dimension) ([]core.AggregateResult, error) {
	var (
		entries []core.TimeEntry
		rules   *engine.RuleSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		entries, err = s.entries.ListEntries(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		rules, err = engine.LoadRuleSnapshot(gctx, s.rules)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load entries for %s: %w", f.ProjectID, err)
	}

	records := engine.Flatten(ctx, engine.NewClassifier(rules, s.logger), entries)
	return engine.Sorted(engine.Aggregate(records, groupBy...)), nil
}

// Invalidate drops the cached summary of one project.
func (s *SummaryService) Invalidate(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.cache != nil {
		s.cache.Delete(projectID)
	}
}

// InvalidateAll drops every cached summary.
func (s *SummaryService) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.cache == nil {
		return
	}
	if n := s.cache.Purge(); n > 0 {
		s.logger.Debug("Summary cache purged", log.FieldCount, n)
	}
}

func (s *SummaryService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// store caches summary unless an invalidation ran since generation was read.
func (s *SummaryService) store(projectID string, generation uint64, summary engine.ProjectSummary) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		s.logger.Debug("Summary built from stale inputs, not cached", log.FieldProjectID, projectID)
		return
	}
	s.cache.Set(projectID, summary)
}
