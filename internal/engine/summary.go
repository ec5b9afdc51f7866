package engine

import (
	"context"
	"sort"
	"time"

	"worklog/internal/core"
)

type TimeLapseInterval struct {
	Member         string              `json:"member"`
	AppTitle       string              `json:"appTitle"`
	StartTime      time.Time           `json:"startTime"`
	EndTime        time.Time           `json:"endTime"`
	Duration       int64               `json:"duration"`
	Classification core.Classification `json:"classification"`
}

type TimeLapseGroup struct {
	AppName       string              `json:"appName"`
	Intervals     []TimeLapseInterval `json:"intervals"`
	TotalDuration int64               `json:"totalDuration"`
}

// BuildTimeLapse groups one task's intervals by normalized app name, each
// group ordered by start time.
func BuildTimeLapse(ctx context.Context, c *Classifier, entries []core.TimeEntry) map[string]TimeLapseGroup {
	groups := make(map[string]TimeLapseGroup)
	for _, r := range Flatten(ctx, c, entries) {
		secs, _ := r.Duration.Coerce()
		g := groups[r.App]
		g.AppName = r.App
		g.Intervals = append(g.Intervals, TimeLapseInterval{
			Member:         r.Member,
			AppTitle:       r.AppTitle,
			StartTime:      r.StartTime,
			EndTime:        r.EndTime,
			Duration:       secs,
			Classification: r.Classification,
		})
		g.TotalDuration += secs
		groups[r.App] = g
	}
	for app, g := range groups {
		sort.SliceStable(g.Intervals, func(i, j int) bool {
			return g.Intervals[i].StartTime.Before(g.Intervals[j].StartTime)
		})
		groups[app] = g
	}
	return groups
}

type ProjectSummary struct {
	ProjectID       string                 `json:"projectId"`
	ProjectName     string                 `json:"projectName"`
	Totals          core.AggregateResult   `json:"totals"`
	MemberPayments  []core.PaymentLine     `json:"memberPayments"`
	GrandTotal      float64                `json:"grandTotal"`
	RemainingBudget *float64               `json:"remainingBudget,omitempty"`
	IncompleteTasks []core.Task            `json:"incompleteTasks"`
	AISummary       string                 `json:"aiSummary,omitempty"`
	ByApp           []core.AggregateResult `json:"byApp"`
	ByDate          []core.AggregateResult `json:"byDate"`
}

// BuildProjectSummary assembles the manager view of a project. The AI summary
// text is copied through untouched.
func BuildProjectSummary(ctx context.Context, c *Classifier, project core.Project, entries []core.TimeEntry, rates map[string]float64, opts PayOptions) ProjectSummary {
	records := Flatten(ctx, c, entries)

	totals := Aggregate(records)[AllKey]
	totals.GroupKey = AllKey

	pay := ComputePay(Aggregate(records, DimMember), rates, opts)

	incomplete := make([]core.Task, 0, len(project.Tasks))
	for _, t := range project.Tasks {
		if t.Incomplete() {
			incomplete = append(incomplete, t)
		}
	}

	return ProjectSummary{
		ProjectID:       project.ID,
		ProjectName:     project.Name,
		Totals:          totals,
		MemberPayments:  pay.Lines,
		GrandTotal:      pay.GrandTotal,
		RemainingBudget: pay.RemainingBudget,
		IncompleteTasks: incomplete,
		AISummary:       project.AISummary,
		ByApp:           Sorted(Aggregate(records, DimApp)),
		ByDate:          Sorted(Aggregate(records, DimDate)),
	}
}
