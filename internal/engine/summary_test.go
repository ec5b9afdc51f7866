package engine

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worklog/internal/core"
	"worklog/internal/log"
	"worklog/internal/storage/memory"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func interval(offset time.Duration, secs float64) core.TimeInterval {
	start := t0.Add(offset)
	return core.TimeInterval{
		StartTime: start,
		EndTime:   start.Add(time.Duration(secs) * time.Second),
		Duration:  core.Seconds(secs),
	}
}

func TestEndToEnd_EmptyRulesBillableFlag(t *testing.T) {
	ctx := context.Background()
	snap, err := LoadRuleSnapshot(ctx, memory.NewStore())
	require.NoError(t, err)
	c := NewClassifier(snap, log.Discard())

	entries := []core.TimeEntry{{
		ID: "e1", Username: "alice", ProjectID: "p1", TaskID: "t1",
		Appointments: []core.Appointment{{
			AppName:    "vscode.exe",
			IsBillable: boolPtr(true),
			Intervals:  []core.TimeInterval{interval(0, 3600)},
		}},
	}}

	records := Flatten(ctx, c, entries)
	require.Len(t, records, 1)
	assert.Equal(t, core.Billable, records[0].Classification)
	assert.Equal(t, "vscode", records[0].App)

	byMember := Aggregate(records, DimMember)
	assert.Equal(t, int64(3600), byMember["alice"].BillableSeconds)

	report := ComputePay(byMember, map[string]float64{"alice": 50}, PayOptions{})
	require.Len(t, report.Lines, 1)
	assert.Equal(t, 50.0, report.Lines[0].TotalPay)
}

func TestEndToEnd_ManagerRuleOverridesSuggestion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	_, err := store.Upsert(ctx, verified(), "reddit", core.RuleInput{Classification: core.NonBillable})
	require.NoError(t, err)

	snap, err := LoadRuleSnapshot(ctx, store)
	require.NoError(t, err)
	c := NewClassifier(snap, log.Discard())

	got := c.Classify(ctx, interval(0, 60), core.Appointment{
		AppName:           "Reddit.exe",
		SuggestedCategory: strPtr("ambiguous"),
	})
	assert.Equal(t, core.NonBillable, got)
}

func TestBuildTimeLapse(t *testing.T) {
	ctx := context.Background()
	c := NewClassifier(NewRuleSnapshot(nil), log.Discard())

	entries := []core.TimeEntry{
		{
			Username: "alice", TaskID: "t1",
			Appointments: []core.Appointment{
				{AppName: "Code.exe", AppTitle: "main.go", Intervals: []core.TimeInterval{interval(2*time.Hour, 100), interval(0, 200)}},
				{AppName: "/usr/bin/code", AppTitle: "go.mod", Intervals: []core.TimeInterval{interval(time.Hour, 300)}},
			},
		},
		{
			Username: "bob", TaskID: "t1",
			Appointments: []core.Appointment{
				{AppName: "Slack", IsBillable: boolPtr(false), Intervals: []core.TimeInterval{interval(30*time.Minute, -20)}},
			},
		},
	}

	groups := BuildTimeLapse(ctx, c, entries)
	require.Len(t, groups, 2)

	code := groups["code"]
	require.Len(t, code.Intervals, 3)
	assert.Equal(t, int64(600), code.TotalDuration)
	assert.Equal(t, "main.go", code.Intervals[0].AppTitle)
	assert.Equal(t, "go.mod", code.Intervals[1].AppTitle)
	assert.Equal(t, t0.Add(2*time.Hour), code.Intervals[2].StartTime)
	for i := 1; i < len(code.Intervals); i++ {
		assert.False(t, code.Intervals[i].StartTime.Before(code.Intervals[i-1].StartTime))
	}

	slack := groups["slack"]
	assert.Equal(t, int64(0), slack.TotalDuration)
	assert.Equal(t, core.NonBillable, slack.Intervals[0].Classification)
}

func TestBuildProjectSummary(t *testing.T) {
	ctx := context.Background()
	c := NewClassifier(NewRuleSnapshot([]core.ClassificationRule{
		{AppName: "youtube", Classification: core.NonBillable},
	}), log.Discard())

	budget := 1000.0
	project := core.Project{
		ID:   "p1",
		Name: "Website",
		Tasks: []core.Task{
			{ID: "t1", Title: "Design", Status: "Done"},
			{ID: "t2", Title: "Build", Status: "in progress"},
			{ID: "t3", Title: "Ship", Status: "COMPLETED"},
		},
		AISummary: "**Mostly** on track <3",
	}
	entries := []core.TimeEntry{
		{
			Username: "alice", TaskID: "t1",
			Appointments: []core.Appointment{
				{AppName: "code", IsBillable: boolPtr(true), Intervals: []core.TimeInterval{interval(0, 7200)}},
				{AppName: "YouTube.exe", IsBillable: boolPtr(true), Intervals: []core.TimeInterval{interval(24*time.Hour, 900)}},
			},
		},
		{
			Username: "bob", TaskID: "t2",
			Appointments: []core.Appointment{
				{AppName: "figma", Intervals: []core.TimeInterval{interval(0, 1800)}},
			},
		},
	}

	s := BuildProjectSummary(ctx, c, project, entries, map[string]float64{"alice": 100, "dave": 60}, PayOptions{Budget: &budget})

	assert.Equal(t, "p1", s.ProjectID)
	assert.Equal(t, AllKey, s.Totals.GroupKey)
	assert.Equal(t, int64(7200), s.Totals.BillableSeconds)
	assert.Equal(t, int64(900), s.Totals.NonBillableSeconds)
	assert.Equal(t, int64(1800), s.Totals.AmbiguousSeconds)
	assert.Equal(t, int64(9900), s.Totals.TotalSeconds)

	require.Len(t, s.MemberPayments, 3)
	assert.Equal(t, "alice", s.MemberPayments[0].Member)
	assert.Equal(t, 200.0, s.MemberPayments[0].TotalPay)
	assert.Equal(t, "dave", s.MemberPayments[2].Member)
	assert.Equal(t, 200.0, s.GrandTotal)
	require.NotNil(t, s.RemainingBudget)
	assert.Equal(t, 800.0, *s.RemainingBudget)

	require.Len(t, s.IncompleteTasks, 1)
	assert.Equal(t, "t2", s.IncompleteTasks[0].ID)
	assert.Equal(t, project.AISummary, s.AISummary)

	require.Len(t, s.ByApp, 3)
	assert.Equal(t, []string{"code", "figma", "youtube"}, []string{s.ByApp[0].GroupKey, s.ByApp[1].GroupKey, s.ByApp[2].GroupKey})
	require.Len(t, s.ByDate, 2)
	assert.Equal(t, "2024-05-06", s.ByDate[0].GroupKey)
}

func TestBuildProjectSummary_NoEntries(t *testing.T) {
	s := BuildProjectSummary(context.Background(), NewClassifier(nil, log.Discard()), core.Project{ID: "p"}, nil, nil, PayOptions{})
	assert.Equal(t, AllKey, s.Totals.GroupKey)
	assert.Zero(t, s.Totals.TotalSeconds)
	assert.Empty(t, s.MemberPayments)
	assert.Nil(t, s.RemainingBudget)
}

func TestBuildProjectSummary_ReportsMalformedDurationsOnce(t *testing.T) {
	var buf bytes.Buffer
	c := NewClassifier(NewRuleSnapshot(nil), log.New(log.Config{Output: &buf, Format: "json"}))

	entries := []core.TimeEntry{{
		ID: "e1", Username: "alice", ProjectID: "p1", TaskID: "t1",
		Appointments: []core.Appointment{{
			AppName:    "code.exe",
			IsBillable: boolPtr(true),
			Intervals: []core.TimeInterval{
				interval(0, 3600),
				{StartTime: t0.Add(time.Hour), Duration: core.InvalidDuration()},
				interval(2*time.Hour, -50),
			},
		}},
	}}

	s := BuildProjectSummary(context.Background(), c, core.Project{ID: "p1"}, entries, nil, PayOptions{})
	assert.Equal(t, int64(3600), s.Totals.TotalSeconds)
	assert.Equal(t, 3, s.Totals.IntervalCount)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, buf.String())
	assert.Contains(t, lines[0], `"warning_type":"malformed_input"`)
	assert.Contains(t, lines[0], `"count":2`)
}
