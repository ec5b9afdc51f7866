package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worklog/internal/cache"
	"worklog/internal/core"
	"worklog/internal/engine"
	"worklog/internal/log"
	"worklog/internal/services"
	"worklog/internal/storage/memory"
)

type fixture struct {
	store  *memory.Store
	server *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	budget := 500.0
	require.NoError(t, store.SaveProject(ctx, core.Project{
		ID: "p1", Name: "Website", Budget: &budget,
		Tasks: []core.Task{{ID: "t1", Status: "open"}},
	}))
	billable := true
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveEntries(ctx, []core.TimeEntry{{
		ID: "e1", Username: "alice", ProjectID: "p1", TaskID: "t1",
		Appointments: []core.Appointment{
			{AppName: "Code.exe", IsBillable: &billable, Intervals: []core.TimeInterval{{StartTime: start, Duration: core.Seconds(7200)}}},
			{AppName: "Reddit.exe", IsBillable: &billable, Intervals: []core.TimeInterval{{StartTime: start.Add(2 * time.Hour), Duration: core.Seconds(3600)}}},
		},
	}}))

	logger := log.Discard()
	summaries := services.NewSummaryService(services.SummaryDeps{
		Rules: store, Entries: store, Projects: store, Rates: store,
		Cache:  cache.NewLRUCache[engine.ProjectSummary](8, time.Minute),
		Logger: logger,
	})
	srv := NewServer(":0", Deps{
		Rules:              services.NewRuleService(store, nil, summaries, logger),
		Summaries:          summaries,
		Rates:              services.NewRateService(store, summaries, logger),
		Health:             store,
		Logger:             logger,
		RateLimitPerMinute: 1000,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &fixture{store: store, server: srv}
}

func asManager(r *http.Request) *http.Request {
	r.Header.Set(HeaderUserID, "m1")
	r.Header.Set(HeaderUserVerified, "true")
	r.Header.Set(HeaderUserRoles, "member, Manager")
	return r
}

func (f *fixture) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestUpsertRule(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		body       string
		auth       func(*http.Request) *http.Request
		wantStatus int
		wantError  string
	}{
		{"manager upserts", `{"classification":"non-billable","notes":"social"}`, asManager, http.StatusOK, ""},
		{"creator upserts", `{"classification":"billable"}`, func(r *http.Request) *http.Request {
			r.Header.Set(HeaderUserVerified, "true")
			r.Header.Set(HeaderUserRoles, "creator")
			return r
		}, http.StatusOK, ""},
		{"unverified manager", `{"classification":"billable"}`, func(r *http.Request) *http.Request {
			r.Header.Set(HeaderUserRoles, "manager")
			return r
		}, http.StatusForbidden, "permission denied"},
		{"plain member", `{"classification":"billable"}`, func(r *http.Request) *http.Request {
			r.Header.Set(HeaderUserVerified, "true")
			return r
		}, http.StatusForbidden, "permission denied"},
		{"invalid classification", `{"classification":"sometimes"}`, asManager, http.StatusBadRequest, "classification must be one of billable, non-billable, ambiguous"},
		{"missing classification", `{}`, asManager, http.StatusBadRequest, "classification is required"},
		{"invalid source", `{"classification":"billable","source":"robot"}`, asManager, http.StatusBadRequest, "source must be one of manual, ai"},
		{"malformed body", `{"classification":`, asManager, http.StatusBadRequest, "body must be a valid JSON object"},
		{"empty body", ``, asManager, http.StatusBadRequest, "body is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.auth(httptest.NewRequest(http.MethodPatch, "/classification-rules/Reddit.exe", strings.NewReader(tt.body)))
			rec := f.do(req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decode[errorBody](t, rec).Error)
				return
			}
			rule := decode[core.ClassificationRule](t, rec)
			assert.Equal(t, "reddit", rule.AppName)
			assert.Equal(t, core.SourceManual, rule.Source)
		})
	}
}

func TestListRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	verified := core.Capability{Verified: true}
	_, err := f.store.Upsert(ctx, verified, "slack", core.RuleInput{Classification: core.Billable, Source: core.SourceAI})
	require.NoError(t, err)
	_, err = f.store.Upsert(ctx, verified, "reddit", core.RuleInput{Classification: core.NonBillable})
	require.NoError(t, err)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/classification-rules", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.ClassificationRule](t, rec), 2)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/classification-rules?source=manual", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	manual := decode[[]core.ClassificationRule](t, rec)
	require.Len(t, manual, 1)
	assert.Equal(t, "reddit", manual[0].AppName)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/classification-rules?appName=SLA", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.ClassificationRule](t, rec), 1)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/classification-rules?source=robot", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	empty := newFixture(t)
	rec = empty.do(httptest.NewRequest(http.MethodGet, "/classification-rules", nil))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestDeleteRule(t *testing.T) {
	f := newFixture(t)

	rec := f.do(asManager(httptest.NewRequest(http.MethodDelete, "/classification-rules/never-existed", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/classification-rules/slack", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRulePathSegmentsAreDecoded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tc := range []struct{ path, want string }{
		{`/classification-rules/C:%5CApps%5CSlack%2FSlack.exe`, "slack"},
		{`/classification-rules/My%20App%2Fx.exe`, "x"},
		{`/classification-rules/50%25.exe`, "50%"},
	} {
		rec := f.do(asManager(httptest.NewRequest(http.MethodPatch, tc.path, strings.NewReader(`{"classification":"billable"}`))))
		require.Equal(t, http.StatusOK, rec.Code, tc.path)
		assert.Equal(t, tc.want, decode[core.ClassificationRule](t, rec).AppName, tc.path)
	}

	rec := f.do(asManager(httptest.NewRequest(http.MethodDelete, `/classification-rules/Other%2FX.EXE`, nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	_, ok, err := f.store.Get(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = f.store.Get(ctx, "slack")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProjectSummaryReflectsRuleChanges(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/projects/p1/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	before := decode[engine.ProjectSummary](t, rec)
	assert.Equal(t, int64(10800), before.Totals.BillableSeconds)

	rec = f.do(asManager(httptest.NewRequest(http.MethodPatch, "/classification-rules/reddit", strings.NewReader(`{"classification":"non-billable"}`))))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/projects/p1/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	after := decode[engine.ProjectSummary](t, rec)
	assert.Equal(t, int64(7200), after.Totals.BillableSeconds)
	assert.Equal(t, int64(3600), after.Totals.NonBillableSeconds)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/projects/missing/summary", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRates(t *testing.T) {
	f := newFixture(t)

	rec := f.do(asManager(httptest.NewRequest(http.MethodPut, "/projects/p1/rates/alice", strings.NewReader(`{"ratePerHour":100}`))))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 100.0, decode[core.MemberRate](t, rec).RatePerHour)

	rec = f.do(asManager(httptest.NewRequest(http.MethodPut, "/projects/p1/rates/alice", strings.NewReader(`{"ratePerHour":-1}`))))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ratePerHour must not be negative", decode[errorBody](t, rec).Error)

	rec = f.do(asManager(httptest.NewRequest(http.MethodPut, "/projects/p1/rates/alice", strings.NewReader(`{}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodPut, "/projects/p1/rates/alice", strings.NewReader(`{"ratePerHour":10}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/projects/p1/rates", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.MemberRate](t, rec), 1)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/projects/p1/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[engine.ProjectSummary](t, rec)
	assert.InDelta(t, 300.0, summary.GrandTotal, 1e-9)
	require.NotNil(t, summary.RemainingBudget)
	assert.InDelta(t, 200.0, *summary.RemainingBudget, 1e-9)
}

func TestTimeLapse(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/projects/p1/tasks/t1/timelapse", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decode[map[string]engine.TimeLapseGroup](t, rec)
	require.Contains(t, groups, "code")
	assert.Equal(t, int64(7200), groups["code"].TotalDuration)
	assert.Equal(t, int64(3600), groups["reddit"].TotalDuration)
}

func TestAggregate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/projects/p1/aggregate?groupBy=app", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	byApp := decode[[]core.AggregateResult](t, rec)
	require.Len(t, byApp, 2)
	assert.Equal(t, "code", byApp[0].GroupKey)
	assert.Equal(t, int64(7200), byApp[0].BillableSeconds)
	assert.Equal(t, "reddit", byApp[1].GroupKey)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/projects/p1/aggregate?groupBy=member&username=alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	byMember := decode[[]core.AggregateResult](t, rec)
	require.Len(t, byMember, 1)
	assert.Equal(t, "alice", byMember[0].GroupKey)
	assert.Equal(t, int64(10800), byMember[0].TotalSeconds)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/projects/p1/aggregate?from=2024-06-03T10:00:00Z", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]core.AggregateResult](t, rec)
	require.Len(t, all, 1)
	assert.Equal(t, engine.AllKey, all[0].GroupKey)
	assert.Equal(t, int64(3600), all[0].TotalSeconds)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/projects/p1/aggregate?username=bob", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	for _, tc := range []struct{ query, msg string }{
		{"groupBy=color", `groupBy unknown dimension "color"`},
		{"from=yesterday", "from must be an RFC 3339 timestamp"},
		{"from=2024-06-04T00:00:00Z&to=2024-06-03T00:00:00Z", "to must be after from"},
	} {
		rec = f.do(httptest.NewRequest(http.MethodGet, "/projects/p1/aggregate?"+tc.query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.query)
		assert.Equal(t, tc.msg, decode[errorBody](t, rec).Error, tc.query)
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("database is locked") }

func TestHealthAndReadiness(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	f.server.health = downPinger{}
	rec = f.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type brokenRules struct{ RuleAPI }

func (brokenRules) List(context.Context, core.RuleFilter) ([]core.ClassificationRule, error) {
	return nil, &core.StorageError{Op: "list rules", Err: errors.New("disk I/O error at /var/lib/worklog.db")}
}

func TestStorageErrorsStayGeneric(t *testing.T) {
	f := newFixture(t)
	f.server.rules = brokenRules{}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/classification-rules", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode[errorBody](t, rec).Error)
	assert.NotContains(t, rec.Body.String(), "worklog.db")
}

func TestRateLimitOnMutations(t *testing.T) {
	store := memory.NewStore()
	srv := NewServer(":0", Deps{
		Rules:              services.NewRuleService(store, nil, nil, log.Discard()),
		Logger:             log.Discard(),
		RateLimitPerMinute: 1,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	send := func() int {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, asManager(httptest.NewRequest(http.MethodDelete, "/classification-rules/slack", nil)))
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/classification-rules", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, core.AuthContext{}, authFromRequest(r))

	r.Header.Set(HeaderUserID, " u9 ")
	r.Header.Set(HeaderUserVerified, "TRUE")
	r.Header.Set(HeaderUserRoles, "creator,manager")
	assert.Equal(t, core.AuthContext{UserID: "u9", Verified: true, IsManager: true, IsCreator: true}, authFromRequest(r))
}
