// Package storage persists rules, rates, projects and time entries in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"worklog/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main handle is opened
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return core.WrapStorage("ping", r.db.PingContext(ctx))
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

const ruleColumns = `app_name, classification, source, notes, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (core.ClassificationRule, error) {
	var (
		rule    core.ClassificationRule
		notes   sql.NullString
		updated int64
	)
	if err := row.Scan(&rule.AppName, &rule.Classification, &rule.Source, &notes, &updated); err != nil {
		return core.ClassificationRule{}, err
	}
	rule.Notes = stringPtr(notes)
	rule.UpdatedAt = fromNanos(updated)
	return rule, nil
}

// List implements core.RuleStore
func (r *SQLiteRepository) List(ctx context.Context, f core.RuleFilter) ([]core.ClassificationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM classification_rules WHERE 1=1`
	var args []any
	if f.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(f.Source))
	}
	if f.AppNameContains != "" {
		// app_name is stored lower-cased; SQLite lower() folds ASCII only
		query += ` AND instr(app_name, ?) > 0`
		args = append(args, strings.ToLower(f.AppNameContains))
	}
	query += ` ORDER BY updated_at DESC, app_name ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.WrapStorage("list rules", err)
	}
	defer rows.Close()

	rules := []core.ClassificationRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, core.WrapStorage("scan rule", err)
		}
		rules = append(rules, rule)
	}
	return rules, core.WrapStorage("list rules", rows.Err())
}

// Upsert implements core.RuleStore as a single statement so a failed write
// leaves the previous rule untouched.
func (r *SQLiteRepository) Upsert(ctx context.Context, auth core.Capability, appName string, in core.RuleInput) (core.ClassificationRule, error) {
	if !auth.Verified {
		return core.ClassificationRule{}, core.ErrPermissionDenied
	}
	in, err := in.Normalize()
	if err != nil {
		return core.ClassificationRule{}, err
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO classification_rules (app_name, classification, source, notes, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(app_name) DO UPDATE SET
			classification = excluded.classification,
			source         = excluded.source,
			notes          = excluded.notes,
			updated_at     = excluded.updated_at
		RETURNING `+ruleColumns,
		core.NormalizeAppName(appName), string(in.Classification), string(in.Source), nullString(in.Notes), nanos(r.now()),
	)
	rule, err := scanRule(row)
	if err != nil {
		return core.ClassificationRule{}, core.WrapStorage("upsert rule", err)
	}

	slog.DebugContext(ctx, "Classification rule saved",
		"app_name", rule.AppName,
		"classification", rule.Classification,
		"source", rule.Source)
	return rule, nil
}

// Remove implements core.RuleStore; removing a missing rule is not an error.
func (r *SQLiteRepository) Remove(ctx context.Context, auth core.Capability, appName string) error {
	if !auth.Verified {
		return core.ErrPermissionDenied
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM classification_rules WHERE app_name = ?`, core.NormalizeAppName(appName))
	return core.WrapStorage("remove rule", err)
}

// Get implements core.RuleStore
func (r *SQLiteRepository) Get(ctx context.Context, appName string) (core.ClassificationRule, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM classification_rules WHERE app_name = ?`,
		core.NormalizeAppName(appName))
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ClassificationRule{}, false, nil
	}
	if err != nil {
		return core.ClassificationRule{}, false, core.WrapStorage("get rule", err)
	}
	return rule, true, nil
}

// ListRates implements core.RateStore
func (r *SQLiteRepository) ListRates(ctx context.Context, projectID string) ([]core.MemberRate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT project_id, username, rate_per_hour, updated_at
		FROM member_rates WHERE project_id = ? ORDER BY username`, projectID)
	if err != nil {
		return nil, core.WrapStorage("list rates", err)
	}
	defer rows.Close()

	rates := []core.MemberRate{}
	for rows.Next() {
		var (
			rate    core.MemberRate
			updated int64
		)
		if err := rows.Scan(&rate.ProjectID, &rate.Username, &rate.RatePerHour, &updated); err != nil {
			return nil, core.WrapStorage("scan rate", err)
		}
		rate.UpdatedAt = fromNanos(updated)
		rates = append(rates, rate)
	}
	return rates, core.WrapStorage("list rates", rows.Err())
}

// SetRate implements core.RateStore
func (r *SQLiteRepository) SetRate(ctx context.Context, auth core.Capability, rate core.MemberRate) (core.MemberRate, error) {
	if !auth.Verified {
		return core.MemberRate{}, core.ErrPermissionDenied
	}
	if err := rate.Validate(); err != nil {
		return core.MemberRate{}, err
	}
	rate.UpdatedAt = r.now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO member_rates (project_id, username, rate_per_hour, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, username) DO UPDATE SET
			rate_per_hour = excluded.rate_per_hour,
			updated_at    = excluded.updated_at`,
		rate.ProjectID, rate.Username, rate.RatePerHour, nanos(rate.UpdatedAt))
	if err != nil {
		return core.MemberRate{}, core.WrapStorage("set rate", err)
	}
	return rate, nil
}
