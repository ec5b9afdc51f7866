package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"worklog/internal/core"
)

// GetProject implements core.ProjectReader
func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (core.Project, error) {
	var (
		p      core.Project
		budget sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, budget, ai_summary FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &budget, &p.AISummary)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, core.ErrNotFound
	}
	if err != nil {
		return core.Project{}, core.WrapStorage("get project", err)
	}
	if budget.Valid {
		b := budget.Float64
		p.Budget = &b
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, title, status FROM tasks WHERE project_id = ? ORDER BY position, id`, id)
	if err != nil {
		return core.Project{}, core.WrapStorage("list tasks", err)
	}
	defer rows.Close()

	p.Tasks = []core.Task{}
	for rows.Next() {
		var t core.Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Status); err != nil {
			return core.Project{}, core.WrapStorage("scan task", err)
		}
		p.Tasks = append(p.Tasks, t)
	}
	return p, core.WrapStorage("list tasks", rows.Err())
}

// SaveProject replaces a project and its task list.
func (r *SQLiteRepository) SaveProject(ctx context.Context, p core.Project) error {
	return r.inTx(ctx, "save project", func(tx *sql.Tx) error {
		var budget sql.NullFloat64
		if p.Budget != nil {
			budget = sql.NullFloat64{Float64: *p.Budget, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, name, budget, ai_summary) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, budget = excluded.budget, ai_summary = excluded.ai_summary`,
			p.ID, p.Name, budget, p.AISummary); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = ?`, p.ID); err != nil {
			return err
		}
		for i, t := range p.Tasks {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tasks (project_id, id, title, status, position) VALUES (?, ?, ?, ?, ?)`,
				p.ID, t.ID, t.Title, t.Status, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveEntries stores entries, replacing any existing entry with the same ID.
func (r *SQLiteRepository) SaveEntries(ctx context.Context, entries []core.TimeEntry) error {
	return r.inTx(ctx, "save entries", func(tx *sql.Tx) error {
		for _, e := range entries {
			if e.ID == "" {
				return core.NewValidationError("id", "is required for every time entry")
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM intervals WHERE appointment_id IN (SELECT id FROM appointments WHERE entry_id = ?)`, e.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM appointments WHERE entry_id = ?`, e.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO time_entries (id, username, project_id, task_id) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					username = excluded.username, project_id = excluded.project_id, task_id = excluded.task_id`,
				e.ID, e.Username, e.ProjectID, e.TaskID); err != nil {
				return err
			}
			for pos, a := range e.Appointments {
				var billable sql.NullBool
				if a.IsBillable != nil {
					billable = sql.NullBool{Bool: *a.IsBillable, Valid: true}
				}
				res, err := tx.ExecContext(ctx, `
					INSERT INTO appointments (entry_id, position, app_name, app_title, is_billable, suggested_category)
					VALUES (?, ?, ?, ?, ?, ?)`,
					e.ID, pos, a.AppName, a.AppTitle, billable, nullString(a.SuggestedCategory))
				if err != nil {
					return err
				}
				apptID, err := res.LastInsertId()
				if err != nil {
					return err
				}
				for _, iv := range a.Intervals {
					var dur sql.NullFloat64
					if v, ok := iv.Duration.Value(); ok {
						dur = sql.NullFloat64{Float64: v, Valid: true}
					}
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO intervals (appointment_id, start_time, end_time, duration) VALUES (?, ?, ?, ?)`,
						apptID, nanos(iv.StartTime), nanos(iv.EndTime), dur); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// ListEntries implements core.EntryReader. A time range filters intervals by
// start time; entries left without intervals are omitted.
func (r *SQLiteRepository) ListEntries(ctx context.Context, f core.EntryFilter) ([]core.TimeEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.ProjectID != "" {
		where = append(where, "e.project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.TaskID != "" {
		where = append(where, "e.task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.Username != "" {
		where = append(where, "e.username = ?")
		args = append(args, f.Username)
	}
	if !f.From.IsZero() {
		where = append(where, "i.start_time >= ?")
		args = append(args, nanos(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "i.start_time < ?")
		args = append(args, nanos(f.To))
	}

	query := `
		SELECT e.id, e.username, e.project_id, e.task_id,
		       a.id, a.app_name, a.app_title, a.is_billable, a.suggested_category,
		       i.start_time, i.end_time, i.duration
		FROM time_entries e
		JOIN appointments a ON a.entry_id = e.id
		JOIN intervals i ON i.appointment_id = a.id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.id, a.position, i.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.WrapStorage("list entries", err)
	}
	defer rows.Close()

	var (
		entries  []core.TimeEntry
		lastAppt int64 = -1
	)
	for rows.Next() {
		var (
			e         core.TimeEntry
			apptID    int64
			a         core.Appointment
			billable  sql.NullBool
			suggested sql.NullString
			start     int64
			end       int64
			dur       sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.Username, &e.ProjectID, &e.TaskID,
			&apptID, &a.AppName, &a.AppTitle, &billable, &suggested,
			&start, &end, &dur); err != nil {
			return nil, core.WrapStorage("scan entry", err)
		}

		iv := core.TimeInterval{StartTime: fromNanos(start), EndTime: fromNanos(end), Duration: core.InvalidDuration()}
		if dur.Valid {
			iv.Duration = core.Seconds(dur.Float64)
		}

		if n := len(entries); n == 0 || entries[n-1].ID != e.ID {
			entries = append(entries, e)
		}
		cur := &entries[len(entries)-1]
		if apptID != lastAppt {
			if billable.Valid {
				b := billable.Bool
				a.IsBillable = &b
			}
			a.SuggestedCategory = stringPtr(suggested)
			cur.Appointments = append(cur.Appointments, a)
			lastAppt = apptID
		}
		appt := &cur.Appointments[len(cur.Appointments)-1]
		appt.Intervals = append(appt.Intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapStorage("list entries", err)
	}
	return entries, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WrapStorage(op, fmt.Errorf("begin: %w", err))
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		if core.IsValidation(err) {
			return err
		}
		return core.WrapStorage(op, err)
	}
	return core.WrapStorage(op, tx.Commit())
}
