package db

import (
	"time"

	"github.com/spool-ci/spool/report"
)

type RunRow struct {
	ID        string
	Workflow  string
	Event     string
	Branch    string
	Status    string
	ExitCode  int
	CreatedAt string
}

// RecordRun stores a finished run and its per-job outcomes.
func (db *DB) RecordRun(run *report.Run) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		insert into runs (id, workflow, event, branch, status, exit_code)
		values (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Workflow, string(run.Event.Kind), run.Event.Branch, string(run.Overall), run.ExitCode())
	if err != nil {
		return err
	}

	for _, job := range run.Jobs {
		_, err = tx.Exec(`
			insert into run_jobs (run_id, name, status, error, started_at, finished_at)
			values (?, ?, ?, ?, ?, ?)
		`, run.ID, job.Name, string(job.Status), job.Error, timestamp(job.StartedAt), timestamp(job.FinishedAt))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Runs lists the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]RunRow, error) {
	rows, err := db.Query(`
		select id, workflow, event, branch, status, exit_code, created_at
		from runs
		order by created_at desc
		limit ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRow
	for rows.Next() {
		var r RunRow
		err := rows.Scan(&r.ID, &r.Workflow, &r.Event, &r.Branch, &r.Status, &r.ExitCode, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// JobStatuses returns the per-job statuses recorded for a run.
func (db *DB) JobStatuses(runID string) (map[string]report.Status, error) {
	rows, err := db.Query(`select name, status from run_jobs where run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make(map[string]report.Status)
	for rows.Next() {
		var name, status string
		if err := rows.Scan(&name, &status); err != nil {
			return nil, err
		}
		statuses[name] = report.Status(status)
	}

	return statuses, rows.Err()
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
