// Package db is the optional run-history store. The engine itself
// persists nothing; the CLI records finished runs here when a database
// path is configured.
package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func Make(dbPath string) (*DB, error) {
	d, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = d.Exec(`
		create table if not exists runs (
			id text primary key,
			workflow text not null,
			event text not null,
			branch text not null,
			status text not null,
			exit_code integer not null default 0,
			created_at text not null default (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		create table if not exists run_jobs (
			run_id text not null,
			name text not null,
			status text not null,
			error text not null default '',
			started_at text,
			finished_at text,
			primary key (run_id, name),
			foreign key (run_id) references runs(id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{d}, nil
}
