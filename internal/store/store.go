package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT PRIMARY KEY,
			project_id  TEXT,
			title       TEXT NOT NULL,
			description TEXT,
			status      TEXT DEFAULT 'backlog',
			progress    INTEGER DEFAULT 0,
			agent_id    TEXT,
			run_id      TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, updated_at)`,
		`CREATE TABLE IF NOT EXISTS agent_runs (
			id           TEXT PRIMARY KEY,
			task_id      TEXT NOT NULL,
			agent_id     TEXT NOT NULL,
			status       TEXT DEFAULT 'running',
			result       TEXT,
			error        TEXT,
			started_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_task ON agent_runs(task_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS activity_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			level      TEXT NOT NULL,
			message    TEXT NOT NULL,
			task_id    TEXT,
			agent_id   TEXT,
			run_id     TEXT,
			metadata   TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_task ON activity_log(task_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS swarm_agents (
			id           TEXT PRIMARY KEY,
			template_id  TEXT NOT NULL,
			status       TEXT NOT NULL,
			project_id   TEXT,
			parent_id    TEXT,
			children     TEXT,
			task_id      TEXT,
			tokens_used  INTEGER DEFAULT 0,
			cost         REAL DEFAULT 0,
			started_at   DATETIME,
			completed_at DATETIME,
			error        TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS swarm_messages (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			sender     TEXT NOT NULL,
			receiver   TEXT NOT NULL,
			task_id    TEXT,
			payload    TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS task_assignments (
			task_id  TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS secrets (
			name       TEXT PRIMARY KEY,
			ciphertext BLOB NOT NULL,
			nonce      BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
