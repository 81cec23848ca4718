package store

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// AgentRun is one execution attempt of an agent against a task. The
// decision engine reads the terminal status; it never owns the lifecycle.
type AgentRun struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	AgentID     string     `json:"agent_id"`
	Status      string     `json:"status"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

const runColumns = `id, task_id, agent_id, status, result, error, started_at, completed_at`

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*AgentRun, error) {
	r := &AgentRun{}
	var result, errStr sql.NullString
	err := scanner.Scan(&r.ID, &r.TaskID, &r.AgentID, &r.Status, &result, &errStr, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	r.Result = result.String
	r.Error = errStr.String
	return r, nil
}

func (s *Store) SaveRun(r *AgentRun) error {
	_, err := s.db.Exec(`
		INSERT INTO agent_runs (id, task_id, agent_id, status, result, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			completed_at = CASE WHEN excluded.status IN ('completed', 'failed') THEN CURRENT_TIMESTAMP ELSE completed_at END`,
		r.ID, r.TaskID, r.AgentID, r.Status, r.Result, r.Error)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(id string) (*AgentRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM agent_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// LatestRunForTask returns the most recently started run for a task, or
// nil when the task has never run.
func (s *Store) LatestRunForTask(taskID string) (*AgentRun, error) {
	row := s.db.QueryRow(`
		SELECT `+runColumns+` FROM agent_runs
		WHERE task_id = ? ORDER BY started_at DESC LIMIT 1`, taskID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run for task: %w", err)
	}
	return r, nil
}

func (s *Store) ListRunsForTask(taskID string) ([]AgentRun, error) {
	rows, err := s.db.Query(`
		SELECT `+runColumns+` FROM agent_runs
		WHERE task_id = ? ORDER BY started_at DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []AgentRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
