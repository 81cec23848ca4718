package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Task statuses mirror the board columns of the tracking layer consuming
// this store. The decision engine only ever moves tasks between these.
const (
	TaskStatusBacklog    = "backlog"
	TaskStatusInProgress = "in_progress"
	TaskStatusReview     = "review"
	TaskStatusDone       = "done"
	TaskStatusFailed     = "failed"
)

type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	AgentID     string    `json:"agent_id,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const taskColumns = `id, project_id, title, description, status, progress, agent_id, run_id, created_at, updated_at`

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*Task, error) {
	t := &Task{}
	var projectID, description, agentID, runID sql.NullString
	err := scanner.Scan(&t.ID, &projectID, &t.Title, &description, &t.Status, &t.Progress,
		&agentID, &runID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ProjectID = projectID.String
	t.Description = description.String
	t.AgentID = agentID.String
	t.RunID = runID.String
	return t, nil
}

func (s *Store) SaveTask(t *Task) error {
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, project_id, title, description, status, progress, agent_id, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			progress = excluded.progress,
			agent_id = excluded.agent_id,
			run_id = excluded.run_id,
			updated_at = CURRENT_TIMESTAMP`,
		t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.Progress, t.AgentID, t.RunID)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *Store) ListTasks() ([]Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *Store) UpdateTaskStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

func (s *Store) UpdateTaskProgress(id string, progress int) error {
	_, err := s.db.Exec(`UPDATE tasks SET progress = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, progress, id)
	return err
}

// AssignTaskAgent records which agent instance (and optionally which run)
// is responsible for a task.
func (s *Store) AssignTaskAgent(id, agentID, runID string) error {
	_, err := s.db.Exec(`
		UPDATE tasks SET agent_id = ?, run_id = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, agentID, runID, TaskStatusInProgress, id)
	return err
}

func (s *Store) DeleteTask(id string) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	return err
}
