package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SwarmAgentRow is the persisted shape of a live agent instance. The
// runtime store owns the in-memory truth; these rows only exist so the
// swarm survives process restarts.
type SwarmAgentRow struct {
	ID          string     `json:"id"`
	TemplateID  string     `json:"template_id"`
	Status      string     `json:"status"`
	ProjectID   string     `json:"project_id,omitempty"`
	ParentID    string     `json:"parent_id,omitempty"`
	Children    []string   `json:"children,omitempty"`
	TaskID      string     `json:"task_id,omitempty"`
	TokensUsed  int        `json:"tokens_used"`
	Cost        float64    `json:"cost"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func (s *Store) SaveSwarmAgent(a *SwarmAgentRow) error {
	children, _ := json.Marshal(a.Children)
	_, err := s.db.Exec(`
		INSERT INTO swarm_agents (id, template_id, status, project_id, parent_id, children, task_id, tokens_used, cost, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			parent_id = excluded.parent_id,
			children = excluded.children,
			task_id = excluded.task_id,
			tokens_used = excluded.tokens_used,
			cost = excluded.cost,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			error = excluded.error`,
		a.ID, a.TemplateID, a.Status, a.ProjectID, a.ParentID, string(children),
		a.TaskID, a.TokensUsed, a.Cost, a.StartedAt, a.CompletedAt, a.Error)
	if err != nil {
		return fmt.Errorf("save swarm agent: %w", err)
	}
	return nil
}

func (s *Store) DeleteSwarmAgent(id string) error {
	_, err := s.db.Exec(`DELETE FROM swarm_agents WHERE id = ?`, id)
	return err
}

func (s *Store) ListSwarmAgents() ([]SwarmAgentRow, error) {
	rows, err := s.db.Query(`
		SELECT id, template_id, status, project_id, parent_id, children, task_id, tokens_used, cost, started_at, completed_at, error
		FROM swarm_agents`)
	if err != nil {
		return nil, fmt.Errorf("list swarm agents: %w", err)
	}
	defer rows.Close()

	var agents []SwarmAgentRow
	for rows.Next() {
		var a SwarmAgentRow
		var projectID, parentID, children, taskID, errStr sql.NullString
		if err := rows.Scan(&a.ID, &a.TemplateID, &a.Status, &projectID, &parentID, &children,
			&taskID, &a.TokensUsed, &a.Cost, &a.StartedAt, &a.CompletedAt, &errStr); err != nil {
			return nil, fmt.Errorf("scan swarm agent: %w", err)
		}
		a.ProjectID = projectID.String
		a.ParentID = parentID.String
		a.TaskID = taskID.String
		a.Error = errStr.String
		if children.Valid && children.String != "" {
			_ = json.Unmarshal([]byte(children.String), &a.Children)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *Store) ClearSwarmAgents() error {
	_, err := s.db.Exec(`DELETE FROM swarm_agents`)
	return err
}

// SwarmMessageRow is a persisted inter-agent message.
type SwarmMessageRow struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	TaskID    string    `json:"task_id,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveSwarmMessage appends a message and trims the table to the retention
// cap, oldest first.
func (s *Store) SaveSwarmMessage(m *SwarmMessageRow, retention int) error {
	_, err := s.db.Exec(`
		INSERT INTO swarm_messages (id, type, sender, receiver, task_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Type, m.Sender, m.Receiver, m.TaskID, m.Payload)
	if err != nil {
		return fmt.Errorf("save swarm message: %w", err)
	}

	if retention > 0 {
		_, err = s.db.Exec(`
			DELETE FROM swarm_messages WHERE id NOT IN (
				SELECT id FROM swarm_messages ORDER BY created_at DESC, id DESC LIMIT ?
			)`, retention)
		if err != nil {
			return fmt.Errorf("trim swarm messages: %w", err)
		}
	}
	return nil
}

func (s *Store) ListSwarmMessages() ([]SwarmMessageRow, error) {
	rows, err := s.db.Query(`
		SELECT id, type, sender, receiver, task_id, payload, created_at
		FROM swarm_messages ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list swarm messages: %w", err)
	}
	defer rows.Close()

	var msgs []SwarmMessageRow
	for rows.Next() {
		var m SwarmMessageRow
		var taskID, payload sql.NullString
		if err := rows.Scan(&m.ID, &m.Type, &m.Sender, &m.Receiver, &taskID, &payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan swarm message: %w", err)
		}
		m.TaskID = taskID.String
		m.Payload = payload.String
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) DeleteSwarmMessages(receiver string) error {
	if receiver == "" {
		_, err := s.db.Exec(`DELETE FROM swarm_messages`)
		return err
	}
	_, err := s.db.Exec(`DELETE FROM swarm_messages WHERE receiver = ?`, receiver)
	return err
}

func (s *Store) SaveAssignment(taskID, agentID string) error {
	_, err := s.db.Exec(`
		INSERT INTO task_assignments (task_id, agent_id) VALUES (?, ?)
		ON CONFLICT(task_id) DO UPDATE SET agent_id = excluded.agent_id`,
		taskID, agentID)
	if err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	return nil
}

func (s *Store) DeleteAssignment(taskID string) error {
	_, err := s.db.Exec(`DELETE FROM task_assignments WHERE task_id = ?`, taskID)
	return err
}

func (s *Store) ListAssignments() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT task_id, agent_id FROM task_assignments`)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	assignments := make(map[string]string)
	for rows.Next() {
		var taskID, agentID string
		if err := rows.Scan(&taskID, &agentID); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments[taskID] = agentID
	}
	return assignments, rows.Err()
}

func (s *Store) ClearAssignments() error {
	_, err := s.db.Exec(`DELETE FROM task_assignments`)
	return err
}
