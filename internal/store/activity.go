package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ActivityEntry is one line of the activity log. Writes are fire-and-forget
// from the caller's perspective; the engine never blocks on the result.
type ActivityEntry struct {
	ID        int64           `json:"id"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	TaskID    string          `json:"task_id,omitempty"`
	AgentID   string          `json:"agent_id,omitempty"`
	RunID     string          `json:"run_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Store) LogActivity(e *ActivityEntry) error {
	result, err := s.db.Exec(`
		INSERT INTO activity_log (level, message, task_id, agent_id, run_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Level, e.Message, e.TaskID, e.AgentID, e.RunID, nullableJSON(e.Metadata))
	if err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	e.ID, _ = result.LastInsertId()
	return nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *Store) ListActivity(taskID string, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if taskID == "" {
		rows, err = s.db.Query(`
			SELECT id, level, message, task_id, agent_id, run_id, metadata, created_at
			FROM activity_log ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, level, message, task_id, agent_id, run_id, metadata, created_at
			FROM activity_log WHERE task_id = ? ORDER BY created_at DESC LIMIT ?`, taskID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var taskID, agentID, runID, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.Level, &e.Message, &taskID, &agentID, &runID, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.TaskID = taskID.String
		e.AgentID = agentID.String
		e.RunID = runID.String
		if metadata.Valid {
			e.Metadata = json.RawMessage(metadata.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneActivity removes entries older than the cutoff and reports how many
// rows were deleted. Rows carry CURRENT_TIMESTAMP strings in UTC, so the
// cutoff is normalized to the same zone and layout before comparing.
func (s *Store) PruneActivity(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM activity_log WHERE created_at < ?`,
		cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
