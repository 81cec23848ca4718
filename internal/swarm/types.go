package swarm

import (
	"time"

	"github.com/mkefalas/apiary/internal/registry"
)

// AgentStatus is the lifecycle state of a live agent instance.
type AgentStatus string

const (
	StatusIdle      AgentStatus = "idle"
	StatusRunning   AgentStatus = "running"
	StatusPaused    AgentStatus = "paused"
	StatusCompleted AgentStatus = "completed"
	StatusError     AgentStatus = "error"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusPaused, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// AgentInstance is one spawned agent. It carries its template by pointer;
// template fields are immutable, instance fields mutate under the
// runtime's lock.
type AgentInstance struct {
	ID          string                  `json:"id"`
	Template    *registry.AgentTemplate `json:"template"`
	Status      AgentStatus             `json:"status"`
	TaskID      string                  `json:"task_id,omitempty"`
	ProjectID   string                  `json:"project_id,omitempty"`
	ParentID    string                  `json:"parent_id,omitempty"`
	Children    []string                `json:"children,omitempty"`
	TokensUsed  int                     `json:"tokens_used"`
	Cost        float64                 `json:"cost"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// MessageType tags an inter-agent message.
type MessageType string

const (
	MsgTaskAssign     MessageType = "task_assign"
	MsgTaskComplete   MessageType = "task_complete"
	MsgTaskFailed     MessageType = "task_failed"
	MsgProgressUpdate MessageType = "progress_update"
	MsgContextShare   MessageType = "context_share"
	MsgEscalate       MessageType = "escalate"
	MsgHandoff        MessageType = "handoff"
	MsgQuery          MessageType = "query"
	MsgResponse       MessageType = "response"
)

// Broadcast is the receiver value addressing every agent.
const Broadcast = "broadcast"

// Message is immutable once created.
type Message struct {
	ID        string         `json:"id"`
	Type      MessageType    `json:"type"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	TaskID    string         `json:"task_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Stats is the aggregate summary the presentation layer renders.
type Stats struct {
	Total      int                   `json:"total"`
	Running    int                   `json:"running"`
	Idle       int                   `json:"idle"`
	ByTier     map[registry.Tier]int `json:"by_tier"`
	TokensUsed int                   `json:"tokens_used"`
	Cost       float64               `json:"cost"`
}
