// Package swarm owns the live agent population: instance lifecycle and
// hierarchy, task assignment, token and cost accounting, and the
// inter-agent message queue. It is the single source of truth for agent
// state; readers go through its accessors rather than caching instances.
package swarm

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mkefalas/apiary/internal/natsbus"
	"github.com/mkefalas/apiary/internal/registry"
	"github.com/mkefalas/apiary/internal/store"
)

type Runtime struct {
	registry  *registry.Registry
	store     *store.Store    // nil disables persistence
	events    *natsbus.Client // nil disables event publishing
	retention int

	mu          sync.RWMutex
	instances   map[string]*AgentInstance
	messages    []Message
	assignments map[string]string // taskID -> instanceID
	running     bool
}

func New(reg *registry.Registry, s *store.Store, events *natsbus.Client, retention int) *Runtime {
	if retention <= 0 {
		retention = 100
	}
	return &Runtime{
		registry:    reg,
		store:       s,
		events:      events,
		retention:   retention,
		instances:   make(map[string]*AgentInstance),
		assignments: make(map[string]string),
	}
}

// Load restores instances, messages, and assignments persisted by a
// previous process. Instances whose template no longer exists are skipped.
func (r *Runtime) Load() error {
	if r.store == nil {
		return nil
	}

	rows, err := r.store.ListSwarmAgents()
	if err != nil {
		return err
	}
	msgs, err := r.store.ListSwarmMessages()
	if err != nil {
		return err
	}
	assignments, err := r.store.ListAssignments()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range rows {
		tpl := r.registry.Get(row.TemplateID)
		if tpl == nil {
			slog.Warn("skipping persisted agent with unknown template", "id", row.ID, "template", row.TemplateID)
			continue
		}
		r.instances[row.ID] = &AgentInstance{
			ID:          row.ID,
			Template:    tpl,
			Status:      AgentStatus(row.Status),
			TaskID:      row.TaskID,
			ProjectID:   row.ProjectID,
			ParentID:    row.ParentID,
			Children:    append([]string(nil), row.Children...),
			TokensUsed:  row.TokensUsed,
			Cost:        row.Cost,
			StartedAt:   row.StartedAt,
			CompletedAt: row.CompletedAt,
			Error:       row.Error,
		}
	}

	for _, m := range msgs {
		var payload map[string]any
		if m.Payload != "" {
			_ = json.Unmarshal([]byte(m.Payload), &payload)
		}
		r.messages = append(r.messages, Message{
			ID:        m.ID,
			Type:      MessageType(m.Type),
			From:      m.Sender,
			To:        m.Receiver,
			TaskID:    m.TaskID,
			Payload:   payload,
			CreatedAt: m.CreatedAt,
		})
	}

	r.assignments = assignments
	if r.assignments == nil {
		r.assignments = make(map[string]string)
	}

	slog.Info("swarm state restored", "agents", len(r.instances), "messages", len(r.messages), "assignments", len(r.assignments))
	return nil
}

// Spawn creates an instance from a template. Returns nil when the
// template id is unknown. When a parent is given and exists, the parent's
// child list gains the new instance.
func (r *Runtime) Spawn(templateID, projectID, parentID string) *AgentInstance {
	tpl := r.registry.Get(templateID)
	if tpl == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inst := &AgentInstance{
		ID:        uuid.New().String(),
		Template:  tpl,
		Status:    StatusIdle,
		ProjectID: projectID,
	}

	if parentID != "" {
		if parent, ok := r.instances[parentID]; ok {
			inst.ParentID = parentID
			parent.Children = append(parent.Children, inst.ID)
			r.persistAgent(parent)
		}
	}

	r.instances[inst.ID] = inst
	r.persistAgent(inst)
	r.publish("agent_spawned", inst)

	slog.Info("agent spawned", "id", inst.ID, "template", templateID, "parent", inst.ParentID)
	return snapshot(inst)
}

// Despawn removes an instance, detaches it from its parent, and drops any
// task assignment that referenced it.
func (r *Runtime) Despawn(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return false
	}

	if inst.ParentID != "" {
		if parent, ok := r.instances[inst.ParentID]; ok {
			parent.Children = removeString(parent.Children, id)
			r.persistAgent(parent)
		}
	}
	for _, childID := range inst.Children {
		if child, ok := r.instances[childID]; ok && child.ParentID == id {
			child.ParentID = ""
			r.persistAgent(child)
		}
	}

	for taskID, agentID := range r.assignments {
		if agentID == id {
			delete(r.assignments, taskID)
			if r.store != nil {
				if err := r.store.DeleteAssignment(taskID); err != nil {
					slog.Error("delete assignment failed", "task", taskID, "error", err)
				}
			}
		}
	}

	delete(r.instances, id)
	if r.store != nil {
		if err := r.store.DeleteSwarmAgent(id); err != nil {
			slog.Error("delete swarm agent failed", "id", id, "error", err)
		}
	}
	r.publish("agent_despawned", inst)

	slog.Info("agent despawned", "id", id)
	return true
}

// UpdateStatus transitions an instance. Entering running stamps StartedAt
// once; entering completed or error stamps CompletedAt.
func (r *Runtime) UpdateStatus(id string, status AgentStatus, errMsg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return false
	}

	inst.Status = status
	inst.Error = errMsg
	now := time.Now().UTC()
	switch status {
	case StatusRunning:
		if inst.StartedAt == nil {
			inst.StartedAt = &now
		}
	case StatusCompleted, StatusError:
		inst.CompletedAt = &now
	}

	r.persistAgent(inst)
	r.publish("agent_status", inst)
	return true
}

// UpdateProgress accumulates token and cost usage.
func (r *Runtime) UpdateProgress(id string, tokensDelta int, costDelta float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return false
	}
	inst.TokensUsed += tokensDelta
	inst.Cost += costDelta
	r.persistAgent(inst)
	return true
}

// AssignTask marks the instance running on the task and records the
// task↔agent mapping.
func (r *Runtime) AssignTask(id, taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return false
	}

	// Reassigning drops the mapping for the task the instance held.
	if inst.TaskID != "" && inst.TaskID != taskID {
		delete(r.assignments, inst.TaskID)
		if r.store != nil {
			if err := r.store.DeleteAssignment(inst.TaskID); err != nil {
				slog.Error("delete assignment failed", "task", inst.TaskID, "error", err)
			}
		}
	}
	inst.TaskID = taskID
	inst.Status = StatusRunning
	if inst.StartedAt == nil {
		now := time.Now().UTC()
		inst.StartedAt = &now
	}
	r.assignments[taskID] = id

	r.persistAgent(inst)
	if r.store != nil {
		if err := r.store.SaveAssignment(taskID, id); err != nil {
			slog.Error("save assignment failed", "task", taskID, "error", err)
		}
	}
	r.publish("task_assigned", inst)
	return true
}

// UnassignTask clears the instance's task and returns it to idle.
func (r *Runtime) UnassignTask(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return false
	}

	if inst.TaskID != "" {
		delete(r.assignments, inst.TaskID)
		if r.store != nil {
			if err := r.store.DeleteAssignment(inst.TaskID); err != nil {
				slog.Error("delete assignment failed", "task", inst.TaskID, "error", err)
			}
		}
	}
	inst.TaskID = ""
	inst.Status = StatusIdle

	r.persistAgent(inst)
	r.publish("task_unassigned", inst)
	return true
}

func (r *Runtime) Get(id string) *AgentInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil
	}
	return snapshot(inst)
}

func (r *Runtime) ByArchetype(a registry.Archetype) []AgentInstance {
	return r.filter(func(i *AgentInstance) bool { return i.Template.Archetype == a })
}

func (r *Runtime) ByTier(t registry.Tier) []AgentInstance {
	return r.filter(func(i *AgentInstance) bool { return i.Template.Tier == t })
}

func (r *Runtime) ByStatus(s AgentStatus) []AgentInstance {
	return r.filter(func(i *AgentInstance) bool { return i.Status == s })
}

func (r *Runtime) ByProject(projectID string) []AgentInstance {
	return r.filter(func(i *AgentInstance) bool { return i.ProjectID == projectID })
}

func (r *Runtime) Running() []AgentInstance { return r.ByStatus(StatusRunning) }
func (r *Runtime) Idle() []AgentInstance    { return r.ByStatus(StatusIdle) }

func (r *Runtime) All() []AgentInstance {
	return r.filter(func(*AgentInstance) bool { return true })
}

// FindIdle returns an idle instance of the template, preferring the given
// project when set. Nil when none exists.
func (r *Runtime) FindIdle(templateID, projectID string) *AgentInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fallback *AgentInstance
	for _, inst := range r.instances {
		if inst.Template.ID != templateID || inst.Status != StatusIdle {
			continue
		}
		if projectID != "" && inst.ProjectID == projectID {
			return snapshot(inst)
		}
		if fallback == nil {
			fallback = inst
		}
	}
	if fallback != nil {
		return snapshot(fallback)
	}
	return nil
}

// Totals reports cumulative token and cost usage across all instances.
func (r *Runtime) Totals() (tokens int, cost float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instances {
		tokens += inst.TokensUsed
		cost += inst.Cost
	}
	return tokens, cost
}

func (r *Runtime) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{ByTier: make(map[registry.Tier]int)}
	for _, inst := range r.instances {
		s.Total++
		switch inst.Status {
		case StatusRunning:
			s.Running++
		case StatusIdle:
			s.Idle++
		}
		s.ByTier[inst.Template.Tier]++
		s.TokensUsed += inst.TokensUsed
		s.Cost += inst.Cost
	}
	return s
}

// AssignmentFor returns the instance assigned to a task.
func (r *Runtime) AssignmentFor(taskID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.assignments[taskID]
	return id, ok
}

// SendMessage appends an immutable message stamped with id and timestamp.
func (r *Runtime) SendMessage(msgType MessageType, from, to string, payload map[string]any, taskID string) Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		From:      from,
		To:        to,
		TaskID:    taskID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	r.messages = append(r.messages, msg)
	if len(r.messages) > r.retention {
		r.messages = r.messages[len(r.messages)-r.retention:]
	}

	if r.store != nil {
		data, _ := json.Marshal(payload)
		row := &store.SwarmMessageRow{
			ID:       msg.ID,
			Type:     string(msg.Type),
			Sender:   from,
			Receiver: to,
			TaskID:   taskID,
			Payload:  string(data),
		}
		if err := r.store.SaveSwarmMessage(row, r.retention); err != nil {
			slog.Error("persist swarm message failed", "id", msg.ID, "error", err)
		}
	}

	if r.events != nil {
		if err := r.events.PublishJSON(natsbus.TopicAgentEvents(to), msg); err != nil {
			slog.Debug("publish message event failed", "error", err)
		}
	}
	return msg
}

// MessagesFor returns messages addressed to the instance or to broadcast.
func (r *Runtime) MessagesFor(id string) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Message
	for _, m := range r.messages {
		if m.To == id || m.To == Broadcast {
			out = append(out, m)
		}
	}
	return out
}

// ClearMessages removes messages addressed to one instance, or the whole
// queue when id is empty.
func (r *Runtime) ClearMessages(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		r.messages = nil
	} else {
		kept := r.messages[:0]
		for _, m := range r.messages {
			if m.To != id {
				kept = append(kept, m)
			}
		}
		r.messages = kept
	}

	if r.store != nil {
		if err := r.store.DeleteSwarmMessages(id); err != nil {
			slog.Error("clear persisted messages failed", "error", err)
		}
	}
}

// Start marks the swarm running.
func (r *Runtime) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = true
	slog.Info("swarm started")
}

// Stop marks the swarm stopped and demotes running instances to paused.
// It does not cancel in-flight work, only relabels it.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	for _, inst := range r.instances {
		if inst.Status == StatusRunning {
			inst.Status = StatusPaused
			r.persistAgent(inst)
		}
	}
	slog.Info("swarm stopped")
}

func (r *Runtime) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Reset clears all instances, messages, and assignments.
func (r *Runtime) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.instances = make(map[string]*AgentInstance)
	r.messages = nil
	r.assignments = make(map[string]string)

	if r.store != nil {
		if err := r.store.ClearSwarmAgents(); err != nil {
			slog.Error("clear persisted agents failed", "error", err)
		}
		if err := r.store.DeleteSwarmMessages(""); err != nil {
			slog.Error("clear persisted messages failed", "error", err)
		}
		if err := r.store.ClearAssignments(); err != nil {
			slog.Error("clear persisted assignments failed", "error", err)
		}
	}
}

// callers hold r.mu
func (r *Runtime) persistAgent(inst *AgentInstance) {
	if r.store == nil {
		return
	}
	row := &store.SwarmAgentRow{
		ID:          inst.ID,
		TemplateID:  inst.Template.ID,
		Status:      string(inst.Status),
		ProjectID:   inst.ProjectID,
		ParentID:    inst.ParentID,
		Children:    append([]string(nil), inst.Children...),
		TaskID:      inst.TaskID,
		TokensUsed:  inst.TokensUsed,
		Cost:        inst.Cost,
		StartedAt:   inst.StartedAt,
		CompletedAt: inst.CompletedAt,
		Error:       inst.Error,
	}
	if err := r.store.SaveSwarmAgent(row); err != nil {
		slog.Error("persist swarm agent failed", "id", inst.ID, "error", err)
	}
}

func (r *Runtime) publish(event string, inst *AgentInstance) {
	if r.events == nil {
		return
	}
	payload := map[string]any{
		"type":      event,
		"agent_id":  inst.ID,
		"template":  inst.Template.ID,
		"status":    inst.Status,
		"task_id":   inst.TaskID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.events.PublishJSON(natsbus.TopicAgentEvents(inst.ID), payload); err != nil {
		slog.Debug("publish agent event failed", "error", err)
	}
}

func (r *Runtime) filter(keep func(*AgentInstance) bool) []AgentInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []AgentInstance
	for _, inst := range r.instances {
		if keep(inst) {
			out = append(out, *snapshot(inst))
		}
	}
	return out
}

// snapshot copies an instance so callers never alias locked state.
func snapshot(inst *AgentInstance) *AgentInstance {
	cp := *inst
	cp.Children = append([]string(nil), inst.Children...)
	return &cp
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
