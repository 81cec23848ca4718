// Package router resolves a task analysis onto live agent instances:
// reuse an idle instance of each required template or spawn one, record
// the assignment, and coordinate secondary agents by message.
package router

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mkefalas/apiary/internal/analyzer"
	"github.com/mkefalas/apiary/internal/registry"
	"github.com/mkefalas/apiary/internal/store"
	"github.com/mkefalas/apiary/internal/swarm"
)

// Assignment pairs a routed agent instance with the template that
// selected it.
type Assignment struct {
	AgentID    string `json:"agent_id"`
	TemplateID string `json:"template_id"`
}

// HealthStatus summarizes the swarm, independent of task outcomes.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
)

// ExecResult reports the outcome of dispatching one task to the swarm.
type ExecResult struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	AgentIDs []string `json:"agent_ids,omitempty"`
	RunID    string   `json:"run_id,omitempty"`
}

type Router struct {
	registry *registry.Registry
	runtime  *swarm.Runtime
	store    *store.Store
}

func New(reg *registry.Registry, rt *swarm.Runtime, s *store.Store) *Router {
	return &Router{
		registry: reg,
		runtime:  rt,
		store:    s,
	}
}

// Route maps each required template onto an instance, reusing an idle one
// scoped to the project when available and spawning otherwise. Unknown
// template ids are skipped.
func (r *Router) Route(taskID string, analysis analyzer.Analysis, projectID string) []Assignment {
	var assignments []Assignment
	for _, templateID := range analysis.Templates {
		if r.registry.Get(templateID) == nil {
			slog.Warn("skipping unknown template", "template", templateID, "task", taskID)
			continue
		}

		inst := r.runtime.FindIdle(templateID, projectID)
		if inst == nil {
			inst = r.runtime.Spawn(templateID, projectID, "")
			if inst == nil {
				continue
			}
		}
		assignments = append(assignments, Assignment{AgentID: inst.ID, TemplateID: templateID})
	}
	return assignments
}

// EstimateCost prices the analysis: estimated tokens split 60/40 between
// input and output, each side priced at the selected template's tier.
func (r *Router) EstimateCost(analysis analyzer.Analysis) float64 {
	inputTokens := float64(analysis.EstimatedTokens) * 0.6
	outputTokens := float64(analysis.EstimatedTokens) * 0.4

	var total float64
	for _, templateID := range analysis.Templates {
		tpl := r.registry.Get(templateID)
		if tpl == nil {
			continue
		}
		cost := registry.CostFor(tpl.Tier)
		total += inputTokens*cost.Input + outputTokens*cost.Output
	}
	return total
}

var projectSpecialists = []string{"planner", "researcher", "coder", "reviewer"}
var projectWorkers = []string{"tester", "formatter", "docwriter"}

// InitializeProject spawns the standing crew for a project: one
// orchestrator, the specialist set parented to it, the worker set
// unparented, then starts the swarm.
func (r *Router) InitializeProject(projectID string) error {
	coord := r.runtime.Spawn("orchestrator", projectID, "")
	if coord == nil {
		return fmt.Errorf("spawn orchestrator for project %s", projectID)
	}

	for _, id := range projectSpecialists {
		if inst := r.runtime.Spawn(id, projectID, coord.ID); inst == nil {
			return fmt.Errorf("spawn specialist %s for project %s", id, projectID)
		}
	}
	for _, id := range projectWorkers {
		if inst := r.runtime.Spawn(id, projectID, ""); inst == nil {
			return fmt.Errorf("spawn worker %s for project %s", id, projectID)
		}
	}

	r.runtime.Start()
	slog.Info("project swarm initialized", "project", projectID)
	return nil
}

// ExecuteTask analyzes and routes a task, assigns the primary agent, and
// coordinates any secondaries. Failures come back as data, not errors.
func (r *Router) ExecuteTask(taskID, projectID string) ExecResult {
	task, err := r.store.GetTask(taskID)
	if err != nil {
		return ExecResult{Error: fmt.Sprintf("load task: %v", err)}
	}
	if task == nil {
		return ExecResult{Error: "task not found"}
	}

	analysis := analyzer.Analyze(task.Title, task.Description)
	assignments := r.Route(taskID, analysis, projectID)
	if len(assignments) == 0 {
		return ExecResult{Error: "no agents available"}
	}

	primary := assignments[0]
	runID := uuid.New().String()

	r.runtime.AssignTask(primary.AgentID, taskID)
	if err := r.store.SaveRun(&store.AgentRun{
		ID:      runID,
		TaskID:  taskID,
		AgentID: primary.AgentID,
		Status:  store.RunStatusRunning,
	}); err != nil {
		slog.Error("save run failed", "task", taskID, "error", err)
	}
	if err := r.store.AssignTaskAgent(taskID, primary.AgentID, runID); err != nil {
		slog.Error("record task assignment failed", "task", taskID, "error", err)
	}

	if len(assignments) > 1 {
		sender := primary.AgentID
		for _, a := range assignments {
			if a.TemplateID == "orchestrator" {
				sender = a.AgentID
				break
			}
		}
		for _, a := range assignments {
			if a.AgentID == primary.AgentID || a.AgentID == sender {
				continue
			}
			r.runtime.SendMessage(swarm.MsgTaskAssign, sender, a.AgentID, map[string]any{
				"title":       task.Title,
				"description": task.Description,
				"role":        "support",
			}, taskID)
		}
	}

	agentIDs := make([]string, len(assignments))
	for i, a := range assignments {
		agentIDs[i] = a.AgentID
	}

	slog.Info("task dispatched", "task", taskID, "agents", len(agentIDs), "complexity", analysis.Complexity)
	return ExecResult{Success: true, AgentIDs: agentIDs, RunID: runID}
}

// Health reports swarm health independent of individual task outcomes.
func (r *Router) Health() HealthStatus {
	if !r.runtime.IsRunning() {
		return HealthOffline
	}
	agents := r.runtime.All()
	if len(agents) == 0 {
		return HealthDegraded
	}
	for _, a := range agents {
		if a.Status == swarm.StatusError {
			return HealthDegraded
		}
	}
	return HealthHealthy
}
