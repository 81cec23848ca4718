// Package monitor is the completion-decision engine: every monitored
// task is re-evaluated on a shared recurring timer and its fate applied
// against the external task record. One task's evaluation failure never
// prevents the rest of the tick.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkefalas/apiary/internal/natsbus"
	"github.com/mkefalas/apiary/internal/store"
	"github.com/mkefalas/apiary/internal/swarm"
)

// Notifier receives out-of-band escalation signals. Implementations must
// not block; the engine fires and forgets.
type Notifier interface {
	Escalate(taskID, reason string)
}

type noopNotifier struct{}

func (noopNotifier) Escalate(string, string) {}

type Engine struct {
	store    *store.Store
	runtime  *swarm.Runtime
	events   *natsbus.Client // nil disables event publishing
	notifier Notifier
	defaults Settings
	interval time.Duration

	mu        sync.Mutex
	monitored map[string]*MonitoredTask
	order     []string // registration order for tick evaluation
	cancel    context.CancelFunc
}

func New(s *store.Store, rt *swarm.Runtime, events *natsbus.Client, notifier Notifier, defaults Settings, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Engine{
		store:     s,
		runtime:   rt,
		events:    events,
		notifier:  notifier,
		defaults:  defaults,
		interval:  interval,
		monitored: make(map[string]*MonitoredTask),
	}
}

// StartMonitoring places a task under supervision, merging defaults with
// the per-task override, and ensures the shared timer is running.
func (e *Engine) StartMonitoring(taskID string, override *Override) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.monitored[taskID]; ok {
		return
	}

	now := time.Now().UTC()
	e.monitored[taskID] = &MonitoredTask{
		TaskID:         taskID,
		StartedAt:      now,
		LastProgressAt: now,
		Settings:       merge(e.defaults, override),
	}
	e.order = append(e.order, taskID)

	e.ensureTimerLocked()
	slog.Info("monitoring started", "task", taskID)
}

// StopMonitoring removes the record and cancels the timer when no tasks
// remain.
func (e *Engine) StopMonitoring(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(taskID)
}

func (e *Engine) stopLocked(taskID string) {
	if _, ok := e.monitored[taskID]; !ok {
		return
	}
	delete(e.monitored, taskID)
	for i, id := range e.order {
		if id == taskID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	if len(e.monitored) == 0 && e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	slog.Info("monitoring stopped", "task", taskID)
}

// TouchProgress refreshes the last-progress timestamp so an active task
// is not misread as stalled.
func (e *Engine) TouchProgress(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if mon, ok := e.monitored[taskID]; ok {
		mon.LastProgressAt = time.Now().UTC()
	}
}

// Monitored reports whether a task is currently under supervision.
func (e *Engine) Monitored(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.monitored[taskID]
	return ok
}

// RetryCount returns the retry counter for a monitored task.
func (e *Engine) RetryCount(taskID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if mon, ok := e.monitored[taskID]; ok {
		return mon.RetryCount
	}
	return 0
}

// Shutdown cancels the shared timer and clears the monitoring map.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.monitored = make(map[string]*MonitoredTask)
	e.order = nil
}

// callers hold e.mu
func (e *Engine) ensureTimerLocked() {
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	slog.Info("decision timer started", "interval", e.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("decision timer stopped")
			return
		case <-ticker.C:
			e.EvaluateAll()
		}
	}
}

// EvaluateAll evaluates every monitored task once, in registration
// order, applying any non-pending decision immediately.
func (e *Engine) EvaluateAll() {
	e.mu.Lock()
	ids := append([]string(nil), e.order...)
	e.mu.Unlock()

	for _, taskID := range ids {
		d, err := e.Evaluate(taskID)
		if err != nil {
			slog.Error("evaluation failed", "task", taskID, "error", err)
			continue
		}
		if d.Outcome != OutcomePending {
			e.Apply(taskID, d)
		}
	}
}

// Evaluate produces a decision for one monitored task without applying
// it.
func (e *Engine) Evaluate(taskID string) (Decision, error) {
	e.mu.Lock()
	mon, ok := e.monitored[taskID]
	var monCopy *MonitoredTask
	if ok {
		cp := *mon
		monCopy = &cp
	}
	e.mu.Unlock()
	if !ok {
		return Decision{}, fmt.Errorf("task %s is not monitored", taskID)
	}

	task, err := e.store.GetTask(taskID)
	if err != nil {
		return Decision{}, fmt.Errorf("load task: %w", err)
	}

	var run *store.AgentRun
	if task != nil && task.RunID != "" {
		run, err = e.store.GetRun(task.RunID)
		if err != nil {
			return Decision{}, fmt.Errorf("load run: %w", err)
		}
	}

	return decide(task, run, monCopy, time.Now().UTC()), nil
}

// Apply executes a decision: terminal outcomes update the task record
// and end monitoring, retry rewinds the monitoring record, escalate only
// logs and notifies.
func (e *Engine) Apply(taskID string, d Decision) {
	switch d.Outcome {
	case OutcomeComplete:
		if err := e.store.UpdateTaskStatus(taskID, d.TargetStatus); err != nil {
			slog.Error("update task status failed", "task", taskID, "error", err)
		}
		e.logActivity("info", fmt.Sprintf("task completed: %s", d.Reason), taskID)
		e.releaseAgent(taskID)
		e.StopMonitoring(taskID)

	case OutcomeFail:
		if d.TargetStatus != "" {
			if err := e.store.UpdateTaskStatus(taskID, d.TargetStatus); err != nil {
				slog.Error("update task status failed", "task", taskID, "error", err)
			}
		}
		e.logActivity("error", fmt.Sprintf("task failed: %s", d.Reason), taskID)
		e.releaseAgent(taskID)
		e.StopMonitoring(taskID)

	case OutcomeTimeout:
		if err := e.store.UpdateTaskStatus(taskID, d.TargetStatus); err != nil {
			slog.Error("update task status failed", "task", taskID, "error", err)
		}
		e.logActivity("warn", fmt.Sprintf("task timed out: %s", d.Reason), taskID)
		e.releaseAgent(taskID)
		e.StopMonitoring(taskID)

	case OutcomeRetry:
		e.mu.Lock()
		if mon, ok := e.monitored[taskID]; ok {
			mon.RetryCount++
			now := time.Now().UTC()
			mon.StartedAt = now
			mon.LastProgressAt = now
		}
		e.mu.Unlock()
		// Re-dispatch to the router is a follow-up action, not inline
		e.logActivity("warn", fmt.Sprintf("task retry scheduled: %s", d.Reason), taskID)

	case OutcomeEscalate:
		e.logActivity("warn", fmt.Sprintf("task escalated: %s", d.Reason), taskID)
		e.notifier.Escalate(taskID, d.Reason)

	case OutcomePending:
		// Nothing to do
	}

	e.publishDecision(taskID, d)
}

// Escalate applies an escalation decision for a task. The task stays
// under monitoring; the notifier carries the signal to a human.
func (e *Engine) Escalate(taskID, reason string) {
	e.Apply(taskID, Decision{Outcome: OutcomeEscalate, Reason: reason})
}

// MarkCompleteOptions control the manual completion path.
type MarkCompleteOptions struct {
	MoveToReview bool
	Reason       string
}

// MarkComplete bypasses the decision engine entirely and completes the
// task, then stops monitoring.
func (e *Engine) MarkComplete(taskID string, opts MarkCompleteOptions) error {
	target := store.TaskStatusDone
	if opts.MoveToReview {
		target = store.TaskStatusReview
	}
	if err := e.store.UpdateTaskStatus(taskID, target); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}

	reason := opts.Reason
	if reason == "" {
		reason = "manually completed"
	}
	e.logActivity("info", fmt.Sprintf("task completed: %s", reason), taskID)
	e.releaseAgent(taskID)
	e.StopMonitoring(taskID)
	e.publishDecision(taskID, Decision{Outcome: OutcomeComplete, TargetStatus: target, Reason: reason})
	return nil
}

// releaseAgent returns the assigned instance to idle when the task
// reaches a terminal decision.
func (e *Engine) releaseAgent(taskID string) {
	if e.runtime == nil {
		return
	}
	if agentID, ok := e.runtime.AssignmentFor(taskID); ok {
		e.runtime.UnassignTask(agentID)
	}
}

func (e *Engine) logActivity(level, message, taskID string) {
	slog.Log(context.Background(), slogLevel(level), message, "task", taskID)
	if e.store == nil {
		return
	}
	entry := &store.ActivityEntry{Level: level, Message: message, TaskID: taskID}
	if task, err := e.store.GetTask(taskID); err == nil && task != nil {
		entry.AgentID = task.AgentID
		entry.RunID = task.RunID
	}
	if err := e.store.LogActivity(entry); err != nil {
		slog.Error("activity log write failed", "task", taskID, "error", err)
	}
}

func (e *Engine) publishDecision(taskID string, d Decision) {
	if e.events == nil {
		return
	}
	payload := map[string]any{
		"task_id":   taskID,
		"decision":  d,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = e.events.Publish(natsbus.TopicDecision(taskID), data)
}

func slogLevel(level string) slog.Level {
	switch level {
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
