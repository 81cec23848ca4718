package monitor

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mkefalas/apiary/internal/registry"
	"github.com/mkefalas/apiary/internal/store"
	"github.com/mkefalas/apiary/internal/swarm"
)

func testSettings() Settings {
	return Settings{
		AutoComplete:        true,
		AutoCompleteTimeout: 5 * time.Minute,
		MaxRetries:          3,
	}
}

func monitoredAt(start time.Time, s Settings) *MonitoredTask {
	return &MonitoredTask{
		TaskID:         "t1",
		StartedAt:      start,
		LastProgressAt: start,
		Settings:       s,
	}
}

func inProgressTask(progress int) *store.Task {
	return &store.Task{
		ID:       "t1",
		Title:    "demo",
		Status:   store.TaskStatusInProgress,
		Progress: progress,
	}
}

func TestDecideMissingTaskFails(t *testing.T) {
	d := decide(nil, nil, monitoredAt(time.Now(), testSettings()), time.Now())
	if d.Outcome != OutcomeFail {
		t.Fatalf("outcome = %s, want fail", d.Outcome)
	}
}

func TestDecideIgnoresTasksNotInProgress(t *testing.T) {
	for _, status := range []string{store.TaskStatusBacklog, store.TaskStatusReview, store.TaskStatusDone, store.TaskStatusFailed} {
		task := inProgressTask(50)
		task.Status = status
		d := decide(task, nil, monitoredAt(time.Now(), testSettings()), time.Now())
		if d.Outcome != OutcomePending {
			t.Errorf("status %s: outcome = %s, want pending", status, d.Outcome)
		}
	}
}

func TestDecideFullProgressCompletes(t *testing.T) {
	now := time.Now()

	d := decide(inProgressTask(100), nil, monitoredAt(now, testSettings()), now)
	if d.Outcome != OutcomeComplete {
		t.Fatalf("outcome = %s, want complete", d.Outcome)
	}
	if d.TargetStatus != store.TaskStatusDone {
		t.Fatalf("target = %s, want done", d.TargetStatus)
	}

	s := testSettings()
	s.RequiresReview = true
	d = decide(inProgressTask(100), nil, monitoredAt(now, s), now)
	if d.TargetStatus != store.TaskStatusReview {
		t.Fatalf("target with review = %s, want review", d.TargetStatus)
	}
}

func TestDecideRunStates(t *testing.T) {
	now := time.Now()
	task := inProgressTask(40)
	task.RunID = "r1"
	mon := monitoredAt(now, testSettings())

	if d := decide(task, nil, mon, now); d.Outcome != OutcomePending {
		t.Fatalf("missing run: outcome = %s, want pending", d.Outcome)
	}

	run := &store.AgentRun{ID: "r1", TaskID: "t1", Status: store.RunStatusRunning}
	if d := decide(task, run, mon, now); d.Outcome != OutcomePending {
		t.Fatalf("running: outcome = %s, want pending", d.Outcome)
	}

	run.Status = store.RunStatusCompleted
	if d := decide(task, run, mon, now); d.Outcome != OutcomeComplete {
		t.Fatalf("completed: outcome = %s, want complete", d.Outcome)
	}
}

func TestDecideFailedRunRetriesUntilExhausted(t *testing.T) {
	now := time.Now()
	task := inProgressTask(40)
	task.RunID = "r1"
	run := &store.AgentRun{ID: "r1", TaskID: "t1", Status: store.RunStatusFailed}

	mon := monitoredAt(now, testSettings())
	mon.RetryCount = 2 // one attempt left of 3

	d := decide(task, run, mon, now)
	if d.Outcome != OutcomeRetry {
		t.Fatalf("outcome = %s, want retry", d.Outcome)
	}
	if !strings.Contains(d.Reason, "attempt 3 of 3") {
		t.Fatalf("reason = %q", d.Reason)
	}

	mon.RetryCount = 3
	d = decide(task, run, mon, now)
	if d.Outcome != OutcomeFail {
		t.Fatalf("outcome = %s, want fail", d.Outcome)
	}
	if d.TargetStatus != store.TaskStatusBacklog {
		t.Fatalf("target = %s, want backlog", d.TargetStatus)
	}
}

func TestDecideAutoCompleteAfterTimeout(t *testing.T) {
	s := testSettings()
	start := time.Now().Add(-6 * time.Minute)
	mon := monitoredAt(start, s)
	mon.LastProgressAt = time.Now().Add(-time.Minute)

	d := decide(inProgressTask(60), nil, mon, time.Now())
	if d.Outcome != OutcomeComplete {
		t.Fatalf("outcome = %s, want complete", d.Outcome)
	}

	// Zero progress never auto-completes.
	d = decide(inProgressTask(0), nil, mon, time.Now())
	if d.Outcome != OutcomePending {
		t.Fatalf("zero progress: outcome = %s, want pending", d.Outcome)
	}
}

func TestDecideStallBeatsAutoComplete(t *testing.T) {
	s := testSettings()
	start := time.Now().Add(-20 * time.Minute)
	mon := monitoredAt(start, s) // no progress signal for 20m > 2x timeout

	d := decide(inProgressTask(60), nil, mon, time.Now())
	if d.Outcome != OutcomeTimeout {
		t.Fatalf("outcome = %s, want timeout", d.Outcome)
	}
	if d.TargetStatus != store.TaskStatusBacklog {
		t.Fatalf("target = %s, want backlog", d.TargetStatus)
	}
}

func TestDecideAutoCompleteDisabled(t *testing.T) {
	s := testSettings()
	s.AutoComplete = false
	start := time.Now().Add(-time.Hour)
	mon := monitoredAt(start, s)

	d := decide(inProgressTask(60), nil, mon, time.Now())
	if d.Outcome != OutcomePending {
		t.Fatalf("outcome = %s, want pending", d.Outcome)
	}
}

func TestMergeOverrides(t *testing.T) {
	defaults := testSettings()

	got := merge(defaults, nil)
	if got != defaults {
		t.Fatalf("nil override changed settings: %+v", got)
	}

	review := true
	retries := 1
	got = merge(defaults, &Override{RequiresReview: &review, MaxRetries: &retries})
	if !got.RequiresReview || got.MaxRetries != 1 {
		t.Fatalf("override not applied: %+v", got)
	}
	if got.AutoCompleteTimeout != defaults.AutoCompleteTimeout {
		t.Fatalf("untouched field changed: %+v", got)
	}
}

type captureNotifier struct {
	taskID string
	reason string
}

func (c *captureNotifier) Escalate(taskID, reason string) {
	c.taskID = taskID
	c.reason = reason
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *swarm.Runtime) {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "apiary.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	rt := swarm.New(registry.New(), nil, nil, 100)
	e := New(s, rt, nil, nil, testSettings(), time.Hour)
	t.Cleanup(e.Shutdown)
	return e, s, rt
}

func TestEngineCompleteReleasesAgentAndStops(t *testing.T) {
	e, s, rt := newTestEngine(t)

	inst := rt.Spawn("coder", "p1", "")
	task := inProgressTask(100)
	if err := s.SaveTask(task); err != nil {
		t.Fatalf("save task: %v", err)
	}
	rt.AssignTask(inst.ID, task.ID)

	e.StartMonitoring(task.ID, nil)
	e.EvaluateAll()

	got, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != store.TaskStatusDone {
		t.Fatalf("status = %s, want done", got.Status)
	}
	if e.Monitored(task.ID) {
		t.Fatal("task still monitored after completion")
	}
	if rt.Get(inst.ID).TaskID != "" {
		t.Fatal("agent still assigned after completion")
	}
}

func TestEngineRetriesThenFailsToBacklog(t *testing.T) {
	e, s, _ := newTestEngine(t)

	run := &store.AgentRun{ID: "r1", TaskID: "t1", AgentID: "a1", Status: store.RunStatusFailed}
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	task := inProgressTask(40)
	task.RunID = "r1"
	if err := s.SaveTask(task); err != nil {
		t.Fatalf("save task: %v", err)
	}

	retries := 2
	e.StartMonitoring(task.ID, &Override{MaxRetries: &retries})

	e.EvaluateAll()
	if got := e.RetryCount(task.ID); got != 1 {
		t.Fatalf("retry count = %d, want 1", got)
	}
	e.EvaluateAll()
	if got := e.RetryCount(task.ID); got != 2 {
		t.Fatalf("retry count = %d, want 2", got)
	}

	// Retries exhausted: the task goes back to the backlog.
	e.EvaluateAll()
	got, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != store.TaskStatusBacklog {
		t.Fatalf("status = %s, want backlog", got.Status)
	}
	if e.Monitored(task.ID) {
		t.Fatal("task still monitored after failure")
	}
}

func TestEngineMarkComplete(t *testing.T) {
	e, s, _ := newTestEngine(t)

	task := inProgressTask(30)
	if err := s.SaveTask(task); err != nil {
		t.Fatalf("save task: %v", err)
	}
	e.StartMonitoring(task.ID, nil)

	if err := e.MarkComplete(task.ID, MarkCompleteOptions{MoveToReview: true}); err != nil {
		t.Fatalf("mark complete: %v", err)
	}

	got, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != store.TaskStatusReview {
		t.Fatalf("status = %s, want review", got.Status)
	}
	if e.Monitored(task.ID) {
		t.Fatal("task still monitored after manual completion")
	}
}

func TestEngineEscalateNotifiesAndKeepsMonitoring(t *testing.T) {
	e, s, _ := newTestEngine(t)
	sink := &captureNotifier{}
	e.notifier = sink

	task := inProgressTask(30)
	if err := s.SaveTask(task); err != nil {
		t.Fatalf("save task: %v", err)
	}
	e.StartMonitoring(task.ID, nil)

	e.Escalate(task.ID, "agent requested human review")

	if sink.taskID != task.ID || sink.reason == "" {
		t.Fatalf("escalation not delivered: %+v", sink)
	}
	if !e.Monitored(task.ID) {
		t.Fatal("escalation must not end monitoring")
	}
	got, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != store.TaskStatusInProgress {
		t.Fatalf("status = %s, escalation must not change it", got.Status)
	}
}

func TestEngineTouchProgress(t *testing.T) {
	e, s, _ := newTestEngine(t)

	task := inProgressTask(30)
	if err := s.SaveTask(task); err != nil {
		t.Fatalf("save task: %v", err)
	}
	e.StartMonitoring(task.ID, nil)

	e.mu.Lock()
	e.monitored[task.ID].LastProgressAt = time.Now().Add(-time.Hour)
	e.mu.Unlock()

	e.TouchProgress(task.ID)

	e.mu.Lock()
	since := time.Since(e.monitored[task.ID].LastProgressAt)
	e.mu.Unlock()
	if since > time.Minute {
		t.Fatalf("last progress not refreshed, %s ago", since)
	}
}

func TestEngineStartMonitoringIsIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t)

	retries := 5
	e.StartMonitoring("t1", &Override{MaxRetries: &retries})
	e.StartMonitoring("t1", nil)

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.order) != 1 {
		t.Fatalf("order length = %d, want 1", len(e.order))
	}
	if e.monitored["t1"].Settings.MaxRetries != 5 {
		t.Fatal("re-registration replaced the original settings")
	}
}
