package swarm

import (
	"path/filepath"
	"testing"

	"github.com/mkefalas/apiary/internal/registry"
	"github.com/mkefalas/apiary/internal/store"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	return New(registry.New(), nil, nil, 100)
}

func newPersistedRuntime(t *testing.T) (*Runtime, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(registry.New(), s, nil, 100), s
}

func TestSpawnUnknownTemplate(t *testing.T) {
	rt := newTestRuntime(t)
	if inst := rt.Spawn("nonexistent", "", ""); inst != nil {
		t.Errorf("expected nil for unknown template, got %+v", inst)
	}
}

func TestSpawnDespawnRestoresState(t *testing.T) {
	rt := newTestRuntime(t)

	for _, id := range []string{"orchestrator", "planner", "researcher", "architect", "coder", "reviewer", "tester", "formatter", "docwriter"} {
		before := len(rt.All())

		inst := rt.Spawn(id, "", "")
		if inst == nil {
			t.Fatalf("spawn %s returned nil", id)
		}
		if len(rt.All()) != before+1 {
			t.Fatalf("expected %d instances after spawn", before+1)
		}

		if !rt.Despawn(inst.ID) {
			t.Fatalf("despawn %s failed", id)
		}
		if len(rt.All()) != before {
			t.Fatalf("expected %d instances after despawn", before)
		}
	}
}

func TestSpawnParentLinking(t *testing.T) {
	rt := newTestRuntime(t)

	parent := rt.Spawn("orchestrator", "p1", "")
	child := rt.Spawn("coder", "p1", parent.ID)

	if child.ParentID != parent.ID {
		t.Errorf("expected parent %s, got %q", parent.ID, child.ParentID)
	}
	got := rt.Get(parent.ID)
	if len(got.Children) != 1 || got.Children[0] != child.ID {
		t.Errorf("expected child list [%s], got %v", child.ID, got.Children)
	}
}

// Despawning a coordinator must orphan its children and remove the
// coordinator entirely.
func TestDespawnCoordinatorOrphansChildren(t *testing.T) {
	rt := newTestRuntime(t)

	coord := rt.Spawn("orchestrator", "p1", "")
	var specialists []*AgentInstance
	for _, id := range []string{"planner", "researcher", "coder"} {
		specialists = append(specialists, rt.Spawn(id, "p1", coord.ID))
	}

	if !rt.Despawn(coord.ID) {
		t.Fatal("despawn coordinator failed")
	}
	if rt.Get(coord.ID) != nil {
		t.Error("coordinator still present")
	}
	for _, sp := range specialists {
		got := rt.Get(sp.ID)
		if got == nil {
			t.Fatalf("specialist %s vanished", sp.ID)
		}
		if got.ParentID != "" {
			t.Errorf("expected empty parent for %s, got %q", sp.ID, got.ParentID)
		}
	}
}

func TestDespawnClearsAssignment(t *testing.T) {
	rt := newTestRuntime(t)

	inst := rt.Spawn("coder", "", "")
	rt.AssignTask(inst.ID, "task-1")

	if _, ok := rt.AssignmentFor("task-1"); !ok {
		t.Fatal("expected assignment")
	}
	rt.Despawn(inst.ID)
	if _, ok := rt.AssignmentFor("task-1"); ok {
		t.Error("expected assignment removed with instance")
	}
}

func TestAssignUnassignRoundTrip(t *testing.T) {
	rt := newTestRuntime(t)

	inst := rt.Spawn("coder", "", "")
	if !rt.AssignTask(inst.ID, "task-1") {
		t.Fatal("assign failed")
	}

	got := rt.Get(inst.ID)
	if got.Status != StatusRunning {
		t.Errorf("expected running, got %q", got.Status)
	}
	if got.TaskID != "task-1" {
		t.Errorf("expected task-1, got %q", got.TaskID)
	}
	if got.StartedAt == nil {
		t.Error("expected started_at stamped")
	}

	if !rt.UnassignTask(inst.ID) {
		t.Fatal("unassign failed")
	}
	got = rt.Get(inst.ID)
	if got.Status != StatusIdle {
		t.Errorf("expected idle after unassign, got %q", got.Status)
	}
	if got.TaskID != "" {
		t.Errorf("expected empty task, got %q", got.TaskID)
	}
	if _, ok := rt.AssignmentFor("task-1"); ok {
		t.Error("expected assignment removed")
	}
}

func TestReassignDropsPreviousMapping(t *testing.T) {
	rt, s := newPersistedRuntime(t)

	inst := rt.Spawn("coder", "", "")
	if !rt.AssignTask(inst.ID, "task-1") {
		t.Fatal("assign task-1 failed")
	}
	if !rt.AssignTask(inst.ID, "task-2") {
		t.Fatal("assign task-2 failed")
	}

	if _, ok := rt.AssignmentFor("task-1"); ok {
		t.Error("expected task-1 mapping removed after reassign")
	}
	agentID, ok := rt.AssignmentFor("task-2")
	if !ok || agentID != inst.ID {
		t.Errorf("expected task-2 mapped to %s, got %q ok=%v", inst.ID, agentID, ok)
	}
	if got := rt.Get(inst.ID); got.TaskID != "task-2" {
		t.Errorf("expected task-2, got %q", got.TaskID)
	}

	persisted, err := s.ListAssignments()
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(persisted) != 1 || persisted["task-2"] != inst.ID {
		t.Fatalf("expected only task-2 persisted, got %v", persisted)
	}
}

func TestUpdateStatusTimestamps(t *testing.T) {
	rt := newTestRuntime(t)
	inst := rt.Spawn("tester", "", "")

	rt.UpdateStatus(inst.ID, StatusRunning, "")
	first := rt.Get(inst.ID).StartedAt
	if first == nil {
		t.Fatal("expected started_at on running")
	}

	// Idempotent: a second running transition keeps the original stamp
	rt.UpdateStatus(inst.ID, StatusRunning, "")
	if got := rt.Get(inst.ID).StartedAt; !got.Equal(*first) {
		t.Error("started_at changed on repeated running transition")
	}

	rt.UpdateStatus(inst.ID, StatusError, "build failed")
	got := rt.Get(inst.ID)
	if got.CompletedAt == nil {
		t.Error("expected completed_at on error")
	}
	if got.Error != "build failed" {
		t.Errorf("expected error recorded, got %q", got.Error)
	}
}

func TestUpdateProgressAccumulates(t *testing.T) {
	rt := newTestRuntime(t)
	inst := rt.Spawn("coder", "", "")

	rt.UpdateProgress(inst.ID, 1000, 0.01)
	rt.UpdateProgress(inst.ID, 500, 0.005)

	got := rt.Get(inst.ID)
	if got.TokensUsed != 1500 {
		t.Errorf("expected 1500 tokens, got %d", got.TokensUsed)
	}

	tokens, cost := rt.Totals()
	if tokens != 1500 {
		t.Errorf("expected total 1500, got %d", tokens)
	}
	if cost < 0.0149 || cost > 0.0151 {
		t.Errorf("expected cost ~0.015, got %f", cost)
	}
}

func TestQueries(t *testing.T) {
	rt := newTestRuntime(t)

	rt.Spawn("orchestrator", "p1", "")
	c1 := rt.Spawn("coder", "p1", "")
	rt.Spawn("coder", "p2", "")
	rt.AssignTask(c1.ID, "t1")

	if got := rt.ByArchetype(registry.ArchetypeCoder); len(got) != 2 {
		t.Errorf("expected 2 coders, got %d", len(got))
	}
	if got := rt.ByTier(registry.TierStrategic); len(got) != 1 {
		t.Errorf("expected 1 T1, got %d", len(got))
	}
	if got := rt.ByProject("p1"); len(got) != 2 {
		t.Errorf("expected 2 in p1, got %d", len(got))
	}
	if got := rt.Running(); len(got) != 1 {
		t.Errorf("expected 1 running, got %d", len(got))
	}
	if got := rt.Idle(); len(got) != 2 {
		t.Errorf("expected 2 idle, got %d", len(got))
	}

	stats := rt.Stats()
	if stats.Total != 3 || stats.Running != 1 || stats.Idle != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.ByTier[registry.TierSpecialist] != 2 {
		t.Errorf("expected 2 T2 in stats, got %d", stats.ByTier[registry.TierSpecialist])
	}
}

func TestFindIdlePrefersProject(t *testing.T) {
	rt := newTestRuntime(t)

	other := rt.Spawn("coder", "p2", "")
	mine := rt.Spawn("coder", "p1", "")

	got := rt.FindIdle("coder", "p1")
	if got == nil || got.ID != mine.ID {
		t.Errorf("expected project-scoped instance %s, got %+v", mine.ID, got)
	}

	// Without a project match any idle instance serves
	got = rt.FindIdle("coder", "p3")
	if got == nil {
		t.Fatal("expected fallback idle instance")
	}
	_ = other
}

func TestMessaging(t *testing.T) {
	rt := newTestRuntime(t)

	a := rt.Spawn("orchestrator", "", "")
	b := rt.Spawn("coder", "", "")

	msg := rt.SendMessage(MsgTaskAssign, a.ID, b.ID, map[string]any{"role": "support"}, "t1")
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Error("expected stamped message")
	}
	rt.SendMessage(MsgProgressUpdate, b.ID, Broadcast, nil, "")

	forB := rt.MessagesFor(b.ID)
	if len(forB) != 2 {
		t.Fatalf("expected direct + broadcast = 2 messages, got %d", len(forB))
	}
	forA := rt.MessagesFor(a.ID)
	if len(forA) != 1 {
		t.Errorf("expected only broadcast for sender, got %d", len(forA))
	}

	rt.ClearMessages(b.ID)
	if got := rt.MessagesFor(b.ID); len(got) != 1 {
		t.Errorf("expected only broadcast left, got %d", len(got))
	}
	rt.ClearMessages("")
	if got := rt.MessagesFor(b.ID); len(got) != 0 {
		t.Errorf("expected empty queue, got %d", len(got))
	}
}

func TestMessageRetentionCap(t *testing.T) {
	rt := New(registry.New(), nil, nil, 5)
	a := rt.Spawn("coder", "", "")

	for i := 0; i < 10; i++ {
		rt.SendMessage(MsgProgressUpdate, a.ID, Broadcast, nil, "")
	}
	if got := rt.MessagesFor(a.ID); len(got) != 5 {
		t.Errorf("expected retention cap 5, got %d", len(got))
	}
}

func TestStopDemotesRunning(t *testing.T) {
	rt := newTestRuntime(t)

	inst := rt.Spawn("coder", "", "")
	idle := rt.Spawn("tester", "", "")
	rt.AssignTask(inst.ID, "t1")

	rt.Start()
	if !rt.IsRunning() {
		t.Fatal("expected running swarm")
	}
	rt.Stop()
	if rt.IsRunning() {
		t.Fatal("expected stopped swarm")
	}

	if got := rt.Get(inst.ID); got.Status != StatusPaused {
		t.Errorf("expected paused, got %q", got.Status)
	}
	if got := rt.Get(idle.ID); got.Status != StatusIdle {
		t.Errorf("expected idle untouched, got %q", got.Status)
	}
}

func TestReset(t *testing.T) {
	rt := newTestRuntime(t)

	a := rt.Spawn("coder", "", "")
	rt.AssignTask(a.ID, "t1")
	rt.SendMessage(MsgQuery, a.ID, Broadcast, nil, "")

	rt.Reset()
	if len(rt.All()) != 0 {
		t.Error("expected no instances after reset")
	}
	if _, ok := rt.AssignmentFor("t1"); ok {
		t.Error("expected no assignments after reset")
	}
	if got := rt.MessagesFor(a.ID); len(got) != 0 {
		t.Error("expected no messages after reset")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	rt, s := newPersistedRuntime(t)

	parent := rt.Spawn("orchestrator", "p1", "")
	child := rt.Spawn("coder", "p1", parent.ID)
	rt.AssignTask(child.ID, "t1")
	rt.UpdateProgress(child.ID, 800, 0.002)
	rt.SendMessage(MsgTaskAssign, parent.ID, child.ID, map[string]any{"role": "support"}, "t1")

	// Fresh runtime over the same store simulates a restart
	restored := New(registry.New(), s, nil, 100)
	if err := restored.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	got := restored.Get(child.ID)
	if got == nil {
		t.Fatal("child not restored")
	}
	if got.ParentID != parent.ID {
		t.Errorf("parent link not restored: %q", got.ParentID)
	}
	if got.TokensUsed != 800 {
		t.Errorf("tokens not restored: %d", got.TokensUsed)
	}
	if got.Status != StatusRunning || got.TaskID != "t1" {
		t.Errorf("assignment state not restored: %q %q", got.Status, got.TaskID)
	}

	if id, ok := restored.AssignmentFor("t1"); !ok || id != child.ID {
		t.Errorf("assignment map not restored: %q %v", id, ok)
	}
	if msgs := restored.MessagesFor(child.ID); len(msgs) != 1 {
		t.Errorf("expected 1 restored message, got %d", len(msgs))
	}
}
