package natsbus

import (
	"testing"
	"time"

	"github.com/mkefalas/apiary/internal/config"
	"github.com/nats-io/nats.go"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := New(config.NATSConfig{
		Port:    -1, // random available port
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	t.Cleanup(bus.Close)
	return bus
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus(t)

	client, err := NewClient(bus)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close()

	received := make(chan []byte, 1)
	sub, err := client.Subscribe(TopicTaskEvents("t1"), func(msg *nats.Msg) {
		received <- msg.Data
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := client.PublishJSON(TopicTaskEvents("t1"), map[string]string{"type": "task_assigned"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = client.Flush()

	select {
	case data := <-received:
		if len(data) == 0 {
			t.Error("expected event payload")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestTopicHelpers(t *testing.T) {
	if got := TopicAgentEvents("a1"); got != "events.agent.a1" {
		t.Errorf("unexpected topic %q", got)
	}
	if got := TopicDecision("t1"); got != "events.decision.t1" {
		t.Errorf("unexpected topic %q", got)
	}
	if got := TopicSwarmChat("p1"); got != "swarm.p1.chat" {
		t.Errorf("unexpected topic %q", got)
	}
}
