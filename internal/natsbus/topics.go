package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicAgentEvents(agentID string) string {
	return fmt.Sprintf("events.agent.%s", agentID)
}

func TopicTaskEvents(taskID string) string {
	return fmt.Sprintf("events.task.%s", taskID)
}

func TopicDecision(taskID string) string {
	return fmt.Sprintf("events.decision.%s", taskID)
}

func TopicSwarmChat(projectID string) string {
	return fmt.Sprintf("swarm.%s.chat", projectID)
}

// TopicEventsAll matches every event topic; the web layer fans these
// out to websocket subscribers.
const TopicEventsAll = "events.>"
