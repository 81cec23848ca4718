package monitor

import (
	"fmt"
	"time"

	"github.com/mkefalas/apiary/internal/store"
)

// Outcome tags a completion decision. Pending and retry are the only
// non-terminal outcomes an evaluation can produce; escalate never
// terminates monitoring.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeComplete Outcome = "complete"
	OutcomeFail     Outcome = "fail"
	OutcomeRetry    Outcome = "retry"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeEscalate Outcome = "escalate"
)

// Terminal reports whether the outcome ends monitoring for the task.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeComplete, OutcomeFail, OutcomeTimeout:
		return true
	default:
		return false
	}
}

// Decision is the evaluated fate of a monitored task.
type Decision struct {
	Outcome      Outcome `json:"outcome"`
	TargetStatus string  `json:"target_status,omitempty"`
	Reason       string  `json:"reason"`
}

// Settings are the effective completion settings for one monitored task.
type Settings struct {
	AutoComplete         bool          `json:"auto_complete"`
	AutoCompleteTimeout  time.Duration `json:"auto_complete_timeout"`
	RequiresReview       bool          `json:"requires_review"`
	RequiresVerification bool          `json:"requires_verification"`
	MaxRetries           int           `json:"max_retries"`
	ExecuteSubtasks      bool          `json:"execute_subtasks"`
}

// Override carries per-task settings; nil fields fall back to defaults.
type Override struct {
	AutoComplete         *bool
	AutoCompleteTimeout  *time.Duration
	RequiresReview       *bool
	RequiresVerification *bool
	MaxRetries           *int
	ExecuteSubtasks      *bool
}

func merge(defaults Settings, o *Override) Settings {
	if o == nil {
		return defaults
	}
	s := defaults
	if o.AutoComplete != nil {
		s.AutoComplete = *o.AutoComplete
	}
	if o.AutoCompleteTimeout != nil {
		s.AutoCompleteTimeout = *o.AutoCompleteTimeout
	}
	if o.RequiresReview != nil {
		s.RequiresReview = *o.RequiresReview
	}
	if o.RequiresVerification != nil {
		s.RequiresVerification = *o.RequiresVerification
	}
	if o.MaxRetries != nil {
		s.MaxRetries = *o.MaxRetries
	}
	if o.ExecuteSubtasks != nil {
		s.ExecuteSubtasks = *o.ExecuteSubtasks
	}
	return s
}

// MonitoredTask is the engine's bookkeeping for one task under
// supervision.
type MonitoredTask struct {
	TaskID         string    `json:"task_id"`
	StartedAt      time.Time `json:"started_at"`
	LastProgressAt time.Time `json:"last_progress_at"`
	Settings       Settings  `json:"settings"`
	RetryCount     int       `json:"retry_count"`
}

// completionTarget is the status a completed task moves to.
func completionTarget(s Settings) string {
	if s.RequiresReview {
		return store.TaskStatusReview
	}
	return store.TaskStatusDone
}

// decide evaluates one monitored task against the external task record
// and its latest run. Pure: no clock reads, no mutation.
func decide(task *store.Task, run *store.AgentRun, mon *MonitoredTask, now time.Time) Decision {
	if task == nil {
		return Decision{Outcome: OutcomeFail, Reason: "task not found"}
	}

	if task.Status != store.TaskStatusInProgress {
		return Decision{Outcome: OutcomePending, Reason: "task not in progress"}
	}

	settings := mon.Settings

	if task.Progress >= 100 {
		return Decision{
			Outcome:      OutcomeComplete,
			TargetStatus: completionTarget(settings),
			Reason:       "progress reached 100%",
		}
	}

	if task.RunID != "" {
		switch {
		case run == nil:
			return Decision{Outcome: OutcomePending, Reason: "run record not found"}
		case run.Status == store.RunStatusCompleted:
			return Decision{
				Outcome:      OutcomeComplete,
				TargetStatus: completionTarget(settings),
				Reason:       "agent run completed",
			}
		case run.Status == store.RunStatusFailed:
			if mon.RetryCount < settings.MaxRetries {
				return Decision{
					Outcome: OutcomeRetry,
					Reason:  fmt.Sprintf("agent run failed, attempt %d of %d", mon.RetryCount+1, settings.MaxRetries),
				}
			}
			return Decision{
				Outcome:      OutcomeFail,
				TargetStatus: store.TaskStatusBacklog,
				Reason:       fmt.Sprintf("agent run failed after %d retries", settings.MaxRetries),
			}
		default:
			return Decision{Outcome: OutcomePending, Reason: "agent run in flight"}
		}
	}

	if settings.AutoComplete {
		elapsed := now.Sub(mon.StartedAt)
		sinceProgress := now.Sub(mon.LastProgressAt)

		// Stall detection wins over auto-completion: a task with no
		// progress signal for twice the timeout is stuck, not done.
		if sinceProgress > 2*settings.AutoCompleteTimeout {
			return Decision{
				Outcome:      OutcomeTimeout,
				TargetStatus: store.TaskStatusBacklog,
				Reason:       fmt.Sprintf("no progress for %s", sinceProgress.Round(time.Second)),
			}
		}
		if elapsed > settings.AutoCompleteTimeout && task.Progress > 0 {
			return Decision{
				Outcome:      OutcomeComplete,
				TargetStatus: completionTarget(settings),
				Reason:       fmt.Sprintf("auto-completed after %s with %d%% progress", elapsed.Round(time.Second), task.Progress),
			}
		}
	}

	return Decision{Outcome: OutcomePending, Reason: "awaiting progress"}
}
