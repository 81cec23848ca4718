// Package maintenance runs periodic housekeeping on a cron schedule:
// pruning old activity entries and retiring long-idle agents.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/mkefalas/apiary/internal/config"
	"github.com/mkefalas/apiary/internal/store"
	"github.com/mkefalas/apiary/internal/swarm"
)

type Sweeper struct {
	store   *store.Store
	runtime *swarm.Runtime
	cfg     config.MaintenanceConfig
	cron    *gronx.Gronx
}

func New(s *store.Store, rt *swarm.Runtime, cfg config.MaintenanceConfig) *Sweeper {
	return &Sweeper{
		store:   s,
		runtime: rt,
		cfg:     cfg,
		cron:    gronx.New(),
	}
}

// Start blocks until ctx is cancelled, firing a sweep whenever the cron
// expression matches the current minute.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	slog.Info("maintenance sweeper started", "schedule", s.cfg.Schedule)

	for {
		select {
		case <-ctx.Done():
			slog.Info("maintenance sweeper stopped")
			return
		case now := <-ticker.C:
			due, err := s.cron.IsDue(s.cfg.Schedule, now)
			if err != nil {
				slog.Error("invalid maintenance schedule", "schedule", s.cfg.Schedule, "error", err)
				return
			}
			if due {
				s.Sweep(now)
			}
		}
	}
}

// Sweep performs one housekeeping pass.
func (s *Sweeper) Sweep(now time.Time) {
	s.pruneActivity(now)
	s.retireIdleAgents(now)
	s.pruneOrphanMessages()
}

func (s *Sweeper) pruneActivity(now time.Time) {
	if s.cfg.ActivityRetention <= 0 {
		return
	}
	pruned, err := s.store.PruneActivity(now.Add(-s.cfg.ActivityRetention))
	if err != nil {
		slog.Error("activity prune failed", "error", err)
		return
	}
	if pruned > 0 {
		slog.Info("activity log pruned", "entries", pruned)
	}
}

// retireIdleAgents despawns agents that have been idle past the TTL.
// An agent's idle clock starts at its last completion, or at its first
// run for agents that never completed; agents that never ran carry no
// timestamp and are exempt from retirement.
func (s *Sweeper) retireIdleAgents(now time.Time) {
	if s.cfg.IdleAgentTTL <= 0 {
		return
	}

	for _, inst := range s.runtime.Idle() {
		idleSince := inst.StartedAt
		if inst.CompletedAt != nil {
			idleSince = inst.CompletedAt
		}
		if idleSince == nil || now.Sub(*idleSince) <= s.cfg.IdleAgentTTL {
			continue
		}

		s.runtime.ClearMessages(inst.ID)
		if s.runtime.Despawn(inst.ID) {
			slog.Info("idle agent retired", "agent", inst.ID, "template", inst.Template.ID)
		}
	}
}

// pruneOrphanMessages drops persisted messages addressed to agents that
// no longer exist. Broadcast messages are kept.
func (s *Sweeper) pruneOrphanMessages() {
	msgs, err := s.store.ListSwarmMessages()
	if err != nil {
		slog.Error("list persisted messages failed", "error", err)
		return
	}

	alive := make(map[string]bool)
	for _, inst := range s.runtime.All() {
		alive[inst.ID] = true
	}

	dropped := make(map[string]bool)
	for _, m := range msgs {
		if m.Receiver == swarm.Broadcast || alive[m.Receiver] || dropped[m.Receiver] {
			continue
		}
		if err := s.store.DeleteSwarmMessages(m.Receiver); err != nil {
			slog.Error("prune orphan messages failed", "receiver", m.Receiver, "error", err)
			continue
		}
		dropped[m.Receiver] = true
	}
	if len(dropped) > 0 {
		slog.Info("orphan messages pruned", "receivers", len(dropped))
	}
}
