package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tasktrack/pkg/observability"
)

// DefaultPruneSchedule runs the prune job hourly
const DefaultPruneSchedule = "0 * * * *"

// Pruner runs Manager.Prune on a cron schedule
type Pruner struct {
	cron    *cron.Cron
	manager *Manager
	logger  *observability.Logger
	timeout time.Duration
}

// NewPruner validates schedule and registers the prune job. Call Start to run it.
func NewPruner(manager *Manager, schedule string, logger *observability.Logger) (*Pruner, error) {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}

	p := &Pruner{
		cron:    cron.New(),
		manager: manager,
		logger:  logger,
		timeout: time.Minute,
	}
	if _, err := p.cron.AddFunc(schedule, p.run); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

func (p *Pruner) Start() {
	p.cron.Start()
	p.logger.WithField("max_age", p.manager.MaxAge().String()).Info("session prune job started")
}

// Stop halts the scheduler. The returned context is done once a running job finishes.
func (p *Pruner) Stop() context.Context {
	return p.cron.Stop()
}

func (p *Pruner) run() {
	defer observability.RecoverPanic(p.logger, "session prune")

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	pruned, err := p.manager.Prune(ctx)
	if err != nil {
		p.logger.WithError(err).Error("session prune failed")
		return
	}
	if pruned > 0 {
		p.logger.WithField("pruned", pruned).Info("pruned expired session tokens")
	}
}
