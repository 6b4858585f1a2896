/*
runner.go - Cron-driven execution of the maintenance passes

Wraps the coordinator in a robfig/cron schedule so the three passes run
unattended. The pass order within a run matters: due dates roll forward
first so settlement sees the accumulated outstanding, and schedules are
extended last so the next run always has lookahead to roll into.
*/
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/warp/charge-engine/calendar"
)

// RunnerConfig carries the cron expression and the per-run timeout.
type RunnerConfig struct {
	// Schedule is a standard 5-field cron expression. Defaults to
	// midnight daily.
	Schedule string

	// Timeout bounds one full run (all three passes). Defaults to 10
	// minutes.
	Timeout time.Duration

	// LookaheadFloor is passed to ExtendSchedules. Defaults to
	// DefaultLookaheadFloor.
	LookaheadFloor int
}

func (cfg RunnerConfig) withDefaults() RunnerConfig {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 0 * * *"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.LookaheadFloor < 1 {
		cfg.LookaheadFloor = DefaultLookaheadFloor
	}
	return cfg
}

// Runner schedules coordinator runs.
type Runner struct {
	Coordinator *Coordinator
	Config      RunnerConfig

	log  *logrus.Logger
	cron *cron.Cron
	mu   sync.Mutex
}

func NewRunner(coordinator *Coordinator, cfg RunnerConfig, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		Coordinator: coordinator,
		Config:      cfg.withDefaults(),
		log:         log,
	}
}

// Start registers the cron entry and begins scheduling. Returns the
// parse error for an invalid cron expression.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := cron.New()
	if _, err := c.AddFunc(r.Config.Schedule, r.RunOnce); err != nil {
		return err
	}
	c.Start()
	r.cron = c

	r.log.WithField("schedule", r.Config.Schedule).Info("batch runner started")
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
	r.log.Info("batch runner stopped")
}

// RunOnce executes all three passes for today. Exposed so an admin
// endpoint can trigger a run outside the schedule.
func (r *Runner) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.Config.Timeout)
	defer cancel()

	asOf := calendar.Today()
	started := time.Now()

	if _, err := r.Coordinator.RollDueDatesForward(ctx, asOf); err != nil {
		r.log.WithError(err).Error("roll-due-dates pass aborted")
		return
	}
	if _, err := r.Coordinator.SettleDueCharges(ctx, asOf); err != nil {
		r.log.WithError(err).Error("settle-due-charges pass aborted")
		return
	}
	if _, err := r.Coordinator.ExtendSchedules(ctx, asOf, r.Config.LookaheadFloor); err != nil {
		r.log.WithError(err).Error("extend-schedules pass aborted")
		return
	}

	r.log.WithField("took", time.Since(started).String()).Info("batch run finished")
}
