// Package scheduler is the beat: it submits the periodic reconciliation
// tasks to the queue on their configured intervals. Execution happens
// on the worker tier; the beat only enqueues.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/studygrove/studygrove/internal/clock"
	"github.com/studygrove/studygrove/internal/config"
	obsmetrics "github.com/studygrove/studygrove/internal/observability/metrics"
	"github.com/studygrove/studygrove/internal/tasks"
)

// tickInterval is the beat granularity. Job intervals are multiples of
// seconds, so a few-second tick keeps due times accurate enough.
const tickInterval = 5 * time.Second

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log      *zap.Logger
	Enqueuer *tasks.Enqueuer
	JobsCfg  *config.JobsConfigHolder
	Clock    clock.Clock
}

type job struct {
	name     string
	topic    string
	interval func(config.JobsConfig) time.Duration
	payload  func() any
	nextDue  time.Time
}

type Scheduler struct {
	log      *zap.Logger
	enqueuer *tasks.Enqueuer
	jobsCfg  *config.JobsConfigHolder
	clock    clock.Clock
	jobs     []*job
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Enqueuer == nil || p.JobsCfg == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		enqueuer: p.Enqueuer,
		jobsCfg:  p.JobsCfg,
		clock:    p.Clock,
		jobs: []*job{
			{
				name:     "sync_presence",
				topic:    tasks.TopicSyncPresence,
				interval: func(c config.JobsConfig) time.Duration { return c.PresenceSyncInterval },
				payload:  func() any { return tasks.SyncPresencePayload{} },
			},
			{
				name:     "reconcile_counters",
				topic:    tasks.TopicReconcileCounters,
				interval: func(c config.JobsConfig) time.Duration { return c.CounterReconcileInterval },
				payload:  func() any { return tasks.ReconcileCountersPayload{} },
			},
		},
	}, nil
}

// RunOnce submits every enabled job whose due time has passed. The
// interval is re-read from the hot-reloadable config on each pass.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	cfg := s.jobsCfg.Current()
	now := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()

	var err error
	for _, j := range s.jobs {
		if !isJobEnabled(cfg, j.name) {
			continue
		}
		if j.nextDue.IsZero() {
			// First pass submits immediately so a restart never waits a
			// full interval to heal.
			j.nextDue = now
		}
		if now.Before(j.nextDue) {
			continue
		}

		start := time.Now()
		schedMetrics.IncJobRun(j.name)
		runErr := s.enqueuer.Enqueue(ctx, j.topic, j.payload())
		schedMetrics.ObserveJobDuration(j.name, time.Since(start))
		if runErr != nil {
			schedMetrics.IncJobError(j.name)
			s.log.Warn("job submission failed",
				zap.String("job", j.name), zap.Error(runErr))
			err = errors.Join(err, runErr)
		} else {
			s.log.Debug("job submitted", zap.String("job", j.name))
		}
		j.nextDue = now.Add(j.interval(cfg))
	}
	return err
}

// RunForever ticks RunOnce until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(tickInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(tickInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func isJobEnabled(cfg config.JobsConfig, jobName string) bool {
	if len(cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
