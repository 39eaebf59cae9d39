package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/routepay/internal/observability/context"
	obslogger "github.com/smallbiznis/routepay/internal/observability/logger"
	"go.uber.org/zap"
)

// jobRun tallies one scheduled job execution. Nested runJob calls share
// the outermost run so a tick logs a single start and finish pair.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	drivers   int
	failures  int
}

type jobRunKey struct{}

func (r *jobRun) record(succeeded, failed int) {
	if r == nil {
		return
	}
	if succeeded > 0 {
		r.drivers += succeeded
	}
	if failed > 0 {
		r.failures += failed
	}
}

func (s *Scheduler) startRun(ctx context.Context, job string) (context.Context, *jobRun, bool) {
	if existing := runFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithJobRun(ctx, run.job, run.runID)
	s.logger(ctx).Info("scheduler.job.start")
	return ctx, run, true
}

func runFromContext(ctx context.Context) *jobRun {
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("drivers_recalculated", run.drivers),
		zap.Int("driver_failures", run.failures),
	}
	if run.failures > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}
