package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/routepay/internal/clock"
	obsmetrics "github.com/smallbiznis/routepay/internal/observability/metrics"
	payrolldomain "github.com/smallbiznis/routepay/internal/payroll/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobRecalculatePayroll = "recalculate_payroll"

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	PayrollSvc payrolldomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock `optional:"true"`
	Config     Config      `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	payrollSvc payrolldomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.PayrollSvc == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      c,
		payrollSvc: p.PayrollSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.startRun(ctx, name)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.failures == 0 {
			run.record(0, 1)
		}
		s.finishRun(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up where this left off
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobRecalculatePayroll, s.isJobEnabled(JobRecalculatePayroll), func(ctx context.Context) error {
			return s.runJob(ctx, JobRecalculatePayroll, s.cfg.RecalcTimeout, s.RecalculatePayrollJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

// RunForever runs every RunInterval until ctx is done. It returns at once
// when the interval is not positive.
func (s *Scheduler) RunForever(ctx context.Context) {
	if s.cfg.RunInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

// RecalculatePayrollJob rebuilds payroll for every driver. Per-driver
// failures are counted, not returned.
func (s *Scheduler) RecalculatePayrollJob(ctx context.Context) error {
	res, err := s.payrollSvc.RecalculateAll(ctx)
	runFromContext(ctx).record(res.SuccessCount, res.ErrorCount)
	obsmetrics.Scheduler().AddBatchProcessed(JobRecalculatePayroll, "driver", res.SuccessCount)
	if err != nil {
		return err
	}
	if res.ErrorCount > 0 {
		s.logger(ctx).Warn("payroll recalculation had failures",
			zap.Int("success_count", res.SuccessCount),
			zap.Int("error_count", res.ErrorCount),
		)
	}
	return nil
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// an empty list enables every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
