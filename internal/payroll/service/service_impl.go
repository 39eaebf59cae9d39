package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/routepay/internal/clock"
	"github.com/smallbiznis/routepay/internal/config"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	"github.com/smallbiznis/routepay/internal/lock"
	"github.com/smallbiznis/routepay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/routepay/internal/observability/metrics"
	payrolldomain "github.com/smallbiznis/routepay/internal/payroll/domain"
	"github.com/smallbiznis/routepay/internal/payperiod"
	ratingdomain "github.com/smallbiznis/routepay/internal/rating/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultRecalcConcurrency = 4

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Cfg    config.Config
	GenID  *snowflake.Node
	Clock  clock.Clock                 `optional:"true"`
	Locker lock.Locker                 `optional:"true"`
	Policy *config.PayrollPolicyHolder `optional:"true"`

	Repo         payrolldomain.Repository
	DriverRepo   driverdomain.Repository
	DeliveryRepo deliverydomain.Repository
	Rating       ratingdomain.Service
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	locker lock.Locker
	policy *config.PayrollPolicyHolder
	loc    *time.Location

	concurrency int

	repo         payrolldomain.Repository
	driverRepo   driverdomain.Repository
	deliveryRepo deliverydomain.Repository
	rating       ratingdomain.Service
	metrics      *obsmetrics.Metrics
	jobMetrics   *obsmetrics.SchedulerMetrics
}

func New(p Params) payrolldomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	locker := p.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	concurrency := p.Cfg.Payroll.RecalcConcurrency
	if concurrency <= 0 {
		concurrency = defaultRecalcConcurrency
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("payroll.service"),
		genID:  p.GenID,
		clock:  c,
		locker: locker,
		policy: p.Policy,
		loc:    p.Cfg.Location(),

		concurrency: concurrency,

		repo:         p.Repo,
		driverRepo:   p.DriverRepo,
		deliveryRepo: p.DeliveryRepo,
		rating:       p.Rating,
		metrics:      p.Metrics,
		jobMetrics:   obsmetrics.Scheduler(),
	}
}

func (s *Service) RecalculateDriver(ctx context.Context, tx *gorm.DB, driverID snowflake.ID) (payrolldomain.RecalcResult, error) {
	var result payrolldomain.RecalcResult

	driver, err := s.driverRepo.FindByID(ctx, tx, driverID)
	if err != nil {
		return result, err
	}
	if driver == nil {
		return result, payrolldomain.ErrDriverNotFound
	}
	log := logger.WithDriver(s.log, driver.DriverCode)

	events, err := s.deliveryRepo.ListByLastEvent(ctx, tx, driverID, s.policy.Get().DeliveredEvent)
	if err != nil {
		return result, fmt.Errorf("load delivered events: %w", err)
	}
	existing, err := s.repo.ListByDriver(ctx, tx, driverID)
	if err != nil {
		return result, fmt.Errorf("load payroll records: %w", err)
	}
	if len(events) == 0 && len(existing) == 0 {
		result.Skipped = true
		return result, nil
	}

	idx, err := s.rating.LoadIndex(ctx, tx)
	if err != nil {
		return result, fmt.Errorf("load rates: %w", err)
	}
	policy := s.rating.PolicyFor(driver.DriverCode, driver.FullName)

	current := make(map[int]*payrolldomain.PayrollRecord, len(existing))
	for i := range existing {
		current[existing[i].PayPeriodKey] = &existing[i]
	}

	groups := groupByPeriod(events, s.loc)
	computations := make([]payrolldomain.Computation, 0, len(groups)+len(existing))
	for _, g := range groups {
		computations = append(computations, price(g, idx, driver.SalaryType, policy))
	}
	for key, rec := range current {
		if _, ok := groups[key]; ok {
			continue
		}
		period, err := payperiod.Unbucket(key)
		if err != nil {
			period = payperiod.Period{Key: key, Label: rec.PayPeriod, Start: rec.PeriodStart, End: rec.PeriodEnd}
		}
		computations = append(computations, emptyPeriod(period, rec.PayPolicy))
	}
	sort.Slice(computations, func(i, j int) bool {
		return computations[i].PayPeriodKey < computations[j].PayPeriodKey
	})

	for _, comp := range computations {
		var outcome string
		err := tx.Transaction(func(sp *gorm.DB) error {
			var applyErr error
			outcome, applyErr = s.apply(ctx, sp, driver, comp, current[comp.PayPeriodKey])
			return applyErr
		})
		if err != nil {
			result.Failed++
			s.jobMetrics.IncPeriodOutcome(obsmetrics.PayrollOutcomeFailed)
			log.Error("pay period aggregation failed",
				zap.Int("pay_period_key", comp.PayPeriodKey),
				zap.Error(err),
			)
			continue
		}
		s.jobMetrics.IncPeriodOutcome(outcome)
		switch outcome {
		case obsmetrics.PayrollOutcomeWritten:
			result.Written++
			s.metrics.RecordPayrollWrite(ctx, "upsert")
		case obsmetrics.PayrollOutcomeUnchanged:
			result.Unchanged++
		}
	}

	log.Debug("driver payroll recalculated",
		zap.Int("events", len(events)),
		zap.Int("periods", len(computations)),
		zap.Int("written", result.Written),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// apply upserts one period, keeping the stored deduction.
func (s *Service) apply(ctx context.Context, db *gorm.DB, driver *driverdomain.DriverProfile, comp payrolldomain.Computation, current *payrolldomain.PayrollRecord) (string, error) {
	now := s.clock.Now()
	if current == nil {
		rec := &payrolldomain.PayrollRecord{
			ID:              s.genID.Generate(),
			DriverID:        driver.ID,
			DriverCode:      driver.DriverCode,
			PayPeriodKey:    comp.PayPeriodKey,
			PayPeriod:       comp.PayPeriod,
			PeriodStart:     comp.PeriodStart,
			PeriodEnd:       comp.PeriodEnd,
			ZipBreakdown:    datatypes.NewJSONType(comp.Breakdown),
			TotalDeliveries: comp.TotalDeliveries,
			DaysWorked:      comp.DaysWorked,
			PayPolicy:       comp.PayPolicy,
			Amount:          comp.Amount,
			TotalDeduction:  decimal.Zero,
			NetPay:          comp.Amount,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.Insert(ctx, db, rec); err != nil {
			return "", err
		}
		return obsmetrics.PayrollOutcomeWritten, nil
	}

	if comp.Matches(*current) && current.DriverCode == driver.DriverCode {
		return obsmetrics.PayrollOutcomeUnchanged, nil
	}

	updated := *current
	updated.DriverCode = driver.DriverCode
	updated.PayPeriod = comp.PayPeriod
	updated.PeriodStart = comp.PeriodStart
	updated.PeriodEnd = comp.PeriodEnd
	updated.ZipBreakdown = datatypes.NewJSONType(comp.Breakdown)
	updated.TotalDeliveries = comp.TotalDeliveries
	updated.DaysWorked = comp.DaysWorked
	updated.PayPolicy = comp.PayPolicy
	updated.Amount = comp.Amount
	updated.NetPay = comp.Amount.Sub(current.TotalDeduction)
	updated.UpdatedAt = now
	if err := s.repo.UpdateContent(ctx, db, &updated); err != nil {
		return "", err
	}
	return obsmetrics.PayrollOutcomeWritten, nil
}

func (s *Service) DeleteByDriverAndDate(ctx context.Context, driverCode, date string) (payrolldomain.DeleteResult, error) {
	var result payrolldomain.DeleteResult

	driver, err := s.findDriver(ctx, driverCode)
	if err != nil {
		return result, err
	}
	day, err := deliverydomain.ParseDate(strings.TrimSpace(date), s.loc)
	if err != nil {
		return result, payrolldomain.ErrInvalidDate
	}

	release, err := s.locker.Lock(ctx, lock.DriverKey(driver.ID))
	if err != nil {
		return result, err
	}
	defer release()

	log := logger.WithDriver(s.log, driver.DriverCode)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from, to := payperiod.DayRange(day)
		deleted, err := s.deliveryRepo.DeleteCreatedBetween(ctx, tx, driver.ID, from, to)
		if err != nil {
			return err
		}
		result.DeletedUploads = deleted
		if deleted == 0 {
			return nil
		}

		period := payperiod.Bucket(day)
		remaining, err := s.deliveryRepo.CountCreatedBetween(ctx, tx, driver.ID, period.Start, period.End.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		if remaining == 0 {
			removed, err := s.repo.DeleteByDriverPeriod(ctx, tx, driver.ID, period.Key)
			if err != nil {
				return err
			}
			if removed > 0 {
				result.DeletedPayroll = &payrolldomain.PeriodRef{PayPeriodKey: period.Key, PayPeriod: period.Label}
				s.jobMetrics.IncPeriodOutcome(obsmetrics.PayrollOutcomeDeleted)
				s.metrics.RecordPayrollWrite(ctx, "delete")
			}
			return nil
		}

		if _, err := s.RecalculateDriver(ctx, tx, driver.ID); err != nil {
			return err
		}
		result.Recalculated = true
		return nil
	})
	if err != nil {
		return payrolldomain.DeleteResult{}, err
	}

	log.Info("deliveries deleted for date",
		zap.String("date", day.Format(deliverydomain.DateLayout)),
		zap.Int64("deleted_uploads", result.DeletedUploads),
		zap.Bool("payroll_deleted", result.DeletedPayroll != nil),
		zap.Bool("recalculated", result.Recalculated),
	)
	return result, nil
}

func (s *Service) RecalculateAll(ctx context.Context) (payrolldomain.RecalcAllResult, error) {
	drivers, err := s.driverRepo.ListPayable(ctx, s.db)
	if err != nil {
		return payrolldomain.RecalcAllResult{}, err
	}

	var success, failed, failedPeriods atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, driver := range drivers {
		g.Go(func() error {
			res, err := s.recalculateLocked(gctx, driver)
			if err != nil {
				failed.Add(1)
				logger.WithDriver(s.log, driver.DriverCode).Error("driver recalculation failed", zap.Error(err))
				return nil
			}
			// Periods that failed inside RecalculateDriver were rolled back
			// to their savepoint; the driver still counts as an error.
			if res.Failed > 0 {
				failed.Add(1)
				failedPeriods.Add(int64(res.Failed))
				logger.WithDriver(s.log, driver.DriverCode).Error("driver recalculation left periods stale",
					zap.Int("failed_periods", res.Failed),
					zap.Int("written", res.Written),
				)
				return nil
			}
			success.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result := payrolldomain.RecalcAllResult{
		SuccessCount:  int(success.Load()),
		ErrorCount:    int(failed.Load()),
		FailedPeriods: int(failedPeriods.Load()),
	}
	s.log.Info("payroll recalculated for all drivers",
		zap.Int("drivers", len(drivers)),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("error_count", result.ErrorCount),
		zap.Int("failed_periods", result.FailedPeriods),
	)
	return result, nil
}

func (s *Service) recalculateLocked(ctx context.Context, driver driverdomain.DriverProfile) (payrolldomain.RecalcResult, error) {
	started := time.Now()
	defer func() { s.jobMetrics.ObserveDriverRecalc(time.Since(started)) }()

	var res payrolldomain.RecalcResult
	release, err := s.locker.Lock(ctx, lock.DriverKey(driver.ID))
	if err != nil {
		return res, err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.RecalculateDriver(ctx, tx, driver.ID)
		return err
	})
	return res, err
}

func (s *Service) ListByDriver(ctx context.Context, driverCode string) ([]payrolldomain.PayrollRecord, error) {
	driver, err := s.findDriver(ctx, driverCode)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListByDriver(ctx, s.db, driver.ID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []payrolldomain.PayrollRecord{}
	}
	return records, nil
}

func (s *Service) UpdateDeduction(ctx context.Context, req payrolldomain.UpdateDeductionRequest) (*payrolldomain.PayrollRecord, error) {
	if req.TotalDeduction.IsNegative() {
		return nil, payrolldomain.ErrInvalidDeduction
	}
	period, err := payperiod.Unbucket(req.PayPeriodKey)
	if err != nil {
		return nil, payrolldomain.ErrInvalidPeriodKey
	}
	driver, err := s.findDriver(ctx, req.DriverCode)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, lock.DriverKey(driver.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	deduction := req.TotalDeduction.Round(2)
	var out *payrolldomain.PayrollRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		rec, err := s.repo.FindByDriverPeriod(ctx, tx, driver.ID, period.Key)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &payrolldomain.PayrollRecord{
				ID:             s.genID.Generate(),
				DriverID:       driver.ID,
				DriverCode:     driver.DriverCode,
				PayPeriodKey:   period.Key,
				PayPeriod:      period.Label,
				PeriodStart:    period.Start,
				PeriodEnd:      period.End,
				ZipBreakdown:   datatypes.NewJSONType([]payrolldomain.ZipLine{}),
				PayPolicy:      s.rating.PolicyFor(driver.DriverCode, driver.FullName).Kind,
				Amount:         decimal.Zero,
				TotalDeduction: deduction,
				NetPay:         deduction.Neg(),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.repo.Insert(ctx, tx, rec); err != nil {
				return err
			}
			out = rec
			return nil
		}

		rec.TotalDeduction = deduction
		rec.NetPay = rec.Amount.Sub(deduction)
		rec.UpdatedAt = now
		if err := s.repo.UpdateDeduction(ctx, tx, rec.ID, rec.TotalDeduction, rec.NetPay, now); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPayrollWrite(ctx, "deduction")
	return out, nil
}

func (s *Service) findDriver(ctx context.Context, driverCode string) (*driverdomain.DriverProfile, error) {
	code := driverdomain.NormalizeCode(driverCode)
	if code == "" {
		return nil, payrolldomain.ErrInvalidDriverCode
	}
	driver, err := s.driverRepo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, payrolldomain.ErrDriverNotFound
	}
	return driver, nil
}
