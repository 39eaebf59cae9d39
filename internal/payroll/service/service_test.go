package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/routepay/internal/clock"
	"github.com/smallbiznis/routepay/internal/config"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	deliveryrepository "github.com/smallbiznis/routepay/internal/delivery/repository"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	driverrepository "github.com/smallbiznis/routepay/internal/driver/repository"
	payrolldomain "github.com/smallbiznis/routepay/internal/payroll/domain"
	payrollrepository "github.com/smallbiznis/routepay/internal/payroll/repository"
	"github.com/smallbiznis/routepay/internal/payperiod"
	ratingservice "github.com/smallbiznis/routepay/internal/rating/service"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	routerepository "github.com/smallbiznis/routepay/internal/route/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db      *gorm.DB
	node    *snowflake.Node
	svc     payrolldomain.Service
	repo    payrolldomain.Repository
	drivers driverdomain.Repository
	events  deliverydomain.Repository
	routes  routedomain.Repository
	clock   *clock.FakeClock
}

func newHarness(t *testing.T, policy config.PayrollPolicy) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&driverdomain.DriverProfile{},
		&deliverydomain.DeliveryEvent{},
		&routedomain.Route{},
		&payrolldomain.PayrollRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		db:      db,
		node:    node,
		repo:    payrollrepository.Provide(),
		drivers: driverrepository.Provide(),
		events:  deliveryrepository.Provide(),
		routes:  routerepository.Provide(),
		clock:   clock.NewFakeClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)),
	}
	holder := config.NewStaticPayrollPolicyHolder(policy)
	rating := ratingservice.NewService(ratingservice.ServiceParam{
		Log:       zap.NewNop(),
		RouteRepo: h.routes,
		Policy:    holder,
	})
	h.svc = New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		Cfg:          config.Config{Payroll: config.PayrollConfig{RecalcConcurrency: 2}},
		GenID:        node,
		Clock:        h.clock,
		Policy:       holder,
		Repo:         h.repo,
		DriverRepo:   h.drivers,
		DeliveryRepo: h.events,
		Rating:       rating,
	})
	return h
}

func (h *harness) addRoute(t *testing.T, name, zips, perStop, companyVehicle string) {
	t.Helper()
	now := h.clock.Now()
	require.NoError(t, h.routes.Insert(context.Background(), h.db, &routedomain.Route{
		ID:                        h.node.Generate(),
		Code:                      name,
		Name:                      name,
		ZipCodes:                  zips,
		RatePerStop:               decimal.RequireFromString(perStop),
		RatePerStopCompanyVehicle: decimal.RequireFromString(companyVehicle),
		BaseRate:                  decimal.RequireFromString("90"),
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}))
}

func (h *harness) addDriver(t *testing.T, code, name, salaryType string) driverdomain.DriverProfile {
	t.Helper()
	now := h.clock.Now()
	d := driverdomain.DriverProfile{ID: h.node.Generate(), DriverCode: code, FullName: name, SalaryType: salaryType, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, h.drivers.Insert(context.Background(), h.db, &d))
	return d
}

func (h *harness) addEvent(t *testing.T, driver driverdomain.DriverProfile, barcode, zip, lastEvent string, at time.Time) {
	t.Helper()
	z := zip
	ok, err := h.events.InsertIgnore(context.Background(), h.db, &deliverydomain.DeliveryEvent{
		ID:            h.node.Generate(),
		DriverID:      driver.ID,
		Barcode:       barcode,
		UploadBatchID: "batch",
		Address:       "somewhere",
		Status:        deliverydomain.StatusMatch,
		ZipCode:       &z,
		LastEvent:     lastEvent,
		CreatedAt:     at,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func (h *harness) recalc(t *testing.T, driver driverdomain.DriverProfile) payrolldomain.RecalcResult {
	t.Helper()
	var res payrolldomain.RecalcResult
	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = h.svc.RecalculateDriver(context.Background(), tx, driver.ID)
		return err
	}))
	return res
}

func (h *harness) record(t *testing.T, driver driverdomain.DriverProfile, key int) *payrolldomain.PayrollRecord {
	t.Helper()
	rec, err := h.repo.FindByDriverPeriod(context.Background(), h.db, driver.ID, key)
	require.NoError(t, err)
	return rec
}

// Tuesday 2025-03-04 sits in the period 03/01/2025 - 03/07/2025.
var tuesday = time.Date(2025, time.March, 4, 14, 0, 0, 0, time.UTC)

func TestRecalculate_CompanyVehiclePerStop(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	h.addRoute(t, "north", "6379", "1.50", "2.00")
	d := h.addDriver(t, "D-1", "Sam Reyes", "Company Vehicle")
	h.addEvent(t, d, "B1", "06379", "Delivered", tuesday)
	h.addEvent(t, d, "B2", "6379", "delivered", tuesday.Add(time.Hour))
	h.addEvent(t, d, "B3", "06379-1234", "DELIVERED", tuesday.AddDate(0, 0, 1))
	h.addEvent(t, d, "B4", "06379", "Attempted", tuesday)

	res := h.recalc(t, d)
	assert.Equal(t, 1, res.Written)

	rec := h.record(t, d, 202510)
	require.NotNil(t, rec)
	assert.Equal(t, "6.00", rec.Amount.StringFixed(2))
	assert.Equal(t, "6.00", rec.NetPay.StringFixed(2))
	assert.Equal(t, 3, rec.TotalDeliveries)
	assert.Equal(t, 2, rec.DaysWorked)
	assert.Equal(t, "03/01/2025 - 03/07/2025", rec.PayPeriod)
	assert.Equal(t, config.PayPolicyPerStop, rec.PayPolicy)
	lines := rec.Breakdown()
	require.Len(t, lines, 1)
	assert.Equal(t, "06379", lines[0].Zip)
	assert.Equal(t, 3, lines[0].StopCount)
	assert.Equal(t, "2.00", lines[0].Rate.StringFixed(2))
}

func TestRecalculate_FlatDailyOverride(t *testing.T) {
	h := newHarness(t, config.PayrollPolicy{
		Overrides: []config.PayPolicyOverride{{DriverCode: "D-FLAT", Policy: config.PayPolicyFlatDaily, DailyRate: "175"}},
	})
	h.addRoute(t, "north", "10001", "1.50", "2.00")
	d := h.addDriver(t, "D-FLAT", "Flat Driver", "Regular")
	for i := 0; i < 7; i++ {
		h.addEvent(t, d, fmt.Sprintf("A%d", i), "10001", "delivered", tuesday.Add(time.Duration(i)*time.Minute))
	}
	h.addEvent(t, d, "B1", "10001", "delivered", tuesday.AddDate(0, 0, 2))

	h.recalc(t, d)

	rec := h.record(t, d, 202510)
	require.NotNil(t, rec)
	assert.Equal(t, "350.00", rec.Amount.StringFixed(2))
	assert.Equal(t, 2, rec.DaysWorked)
	assert.Equal(t, 8, rec.TotalDeliveries)
	assert.Equal(t, config.PayPolicyFlatDaily, rec.PayPolicy)
}

func TestRecalculate_PreservesDeductionAndSkipsUnchanged(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	h.addRoute(t, "north", "10001", "1.50", "2.00")
	d := h.addDriver(t, "D-1", "Sam Reyes", "Regular")
	h.addEvent(t, d, "B1", "10001", "delivered", tuesday)

	h.recalc(t, d)
	_, err := h.svc.UpdateDeduction(context.Background(), payrolldomain.UpdateDeductionRequest{
		DriverCode: "D-1", PayPeriodKey: 202510, TotalDeduction: decimal.RequireFromString("0.50"),
	})
	require.NoError(t, err)

	res := h.recalc(t, d)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 1, res.Unchanged)

	h.addEvent(t, d, "B2", "10001", "delivered", tuesday.Add(time.Hour))
	res = h.recalc(t, d)
	assert.Equal(t, 1, res.Written)

	rec := h.record(t, d, 202510)
	assert.Equal(t, "3.00", rec.Amount.StringFixed(2))
	assert.Equal(t, "0.50", rec.TotalDeduction.StringFixed(2))
	assert.Equal(t, "2.50", rec.NetPay.StringFixed(2))
}

func TestRecalculate_NoEventsNoRecordsSkips(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	d := h.addDriver(t, "D-1", "Sam Reyes", "Regular")
	res := h.recalc(t, d)
	assert.True(t, res.Skipped)
}

func TestRecalculate_SeparatesPeriods(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	h.addRoute(t, "north", "10001", "1.00", "1.00")
	d := h.addDriver(t, "D-1", "Sam Reyes", "Regular")
	friday := time.Date(2025, time.March, 7, 20, 0, 0, 0, time.UTC)
	h.addEvent(t, d, "F", "10001", "delivered", friday)
	h.addEvent(t, d, "S", "10001", "delivered", friday.Add(5*time.Hour))

	res := h.recalc(t, d)
	assert.Equal(t, 2, res.Written)

	records, err := h.svc.ListByDriver(context.Background(), "D-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 202511, records[0].PayPeriodKey)
	assert.Equal(t, 202510, records[1].PayPeriodKey)
}

func TestDeleteByDriverAndDate_RemovesRecordWhenPeriodEmpty(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	h.addRoute(t, "north", "10001", "1.00", "1.00")
	d := h.addDriver(t, "D-1", "Sam Reyes", "Regular")
	h.addEvent(t, d, "B1", "10001", "delivered", tuesday)
	h.addEvent(t, d, "B2", "10001", "delivered", tuesday.Add(2*time.Hour))
	h.recalc(t, d)

	res, err := h.svc.DeleteByDriverAndDate(context.Background(), "D-1", "2025-03-04")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.DeletedUploads)
	require.NotNil(t, res.DeletedPayroll)
	assert.Equal(t, 202510, res.DeletedPayroll.PayPeriodKey)
	assert.False(t, res.Recalculated)
	assert.Nil(t, h.record(t, d, 202510))
}

func TestDeleteByDriverAndDate_RecomputesRemaining(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	h.addRoute(t, "north", "10001", "1.00", "1.00")
	d := h.addDriver(t, "D-1", "Sam Reyes", "Regular")
	h.addEvent(t, d, "B1", "10001", "delivered", tuesday)
	h.addEvent(t, d, "B2", "10001", "delivered", tuesday.AddDate(0, 0, 1))
	h.recalc(t, d)
	_, err := h.svc.UpdateDeduction(context.Background(), payrolldomain.UpdateDeductionRequest{
		DriverCode: "D-1", PayPeriodKey: 202510, TotalDeduction: decimal.RequireFromString("0.25"),
	})
	require.NoError(t, err)

	res, err := h.svc.DeleteByDriverAndDate(context.Background(), "D-1", "03/04/2025")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DeletedUploads)
	assert.Nil(t, res.DeletedPayroll)
	assert.True(t, res.Recalculated)

	rec := h.record(t, d, 202510)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.TotalDeliveries)
	assert.Equal(t, "1.00", rec.Amount.StringFixed(2))
	assert.Equal(t, "0.25", rec.TotalDeduction.StringFixed(2))
	assert.Equal(t, "0.75", rec.NetPay.StringFixed(2))
}

func TestDeleteByDriverAndDate_NothingDeleted(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	h.addDriver(t, "D-1", "Sam Reyes", "Regular")

	res, err := h.svc.DeleteByDriverAndDate(context.Background(), "D-1", "2025-03-04")
	require.NoError(t, err)
	assert.Equal(t, payrolldomain.DeleteResult{}, res)

	_, err = h.svc.DeleteByDriverAndDate(context.Background(), "D-1", "not-a-date")
	assert.True(t, errors.Is(err, payrolldomain.ErrInvalidDate))

	_, err = h.svc.DeleteByDriverAndDate(context.Background(), "D-404", "2025-03-04")
	assert.True(t, errors.Is(err, payrolldomain.ErrDriverNotFound))
}

func TestRecalculateAll_IsIdempotent(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	h.addRoute(t, "north", "10001", "1.10", "1.30")
	h.addRoute(t, "south", "10002", "0.90", "1.20")
	for i := 0; i < 5; i++ {
		d := h.addDriver(t, fmt.Sprintf("D-%d", i), fmt.Sprintf("Driver %d", i), "Regular")
		for j := 0; j < 4; j++ {
			zip := "10001"
			if j%2 == 1 {
				zip = "10002"
			}
			h.addEvent(t, d, fmt.Sprintf("B%d-%d", i, j), zip, "delivered", tuesday.AddDate(0, 0, j*3))
		}
	}
	h.addDriver(t, "", "No Code", "Regular")

	first, err := h.svc.RecalculateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payrolldomain.RecalcAllResult{SuccessCount: 5}, first)

	var before []payrolldomain.PayrollRecord
	require.NoError(t, h.db.Order("id").Find(&before).Error)

	h.clock.Advance(time.Hour)
	second, err := h.svc.RecalculateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payrolldomain.RecalcAllResult{SuccessCount: 5}, second)

	var after []payrolldomain.PayrollRecord
	require.NoError(t, h.db.Order("id").Find(&after).Error)
	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.True(t, before[i].UpdatedAt.Equal(after[i].UpdatedAt), "record %d rewritten", before[i].ID)
		assert.True(t, before[i].Amount.Equal(after[i].Amount))
	}
}

func TestUpdateDeduction(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	d := h.addDriver(t, "D-1", "Sam Reyes", "Regular")

	rec, err := h.svc.UpdateDeduction(context.Background(), payrolldomain.UpdateDeductionRequest{
		DriverCode: "D-1", PayPeriodKey: 202510, TotalDeduction: decimal.RequireFromString("40"),
	})
	require.NoError(t, err)
	assert.True(t, rec.Amount.IsZero())
	assert.Equal(t, "-40.00", rec.NetPay.StringFixed(2))

	period, err := payperiod.Unbucket(202510)
	require.NoError(t, err)
	stored := h.record(t, d, 202510)
	require.NotNil(t, stored)
	assert.Equal(t, period.Label, stored.PayPeriod)

	_, err = h.svc.UpdateDeduction(context.Background(), payrolldomain.UpdateDeductionRequest{
		DriverCode: "D-1", PayPeriodKey: 202510, TotalDeduction: decimal.RequireFromString("-1"),
	})
	assert.True(t, errors.Is(err, payrolldomain.ErrInvalidDeduction))

	_, err = h.svc.UpdateDeduction(context.Background(), payrolldomain.UpdateDeductionRequest{
		DriverCode: "D-1", PayPeriodKey: 202554, TotalDeduction: decimal.Zero,
	})
	assert.True(t, errors.Is(err, payrolldomain.ErrInvalidPeriodKey))
}

func TestRecalculate_ZeroStopWeekKeepsDeductionRecord(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	h.addRoute(t, "north", "10001", "1.00", "1.00")
	d := h.addDriver(t, "D-1", "Sam Reyes", "Regular")
	_, err := h.svc.UpdateDeduction(context.Background(), payrolldomain.UpdateDeductionRequest{
		DriverCode: "D-1", PayPeriodKey: 202512, TotalDeduction: decimal.RequireFromString("15"),
	})
	require.NoError(t, err)
	h.addEvent(t, d, "B1", "10001", "delivered", tuesday)

	h.recalc(t, d)

	rec := h.record(t, d, 202512)
	require.NotNil(t, rec)
	assert.True(t, rec.Amount.IsZero())
	assert.Equal(t, "-15.00", rec.NetPay.StringFixed(2))
	assert.NotNil(t, h.record(t, d, 202510))
}

func (h *harness) blockPayrollInsert(t *testing.T, name, when string) {
	t.Helper()
	require.NoError(t, h.db.Exec(fmt.Sprintf(
		`CREATE TRIGGER %s BEFORE INSERT ON payroll_records WHEN %s BEGIN SELECT RAISE(ABORT, 'blocked'); END`,
		name, when,
	)).Error)
}

func TestRecalculate_FailedPeriodDoesNotAbortOthers(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	h.addRoute(t, "north", "10001", "1.00", "1.00")
	d := h.addDriver(t, "D-1", "Sam Reyes", "Regular")
	friday := time.Date(2025, time.March, 7, 20, 0, 0, 0, time.UTC)
	h.addEvent(t, d, "F", "10001", "delivered", friday)
	h.addEvent(t, d, "S", "10001", "delivered", friday.Add(5*time.Hour))
	h.blockPayrollInsert(t, "block_202511", "NEW.pay_period_key = 202511")

	var res payrolldomain.RecalcResult
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = h.svc.RecalculateDriver(context.Background(), tx, d.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, payrolldomain.RecalcResult{Written: 1, Failed: 1}, res)

	assert.NotNil(t, h.record(t, d, 202510))
	assert.Nil(t, h.record(t, d, 202511))
}

func TestRecalculateAll_CountsDriverWithFailedPeriodsAsError(t *testing.T) {
	h := newHarness(t, config.DefaultPayrollPolicy())
	h.addRoute(t, "north", "10001", "1.00", "1.00")
	good := h.addDriver(t, "D-GOOD", "Good Driver", "Regular")
	bad := h.addDriver(t, "D-BAD", "Bad Driver", "Regular")
	h.addEvent(t, good, "G1", "10001", "delivered", tuesday)
	h.addEvent(t, bad, "B1", "10001", "delivered", tuesday)
	h.blockPayrollInsert(t, "block_bad_driver", "NEW.driver_code = 'D-BAD'")

	res, err := h.svc.RecalculateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payrolldomain.RecalcAllResult{SuccessCount: 1, ErrorCount: 1, FailedPeriods: 1}, res)

	assert.NotNil(t, h.record(t, good, 202510))
	assert.Nil(t, h.record(t, bad, 202510))
}
