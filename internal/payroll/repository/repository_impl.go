package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	payrolldomain "github.com/smallbiznis/routepay/internal/payroll/domain"
	"gorm.io/gorm"
)

const recordColumns = `id, driver_id, driver_code, pay_period_key, pay_period, period_start, period_end,
	zip_breakdown, total_deliveries, days_worked, pay_policy, amount, total_deduction, net_pay,
	created_at, updated_at`

type repo struct{}

func Provide() payrolldomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *payrolldomain.PayrollRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payroll_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.DriverID,
		rec.DriverCode,
		rec.PayPeriodKey,
		rec.PayPeriod,
		rec.PeriodStart,
		rec.PeriodEnd,
		rec.ZipBreakdown,
		rec.TotalDeliveries,
		rec.DaysWorked,
		rec.PayPolicy,
		rec.Amount,
		rec.TotalDeduction,
		rec.NetPay,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Error
}

func (r *repo) UpdateContent(ctx context.Context, db *gorm.DB, rec *payrolldomain.PayrollRecord) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payroll_records
		 SET driver_code = ?, pay_period = ?, period_start = ?, period_end = ?, zip_breakdown = ?,
		     total_deliveries = ?, days_worked = ?, pay_policy = ?, amount = ?, net_pay = ?, updated_at = ?
		 WHERE id = ?`,
		rec.DriverCode,
		rec.PayPeriod,
		rec.PeriodStart,
		rec.PeriodEnd,
		rec.ZipBreakdown,
		rec.TotalDeliveries,
		rec.DaysWorked,
		rec.PayPolicy,
		rec.Amount,
		rec.NetPay,
		rec.UpdatedAt,
		rec.ID,
	).Error
}

func (r *repo) UpdateDeduction(ctx context.Context, db *gorm.DB, id snowflake.ID, deduction, netPay decimal.Decimal, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payroll_records SET total_deduction = ?, net_pay = ?, updated_at = ? WHERE id = ?`,
		deduction,
		netPay,
		updatedAt,
		id,
	).Error
}

func (r *repo) FindByDriverPeriod(ctx context.Context, db *gorm.DB, driverID snowflake.ID, periodKey int) (*payrolldomain.PayrollRecord, error) {
	var rec payrolldomain.PayrollRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM payroll_records WHERE driver_id = ? AND pay_period_key = ?`,
		driverID,
		periodKey,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) ListByDriver(ctx context.Context, db *gorm.DB, driverID snowflake.ID) ([]payrolldomain.PayrollRecord, error) {
	var records []payrolldomain.PayrollRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM payroll_records WHERE driver_id = ? ORDER BY pay_period_key DESC`,
		driverID,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) DeleteByDriverPeriod(ctx context.Context, db *gorm.DB, driverID snowflake.ID, periodKey int) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM payroll_records WHERE driver_id = ? AND pay_period_key = ?`,
		driverID,
		periodKey,
	)
	return res.RowsAffected, res.Error
}
