package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	// RecalculateDriver rebuilds every period for the driver on tx. The
	// caller owns the transaction and the driver lock.
	RecalculateDriver(ctx context.Context, tx *gorm.DB, driverID snowflake.ID) (RecalcResult, error)
	DeleteByDriverAndDate(ctx context.Context, driverCode, date string) (DeleteResult, error)
	RecalculateAll(ctx context.Context) (RecalcAllResult, error)
	ListByDriver(ctx context.Context, driverCode string) ([]PayrollRecord, error)
	UpdateDeduction(ctx context.Context, req UpdateDeductionRequest) (*PayrollRecord, error)
}

type RecalcResult struct {
	Skipped   bool `json:"skipped"`
	Written   int  `json:"written"`
	Unchanged int  `json:"unchanged"`
	Failed    int  `json:"failed"`
}

// PeriodRef identifies a period whose record was removed.
type PeriodRef struct {
	PayPeriodKey int    `json:"pay_period_key"`
	PayPeriod    string `json:"pay_period"`
}

type DeleteResult struct {
	DeletedUploads int64      `json:"deleted_uploads"`
	DeletedPayroll *PeriodRef `json:"deleted_payroll,omitempty"`
	Recalculated   bool       `json:"recalculated"`
}

// RecalcAllResult counts drivers. A driver with any failed period is an
// error; FailedPeriods totals those periods across drivers.
type RecalcAllResult struct {
	SuccessCount  int `json:"success_count"`
	ErrorCount    int `json:"error_count"`
	FailedPeriods int `json:"failed_periods"`
}

type UpdateDeductionRequest struct {
	DriverCode     string          `json:"driver_code"`
	PayPeriodKey   int             `json:"pay_period_key"`
	TotalDeduction decimal.Decimal `json:"total_deduction"`
}

var (
	ErrInvalidDriverCode = errors.New("invalid_driver_code")
	ErrDriverNotFound    = errors.New("driver_not_found")
	ErrInvalidDate       = errors.New("invalid_date")
	ErrInvalidPeriodKey  = errors.New("invalid_pay_period_key")
	ErrInvalidDeduction  = errors.New("invalid_deduction")
)
