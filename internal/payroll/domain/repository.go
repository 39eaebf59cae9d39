package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *PayrollRecord) error
	// UpdateContent rewrites the computed columns and net pay, leaving the
	// deduction untouched.
	UpdateContent(ctx context.Context, db *gorm.DB, record *PayrollRecord) error
	UpdateDeduction(ctx context.Context, db *gorm.DB, id snowflake.ID, deduction, netPay decimal.Decimal, updatedAt time.Time) error
	FindByDriverPeriod(ctx context.Context, db *gorm.DB, driverID snowflake.ID, periodKey int) (*PayrollRecord, error)
	ListByDriver(ctx context.Context, db *gorm.DB, driverID snowflake.ID) ([]PayrollRecord, error)
	DeleteByDriverPeriod(ctx context.Context, db *gorm.DB, driverID snowflake.ID, periodKey int) (int64, error)
}
