package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ZipLine is one row of a record's ZIP breakdown.
type ZipLine struct {
	Zip       string          `json:"zip"`
	StopCount int             `json:"stop_count"`
	Rate      decimal.Decimal `json:"rate"`
	Amount    decimal.Decimal `json:"amount"`
}

// PayrollRecord is a driver's pay for one Saturday–Friday period. A
// recompute rewrites everything except TotalDeduction.
type PayrollRecord struct {
	ID              snowflake.ID                  `json:"id" gorm:"primaryKey"`
	DriverID        snowflake.ID                  `json:"driver_id" gorm:"not null;uniqueIndex:ux_payroll_records_driver_period,priority:1"`
	DriverCode      string                        `json:"driver_code" gorm:"type:text;not null;index"`
	PayPeriodKey    int                           `json:"pay_period_key" gorm:"not null;uniqueIndex:ux_payroll_records_driver_period,priority:2"`
	PayPeriod       string                        `json:"pay_period" gorm:"type:text;not null"`
	PeriodStart     time.Time                     `json:"period_start" gorm:"not null"`
	PeriodEnd       time.Time                     `json:"period_end" gorm:"not null"`
	ZipBreakdown    datatypes.JSONType[[]ZipLine] `json:"zip_breakdown"`
	TotalDeliveries int                           `json:"total_deliveries" gorm:"not null;default:0"`
	DaysWorked      int                           `json:"days_worked" gorm:"not null;default:0"`
	PayPolicy       string                        `json:"pay_policy" gorm:"type:text;not null"`
	Amount          decimal.Decimal               `json:"amount" gorm:"type:numeric(12,2);not null;default:0"`
	TotalDeduction  decimal.Decimal               `json:"total_deduction" gorm:"type:numeric(12,2);not null;default:0"`
	NetPay          decimal.Decimal               `json:"net_pay" gorm:"type:numeric(12,2);not null;default:0"`
	CreatedAt       time.Time                     `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time                     `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (PayrollRecord) TableName() string { return "payroll_records" }

// Breakdown returns the decoded ZIP lines.
func (r PayrollRecord) Breakdown() []ZipLine {
	return r.ZipBreakdown.Data()
}

// Computation is the freshly aggregated content of one period.
type Computation struct {
	PayPeriodKey    int
	PayPeriod       string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Breakdown       []ZipLine
	TotalDeliveries int
	DaysWorked      int
	PayPolicy       string
	Amount          decimal.Decimal
}

// Matches reports whether the record already holds this content.
func (c Computation) Matches(r PayrollRecord) bool {
	if r.PayPeriod != c.PayPeriod ||
		r.TotalDeliveries != c.TotalDeliveries ||
		r.DaysWorked != c.DaysWorked ||
		r.PayPolicy != c.PayPolicy ||
		!r.Amount.Equal(c.Amount) ||
		!r.NetPay.Equal(c.Amount.Sub(r.TotalDeduction)) {
		return false
	}
	current := r.Breakdown()
	if len(current) != len(c.Breakdown) {
		return false
	}
	for i := range current {
		a, b := current[i], c.Breakdown[i]
		if a.Zip != b.Zip || a.StopCount != b.StopCount || !a.Rate.Equal(b.Rate) || !a.Amount.Equal(b.Amount) {
			return false
		}
	}
	return true
}
