package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	"gorm.io/gorm"
)

// SalaryClass is the pay classification derived from a driver's free-text
// salary type.
type SalaryClass string

const (
	SalaryRegular        SalaryClass = "regular"
	SalaryCompanyVehicle SalaryClass = "company vehicle"
	SalaryFixed          SalaryClass = "fixed"
)

// Rate is the per-stop price resolved for one ZIP.
type Rate struct {
	Amount    decimal.Decimal
	RouteID   snowflake.ID
	RouteName string
	Matched   bool
}

// Overlap records a ZIP claimed by more than one route. Winner keeps the ZIP.
type Overlap struct {
	Zip    string
	Winner snowflake.ID
	Loser  snowflake.ID
}

// Index maps normalized ZIPs to routes for a single aggregation run.
type Index interface {
	Route(zip string) (*routedomain.Route, bool)
	RateFor(zip, salaryType string) Rate
	Overlaps() []Overlap
	Len() int
}

// Policy is the effective pay policy for one driver.
type Policy struct {
	Kind      string
	DailyRate decimal.Decimal
}

type Service interface {
	// LoadIndex reads the current routes and builds a fresh ZIP index.
	LoadIndex(ctx context.Context, db *gorm.DB) (Index, error)
	PolicyFor(driverCode, fullName string) Policy
}

var ErrZipOverlap = errors.New("zip_overlap")

// ClassifySalary matches the salary type case-insensitively by substring.
// Unknown types report false and are paid as regular.
func ClassifySalary(salaryType string) (SalaryClass, bool) {
	s := strings.ToLower(salaryType)
	switch {
	case strings.Contains(s, string(SalaryCompanyVehicle)):
		return SalaryCompanyVehicle, true
	case strings.Contains(s, string(SalaryFixed)):
		return SalaryFixed, true
	case strings.Contains(s, string(SalaryRegular)):
		return SalaryRegular, true
	default:
		return SalaryRegular, false
	}
}

// RateForClass picks the route column paid for a salary class.
func RateForClass(route routedomain.Route, class SalaryClass) decimal.Decimal {
	switch class {
	case SalaryCompanyVehicle:
		return route.RatePerStopCompanyVehicle
	case SalaryFixed:
		return route.BaseRate
	default:
		return route.RatePerStop
	}
}

// FlatDailyAmount pays rate for every distinct worked day.
func FlatDailyAmount(rate decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return rate.Mul(decimal.NewFromInt(int64(days)))
}
