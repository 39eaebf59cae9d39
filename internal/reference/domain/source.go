package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// DriverRecord is a driver as held by the external roster.
type DriverRecord struct {
	Code       string
	FullName   string
	SalaryType string
	Schedule   string
}

// RouteRecord is a route as held by the external rate sheet. Routes are
// keyed by name.
type RouteRecord struct {
	Name                      string
	ZipCodes                  []string
	RatePerStop               decimal.Decimal
	RatePerStopCompanyVehicle decimal.Decimal
	BaseRate                  decimal.Decimal
	Zone                      string
	Schedule                  string
}

// Source is the external system of record for drivers and routes.
type Source interface {
	ListDrivers(ctx context.Context) ([]DriverRecord, error)
	ListRoutes(ctx context.Context) ([]RouteRecord, error)
}

type SyncCounts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

type SyncResult struct {
	Drivers SyncCounts `json:"drivers"`
	Routes  SyncCounts `json:"routes"`
}

type Service interface {
	SyncReference(ctx context.Context) (SyncResult, error)
}

var (
	ErrSourceNotConfigured = errors.New("reference_source_not_configured")
	ErrSourceRequest       = errors.New("reference_source_request_failed")
)
