package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// UpsertRequest describes a route by name. The route code is the slug of
// the name, so renaming a route creates a new one.
type UpsertRequest struct {
	Name                      string          `json:"name"`
	ZipCodes                  []string        `json:"zip_codes"`
	RatePerStop               decimal.Decimal `json:"rate_per_stop"`
	RatePerStopCompanyVehicle decimal.Decimal `json:"rate_per_stop_company_vehicle"`
	BaseRate                  decimal.Decimal `json:"base_rate"`
	Zone                      string          `json:"zone"`
	Schedule                  string          `json:"schedule"`
}

type UpsertResult struct {
	Route   Route `json:"route"`
	Created bool  `json:"created"`
}

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (UpsertResult, error)
	Get(ctx context.Context, code string) (*Route, error)
	List(ctx context.Context) ([]Route, error)
	Delete(ctx context.Context, code string) error
}
