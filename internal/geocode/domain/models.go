package domain

import (
	"context"
	"errors"
)

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ComponentFilter restricts a structured geocode query.
type ComponentFilter struct {
	Country            string
	PostalCode         string
	AdministrativeArea string
}

// LocationBias prefers results inside a circle.
type LocationBias struct {
	Center       LatLng
	RadiusMeters float64
}

// Candidate is one provider result.
type Candidate struct {
	Location         LatLng   `json:"location"`
	FormattedAddress string   `json:"formatted_address"`
	Types            []string `json:"types,omitempty"`
	PartialMatch     bool     `json:"partial_match,omitempty"`
}

// Provider is the external geocoding service. Implementations return an
// empty slice, not an error, when nothing matched.
type Provider interface {
	Geocode(ctx context.Context, address string, filter ComponentFilter) ([]Candidate, error)
	FindPlace(ctx context.Context, input string, bias *LocationBias) ([]Candidate, error)
	TextSearch(ctx context.Context, query string, bias *LocationBias) ([]Candidate, error)
	ReverseGeocode(ctx context.Context, at LatLng) ([]Candidate, error)
}

type Tier string

const (
	TierGeocode    Tier = "geocode"
	TierFindPlace  Tier = "find_place"
	TierTextSearch Tier = "text_search"
)

// Result is the winning candidate of a resolution.
type Result struct {
	Location         LatLng `json:"location"`
	FormattedAddress string `json:"formatted_address"`
	PartialMatch     bool   `json:"partial_match"`
	Tier             Tier   `json:"tier"`
	Score            int    `json:"score"`
}

// Attempt describes one tier that was tried.
type Attempt struct {
	Tier       Tier
	Candidates int
	Err        error
}

// Resolution is the outcome of Resolve. A nil Result is a miss.
type Resolution struct {
	Result   *Result
	Attempts []Attempt
}

func (r Resolution) Found() bool {
	return r.Result != nil
}

// AllFailed reports whether every attempted tier ended in an error, as
// opposed to returning zero results.
func (r Resolution) AllFailed() bool {
	if r.Result != nil || len(r.Attempts) == 0 {
		return false
	}
	for _, a := range r.Attempts {
		if a.Err == nil {
			return false
		}
	}
	return true
}

type Resolver interface {
	// Resolve never returns an error; failures are reported in Attempts.
	Resolve(ctx context.Context, raw string, gps *LatLng) Resolution
}

var (
	ErrProviderNotConfigured = errors.New("geocode_provider_not_configured")
	ErrProviderRequest       = errors.New("geocode_provider_request_failed")
	ErrProviderDenied        = errors.New("geocode_provider_denied")
)
