package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/routepay/internal/address"
	geocodedomain "github.com/smallbiznis/routepay/internal/geocode/domain"
)

const countryFilter = "US"

// Query is the input shared by every strategy.
type Query struct {
	Address     address.Normalized
	GPS         *geocodedomain.LatLng
	BiasRadiusM float64
}

// Bias returns the GPS circle used by free-text tiers. It is only applied
// when the address carries neither a ZIP nor a state.
func (q Query) Bias() *geocodedomain.LocationBias {
	if q.GPS == nil || q.Address.Zip != "" || q.Address.State != "" || q.BiasRadiusM <= 0 {
		return nil
	}
	return &geocodedomain.LocationBias{Center: *q.GPS, RadiusMeters: q.BiasRadiusM}
}

// Strategy is one tier of the cascade. Ranked strategies pick the best
// scoring candidate, the others take the provider's first result.
type Strategy struct {
	Tier   geocodedomain.Tier
	Ranked bool
	Lookup func(ctx context.Context, provider geocodedomain.Provider, q Query) ([]geocodedomain.Candidate, error)
}

// DefaultStrategies is structured geocode, then find place, then text search.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Tier: geocodedomain.TierGeocode, Ranked: true, Lookup: lookupGeocode},
		{Tier: geocodedomain.TierFindPlace, Lookup: lookupFindPlace},
		{Tier: geocodedomain.TierTextSearch, Lookup: lookupTextSearch},
	}
}

func lookupGeocode(ctx context.Context, provider geocodedomain.Provider, q Query) ([]geocodedomain.Candidate, error) {
	filter := geocodedomain.ComponentFilter{
		Country:            countryFilter,
		PostalCode:         q.Address.Zip,
		AdministrativeArea: q.Address.State,
	}
	return provider.Geocode(ctx, q.Address.Cleaned, filter)
}

func lookupFindPlace(ctx context.Context, provider geocodedomain.Provider, q Query) ([]geocodedomain.Candidate, error) {
	return provider.FindPlace(ctx, q.Address.Cleaned, q.Bias())
}

func lookupTextSearch(ctx context.Context, provider geocodedomain.Provider, q Query) ([]geocodedomain.Candidate, error) {
	return provider.TextSearch(ctx, textSearchQuery(q.Address), q.Bias())
}

// textSearchQuery appends the extracted state and ZIP when the cleaned
// address does not already spell them out.
func textSearchQuery(n address.Normalized) string {
	query := n.Cleaned
	upper := strings.ToUpper(query)
	var suffix []string
	if n.State != "" && !containsWord(upper, n.State) {
		suffix = append(suffix, n.State)
	}
	if n.Zip != "" && !strings.Contains(query, n.Zip) {
		suffix = append(suffix, n.Zip)
	}
	if len(suffix) == 0 {
		return query
	}
	return query + ", " + strings.Join(suffix, " ")
}
