// Package google adapts the Google Maps Geocoding and Places web services to
// the geocode Provider interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/routepay/internal/config"
	geocodedomain "github.com/smallbiznis/routepay/internal/geocode/domain"
	"go.uber.org/fx"
	"googlemaps.github.io/maps"
)

const defaultBaseURL = "https://maps.googleapis.com"

var placeFields = []maps.PlaceSearchFieldMask{
	maps.PlaceSearchFieldMaskFormattedAddress,
	maps.PlaceSearchFieldMaskGeometry,
	maps.PlaceSearchFieldMaskTypes,
}

// Statuses that mean the key or quota is the problem, not the request.
var deniedStatuses = []string{"REQUEST_DENIED", "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT"}

type Client struct {
	maps *maps.Client
}

type Params struct {
	fx.In

	Cfg        config.Config
	HTTPClient *http.Client `optional:"true"`
}

// New returns nil when no API key is configured, leaving the resolver
// without a provider.
func New(p Params) (geocodedomain.Provider, error) {
	key := strings.TrimSpace(p.Cfg.Geocode.APIKey)
	if key == "" {
		return nil, nil
	}
	c, err := NewClient(key, p.Cfg.Geocode.BaseURL, p.HTTPClient)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func NewClient(apiKey, baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	mc, err := maps.NewClient(
		maps.WithAPIKey(strings.TrimSpace(apiKey)),
		maps.WithBaseURL(baseURL),
		maps.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("google maps client: %w", err)
	}
	return &Client{maps: mc}, nil
}

func (c *Client) Geocode(ctx context.Context, address string, filter geocodedomain.ComponentFilter) ([]geocodedomain.Candidate, error) {
	req := &maps.GeocodingRequest{
		Address:    address,
		Components: components(filter),
	}
	results, err := c.maps.Geocode(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return fromGeocoding(results), nil
}

func (c *Client) FindPlace(ctx context.Context, input string, bias *geocodedomain.LocationBias) ([]geocodedomain.Candidate, error) {
	req := &maps.FindPlaceFromTextRequest{
		Input:     input,
		InputType: maps.FindPlaceFromTextInputTypeTextQuery,
		Fields:    placeFields,
	}
	if radius := biasRadius(bias); radius > 0 {
		req.LocationBias = maps.FindPlaceFromTextLocationBiasCircular
		req.LocationBiasCenter = latLng(bias.Center)
		req.LocationBiasRadius = radius
	}
	resp, err := c.maps.FindPlaceFromText(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return fromPlaces(resp.Candidates), nil
}

func (c *Client) TextSearch(ctx context.Context, query string, bias *geocodedomain.LocationBias) ([]geocodedomain.Candidate, error) {
	req := &maps.TextSearchRequest{Query: query}
	if radius := biasRadius(bias); radius > 0 {
		req.Location = latLng(bias.Center)
		req.Radius = uint(radius)
	}
	resp, err := c.maps.TextSearch(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return fromPlaces(resp.Results), nil
}

func (c *Client) ReverseGeocode(ctx context.Context, at geocodedomain.LatLng) ([]geocodedomain.Candidate, error) {
	results, err := c.maps.ReverseGeocode(ctx, &maps.GeocodingRequest{LatLng: latLng(at)})
	if err != nil {
		return nil, mapError(err)
	}
	return fromGeocoding(results), nil
}

// mapError folds the client's status errors into provider sentinels. The
// client reports non-OK statuses as "maps: STATUS - message".
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	for _, status := range deniedStatuses {
		if strings.Contains(msg, status) {
			return fmt.Errorf("%w: %s", geocodedomain.ErrProviderDenied, msg)
		}
	}
	return fmt.Errorf("%w: %s", geocodedomain.ErrProviderRequest, msg)
}

func fromGeocoding(results []maps.GeocodingResult) []geocodedomain.Candidate {
	out := make([]geocodedomain.Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, geocodedomain.Candidate{
			Location:         geocodedomain.LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
			FormattedAddress: r.FormattedAddress,
			Types:            r.Types,
			PartialMatch:     r.PartialMatch,
		})
	}
	return out
}

func fromPlaces(results []maps.PlacesSearchResult) []geocodedomain.Candidate {
	out := make([]geocodedomain.Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, geocodedomain.Candidate{
			Location:         geocodedomain.LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
			FormattedAddress: r.FormattedAddress,
			Types:            r.Types,
		})
	}
	return out
}

func components(filter geocodedomain.ComponentFilter) map[maps.Component]string {
	out := map[maps.Component]string{}
	if filter.Country != "" {
		out[maps.ComponentCountry] = filter.Country
	}
	if filter.PostalCode != "" {
		out[maps.ComponentPostalCode] = filter.PostalCode
	}
	if filter.AdministrativeArea != "" {
		out[maps.ComponentAdministrativeArea] = filter.AdministrativeArea
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func biasRadius(bias *geocodedomain.LocationBias) int {
	if bias == nil || bias.RadiusMeters <= 0 {
		return 0
	}
	return int(math.Round(bias.RadiusMeters))
}

func latLng(p geocodedomain.LatLng) *maps.LatLng {
	return &maps.LatLng{Lat: p.Lat, Lng: p.Lng}
}
