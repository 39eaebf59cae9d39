// Package reconcile compares driver-reported GPS fixes against geocoded
// delivery addresses.
package reconcile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"
)

const (
	EarthRadiusKm = 6371.0

	DefaultThresholdKm = 15.0
	// StrictThresholdKm is the tighter radius used by delivery-only audits.
	StrictThresholdKm = 10.0
)

type Verdict string

const (
	VerdictMatch    Verdict = "match"
	VerdictMismatch Verdict = "mismatch"
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Point) String() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// ParseGPS reads "lat lng" or "lat,lng". Anything else, including
// out-of-range values, is a miss.
func ParseGPS(raw string) (Point, bool) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})
	if len(fields) < 2 {
		return Point{}, false
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Point{}, false
	}
	lng, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Point{}, false
	}
	p := Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return Point{}, false
	}
	return p, true
}

// HaversineKm returns the great-circle distance between two points on a
// sphere of EarthRadiusKm.
func HaversineKm(a, b Point) float64 {
	return a.latLng().Distance(b.latLng()).Radians() * EarthRadiusKm
}

func (p Point) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lng)
}

// DirectionsURL links a maps route from the reported fix to the expected stop.
func DirectionsURL(from, to Point) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/%s/%s", from.String(), to.String())
}

// Reconciler classifies a reported fix against the expected location.
type Reconciler struct {
	thresholdKm float64
}

func NewReconciler(thresholdKm float64) *Reconciler {
	if thresholdKm <= 0 {
		thresholdKm = DefaultThresholdKm
	}
	return &Reconciler{thresholdKm: thresholdKm}
}

func (r *Reconciler) ThresholdKm() float64 { return r.thresholdKm }

// Result is the outcome of comparing a reported fix to an expected point.
type Result struct {
	DistanceKm    float64
	Verdict       Verdict
	DirectionsURL string
}

func (r *Reconciler) Classify(reported, expected Point) Result {
	distance := HaversineKm(reported, expected)
	verdict := VerdictMismatch
	if distance <= r.thresholdKm {
		verdict = VerdictMatch
	}
	return Result{
		DistanceKm:    distance,
		Verdict:       verdict,
		DirectionsURL: DirectionsURL(reported, expected),
	}
}
