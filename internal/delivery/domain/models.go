package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusGeocoded           Status = "geocoded"
	StatusPartialMatch       Status = "partial_match"
	StatusGeocodeZeroResults Status = "geocode_zero_results"
	StatusGeocodeError       Status = "geocode_error"
	StatusNoAddress          Status = "no_address"
	StatusMatch              Status = "match"
	StatusMismatch           Status = "mismatch"
	StatusGPSParseError      Status = "gps_parse_error"
)

// DeliveryEvent is one scanned parcel from an uploaded manifest. Rows are
// immutable once inserted; (driver_id, barcode) is unique.
type DeliveryEvent struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	DriverID         snowflake.ID `json:"driver_id" gorm:"not null;uniqueIndex:ux_delivery_events_driver_barcode,priority:1;index:ix_delivery_events_driver_created,priority:1"`
	Barcode          string       `json:"barcode" gorm:"type:text;not null;uniqueIndex:ux_delivery_events_driver_barcode,priority:2"`
	UploadBatchID    string       `json:"upload_batch_id" gorm:"type:text;not null;index"`
	Address          string       `json:"address" gorm:"type:text;not null;default:''"`
	GPSLocation      *string      `json:"gps_location,omitempty" gorm:"type:text"`
	ReportedLat      *float64     `json:"reported_lat,omitempty"`
	ReportedLng      *float64     `json:"reported_lng,omitempty"`
	ExpectedLat      *float64     `json:"expected_lat,omitempty"`
	ExpectedLng      *float64     `json:"expected_lng,omitempty"`
	FormattedAddress *string      `json:"formatted_address,omitempty" gorm:"type:text"`
	GeocodeSource    *string      `json:"geocode_source,omitempty" gorm:"type:text"`
	DistanceKm       *float64     `json:"distance_km,omitempty"`
	Status           Status       `json:"status" gorm:"type:text;not null"`
	DirectionsURL    *string      `json:"directions_url,omitempty" gorm:"type:text"`
	ZipCode          *string      `json:"zip_code,omitempty" gorm:"type:text"`
	LastEvent        string       `json:"last_event" gorm:"type:text;not null;default:''"`
	LastEventAt      *time.Time   `json:"last_event_at,omitempty"`
	SeqNo            *int         `json:"seq_no,omitempty"`
	AddressCheckedAt *time.Time   `json:"address_checked_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null;index:ix_delivery_events_driver_created,priority:2"`
}

// TableName sets the database table name.
func (DeliveryEvent) TableName() string { return "delivery_events" }

// IsDelivered compares the lifecycle tag case-insensitively.
func (e DeliveryEvent) IsDelivered(tag string) bool {
	return strings.EqualFold(strings.TrimSpace(e.LastEvent), tag)
}
