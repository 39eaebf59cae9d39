package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIgnore inserts the event unless (driver_id, barcode) exists and
	// reports whether a row was written.
	InsertIgnore(ctx context.Context, db *gorm.DB, event *DeliveryEvent) (bool, error)
	ExistingBarcodes(ctx context.Context, db *gorm.DB, driverID snowflake.ID, barcodes []string) (map[string]struct{}, error)
	// ListByLastEvent returns the driver's events whose lifecycle tag equals
	// lastEvent case-insensitively, oldest first.
	ListByLastEvent(ctx context.Context, db *gorm.DB, driverID snowflake.ID, lastEvent string) ([]DeliveryEvent, error)
	DeleteCreatedBetween(ctx context.Context, db *gorm.DB, driverID snowflake.ID, from, to time.Time) (int64, error)
	CountCreatedBetween(ctx context.Context, db *gorm.DB, driverID snowflake.ID, from, to time.Time) (int64, error)
	// ListWithReportedGPS returns events carrying a parsed GPS point. A zero
	// driverID selects every driver.
	ListWithReportedGPS(ctx context.Context, db *gorm.DB, driverID snowflake.ID, lastEvent string) ([]DeliveryEvent, error)
	// ListAddressUnchecked is ListWithReportedGPS limited to events whose
	// address has not been compared against a reverse geocode yet.
	ListAddressUnchecked(ctx context.Context, db *gorm.DB, driverID snowflake.ID, lastEvent string) ([]DeliveryEvent, error)
	// MarkAddressChecked stamps events once; already stamped rows keep their time.
	MarkAddressChecked(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) (int64, error)
}
