package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	"gorm.io/gorm"
)

const barcodeChunkSize = 500

const eventColumns = `id, driver_id, barcode, upload_batch_id, address, gps_location,
	reported_lat, reported_lng, expected_lat, expected_lng, formatted_address, geocode_source,
	distance_km, status, directions_url, zip_code, last_event, last_event_at, seq_no, created_at`

// selectColumns adds the columns stamped after insert.
const selectColumns = eventColumns + `, address_checked_at`

// Timestamps are written and compared in UTC.
type repo struct{}

func Provide() deliverydomain.Repository {
	return &repo{}
}

func (r *repo) InsertIgnore(ctx context.Context, db *gorm.DB, e *deliverydomain.DeliveryEvent) (bool, error) {
	stmt := `INSERT INTO delivery_events (` + eventColumns + `)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (driver_id, barcode) DO NOTHING`
	if db.Dialector.Name() == "mysql" {
		stmt = `INSERT IGNORE INTO delivery_events (` + eventColumns + `)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}
	res := db.WithContext(ctx).Exec(stmt,
		e.ID,
		e.DriverID,
		e.Barcode,
		e.UploadBatchID,
		e.Address,
		e.GPSLocation,
		e.ReportedLat,
		e.ReportedLng,
		e.ExpectedLat,
		e.ExpectedLng,
		e.FormattedAddress,
		e.GeocodeSource,
		e.DistanceKm,
		string(e.Status),
		e.DirectionsURL,
		e.ZipCode,
		e.LastEvent,
		e.LastEventAt,
		e.SeqNo,
		e.CreatedAt.UTC(),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ExistingBarcodes(ctx context.Context, db *gorm.DB, driverID snowflake.ID, barcodes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for start := 0; start < len(barcodes); start += barcodeChunkSize {
		end := start + barcodeChunkSize
		if end > len(barcodes) {
			end = len(barcodes)
		}
		var found []string
		err := db.WithContext(ctx).Raw(
			`SELECT barcode FROM delivery_events WHERE driver_id = ? AND barcode IN ?`,
			driverID,
			barcodes[start:end],
		).Scan(&found).Error
		if err != nil {
			return nil, err
		}
		for _, b := range found {
			existing[b] = struct{}{}
		}
	}
	return existing, nil
}

func (r *repo) ListByLastEvent(ctx context.Context, db *gorm.DB, driverID snowflake.ID, lastEvent string) ([]deliverydomain.DeliveryEvent, error) {
	var events []deliverydomain.DeliveryEvent
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM delivery_events
		 WHERE driver_id = ? AND LOWER(TRIM(last_event)) = ?
		 ORDER BY created_at ASC, id ASC`,
		driverID,
		strings.ToLower(strings.TrimSpace(lastEvent)),
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) DeleteCreatedBetween(ctx context.Context, db *gorm.DB, driverID snowflake.ID, from, to time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM delivery_events WHERE driver_id = ? AND created_at >= ? AND created_at < ?`,
		driverID,
		from.UTC(),
		to.UTC(),
	)
	return res.RowsAffected, res.Error
}

func (r *repo) CountCreatedBetween(ctx context.Context, db *gorm.DB, driverID snowflake.ID, from, to time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM delivery_events WHERE driver_id = ? AND created_at >= ? AND created_at < ?`,
		driverID,
		from.UTC(),
		to.UTC(),
	).Scan(&count).Error
	return count, err
}

func (r *repo) ListWithReportedGPS(ctx context.Context, db *gorm.DB, driverID snowflake.ID, lastEvent string) ([]deliverydomain.DeliveryEvent, error) {
	return r.listWithReportedGPS(ctx, db, driverID, lastEvent, false)
}

func (r *repo) ListAddressUnchecked(ctx context.Context, db *gorm.DB, driverID snowflake.ID, lastEvent string) ([]deliverydomain.DeliveryEvent, error) {
	return r.listWithReportedGPS(ctx, db, driverID, lastEvent, true)
}

func (r *repo) listWithReportedGPS(ctx context.Context, db *gorm.DB, driverID snowflake.ID, lastEvent string, uncheckedOnly bool) ([]deliverydomain.DeliveryEvent, error) {
	stmt := `SELECT ` + selectColumns + `
		 FROM delivery_events
		 WHERE reported_lat IS NOT NULL AND reported_lng IS NOT NULL AND LOWER(TRIM(last_event)) = ?`
	args := []any{strings.ToLower(strings.TrimSpace(lastEvent))}
	if uncheckedOnly {
		stmt += ` AND address_checked_at IS NULL`
	}
	if driverID != 0 {
		stmt += ` AND driver_id = ?`
		args = append(args, driverID)
	}
	stmt += ` ORDER BY id ASC`

	var events []deliverydomain.DeliveryEvent
	if err := db.WithContext(ctx).Raw(stmt, args...).Scan(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) MarkAddressChecked(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE delivery_events SET address_checked_at = ? WHERE id IN ? AND address_checked_at IS NULL`,
		at.UTC(),
		ids,
	)
	return res.RowsAffected, res.Error
}
