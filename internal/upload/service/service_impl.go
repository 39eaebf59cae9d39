package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/routepay/internal/address"
	"github.com/smallbiznis/routepay/internal/clock"
	"github.com/smallbiznis/routepay/internal/config"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	geocodedomain "github.com/smallbiznis/routepay/internal/geocode/domain"
	"github.com/smallbiznis/routepay/internal/lock"
	obscontext "github.com/smallbiznis/routepay/internal/observability/context"
	"github.com/smallbiznis/routepay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/routepay/internal/observability/metrics"
	payrolldomain "github.com/smallbiznis/routepay/internal/payroll/domain"
	ratingdomain "github.com/smallbiznis/routepay/internal/rating/domain"
	"github.com/smallbiznis/routepay/internal/reconcile"
	uploaddomain "github.com/smallbiznis/routepay/internal/upload/domain"
	"github.com/smallbiznis/routepay/internal/upload/spreadsheet"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultGeocodeConcurrency = 5
	skipReasonDuplicate       = "duplicate"
	skipReasonRejected        = "rejected"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	GenID    *snowflake.Node
	Clock    clock.Clock `optional:"true"`
	Locker   lock.Locker `optional:"true"`
	Resolver geocodedomain.Resolver

	DriverRepo   driverdomain.Repository
	DeliveryRepo deliverydomain.Repository
	Payroll      payrolldomain.Service
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	locker   lock.Locker
	resolver geocodedomain.Resolver
	matcher  *reconcile.Reconciler
	tracer   trace.Tracer
	loc      *time.Location

	concurrency int

	driverRepo   driverdomain.Repository
	deliveryRepo deliverydomain.Repository
	payroll      payrolldomain.Service
	metrics      *obsmetrics.Metrics
}

func New(p Params) uploaddomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	locker := p.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	concurrency := p.Cfg.Geocode.Concurrency
	if concurrency <= 0 {
		concurrency = defaultGeocodeConcurrency
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("upload.service"),
		genID:    p.GenID,
		clock:    c,
		locker:   locker,
		resolver: p.Resolver,
		matcher:  reconcile.NewReconciler(p.Cfg.Payroll.MatchThresholdKm),
		tracer:   otel.Tracer("routepay/upload"),
		loc:      p.Cfg.Location(),

		concurrency: concurrency,

		driverRepo:   p.DriverRepo,
		deliveryRepo: p.DeliveryRepo,
		payroll:      p.Payroll,
		metrics:      p.Metrics,
	}
}

func (s *Service) Ingest(ctx context.Context, req uploaddomain.IngestRequest) (*uploaddomain.IngestResult, error) {
	code := driverdomain.NormalizeCode(req.DriverCode)
	if code == "" {
		return nil, uploaddomain.ErrInvalidDriverCode
	}

	createdAt, err := s.uploadTime(req.DateOverride)
	if err != nil {
		return nil, err
	}

	driver, err := s.driverRepo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, uploaddomain.ErrDriverNotFound
	}

	rows, rejected, err := s.rows(req)
	if err != nil {
		return nil, err
	}

	batchID := ulid.Make().String()
	ctx, span := s.tracer.Start(ctx, "upload.ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("upload.batch_id", batchID),
		attribute.Int("upload.rows", len(rows)),
	)
	ctx = obscontext.WithUploadBatch(ctx, batchID)
	log := logger.WithUpload(s.log, driver.DriverCode, batchID)

	result := &uploaddomain.IngestResult{
		BatchID:         batchID,
		SkippedBarcodes: []string{},
		RejectedRows:    rejected,
		StatusCounts:    map[string]int{},
	}
	if result.RejectedRows == nil {
		result.RejectedRows = []uploaddomain.RejectedRow{}
	}
	s.metrics.RecordRowsSkipped(ctx, skipReasonRejected, len(rejected))

	fresh, duplicates, err := s.dropKnown(ctx, driver.ID, rows)
	if err != nil {
		return nil, err
	}
	result.SkippedBarcodes = append(result.SkippedBarcodes, duplicates...)

	events, err := s.buildEvents(ctx, driver.ID, batchID, createdAt, fresh)
	if err != nil {
		return nil, err
	}

	if len(events) > 0 {
		inserted, lateDuplicates, err := s.persist(ctx, driver.ID, events)
		if err != nil {
			return nil, err
		}
		result.SkippedBarcodes = append(result.SkippedBarcodes, lateDuplicates...)
		for _, ev := range inserted {
			result.StatusCounts[string(ev.Status)]++
			s.metrics.RecordRowIngested(ctx, string(ev.Status))
		}
		result.UploadedCount = len(inserted)
	}

	result.SkippedCount = len(result.SkippedBarcodes)
	s.metrics.RecordRowsSkipped(ctx, skipReasonDuplicate, result.SkippedCount)

	log.Info("upload ingested",
		zap.Int("uploaded", result.UploadedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("rejected", len(result.RejectedRows)),
		zap.Any("status_counts", result.StatusCounts),
	)
	return result, nil
}

// uploadTime is noon of the override day, so the row lands on that calendar
// day whatever the offset, or the current instant.
func (s *Service) uploadTime(override string) (time.Time, error) {
	override = strings.TrimSpace(override)
	if override == "" {
		return s.clock.Now().UTC(), nil
	}
	day, err := deliverydomain.ParseDate(override, s.loc)
	if err != nil {
		return time.Time{}, uploaddomain.ErrInvalidDate
	}
	return day.Add(12 * time.Hour).UTC(), nil
}

func (s *Service) rows(req uploaddomain.IngestRequest) ([]uploaddomain.Row, []uploaddomain.RejectedRow, error) {
	if req.Reader == nil {
		if len(req.Rows) == 0 {
			return nil, nil, uploaddomain.ErrNoRows
		}
		var rows []uploaddomain.Row
		var rejected []uploaddomain.RejectedRow
		for _, row := range req.Rows {
			row.Barcode = spreadsheet.NormalizeBarcode(row.Barcode)
			if row.Barcode == "" {
				rejected = append(rejected, uploaddomain.RejectedRow{Line: row.Line, Reason: uploaddomain.RejectMissingBarcode})
				continue
			}
			rows = append(rows, row)
		}
		return rows, rejected, nil
	}

	records, err := spreadsheet.Read(req.Reader, req.Filename)
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, uploaddomain.ErrNoRows
	}
	if !spreadsheet.HasBarcodeColumn(records) {
		return nil, nil, uploaddomain.ErrMissingHeader
	}
	rows, rejected := spreadsheet.MapRows(records, s.loc)
	return rows, rejected, nil
}

// dropKnown removes repeated barcodes within the file and barcodes already
// stored for the driver. The first occurrence in the file wins.
func (s *Service) dropKnown(ctx context.Context, driverID snowflake.ID, rows []uploaddomain.Row) ([]uploaddomain.Row, []string, error) {
	seen := make(map[string]struct{}, len(rows))
	unique := make([]uploaddomain.Row, 0, len(rows))
	var skipped []string
	for _, row := range rows {
		if _, ok := seen[row.Barcode]; ok {
			skipped = append(skipped, row.Barcode)
			continue
		}
		seen[row.Barcode] = struct{}{}
		unique = append(unique, row)
	}

	barcodes := make([]string, 0, len(unique))
	for _, row := range unique {
		barcodes = append(barcodes, row.Barcode)
	}
	existing, err := s.deliveryRepo.ExistingBarcodes(ctx, s.db, driverID, barcodes)
	if err != nil {
		return nil, nil, fmt.Errorf("load existing barcodes: %w", err)
	}

	fresh := unique[:0]
	for _, row := range unique {
		if _, ok := existing[row.Barcode]; ok {
			skipped = append(skipped, row.Barcode)
			continue
		}
		fresh = append(fresh, row)
	}
	return fresh, skipped, nil
}

func (s *Service) buildEvents(ctx context.Context, driverID snowflake.ID, batchID string, createdAt time.Time, rows []uploaddomain.Row) ([]deliverydomain.DeliveryEvent, error) {
	events := make([]deliverydomain.DeliveryEvent, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ev := s.enrich(gctx, row)
			ev.ID = s.genID.Generate()
			ev.DriverID = driverID
			ev.UploadBatchID = batchID
			ev.CreatedAt = createdAt
			events[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return events, nil
}

// enrich geocodes the row and classifies it against the reported fix.
func (s *Service) enrich(ctx context.Context, row uploaddomain.Row) deliverydomain.DeliveryEvent {
	ev := deliverydomain.DeliveryEvent{
		Barcode:     row.Barcode,
		Address:     strings.TrimSpace(row.Address),
		LastEvent:   strings.TrimSpace(row.LastEvent),
		LastEventAt: row.LastEventAt,
		SeqNo:       row.SeqNo,
	}
	if ev.LastEventAt != nil {
		at := ev.LastEventAt.UTC()
		ev.LastEventAt = &at
	}

	rawGPS := strings.TrimSpace(row.GPS)
	reported, gpsOK := reconcile.ParseGPS(rawGPS)
	if rawGPS != "" {
		ev.GPSLocation = &rawGPS
	}
	if gpsOK {
		ev.ReportedLat, ev.ReportedLng = &reported.Lat, &reported.Lng
	}

	if ev.Address == "" {
		ev.Status = deliverydomain.StatusNoAddress
		return ev
	}

	normalized := address.Normalize(ev.Address)
	if zip := ratingdomain.NormalizeZip(normalized.Zip); zip != "" {
		ev.ZipCode = &zip
	}

	var bias *geocodedomain.LatLng
	if gpsOK {
		bias = &geocodedomain.LatLng{Lat: reported.Lat, Lng: reported.Lng}
	}
	resolution := s.resolver.Resolve(ctx, ev.Address, bias)
	if !resolution.Found() {
		ev.Status = deliverydomain.StatusGeocodeZeroResults
		if resolution.AllFailed() {
			ev.Status = deliverydomain.StatusGeocodeError
		}
		return ev
	}

	res := resolution.Result
	expected := reconcile.Point{Lat: res.Location.Lat, Lng: res.Location.Lng}
	formatted := res.FormattedAddress
	source := string(res.Tier)
	ev.ExpectedLat, ev.ExpectedLng = &expected.Lat, &expected.Lng
	ev.FormattedAddress = &formatted
	ev.GeocodeSource = &source
	if ev.ZipCode == nil {
		if zip := ratingdomain.NormalizeZip(address.Normalize(formatted).Zip); zip != "" {
			ev.ZipCode = &zip
		}
	}

	switch {
	case rawGPS == "":
		ev.Status = deliverydomain.StatusGeocoded
		if res.PartialMatch {
			ev.Status = deliverydomain.StatusPartialMatch
		}
	case !gpsOK:
		ev.Status = deliverydomain.StatusGPSParseError
	default:
		verdict := s.matcher.Classify(reported, expected)
		distance := verdict.DistanceKm
		directions := verdict.DirectionsURL
		ev.DistanceKm = &distance
		ev.DirectionsURL = &directions
		ev.Status = deliverydomain.StatusMismatch
		if verdict.Verdict == reconcile.VerdictMatch {
			ev.Status = deliverydomain.StatusMatch
		}
	}
	return ev
}

// persist writes the batch and recomputes payroll in one transaction under
// the driver lock. Rows that lost a race with a concurrent upload come back
// as duplicates.
func (s *Service) persist(ctx context.Context, driverID snowflake.ID, events []deliverydomain.DeliveryEvent) ([]deliverydomain.DeliveryEvent, []string, error) {
	release, err := s.locker.Lock(ctx, lock.DriverKey(driverID))
	if err != nil {
		return nil, nil, err
	}
	defer release()

	var inserted []deliverydomain.DeliveryEvent
	var duplicates []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, duplicates = nil, nil
		for i := range events {
			ok, err := s.deliveryRepo.InsertIgnore(ctx, tx, &events[i])
			if err != nil {
				return fmt.Errorf("insert delivery %s: %w", events[i].Barcode, err)
			}
			if !ok {
				duplicates = append(duplicates, events[i].Barcode)
				continue
			}
			inserted = append(inserted, events[i])
		}
		if len(inserted) == 0 {
			return nil
		}
		if _, err := s.payroll.RecalculateDriver(ctx, tx, driverID); err != nil {
			return fmt.Errorf("recalculate payroll: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return inserted, duplicates, nil
}
