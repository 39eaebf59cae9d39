package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/routepay/internal/clock"
	"github.com/smallbiznis/routepay/internal/config"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	deliveryrepository "github.com/smallbiznis/routepay/internal/delivery/repository"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	driverrepository "github.com/smallbiznis/routepay/internal/driver/repository"
	geocodedomain "github.com/smallbiznis/routepay/internal/geocode/domain"
	payrolldomain "github.com/smallbiznis/routepay/internal/payroll/domain"
	payrollrepository "github.com/smallbiznis/routepay/internal/payroll/repository"
	payrollservice "github.com/smallbiznis/routepay/internal/payroll/service"
	ratingservice "github.com/smallbiznis/routepay/internal/rating/service"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	routerepository "github.com/smallbiznis/routepay/internal/route/repository"
	uploaddomain "github.com/smallbiznis/routepay/internal/upload/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type resolverMock struct {
	mock.Mock
}

func (m *resolverMock) Resolve(ctx context.Context, raw string, gps *geocodedomain.LatLng) geocodedomain.Resolution {
	args := m.Called(ctx, raw, gps)
	return args.Get(0).(geocodedomain.Resolution)
}

func found(lat, lng float64, formatted string) geocodedomain.Resolution {
	return geocodedomain.Resolution{
		Result: &geocodedomain.Result{
			Location:         geocodedomain.LatLng{Lat: lat, Lng: lng},
			FormattedAddress: formatted,
			Tier:             geocodedomain.TierGeocode,
		},
		Attempts: []geocodedomain.Attempt{{Tier: geocodedomain.TierGeocode, Candidates: 1}},
	}
}

type harness struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      uploaddomain.Service
	resolver *resolverMock
	drivers  driverdomain.Repository
	events   deliverydomain.Repository
	payroll  payrolldomain.Repository
	clock    *clock.FakeClock
	params   Params
}

// failingPayroll fails every recalculation inside the ingest transaction.
type failingPayroll struct {
	payrolldomain.Service
}

func (failingPayroll) RecalculateDriver(context.Context, *gorm.DB, snowflake.ID) (payrolldomain.RecalcResult, error) {
	return payrolldomain.RecalcResult{}, errors.New("payroll unavailable")
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&driverdomain.DriverProfile{},
		&deliverydomain.DeliveryEvent{},
		&routedomain.Route{},
		&payrolldomain.PayrollRecord{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	h := &harness{
		db:       db,
		node:     node,
		resolver: &resolverMock{},
		drivers:  driverrepository.Provide(),
		events:   deliveryrepository.Provide(),
		payroll:  payrollrepository.Provide(),
		clock:    clock.NewFakeClock(time.Date(2025, time.March, 4, 15, 0, 0, 0, time.UTC)),
	}
	routes := routerepository.Provide()
	now := h.clock.Now()
	require.NoError(t, routes.Insert(context.Background(), db, &routedomain.Route{
		ID:                        node.Generate(),
		Code:                      "springfield",
		Name:                      "Springfield",
		ZipCodes:                  "62704, 62701",
		RatePerStop:               decimal.RequireFromString("1.50"),
		RatePerStopCompanyVehicle: decimal.RequireFromString("2.00"),
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}))

	cfg := config.Config{
		Timezone: "UTC",
		Geocode:  config.GeocodeConfig{Concurrency: 3},
		Payroll:  config.PayrollConfig{MatchThresholdKm: 15, RecalcConcurrency: 1},
	}
	holder := config.NewStaticPayrollPolicyHolder(config.DefaultPayrollPolicy())
	rating := ratingservice.NewService(ratingservice.ServiceParam{Log: zap.NewNop(), RouteRepo: routes, Policy: holder})
	payroll := payrollservice.New(payrollservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		Cfg:          cfg,
		GenID:        node,
		Clock:        h.clock,
		Policy:       holder,
		Repo:         h.payroll,
		DriverRepo:   h.drivers,
		DeliveryRepo: h.events,
		Rating:       rating,
	})
	h.params = Params{
		DB:           db,
		Log:          zap.NewNop(),
		Cfg:          cfg,
		GenID:        node,
		Clock:        h.clock,
		Resolver:     h.resolver,
		DriverRepo:   h.drivers,
		DeliveryRepo: h.events,
		Payroll:      payroll,
	}
	h.svc = New(h.params)
	return h
}

func (h *harness) addDriver(t *testing.T, code string) driverdomain.DriverProfile {
	t.Helper()
	now := h.clock.Now()
	d := driverdomain.DriverProfile{ID: h.node.Generate(), DriverCode: code, FullName: "Alex Kim", SalaryType: "Regular", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, h.drivers.Insert(context.Background(), h.db, &d))
	return d
}

const manifest = "Barcode,Address,Last GPS location,Last Event,Seq No\n" +
	"B-1,\"1 Main St, Springfield, IL 62704\",39.7817 -89.6501,Delivered,1\n" +
	"B-2,\"2 Main St, Springfield, IL 62704\",41.88 -87.63,Delivered,2\n" +
	"B-3,\"nowhere road, IL 62701\",,Attempted,3\n" +
	"B-4,,39.78 -89.65,Attempted,4\n" +
	"B-1,\"1 Main St, Springfield, IL 62704\",39.7817 -89.6501,Delivered,5\n" +
	",\"3 Main St\",,Delivered,6\n"

func (h *harness) expectResolves() {
	h.resolver.On("Resolve", mock.Anything, "1 Main St, Springfield, IL 62704", mock.Anything).
		Return(found(39.78, -89.65, "1 Main St, Springfield, IL 62704, USA"))
	h.resolver.On("Resolve", mock.Anything, "2 Main St, Springfield, IL 62704", mock.Anything).
		Return(found(39.78, -89.65, "2 Main St, Springfield, IL 62704, USA"))
	h.resolver.On("Resolve", mock.Anything, "nowhere road, IL 62701", mock.Anything).
		Return(geocodedomain.Resolution{Attempts: []geocodedomain.Attempt{{Tier: geocodedomain.TierGeocode}}})
}

func TestIngest_ClassifiesRowsAndComputesPayroll(t *testing.T) {
	h := newHarness(t)
	d := h.addDriver(t, "DRV-7")
	h.expectResolves()

	res, err := h.svc.Ingest(context.Background(), uploaddomain.IngestRequest{
		DriverCode: " DRV-7 ",
		Filename:   "manifest.csv",
		Reader:     strings.NewReader(manifest),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, 4, res.UploadedCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, []string{"B-1"}, res.SkippedBarcodes)
	require.Len(t, res.RejectedRows, 1)
	assert.Equal(t, 7, res.RejectedRows[0].Line)
	assert.Equal(t, map[string]int{
		string(deliverydomain.StatusMatch):              1,
		string(deliverydomain.StatusMismatch):           1,
		string(deliverydomain.StatusGeocodeZeroResults): 1,
		string(deliverydomain.StatusNoAddress):          1,
	}, res.StatusCounts)

	rec, err := h.payroll.FindByDriverPeriod(context.Background(), h.db, d.ID, 202510)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "3.00", rec.Amount.StringFixed(2))
	assert.Equal(t, 2, rec.TotalDeliveries)

	delivered, err := h.events.ListWithReportedGPS(context.Background(), h.db, d.ID, "delivered")
	require.NoError(t, err)
	require.Len(t, delivered, 2)
	for _, ev := range delivered {
		require.NotNil(t, ev.ZipCode)
		assert.Equal(t, "62704", *ev.ZipCode)
		require.NotNil(t, ev.DistanceKm)
		require.NotNil(t, ev.DirectionsURL)
		assert.True(t, h.clock.Now().Equal(ev.CreatedAt), "created_at %s", ev.CreatedAt)
	}
}

func TestIngest_ReuploadSkipsEveryRow(t *testing.T) {
	h := newHarness(t)
	d := h.addDriver(t, "DRV-7")
	h.expectResolves()

	_, err := h.svc.Ingest(context.Background(), uploaddomain.IngestRequest{DriverCode: "DRV-7", Filename: "a.csv", Reader: strings.NewReader(manifest)})
	require.NoError(t, err)
	before, err := h.payroll.FindByDriverPeriod(context.Background(), h.db, d.ID, 202510)
	require.NoError(t, err)
	require.NotNil(t, before)

	h.clock.Advance(2 * time.Hour)
	res, err := h.svc.Ingest(context.Background(), uploaddomain.IngestRequest{DriverCode: "DRV-7", Filename: "b.csv", Reader: strings.NewReader(manifest)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.UploadedCount)
	assert.Equal(t, 5, res.SkippedCount)
	assert.Empty(t, res.StatusCounts)

	after, err := h.payroll.FindByDriverPeriod(context.Background(), h.db, d.ID, 202510)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	h.resolver.AssertNumberOfCalls(t, "Resolve", 3)
}

func TestIngest_DateOverrideSelectsPeriod(t *testing.T) {
	h := newHarness(t)
	d := h.addDriver(t, "DRV-9")
	h.expectResolves()

	_, err := h.svc.Ingest(context.Background(), uploaddomain.IngestRequest{
		DriverCode:   "DRV-9",
		Filename:     "manifest.csv",
		Reader:       strings.NewReader(manifest),
		DateOverride: "03/08/2025",
	})
	require.NoError(t, err)

	rec, err := h.payroll.FindByDriverPeriod(context.Background(), h.db, d.ID, 202511)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "03/08/2025 - 03/14/2025", rec.PayPeriod)

	rec, err = h.payroll.FindByDriverPeriod(context.Background(), h.db, d.ID, 202510)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestIngest_PayrollFailureRollsBackDeliveries(t *testing.T) {
	h := newHarness(t)
	h.addDriver(t, "DRV-7")
	h.expectResolves()

	p := h.params
	p.Payroll = failingPayroll{Service: p.Payroll}
	svc := New(p)

	_, err := svc.Ingest(context.Background(), uploaddomain.IngestRequest{
		DriverCode: "DRV-7",
		Filename:   "manifest.csv",
		Reader:     strings.NewReader(manifest),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payroll unavailable")

	var events int64
	require.NoError(t, h.db.Model(&deliverydomain.DeliveryEvent{}).Count(&events).Error)
	assert.Zero(t, events)
	var records int64
	require.NoError(t, h.db.Model(&payrolldomain.PayrollRecord{}).Count(&records).Error)
	assert.Zero(t, records)

	// the same manifest goes through once payroll recovers
	res, err := h.svc.Ingest(context.Background(), uploaddomain.IngestRequest{
		DriverCode: "DRV-7",
		Filename:   "manifest.csv",
		Reader:     strings.NewReader(manifest),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.UploadedCount)
}

func TestIngest_ProviderFailureIsGeocodeError(t *testing.T) {
	h := newHarness(t)
	h.addDriver(t, "DRV-1")
	h.resolver.On("Resolve", mock.Anything, "5 Oak Ave, Springfield, IL 62704", mock.Anything).
		Return(geocodedomain.Resolution{Attempts: []geocodedomain.Attempt{
			{Tier: geocodedomain.TierGeocode, Err: geocodedomain.ErrProviderRequest},
			{Tier: geocodedomain.TierFindPlace, Err: geocodedomain.ErrProviderRequest},
		}})

	res, err := h.svc.Ingest(context.Background(), uploaddomain.IngestRequest{
		DriverCode: "DRV-1",
		Rows: []uploaddomain.Row{
			{Line: 2, Barcode: "9.87654321E+8", Address: "5 Oak Ave, Springfield, IL 62704", GPS: "not a fix", LastEvent: "Delivered"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.UploadedCount)
	assert.Equal(t, map[string]int{string(deliverydomain.StatusGeocodeError): 1}, res.StatusCounts)

	existing, err := h.events.ExistingBarcodes(context.Background(), h.db, h.mustDriver(t, "DRV-1").ID, []string{"987654321"})
	require.NoError(t, err)
	assert.Len(t, existing, 1)
}

func (h *harness) mustDriver(t *testing.T, code string) *driverdomain.DriverProfile {
	t.Helper()
	d, err := h.drivers.FindByCode(context.Background(), h.db, code)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func TestIngest_RequestErrors(t *testing.T) {
	h := newHarness(t)
	h.addDriver(t, "DRV-1")
	ctx := context.Background()

	_, err := h.svc.Ingest(ctx, uploaddomain.IngestRequest{DriverCode: "  "})
	assert.True(t, errors.Is(err, uploaddomain.ErrInvalidDriverCode))

	_, err = h.svc.Ingest(ctx, uploaddomain.IngestRequest{DriverCode: "NOPE", Filename: "a.csv", Reader: strings.NewReader(manifest)})
	assert.True(t, errors.Is(err, uploaddomain.ErrDriverNotFound))

	_, err = h.svc.Ingest(ctx, uploaddomain.IngestRequest{DriverCode: "DRV-1", Filename: "a.csv", Reader: strings.NewReader(manifest), DateOverride: "next week"})
	assert.True(t, errors.Is(err, uploaddomain.ErrInvalidDate))

	_, err = h.svc.Ingest(ctx, uploaddomain.IngestRequest{DriverCode: "DRV-1", Filename: "a.csv", Reader: strings.NewReader("Address,Last Event\n1 Main St,Delivered\n")})
	assert.True(t, errors.Is(err, uploaddomain.ErrMissingHeader))

	_, err = h.svc.Ingest(ctx, uploaddomain.IngestRequest{DriverCode: "DRV-1", Filename: "a.txt", Reader: strings.NewReader(manifest)})
	assert.True(t, errors.Is(err, uploaddomain.ErrUnsupportedFileType))

	_, err = h.svc.Ingest(ctx, uploaddomain.IngestRequest{DriverCode: "DRV-1"})
	assert.True(t, errors.Is(err, uploaddomain.ErrNoRows))
}
