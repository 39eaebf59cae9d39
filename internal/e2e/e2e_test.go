package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/routepay/internal/clock"
	"github.com/smallbiznis/routepay/internal/config"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	driverrepository "github.com/smallbiznis/routepay/internal/driver/repository"
	geocodedomain "github.com/smallbiznis/routepay/internal/geocode/domain"
	"github.com/smallbiznis/routepay/internal/migration"
	"github.com/smallbiznis/routepay/internal/observability"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	routerepository "github.com/smallbiznis/routepay/internal/route/repository"
	"github.com/smallbiznis/routepay/internal/server"
	"github.com/smallbiznis/routepay/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app     *fx.App
	server  *server.Server
	db      *gorm.DB
	genID   *snowflake.Node
	baseURL string
	httpSrv *httptest.Server
	dataDir string
}

var env *testEnv

// springfieldResolver places every address in downtown Springfield so the
// suite never reaches a geocoding provider.
type springfieldResolver struct{}

func (springfieldResolver) Resolve(_ context.Context, raw string, _ *geocodedomain.LatLng) geocodedomain.Resolution {
	return geocodedomain.Resolution{
		Result: &geocodedomain.Result{
			Location:         geocodedomain.LatLng{Lat: 39.78, Lng: -89.65},
			FormattedAddress: raw + ", USA",
			Tier:             geocodedomain.TierGeocode,
		},
		Attempts: []geocodedomain.Attempt{{Tier: geocodedomain.TierGeocode, Candidates: 1}},
	}
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	dataDir, err := os.MkdirTemp("", "routepay-e2e-")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create data dir:", err)
		os.Exit(1)
	}
	setDefaultEnv(dataDir)

	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		_ = os.RemoveAll(dataDir)
		os.Exit(1)
	}
	env.dataDir = dataDir

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

const manifest = "Barcode,Address,Last GPS location,Last Event,Seq No\n" +
	"E-1,\"1 Main St, Springfield, IL 62704\",39.7817 -89.6501,Delivered,1\n" +
	"E-2,\"2 Main St, Springfield, IL 62704\",39.7820 -89.6490,Delivered,2\n" +
	"E-3,\"3 Main St, Springfield, IL 62704\",39.7830 -89.6480,Attempted,3\n"

type payrollRow struct {
	PayPeriodKey    int             `json:"pay_period_key"`
	TotalDeliveries int             `json:"total_deliveries"`
	Amount          decimal.Decimal `json:"amount"`
	TotalDeduction  decimal.Decimal `json:"total_deduction"`
	NetPay          decimal.Decimal `json:"net_pay"`
}

func TestE2E_UploadPayrollLifecycle(t *testing.T) {
	resetDatabase(t, env.db)
	seedRoute(t, "springfield", "62704, 62701", "1.50")
	driver := seedDriver(t, "DRV-E2E")

	resp, body := doUpload(t, "/drivers/DRV-E2E/uploads", "manifest.csv", manifest, "2025-03-04")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var uploaded struct {
		Data struct {
			BatchID       string         `json:"batch_id"`
			UploadedCount int            `json:"uploaded_count"`
			SkippedCount  int            `json:"skipped_count"`
			StatusCounts  map[string]int `json:"status_counts"`
		} `json:"data"`
	}
	decodeBody(t, body, &uploaded)
	if uploaded.Data.BatchID == "" || uploaded.Data.UploadedCount != 3 || uploaded.Data.SkippedCount != 0 {
		t.Fatalf("unexpected upload result: %s", body)
	}
	if uploaded.Data.StatusCounts["match"] != 3 {
		t.Fatalf("expected 3 matched rows, got %v", uploaded.Data.StatusCounts)
	}

	records := listPayroll(t, "DRV-E2E")
	if len(records) != 1 {
		t.Fatalf("expected 1 payroll record, got %d", len(records))
	}
	if records[0].PayPeriodKey != 202510 {
		t.Fatalf("expected period 202510, got %d", records[0].PayPeriodKey)
	}
	if records[0].TotalDeliveries != 2 || records[0].Amount.StringFixed(2) != "3.00" {
		t.Fatalf("unexpected payroll: deliveries=%d amount=%s", records[0].TotalDeliveries, records[0].Amount)
	}

	resp, body = doUpload(t, "/drivers/DRV-E2E/uploads", "again.csv", manifest, "2025-03-04")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-upload: expected 200, got %d: %s", resp.StatusCode, body)
	}
	decodeBody(t, body, &uploaded)
	if uploaded.Data.UploadedCount != 0 || uploaded.Data.SkippedCount != 3 {
		t.Fatalf("re-upload should skip every row: %s", body)
	}

	resp, body = doJSON(t, http.MethodPut, "/drivers/DRV-E2E/payroll/202510/deduction", map[string]any{"total_deduction": "1.25"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deduction: expected 200, got %d: %s", resp.StatusCode, body)
	}
	records = listPayroll(t, "DRV-E2E")
	if records[0].NetPay.StringFixed(2) != "1.75" {
		t.Fatalf("expected net pay 1.75, got %s", records[0].NetPay)
	}

	resp, body = doJSON(t, http.MethodGet, "/deliveries?driver_code=DRV-E2E&date=2025-03-04", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deliveries: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var deliveries struct {
		Data []struct {
			Barcode string `json:"barcode"`
		} `json:"data"`
	}
	decodeBody(t, body, &deliveries)
	if len(deliveries.Data) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(deliveries.Data))
	}

	resp, body = doJSON(t, http.MethodPost, "/payroll/recalculate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recalculate: expected 200, got %d: %s", resp.StatusCode, body)
	}
	records = listPayroll(t, "DRV-E2E")
	if records[0].TotalDeduction.StringFixed(2) != "1.25" {
		t.Fatalf("recalculation must keep the deduction, got %s", records[0].TotalDeduction)
	}

	resp, body = doJSON(t, http.MethodDelete, "/drivers/DRV-E2E/uploads?date=2025-03-04", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete uploads: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var deleted struct {
		Data struct {
			DeletedUploads int64 `json:"deleted_uploads"`
		} `json:"data"`
	}
	decodeBody(t, body, &deleted)
	if deleted.Data.DeletedUploads != 3 {
		t.Fatalf("expected 3 deleted uploads, got %d", deleted.Data.DeletedUploads)
	}
	if countRows(t, env.db, "delivery_events", "driver_id = ?", driver.ID) != 0 {
		t.Fatalf("expected delivery events to be removed")
	}
	if got := listPayroll(t, "DRV-E2E"); len(got) != 0 {
		t.Fatalf("expected payroll to be removed, got %d records", len(got))
	}
}

func TestE2E_ManageDriversAndRoutes(t *testing.T) {
	resetDatabase(t, env.db)

	resp, body := doJSON(t, http.MethodPut, "/routes", map[string]any{
		"name":          "Springfield Downtown",
		"zip_codes":     []string{"62704", "62701-0001"},
		"rate_per_stop": "2.10",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("route: expected 201, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, "/drivers", map[string]any{
		"driver_code": "DRV-NEW",
		"full_name":   "Robin Vale",
		"salary_type": "Regular",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("driver: expected 201, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doUpload(t, "/drivers/DRV-NEW/uploads", "manifest.csv", manifest, "2025-03-04")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", resp.StatusCode, body)
	}
	records := listPayroll(t, "DRV-NEW")
	if len(records) != 1 || records[0].Amount.StringFixed(2) != "4.20" {
		t.Fatalf("unexpected payroll %+v", records)
	}

	resp, body = doJSON(t, http.MethodPut, "/routes", map[string]any{
		"name":          "Springfield Downtown",
		"zip_codes":     []string{"62704"},
		"rate_per_stop": "3.00",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("route update: expected 200, got %d: %s", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodPost, "/payroll/recalculate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recalculate: expected 200, got %d: %s", resp.StatusCode, body)
	}
	records = listPayroll(t, "DRV-NEW")
	if records[0].Amount.StringFixed(2) != "6.00" {
		t.Fatalf("expected new rate to apply, got %s", records[0].Amount)
	}

	resp, body = doJSON(t, http.MethodDelete, "/drivers/DRV-NEW", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete driver: expected 204, got %d: %s", resp.StatusCode, body)
	}
	if countRows(t, env.db, "delivery_events", "1 = 1") != 0 || countRows(t, env.db, "payroll_records", "1 = 1") != 0 {
		t.Fatalf("expected driver data to be removed")
	}

	resp, body = doJSON(t, http.MethodGet, "/drivers/DRV-NEW", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d: %s", resp.StatusCode, body)
	}
}

func TestE2E_UnknownDriver(t *testing.T) {
	resetDatabase(t, env.db)

	resp, body := doUpload(t, "/drivers/NOBODY/uploads", "manifest.csv", manifest, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, "/drivers/NOBODY/payroll", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", resp.StatusCode, body)
	}
}

func TestE2E_ValidateWithoutProvider(t *testing.T) {
	resetDatabase(t, env.db)

	resp, body := doJSON(t, http.MethodPost, "/validate", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", resp.StatusCode, body)
	}
}

func startEnv() (*testEnv, error) {
	var (
		srv    *server.Server
		dbConn *gorm.DB
		genID  *snowflake.Node
	)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(1)
		}),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		fx.Decorate(func(geocodedomain.Resolver) geocodedomain.Resolver {
			return springfieldResolver{}
		}),
		fx.Populate(&srv, &dbConn, &genID),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:     app,
		server:  srv,
		db:      dbConn,
		genID:   genID,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.dataDir != "" {
		_ = os.RemoveAll(e.dataDir)
	}
}

func setDefaultEnv(dataDir string) {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("HTTP_ADDR", "127.0.0.1:0")
	_ = os.Setenv("DATABASE_TYPE", "sqlite")
	_ = os.Setenv("DATABASE_NAME", "file:"+filepath.Join(dataDir, "routepay.db")+"?_busy_timeout=5000")
	_ = os.Setenv("DATABASE_MAX_OPEN_CONN", "1")
	_ = os.Setenv("DATABASE_RUN_MIGRATIONS", "true")
	_ = os.Setenv("REDIS_ADDR", "")
	_ = os.Setenv("GOOGLE_MAPS_API_KEY", "")
	_ = os.Setenv("AIRTABLE_API_KEY", "")
	_ = os.Setenv("UPLOAD_RATE_PER_MINUTE", "0")
	_ = os.Setenv("RECALC_INTERVAL", "0")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	models := migration.Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := dbConn.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(models[i]).Error; err != nil {
			t.Fatalf("clear table: %v", err)
		}
	}
}

func seedDriver(t *testing.T, code string) driverdomain.DriverProfile {
	t.Helper()
	now := time.Now().UTC()
	d := driverdomain.DriverProfile{
		ID:         env.genID.Generate(),
		DriverCode: code,
		FullName:   "Sam Rivera",
		SalaryType: "Regular",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := driverrepository.Provide().Insert(context.Background(), env.db, &d); err != nil {
		t.Fatalf("seed driver: %v", err)
	}
	return d
}

func seedRoute(t *testing.T, code, zips, rate string) {
	t.Helper()
	now := time.Now().UTC()
	rt := routedomain.Route{
		ID:                        env.genID.Generate(),
		Code:                      code,
		Name:                      strings.ToUpper(code[:1]) + code[1:],
		ZipCodes:                  zips,
		RatePerStop:               decimal.RequireFromString(rate),
		RatePerStopCompanyVehicle: decimal.RequireFromString(rate),
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if err := routerepository.Provide().Insert(context.Background(), env.db, &rt); err != nil {
		t.Fatalf("seed route: %v", err)
	}
}

func listPayroll(t *testing.T, driverCode string) []payrollRow {
	t.Helper()
	resp, body := doJSON(t, http.MethodGet, "/drivers/"+driverCode+"/payroll", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list payroll: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Data []payrollRow `json:"data"`
	}
	decodeBody(t, body, &out)
	return out.Data
}

func countRows(t *testing.T, dbConn *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := dbConn.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func decodeBody(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode response: %v: %s", err, body)
	}
}

func doUpload(t *testing.T, path, filename, content, date string) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if date != "" {
		if err := w.WriteField("date", date); err != nil {
			t.Fatalf("write date field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, env.baseURL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return send(t, req)
}

func doJSON(t *testing.T, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return send(t, req)
}

func send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
