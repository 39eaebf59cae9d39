// Package airtable reads the driver roster and route rate sheet from an
// Airtable base.
package airtable

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mehanizm/airtable"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/routepay/internal/config"
	referencedomain "github.com/smallbiznis/routepay/internal/reference/domain"
	"go.uber.org/fx"
)

const (
	defaultBaseURL = "https://api.airtable.com/v0"
	maxPages       = 200
	pageSize       = 100
)

var (
	driverCodeFields = []string{"Driver ID", "Driver Code", "OFID Number", "OFIDNumber"}
	fullNameFields   = []string{"Full Name", "Name", "fullName"}
	salaryTypeFields = []string{"Salary Type", "salaryType"}
	scheduleFields   = []string{"Schedule", "schedule"}

	routeNameFields      = []string{"Route Name", "Route", "Name"}
	zipCodeFields        = []string{"Zip Codes", "ZIP Codes", "Zip Code", "Zips"}
	ratePerStopFields    = []string{"Rate Per Stop", "Rate per Stop", "rate_per_stop"}
	companyVehicleFields = []string{"Rate Per Stop Company Vehicle", "Company Vehicle Rate", "rate_per_stop_company_vehicle"}
	baseRateFields       = []string{"Base Rate", "base_rate"}
	zoneFields           = []string{"Zone", "zone"}
)

type Client struct {
	api         *airtable.Client
	baseID      string
	driverTable string
	routeTable  string
}

type Params struct {
	fx.In

	Cfg        config.Config
	HTTPClient *http.Client `optional:"true"`
}

// New returns nil when the base is not configured, leaving reference sync
// disabled.
func New(p Params) (referencedomain.Source, error) {
	cfg := p.Cfg.Airtable
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.BaseID) == "" {
		return nil, nil
	}
	c, err := NewClient(cfg, p.HTTPClient)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func NewClient(cfg config.AirtableConfig, httpClient *http.Client) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	api := airtable.NewClient(strings.TrimSpace(cfg.APIKey))
	if err := api.SetBaseURL(baseURL); err != nil {
		return nil, err
	}
	api.SetCustomClient(httpClient)

	driverTable := strings.TrimSpace(cfg.DriverTable)
	if driverTable == "" {
		driverTable = "Drivers"
	}
	routeTable := strings.TrimSpace(cfg.RouteTable)
	if routeTable == "" {
		routeTable = "Routes"
	}
	return &Client{
		api:         api,
		baseID:      strings.TrimSpace(cfg.BaseID),
		driverTable: driverTable,
		routeTable:  routeTable,
	}, nil
}

func (c *Client) ListDrivers(ctx context.Context) ([]referencedomain.DriverRecord, error) {
	records, err := c.list(ctx, c.driverTable)
	if err != nil {
		return nil, err
	}
	out := make([]referencedomain.DriverRecord, 0, len(records))
	for _, rec := range records {
		name := fieldString(rec.Fields, fullNameFields)
		if name == "" {
			name = strings.TrimSpace(fieldString(rec.Fields, []string{"firstName", "First Name"}) + " " +
				fieldString(rec.Fields, []string{"lastName", "Last Name"}))
		}
		out = append(out, referencedomain.DriverRecord{
			Code:       fieldString(rec.Fields, driverCodeFields),
			FullName:   name,
			SalaryType: fieldString(rec.Fields, salaryTypeFields),
			Schedule:   strings.Join(fieldList(rec.Fields, scheduleFields), ", "),
		})
	}
	return out, nil
}

func (c *Client) ListRoutes(ctx context.Context) ([]referencedomain.RouteRecord, error) {
	records, err := c.list(ctx, c.routeTable)
	if err != nil {
		return nil, err
	}
	out := make([]referencedomain.RouteRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, referencedomain.RouteRecord{
			Name:                      fieldString(rec.Fields, routeNameFields),
			ZipCodes:                  fieldList(rec.Fields, zipCodeFields),
			RatePerStop:               fieldDecimal(rec.Fields, ratePerStopFields),
			RatePerStopCompanyVehicle: fieldDecimal(rec.Fields, companyVehicleFields),
			BaseRate:                  fieldDecimal(rec.Fields, baseRateFields),
			Zone:                      fieldString(rec.Fields, zoneFields),
			Schedule:                  strings.Join(fieldList(rec.Fields, scheduleFields), ", "),
		})
	}
	return out, nil
}

// list follows the offset cursor until the table is exhausted.
func (c *Client) list(ctx context.Context, table string) ([]*airtable.Record, error) {
	tbl := c.api.GetTable(c.baseID, table)

	var all []*airtable.Record
	offset := ""
	for page := 0; page < maxPages; page++ {
		q := tbl.GetRecords().PageSize(pageSize)
		if offset != "" {
			q = q.WithOffset(offset)
		}
		res, err := q.DoContext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %v", referencedomain.ErrSourceRequest, table, err)
		}
		all = append(all, res.Records...)
		if res.Offset == "" {
			return all, nil
		}
		offset = res.Offset
	}
	return nil, fmt.Errorf("%w: %s: too many pages", referencedomain.ErrSourceRequest, table)
}

func fieldString(fields map[string]any, names []string) string {
	for _, name := range names {
		v, ok := fields[name]
		if !ok {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

func fieldList(fields map[string]any, names []string) []string {
	for _, name := range names {
		v, ok := fields[name]
		if !ok {
			continue
		}
		var out []string
		switch typed := v.(type) {
		case []any:
			for _, item := range typed {
				if s := stringify(item); s != "" {
					out = append(out, s)
				}
			}
		default:
			for _, part := range strings.FieldsFunc(stringify(v), func(r rune) bool {
				return r == ',' || r == ';' || r == '\n'
			}) {
				if s := strings.TrimSpace(part); s != "" {
					out = append(out, s)
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func fieldDecimal(fields map[string]any, names []string) decimal.Decimal {
	raw := strings.NewReplacer("$", "", ",", "").Replace(fieldString(fields, names))
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func stringify(v any) string {
	switch typed := v.(type) {
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return decimal.NewFromFloat(typed).String()
	case bool:
		if typed {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}
