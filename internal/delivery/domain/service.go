package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/routepay/pkg/db/pagination"
)

type Service interface {
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

// ListRequest filters the delivery report. Date selects a single calendar
// day and wins over StartDate/EndDate. Dates are YYYY-MM-DD.
type ListRequest struct {
	DriverCode string `form:"driver_code"`
	Date       string `form:"date"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
	pagination.Page
}

type ListResponse struct {
	Data     []DeliveryEvent     `json:"data"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

const DateLayout = "2006-01-02"

var (
	ErrInvalidDate   = errors.New("invalid_date")
	ErrInvalidRange  = errors.New("invalid_date_range")
	ErrDriverUnknown = errors.New("driver_not_found")
)

// ParseDate parses YYYY-MM-DD or MM/DD/YYYY as midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{DateLayout, "01/02/2006", "1/2/2006"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
