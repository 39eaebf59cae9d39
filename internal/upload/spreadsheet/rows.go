package spreadsheet

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	uploaddomain "github.com/smallbiznis/routepay/internal/upload/domain"
	"github.com/xuri/excelize/v2"
)

// lineKey carries the source row number through the record map. The leading
// underscore keeps it clear of real headers.
const lineKey = "_line"

var (
	barcodeHeaders   = []string{"barcode", "bar code", "tracking number", "tracking"}
	addressHeaders   = []string{"address", "delivery address"}
	gpsHeaders       = []string{"last gps location", "gps location", "gps"}
	lastEventHeaders = []string{"last event", "event"}
	eventTimeHeaders = []string{"last event time", "event time"}
	seqHeaders       = []string{"seq no", "seq no.", "seq", "sequence"}
)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"01/02/2006 03:04 PM",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

// MapRows converts header-keyed records into typed rows. Records without a
// barcode are returned as rejected.
func MapRows(records []map[string]string, loc *time.Location) ([]uploaddomain.Row, []uploaddomain.RejectedRow) {
	if loc == nil {
		loc = time.UTC
	}
	rows := make([]uploaddomain.Row, 0, len(records))
	var rejected []uploaddomain.RejectedRow
	for i, rec := range records {
		line, err := strconv.Atoi(rec[lineKey])
		if err != nil {
			line = i + 2
		}

		barcode := NormalizeBarcode(lookup(rec, barcodeHeaders))
		if barcode == "" {
			rejected = append(rejected, uploaddomain.RejectedRow{Line: line, Reason: uploaddomain.RejectMissingBarcode})
			continue
		}

		row := uploaddomain.Row{
			Line:      line,
			Barcode:   barcode,
			Address:   lookup(rec, addressHeaders),
			GPS:       lookup(rec, gpsHeaders),
			LastEvent: lookup(rec, lastEventHeaders),
		}
		if at, ok := ParseEventTime(lookup(rec, eventTimeHeaders), loc); ok {
			row.LastEventAt = &at
		}
		if seq, err := strconv.Atoi(NormalizeBarcode(lookup(rec, seqHeaders))); err == nil {
			row.SeqNo = &seq
		}
		rows = append(rows, row)
	}
	return rows, rejected
}

// HasBarcodeColumn reports whether any record carries a barcode header.
func HasBarcodeColumn(records []map[string]string) bool {
	for _, rec := range records {
		for _, h := range barcodeHeaders {
			if _, ok := rec[h]; ok {
				return true
			}
		}
	}
	return false
}

// NormalizeBarcode renders float-formatted numeric barcodes, such as
// 1.23457E+11 or 123456789012.0, as plain integers. Digit-only and
// alphanumeric values are only trimmed so leading zeros survive.
func NormalizeBarcode(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.ContainsAny(raw, ".eE") {
		return raw
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	if !d.Equal(d.Truncate(0)) {
		return raw
	}
	return d.Truncate(0).StringFixed(0)
}

// ParseEventTime accepts the common manifest layouts and Excel serial dates.
func ParseEventTime(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if serial < 20000 || serial > 80000 {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func lookup(rec map[string]string, headers []string) string {
	for _, h := range headers {
		if v, ok := rec[h]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
