package domain

import (
	"context"
	"errors"
	"io"
	"time"
)

// Row is one typed manifest line. Line is the 1-based spreadsheet row,
// header included.
type Row struct {
	Line        int
	Barcode     string
	Address     string
	GPS         string
	LastEvent   string
	LastEventAt *time.Time
	SeqNo       *int
}

// RejectedRow is a manifest line that could not be ingested.
type RejectedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// IngestRequest carries either a file (Reader and Filename) or rows that
// were already parsed. DateOverride, when set, replaces the upload time used
// for pay-period bucketing.
type IngestRequest struct {
	DriverCode   string
	Filename     string
	Reader       io.Reader
	Rows         []Row
	DateOverride string
}

type IngestResult struct {
	BatchID         string         `json:"batch_id"`
	UploadedCount   int            `json:"uploaded_count"`
	SkippedCount    int            `json:"skipped_count"`
	SkippedBarcodes []string       `json:"skipped_barcodes"`
	RejectedRows    []RejectedRow  `json:"rejected_rows"`
	StatusCounts    map[string]int `json:"status_counts"`
}

type Service interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)
}

const RejectMissingBarcode = "missing_barcode"

var (
	ErrInvalidDriverCode   = errors.New("invalid_driver_code")
	ErrDriverNotFound      = errors.New("driver_not_found")
	ErrEmptyFile           = errors.New("empty_file")
	ErrNoRows              = errors.New("no_rows")
	ErrInvalidDate         = errors.New("invalid_date")
	ErrUnsupportedFileType = errors.New("unsupported_file_type")
	ErrMissingHeader       = errors.New("missing_barcode_header")
)
