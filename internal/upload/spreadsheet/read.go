// Package spreadsheet reads courier manifests from CSV, XLSX and XLS files
// into header-keyed records and typed rows.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	uploaddomain "github.com/smallbiznis/routepay/internal/upload/domain"
	"github.com/xuri/excelize/v2"
)

const maxXLSRows = 100000

// Read parses the file and returns one record per non-empty data row, keyed
// by normalized header. The first non-empty row is the header.
func Read(reader io.Reader, filename string) ([]map[string]string, error) {
	if reader == nil {
		return nil, uploaddomain.ErrEmptyFile
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, uploaddomain.ErrEmptyFile
	}

	grid, err := readGrid(data, filename)
	if err != nil {
		return nil, err
	}
	return toRecords(grid), nil
}

func readGrid(data []byte, filename string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		r.TrimLeadingSpace = true
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		return rows, nil
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, fmt.Errorf("open xls: %w", err)
		}
		if workbook.NumSheets() == 0 {
			return nil, uploaddomain.ErrEmptyFile
		}
		return workbook.ReadAllCells(maxXLSRows), nil
	case ".xlsx", ".xlsm":
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open xlsx: %w", err)
		}
		defer func() { _ = file.Close() }()

		sheet := file.GetSheetName(0)
		if sheet == "" {
			return nil, uploaddomain.ErrEmptyFile
		}
		rows, err := file.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read xlsx: %w", err)
		}
		return rows, nil
	default:
		return nil, uploaddomain.ErrUnsupportedFileType
	}
}

func toRecords(grid [][]string) []map[string]string {
	headerIdx := -1
	for i, row := range grid {
		if !blank(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil
	}

	header := grid[headerIdx]
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = NormalizeHeader(h)
	}

	records := make([]map[string]string, 0, len(grid)-headerIdx-1)
	for i := headerIdx + 1; i < len(grid); i++ {
		row := grid[i]
		if blank(row) {
			continue
		}
		rec := make(map[string]string, len(keys)+1)
		for col, key := range keys {
			if key == "" || col >= len(row) {
				continue
			}
			rec[key] = strings.TrimSpace(row[col])
		}
		rec[lineKey] = fmt.Sprint(i + 1)
		records = append(records, rec)
	}
	return records
}

// NormalizeHeader lowercases and collapses whitespace in a column name.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
