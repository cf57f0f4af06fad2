// Package sheet reads and writes rate spreadsheets.
//
// Decoding produces the same row shape a generic sheet-to-JSON decoder
// would: the first row is the header, empty cells are omitted, fully empty
// rows are skipped, numeric cells become float64 and everything else a
// string. Duplicate headers get "_1", "_2" suffixes and blank headers are
// named "__EMPTY".
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/freight/internal/core/rates"
)

var (
	// ErrInvalidWorkbook is returned when the input cannot be read as a spreadsheet.
	ErrInvalidWorkbook = errors.New("invalid workbook")

	// ErrNoSheets is returned for a workbook without worksheets.
	ErrNoSheets = errors.New("invalid workbook: no worksheets")
)

// Decode reads the first worksheet of an xlsx workbook, or a CSV file when
// filename ends in .csv, into raw rows.
func Decode(r io.Reader, filename string) ([]rates.RawRow, error) {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return decodeCSV(r)
	}
	return decodeWorkbook(r)
}

func decodeWorkbook(r io.Reader) ([]rates.RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	sheet := sheets[0]

	grid, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrInvalidWorkbook, sheet, err)
	}

	return buildRows(grid, func(row, col int, raw string) any {
		// Grid coordinates are zero-based; cell names are one-based.
		name, err := excelize.CoordinatesToCellName(col+1, row+1)
		if err != nil {
			return raw
		}
		cellType, err := f.GetCellType(sheet, name)
		if err != nil {
			return raw
		}
		return typedValue(cellType, raw)
	}), nil
}

// typedValue converts a raw cell to float64 for numeric cells.
// Cells without an explicit type attribute are numeric when they parse.
func typedValue(cellType excelize.CellType, raw string) any {
	switch cellType {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if f, ok := parseNumber(raw); ok {
			return f
		}
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	}
	return raw
}

func decodeCSV(r io.Reader) ([]rates.RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	grid, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}

	if len(grid) > 0 && len(grid[0]) > 0 {
		grid[0][0] = strings.TrimPrefix(grid[0][0], "\ufeff")
	}

	return buildRows(grid, func(_, _ int, raw string) any {
		if f, ok := parseNumber(strings.TrimSpace(raw)); ok {
			return f
		}
		return raw
	}), nil
}

// parseNumber accepts finite decimal numbers only.
func parseNumber(raw string) (float64, bool) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// buildRows maps a header row plus data rows to RawRows.
// convert receives zero-based grid coordinates.
func buildRows(grid [][]string, convert func(row, col int, raw string) any) []rates.RawRow {
	if len(grid) == 0 {
		return nil
	}

	headers := headerNames(grid[0])

	rows := make([]rates.RawRow, 0, len(grid)-1)
	for i := 1; i < len(grid); i++ {
		var row rates.RawRow
		for j, cell := range grid[i] {
			if j >= len(headers) || cell == "" {
				continue
			}
			row.Set(headers[j], convert(i, j, cell))
		}
		if row.Len() == 0 {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// headerNames trims headers and makes them unique.
func headerNames(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	headers := make([]string, len(raw))
	for i, h := range raw {
		base := strings.TrimSpace(h)
		if base == "" {
			base = "__EMPTY"
		}
		name := base
		for n := 1; seen[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		seen[name] = true
		headers[i] = name
	}
	return headers
}
