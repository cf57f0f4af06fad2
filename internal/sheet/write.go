package sheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/freight/internal/core/rates"
)

const defaultSheet = "Sheet1"

// TemplateSheet is the worksheet name used for the downloadable template.
const TemplateSheet = "Template"

// TemplateRows is the long-layout example offered as a download.
func TemplateRows() []rates.RawRow {
	return []rates.RawRow{
		rates.RowOf("始发地", "北京", "目的地", "上海", "最小重量", 0.0, "最大重量", 10.0, "价格", 100.0),
		rates.RowOf("始发地", "北京", "目的地", "上海", "最小重量", 10.0, "最大重量", 20.0, "价格", 180.0),
		rates.RowOf("始发地", "深圳", "目的地", "成都", "最小重量", 0.0, "最大重量", 100.0, "价格", 500.0),
	}
}

// SampleRows is the wide-layout data shipped as the default rate file.
func SampleRows() []rates.RawRow {
	return []rates.RawRow{
		rates.RowOf(
			"始发地", "新疆圆通仓",
			"目的地", "新疆维吾尔自治区",
			"1kg", 1.63, "2kg", 1.74, "3kg", 1.85, "4kg", 4.72, "5kg", 5.08, "10kg", 6.88,
		),
		rates.RowOf(
			"始发地", "北京",
			"目的地", "上海",
			"1kg", 12.0, "2kg", 15.0, "3kg", 18.0,
		),
	}
}

// Headers returns the union of row keys in first-appearance order.
func Headers(rows []rates.RawRow) []string {
	seen := make(map[string]bool)
	var headers []string
	for _, row := range rows {
		for _, k := range row.Keys() {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	return headers
}

// WriteRows writes rows as a single-sheet xlsx workbook to w.
// Headers come from Headers(rows); cells a row lacks are left empty.
func WriteRows(w io.Writer, sheetName string, rows []rates.RawRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheetName == "" {
		sheetName = defaultSheet
	}
	if sheetName != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheetName); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}

	headers := Headers(rows)
	for j, h := range headers {
		if err := setCell(f, sheetName, j, 0, h); err != nil {
			return err
		}
	}

	for i, row := range rows {
		for j, h := range headers {
			v, ok := row.Get(h)
			if !ok {
				continue
			}
			if err := setCell(f, sheetName, j, i+1, v); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// setCell writes one value at zero-based (col, row).
func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellValue(sheet, name, v); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}
