package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Workbook builds an xlsx file in memory with one sheet of headers plus
// rows, columns sized to their content.
func Workbook(title string, headers []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// Excel caps sheet names at 31 characters.
	if len(title) > 31 {
		title = title[:31]
	}
	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, title); err != nil {
		return nil, err
	}

	header := make([]any, len(headers))
	widths := make([]int, len(headers))
	for i, h := range headers {
		header[i] = h
		widths[i] = len(h)
	}
	if err := setRow(f, title, 1, header); err != nil {
		return nil, err
	}

	for i, row := range rows {
		if err := setRow(f, title, i+2, row); err != nil {
			return nil, err
		}
		for col, v := range row {
			if col < len(widths) && v != nil {
				if l := len(fmt.Sprint(v)); l > widths[col] {
					widths[col] = l
				}
			}
		}
	}

	for col, w := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, err
		}
		if w > 43 {
			w = 43
		}
		if err := f.SetColWidth(title, name, name, float64(w+2)); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
