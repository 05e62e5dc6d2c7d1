package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Verifications"

// sheetWriter is the part of *excelize.File used to lay out the master sheet
type sheetWriter interface {
	SetCellValue(sheet, cell string, value interface{}) error
	NewStyle(style *excelize.Style) (int, error)
	SetRowStyle(sheet string, start, end, styleID int) error
	SetColWidth(sheet, startCol, endCol string, width float64) error
	SetPanes(sheet string, panes *excelize.Panes) error
}

// WriteXLSX renders the master table as an XLSX workbook
func WriteXLSX(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	if err := writeSheet(f, rows); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f sheetWriter, rows []Row) error {
	setRow := func(row int, values []string) error {
		for i, v := range values {
			cell, err := excelize.CoordinatesToCellName(i+1, row)
			if err != nil {
				return fmt.Errorf("naming cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("setting cell %s: %w", cell, err)
			}
		}
		return nil
	}

	header := MasterHeader()
	if err := setRow(1, header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, r := range rows {
		if err := setRow(i+2, r.record()); err != nil {
			return err
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("naming column: %w", err)
	}
	widths := []struct {
		from, to string
		width    float64
	}{
		{"A", "A", 38},
		{"B", "B", 22},
		{"D", last, 16},
	}
	for _, w := range widths {
		if err := f.SetColWidth(sheetName, w.from, w.to, w.width); err != nil {
			return fmt.Errorf("setting column width: %w", err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freezing header: %w", err)
	}
	return nil
}
