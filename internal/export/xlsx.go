package export

import (
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"
)

// Workbook builds a single-sheet XLSX download.
type Workbook struct {
	file  *excelize.File
	sheet string
	row   int
}

// NewWorkbook creates a workbook with one named sheet.
func NewWorkbook(sheet string) (*Workbook, error) {
	f := excelize.NewFile()
	defaultSheet := f.GetSheetName(0)
	if defaultSheet != sheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return &Workbook{file: f, sheet: sheet}, nil
}

// AppendRow writes cells into the next row.
func (wb *Workbook) AppendRow(cells ...any) error {
	wb.row++
	cell, err := excelize.CoordinatesToCellName(1, wb.row)
	if err != nil {
		return err
	}
	return wb.file.SetSheetRow(wb.sheet, cell, &cells)
}

// FreezeHeader pins the first row while scrolling.
func (wb *Workbook) FreezeHeader() error {
	return wb.file.SetPanes(wb.sheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	})
}

// Send writes the workbook to the response with download headers.
func (wb *Workbook) Send(w http.ResponseWriter, filename string) error {
	defer wb.file.Close()
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return wb.file.Write(w)
}
