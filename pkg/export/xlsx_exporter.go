package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Timetable"

// XLSXExporter renders datasets into a single styled worksheet.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (e *XLSXExporter) Extension() string { return "xlsx" }

// Render writes the title on the first row, headers on the next and one row per record.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if err := requireHeaders("xlsx", data); err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	bodyStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("create body style: %w", err)
	}

	row := 1
	lastCol, _ := excelize.ColumnNumberToName(len(data.Headers))
	if data.Title != "" {
		_ = f.SetCellValue(xlsxSheet, "A1", data.Title)
		if len(data.Headers) > 1 {
			_ = f.MergeCell(xlsxSheet, "A1", lastCol+"1")
		}
		_ = f.SetCellStyle(xlsxSheet, "A1", "A1", headerStyle)
		row++
	}

	for i, header := range data.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(xlsxSheet, cell, header)
		_ = f.SetCellStyle(xlsxSheet, cell, cell, headerStyle)
	}
	_ = f.SetColWidth(xlsxSheet, "A", lastCol, 24)
	row++

	for _, record := range data.Rows {
		for i, header := range data.Headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(xlsxSheet, cell, record[header])
			_ = f.SetCellStyle(xlsxSheet, cell, cell, bodyStyle)
		}
		row++
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
