package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter writes ledger rows to a single styled worksheet
type ExcelExporter struct {
	file    *excelize.File
	options ExcelOptions
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	SheetName       string            `json:"sheet_name"`
	FreezeHeader    bool              `json:"freeze_header"`
	AutoFilter      bool              `json:"auto_filter"`
	TimestampFormat string            `json:"timestamp_format"`
	HeaderStyle     *ExcelStyleConfig `json:"header_style,omitempty"`
	AutoWidth       bool              `json:"auto_width"`
}

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool   `json:"font_bold"`
	FontSize  int    `json:"font_size"`
	FontColor string `json:"font_color"`
	FillColor string `json:"fill_color"`
	Alignment string `json:"alignment"`
	Border    bool   `json:"border"`
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SheetName:       "Sertifikat",
		FreezeHeader:    true,
		AutoFilter:      true,
		TimestampFormat: "yyyy-mm-dd hh:mm:ss",
		AutoWidth:       true,
		HeaderStyle: &ExcelStyleConfig{
			FontBold:  true,
			FontSize:  11,
			FillColor: "1E3A8A",
			FontColor: "FFFFFF",
			Alignment: "center",
			Border:    true,
		},
	}
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(options ExcelOptions) (*ExcelExporter, error) {
	file := excelize.NewFile()
	if err := file.SetSheetName("Sheet1", options.SheetName); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	return &ExcelExporter{
		file:    file,
		options: options,
	}, nil
}

// WriteHeader writes the header row with styling
func (e *ExcelExporter) WriteHeader(columns []string) error {
	sheet := e.options.SheetName

	styleID := 0
	if e.options.HeaderStyle != nil {
		id, err := e.createStyle(e.options.HeaderStyle)
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		styleID = id
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(sheet, cell, col); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if styleID > 0 {
			if err := e.file.SetCellStyle(sheet, cell, cell, styleID); err != nil {
				return fmt.Errorf("failed to style header: %w", err)
			}
		}
	}

	if e.options.FreezeHeader {
		err := e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
		if err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}
	return nil
}

// WriteRows writes data rows below the header
func (e *ExcelExporter) WriteRows(rows [][]interface{}, columns []string) error {
	sheet := e.options.SheetName

	timeStyle, err := e.file.NewStyle(&excelize.Style{CustomNumFmt: &e.options.TimestampFormat})
	if err != nil {
		return fmt.Errorf("failed to create timestamp style: %w", err)
	}

	widths := make(map[int]float64)
	for i, col := range columns {
		widths[i] = estimateWidth(col)
	}

	for r, row := range rows {
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if t, ok := val.(time.Time); ok {
				if err := e.file.SetCellValue(sheet, cell, t.UTC()); err != nil {
					return fmt.Errorf("failed to set cell %s: %w", cell, err)
				}
				if err := e.file.SetCellStyle(sheet, cell, cell, timeStyle); err != nil {
					return fmt.Errorf("failed to style cell %s: %w", cell, err)
				}
				widths[c] = max(widths[c], 20)
				continue
			}
			if err := e.file.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
			widths[c] = max(widths[c], estimateWidth(val))
		}
	}

	if e.options.AutoFilter && len(columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(columns), len(rows)+1)
		if err := e.file.AutoFilter(sheet, "A1:"+last, nil); err != nil {
			return fmt.Errorf("failed to add auto filter: %w", err)
		}
	}

	if e.options.AutoWidth {
		for c, width := range widths {
			name, _ := excelize.ColumnNumberToName(c + 1)
			// Min width 10, max width 50
			width = min(max(width, 10), 50)
			if err := e.file.SetColWidth(sheet, name, name, width); err != nil {
				return fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}
	return nil
}

// WriteTo writes the workbook to w
func (e *ExcelExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

// Close closes the Excel file
func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

func (e *ExcelExporter) createStyle(config *ExcelStyleConfig) (int, error) {
	style := &excelize.Style{
		Font: &excelize.Font{
			Bold:  config.FontBold,
			Size:  float64(config.FontSize),
			Color: config.FontColor,
		},
	}
	if config.FillColor != "" {
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{config.FillColor}}
	}
	if config.Alignment != "" {
		style.Alignment = &excelize.Alignment{Horizontal: config.Alignment}
	}
	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}
	return e.file.NewStyle(style)
}

// estimateWidth is a rough display width: one unit per character plus padding.
func estimateWidth(val interface{}) float64 {
	if val == nil {
		return 0
	}
	return float64(len(fmt.Sprintf("%v", val))) * 1.2
}

type excelWriter struct {
	options ExcelOptions
}

func (x excelWriter) Write(w io.Writer, rows []Row) error {
	e, err := NewExcelExporter(x.options)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.WriteHeader(Columns); err != nil {
		return err
	}
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = row.values()
	}
	if err := e.WriteRows(values, Columns); err != nil {
		return err
	}
	return e.WriteTo(w)
}
