package format

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/remap/internal/record"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// SpreadsheetDecoder decodes the first worksheet of a workbook.
//
// The workbook kind is sniffed from content rather than trusted from the
// MIME type: OOXML (zip) goes to excelize, legacy BIFF (OLE2) goes to the
// xls reader, and anything else is read as CSV, since browsers label .csv
// uploads as application/vnd.ms-excel on many Windows setups.
//
// The first non-blank row names the fields; blank rows are skipped and
// cells missing from a row become null. XLSX cells keep their type (number,
// boolean, string). XLS cells are always strings.
type SpreadsheetDecoder struct {
	fallback *CSVDecoder
}

// NewSpreadsheetDecoder returns a spreadsheet decoder.
func NewSpreadsheetDecoder() *SpreadsheetDecoder {
	return &SpreadsheetDecoder{fallback: NewCSVDecoder(',')}
}

func (d *SpreadsheetDecoder) Format() Format { return FormatSpreadsheet }

func (d *SpreadsheetDecoder) Decode(data []byte) Result {
	return d.decode(data, -1)
}

func (d *SpreadsheetDecoder) Headers(data []byte) []string {
	return d.decode(data, 1).Headers()
}

func (d *SpreadsheetDecoder) decode(data []byte, limit int) Result {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return decodeXLSX(data, limit)
	case bytes.HasPrefix(data, ole2Magic):
		return decodeXLS(data, limit)
	default:
		return d.fallback.decode(data, limit)
	}
}

func workbookError(err error) Result {
	return Result{
		Format: FormatSpreadsheet,
		Errors: []record.DecodeError{{Row: 0, Message: fmt.Sprintf("unreadable workbook: %v", err)}},
	}
}

// sheetRows accumulates records from raw row cells.
type sheetRows struct {
	res    Result
	header []string
	limit  int
}

func (s *sheetRows) full() bool {
	return s.limit >= 0 && len(s.res.Records) >= s.limit
}

// add consumes one raw row. value converts the cell at column i.
// It reports whether the row became a record.
func (s *sheetRows) add(cells []string, value func(i int, raw string) record.Value) bool {
	if isBlankRow(cells) {
		return false
	}
	if s.header == nil {
		s.header = headerNames(cells)
		return false
	}

	rec := record.New(len(s.header))
	for i, name := range s.header {
		if i >= len(cells) || cells[i] == "" {
			rec.Set(name, record.Null())
			continue
		}
		rec.Set(name, value(i, cells[i]))
	}
	s.res.Records = append(s.res.Records, rec)
	return true
}

func decodeXLSX(data []byte, limit int) Result {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return workbookError(err)
	}
	defer f.Close()

	out := &sheetRows{res: Result{Format: FormatSpreadsheet}, limit: limit}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return out.res
	}
	sheet := sheets[0]

	rows, err := f.Rows(sheet)
	if err != nil {
		return workbookError(err)
	}
	defer rows.Close()

	line := 0
	for !out.full() && rows.Next() {
		line++
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			out.res.Errors = append(out.res.Errors, record.DecodeError{
				Row:     len(out.res.Records),
				Line:    line,
				Message: err.Error(),
			})
			continue
		}

		rowNum := line
		out.add(cells, func(i int, raw string) record.Value {
			cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
			if err != nil {
				return record.String(raw)
			}
			typ, err := f.GetCellType(sheet, cell)
			if err != nil {
				return record.String(raw)
			}
			return xlsxValue(typ, raw)
		})
	}
	if err := rows.Error(); err != nil {
		out.res.Errors = append(out.res.Errors, record.DecodeError{
			Row:     len(out.res.Records),
			Line:    line,
			Message: err.Error(),
		})
	}

	return out.res
}

// xlsxValue types a raw cell value by its declared cell type.
func xlsxValue(typ excelize.CellType, raw string) record.Value {
	switch typ {
	case excelize.CellTypeBool:
		return record.Bool(raw == "1" || raw == "TRUE" || raw == "true")
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return record.Number(n)
		}
		return record.String(raw)
	default:
		return record.String(raw)
	}
}

func decodeXLS(data []byte, limit int) (res Result) {
	// The BIFF reader indexes into record payloads without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			res = workbookError(fmt.Errorf("%v", r))
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return workbookError(err)
	}

	out := &sheetRows{res: Result{Format: FormatSpreadsheet}, limit: limit}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return out.res
	}

	for i := 0; i <= int(sheet.MaxRow) && !out.full(); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			continue
		}
		cells := make([]string, row.LastCol())
		for j := range cells {
			cells[j] = row.Col(j)
		}
		out.add(cells, func(_ int, raw string) record.Value {
			return record.String(raw)
		})
	}

	return out.res
}

// xlsRow returns row i, or nil when the sheet has no such row. WorkSheet.Row
// dereferences a missing entry instead of returning nil.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
