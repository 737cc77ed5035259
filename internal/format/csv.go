package format

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/remap/internal/record"
)

// CSVDecoder decodes delimited text with a header line.
//
// The first non-blank line names the fields. Every later line becomes one
// record with all values as strings:
//   - a line with fewer fields than the header sets the missing fields to null
//   - a line with more fields keeps the record, drops the extras, and
//     reports a DecodeError
//   - a line that cannot be parsed (for example an unterminated quote) is
//     skipped and reported
//   - blank lines are ignored
type CSVDecoder struct {
	comma rune
}

// NewCSVDecoder returns a decoder splitting fields on comma.
func NewCSVDecoder(comma rune) *CSVDecoder {
	return &CSVDecoder{comma: comma}
}

func (d *CSVDecoder) Format() Format { return FormatCSV }

func (d *CSVDecoder) Decode(data []byte) Result {
	return d.decode(data, -1)
}

func (d *CSVDecoder) Headers(data []byte) []string {
	return d.decode(data, 1).Headers()
}

// decode reads at most limit records; a negative limit reads everything.
func (d *CSVDecoder) decode(data []byte, limit int) Result {
	res := Result{Format: FormatCSV}

	r := csv.NewReader(bytes.NewReader(normalizeText(data)))
	r.Comma = d.comma
	r.FieldsPerRecord = -1

	var header []string
	row := 0

	for limit < 0 || len(res.Records) < limit {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if header == nil {
				res.Errors = append(res.Errors, record.DecodeError{
					Row:     0,
					Line:    parseErrorLine(err),
					Message: fmt.Sprintf("header: %s", parseErrorText(err)),
				})
				return res
			}
			res.Errors = append(res.Errors, record.DecodeError{
				Row:     row,
				Line:    parseErrorLine(err),
				Message: parseErrorText(err),
			})
			row++
			continue
		}

		if header == nil {
			header = headerNames(fields)
			continue
		}

		line, _ := r.FieldPos(0)
		rec := record.New(len(header))
		for i, name := range header {
			if i < len(fields) {
				rec.Set(name, record.String(fields[i]))
			} else {
				rec.Set(name, record.Null())
			}
		}
		if len(fields) > len(header) {
			res.Errors = append(res.Errors, record.DecodeError{
				Row:     row,
				Line:    line,
				Message: fmt.Sprintf("too many fields: expected %d, got %d", len(header), len(fields)),
			})
		}

		res.Records = append(res.Records, rec)
		row++
	}

	return res
}

func parseErrorLine(err error) int {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return perr.Line
	}
	return 0
}

func parseErrorText(err error) string {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return perr.Err.Error()
	}
	return err.Error()
}
