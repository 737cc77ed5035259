// Package format decodes uploaded tabular files into records and encodes
// records back into the canonical CSV output.
//
// Three decoders share one contract ([Decoder]) and are selected by the
// upload's declared MIME type through a registry populated at init time:
//
//	text/csv                                                           → CSV
//	application/vnd.ms-excel                                           → spreadsheet (XLS, XLSX or CSV by content)
//	application/vnd.openxmlformats-officedocument.spreadsheetml.sheet  → spreadsheet
//	text/xml                                                           → two-level XML
//
// Decoders never fail as a whole. Rows that cannot be decoded become
// [record.DecodeError] entries and decoding continues with the next row.
package format

import (
	"fmt"
	"mime"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/remap/internal/record"
)

// Format names a source encoding.
type Format string

const (
	FormatCSV         Format = "csv"
	FormatSpreadsheet Format = "spreadsheet"
	FormatXML         Format = "xml"
)

// Accepted upload MIME types.
const (
	MIMECSV   = "text/csv"
	MIMEExcel = "application/vnd.ms-excel"
	MIMEXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEXML   = "text/xml"
)

// OutputMIME is the MIME type of every encoded artifact.
const OutputMIME = MIMECSV

// Result is the output of a decode: records in source order plus the
// per-record problems encountered along the way.
type Result struct {
	// Format is the encoding actually decoded. It can differ from the
	// decoder's own format when content sniffing falls back to CSV.
	Format  Format
	Records []record.Record
	Errors  []record.DecodeError
}

// Headers returns the key set of the first record, or an empty list.
func (r Result) Headers() []string {
	if len(r.Records) == 0 {
		return []string{}
	}
	return r.Records[0].Keys()
}

// Decoder turns the raw bytes of one format into records.
type Decoder interface {
	// Format reports the encoding this decoder handles.
	Format() Format

	// Decode decodes the whole input.
	Decode(data []byte) Result

	// Headers returns the field names of the first record using a partial
	// decode. For well-formed input it matches Decode(data).Headers().
	Headers(data []byte) []string
}

var (
	registry   = make(map[string]Decoder)
	registryMu sync.RWMutex
)

func init() {
	csvDec := NewCSVDecoder(',')
	sheetDec := NewSpreadsheetDecoder()

	Register(MIMECSV, csvDec)
	Register(MIMEExcel, sheetDec)
	Register(MIMEXLSX, sheetDec)
	Register(MIMEXML, NewXMLDecoder())
}

// Register binds a decoder to a MIME type.
// Panics if the MIME type is already registered.
func Register(mimeType string, d Decoder) {
	registryMu.Lock()
	defer registryMu.Unlock()

	key := normalizeMIME(mimeType)
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("decoder already registered: %s", key))
	}
	registry[key] = d
}

// ForMIME returns the decoder registered for mimeType.
// Matching ignores case and media type parameters.
func ForMIME(mimeType string) (Decoder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	d, ok := registry[normalizeMIME(mimeType)]
	return d, ok
}

// Supported reports whether a decoder exists for mimeType.
func Supported(mimeType string) bool {
	_, ok := ForMIME(mimeType)
	return ok
}

// MIMETypes returns all registered MIME types, sorted.
func MIMETypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeMIME(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
