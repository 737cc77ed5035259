package format

import (
	"bytes"
	"encoding/csv"
	"strings"

	"github.com/JonMunkholm/remap/internal/record"
)

// Encode renders records as canonical CSV.
//
// The header is the key list of the first record. Each following line holds
// one record's values in header order: keys a record lacks are written empty
// and keys the header lacks are dropped. Fields containing the delimiter,
// quotes or line breaks are quoted with inner quotes doubled. Lines end in
// "\n" and the output carries no trailing newline. A "\r\n" pair inside a
// value is written as "\n", the form CSV readers return for it; a lone "\r"
// is kept.
//
// Empty input, or a first record with no keys, yields empty output.
func Encode(records []record.Record) []byte {
	if len(records) == 0 {
		return []byte{}
	}
	keys := records[0].Keys()
	if len(keys) == 0 {
		return []byte{}
	}
	header := make([]string, len(keys))
	for i, k := range keys {
		header[i] = normalizeBreaks(k)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	writeRow := func(row []string) {
		// A lone empty field would otherwise be written as a blank line,
		// which readers skip.
		if len(row) == 1 && row[0] == "" {
			w.Flush()
			buf.WriteString(`""` + "\n")
			return
		}
		_ = w.Write(row) // bytes.Buffer writes do not fail
	}

	writeRow(header)

	row := make([]string, len(header))
	for _, r := range records {
		for i, name := range keys {
			v, _ := r.Get(name)
			row[i] = normalizeBreaks(v.Text())
		}
		writeRow(row)
	}
	w.Flush()

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// normalizeBreaks rewrites "\r\n" as "\n" until none remain, so "\r\r\n"
// also ends up free of the pair.
func normalizeBreaks(s string) string {
	for strings.Contains(s, "\r\n") {
		s = strings.ReplaceAll(s, "\r\n", "\n")
	}
	return s
}
