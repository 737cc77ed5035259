package format

// text.go normalizes raw upload bytes before text parsing.
//
// Browser uploads arrive in whatever encoding the producing tool chose.
// Spreadsheet exports from Windows commonly carry a UTF-8 BOM and some tools
// write UTF-16 with a BOM. Both are converted to plain UTF-8 here, and any
// remaining invalid UTF-8 is replaced so parsers never see broken runes.

import (
	"bytes"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// normalizeText returns data as valid UTF-8 with any byte order mark removed.
func normalizeText(data []byte) []byte {
	text, _ := decodeBOM(data)
	return sanitizeUTF8(text)
}

// decodeBOM strips a UTF-8 BOM or transcodes BOM-marked UTF-16 to UTF-8.
// Input without a BOM is returned unchanged. The flag reports whether a
// UTF-16 transcode happened.
func decodeBOM(data []byte) ([]byte, bool) {
	utf16 := bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE)
	if !utf16 && !bytes.HasPrefix(data, bomUTF8) {
		return data, false
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		return bytes.TrimPrefix(data, bomUTF8), false
	}
	return out, utf16
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

// emptyHeader names header cells that carry no text.
const emptyHeader = "__EMPTY"

// headerNames turns a raw header row into distinct field names.
// Empty cells become __EMPTY, __EMPTY_1, ... and repeated names get a
// numeric suffix so every record key stays unique.
func headerNames(cells []string) []string {
	out := make([]string, len(cells))
	used := make(map[string]bool, len(cells))

	for i, cell := range cells {
		name := cell
		if name == "" {
			name = emptyHeader
		}
		if used[name] {
			base := name
			for k := 1; ; k++ {
				candidate := base + "_" + strconv.Itoa(k)
				if !used[candidate] {
					name = candidate
					break
				}
			}
		}
		used[name] = true
		out[i] = name
	}

	return out
}

// isBlankRow reports whether every cell is empty.
func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
