package format

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/JonMunkholm/remap/internal/record"
)

// XMLDecoder decodes a two-level document:
//
//	<root>
//	  <row><name>Alice</name><zip>94212</zip></row>
//	  <row>...</row>
//	</root>
//
// Each child of the root becomes one record. Each child of a record element
// becomes one string field keyed by its local name. Field elements that
// themselves contain elements are ignored, and when a field name repeats
// inside one record the later value wins. Documents declaring a non-UTF-8
// encoding are transcoded.
type XMLDecoder struct{}

// NewXMLDecoder returns an XML decoder.
func NewXMLDecoder() *XMLDecoder { return &XMLDecoder{} }

func (d *XMLDecoder) Format() Format { return FormatXML }

func (d *XMLDecoder) Decode(data []byte) Result {
	return d.decode(data, -1)
}

func (d *XMLDecoder) Headers(data []byte) []string {
	return d.decode(data, 1).Headers()
}

const (
	depthRecord = 2
	depthField  = 3
)

func (d *XMLDecoder) decode(data []byte, limit int) Result {
	res := Result{Format: FormatXML}

	text, transcoded := decodeBOM(data)
	dec := xml.NewDecoder(bytes.NewReader(text))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		if transcoded && strings.HasPrefix(strings.ToLower(label), "utf-16") {
			return input, nil
		}
		return charset.NewReaderLabel(label, input)
	}

	var (
		depth     int
		cur       record.Record
		field     string
		fieldText strings.Builder
		nested    bool
	)

	for limit < 0 || len(res.Records) < limit {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line, _ := dec.InputPos()
			res.Errors = append(res.Errors, record.DecodeError{
				Row:     len(res.Records),
				Line:    line,
				Message: fmt.Sprintf("malformed xml: %v", err),
			})
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == depthRecord:
				cur = record.New(0)
			case depth == depthField:
				field = t.Name.Local
				fieldText.Reset()
				nested = false
			case depth > depthField:
				nested = true
			}

		case xml.EndElement:
			switch depth {
			case depthField:
				if !nested {
					cur.Set(field, record.String(fieldText.String()))
				}
			case depthRecord:
				res.Records = append(res.Records, cur)
			}
			depth--

		case xml.CharData:
			if depth == depthField && !nested {
				fieldText.Write(t)
			}
		}
	}

	return res
}
