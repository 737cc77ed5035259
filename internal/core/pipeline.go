package core

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/JonMunkholm/remap/internal/format"
	"github.com/JonMunkholm/remap/internal/record"
)

// PhaseObserver receives every phase transition of a file.
type PhaseObserver func(fileID string, phase Phase)

// Pipeline runs one file through decode, remap and encode.
// A Pipeline holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	lookup func(mimeType string) (format.Decoder, bool)
	now    func() time.Time
}

// NewPipeline returns a pipeline using the registered decoders.
func NewPipeline() *Pipeline {
	return &Pipeline{lookup: format.ForMIME, now: time.Now}
}

// Run transforms f through m. It returns ErrUnsupportedType when no decoder
// is registered for the file's MIME type. Row-level problems never fail the
// run; they are carried in Outcome.Errors.
func (p *Pipeline) Run(f File, m record.FieldMapping) (*Outcome, error) {
	dec, ok := p.lookup(f.MIMEType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, f.MIMEType)
	}
	return p.run(f, dec, m.Compile(), nil), nil
}

func (p *Pipeline) run(f File, dec format.Decoder, proj record.Projection, observe PhaseObserver) (out *Outcome) {
	start := p.now()
	notify := func(ph Phase) {
		if observe != nil {
			observe(f.ID, ph)
		}
	}

	out = &Outcome{
		FileID:   f.ID,
		FileName: f.Name,
		MIMEType: f.MIMEType,
		Size:     len(f.Data),
		Format:   dec.Format(),
		Output: Artifact{
			Name:     OutputName(f.Name, dec.Format()),
			MIMEType: format.OutputMIME,
		},
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("transform panicked", "file_id", f.ID, "file", f.Name, "panic", r)
			out.Original, out.Transformed = []record.Record{}, []record.Record{}
			out.Output.Data = []byte{}
			out.Errors = append(out.Errors, record.DecodeError{Message: fmt.Sprintf("internal error: %v", r)})
		}
		if out.Errors == nil {
			out.Errors = []record.DecodeError{}
		}
		out.Duration = p.now().Sub(start)
		out.CompletedAt = p.now()
		notify(PhaseDone)
	}()

	notify(PhaseDecoding)
	res := dec.Decode(f.Data)
	if res.Format != "" {
		out.Format = res.Format
	}
	out.Original = res.Records
	out.Errors = res.Errors
	if len(res.Records) == 0 {
		out.Original = []record.Record{}
		out.Transformed = []record.Record{}
		out.Output.Data = []byte{}
		return out
	}

	notify(PhaseRemapping)
	out.Transformed = proj.ApplyAll(res.Records)

	notify(PhaseEncoding)
	out.Output.Data = format.Encode(out.Transformed)

	return out
}

// OutputName derives the artifact name. CSV input keeps its name; other
// formats get their extension replaced by .csv, or .csv appended when the
// name has none.
func OutputName(name string, f format.Format) string {
	if f == format.FormatCSV {
		return name
	}
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + ".csv"
}
