// Package templates holds the HTML views of the web UI as templ components.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/remap/internal/core"
	"github.com/JonMunkholm/remap/internal/record"
)

const styles = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2937}
table{border-collapse:collapse;margin:.5rem 0 1.5rem}
th,td{border:1px solid #d1d5db;padding:.25rem .5rem;font-size:.875rem}
th{background:#f3f4f6;text-align:left}
tr.err td{background:#fef2f2}
.alert{border:1px solid #fca5a5;background:#fef2f2;padding:.75rem;border-radius:.25rem}
.muted{color:#6b7280}`

// page wraps body in the shared document shell.
func page(title string, body func(b *strings.Builder)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`)
		b.WriteString(templ.EscapeString(title))
		b.WriteString(`</title><style>`)
		b.WriteString(styles)
		b.WriteString(`</style></head><body>`)
		body(&b)
		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// Index is the upload form.
func Index(mimeTypes []string, saved []core.MappingTemplate) templ.Component {
	return page("Remap", func(b *strings.Builder) {
		b.WriteString(`<h1>Remap files to CSV</h1>`)
		b.WriteString(`<form method="post" action="/api/transform" enctype="multipart/form-data">`)
		b.WriteString(`<p><input type="file" name="files" multiple accept="`)
		b.WriteString(templ.EscapeString(strings.Join(mimeTypes, ",")))
		b.WriteString(`"></p>`)
		b.WriteString(`<p><label>Mapping (JSON)<br><textarea name="mapping" rows="6" cols="60" placeholder='[{"source":"Name","target":"name"}]'></textarea></label></p>`)
		if len(saved) > 0 {
			b.WriteString(`<p><label>or template <select name="template_id"><option value="">none</option>`)
			for _, t := range saved {
				fmt.Fprintf(b, `<option value="%s">%s</option>`, templ.EscapeString(t.ID), templ.EscapeString(t.Name))
			}
			b.WriteString(`</select></label></p>`)
		}
		b.WriteString(`<p><button type="submit">Transform</button></p></form>`)
		b.WriteString(`<p class="muted">Accepted: `)
		b.WriteString(templ.EscapeString(strings.Join(mimeTypes, ", ")))
		b.WriteString(`</p>`)
	})
}

// BatchPage shows per-file before/after tables with decode errors marked.
func BatchPage(status core.BatchStatus, outcomes []*core.Outcome) templ.Component {
	return page("Batch "+status.ID, func(b *strings.Builder) {
		fmt.Fprintf(b, `<h1>Batch <code>%s</code></h1>`, templ.EscapeString(status.ID))
		if !status.Done {
			fmt.Fprintf(b, `<p class="muted">In progress: %d of %d files done.</p>`, status.Completed, status.Expected)
		}

		for _, f := range status.Files {
			if f.Phase == core.PhaseSkipped {
				fmt.Fprintf(b, `<p class="muted">%s skipped (%s)</p>`,
					templ.EscapeString(f.Name), templ.EscapeString(f.MIMEType))
			}
		}

		for _, out := range outcomes {
			writeOutcome(b, status.ID, out)
		}
	})
}

func writeOutcome(b *strings.Builder, batchID string, out *core.Outcome) {
	fmt.Fprintf(b, `<h2>%s</h2>`, templ.EscapeString(out.FileName))
	fmt.Fprintf(b, `<p>%s, %d records, %d errors. <a href="/api/batches/%s/files/%s/download">Download %s</a></p>`,
		templ.EscapeString(string(out.Format)), len(out.Original), len(out.Errors),
		templ.EscapeString(batchID), templ.EscapeString(out.FileID), templ.EscapeString(out.Output.Name))

	bad := make(map[int]bool, len(out.Errors))
	if len(out.Errors) > 0 {
		b.WriteString(`<ul class="alert">`)
		for _, e := range out.Errors {
			bad[e.Row] = true
			if e.Line > 0 {
				fmt.Fprintf(b, `<li>row %d (line %d): %s</li>`, e.Row, e.Line, templ.EscapeString(e.Message))
			} else {
				fmt.Fprintf(b, `<li>row %d: %s</li>`, e.Row, templ.EscapeString(e.Message))
			}
		}
		b.WriteString(`</ul>`)
	}

	b.WriteString(`<h3>Before</h3>`)
	writeRecords(b, out.Original, bad)
	b.WriteString(`<h3>After</h3>`)
	writeRecords(b, out.Transformed, nil)
}

func writeRecords(b *strings.Builder, recs []record.Record, bad map[int]bool) {
	if len(recs) == 0 {
		b.WriteString(`<p class="muted">No records.</p>`)
		return
	}

	keys := recs[0].Keys()
	b.WriteString(`<table><thead><tr><th>#</th>`)
	for _, k := range keys {
		fmt.Fprintf(b, `<th>%s</th>`, templ.EscapeString(k))
	}
	b.WriteString(`</tr></thead><tbody>`)
	for i, rec := range recs {
		if bad[i] {
			b.WriteString(`<tr class="err">`)
		} else {
			b.WriteString(`<tr>`)
		}
		fmt.Fprintf(b, `<td>%d</td>`, i)
		for _, k := range keys {
			v, _ := rec.Get(k)
			fmt.Fprintf(b, `<td>%s</td>`, templ.EscapeString(v.Text()))
		}
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</tbody></table>`)
}

// ErrorAlert is an HTML fragment for a mapped user error.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="alert" role="alert"><strong>%s</strong> %s <span class="muted">(%s)</span></div>`,
			templ.EscapeString(message), templ.EscapeString(action), templ.EscapeString(code))
		return err
	})
}
