package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/remap/internal/core"
	"github.com/JonMunkholm/remap/internal/format"
	"github.com/JonMunkholm/remap/internal/record"
)

// multipartMemory is how much of a form is buffered in memory before
// multipart spills file parts to temporary files.
const multipartMemory = 32 << 20

// extensionMIME is consulted when a part carries no useful Content-Type.
var extensionMIME = map[string]string{
	".csv":  format.MIMECSV,
	".xls":  format.MIMEExcel,
	".xlsx": format.MIMEXLSX,
	".xml":  format.MIMEXML,
}

// uploadMIME returns the part's declared media type, falling back to the
// file extension for missing or generic types.
func uploadMIME(fh *multipart.FileHeader) string {
	declared := fh.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return declared
	}
	if mt, ok := extensionMIME[strings.ToLower(filepath.Ext(fh.Filename))]; ok {
		return mt
	}
	return declared
}

// parseUploads reads the multipart body, bounded by TRANSFORM_MAX_FILE_SIZE.
func (s *Server) parseUploads(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Transform.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", errInvalidUpload, err)
	}
	return nil
}

// formFiles loads every part under the given field names into memory.
func formFiles(r *http.Request, fields ...string) ([]core.File, error) {
	var files []core.File
	for _, field := range fields {
		for _, fh := range r.MultipartForm.File[field] {
			data, err := readPart(fh)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", errInvalidUpload, fh.Filename, err)
			}
			files = append(files, core.File{
				Name:     fh.Filename,
				MIMEType: uploadMIME(fh),
				Data:     data,
			})
		}
	}
	if len(files) == 0 {
		return nil, errNoFile
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// parseMapping decodes the JSON pair list used by forms and the API.
func parseMapping(raw string) (record.FieldMapping, error) {
	var m record.FieldMapping
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidMapping, err)
	}
	if err := core.ValidateMapping(m); err != nil {
		return nil, err
	}
	return m, nil
}

// handleHeaders previews the first record's field names of one file.
func (s *Server) handleHeaders(w http.ResponseWriter, r *http.Request) {
	if err := s.parseUploads(w, r); err != nil {
		respondError(w, r, err)
		return
	}
	files, err := formFiles(r, "file", "files")
	if err != nil {
		respondError(w, r, err)
		return
	}

	preview, err := s.service.PreviewHeaders(r.Context(), files[0])
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// TransformAccepted is the 202 body of an asynchronous transform.
type TransformAccepted struct {
	BatchID string            `json:"batch_id"`
	Files   []core.FileStatus `json:"files"`
}

// TransformResult is the body of a transform run with ?wait=true.
type TransformResult struct {
	BatchID  string          `json:"batch_id"`
	Status   core.BatchStatus `json:"status"`
	Outcomes []*core.Outcome `json:"outcomes"`
}

// handleTransform starts a batch over the uploaded files. The mapping is
// given inline as JSON or by template_id.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	if err := s.parseUploads(w, r); err != nil {
		respondError(w, r, err)
		return
	}
	files, err := formFiles(r, "files", "file")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var b *core.Batch
	templateID := strings.TrimSpace(r.FormValue("template_id"))
	rawMapping := strings.TrimSpace(r.FormValue("mapping"))

	switch {
	case templateID != "":
		b, err = s.service.StartBatchWithTemplate(r.Context(), files, templateID)
	case rawMapping != "":
		var m record.FieldMapping
		if m, err = parseMapping(rawMapping); err == nil {
			b, err = s.service.StartBatch(r.Context(), files, m)
		}
	default:
		err = errMappingRequired
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusAccepted, TransformAccepted{BatchID: b.ID, Files: b.Status().Files})
		return
	}

	outcomes, err := b.Wait(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransformResult{BatchID: b.ID, Status: b.Status(), Outcomes: outcomes})
}
