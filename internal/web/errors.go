package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/remap/internal/core"
	"github.com/JonMunkholm/remap/internal/logging"
	"github.com/JonMunkholm/remap/internal/web/templates"
)

// Request errors raised by the web layer itself. Their texts match the
// patterns in core.MapError.
var (
	errFileTooLarge    = errors.New("file too large")
	errInvalidUpload   = errors.New("invalid upload")
	errNoFile          = errors.New("no file provided")
	errMappingRequired = errors.New("mapping required")
	errRateLimited     = errors.New("rate limit exceeded")
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errRateLimited), errors.Is(err, core.ErrTooManyBatches):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrUnsupportedType), errors.Is(err, core.ErrFileSkipped):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrBatchNotFound),
		errors.Is(err, core.ErrFileNotFound),
		errors.Is(err, core.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrOutcomePending), errors.Is(err, core.ErrTemplateExists):
		return http.StatusConflict
	case errors.Is(err, errInvalidUpload),
		errors.Is(err, errNoFile),
		errors.Is(err, errMappingRequired),
		errors.Is(err, core.ErrInvalidMapping),
		errors.Is(err, core.ErrTemplateName),
		errors.Is(err, core.ErrDuplicateFileID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err with the request id and writes its user message,
// as JSON for API callers and as an HTML fragment otherwise.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{"path", r.URL.Path, "method", r.Method, "status", status, "code", msg.Code, "error", err}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", attrs...)
	} else {
		log.Warn("request rejected", attrs...)
	}

	if wantsJSON(r) {
		writeJSON(w, status, ErrorResponse{Error: msg.Message, Action: msg.Action, Code: msg.Code})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
