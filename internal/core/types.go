package core

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/remap/internal/format"
	"github.com/JonMunkholm/remap/internal/record"
)

var (
	// ErrUnsupportedType is returned for uploads whose MIME type has no
	// registered decoder. Batches skip such files silently.
	ErrUnsupportedType = errors.New("unsupported file type")

	ErrBatchNotFound    = errors.New("batch not found")
	ErrFileNotFound     = errors.New("file not found in batch")
	ErrOutcomePending   = errors.New("file outcome not ready")
	ErrFileSkipped      = errors.New("file skipped: no decoder for its type")
	ErrDuplicateFileID  = errors.New("duplicate file id")
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateExists   = errors.New("template already exists")
	ErrTemplateName     = errors.New("template name is required")
	ErrInvalidMapping   = errors.New("invalid mapping")
)

// File is one uploaded file held in memory.
type File struct {
	ID       string
	Name     string
	MIMEType string
	Data     []byte
}

// Phase is the processing stage of one file inside a batch.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseDecoding  Phase = "decoding"
	PhaseRemapping Phase = "remapping"
	PhaseEncoding  Phase = "encoding"
	PhaseDone      Phase = "done"
	PhaseSkipped   Phase = "skipped"
)

// Terminal reports whether no further transitions follow p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseSkipped
}

// Artifact is the encoded output of one file.
type Artifact struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// Outcome is the published result of transforming one file. It is never
// modified after publication.
type Outcome struct {
	FileID      string               `json:"file_id"`
	FileName    string               `json:"file_name"`
	MIMEType    string               `json:"mime_type"`
	Size        int                  `json:"size"`
	Format      format.Format        `json:"format"`
	Original    []record.Record      `json:"original"`
	Transformed []record.Record      `json:"transformed"`
	Output      Artifact             `json:"output"`
	Errors      []record.DecodeError `json:"errors"`
	Duration    time.Duration        `json:"duration_ns"`
	CompletedAt time.Time            `json:"completed_at"`
}

// FileStatus is a point-in-time view of one file in a batch.
type FileStatus struct {
	FileID   string `json:"file_id"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Phase    Phase  `json:"phase"`
}

// BatchStatus is a snapshot of a batch's progress.
type BatchStatus struct {
	ID         string       `json:"batch_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Done       bool         `json:"done"`
	Expected   int          `json:"expected"`
	Completed  int          `json:"completed"`
	Files      []FileStatus `json:"files"`
}

// HeaderPreview is the result of inspecting a file's first record.
type HeaderPreview struct {
	Format    format.Format   `json:"format"`
	Headers   []string        `json:"headers"`
	Templates []TemplateMatch `json:"templates"`
}

// MappingTemplate is a saved, named FieldMapping.
type MappingTemplate struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Mapping   record.FieldMapping `json:"mapping"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// SourceHeaders returns the distinct source columns the template expects.
func (t MappingTemplate) SourceHeaders() []string {
	return t.Mapping.Sources()
}

// TemplateMatch pairs a template with how well it fits a header list.
type TemplateMatch struct {
	Template MappingTemplate `json:"template"`
	Score    float64         `json:"score"`
}

// FileSummary describes one transformed file in the history.
type FileSummary struct {
	FileID     string        `json:"file_id"`
	Name       string        `json:"name"`
	MIMEType   string        `json:"mime_type"`
	Format     format.Format `json:"format"`
	Rows       int           `json:"rows"`
	Errors     int           `json:"errors"`
	OutputName string        `json:"output_name"`
}

// BatchSummary is the persisted record of a finished batch. It carries no
// file contents.
type BatchSummary struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Files      []FileSummary `json:"files"`
	Skipped    []string      `json:"skipped"`
	TemplateID string        `json:"template_id,omitempty"`
	ClientIP   string        `json:"client_ip,omitempty"`
	UserAgent  string        `json:"user_agent,omitempty"`
}

// Store persists mapping templates and batch history.
//
// Implementations return ErrTemplateNotFound for unknown template IDs and
// ErrTemplateExists when a name is already taken.
type Store interface {
	CreateTemplate(ctx context.Context, t MappingTemplate) error
	GetTemplate(ctx context.Context, id string) (MappingTemplate, error)
	ListTemplates(ctx context.Context) ([]MappingTemplate, error)
	UpdateTemplate(ctx context.Context, t MappingTemplate) error
	DeleteTemplate(ctx context.Context, id string) error

	RecordBatch(ctx context.Context, s BatchSummary) error
	ListBatches(ctx context.Context, limit int) ([]BatchSummary, error)
	PurgeBatchesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
