package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"unsupported type", fmt.Errorf("%w: application/pdf", ErrUnsupportedType), "FILE002"},
		{"body limit", errors.New("http: request body too large"), "FILE001"},
		{"no file", errors.New("no file provided"), "FILE004"},
		{"invalid mapping", fmt.Errorf("%w: pair 0 has an empty source", ErrInvalidMapping), "MAP001"},
		{"batch not found", ErrBatchNotFound, "BAT001"},
		{"busy", ErrTooManyBatches, "BAT002"},
		{"file not in batch", ErrFileNotFound, "BAT003"},
		{"pending", ErrOutcomePending, "BAT004"},
		{"skipped", ErrFileSkipped, "BAT005"},
		{"duplicate file id", fmt.Errorf("%w: %q", ErrDuplicateFileID, "a"), "BAT006"},
		{"template not found wrapped", fmt.Errorf("get template: %w", ErrTemplateNotFound), "TPL001"},
		{"template exists", ErrTemplateExists, "TPL002"},
		{"template name", ErrTemplateName, "TPL003"},
		{"db refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "DB001"},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), "DB003"},
		{"cancelled", errors.New("context canceled"), "REQ001"},
		{"deadline", errors.New("context deadline exceeded"), "REQ002"},
		{"rate limit", errors.New("rate limit exceeded"), "RATE001"},
		{"case insensitive", errors.New("BATCH NOT FOUND"), "BAT001"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err); got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrBatchNotFound)
	want := "Batch not found (Code: BAT001). Results expire after a while. Please transform the files again"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil error reported as user facing")
	}
	if !IsUserFacing(ErrTemplateExists) {
		t.Error("known error not user facing")
	}
	if IsUserFacing(errors.New("random internal error xyz")) {
		t.Error("unknown error reported as user facing")
	}
}

func TestNewUserError(t *testing.T) {
	if NewUserError(nil) != nil {
		t.Error("NewUserError(nil) != nil")
	}

	tech := fmt.Errorf("lookup: %w", ErrTemplateNotFound)
	ue := NewUserError(tech)
	if ue.Error() != "Mapping template not found" {
		t.Errorf("Error() = %q", ue.Error())
	}
	if !errors.Is(ue, ErrTemplateNotFound) {
		t.Error("Unwrap chain lost the sentinel")
	}
}
