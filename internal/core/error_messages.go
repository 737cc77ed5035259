package core

// # Error Codes Reference
//
// This file maps technical errors to user-facing messages with a code that
// users can quote to support. Codes are grouped by category:
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: A file exceeds the upload size limit
//	          Patterns: "file too large", "request body too large"
//	FILE002 - Unsupported type: Only CSV, Excel and XML files are accepted
//	          Patterns: "unsupported file type"
//	FILE003 - Bad upload: The upload could not be read
//	          Patterns: "invalid upload"
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Invalid mapping: The column mapping could not be used
//	         Patterns: "invalid mapping"
//	MAP002 - Missing mapping: Neither a mapping nor a template was given
//	         Patterns: "mapping required"
//
// # Batch Errors (BAT001-BAT099)
//
//	BAT001 - Batch not found: The batch expired or never existed
//	         Patterns: "batch not found"
//	BAT002 - System busy: Too many batches in progress
//	         Patterns: "too many concurrent batches"
//	BAT003 - File not found: The file is not part of this batch
//	         Patterns: "file not found in batch"
//	BAT004 - Not ready: The file is still being processed
//	         Patterns: "outcome not ready"
//	BAT005 - Skipped: The file type has no decoder, so no result exists
//	         Patterns: "file skipped"
//	BAT006 - Duplicate file id: Two files in one batch share an id
//	         Patterns: "duplicate file id"
//
// # Template Errors (TPL001-TPL099)
//
//	TPL001 - Template not found
//	         Patterns: "template not found"
//	TPL002 - Duplicate name: A template with this name already exists
//	         Patterns: "template already exists"
//	TPL003 - Missing name: A template needs a name
//	         Patterns: "template name is required"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused    Patterns: "connection refused"
//	DB002 - Connection reset      Patterns: "connection reset"
//	DB003 - Database locked       Patterns: "database is locked", "sqlite_busy"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled    Patterns: "context canceled"
//	REQ002 - Request timed out    Patterns: "context deadline exceeded", "timeout"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests   Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the server log for the technical
// error, which is logged with the request id.
//
// Patterns are matched case-insensitively with strings.Contains. The first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is the user-facing form of an error.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File errors
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "A file exceeds the maximum upload size",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "A file exceeds the maximum upload size",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload a CSV, Excel (.xls, .xlsx) or XML file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid upload",
		msg: UserMessage{
			Message: "The upload could not be read",
			Action:  "Please try uploading the file again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select at least one file",
			Code:    "FILE004",
		},
	},

	// Mapping errors
	{
		pattern: "invalid mapping",
		msg: UserMessage{
			Message: "The column mapping is invalid",
			Action:  "Every mapping entry needs a source column",
			Code:    "MAP001",
		},
	},
	{
		pattern: "mapping required",
		msg: UserMessage{
			Message: "No column mapping was provided",
			Action:  "Provide a mapping or choose a saved template",
			Code:    "MAP002",
		},
	},

	// Batch errors
	{
		pattern: "batch not found",
		msg: UserMessage{
			Message: "Batch not found",
			Action:  "Results expire after a while. Please transform the files again",
			Code:    "BAT001",
		},
	},
	{
		pattern: "too many concurrent batches",
		msg: UserMessage{
			Message: "System is busy processing other files",
			Action:  "Please wait a moment and try again",
			Code:    "BAT002",
		},
	},
	{
		pattern: "file not found in batch",
		msg: UserMessage{
			Message: "File not found in this batch",
			Action:  "Check the file link or open the batch page",
			Code:    "BAT003",
		},
	},
	{
		pattern: "outcome not ready",
		msg: UserMessage{
			Message: "The file is still being processed",
			Action:  "Please try again in a moment",
			Code:    "BAT004",
		},
	},
	{
		pattern: "file skipped",
		msg: UserMessage{
			Message: "This file was skipped because its type is not supported",
			Action:  "Upload a CSV, Excel (.xls, .xlsx) or XML file",
			Code:    "BAT005",
		},
	},
	{
		pattern: "duplicate file id",
		msg: UserMessage{
			Message: "Two files in the batch have the same id",
			Action:  "Give each file a unique id or leave it empty",
			Code:    "BAT006",
		},
	},

	// Template errors
	{
		pattern: "template not found",
		msg: UserMessage{
			Message: "Mapping template not found",
			Action:  "Choose another template or create a new one",
			Code:    "TPL001",
		},
	},
	{
		pattern: "template already exists",
		msg: UserMessage{
			Message: "A template with this name already exists",
			Action:  "Choose a different name",
			Code:    "TPL002",
		},
	},
	{
		pattern: "template name is required",
		msg: UserMessage{
			Message: "The template needs a name",
			Action:  "Enter a template name",
			Code:    "TPL003",
		},
	},

	// Database errors
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "The database is busy",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "sqlite_busy",
		msg: UserMessage{
			Message: "The database is busy",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},

	// Request errors
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try fewer or smaller files, or try again later",
			Code:    "REQ002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try fewer or smaller files, or try again later",
			Code:    "REQ002",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user message. Unknown errors
// map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError carries a technical error together with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string { return e.User.Message }

func (e *UserError) Unwrap() error { return e.Technical }

// NewUserError maps err. It returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
