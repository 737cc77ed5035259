// Package core runs the remapping pipeline and everything built around it.
//
// It persists nothing itself: persistence goes
// through the [Store] interface and transport lives in the web package.
//
// # Pipeline
//
// A [Pipeline] takes one in-memory [File] through four steps:
//
//  1. Pick a decoder by MIME type (unknown types return [ErrUnsupportedType])
//  2. Decode into records, collecting per-record decode errors
//  3. Project every record through the compiled field mapping
//  4. Encode the projected records as CSV
//
// The result is an immutable [Outcome] holding the original records, the
// transformed records, the CSV artifact and the decode errors.
//
// # Batches
//
// [Service.StartBatch] runs one pipeline per recognized file on a bounded
// errgroup and returns a [Batch] immediately. Outcomes are published once
// each, are addressable by file ID, and arrive in completion order.
// Unrecognized files are skipped without an outcome. Admission is bounded
// by a [BatchLimiter]; finished batches are evicted after the result TTL.
//
// # Templates and History
//
// Named mappings can be saved and are suggested during header preview when
// at least [TemplateMatchThreshold] of their source columns are present.
// Each finished batch leaves a [BatchSummary] in the store; a maintenance
// loop purges summaries past the retention window.
//
// # Error Handling
//
// Technical errors are mapped to user messages with support codes by
// [MapError] (FILE, MAP, BAT, TPL, DB, REQ, RATE, fallback ERR000).
package core
