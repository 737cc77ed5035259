package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/remap/internal/format"
	"github.com/JonMunkholm/remap/internal/logging"
	"github.com/JonMunkholm/remap/internal/record"
)

// Options tunes a Service. Zero fields take the defaults from DefaultOptions.
type Options struct {
	Workers              int           // files transformed concurrently per batch
	ResultTTL            time.Duration // how long finished batches stay addressable
	MaxConcurrentBatches int
	MaxWait              time.Duration // admission wait before ErrTooManyBatches
	HistoryRetentionDays int           // 0 keeps history forever
	CleanupInterval      time.Duration
}

// DefaultOptions returns the settings used when Options fields are zero.
func DefaultOptions() Options {
	return Options{
		Workers:              4,
		ResultTTL:            30 * time.Minute,
		MaxConcurrentBatches: DefaultMaxConcurrentBatches,
		MaxWait:              DefaultMaxWaitTime,
		HistoryRetentionDays: 90,
		CleanupInterval:      24 * time.Hour,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.ResultTTL <= 0 {
		o.ResultTTL = d.ResultTTL
	}
	if o.MaxConcurrentBatches <= 0 {
		o.MaxConcurrentBatches = d.MaxConcurrentBatches
	}
	if o.MaxWait <= 0 {
		o.MaxWait = d.MaxWait
	}
	if o.HistoryRetentionDays < 0 {
		o.HistoryRetentionDays = 0
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = d.CleanupInterval
	}
	return o
}

// Service is the entry point for header previews, batch transforms,
// mapping templates and history.
type Service struct {
	store    Store
	pipeline *Pipeline
	limiter  *BatchLimiter
	opts     Options
	now      func() time.Time

	mu      sync.RWMutex
	batches map[string]*Batch
}

// NewService creates a Service backed by store.
func NewService(store Store, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		store:    store,
		pipeline: NewPipeline(),
		limiter:  NewBatchLimiter(opts.MaxConcurrentBatches, opts.MaxWait),
		opts:     opts,
		now:      time.Now,
		batches:  make(map[string]*Batch),
	}
}

// Options returns the effective settings.
func (s *Service) Options() Options { return s.opts }

// PreviewHeaders returns the field names of the file's first record along
// with saved templates that fit them.
func (s *Service) PreviewHeaders(ctx context.Context, f File) (HeaderPreview, error) {
	dec, ok := s.pipeline.lookup(f.MIMEType)
	if !ok {
		return HeaderPreview{}, fmt.Errorf("%w: %s", ErrUnsupportedType, f.MIMEType)
	}

	preview := HeaderPreview{
		Format:    dec.Format(),
		Headers:   dec.Headers(f.Data),
		Templates: []TemplateMatch{},
	}

	matches, err := s.MatchTemplates(ctx, preview.Headers)
	if err != nil {
		logging.FromContext(ctx).Warn("template match failed", "file", f.Name, "error", err)
		return preview, nil
	}
	preview.Templates = matches
	return preview, nil
}

// StartBatch begins transforming files through m and returns immediately.
//
// Files without an ID get one; two files with the same ID fail with
// ErrDuplicateFileID. Files with an unsupported MIME type are
// marked skipped and produce no outcome. ctx only supplies request metadata
// and bounds the admission wait; the batch itself runs to completion.
func (s *Service) StartBatch(ctx context.Context, files []File, m record.FieldMapping) (*Batch, error) {
	return s.startBatch(ctx, files, m, "")
}

// StartBatchWithTemplate is StartBatch using a saved template's mapping.
func (s *Service) StartBatchWithTemplate(ctx context.Context, files []File, templateID string) (*Batch, error) {
	t, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return s.startBatch(ctx, files, t.Mapping, t.ID)
}

// Transform runs a batch and waits for all outcomes.
func (s *Service) Transform(ctx context.Context, files []File, m record.FieldMapping) ([]*Outcome, error) {
	b, err := s.StartBatch(ctx, files, m)
	if err != nil {
		return nil, err
	}
	return b.Wait(ctx)
}

func (s *Service) startBatch(ctx context.Context, files []File, m record.FieldMapping, templateID string) (*Batch, error) {
	files, err := assignFileIDs(files)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	decoders := make(map[string]format.Decoder, len(files))
	for _, f := range files {
		if dec, ok := s.pipeline.lookup(f.MIMEType); ok {
			decoders[f.ID] = dec
		}
	}

	b := newBatch(uuid.NewString(), files, func(f File) bool {
		_, ok := decoders[f.ID]
		return ok
	}, s.now())
	b.TemplateID = templateID

	s.mu.Lock()
	s.batches[b.ID] = b
	s.mu.Unlock()

	logging.WithFields(ctx, "batch_id", b.ID).Info("batch started",
		"files", len(files),
		"expected", b.Expected(),
		"skipped", len(files)-b.Expected(),
	)

	go s.runBatch(context.WithoutCancel(ctx), b, files, decoders, m.Compile())
	return b, nil
}

func (s *Service) runBatch(ctx context.Context, b *Batch, files []File, decoders map[string]format.Decoder, proj record.Projection) {
	defer s.limiter.Release()

	log := logging.WithFields(ctx, "batch_id", b.ID)

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)

	for _, f := range files {
		dec, ok := decoders[f.ID]
		if !ok {
			continue
		}
		g.Go(func() error {
			out := s.pipeline.run(f, dec, proj, b.setPhase)
			log.Debug("file transformed",
				"file_id", f.ID,
				"format", out.Format,
				"rows", len(out.Original),
				"errors", len(out.Errors),
				"duration_ms", out.Duration.Milliseconds(),
			)
			b.publish(out)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("batch finished",
		"outcomes", len(b.Outcomes()),
		"duration_ms", s.now().Sub(b.StartedAt).Milliseconds(),
	)

	s.recordHistory(ctx, b)
}

// assignFileIDs returns a copy of files with empty IDs filled in. IDs the
// caller set must be unique.
func assignFileIDs(files []File) ([]File, error) {
	out := make([]File, len(files))
	seen := make(map[string]bool, len(files))
	for i, f := range files {
		if f.ID != "" {
			if seen[f.ID] {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateFileID, f.ID)
			}
			seen[f.ID] = true
		}
		out[i] = f
	}
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out, nil
}

// Batch returns a live or retained batch.
func (s *Service) Batch(id string) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return b, nil
}

// Outcome returns one file's outcome from a batch.
func (s *Service) Outcome(batchID, fileID string) (*Outcome, error) {
	b, err := s.Batch(batchID)
	if err != nil {
		return nil, err
	}
	return b.Outcome(fileID)
}

// LimiterStatus reports batch admission occupancy.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// Drain blocks until running batches finish or ctx ends.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.Drain(ctx)
}

// evictExpired drops batches that finished more than ResultTTL ago.
func (s *Service) evictExpired() int {
	cutoff := s.now().Add(-s.opts.ResultTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, b := range s.batches {
		if b.finishedBefore(cutoff) {
			delete(s.batches, id)
			evicted++
		}
	}
	return evicted
}

// Ping checks that the store answers.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
