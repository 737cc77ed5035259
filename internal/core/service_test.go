package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/remap/internal/record"
)

// stubStore is an in-memory Store for service tests.
type stubStore struct {
	mu        sync.Mutex
	templates map[string]MappingTemplate
	batches   []BatchSummary
	failWrite error
}

func newStubStore() *stubStore {
	return &stubStore{templates: make(map[string]MappingTemplate)}
}

func (s *stubStore) CreateTemplate(_ context.Context, t MappingTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.templates {
		if existing.Name == t.Name {
			return ErrTemplateExists
		}
	}
	s.templates[t.ID] = t
	return nil
}

func (s *stubStore) GetTemplate(_ context.Context, id string) (MappingTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return MappingTemplate{}, ErrTemplateNotFound
	}
	return t, nil
}

func (s *stubStore) ListTemplates(context.Context) ([]MappingTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MappingTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	return out, nil
}

func (s *stubStore) UpdateTemplate(_ context.Context, t MappingTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; !ok {
		return ErrTemplateNotFound
	}
	s.templates[t.ID] = t
	return nil
}

func (s *stubStore) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return ErrTemplateNotFound
	}
	delete(s.templates, id)
	return nil
}

func (s *stubStore) RecordBatch(_ context.Context, b BatchSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return s.failWrite
	}
	s.batches = append(s.batches, b)
	return nil
}

func (s *stubStore) ListBatches(_ context.Context, limit int) ([]BatchSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]BatchSummary(nil), s.batches...)
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubStore) PurgeBatchesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.batches[:0]
	var purged int64
	for _, b := range s.batches {
		if b.FinishedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, b)
	}
	s.batches = kept
	return purged, nil
}

func (s *stubStore) Ping(context.Context) error { return nil }
func (s *stubStore) Close() error               { return nil }

func (s *stubStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestService_BatchSkip(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, Options{})
	ctx := context.Background()

	files := []File{
		{ID: "pdf", Name: "manual.pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.4")},
		{ID: "csv", Name: "people.csv", MIMEType: "text/csv", Data: []byte("name\nAlice")},
	}
	b, err := svc.StartBatch(ctx, files, record.FieldMapping{{Source: "name", Target: "n"}})
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}

	outcomes, err := b.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(outcomes))
	}
	if outcomes[0].FileID != "csv" {
		t.Errorf("outcome file = %q, want csv", outcomes[0].FileID)
	}
	if len(outcomes[0].Errors) != 0 {
		t.Errorf("unexpected decode errors: %+v", outcomes[0].Errors)
	}

	if _, err := b.Outcome("pdf"); !errors.Is(err, ErrFileSkipped) {
		t.Errorf("Outcome(pdf) err = %v, want ErrFileSkipped", err)
	}
	if _, err := b.Outcome("nope"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Outcome(nope) err = %v, want ErrFileNotFound", err)
	}

	st := b.Status()
	if !st.Done || st.Expected != 1 || st.Completed != 1 {
		t.Errorf("status = %+v", st)
	}
	if st.Files[0].Phase != PhaseSkipped || st.Files[1].Phase != PhaseDone {
		t.Errorf("phases = %s, %s", st.Files[0].Phase, st.Files[1].Phase)
	}

	waitFor(t, func() bool { return store.batchCount() == 1 })
	summary := store.batches[0]
	if len(summary.Files) != 1 || summary.Files[0].Rows != 1 {
		t.Errorf("summary files = %+v", summary.Files)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0] != "manual.pdf" {
		t.Errorf("summary skipped = %v", summary.Skipped)
	}
}

func TestService_AllSkippedBatchIsDone(t *testing.T) {
	svc := NewService(newStubStore(), Options{})
	b, err := svc.StartBatch(context.Background(), []File{{Name: "a.pdf", MIMEType: "application/pdf"}}, nil)
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("batch with no recognized files did not finish")
	}
	if n := len(b.Outcomes()); n != 0 {
		t.Errorf("outcomes = %d, want 0", n)
	}
	id := b.Status().Files[0].FileID
	if _, err := svc.Outcome(b.ID, id); !errors.Is(err, ErrFileSkipped) {
		t.Errorf("Outcome(skipped) after done err = %v, want ErrFileSkipped", err)
	}
}

func TestService_ConcurrentFiles(t *testing.T) {
	svc := NewService(newStubStore(), Options{Workers: 3})
	ctx := context.Background()

	var files []File
	for i := 0; i < 20; i++ {
		files = append(files, File{
			Name:     fmt.Sprintf("f%02d.csv", i),
			MIMEType: "text/csv",
			Data:     []byte(fmt.Sprintf("id,val\n%d,x\n%d,y", i, i)),
		})
	}
	files = append(files, File{Name: "f.xml", MIMEType: "text/xml", Data: []byte(`<r><row><id>x</id></row></r>`)})

	b, err := svc.StartBatch(ctx, files, record.FieldMapping{{Source: "id", Target: "ID"}})
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}

	var streamed []*Outcome
	for out := range b.Results() {
		streamed = append(streamed, out)
	}
	if len(streamed) != len(files) {
		t.Fatalf("streamed %d outcomes, want %d", len(streamed), len(files))
	}

	seen := make(map[string]bool)
	for _, out := range streamed {
		if seen[out.FileID] {
			t.Errorf("file %s published twice", out.FileID)
		}
		seen[out.FileID] = true

		got, err := b.Outcome(out.FileID)
		if err != nil || got != out {
			t.Errorf("Outcome(%s) = %v, %v", out.FileID, got, err)
		}
	}

	order := b.Outcomes()
	for i := range order {
		if order[i] != streamed[i] {
			t.Fatalf("completion order differs at %d", i)
		}
	}

	if _, err := svc.Outcome(b.ID, order[0].FileID); err != nil {
		t.Errorf("Service.Outcome: %v", err)
	}
	if _, err := svc.Batch("missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("Batch(missing) err = %v", err)
	}
}

func TestService_AssignsFileIDs(t *testing.T) {
	files, err := assignFileIDs([]File{{}, {ID: "a"}, {}})
	if err != nil {
		t.Fatalf("assignFileIDs: %v", err)
	}
	if files[1].ID != "a" {
		t.Errorf("explicit ID replaced: %q", files[1].ID)
	}
	if files[0].ID == "" || files[2].ID == "" || files[0].ID == files[2].ID || files[0].ID == "a" {
		t.Errorf("IDs not unique: %q %q %q", files[0].ID, files[1].ID, files[2].ID)
	}
}

func TestService_RejectsDuplicateFileIDs(t *testing.T) {
	svc := NewService(newStubStore(), Options{MaxConcurrentBatches: 1})
	files := []File{
		{ID: "a", Name: "one.csv", MIMEType: "text/csv", Data: []byte("x\n1")},
		{ID: "a", Name: "two.csv", MIMEType: "text/csv", Data: []byte("x\n2")},
	}

	_, err := svc.StartBatch(context.Background(), files, nil)
	if !errors.Is(err, ErrDuplicateFileID) {
		t.Fatalf("err = %v, want ErrDuplicateFileID", err)
	}
	if st := svc.LimiterStatus(); st.Active != 0 {
		t.Errorf("rejected batch holds a slot: %+v", st)
	}
}

func TestService_Transform(t *testing.T) {
	svc := NewService(newStubStore(), Options{})
	outs, err := svc.Transform(context.Background(), []File{
		{Name: "a.csv", MIMEType: "text/csv; charset=utf-8", Data: []byte("x\n1")},
	}, record.FieldMapping{{Source: "x", Target: "y"}})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(outs) != 1 || string(outs[0].Output.Data) != "y\n1" {
		t.Errorf("outcomes = %+v", outs)
	}
}

func TestService_TooManyBatches(t *testing.T) {
	svc := NewService(newStubStore(), Options{MaxConcurrentBatches: 1, MaxWait: 20 * time.Millisecond})

	if err := svc.limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("could not occupy the only slot: %v", err)
	}
	defer svc.limiter.Release()

	_, err := svc.StartBatch(context.Background(), []File{{Name: "a.csv", MIMEType: "text/csv"}}, nil)
	if !errors.Is(err, ErrTooManyBatches) {
		t.Errorf("err = %v, want ErrTooManyBatches", err)
	}
}

func TestService_EvictExpired(t *testing.T) {
	svc := NewService(newStubStore(), Options{ResultTTL: time.Minute})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	b, err := svc.StartBatch(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	<-b.Done()

	if n := svc.evictExpired(); n != 0 {
		t.Errorf("evicted %d fresh batches", n)
	}

	now = now.Add(2 * time.Minute)
	if n := svc.evictExpired(); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
	if _, err := svc.Batch(b.ID); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("evicted batch still addressable: %v", err)
	}
}

func TestService_HistoryFailureDoesNotAffectBatch(t *testing.T) {
	store := newStubStore()
	store.failWrite = errors.New("connection refused")
	svc := NewService(store, Options{})

	outs, err := svc.Transform(context.Background(), []File{{Name: "a.csv", MIMEType: "text/csv", Data: []byte("a\n1")}}, nil)
	if err != nil || len(outs) != 1 {
		t.Fatalf("Transform = %d outcomes, %v", len(outs), err)
	}
	waitFor(t, func() bool { return svc.LimiterStatus().Active == 0 })
}

func TestService_HistoryContextMetadata(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, Options{})

	ctx := ContextWithClientIP(context.Background(), "203.0.113.9")
	ctx = ContextWithUserAgent(ctx, "curl/8")
	if _, err := svc.Transform(ctx, []File{{Name: "a.csv", MIMEType: "text/csv", Data: []byte("a\n1")}}, nil); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	waitFor(t, func() bool { return store.batchCount() == 1 })

	hist, err := svc.ListHistory(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if hist[0].ClientIP != "203.0.113.9" || hist[0].UserAgent != "curl/8" {
		t.Errorf("metadata = %q %q", hist[0].ClientIP, hist[0].UserAgent)
	}
}

func TestService_HistoryPurge(t *testing.T) {
	store := newStubStore()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store.batches = []BatchSummary{
		{ID: "old", FinishedAt: now.AddDate(0, 0, -100)},
		{ID: "new", FinishedAt: now.AddDate(0, 0, -1)},
	}

	svc := NewService(store, Options{HistoryRetentionDays: 90})
	svc.now = func() time.Time { return now }
	svc.runHistoryPurge(context.Background())

	if store.batchCount() != 1 || store.batches[0].ID != "new" {
		t.Errorf("remaining = %+v", store.batches)
	}
}

func TestService_Drain(t *testing.T) {
	svc := NewService(newStubStore(), Options{})
	if _, err := svc.Transform(context.Background(), []File{{Name: "a.csv", MIMEType: "text/csv", Data: []byte("a\n1")}}, nil); err != nil {
		t.Fatalf("Transform: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Drain(ctx); err != nil {
		t.Errorf("Drain: %v", err)
	}
}

func TestBatch_WaitRespectsContext(t *testing.T) {
	b := newBatch("b", []File{{ID: "1", MIMEType: "text/csv"}}, func(File) bool { return true }, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := b.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}

	if done := b.publish(&Outcome{FileID: "1"}); !done {
		t.Error("first publish did not complete the batch")
	}
	if done := b.publish(&Outcome{FileID: "1"}); done {
		t.Error("duplicate publish accepted")
	}
	if n := len(b.Outcomes()); n != 1 {
		t.Errorf("outcomes = %d, want 1", n)
	}
}
