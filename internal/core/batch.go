package core

import (
	"context"
	"sync"
	"time"
)

// Batch tracks the concurrent transformation of a set of files.
//
// Every recognized file publishes exactly one Outcome. Outcomes are
// addressable by file ID and also kept in completion order. Done is closed
// once all recognized files have published. Unrecognized files are marked
// skipped up front and never publish.
//
// There is no cancel: dropping a Batch discards its results while running
// files finish on their own.
type Batch struct {
	ID         string
	TemplateID string
	StartedAt  time.Time

	files    []FileStatus // submission order
	expected int
	done     chan struct{}
	results  chan *Outcome

	mu         sync.Mutex
	phases     map[string]Phase
	outcomes   map[string]*Outcome
	order      []*Outcome
	finishedAt time.Time
}

func newBatch(id string, files []File, recognized func(File) bool, now time.Time) *Batch {
	b := &Batch{
		ID:        id,
		StartedAt: now,
		files:     make([]FileStatus, 0, len(files)),
		phases:    make(map[string]Phase, len(files)),
		outcomes:  make(map[string]*Outcome, len(files)),
		done:      make(chan struct{}),
	}

	for _, f := range files {
		phase := PhaseSkipped
		if recognized(f) {
			phase = PhasePending
			b.expected++
		}
		b.phases[f.ID] = phase
		b.files = append(b.files, FileStatus{FileID: f.ID, Name: f.Name, MIMEType: f.MIMEType})
	}

	b.results = make(chan *Outcome, b.expected)
	if b.expected == 0 {
		b.finishedAt = now
		close(b.results)
		close(b.done)
	}
	return b
}

// setPhase records a transition. It is the PhaseObserver for the batch's
// pipeline runs.
func (b *Batch) setPhase(fileID string, p Phase) {
	if p == PhaseDone {
		return // publish marks completion together with the outcome
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur := b.phases[fileID]; cur.Terminal() {
		return
	}
	b.phases[fileID] = p
}

// publish stores out and reports whether it completed the batch.
// A second outcome for the same file is dropped.
func (b *Batch) publish(out *Outcome) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.outcomes[out.FileID]; dup {
		return false
	}
	b.outcomes[out.FileID] = out
	b.order = append(b.order, out)
	b.phases[out.FileID] = PhaseDone
	b.results <- out

	if len(b.order) < b.expected {
		return false
	}
	b.finishedAt = out.CompletedAt
	close(b.results)
	close(b.done)
	return true
}

// Done is closed when every recognized file has an outcome.
func (b *Batch) Done() <-chan struct{} { return b.done }

// IsDone reports whether the batch has finished.
func (b *Batch) IsDone() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Expected returns how many outcomes the batch will publish.
func (b *Batch) Expected() int { return b.expected }

// Results yields outcomes in completion order and is closed when the batch
// finishes. It buffers every outcome, so a late reader still sees all of
// them. Outcomes are delivered to one reader only; use Outcomes for
// repeated access.
func (b *Batch) Results() <-chan *Outcome { return b.results }

// Outcome returns the published outcome for fileID. Skipped files never
// publish one and report ErrFileSkipped.
func (b *Batch) Outcome(fileID string) (*Outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if out, ok := b.outcomes[fileID]; ok {
		return out, nil
	}
	if p, known := b.phases[fileID]; known {
		if p == PhaseSkipped {
			return nil, ErrFileSkipped
		}
		return nil, ErrOutcomePending
	}
	return nil, ErrFileNotFound
}

// Outcomes returns the outcomes published so far, in completion order.
func (b *Batch) Outcomes() []*Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Outcome, len(b.order))
	copy(out, b.order)
	return out
}

// Status returns a snapshot of every file's phase.
func (b *Batch) Status() BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := BatchStatus{
		ID:        b.ID,
		StartedAt: b.StartedAt,
		Expected:  b.expected,
		Completed: len(b.order),
		Files:     make([]FileStatus, len(b.files)),
	}
	for i, f := range b.files {
		f.Phase = b.phases[f.FileID]
		st.Files[i] = f
	}
	if len(b.order) >= b.expected {
		st.Done = true
		finished := b.finishedAt
		st.FinishedAt = &finished
	}
	return st
}

// Wait blocks until the batch finishes or ctx ends, then returns the
// outcomes in completion order.
func (b *Batch) Wait(ctx context.Context) ([]*Outcome, error) {
	select {
	case <-b.done:
		return b.Outcomes(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// finishedBefore reports whether the batch finished before t.
func (b *Batch) finishedBefore(t time.Time) bool {
	if !b.IsDone() {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finishedAt.Before(t)
}

// skippedNames lists files that were not recognized.
func (b *Batch) skippedNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for _, f := range b.files {
		if b.phases[f.FileID] == PhaseSkipped {
			out = append(out, f.Name)
		}
	}
	return out
}
