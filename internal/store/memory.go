package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/remap/internal/core"
	"github.com/JonMunkholm/remap/internal/record"
)

// Memory is an in-process Store.
type Memory struct {
	mu        sync.RWMutex
	templates map[string]core.MappingTemplate
	batches   []core.BatchSummary
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{templates: make(map[string]core.MappingTemplate)}
}

func (m *Memory) CreateTemplate(_ context.Context, t core.MappingTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameTaken(t.Name, "") {
		return core.ErrTemplateExists
	}
	m.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, id string) (core.MappingTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[id]
	if !ok {
		return core.MappingTemplate{}, core.ErrTemplateNotFound
	}
	return cloneTemplate(t), nil
}

func (m *Memory) ListTemplates(context.Context) ([]core.MappingTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.MappingTemplate, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpdateTemplate(_ context.Context, t core.MappingTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[t.ID]; !ok {
		return core.ErrTemplateNotFound
	}
	if m.nameTaken(t.Name, t.ID) {
		return core.ErrTemplateExists
	}
	m.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (m *Memory) DeleteTemplate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[id]; !ok {
		return core.ErrTemplateNotFound
	}
	delete(m.templates, id)
	return nil
}

// nameTaken reports whether another template already uses name.
func (m *Memory) nameTaken(name, exceptID string) bool {
	for id, t := range m.templates {
		if id != exceptID && t.Name == name {
			return true
		}
	}
	return false
}

func (m *Memory) RecordBatch(_ context.Context, s core.BatchSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches = append(m.batches, s)
	return nil
}

func (m *Memory) ListBatches(_ context.Context, limit int) ([]core.BatchSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.BatchSummary, len(m.batches))
	copy(out, m.batches)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) PurgeBatchesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.batches[:0]
	var purged int64
	for _, b := range m.batches {
		if b.FinishedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, b)
	}
	m.batches = kept
	return purged, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func cloneTemplate(t core.MappingTemplate) core.MappingTemplate {
	t.Mapping = append(record.FieldMapping(nil), t.Mapping...)
	return t
}
