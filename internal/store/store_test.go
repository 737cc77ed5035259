package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/remap/internal/core"
	"github.com/JonMunkholm/remap/internal/record"
)

func backends(t *testing.T) map[string]core.Store {
	t.Helper()

	sq, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "remap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]core.Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func newTemplate(name string, m record.FieldMapping) core.MappingTemplate {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return core.MappingTemplate{
		ID:        uuid.NewString(),
		Name:      name,
		Mapping:   m,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStoreTemplates(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			tpl := newTemplate("invoices", record.FieldMapping{
				{Source: "Amount", Target: "total"},
				{Source: "Customer", Target: "client"},
			})
			require.NoError(t, s.CreateTemplate(ctx, tpl))

			got, err := s.GetTemplate(ctx, tpl.ID)
			require.NoError(t, err)
			assert.Equal(t, tpl.Name, got.Name)
			assert.Equal(t, tpl.Mapping, got.Mapping)
			assert.True(t, tpl.CreatedAt.Equal(got.CreatedAt))

			dup := newTemplate("invoices", nil)
			assert.ErrorIs(t, s.CreateTemplate(ctx, dup), core.ErrTemplateExists)

			other := newTemplate("accounts", record.FieldMapping{{Source: "a", Target: "b"}})
			require.NoError(t, s.CreateTemplate(ctx, other))

			list, err := s.ListTemplates(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "accounts", list[0].Name)
			assert.Equal(t, "invoices", list[1].Name)

			tpl.Mapping = record.FieldMapping{{Source: "Amount", Target: "sum"}}
			tpl.UpdatedAt = tpl.UpdatedAt.Add(time.Hour)
			require.NoError(t, s.UpdateTemplate(ctx, tpl))
			got, err = s.GetTemplate(ctx, tpl.ID)
			require.NoError(t, err)
			assert.Equal(t, tpl.Mapping, got.Mapping)
			assert.True(t, tpl.UpdatedAt.Equal(got.UpdatedAt))

			tpl.Name = "accounts"
			assert.ErrorIs(t, s.UpdateTemplate(ctx, tpl), core.ErrTemplateExists)

			missing := newTemplate("ghost", nil)
			assert.ErrorIs(t, s.UpdateTemplate(ctx, missing), core.ErrTemplateNotFound)

			require.NoError(t, s.DeleteTemplate(ctx, other.ID))
			assert.ErrorIs(t, s.DeleteTemplate(ctx, other.ID), core.ErrTemplateNotFound)
			_, err = s.GetTemplate(ctx, other.ID)
			assert.ErrorIs(t, err, core.ErrTemplateNotFound)
		})
	}
}

func TestStoreMappingIsCopied(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			tpl := newTemplate("copy", record.FieldMapping{{Source: "a", Target: "b"}})
			require.NoError(t, s.CreateTemplate(ctx, tpl))
			tpl.Mapping[0].Target = "changed"

			got, err := s.GetTemplate(ctx, tpl.ID)
			require.NoError(t, err)
			assert.Equal(t, "b", got.Mapping[0].Target)
		})
	}
}

func TestStoreHistory(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				start := base.Add(time.Duration(i) * time.Hour)
				require.NoError(t, s.RecordBatch(ctx, core.BatchSummary{
					ID:         uuid.NewString(),
					StartedAt:  start,
					FinishedAt: start.Add(time.Minute),
					Files: []core.FileSummary{{
						FileID: "f1", Name: "a.csv", MIMEType: "text/csv",
						Format: "csv", Rows: i, OutputName: "a.csv",
					}},
					Skipped:  []string{"notes.txt"},
					ClientIP: "10.0.0.1",
				}))
			}

			got, err := s.ListBatches(ctx, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.True(t, got[0].StartedAt.After(got[1].StartedAt), "newest first")
			assert.Equal(t, 2, got[0].Files[0].Rows)
			assert.Equal(t, []string{"notes.txt"}, got[0].Skipped)
			assert.Equal(t, "10.0.0.1", got[0].ClientIP)

			purged, err := s.PurgeBatchesBefore(ctx, base.Add(90*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, int64(2), purged)

			got, err = s.ListBatches(ctx, 10)
			require.NoError(t, err)
			assert.Len(t, got, 1)
		})
	}
}

func TestStoreEmptySummaryLists(t *testing.T) {
	ctx := context.Background()
	sq, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer sq.Close()

	now := time.Now().UTC()
	require.NoError(t, sq.RecordBatch(ctx, core.BatchSummary{ID: uuid.NewString(), StartedAt: now, FinishedAt: now}))

	got, err := sq.ListBatches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].Files)
	assert.NotNil(t, got[0].Skipped)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
	assert.NoError(t, s.Ping(ctx))

	s, err = Open(ctx, Config{Driver: DriverSQLite, URL: filepath.Join(t.TempDir(), "nested", "db.sqlite")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	assert.NoError(t, s.Close())

	_, err = Open(ctx, Config{Driver: "oracle"})
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "remap.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	tpl := newTemplate("persisted", record.FieldMapping{{Source: "x", Target: "y"}})
	require.NoError(t, s.CreateTemplate(ctx, tpl))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
}
