package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultHistoryLimit bounds ListHistory when no limit is given.
const DefaultHistoryLimit = 50

const historyWriteTimeout = 5 * time.Second

// recordHistory persists a summary of a finished batch. Failures are logged
// and otherwise ignored.
func (s *Service) recordHistory(ctx context.Context, b *Batch) {
	summary := summarize(b)
	summary.ClientIP = ClientIPFromContext(ctx)
	summary.UserAgent = UserAgentFromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, historyWriteTimeout)
	defer cancel()

	if err := s.store.RecordBatch(ctx, summary); err != nil {
		slog.Error("record batch history failed", "batch_id", b.ID, "error", err)
	}
}

func summarize(b *Batch) BatchSummary {
	st := b.Status()

	summary := BatchSummary{
		ID:         b.ID,
		StartedAt:  b.StartedAt.UTC(),
		TemplateID: b.TemplateID,
		Files:      []FileSummary{},
		Skipped:    b.skippedNames(),
	}
	if st.FinishedAt != nil {
		summary.FinishedAt = st.FinishedAt.UTC()
	}
	if summary.Skipped == nil {
		summary.Skipped = []string{}
	}

	for _, out := range b.Outcomes() {
		summary.Files = append(summary.Files, FileSummary{
			FileID:     out.FileID,
			Name:       out.FileName,
			MIMEType:   out.MIMEType,
			Format:     out.Format,
			Rows:       len(out.Transformed),
			Errors:     len(out.Errors),
			OutputName: out.Output.Name,
		})
	}
	return summary
}

// ListHistory returns recent batch summaries, newest first.
func (s *Service) ListHistory(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	summaries, err := s.store.ListBatches(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return summaries, nil
}
