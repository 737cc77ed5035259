package store

import (
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/remap/internal/core"
)

// marshalSummary encodes the list columns of a batch summary.
func marshalSummary(s core.BatchSummary) (files, skipped []byte, err error) {
	if s.Files == nil {
		s.Files = []core.FileSummary{}
	}
	if s.Skipped == nil {
		s.Skipped = []string{}
	}
	if files, err = json.Marshal(s.Files); err != nil {
		return nil, nil, fmt.Errorf("marshal files: %w", err)
	}
	if skipped, err = json.Marshal(s.Skipped); err != nil {
		return nil, nil, fmt.Errorf("marshal skipped: %w", err)
	}
	return files, skipped, nil
}

func unmarshalSummary(s *core.BatchSummary, files, skipped []byte) error {
	if err := json.Unmarshal(files, &s.Files); err != nil {
		return fmt.Errorf("unmarshal files: %w", err)
	}
	if err := json.Unmarshal(skipped, &s.Skipped); err != nil {
		return fmt.Errorf("unmarshal skipped: %w", err)
	}
	return nil
}
