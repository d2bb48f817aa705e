package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/karuta-app/karuta/internal/deck"
)

// ExportDoc is the user-facing backup document: both collections in full plus
// the export timestamp. Read-only; there is no import counterpart.
type ExportDoc struct {
	Vocabulary []*deck.VocabularyEntry `json:"vocabulary"`
	Grammar    []*deck.GrammarEntry    `json:"grammar"`
	ExportedAt time.Time               `json:"exportedAt"`
}

// Export snapshots both collections. Does not mutate store state.
func (s *Store) Export(ctx context.Context) (*ExportDoc, error) {
	vocab, err := s.AllVocab(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export vocabulary: %w", err)
	}
	grammar, err := s.AllGrammar(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export grammar: %w", err)
	}
	return &ExportDoc{
		Vocabulary: vocab,
		Grammar:    grammar,
		ExportedAt: time.Now().UTC(),
	}, nil
}

// ExportFilename returns the canonical backup filename for the given time:
// karuta-export-2006-01-02.json
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("karuta-export-%s.json", t.Format("2006-01-02"))
}

// WriteExport writes the backup document into dir with the canonical filename
// and pretty-printed formatting. Returns the full path written.
func (s *Store) WriteExport(ctx context.Context, dir string) (string, error) {
	doc, err := s.Export(ctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal export: %w", err)
	}

	path := filepath.Join(dir, ExportFilename(doc.ExportedAt))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file %s: %w", path, err)
	}
	return path, nil
}
