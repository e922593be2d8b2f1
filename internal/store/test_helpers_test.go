package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/composer/internal/model"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSnapshot creates a snapshot whose query groups by the given fields.
func createTestSnapshot(id, sessionID string, seq int64, fields ...string) Snapshot {
	q := model.NewQuery("")
	for _, f := range fields {
		q.Pipeline[0].Fields = append(q.Pipeline[0].Fields, &model.Reference{Path: f})
	}
	return Snapshot{
		ID:        id,
		SessionID: sessionID,
		Seq:       seq,
		Label:     "add_field",
		Query:     q,
		Arguments: map[string]string{},
	}
}
