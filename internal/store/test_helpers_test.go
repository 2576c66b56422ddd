package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/bulkstep/internal/model"
	"github.com/roach88/bulkstep/internal/testutil"
)

// createTestStore creates a new store in a temporary directory for testing.
// A nil registry means the fixture registry.
func createTestStore(t *testing.T, reg *model.Registry) *Store {
	t.Helper()
	if reg == nil {
		reg = testutil.Registry()
	}
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, reg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// typeOf returns the registered descriptor of a fixture type.
func typeOf(s *Store, name string) *model.EntityType {
	return s.Registry().Get(name)
}
