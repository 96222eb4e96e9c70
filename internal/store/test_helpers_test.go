package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Pjt727/classy-sync/internal/model"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(backend, path)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", backend, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachBackend runs fn as a subtest against every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Helper()
	for _, backend := range Backends {
		t.Run(string(backend), func(t *testing.T) {
			fn(t, createTestStore(t, backend))
		})
	}
}

// mustTx runs fn in a transaction and fails the test on error.
func mustTx(t *testing.T, s *Store, fn func(ctx context.Context, tx *Tx) error) {
	t.Helper()
	if err := s.WithTx(context.Background(), fn); err != nil {
		t.Fatalf("WithTx() failed: %v", err)
	}
}

func term(school, term string) model.Scope {
	return model.TermScope(school, term)
}
