package testutil

import (
	"path/filepath"
	"testing"

	"github.com/woozymasta/mclookup/internal/storage"
)

// NewTestRepository opens a repository in a temporary directory.
// It is closed automatically when the test completes.
func NewTestRepository(t *testing.T, opts ...storage.Option) *storage.Repository {
	t.Helper()

	repo, err := storage.New(filepath.Join(t.TempDir(), "test.db"), 8, opts...)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return repo
}
