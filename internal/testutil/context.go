package testutil

import (
	"context"
	"testing"
	"time"
)

// NewTestContext creates a context cancelled after timeout or at test cleanup.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	return ctx
}
