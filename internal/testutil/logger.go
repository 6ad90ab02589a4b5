package testutil

import (
	"testing"

	"github.com/rs/zerolog"
)

// SilenceLogs disables the global logger for the duration of the test.
func SilenceLogs(t *testing.T) {
	t.Helper()

	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.Disabled)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
}
