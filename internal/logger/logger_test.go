package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json")
	l.Info().Str("address", "203.0.113.7:25565").Msg("Server discovered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "203.0.113.7:25565", entry["address"])
	assert.Contains(t, entry, "time")
}

func TestNew_ConsoleWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "console")
	l.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), "\x1b[", "non-tty writers get no escape codes")
}

func TestSetup_FileOutput(t *testing.T) {
	restoreGlobals(t)

	path := filepath.Join(t.TempDir(), "mclookup.log")
	closer := Setup(Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, closer.Close())

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestSetup_InvalidLevel(t *testing.T) {
	restoreGlobals(t)

	closer := Setup(Config{Level: "loud", Format: "json", Output: "stderr"})
	assert.NoError(t, closer.Close())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func restoreGlobals(t *testing.T) {
	t.Helper()

	level, logger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(level)
		log.Logger = logger
	})
}
