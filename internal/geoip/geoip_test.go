package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDB_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("mmdb"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "geo", "country.mmdb")

	updated, err := EnsureDB(context.Background(), path, srv.URL, time.Hour)
	require.NoError(t, err)
	assert.True(t, updated)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mmdb", string(data))

	updated, err = EnsureDB(context.Background(), path, srv.URL, time.Hour)
	require.NoError(t, err)
	assert.False(t, updated, "fresh file is kept")
}

func TestEnsureDB_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "country.mmdb")

	_, err := EnsureDB(context.Background(), path, srv.URL, time.Hour)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpen_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.mmdb")
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0o600))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	assert.Empty(t, p.Country(netip.MustParseAddr("8.8.8.8")))
	assert.NoError(t, p.Close())
}
