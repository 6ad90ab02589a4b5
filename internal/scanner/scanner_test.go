package scanner_test

import (
	"context"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/mclookup/internal/metrics"
	"github.com/woozymasta/mclookup/internal/models"
	"github.com/woozymasta/mclookup/internal/protocol"
	"github.com/woozymasta/mclookup/internal/scanner"
	"github.com/woozymasta/mclookup/internal/storage"
	"github.com/woozymasta/mclookup/internal/testutil"
)

const steveID = "8667ba71-b85a-4004-af54-457a9734eed7"

var loopback = netip.MustParseAddr("127.0.0.1")

type loopbackSource struct {
	drawn atomic.Int64
}

func (s *loopbackSource) Next() netip.Addr {
	s.drawn.Add(1)
	return loopback
}

type fixedLocator string

func (l fixedLocator) Country(netip.Addr) string { return string(l) }

func newScanner(repo *storage.Repository, port uint16, opts ...scanner.Option) *scanner.Scanner {
	cfg := scanner.Config{Workers: 4, Port: port, Timeout: 300 * time.Millisecond}
	client := &protocol.Client{Timeout: cfg.Timeout}
	return scanner.New(cfg, &loopbackSource{}, repo, client, opts...)
}

func TestScanOne_Discovery(t *testing.T) {
	testutil.SilenceLogs(t)
	repo := testutil.NewTestRepository(t)
	status := testutil.StatusJSON("1.20.1", 763, 1, 20, map[string]string{steveID: "Steve"})
	mc := testutil.NewMinecraftServer(t, status, testutil.LoginEncryption)

	s := newScanner(repo, mc.AddrPort().Port(), scanner.WithLocator(fixedLocator("DE")))
	rec, err := s.ScanOne(context.Background(), loopback)
	require.NoError(t, err)

	assert.Equal(t, models.AccessLicensed, rec.Access)
	assert.True(t, rec.License)
	assert.False(t, rec.WhiteList)
	assert.Equal(t, "DE", rec.CountryCode)
	assert.NotZero(t, rec.ID)

	servers, err := repo.ListServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "127.0.0.1", servers[0].Address)
	assert.Equal(t, "1.20.1", servers[0].VersionName)
	assert.Equal(t, 763, servers[0].Protocol)
	assert.Equal(t, "DE", servers[0].CountryCode)

	players, err := repo.ListPlayers(context.Background(), servers[0].ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "Steve", players[0].Name)
	assert.Equal(t, steveID, players[0].UUID)
}

func TestScanOne_Whitelisted(t *testing.T) {
	testutil.SilenceLogs(t)
	repo := testutil.NewTestRepository(t)
	mc := testutil.NewMinecraftServer(t, testutil.StatusJSON("1.8.9", 47, 0, 10, nil), testutil.LoginDisconnect)
	mc.SetDisconnectReason(`{"text":"You are not white-listed on this server!"}`)

	rec, err := newScanner(repo, mc.AddrPort().Port()).ScanOne(context.Background(), loopback)
	require.NoError(t, err)

	assert.Equal(t, models.AccessWhitelisted, rec.Access)
	assert.False(t, rec.License)
	assert.True(t, rec.WhiteList)
}

func TestScanOne_Refused(t *testing.T) {
	testutil.SilenceLogs(t)
	repo := testutil.NewTestRepository(t)

	_, err := newScanner(repo, testutil.ClosedAddrPort(t).Port()).ScanOne(context.Background(), loopback)
	require.ErrorIs(t, err, protocol.ErrConnection)

	servers, players, err := repo.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, servers)
	assert.Zero(t, players)
}

func TestScanOne_StatusTimeout(t *testing.T) {
	testutil.SilenceLogs(t)
	repo := testutil.NewTestRepository(t)
	mc := testutil.NewMinecraftServer(t, testutil.StatusJSON("1.20.1", 763, 0, 20, nil), testutil.LoginSuccess)
	mc.SetStatusSilent(true)

	_, err := newScanner(repo, mc.AddrPort().Port()).ScanOne(context.Background(), loopback)
	require.ErrorIs(t, err, protocol.ErrTimeout)
	assert.Zero(t, mc.LoginCount(), "no login probe without a status reply")

	servers, _, err := repo.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, servers)
}

func TestScanOne_LoginTimeoutIsUndetermined(t *testing.T) {
	testutil.SilenceLogs(t)
	repo := testutil.NewTestRepository(t)
	mc := testutil.NewMinecraftServer(t, testutil.StatusJSON("1.20.1", 763, 0, 20, nil), testutil.LoginSilent)

	rec, err := newScanner(repo, mc.AddrPort().Port()).ScanOne(context.Background(), loopback)
	require.NoError(t, err)

	servers, err := repo.ListServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, rec.ID, servers[0].ID)
	assert.Equal(t, models.AccessUndetermined, servers[0].Access)
	assert.False(t, servers[0].License)
	assert.False(t, servers[0].WhiteList)
}

func TestScanOne_RecordsMetrics(t *testing.T) {
	testutil.SilenceLogs(t)
	repo := testutil.NewTestRepository(t)
	mc := testutil.NewMinecraftServer(t, testutil.StatusJSON("1.20.1", 763, 0, 20, nil), testutil.LoginSuccess)
	m := metrics.New(repo)

	_, err := newScanner(repo, mc.AddrPort().Port(), scanner.WithMetrics(m)).ScanOne(context.Background(), loopback)
	require.NoError(t, err)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	found := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				found[f.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, found["mclookup_scan_probes_total"])
	assert.Equal(t, 1.0, found["mclookup_scan_reachable_total"])
	assert.Equal(t, 1.0, found["mclookup_scan_discoveries_total"])
}

func TestScanOne_RefusedFailureClass(t *testing.T) {
	testutil.SilenceLogs(t)
	repo := testutil.NewTestRepository(t)
	m := metrics.New(repo)

	_, err := newScanner(repo, testutil.ClosedAddrPort(t).Port(), scanner.WithMetrics(m)).ScanOne(context.Background(), loopback)
	require.ErrorIs(t, err, protocol.ErrConnection)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	var refused float64
	for _, f := range families {
		if f.GetName() != "mclookup_scan_failures_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["stage"] == "reach" && labels["class"] == "refused" {
				refused += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, refused)
}

func TestRun_StopsOnCancel(t *testing.T) {
	testutil.SilenceLogs(t)
	repo := testutil.NewTestRepository(t)
	source := &loopbackSource{}
	cfg := scanner.Config{Workers: 8, Port: testutil.ClosedAddrPort(t).Port(), Timeout: 200 * time.Millisecond}
	s := scanner.New(cfg, source, repo, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Positive(t, source.drawn.Load())
}

func TestRun_Discovers(t *testing.T) {
	testutil.SilenceLogs(t)
	repo := testutil.NewTestRepository(t)
	mc := testutil.NewMinecraftServer(t, testutil.StatusJSON("1.20.1", 763, 0, 20, nil), testutil.LoginEncryption)

	cfg := scanner.Config{Workers: 2, Port: mc.AddrPort().Port(), Timeout: time.Second, Rate: 20}
	s := scanner.New(cfg, &loopbackSource{}, repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		servers, _, err := repo.Counts(context.Background())
		return err == nil && servers > 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
