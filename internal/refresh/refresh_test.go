package refresh_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/mclookup/internal/models"
	"github.com/woozymasta/mclookup/internal/protocol"
	"github.com/woozymasta/mclookup/internal/refresh"
	"github.com/woozymasta/mclookup/internal/storage"
	"github.com/woozymasta/mclookup/internal/testutil"
)

const (
	steveID = "8667ba71-b85a-4004-af54-457a9734eed7"
	alexID  = "ec561538-f3fd-461d-aff5-086b22154bce"
)

func insertSighting(t *testing.T, repo *storage.Repository, addr netip.AddrPort) int64 {
	t.Helper()

	st := &models.Status{VersionName: "1.20.1", Protocol: 763}
	rec := models.NewServerRecord(addr.Addr().String(), addr.Port(), st, models.AccessOpen, time.Time{})
	id, err := repo.InsertServer(context.Background(), &rec)
	require.NoError(t, err)

	return id
}

func TestCycle_RefreshesPlayers(t *testing.T) {
	testutil.SilenceLogs(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := testutil.NewTestRepository(t, storage.WithClock(func() time.Time { return clock }))

	status := testutil.StatusJSON("1.20.1", 763, 2, 20, map[string]string{steveID: "Steve", alexID: "Alex"})
	mc := testutil.NewMinecraftServer(t, status, testutil.LoginSuccess)

	first := insertSighting(t, repo, mc.AddrPort())
	second := insertSighting(t, repo, mc.AddrPort())

	r := refresh.New(repo, &protocol.Client{Timeout: time.Second}, time.Minute, nil)
	upserts := r.Cycle(context.Background())

	assert.Equal(t, 4, upserts, "every sighting gets the sampled players")
	assert.Equal(t, 1, mc.StatusCount(), "one status exchange per endpoint per cycle")

	for _, id := range []int64{first, second} {
		players, err := repo.ListPlayers(context.Background(), id)
		require.NoError(t, err)
		assert.Len(t, players, 2)
	}
}

func TestCycle_UnreachableLeavesLastSeen(t *testing.T) {
	testutil.SilenceLogs(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := testutil.NewTestRepository(t, storage.WithClock(func() time.Time { return clock }))

	id := insertSighting(t, repo, testutil.ClosedAddrPort(t))
	require.NoError(t, repo.UpsertPlayer(context.Background(), models.PlayerRecord{UUID: steveID, Name: "Steve", ServerID: id}))

	clock = clock.Add(time.Hour)

	r := refresh.New(repo, &protocol.Client{Timeout: 300 * time.Millisecond}, time.Minute, nil)
	assert.Zero(t, r.Cycle(context.Background()))

	players, err := repo.ListPlayers(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.True(t, players[0].LastSeen.Equal(clock.Add(-time.Hour)), "last_seen must be untouched")
}

func TestCycle_UpdatesLastSeen(t *testing.T) {
	testutil.SilenceLogs(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := testutil.NewTestRepository(t, storage.WithClock(func() time.Time { return clock }))

	mc := testutil.NewMinecraftServer(t, testutil.StatusJSON("1.20.1", 763, 1, 20, map[string]string{steveID: "Steve"}), testutil.LoginSuccess)
	id := insertSighting(t, repo, mc.AddrPort())
	require.NoError(t, repo.UpsertPlayer(context.Background(), models.PlayerRecord{UUID: steveID, Name: "Steve", ServerID: id}))

	clock = clock.Add(10 * time.Minute)

	r := refresh.New(repo, &protocol.Client{Timeout: time.Second}, time.Minute, nil)
	assert.Equal(t, 1, r.Cycle(context.Background()))

	players, err := repo.ListPlayers(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.True(t, players[0].LastSeen.Equal(clock))
}

func TestRun_StopsOnCancel(t *testing.T) {
	testutil.SilenceLogs(t)
	repo := testutil.NewTestRepository(t)
	mc := testutil.NewMinecraftServer(t, testutil.StatusJSON("1.20.1", 763, 0, 20, nil), testutil.LoginSuccess)
	insertSighting(t, repo, mc.AddrPort())

	r := refresh.New(repo, &protocol.Client{Timeout: time.Second}, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return mc.StatusCount() >= 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
