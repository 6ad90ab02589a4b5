// Package refresh periodically re-polls every known server and updates the
// last_seen time of the players it currently reports.
package refresh

import (
	"context"
	"net/netip"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mclookup/internal/metrics"
	"github.com/woozymasta/mclookup/internal/models"
	"github.com/woozymasta/mclookup/internal/protocol"
)

// DefaultInterval is the pause between the end of one cycle and the start of the next.
const DefaultInterval = 600 * time.Second

// Store lists known sightings and records player presence.
type Store interface {
	ListServers(ctx context.Context) ([]models.ServerRecord, error)
	UpsertPlayer(ctx context.Context, p models.PlayerRecord) error
}

// StatusClient performs the status exchange.
type StatusClient interface {
	Status(ctx context.Context, addr netip.AddrPort) (*models.Status, error)
}

// Refresher runs refresh cycles.
type Refresher struct {
	store    Store
	client   StatusClient
	metrics  *metrics.Metrics
	interval time.Duration
}

// New creates a Refresher. A non-positive interval selects DefaultInterval.
func New(store Store, client StatusClient, interval time.Duration, m *metrics.Metrics) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Refresher{
		store:    store,
		client:   client,
		metrics:  m,
		interval: interval,
	}
}

// Run executes a cycle, waits the interval, and repeats until ctx is done.
// Cycles never overlap; a slow cycle delays the next one.
func (r *Refresher) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Refresher stopped")
			return nil
		case <-timer.C:
		}

		r.Cycle(ctx)
		timer.Reset(r.interval)
	}
}

type polled struct {
	status *models.Status
	ok     bool
}

// Cycle polls every stored server once, in order, and returns the number of
// player rows refreshed. Unreachable servers are skipped silently.
func (r *Refresher) Cycle(ctx context.Context) int {
	start := time.Now()

	servers, err := r.store.ListServers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list servers for refresh")
		return 0
	}

	log.Info().Int("servers", len(servers)).Msg("Refreshing known servers...")

	// sightings of one endpoint share a single status exchange per cycle
	cache := make(map[string]polled, len(servers))
	upserts := 0

	for _, srv := range servers {
		if ctx.Err() != nil {
			return upserts
		}

		endpoint := srv.Endpoint()
		res, seen := cache[endpoint]
		if !seen {
			res = r.poll(ctx, srv)
			cache[endpoint] = res
		}
		if !res.ok {
			continue
		}

		for _, p := range protocol.ValidSample(res.status) {
			err := r.store.UpsertPlayer(ctx, models.PlayerRecord{UUID: p.ID, Name: p.Name, ServerID: srv.ID})
			if err != nil {
				log.Error().Err(err).Str("player", p.Name).Int64("server_id", srv.ID).Msg("Failed to refresh player")
				continue
			}
			upserts++
		}
	}

	elapsed := time.Since(start)
	r.metrics.RefreshCycle(elapsed.Seconds(), upserts)
	log.Debug().Int("upserts", upserts).Dur("took", elapsed).Msg("Refresh cycle finished")

	return upserts
}

func (r *Refresher) poll(ctx context.Context, srv models.ServerRecord) polled {
	addr, err := netip.ParseAddr(srv.Address)
	if err != nil {
		log.Debug().Str("address", srv.Address).Msg("Skipping invalid stored address")
		return polled{}
	}

	st, err := r.client.Status(ctx, netip.AddrPortFrom(addr, srv.Port))
	if err != nil {
		log.Trace().Err(err).Str("address", srv.Endpoint()).Msg("Refresh poll failed")
		return polled{}
	}

	return polled{status: st, ok: true}
}
