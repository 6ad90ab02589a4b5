// Package scanner draws random public addresses and probes each for a
// Minecraft server, persisting every discovery and its sampled players.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mclookup/internal/metrics"
	"github.com/woozymasta/mclookup/internal/models"
	"github.com/woozymasta/mclookup/internal/protocol"
	"github.com/woozymasta/mclookup/internal/reach"
	"golang.org/x/time/rate"
)

// DefaultWorkers is the pool size used when Config.Workers is zero.
const DefaultWorkers = 150

// AddressSource yields candidate addresses. Next is called from a single goroutine.
type AddressSource interface {
	Next() netip.Addr
}

// Store persists discoveries.
type Store interface {
	InsertServer(ctx context.Context, s *models.ServerRecord) (int64, error)
	UpsertPlayer(ctx context.Context, p models.PlayerRecord) error
}

// Locator resolves the country of an address.
type Locator interface {
	Country(addr netip.Addr) string
}

// Config holds the scan parameters.
type Config struct {
	Workers int
	Port    uint16
	Timeout time.Duration

	// Rate caps addresses drawn per second, zero disables the limit.
	Rate float64
}

// Scanner runs the reach, status, login probe and persist pipeline.
type Scanner struct {
	source  AddressSource
	store   Store
	client  *protocol.Client
	geo     Locator
	metrics *metrics.Metrics
	limiter *rate.Limiter
	cfg     Config
}

// Option configures optional Scanner collaborators.
type Option func(*Scanner)

// WithLocator enables country enrichment of discoveries.
func WithLocator(geo Locator) Option {
	return func(s *Scanner) { s.geo = geo }
}

// WithMetrics records scan counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// New creates a Scanner.
func New(cfg Config, source AddressSource, store Store, client *protocol.Client, opts ...Option) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Port == 0 {
		cfg.Port = 25565
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = protocol.DefaultTimeout
	}
	if client == nil {
		client = &protocol.Client{Timeout: cfg.Timeout}
	}

	s := &Scanner{
		source: source,
		store:  store,
		client: client,
		cfg:    cfg,
	}
	if cfg.Rate > 0 {
		burst := int(cfg.Rate)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run feeds addresses to the worker pool until ctx is cancelled, then waits
// for in-flight probes to finish.
func (s *Scanner) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	pool, err := ants.NewPoolWithFunc(s.cfg.Workers, func(arg any) {
		defer wg.Done()
		s.scan(ctx, arg.(netip.Addr))
	}, ants.WithPanicHandler(func(p any) {
		log.Error().Interface("panic", p).Msg("Scan worker panicked")
	}))
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	log.Info().
		Int("workers", s.cfg.Workers).
		Uint16("port", s.cfg.Port).
		Dur("timeout", s.cfg.Timeout).
		Float64("rate", s.cfg.Rate).
		Msg("Scanner started")

	for ctx.Err() == nil {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				break
			}
		}

		wg.Add(1)
		if err := pool.Invoke(s.source.Next()); err != nil {
			wg.Done()
			if errors.Is(err, ants.ErrPoolClosed) {
				break
			}
			log.Warn().Err(err).Msg("Failed to submit scan task")
		}
	}

	wg.Wait()
	log.Info().Msg("Scanner stopped")

	return nil
}

func (s *Scanner) scan(ctx context.Context, addr netip.Addr) {
	rec, err := s.ScanOne(ctx, addr)
	if err != nil {
		log.Trace().Err(err).Str("address", addr.String()).Msg("Scan failed")
		return
	}

	log.Info().
		Time("time", rec.DiscoveredAt).
		Str("address", rec.Endpoint()).
		Str("version", rec.VersionName).
		Int("online", rec.Online).
		Int("max", rec.Max).
		Bool("license", rec.License).
		Stringer("access", rec.Access).
		Str("country", rec.CountryCode).
		Msg("Server discovered")
}

// ScanOne probes a single address and persists the discovery. The error is
// the reason nothing was stored; a failed login probe only leaves the access
// class undetermined.
func (s *Scanner) ScanOne(ctx context.Context, addr netip.Addr) (*models.ServerRecord, error) {
	target := netip.AddrPortFrom(addr, s.cfg.Port)
	s.metrics.Probe()

	if err := reach.Check(ctx, target, s.cfg.Timeout); err != nil {
		s.metrics.Failure("reach", errorClass(err))
		return nil, fmt.Errorf("reach: %w", err)
	}
	s.metrics.Reach()

	st, err := s.client.Status(ctx, target)
	if err != nil {
		s.metrics.Failure("status", errorClass(err))
		return nil, fmt.Errorf("status: %w", err)
	}

	announce := int32(st.Protocol)
	if announce <= 0 {
		announce = s.client.Protocol
	}
	if announce <= 0 {
		announce = protocol.DefaultProtocol
	}

	access, err := s.client.ProbeAccess(ctx, target, announce)
	if err != nil {
		s.metrics.Failure("login", errorClass(err))
		log.Debug().Err(err).Str("address", target.String()).Msg("Login probe failed, access undetermined")
		access = models.AccessUndetermined
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rec := models.NewServerRecord(addr.String(), s.cfg.Port, st, access, time.Now())
	if s.geo != nil {
		rec.CountryCode = s.geo.Country(addr)
	}

	id, err := s.store.InsertServer(ctx, &rec)
	if err != nil {
		s.metrics.StorageError()
		log.Error().Err(err).Str("address", rec.Endpoint()).Msg("Failed to store server")
		return nil, err
	}
	s.metrics.Discovery(access.String())

	for _, p := range protocol.ValidSample(st) {
		player := models.PlayerRecord{UUID: p.ID, Name: p.Name, ServerID: id}
		if err := s.store.UpsertPlayer(ctx, player); err != nil {
			s.metrics.StorageError()
			log.Error().Err(err).Str("player", p.Name).Int64("server_id", id).Msg("Failed to store player")
		}
	}

	return &rec, nil
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, protocol.ErrTimeout):
		return "timeout"
	case errors.Is(err, protocol.ErrProtocol):
		return "protocol"
	case protocol.IsRefused(err):
		return "refused"
	case errors.Is(err, protocol.ErrConnection):
		return "connection"
	default:
		return "other"
	}
}
