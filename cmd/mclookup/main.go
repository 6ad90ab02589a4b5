// main is the entry point of the mclookup scanner.
// It initializes the configuration, logger, database, GeoIP provider, and runs
// the scanner alongside the refresher until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mclookup/internal/config"
	"github.com/woozymasta/mclookup/internal/fake"
	"github.com/woozymasta/mclookup/internal/geoip"
	"github.com/woozymasta/mclookup/internal/logger"
	"github.com/woozymasta/mclookup/internal/maintenance"
	"github.com/woozymasta/mclookup/internal/metrics"
	"github.com/woozymasta/mclookup/internal/protocol"
	"github.com/woozymasta/mclookup/internal/refresh"
	"github.com/woozymasta/mclookup/internal/sampler"
	"github.com/woozymasta/mclookup/internal/scanner"
	"github.com/woozymasta/mclookup/internal/server"
	"github.com/woozymasta/mclookup/internal/storage"
	"github.com/woozymasta/mclookup/internal/vars"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Parse()

	logCloser := logger.Setup(cfg.Logger)
	defer func() { _ = logCloser.Close() }()
	log.Info().EmbedObject(vars.Build{}).Msg("Starting mclookup...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// GeoIP
	var geoProvider *geoip.Provider
	if !cfg.GeoIP.Disable {
		geoProvider = openGeoIP(ctx, cfg.GeoIP)
		defer func() {
			if err := geoProvider.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing GeoIP provider")
			}
		}()
	}

	// Database
	retry := storage.DefaultRetry()
	retry.MaxRetries = cfg.Storage.Retries
	store, err := storage.New(cfg.Storage.Path, cfg.Storage.PoolSize, storage.WithRetry(retry))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	m := metrics.New(store)
	client := &protocol.Client{
		Timeout:  cfg.Scan.Timeout,
		Protocol: cfg.Scan.Protocol,
		Username: cfg.Scan.Username,
	}
	refresher := refresh.New(store, client, cfg.Refresh.Interval, m)

	// data generation or database maintenance
	if cfg.Storage.GenerateCount > 0 {
		n := fake.GenerateData(ctx, store, cfg.Storage.GenerateCount)
		log.Info().Int("servers", n).Msg("Fake data generated")
		return
	} else if maintenance.Run(ctx, cfg, store, refresher) {
		return
	}

	addrs, err := sampler.New(cfg.Scan.Exclude...)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid scan exclusions")
	}

	scan := scanner.New(scanner.Config{
		Workers: cfg.Scan.Workers,
		Port:    cfg.Scan.Port,
		Timeout: cfg.Scan.Timeout,
		Rate:    cfg.Scan.Rate,
	}, addrs, store, client, scanner.WithLocator(geoProvider), scanner.WithMetrics(m))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scan.Run(gctx) })

	if !cfg.Refresh.Disable {
		g.Go(func() error { return refresher.Run(gctx) })
	}

	if cfg.Metrics.Address != "" {
		srv := server.New(store, m, cfg.Metrics.Token)
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Metrics.Address) })
	}

	if geoProvider != nil && cfg.GeoIP.Interval > 0 {
		g.Go(func() error {
			geoProvider.Watch(gctx, cfg.GeoIP.URL, cfg.GeoIP.Interval)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Stopped with error")
	}

	log.Info().Msg("Shutdown complete")
}

// openGeoIP downloads the database if needed and opens it. Failures disable
// country detection and return nil.
func openGeoIP(ctx context.Context, cfg config.GeoIP) *geoip.Provider {
	log.Info().Msg("Checking GeoIP database...")
	if _, err := geoip.EnsureDB(ctx, cfg.Path, cfg.URL, cfg.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}

	geoProvider, err := geoip.Open(cfg.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		return nil
	}

	return geoProvider
}
