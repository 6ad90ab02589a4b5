package geoip

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"
)

// Provider wraps the GeoIP2 database reader to provide country lookup functionality.
// A nil *Provider is valid and resolves nothing.
type Provider struct {
	db   *geoip2.Reader
	path string
	mu   sync.RWMutex
}

// Open initializes the GeoIP database reader from a specific file path.
func Open(path string) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Provider{db: db, path: path}, nil
}

// Close closes the underlying GeoIP database reader.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.db.Close()
}

// Reload reopens the database file and swaps the reader.
func (p *Provider) Reload() error {
	db, err := geoip2.Open(p.path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.db
	p.db = db
	p.mu.Unlock()

	return old.Close()
}

// Country returns the ISO country code (e.g. "US", "DE") of an address,
// or an empty string if it cannot be determined.
func (p *Provider) Country(addr netip.Addr) string {
	if p == nil || !addr.IsValid() {
		return ""
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	record, err := p.db.Country(net.IP(addr.Unmap().AsSlice()))
	if err != nil {
		return ""
	}

	return record.Country.IsoCode
}

// Watch refreshes the database from url every interval until ctx is done.
func (p *Provider) Watch(ctx context.Context, url string, interval time.Duration) {
	if p == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		updated, err := EnsureDB(ctx, p.path, url, interval)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to update GeoIP database")
			continue
		}

		if updated {
			if err := p.Reload(); err != nil {
				log.Error().Err(err).Msg("Failed to reload GeoIP database")
				continue
			}
			log.Info().Str("path", p.path).Msg("GeoIP database reloaded")
		}
	}
}
