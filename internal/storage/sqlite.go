// Package storage is the persistence gateway: server sightings and player presence in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/woozymasta/mclookup/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite connection pool. Every operation checks out
// a pooled connection for a single statement, so no lock is held across
// network waits and concurrent callers never share a connection.
type Repository struct {
	db     *sql.DB
	now    func() time.Time
	health *health
	retry  RetryConfig
}

// Option customizes a Repository.
type Option func(*Repository)

// WithClock overrides the time source used for last_seen.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithRetry overrides the retry policy for failed operations.
func WithRetry(cfg RetryConfig) Option {
	return func(r *Repository) { r.retry = cfg }
}

// New opens the SQLite database at dbPath with at most poolSize connections and runs migrations.
func New(dbPath string, poolSize int, opts ...Option) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)&_time_format=sqlite&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if poolSize <= 0 {
		poolSize = 1
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	r := &Repository{
		db:     db,
		now:    time.Now,
		retry:  DefaultRetry(),
		health: newHealth(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.retry.DegradeAfter > 0 {
		r.health.threshold = int64(r.retry.DegradeAfter)
	}

	return r, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.do(ctx, "ping", func(ctx context.Context) error {
		return r.db.PingContext(ctx)
	})
}

func (r *Repository) timestamp(t time.Time) time.Time {
	if t.IsZero() {
		t = r.now()
	}
	return t.UTC().Truncate(time.Second)
}

// InsertServer stores a new sighting and returns its generated id, also written to s.ID.
func (r *Repository) InsertServer(ctx context.Context, s *models.ServerRecord) (int64, error) {
	const query = `
	INSERT INTO servers (
		address, port, online, max, version_name, protocol,
		license, white_list, access, motd, country_code, discovered_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	s.DiscoveredAt = r.timestamp(s.DiscoveredAt)

	var id int64
	err := r.do(ctx, "insert server", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, query,
			s.Address, s.Port, s.Online, s.Max, s.VersionName, s.Protocol,
			s.License, s.WhiteList, s.Access.String(), s.MOTD, s.CountryCode, s.DiscoveredAt,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	s.ID = id
	return id, nil
}

// UpsertPlayer inserts the player for (name, server id) or, if already present,
// only moves last_seen forward to now (or p.LastSeen when set).
func (r *Repository) UpsertPlayer(ctx context.Context, p models.PlayerRecord) error {
	const query = `
	INSERT INTO players (uuid, name, server_id, last_seen)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(name, server_id) DO UPDATE SET
		last_seen = MAX(players.last_seen, excluded.last_seen);
	`

	seen := r.timestamp(p.LastSeen)

	return r.do(ctx, "upsert player", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query, p.UUID, p.Name, p.ServerID, seen)
		return err
	})
}

// ListServers returns every stored sighting ordered by id.
func (r *Repository) ListServers(ctx context.Context) ([]models.ServerRecord, error) {
	const query = `
		SELECT id, address, port, online, max, version_name, protocol,
		       license, white_list, access, motd, country_code, discovered_at
		FROM servers
		ORDER BY id
	`

	var servers []models.ServerRecord
	err := r.do(ctx, "list servers", func(ctx context.Context) error {
		servers = servers[:0]

		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				s      models.ServerRecord
				access string
			)
			if err := rows.Scan(
				&s.ID, &s.Address, &s.Port, &s.Online, &s.Max, &s.VersionName, &s.Protocol,
				&s.License, &s.WhiteList, &access, &s.MOTD, &s.CountryCode, &s.DiscoveredAt,
			); err != nil {
				return err
			}
			s.Access = models.ParseAccess(access)
			servers = append(servers, s)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return servers, nil
}

// ListPlayers returns the players recorded against one sighting.
func (r *Repository) ListPlayers(ctx context.Context, serverID int64) ([]models.PlayerRecord, error) {
	const query = `
		SELECT uuid, name, server_id, last_seen
		FROM players
		WHERE server_id = ?
		ORDER BY name
	`

	var players []models.PlayerRecord
	err := r.do(ctx, "list players", func(ctx context.Context) error {
		players = players[:0]

		rows, err := r.db.QueryContext(ctx, query, serverID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var p models.PlayerRecord
			if err := rows.Scan(&p.UUID, &p.Name, &p.ServerID, &p.LastSeen); err != nil {
				return err
			}
			players = append(players, p)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return players, nil
}

// Counts returns the number of stored sightings and player rows.
func (r *Repository) Counts(ctx context.Context) (servers, players int64, err error) {
	err = r.do(ctx, "count", func(ctx context.Context) error {
		row := r.db.QueryRowContext(ctx, `SELECT (SELECT COUNT(*) FROM servers), (SELECT COUNT(*) FROM players)`)
		return row.Scan(&servers, &players)
	})

	return servers, players, err
}

// PruneStalePlayers deletes players whose last_seen is older than before.
func (r *Repository) PruneStalePlayers(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := r.do(ctx, "prune players", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `DELETE FROM players WHERE last_seen < ?`, before.UTC().Truncate(time.Second))
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})

	return deleted, err
}

