// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/mclookup/internal/logger"
	"github.com/woozymasta/mclookup/internal/vars"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Scan    Scan          `group:"Scan Options" namespace:"scan" env-namespace:"MCLOOKUP_SCAN"`
	Refresh Refresh       `group:"Refresh Options" namespace:"refresh" env-namespace:"MCLOOKUP_REFRESH"`
	Storage Storage       `group:"Storage Options" namespace:"db" env-namespace:"MCLOOKUP_DB"`
	GeoIP   GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"MCLOOKUP_GEOIP"`
	Metrics Metrics       `group:"Metrics Options" namespace:"metrics" env-namespace:"MCLOOKUP_METRICS"`
	Logger  logger.Config `group:"Logger Options" namespace:"log" env-namespace:"MCLOOKUP_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Scan holds the discovery scanner configuration.
type Scan struct {
	// betteralign:ignore

	Workers  int           `short:"w" long:"workers" env:"WORKERS" description:"Number of concurrent scan workers" default:"150"`
	Port     uint16        `short:"p" long:"port" env:"PORT" description:"Game port probed on every address" default:"25565"`
	Timeout  time.Duration `long:"timeout" env:"TIMEOUT" description:"Connect, read and write timeout" default:"3s"`
	Protocol int32         `long:"protocol" env:"PROTOCOL" description:"Protocol number announced in the status handshake" default:"47"`
	Rate     float64       `long:"rate" env:"RATE" description:"Max addresses probed per second, 0 is unlimited" default:"0"`
	Exclude  []string      `long:"exclude" env:"EXCLUDE" env-delim:"," description:"Extra IPv4 CIDR blocks never probed"`
	Username string        `long:"username" env:"USERNAME" description:"Synthetic player name used by the login probe" default:"mclookup"`
}

// Refresh holds the periodic re-poll configuration.
type Refresh struct {
	// betteralign:ignore

	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Pause between refresh cycles" default:"600s"`
	Disable  bool          `long:"disable" env:"DISABLE" description:"Do not refresh known servers"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path          string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"mclookup.db"`
	PoolSize      int           `long:"pool-size" env:"POOL_SIZE" description:"Max open database connections" default:"8"`
	Retries       int           `long:"retries" env:"RETRIES" description:"Retries of a failed storage operation" default:"5"`
	PrunePlayers  time.Duration `long:"prune-players" description:"Delete players not seen within the duration and exit"`
	RefreshOnce   bool          `long:"refresh-once" description:"Run a single refresh cycle and exit"`
	GenerateCount int           `long:"gen-fake-data" hidden:"true"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"mclookup.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
	Disable  bool          `long:"disable" env:"DISABLE" description:"Do not resolve server countries"`
}

// Metrics holds the optional metrics listener configuration.
type Metrics struct {
	// betteralign:ignore

	Address string `short:"l" long:"address" env:"ADDRESS" description:"Metrics and health listen address, empty disables it"`
	Token   string `short:"t" long:"token" env:"TOKEN" description:"Bearer token required for the metrics endpoint"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return cfg
}

// ParseArgs parses args and environment variables into a validated Config.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks value ranges that flag types cannot express.
func (c *Config) Validate() error {
	switch {
	case c.Scan.Workers < 1:
		return fmt.Errorf("--scan-workers must be positive, got %d", c.Scan.Workers)
	case c.Scan.Port == 0:
		return errors.New("--scan-port must not be 0")
	case c.Scan.Timeout <= 0:
		return fmt.Errorf("--scan-timeout must be positive, got %s", c.Scan.Timeout)
	case c.Scan.Protocol < 0:
		return fmt.Errorf("--scan-protocol must not be negative, got %d", c.Scan.Protocol)
	case c.Scan.Rate < 0:
		return fmt.Errorf("--scan-rate must not be negative, got %g", c.Scan.Rate)
	case len(c.Scan.Username) == 0 || len(c.Scan.Username) > 16:
		return fmt.Errorf("--scan-username must be 1 to 16 characters, got %q", c.Scan.Username)
	case c.Refresh.Interval <= 0:
		return fmt.Errorf("--refresh-interval must be positive, got %s", c.Refresh.Interval)
	case c.Storage.PoolSize < 1:
		return fmt.Errorf("--db-pool-size must be positive, got %d", c.Storage.PoolSize)
	case c.Storage.Retries < 0:
		return fmt.Errorf("--db-retries must not be negative, got %d", c.Storage.Retries)
	case c.Storage.PrunePlayers < 0:
		return fmt.Errorf("--db-prune-players must not be negative, got %s", c.Storage.PrunePlayers)
	}

	return nil
}
