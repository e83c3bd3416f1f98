package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/MJE43/neon-arcade/internal/engine"
)

const (
	BackendSQLite  = "sqlite"
	BackendKeyring = "keyring"
)

// Config holds all application configuration.
type Config struct {
	Env     string `yaml:"env"`
	Profile struct {
		Name            string          `yaml:"name"`
		Backend         string          `yaml:"backend"`
		StartingBalance decimal.Decimal `yaml:"starting_balance"`
		KeyringService  string          `yaml:"keyring_service"`
		FallbackPath    string          `yaml:"fallback_path"`
	} `yaml:"profile"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Server struct {
		Addr           string        `yaml:"addr"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"server"`
	Pacing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"pacing"`
	RNG struct {
		ServerSeed string `yaml:"server_seed"`
		ClientSeed string `yaml:"client_seed"`
	} `yaml:"rng"`
	Sweeper struct {
		Cron    string        `yaml:"cron"`
		IdleTTL time.Duration `yaml:"idle_ttl"`
	} `yaml:"sweeper"`
	Autoplay struct {
		MaxBets int `yaml:"max_bets"`
	} `yaml:"autoplay"`
}

// Default returns the configuration used when no file or overrides are given.
func Default() *Config {
	cfg := &Config{Env: "local"}
	cfg.Profile.Name = "default"
	cfg.Profile.Backend = BackendSQLite
	cfg.Profile.StartingBalance = decimal.NewFromInt(1000)
	cfg.Profile.KeyringService = "neon-arcade"
	cfg.Database.SQLitePath = "data/arcade.db"
	cfg.Server.Addr = ":8080"
	cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:34115", "wails://wails"}
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Pacing.Enabled = true
	cfg.Sweeper.Cron = "0 */5 * * * *"
	cfg.Sweeper.IdleTTL = 30 * time.Minute
	cfg.Autoplay.MaxBets = 10000
	return cfg
}

// Load reads config from a YAML file when it exists, then applies
// environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"ARCADE_ENV":             &c.Env,
		"ARCADE_PROFILE":         &c.Profile.Name,
		"ARCADE_PROFILE_BACKEND": &c.Profile.Backend,
		"ARCADE_KEYRING_SERVICE": &c.Profile.KeyringService,
		"ARCADE_FALLBACK_PATH":   &c.Profile.FallbackPath,
		"ARCADE_DB_PATH":         &c.Database.SQLitePath,
		"ARCADE_ADDR":            &c.Server.Addr,
		"ARCADE_SERVER_SEED":     &c.RNG.ServerSeed,
		"ARCADE_CLIENT_SEED":     &c.RNG.ClientSeed,
		"ARCADE_SWEEP_CRON":      &c.Sweeper.Cron,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("ARCADE_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("ARCADE_STARTING_BALANCE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("ARCADE_STARTING_BALANCE: %w", err)
		}
		c.Profile.StartingBalance = d
	}
	if v := os.Getenv("ARCADE_PACING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ARCADE_PACING: %w", err)
		}
		c.Pacing.Enabled = b
	}
	for key, dst := range map[string]*time.Duration{
		"ARCADE_REQUEST_TIMEOUT": &c.Server.RequestTimeout,
		"ARCADE_IDLE_TTL":        &c.Sweeper.IdleTTL,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	if v := os.Getenv("ARCADE_AUTOPLAY_MAX_BETS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARCADE_AUTOPLAY_MAX_BETS: %w", err)
		}
		c.Autoplay.MaxBets = n
	}
	return nil
}

// CronParser accepts an optional leading seconds field.
var CronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate checks that all fields hold usable values.
func (c *Config) Validate() error {
	switch c.Profile.Backend {
	case BackendSQLite, BackendKeyring:
	default:
		return fmt.Errorf("profile.backend must be %q or %q, got %q", BackendSQLite, BackendKeyring, c.Profile.Backend)
	}
	if strings.TrimSpace(c.Profile.Name) == "" {
		return fmt.Errorf("profile.name is required")
	}
	if !c.Profile.StartingBalance.IsPositive() {
		return fmt.Errorf("profile.starting_balance must be positive")
	}
	if c.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if (c.RNG.ServerSeed == "") != (c.RNG.ClientSeed == "") {
		return fmt.Errorf("rng.server_seed and rng.client_seed must be set together")
	}
	if c.Sweeper.Cron != "" {
		if _, err := CronParser.Parse(c.Sweeper.Cron); err != nil {
			return fmt.Errorf("sweeper.cron: %w", err)
		}
		if c.Sweeper.IdleTTL <= 0 {
			return fmt.Errorf("sweeper.idle_ttl must be positive")
		}
	}
	if c.Autoplay.MaxBets < 0 {
		return fmt.Errorf("autoplay.max_bets must not be negative")
	}
	return nil
}

// Seeded reports whether a replayable HMAC stream is configured.
func (c *Config) Seeded() bool {
	return c.RNG.ServerSeed != ""
}

func (c *Config) Seeds() engine.Seeds {
	return engine.Seeds{Server: c.RNG.ServerSeed, Client: c.RNG.ClientSeed}
}
