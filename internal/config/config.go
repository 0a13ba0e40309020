// Package config turns viper settings into a typed, validated Config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DB struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration
	// LockTimeout bounds how long a SQLite writer waits for another
	// brickscope process. Zero waits forever.
	LockTimeout time.Duration
}

type BOM struct {
	Instructions  bool
	OverridesFile string
	CacheSize     int
	CacheTTL      time.Duration
}

type Discover struct {
	MinMatchPairs int
	ExclusionsTTL time.Duration
}

type Rebrickable struct {
	Key     string
	BaseURL string
	Retries int
}

type Config struct {
	DB          DB
	BOM         BOM
	Discover    Discover
	Rebrickable Rebrickable
	User        string
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.path", "brickscope.sqlite")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.busy_timeout", "5s")
	v.SetDefault("db.lock_timeout", "2m")
	v.SetDefault("bom.instructions", true)
	v.SetDefault("bom.overrides_file", "")
	v.SetDefault("bom.cache_size", 256)
	v.SetDefault("bom.cache_ttl", "10m")
	v.SetDefault("discover.min_match_pairs", 1)
	v.SetDefault("discover.exclusions_ttl", "5m")
	v.SetDefault("rebrickable.key", "")
	v.SetDefault("rebrickable.base_url", "https://rebrickable.com/api/v3")
	v.SetDefault("rebrickable.retries", 5)
	v.SetDefault("user", "default")
}

// Load reads v into a Config, applying defaults for unset keys.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	c := Config{
		DB: DB{
			Driver:      strings.ToLower(strings.TrimSpace(v.GetString("db.driver"))),
			Path:        v.GetString("db.path"),
			DSN:         v.GetString("db.dsn"),
			BusyTimeout: v.GetDuration("db.busy_timeout"),
			LockTimeout: v.GetDuration("db.lock_timeout"),
		},
		BOM: BOM{
			Instructions:  v.GetBool("bom.instructions"),
			OverridesFile: v.GetString("bom.overrides_file"),
			CacheSize:     v.GetInt("bom.cache_size"),
			CacheTTL:      v.GetDuration("bom.cache_ttl"),
		},
		Discover: Discover{
			MinMatchPairs: v.GetInt("discover.min_match_pairs"),
			ExclusionsTTL: v.GetDuration("discover.exclusions_ttl"),
		},
		Rebrickable: Rebrickable{
			Key:     v.GetString("rebrickable.key"),
			BaseURL: v.GetString("rebrickable.base_url"),
			Retries: v.GetInt("rebrickable.retries"),
		},
		User: strings.TrimSpace(v.GetString("user")),
	}
	return c, c.Validate()
}

// Validate checks driver names and rejects negative numbers.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown db.driver %q (want %s or %s)", c.DB.Driver, DriverSQLite, DriverPostgres)
	}
	checks := []struct {
		key string
		val int64
	}{
		{"db.busy_timeout", int64(c.DB.BusyTimeout)},
		{"db.lock_timeout", int64(c.DB.LockTimeout)},
		{"bom.cache_size", int64(c.BOM.CacheSize)},
		{"bom.cache_ttl", int64(c.BOM.CacheTTL)},
		{"discover.min_match_pairs", int64(c.Discover.MinMatchPairs)},
		{"discover.exclusions_ttl", int64(c.Discover.ExclusionsTTL)},
		{"rebrickable.retries", int64(c.Rebrickable.Retries)},
	}
	for _, ch := range checks {
		if ch.val < 0 {
			return fmt.Errorf("%s must not be negative", ch.key)
		}
	}
	return nil
}
