package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/annexlabs/annex/pkg/hnsw"
)

// Config holds all annex configuration.
type Config struct {
	Server    ServerConfig
	Index     IndexConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        // Server host (default: "0.0.0.0")
	Port            int           // Server port (default: 7600)
	RequestTimeout  time.Duration // Per-request timeout
	ShutdownTimeout time.Duration // Graceful shutdown timeout
}

// IndexConfig holds the HNSW index tuning.
type IndexConfig struct {
	Dimensions     int     // Vector dimension
	Metric         string  // Metric name ("euclidean", "cosine", ...)
	M              int     // Target degree on layers >= 1
	M0             int     // Degree cap on layer 0
	EfConstruction int     // Beam width during insert
	EfSearch       int     // Beam width during query
	ML             float64 // Top-layer distribution prefactor
	KeepPruned     bool    // Pad pruned neighbours to fill degree
	SnapshotPath   string  // Snapshot to restore on start / write on save (optional)
}

// AuthConfig holds JWT authentication configuration.
type AuthConfig struct {
	Enabled     bool
	JWTSecret   string
	PublicPaths []string
}

// RateLimitConfig holds request rate limiting configuration. Searches and
// mutations draw from separate per-client budgets.
type RateLimitConfig struct {
	Enabled      bool
	SearchPerSec float64
	MutatePerSec float64
	Burst        int
}

// CacheConfig holds query cache configuration. Capacity bounds the total
// number of result vectors the cache may hold.
type CacheConfig struct {
	Enabled  bool
	Capacity int
	TTL      time.Duration
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            7600,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Index: IndexConfig{
			Dimensions:     128,
			Metric:         "euclidean",
			M:              16,
			M0:             32,
			EfConstruction: 100,
			EfSearch:       10,
			ML:             1.0 / math.Log(16),
			KeepPruned:     true,
		},
		Auth: AuthConfig{
			Enabled:     false,
			PublicPaths: []string{"/healthz", "/metrics"},
		},
		RateLimit: RateLimitConfig{
			Enabled:      false,
			SearchPerSec: 100,
			MutatePerSec: 20,
			Burst:        50,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Capacity: 1000,
			TTL:      5 * time.Minute,
		},
	}
}

// LoadFromEnv loads configuration from the environment. A .env file in the
// working directory is merged first if present.
func LoadFromEnv() *Config {
	_ = godotenv.Load()

	cfg := Default()

	if host := os.Getenv("ANNEX_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("ANNEX_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if timeout := os.Getenv("ANNEX_REQUEST_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			cfg.Server.RequestTimeout = t
		}
	}
	if timeout := os.Getenv("ANNEX_SHUTDOWN_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			cfg.Server.ShutdownTimeout = t
		}
	}

	if dims := os.Getenv("ANNEX_DIMENSIONS"); dims != "" {
		if d, err := strconv.Atoi(dims); err == nil {
			cfg.Index.Dimensions = d
		}
	}
	if metric := os.Getenv("ANNEX_METRIC"); metric != "" {
		cfg.Index.Metric = metric
	}
	if m := os.Getenv("ANNEX_M"); m != "" {
		if v, err := strconv.Atoi(m); err == nil {
			cfg.Index.M = v
			cfg.Index.M0 = 2 * v
			cfg.Index.ML = 1.0 / math.Log(float64(v))
		}
	}
	if m0 := os.Getenv("ANNEX_M0"); m0 != "" {
		if v, err := strconv.Atoi(m0); err == nil {
			cfg.Index.M0 = v
		}
	}
	if ef := os.Getenv("ANNEX_EF_CONSTRUCTION"); ef != "" {
		if v, err := strconv.Atoi(ef); err == nil {
			cfg.Index.EfConstruction = v
		}
	}
	if ef := os.Getenv("ANNEX_EF_SEARCH"); ef != "" {
		if v, err := strconv.Atoi(ef); err == nil {
			cfg.Index.EfSearch = v
		}
	}
	if ml := os.Getenv("ANNEX_ML"); ml != "" {
		if v, err := strconv.ParseFloat(ml, 64); err == nil {
			cfg.Index.ML = v
		}
	}
	if keep := os.Getenv("ANNEX_KEEP_PRUNED"); keep != "" {
		if v, err := strconv.ParseBool(keep); err == nil {
			cfg.Index.KeepPruned = v
		}
	}
	if path := os.Getenv("ANNEX_SNAPSHOT"); path != "" {
		cfg.Index.SnapshotPath = path
	}

	if os.Getenv("ANNEX_AUTH_ENABLED") == "true" {
		cfg.Auth.Enabled = true
		cfg.Auth.JWTSecret = os.Getenv("ANNEX_JWT_SECRET")
	}

	if os.Getenv("ANNEX_RATELIMIT_ENABLED") == "true" {
		cfg.RateLimit.Enabled = true
	}
	if rps := os.Getenv("ANNEX_RATELIMIT_SEARCH_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimit.SearchPerSec = v
		}
	}
	if rps := os.Getenv("ANNEX_RATELIMIT_MUTATE_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimit.MutatePerSec = v
		}
	}
	if burst := os.Getenv("ANNEX_RATELIMIT_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			cfg.RateLimit.Burst = v
		}
	}

	if os.Getenv("ANNEX_CACHE_ENABLED") == "false" {
		cfg.Cache.Enabled = false
	}
	if capacity := os.Getenv("ANNEX_CACHE_CAPACITY"); capacity != "" {
		if v, err := strconv.Atoi(capacity); err == nil {
			cfg.Cache.Capacity = v
		}
	}
	if ttl := os.Getenv("ANNEX_CACHE_TTL"); ttl != "" {
		if t, err := time.ParseDuration(ttl); err == nil {
			cfg.Cache.TTL = t
		}
	}

	return cfg
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Index.Dimensions < 1 {
		return fmt.Errorf("invalid dimensions: %d (must be > 0)", c.Index.Dimensions)
	}
	if c.Index.M < 1 || c.Index.M0 < 1 {
		return fmt.Errorf("invalid degree bounds: M=%d M0=%d (must be > 0)", c.Index.M, c.Index.M0)
	}
	if c.Index.EfConstruction < 1 || c.Index.EfSearch < 1 {
		return fmt.Errorf("invalid beam widths: efConstruction=%d efSearch=%d (must be > 0)",
			c.Index.EfConstruction, c.Index.EfSearch)
	}
	if c.Index.ML < 0 {
		return fmt.Errorf("invalid mL: %g (must not be negative)", c.Index.ML)
	}
	if hnsw.MetricByName(c.Index.Metric) == nil {
		return fmt.Errorf("unknown metric: %q", c.Index.Metric)
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but ANNEX_JWT_SECRET not set")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.SearchPerSec <= 0 || c.RateLimit.MutatePerSec <= 0 {
			return fmt.Errorf("invalid rate limits: search=%g mutate=%g req/s",
				c.RateLimit.SearchPerSec, c.RateLimit.MutatePerSec)
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("invalid rate limit burst: %d", c.RateLimit.Burst)
		}
	}

	if c.Cache.Enabled && c.Cache.Capacity < 1 {
		return fmt.Errorf("invalid cache capacity: %d (must be > 0)", c.Cache.Capacity)
	}

	return nil
}

// Settings converts the index section into hnsw tuning constants.
func (c *IndexConfig) Settings() hnsw.Settings {
	return hnsw.Settings{
		Metric:         hnsw.MetricByName(c.Metric),
		M:              c.M,
		M0:             c.M0,
		EfConstruction: c.EfConstruction,
		EfSearch:       c.EfSearch,
		ML:             c.ML,
		KeepPruned:     c.KeepPruned,
	}
}

// Address returns the server address (host:port).
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
