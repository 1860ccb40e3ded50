package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable the worker reads at startup. All values come
// from environment variables with the defaults baked into the struct tags.
type Config struct {
	ListenAddr string `env:"WORKER_LISTEN_ADDR" envDefault:":8080"`

	// Version is the tag naming the current cache generation. Bumping it
	// invalidates every previously cached asset on the next activate.
	Version string `env:"WORKER_VERSION" envDefault:"v1.0.0"`

	// CachePrefix identifies this application's generations so activation
	// cleanup never touches caches owned by other apps sharing the store.
	CachePrefix string `env:"WORKER_CACHE_PREFIX" envDefault:"reloj-"`

	// OriginURL is the base URL of the page's static file server.
	OriginURL string `env:"WORKER_ORIGIN_URL" envDefault:"http://localhost:3000"`

	// SoundURL is the one external asset served network-first.
	SoundURL string `env:"WORKER_SOUND_URL" envDefault:"https://cdn.freesound.org/sounds/alarm-clock-short.mp3"`

	// EssentialAssets must all cache during install or install fails.
	EssentialAssets []string `env:"WORKER_ESSENTIAL_ASSETS" envSeparator:"," envDefault:"/,/index.html,/manifest.json,/css/styles.css,/js/app.js"`

	// OptionalAssets are cached best-effort; individual failures are logged
	// and install still completes.
	OptionalAssets []string `env:"WORKER_OPTIONAL_ASSETS" envSeparator:"," envDefault:"/favicon.ico,/js/alarm.js,/css/clock.css,/icons/icon-192.png,/icons/icon-512.png"`

	// NavigationFallback is the entry page served when a navigation request
	// cannot reach the network.
	NavigationFallback string `env:"WORKER_NAVIGATION_FALLBACK" envDefault:"/index.html"`

	// RedisURL selects the Redis-backed cache store and broadcaster. Empty
	// runs fully in-memory with no cross-context broadcast.
	RedisURL string `env:"WORKER_REDIS_URL"`

	BroadcastChannel string `env:"WORKER_BROADCAST_CHANNEL" envDefault:"reloj:pages"`

	PrettyLogs bool `env:"WORKER_PRETTY_LOGS" envDefault:"false"`

	DialTimeout         time.Duration `env:"WORKER_DIAL_TIMEOUT" envDefault:"3s"`
	RequestTimeout      time.Duration `env:"WORKER_REQUEST_TIMEOUT" envDefault:"15s"`
	TransportTimeout    time.Duration `env:"WORKER_TRANSPORT_TIMEOUT" envDefault:"30s"`
	IdleConnTimeout     time.Duration `env:"WORKER_IDLE_CONN_TIMEOUT" envDefault:"90s"`
	MaxIdleConns        int           `env:"WORKER_MAX_IDLE_CONNS" envDefault:"64"`
	MaxIdleConnsPerHost int           `env:"WORKER_MAX_IDLE_CONNS_PER_HOST" envDefault:"16"`

	// MaxCacheBodyBytes caps how large a response body may be before the
	// interceptor refuses to snapshot it into the cache.
	MaxCacheBodyBytes int64 `env:"WORKER_MAX_CACHE_BODY_BYTES" envDefault:"10485760"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Version == "" {
		return fmt.Errorf("worker version must not be empty")
	}
	if c.CachePrefix == "" {
		return fmt.Errorf("cache prefix must not be empty")
	}
	if len(c.EssentialAssets) == 0 {
		return fmt.Errorf("at least one essential asset is required")
	}
	return nil
}

// CacheName returns the name of the current cache generation.
func (c Config) CacheName() string {
	return c.CachePrefix + c.Version
}

// AllAssets returns the full configured asset list: essential, best-effort,
// and the external sound URL. Its length is what GET_VERSION reports as
// cached_files, independent of how many writes actually succeeded.
func (c Config) AllAssets() []string {
	all := make([]string, 0, len(c.EssentialAssets)+len(c.OptionalAssets)+1)
	all = append(all, c.EssentialAssets...)
	all = append(all, c.OptionalAssets...)
	if c.SoundURL != "" {
		all = append(all, c.SoundURL)
	}
	return all
}
