// Package config loads the includeserve configuration from, in increasing
// order of precedence: built-in defaults, an optional YAML file, a .env file,
// and INCLUDESERVE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"impractical.co/include"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "INCLUDESERVE_"

var (
	// ErrInvalid is wrapped by every error Validate returns.
	ErrInvalid = errors.New("invalid configuration")
)

// Config is the includeserve configuration.
type Config struct {
	// Addr is the address the server listens on.
	Addr string `yaml:"addr" env:"ADDR"`

	// Root is the directory the site is served from.
	Root string `yaml:"root" env:"ROOT"`

	// PartialPath is the site-relative path of the header fragment.
	PartialPath string `yaml:"partial_path" env:"PARTIAL_PATH"`

	// PartialsOrigin, when set, fetches the fragment over HTTP from this
	// origin instead of reading it from Root.
	PartialsOrigin string `yaml:"partials_origin" env:"PARTIALS_ORIGIN"`

	// ServerSide applies the header include as pages are served. With it
	// off, pages go out with their placeholders for a browser-side script
	// to fill.
	ServerSide bool `yaml:"server_side" env:"SERVER_SIDE"`

	// Sanitize runs the fragment through an HTML sanitizer first.
	Sanitize bool `yaml:"sanitize" env:"SANITIZE"`

	// LiveReload enables the file watcher, the events endpoint, and the
	// reload script in every page.
	LiveReload bool `yaml:"live_reload" env:"LIVE_RELOAD"`

	// EventsPath is where pages subscribe to reload events.
	EventsPath string `yaml:"events_path" env:"EVENTS_PATH"`

	// WatchInterval is how often the site is checked for changes.
	WatchInterval time.Duration `yaml:"watch_interval" env:"WATCH_INTERVAL"`

	// Debounce is how long changes need to settle before pages reload.
	Debounce time.Duration `yaml:"debounce" env:"DEBOUNCE"`

	// WatchExtensions are the file extensions that trigger a reload.
	WatchExtensions []string `yaml:"watch_extensions" env:"WATCH_EXTENSIONS" envSeparator:","`

	// CORS adds permissive cross-origin headers to every response.
	CORS bool `yaml:"cors" env:"CORS"`

	// NoCache tells browsers not to cache anything.
	NoCache bool `yaml:"no_cache" env:"NO_CACHE"`

	// OTELEndpoint is the OTLP/HTTP endpoint traces are exported to.
	// Tracing is off when it's empty.
	OTELEndpoint string `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`

	// ServiceName identifies the server in traces.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Addr:            ":8000",
		Root:            ".",
		PartialPath:     include.DefaultPartialPath,
		ServerSide:      true,
		LiveReload:      true,
		EventsPath:      "/events",
		WatchInterval:   time.Second,
		Debounce:        200 * time.Millisecond,
		WatchExtensions: []string{".html", ".css", ".js"},
		CORS:            true,
		NoCache:         true,
		ServiceName:     "includeserve",
	}
}

// Load builds a Config. path names an optional YAML file; an empty path skips
// it, but a path that doesn't exist is an error. dotenv names a .env file
// whose variables are added to the environment (without overriding ones that
// are already set); it's fine for it not to exist.
func Load(path, dotenv string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ParseEnv overrides target's fields from INCLUDESERVE_* environment
// variables.
func ParseEnv(target *Config) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports the first problem with the configuration.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr is empty", ErrInvalid)
	case c.Root == "":
		return fmt.Errorf("%w: root is empty", ErrInvalid)
	case !strings.HasPrefix(c.PartialPath, "/"):
		return fmt.Errorf("%w: partial_path %q must start with /", ErrInvalid, c.PartialPath)
	case c.LiveReload && !strings.HasPrefix(c.EventsPath, "/"):
		return fmt.Errorf("%w: events_path %q must start with /", ErrInvalid, c.EventsPath)
	case c.LiveReload && c.WatchInterval <= 0:
		return fmt.Errorf("%w: watch_interval must be positive", ErrInvalid)
	case c.Debounce < 0:
		return fmt.Errorf("%w: debounce can't be negative", ErrInvalid)
	}
	if c.PartialsOrigin != "" {
		u, err := url.Parse(c.PartialsOrigin)
		if err != nil {
			return fmt.Errorf("%w: partials_origin: %w", ErrInvalid, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: partials_origin %q must be an http or https origin", ErrInvalid, c.PartialsOrigin)
		}
	}
	return nil
}
