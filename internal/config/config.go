// Package config provides configuration management for go-clickcount.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var AppVersion = "-unset-" // will be set at build time

const (
	// Default web settings
	DefaultListenAddr = "0.0.0.0"
	DefaultListenPort = 5000

	// Storage backends
	BackendJSON   = "json"
	BackendSQLite = "sqlite"

	DefaultJSONPath   = "click_count.json"
	DefaultSQLitePath = "click_count.sq3"
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
	"panic": true,
}

// reservedPaths are served by the web package and cannot host the metrics endpoint
var reservedPaths = []string{"/", "/api/count", "/increment", "/reset", "/ping", "/healthz", "/robots.txt"}

// MainConfig holds the main configuration for go-clickcount
type MainConfig struct {
	// Mutex for thread-safe access
	mux sync.Mutex `yaml:"-"`

	Web     WebConfig     `yaml:"web"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Pprof   PprofConfig   `yaml:"pprof"`

	AppVersion string `yaml:"-"` // Application version, set at build time
}

// WebConfig holds web interface configuration
type WebConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	ListenPort int    `yaml:"listen_port"`
	SSL        bool   `yaml:"ssl"`
	CertFile   string `yaml:"cert_file,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty"`
	Debug      bool   `yaml:"debug"` // gin debug mode and per-request logging
}

// StoreConfig selects where the counter record lives
type StoreConfig struct {
	Backend string `yaml:"backend"` // "json" or "sqlite"
	Path    string `yaml:"path"`    // empty picks the default for the backend
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"` // optional rotating log file
}

// MetricsConfig toggles the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PprofConfig enables the profiler web endpoint when Addr is set
type PprofConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *MainConfig {
	return &MainConfig{
		AppVersion: AppVersion,
		Web: WebConfig{
			ListenAddr: DefaultListenAddr,
			ListenPort: DefaultListenPort,
		},
		Store: StoreConfig{
			Backend: BackendJSON,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadFile overlays the YAML file at path onto the config.
// Keys missing from the file keep their current values.
func (c *MainConfig) LoadFile(path string) error {
	c.mux.Lock()
	defer c.mux.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// StorePath returns the configured record path or the backend default
func (c *MainConfig) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	if c.Store.Backend == BackendSQLite {
		return DefaultSQLitePath
	}
	return DefaultJSONPath
}

// ListenAddress returns host:port for the web server
func (c *MainConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Web.ListenAddr, c.Web.ListenPort)
}

// Validate checks the config for values the server cannot start with
func (c *MainConfig) Validate() error {
	c.mux.Lock()
	defer c.mux.Unlock()

	var errs []error
	if c.Web.ListenPort < 1 || c.Web.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid listen_port %d (must be between 1 and 65535)", c.Web.ListenPort))
	}
	if c.Web.SSL && (c.Web.CertFile == "" || c.Web.KeyFile == "") {
		errs = append(errs, errors.New("ssl enabled but cert_file or key_file not specified"))
	}
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	switch c.Store.Backend {
	case BackendJSON, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend '%s'", c.Store.Backend))
	}
	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Errorf("log level definition not found for '%s'", c.Log.Level))
	}
	if c.Metrics.Enabled {
		switch {
		case !strings.HasPrefix(c.Metrics.Path, "/"):
			errs = append(errs, fmt.Errorf("metrics path '%s' must start with /", c.Metrics.Path))
		case isReservedPath(c.Metrics.Path):
			errs = append(errs, fmt.Errorf("metrics path '%s' collides with a built-in route", c.Metrics.Path))
		}
	}
	return errors.Join(errs...)
}

func isReservedPath(path string) bool {
	if path == "/static" || strings.HasPrefix(path, "/static/") {
		return true
	}
	for _, p := range reservedPaths {
		if path == p {
			return true
		}
	}
	return false
}
