// Package config provides configuration management for the line-call agent.
// Values come from defaults, then an optional YAML file, then environment
// variables, each layer overriding the previous one.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort       = 8788
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	DefaultDataDir    = ".linecall"
	DefaultBackendURL = "http://localhost:8000"

	DefaultBackendTimeout = 30 * time.Minute
	DefaultMaxUploadBytes = 2 * 1024 * 1024 * 1024 // 2GB
	DefaultUploadMaxAge   = 24 * time.Hour

	// Environment variable names
	EnvConfigFile     = "LINECALL_CONFIG"
	EnvPort           = "LINECALL_PORT"
	EnvLogLevel       = "LINECALL_LOG_LEVEL"
	EnvLogFormat      = "LINECALL_LOG_FORMAT"
	EnvDataDir        = "LINECALL_DATA_DIR"
	EnvBackendURL     = "LINECALL_BACKEND_URL"
	EnvMediaPrefix    = "LINECALL_MEDIA_PREFIX"
	EnvBackendTimeout = "LINECALL_BACKEND_TIMEOUT"
	EnvMaxUploadBytes = "LINECALL_MAX_UPLOAD_BYTES"
	EnvHeadless       = "LINECALL_HEADLESS"

	DBFilename     = "linecall.db"
	ConfigFilename = "config.yaml"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	UploadDir() string
	BackendURL() string
	MediaPrefix() string
	BackendTimeout() time.Duration
	MaxUploadBytes() int64
	UploadMaxAge() time.Duration
	Headless() bool
}

// fileConfig mirrors config.yaml.
type fileConfig struct {
	Server struct {
		Port     int  `yaml:"port"`
		Headless bool `yaml:"headless"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	DataDir string `yaml:"data_dir"`
	Backend struct {
		URL         string `yaml:"url"`
		MediaPrefix string `yaml:"media_prefix"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"backend"`
	Uploads struct {
		MaxBytes int64  `yaml:"max_bytes"`
		MaxAge   string `yaml:"max_age"`
	} `yaml:"uploads"`
}

// EnvConfig is the resolved configuration.
type EnvConfig struct {
	port           int
	logLevel       string
	logFormat      string
	dataDir        string
	backendURL     string
	mediaPrefix    string
	backendTimeout time.Duration
	maxUploadBytes int64
	uploadMaxAge   time.Duration
	headless       bool
	sourceFile     string
}

// New resolves the configuration from defaults, the YAML file named by
// LINECALL_CONFIG (or config.yaml in the data directory, if present) and the
// environment.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		logFormat:      DefaultLogFormat,
		dataDir:        defaultDataDir(),
		backendURL:     DefaultBackendURL,
		backendTimeout: DefaultBackendTimeout,
		maxUploadBytes: DefaultMaxUploadBytes,
		uploadMaxAge:   DefaultUploadMaxAge,
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	path := os.Getenv(EnvConfigFile)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.dataDir, ConfigFilename)
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.sourceFile = path

	if fc.Server.Port != 0 {
		if err := validPort(fc.Server.Port); err != nil {
			return fmt.Errorf("invalid server.port: %w", err)
		}
		c.port = fc.Server.Port
	}
	c.headless = c.headless || fc.Server.Headless
	if fc.Log.Level != "" {
		c.logLevel = fc.Log.Level
	}
	if fc.Log.Format != "" {
		c.logFormat = fc.Log.Format
	}
	if fc.DataDir != "" && os.Getenv(EnvDataDir) == "" {
		c.dataDir = fc.DataDir
	}
	if fc.Backend.URL != "" {
		c.backendURL = fc.Backend.URL
	}
	if fc.Backend.MediaPrefix != "" {
		c.mediaPrefix = fc.Backend.MediaPrefix
	}
	if fc.Backend.Timeout != "" {
		d, err := time.ParseDuration(fc.Backend.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid backend.timeout %q", fc.Backend.Timeout)
		}
		c.backendTimeout = d
	}
	if fc.Uploads.MaxBytes > 0 {
		c.maxUploadBytes = fc.Uploads.MaxBytes
	}
	if fc.Uploads.MaxAge != "" {
		d, err := time.ParseDuration(fc.Uploads.MaxAge)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid uploads.max_age %q", fc.Uploads.MaxAge)
		}
		c.uploadMaxAge = d
	}
	return nil
}

func (c *EnvConfig) loadEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if err := validPort(port); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if lf := os.Getenv(EnvLogFormat); lf != "" {
		c.logFormat = lf
	}
	if u := os.Getenv(EnvBackendURL); u != "" {
		c.backendURL = u
	}
	if mp := os.Getenv(EnvMediaPrefix); mp != "" {
		c.mediaPrefix = mp
	}

	if t := os.Getenv(EnvBackendTimeout); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid %s: %q", EnvBackendTimeout, t)
		}
		c.backendTimeout = d
	}

	if mb := os.Getenv(EnvMaxUploadBytes); mb != "" {
		n, err := strconv.ParseInt(mb, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid %s: %q", EnvMaxUploadBytes, mb)
		}
		c.maxUploadBytes = n
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		b, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = b
	}
	return nil
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns "json" or "console"
func (c *EnvConfig) LogFormat() string {
	return c.logFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// UploadDir holds videos the browser sent to the agent.
func (c *EnvConfig) UploadDir() string {
	return filepath.Join(c.dataDir, "uploads")
}

func (c *EnvConfig) BackendURL() string {
	return strings.TrimRight(c.backendURL, "/")
}

// MediaPrefix is where processed videos are served; empty means the
// backend's own /outputs mount.
func (c *EnvConfig) MediaPrefix() string {
	return c.mediaPrefix
}

func (c *EnvConfig) BackendTimeout() time.Duration {
	return c.backendTimeout
}

func (c *EnvConfig) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}

func (c *EnvConfig) UploadMaxAge() time.Duration {
	return c.uploadMaxAge
}

// Headless disables the system tray.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// SourceFile is the YAML file that was loaded, or "".
func (c *EnvConfig) SourceFile() string {
	return c.sourceFile
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
