// Package config loads the kiosk scanner configuration from a TOML or YAML
// file, fills defaults and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"

	"github.com/jtejido/kioskscanner/internal/imaging"
	"github.com/jtejido/kioskscanner/internal/scanner"
	"github.com/jtejido/kioskscanner/internal/scanner/simulator"
)

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Host        string        `toml:"host" yaml:"host" default:"0.0.0.0"`
	Port        int           `toml:"port" yaml:"port" default:"5000"`
	CORSOrigins []string      `toml:"cors_origins" yaml:"cors_origins" default:"[*]"`
	APIKey      string        `toml:"api_key" yaml:"api_key"`
	UseHTTPS    bool          `toml:"use_https" yaml:"use_https"`
	CertFile    string        `toml:"cert_file" yaml:"cert_file" default:"certs/cert.pem"`
	KeyFile     string        `toml:"key_file" yaml:"key_file" default:"certs/key.pem"`
	ReadTimeout time.Duration `toml:"read_timeout" yaml:"read_timeout" default:"10s"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ScannerConfig bounds captures.
type ScannerConfig struct {
	TimeoutSeconds int           `toml:"timeout" yaml:"timeout" default:"30"`
	RetryAttempts  int           `toml:"retry_attempts" yaml:"retry_attempts" default:"3"`
	Grace          time.Duration `toml:"grace" yaml:"grace" default:"2s"`
	Resolution     uint32        `toml:"resolution" yaml:"resolution" default:"500"`
	Template       string        `toml:"template_format" yaml:"template_format" default:"ansi378"`
	Format         string        `toml:"image_format" yaml:"image_format" default:"png"`
	HistorySize    int           `toml:"history_size" yaml:"history_size" default:"50"`
	Simulate       bool          `toml:"simulate" yaml:"simulate"`
	SimScript      string        `toml:"simulate_script" yaml:"simulate_script"`
	SimSampleDir   string        `toml:"simulate_samples" yaml:"simulate_samples"`
	SimLatency     time.Duration `toml:"simulate_latency" yaml:"simulate_latency" default:"300ms"`
}

// LibrariesConfig locates the vendor SDK. Empty fields take the platform
// defaults.
type LibrariesConfig struct {
	Device             string   `toml:"device" yaml:"device"`
	DeviceFallback     string   `toml:"device_fallback" yaml:"device_fallback"`
	Processing         string   `toml:"processing" yaml:"processing"`
	ProcessingFallback string   `toml:"processing_fallback" yaml:"processing_fallback"`
	RuntimeDirs        []string `toml:"runtime_dirs" yaml:"runtime_dirs"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	Level       string `toml:"level" yaml:"level" default:"info"`
	File        string `toml:"file" yaml:"file" default:"kiosk_scanner.log"`
	MaxSizeMB   int    `toml:"max_size_mb" yaml:"max_size_mb" default:"10"`
	BackupCount int    `toml:"backup_count" yaml:"backup_count" default:"5"`
	Format      string `toml:"format" yaml:"format" default:"auto"`
}

// Config aggregates all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Scanner   ScannerConfig   `toml:"scanner" yaml:"scanner"`
	Libraries LibrariesConfig `toml:"libraries" yaml:"libraries"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.fill()
	return cfg
}

// Load reads path (TOML, or YAML by extension), fills defaults, applies
// environment overrides and validates. An empty or missing path yields the
// defaults.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, env func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.fill()
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("unmarshal yaml: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode toml: %w", err)
		}
	}
	return nil
}

func (c *Config) fill() {
	defaults.SetDefaults(c)
	lib := platformLibraries()
	if c.Libraries.Device == "" {
		c.Libraries.Device = lib.DevicePrimary
	}
	if c.Libraries.DeviceFallback == "" {
		c.Libraries.DeviceFallback = lib.DeviceFallback
	}
	if c.Libraries.Processing == "" {
		c.Libraries.Processing = lib.ProcessingPrimary
	}
	if c.Libraries.ProcessingFallback == "" {
		c.Libraries.ProcessingFallback = lib.ProcessingFallback
	}
	if len(c.Libraries.RuntimeDirs) == 0 {
		c.Libraries.RuntimeDirs = lib.RuntimeDirs
	}
}

func (c *Config) applyEnv(env func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := env(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := env(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) {
		if v, ok := env(key); ok && v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
		}
	}

	if err := num("SCANNER_TIMEOUT", &c.Scanner.TimeoutSeconds); err != nil {
		return err
	}
	if err := num("SCANNER_RETRY_ATTEMPTS", &c.Scanner.RetryAttempts); err != nil {
		return err
	}
	if err := num("KIOSK_PORT", &c.Server.Port); err != nil {
		return err
	}
	str("SCANNER_DEVICE_LIB", &c.Libraries.Device)
	str("SCANNER_DEVICE_LIB_FALLBACK", &c.Libraries.DeviceFallback)
	str("SCANNER_PROCESSING_LIB", &c.Libraries.Processing)
	str("SCANNER_PROCESSING_LIB_FALLBACK", &c.Libraries.ProcessingFallback)
	if v, ok := env("SCANNER_RUNTIME_DIRS"); ok && v != "" {
		c.Libraries.RuntimeDirs = filepath.SplitList(v)
	}
	flag("SCANNER_SIMULATE", &c.Scanner.Simulate)
	str("KIOSK_HOST", &c.Server.Host)
	str("KIOSK_API_KEY", &c.Server.APIKey)
	flag("USE_HTTPS", &c.Server.UseHTTPS)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	return nil
}

// Validate checks ranges and enumerations. Library files are not checked:
// a missing SDK is reported by the resolver at first use.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.UseHTTPS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return fmt.Errorf("server.cert_file and server.key_file are required when use_https is set")
	}
	if c.Scanner.TimeoutSeconds <= 0 || c.Scanner.TimeoutSeconds > 300 {
		return fmt.Errorf("scanner.timeout must be between 1 and 300 seconds, got %d", c.Scanner.TimeoutSeconds)
	}
	if c.Scanner.RetryAttempts <= 0 || c.Scanner.RetryAttempts > 10 {
		return fmt.Errorf("scanner.retry_attempts must be between 1 and 10, got %d", c.Scanner.RetryAttempts)
	}
	if c.Scanner.Grace < 0 {
		return fmt.Errorf("scanner.grace must not be negative, got %s", c.Scanner.Grace)
	}
	if _, ok := scanner.ParseTemplateFormat(c.Scanner.Template); !ok {
		return fmt.Errorf("scanner.template_format must be ansi378, iso19794 or none, got %q", c.Scanner.Template)
	}
	if _, err := imaging.ParseFormat(c.Scanner.Format); err != nil {
		return fmt.Errorf("scanner.image_format: %w", err)
	}
	if c.Scanner.HistorySize < 0 {
		return fmt.Errorf("scanner.history_size must not be negative, got %d", c.Scanner.HistorySize)
	}
	if _, err := simulator.ParseOutcomes(c.Scanner.SimScript); err != nil {
		return fmt.Errorf("scanner.simulate_script: %w", err)
	}
	if c.Libraries.Device == "" && c.Libraries.DeviceFallback == "" {
		return fmt.Errorf("libraries: no device library path configured")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.BackupCount < 0 {
		return fmt.Errorf("log.max_size_mb and log.backup_count must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("log.format must be auto, text or json, got %q", c.Log.Format)
	}
	return nil
}

// LibraryPaths converts the libraries section for the resolver.
func (c *Config) LibraryPaths() scanner.LibraryPaths {
	return scanner.LibraryPaths{
		DevicePrimary:      c.Libraries.Device,
		DeviceFallback:     c.Libraries.DeviceFallback,
		ProcessingPrimary:  c.Libraries.Processing,
		ProcessingFallback: c.Libraries.ProcessingFallback,
		RuntimeDirs:        c.Libraries.RuntimeDirs,
	}
}

// Timeout is the per-attempt capture timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Scanner.TimeoutSeconds) * time.Second
}

// TemplateFormat is the parsed template format. Validate has accepted it.
func (c *Config) TemplateFormat() scanner.TemplateFormat {
	f, _ := scanner.ParseTemplateFormat(c.Scanner.Template)
	return f
}

// ImageFormat is the parsed default sample encoding.
func (c *Config) ImageFormat() imaging.Format {
	f, _ := imaging.ParseFormat(c.Scanner.Format)
	return f
}
