package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/stackrun-dev/stackrun/internal/logger"
	"github.com/stackrun-dev/stackrun/internal/registry"
)

// Environment variables honored on top of the optional TOML file.
// File values lose to the environment.
const (
	EnvBackendPort        = "BACKEND_PORT"
	EnvFrontendPort       = "FRONTEND_PORT"
	EnvHealthCheckEnabled = "HEALTH_CHECK_ENABLED"
	EnvHealthCheckTimeout = "HEALTH_CHECK_TIMEOUT"
	EnvHealthLivePath     = "HEALTH_LIVE_PATH"
	EnvAPIAddr            = "STACKRUN_API_ADDR"
)

const (
	DefaultBackendPort      = 8000
	DefaultFrontendPort     = 5173
	DefaultHealthTimeoutSec = 30
	DefaultLivePath         = "/health/live"
	DefaultRunDir           = "_run"
)

// Journal driver names.
const (
	JournalSqlite     = "sqlite"
	JournalPostgres   = "postgres"
	JournalClickHouse = "clickhouse"
	JournalOff        = "off"
)

type HealthConfig struct {
	Enabled    bool   `toml:"enabled" mapstructure:"enabled"`
	TimeoutSec int    `toml:"timeout_sec" mapstructure:"timeout_sec"`
	LivePath   string `toml:"live_path" mapstructure:"live_path"`
}

// Timeout is the per-service liveness budget.
func (h HealthConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSec) * time.Second
}

// EndpointConfig templates one of the stock services.
type EndpointConfig struct {
	Port int    `toml:"port" mapstructure:"port"`
	Dir  string `toml:"dir" mapstructure:"dir"`
}

// APIConfig enables the control API when Listen is set.
type APIConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// MetricsConfig enables the Prometheus listener when Listen is set.
type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type ClickHouseConfig struct {
	Addr     string `toml:"addr" mapstructure:"addr"`
	Database string `toml:"database" mapstructure:"database"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	Table    string `toml:"table" mapstructure:"table"`
}

type JournalConfig struct {
	Driver     string           `toml:"driver" mapstructure:"driver"`
	DSN        string           `toml:"dsn" mapstructure:"dsn"`
	ClickHouse ClickHouseConfig `toml:"clickhouse" mapstructure:"clickhouse"`
}

// ServiceConfig is one [[services]] entry. Declaring any entry takes
// full ownership of the registry; the stock stack is not merged in.
type ServiceConfig struct {
	Name      string   `toml:"name" mapstructure:"name"`
	Role      string   `toml:"role" mapstructure:"role"`
	Command   []string `toml:"command" mapstructure:"command"`
	WorkDir   string   `toml:"workdir" mapstructure:"workdir"`
	Env       []string `toml:"env" mapstructure:"env"`
	Port      int      `toml:"port" mapstructure:"port"`
	LivePath  string   `toml:"live_path" mapstructure:"live_path"`
	ReadyPath string   `toml:"ready_path" mapstructure:"ready_path"`
	LogPath   string   `toml:"log_path" mapstructure:"log_path"`
	Tool      string   `toml:"tool" mapstructure:"tool"`
	Hint      string   `toml:"hint" mapstructure:"hint"`
}

// Config is the top-level TOML structure plus environment overrides.
type Config struct {
	RunDir   string          `toml:"run_dir" mapstructure:"run_dir"`
	Env      []string        `toml:"env" mapstructure:"env"`
	EnvFiles []string        `toml:"env_files" mapstructure:"env_files"`
	Log      logger.Config   `toml:"log" mapstructure:"log"`
	Health   HealthConfig    `toml:"health" mapstructure:"health"`
	Backend  EndpointConfig  `toml:"backend" mapstructure:"backend"`
	Frontend EndpointConfig  `toml:"frontend" mapstructure:"frontend"`
	API      APIConfig       `toml:"api" mapstructure:"api"`
	Metrics  MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Journal  JournalConfig   `toml:"journal" mapstructure:"journal"`
	Services []ServiceConfig `toml:"services" mapstructure:"services"`
}

// Default returns the stock configuration for the analyzer stack.
func Default() Config {
	return Config{
		RunDir: DefaultRunDir,
		Health: HealthConfig{
			Enabled:    true,
			TimeoutSec: DefaultHealthTimeoutSec,
			LivePath:   DefaultLivePath,
		},
		Backend:  EndpointConfig{Port: DefaultBackendPort},
		Frontend: EndpointConfig{Port: DefaultFrontendPort},
		Journal:  JournalConfig{Driver: JournalSqlite},
	}
}

// Load builds the effective configuration: defaults, then the TOML file
// at path when non-empty, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.fillDerived()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBackendPort); v != "" {
		p, err := parsePort(v)
		if err != nil {
			return &registry.ConfigError{Reason: EnvBackendPort + ": " + err.Error()}
		}
		c.Backend.Port = p
	}
	if v := os.Getenv(EnvFrontendPort); v != "" {
		p, err := parsePort(v)
		if err != nil {
			return &registry.ConfigError{Reason: EnvFrontendPort + ": " + err.Error()}
		}
		c.Frontend.Port = p
	}
	if v := os.Getenv(EnvHealthCheckEnabled); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &registry.ConfigError{Reason: EnvHealthCheckEnabled + ": not a boolean: " + v}
		}
		c.Health.Enabled = b
	}
	if v := os.Getenv(EnvHealthCheckTimeout); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return &registry.ConfigError{Reason: EnvHealthCheckTimeout + ": want positive seconds, got " + v}
		}
		c.Health.TimeoutSec = n
	}
	if v := os.Getenv(EnvHealthLivePath); v != "" {
		c.Health.LivePath = v
	}
	if v := os.Getenv(EnvAPIAddr); v != "" {
		c.API.Listen = v
	}
	return nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if p <= 0 || p > 65535 {
		return 0, fmt.Errorf("port %d out of range", p)
	}
	return p, nil
}

func (c *Config) fillDerived() {
	if c.RunDir == "" {
		c.RunDir = DefaultRunDir
	}
	if c.Log.File.Dir == "" {
		c.Log.File.Dir = filepath.Join(c.RunDir, "logs")
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = JournalSqlite
	}
	if c.Journal.Driver == JournalSqlite && c.Journal.DSN == "" {
		c.Journal.DSN = filepath.Join(c.RunDir, "journal.db")
	}
}

// Normalize re-derives dependent defaults after programmatic edits,
// for embedders that build a Config without Load.
func (c *Config) Normalize() { c.fillDerived() }

// Registry builds the service registry: the stock stack unless the file
// declares [[services]] entries.
func (c Config) Registry() (*registry.Registry, error) {
	if len(c.Services) == 0 {
		return registry.Builtin(registry.BuiltinParams{
			BackendPort:  c.Backend.Port,
			FrontendPort: c.Frontend.Port,
			LivePath:     c.Health.LivePath,
			BackendDir:   c.Backend.Dir,
			FrontendDir:  c.Frontend.Dir,
		})
	}
	descs := make([]registry.Descriptor, 0, len(c.Services))
	for _, s := range c.Services {
		live := s.LivePath
		if live == "" {
			live = c.Health.LivePath
		}
		descs = append(descs, registry.Descriptor{
			Name:      s.Name,
			Role:      registry.Role(s.Role),
			Command:   s.Command,
			WorkDir:   s.WorkDir,
			Env:       s.Env,
			Port:      s.Port,
			LivePath:  live,
			ReadyPath: s.ReadyPath,
			LogPath:   s.LogPath,
			Tool:      s.Tool,
			Hint:      s.Hint,
		})
	}
	return registry.New(descs)
}

// GlobalEnv returns the configured global overrides for spawned
// services: env_files contents in order, then the env list, later wins.
func (c Config) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines; # comments and blanks are skipped.
func loadEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
