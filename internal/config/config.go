// ABOUTME: Configuration loading and parsing for dockgate
// ABOUTME: Supports YAML or TOML files with env var expansion, env overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete dockgate configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Nodes     []NodeConfig    `yaml:"nodes" toml:"nodes"`
	Logs      LogsConfig      `yaml:"logs" toml:"logs"`
	Audit     AuditConfig     `yaml:"audit" toml:"audit"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener and browser-facing policy
type ServerConfig struct {
	HTTPAddr     string   `yaml:"http_addr" toml:"http_addr"`
	CORSOrigins  []string `yaml:"cors_origins" toml:"cors_origins"`
	TrustedHosts []string `yaml:"trusted_hosts" toml:"trusted_hosts"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve on :443 with a tailnet certificate
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose publicly via Funnel (implies HTTPS)
}

// AuthConfig holds credential and token settings
type AuthConfig struct {
	SecretKey  string        `yaml:"secret_key" toml:"secret_key"`
	TokenTTL   time.Duration `yaml:"-" toml:"-"`
	UsersFile  string        `yaml:"users_file" toml:"users_file"`
	BcryptCost int           `yaml:"bcrypt_cost" toml:"bcrypt_cost"`

	// Raw string values for unmarshaling
	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// NodeConfig names one container engine endpoint
type NodeConfig struct {
	Name string `yaml:"name" toml:"name"`
	// Host is a Docker host URL; empty uses DOCKER_HOST or the local socket.
	Host string `yaml:"host" toml:"host"`
}

// LogsConfig tunes the WebSocket log relay
type LogsConfig struct {
	Tail         int           `yaml:"tail" toml:"tail"`
	BufferLines  int           `yaml:"buffer_lines" toml:"buffer_lines"`
	WriteTimeout time.Duration `yaml:"-" toml:"-"`

	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
}

// AuditConfig holds the audit database location
type AuditConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Environment variables that override file values.
const (
	EnvSecretKey       = "DOCKGATE_SECRET_KEY"
	EnvLegacySecretKey = "DOCKERWEBUI_SECRET_KEY"
	EnvCORSOrigins     = "DOCKGATE_CORS_ORIGINS"
	EnvTrustedHosts    = "DOCKGATE_TRUSTED_HOSTS"
	EnvHTTPAddr        = "DOCKGATE_HTTP_ADDR"
	EnvUsersFile       = "DOCKGATE_USERS_FILE"
	EnvAuditDB         = "DOCKGATE_AUDIT_DB"
)

var nodeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

// Default returns a configuration usable without any file: one local node,
// permissive CORS and the files next to the working directory.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:    "0.0.0.0:8000",
			CORSOrigins: []string{"*"},
		},
		Auth: AuthConfig{
			TokenTTLRaw: "30m",
			UsersFile:   "users.json",
		},
		Nodes: []NodeConfig{{Name: "local"}},
		Logs: LogsConfig{
			Tail:            100,
			BufferLines:     256,
			WriteTimeoutRaw: "10s",
		},
		Audit:   AuditConfig{Path: "audit.db"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// A missing file is not an error: defaults and environment overrides apply.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := decode(path, expandEnvVars(string(data)), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func decode(path, content string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(content, cfg)
		return err
	}
	return yaml.Unmarshal([]byte(content), cfg)
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overrides file values with DOCKGATE_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvSecretKey); v != "" {
		cfg.Auth.SecretKey = v
	} else if v := os.Getenv(EnvLegacySecretKey); v != "" && cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = v
	}
	if v := os.Getenv(EnvCORSOrigins); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	if v := os.Getenv(EnvTrustedHosts); v != "" {
		cfg.Server.TrustedHosts = splitList(v)
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv(EnvUsersFile); v != "" {
		cfg.Auth.UsersFile = v
	}
	if v := os.Getenv(EnvAuditDB); v != "" {
		cfg.Audit.Path = v
	}
}

// applyDefaults restores defaults a file cleared by setting a section empty.
func applyDefaults(cfg *Config) {
	def := Default()
	if len(cfg.Nodes) == 0 {
		cfg.Nodes = def.Nodes
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = def.Server.CORSOrigins
	}
	if cfg.Auth.TokenTTLRaw == "" {
		cfg.Auth.TokenTTLRaw = def.Auth.TokenTTLRaw
	}
	if cfg.Auth.UsersFile == "" {
		cfg.Auth.UsersFile = def.Auth.UsersFile
	}
	if cfg.Logs.Tail <= 0 {
		cfg.Logs.Tail = def.Logs.Tail
	}
	if cfg.Logs.BufferLines <= 0 {
		cfg.Logs.BufferLines = def.Logs.BufferLines
	}
	if cfg.Logs.WriteTimeoutRaw == "" {
		cfg.Logs.WriteTimeoutRaw = def.Logs.WriteTimeoutRaw
	}
}

// splitList parses a comma separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if !nodeNamePattern.MatchString(n.Name) {
			return fmt.Errorf("nodes[%d].name %q must match %s", i, n.Name, nodeNamePattern)
		}
		if seen[n.Name] {
			return fmt.Errorf("nodes[%d].name %q is duplicated", i, n.Name)
		}
		seen[n.Name] = true
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Logs.WriteTimeout <= 0 {
		return fmt.Errorf("logs.write_timeout must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Logs.WriteTimeoutRaw != "" {
		cfg.Logs.WriteTimeout, err = time.ParseDuration(cfg.Logs.WriteTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing write_timeout %q: %w", cfg.Logs.WriteTimeoutRaw, err)
		}
	}

	return nil
}

// DefaultPath returns the config file location: DOCKGATE_CONFIG, then
// $XDG_CONFIG_HOME/dockgate/config.yaml, then ~/.config/dockgate/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("DOCKGATE_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dockgate", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "dockgate", "config.yaml")
}
