// Package config loads and validates the quarantine proxy's configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for the proxy process.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Upstream   UpstreamConfig   `toml:"upstream"`
	Quarantine QuarantineConfig `toml:"quarantine"`

	// AccountsFile points at the JSON-backed account record store consulted
	// by the account configuration collaborator. The proxy itself never
	// routes sessions through it; it is loaded only so operators have a
	// directory of known mailboxes alongside the running proxy.
	AccountsFile string `toml:"accounts_file"`
}

// ServerConfig describes where the proxy listens.
type ServerConfig struct {
	ListenHost   string `toml:"listen_host"`
	UnsecurePort int    `toml:"unsecure_port"`
	SecurePort   int    `toml:"secure_port"`
	RESTListen   string `toml:"rest_listen"`
	TLSCertFile  string `toml:"tls_cert_file"`
	TLSKeyFile   string `toml:"tls_key_file"`
}

// IMAPAddr returns the cleartext listen address.
func (s ServerConfig) IMAPAddr() string {
	return net.JoinHostPort(s.ListenHost, strconv.Itoa(s.UnsecurePort))
}

// IMAPTLSAddr returns the implicit-TLS listen address.
func (s ServerConfig) IMAPTLSAddr() string {
	return net.JoinHostPort(s.ListenHost, strconv.Itoa(s.SecurePort))
}

// UpstreamConfig describes the single upstream IMAP server the proxy relays to.
type UpstreamConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	TLS  bool   `toml:"tls"`
}

// Addr returns the upstream host:port.
func (u UpstreamConfig) Addr() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// QuarantineConfig is the hold/deliver policy threshold.
type QuarantineConfig struct {
	Enabled   bool    `toml:"enabled"`
	MinAmount float64 `toml:"min_amount"`
}

// Load reads a TOML config file from path, applies environment overrides,
// validates it, and returns the Config.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides overlays the environment variables named in the proxy's
// external interface contract on top of the TOML-decoded defaults.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("UPSTREAM_IMAP_HOST"); ok {
		cfg.Upstream.Host = v
	}
	if v, ok := os.LookupEnv("UPSTREAM_IMAP_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.Port = n
		}
	}
	if v, ok := os.LookupEnv("UPSTREAM_IMAP_SSL"); ok {
		cfg.Upstream.TLS = parseBool(v, cfg.Upstream.TLS)
	}
	if v, ok := os.LookupEnv("LISTEN_HOST"); ok {
		cfg.Server.ListenHost = v
	}
	if v, ok := os.LookupEnv("UNSECURE_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.UnsecurePort = n
		}
	}
	if v, ok := os.LookupEnv("SECURE_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.SecurePort = n
		}
	}
	if v, ok := os.LookupEnv("TLS_CERT_FILE"); ok {
		cfg.Server.TLSCertFile = v
	}
	if v, ok := os.LookupEnv("TLS_KEY_FILE"); ok {
		cfg.Server.TLSKeyFile = v
	}
	if v, ok := os.LookupEnv("QUARANTINE_ENABLED"); ok {
		cfg.Quarantine.Enabled = parseBool(v, cfg.Quarantine.Enabled)
	}
	if v, ok := os.LookupEnv("FILTER_MIN_AMOUNT"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Quarantine.MinAmount = f
		}
	}
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return b
}

func (c *Config) validate() error {
	if c.Upstream.Host == "" {
		return fmt.Errorf("config: upstream.host is required")
	}
	if c.Upstream.Port <= 0 || c.Upstream.Port > 65535 {
		return fmt.Errorf("config: upstream.port %d out of range", c.Upstream.Port)
	}
	if c.Server.ListenHost == "" {
		return fmt.Errorf("config: server.listen_host is required")
	}
	if c.Server.UnsecurePort <= 0 && c.Server.SecurePort <= 0 {
		return fmt.Errorf("config: server must configure at least one of unsecure_port or secure_port")
	}
	if c.Server.SecurePort > 0 {
		if c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "" {
			return fmt.Errorf("config: secure_port requires tls_cert_file and tls_key_file")
		}
	}
	if c.Quarantine.MinAmount < 0 {
		return fmt.Errorf("config: quarantine.min_amount cannot be negative")
	}
	return nil
}
