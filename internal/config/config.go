/*
Package config loads domaincheck settings. Values are layered: built-in defaults, then an optional
YAML/TOML/JSON config file, then DOMAINCHECK_* environment variables, then command-line flags
bound by the caller. Nested keys map to environment variables with dots replaced by underscores,
so lookup.whois_timeout is DOMAINCHECK_LOOKUP_WHOIS_TIMEOUT.
*/
package config

/*
domaincheck — WHOIS, DNS, geolocation and TLS lookups for lists of domains
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/x-stp/domaincheck/internal/lookup"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "DOMAINCHECK"

// Config is the decoded configuration.
type Config struct {
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	MetricsPort int    `mapstructure:"metrics_port"`

	Lookup LookupConfig `mapstructure:"lookup"`
	Server ServerConfig `mapstructure:"server"`
}

// LookupConfig tunes the per-domain pipeline.
type LookupConfig struct {
	WhoisTimeout     time.Duration `mapstructure:"whois_timeout"`
	DNSTimeout       time.Duration `mapstructure:"dns_timeout"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	DNSServers       []string      `mapstructure:"dns_servers"`
	GeoEndpoint      string        `mapstructure:"geo_endpoint"`
	GeoRatePerMinute int           `mapstructure:"geo_rate_per_minute"`
	GeoCacheTTL      time.Duration `mapstructure:"geo_cache_ttl"`
	BlockPrivate     bool          `mapstructure:"block_private"`
	BlockedRanges    []string      `mapstructure:"blocked_ranges"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Listen         string        `mapstructure:"listen"`
	UploadDir      string        `mapstructure:"upload_dir"`
	ResultsFile    string        `mapstructure:"results_file"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	// BlockPrivate guards header and TLS probes for uploads, regardless of lookup.block_private.
	BlockPrivate bool `mapstructure:"block_private"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("metrics_port", 0)

	v.SetDefault("lookup.whois_timeout", 15*time.Second)
	v.SetDefault("lookup.dns_timeout", 5*time.Second)
	v.SetDefault("lookup.probe_timeout", 10*time.Second)
	v.SetDefault("lookup.dns_servers", []string{})
	v.SetDefault("lookup.geo_endpoint", lookup.DefaultGeoEndpoint)
	v.SetDefault("lookup.geo_rate_per_minute", lookup.DefaultGeoRatePerMinute)
	v.SetDefault("lookup.geo_cache_ttl", time.Hour)
	v.SetDefault("lookup.block_private", false)
	v.SetDefault("lookup.blocked_ranges", []string{})

	v.SetDefault("server.listen", ":5000")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.results_file", "output/output.txt")
	v.SetDefault("server.poll_interval", time.Second)
	v.SetDefault("server.max_upload_bytes", int64(10<<20))
	v.SetDefault("server.block_private", true)
}

// Load reads path (if non-empty) and the environment into a Config. Flags must already be
// bound to v by the caller.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that would make the tool misbehave.
func (c *Config) Validate() error {
	if c.Lookup.GeoRatePerMinute < 0 {
		return fmt.Errorf("lookup.geo_rate_per_minute must not be negative")
	}
	if c.Server.PollInterval <= 0 {
		return fmt.Errorf("server.poll_interval must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port %d out of range", c.MetricsPort)
	}
	return nil
}

// LookupOptions converts the lookup section for lookup.NewChecker.
func (c *Config) LookupOptions(basic, blockPrivate bool) lookup.Options {
	l := c.Lookup
	return lookup.Options{
		WhoisTimeout:     l.WhoisTimeout,
		DNSTimeout:       l.DNSTimeout,
		ProbeTimeout:     l.ProbeTimeout,
		DNSServers:       l.DNSServers,
		GeoEndpoint:      l.GeoEndpoint,
		GeoRatePerMinute: l.GeoRatePerMinute,
		GeoCacheTTL:      l.GeoCacheTTL,
		BlockPrivate:     l.BlockPrivate || blockPrivate,
		BlockedRanges:    l.BlockedRanges,
		Basic:            basic,
	}
}
