package api

import (
	"fmt"
	"time"
)

// Config configures the REST API HTTP server.
//
// When Enabled is false no API server is started, leaving the CLI as the
// only way to operate on the catalog.
type Config struct {
	// Enabled controls whether the API server is started.
	// Default: true (API is enabled by default)
	// Use a pointer to distinguish "not set" from "explicitly false"
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`

	// Host is the listen address. Empty binds all interfaces.
	Host string `mapstructure:"host" yaml:"host,omitempty"`

	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// BasePath is the URL prefix the object endpoints are mounted under.
	// Default: /files
	BasePath string `mapstructure:"base_path" yaml:"base_path,omitempty"`

	// PublicURL is the externally reachable base URL used when building
	// resource links (scheme://host[:port], no trailing slash). Empty means
	// links are derived from each request's Host header.
	PublicURL string `mapstructure:"public_url" yaml:"public_url,omitempty"`

	// ReadHeaderTimeout is the maximum duration for reading request
	// headers. Default: 10s
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`

	// ReadTimeout and WriteTimeout bound whole-request reads and response
	// writes. Zero disables them: object up- and downloads stream at the
	// client's pace, so slow-client protection comes from
	// ReadHeaderTimeout and IdleTimeout instead.
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout,omitempty"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled. Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// IsEnabled returns whether the API server is enabled.
// Defaults to true if not explicitly set.
func (c *Config) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.BasePath == "" {
		c.BasePath = "/files"
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}
