package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HTTPCheck holds defaults for `nagcheck http`. Flags override them.
type HTTPCheck struct {
	Timeout              time.Duration `yaml:"timeout"`              // default 60s
	ResponseTimeWarning  time.Duration `yaml:"responseTimeWarning"`  // 0 = no limit
	ResponseTimeCritical time.Duration `yaml:"responseTimeCritical"` // 0 = no limit
	CertWarning          time.Duration `yaml:"certWarning"`          // default 168h (7d)
	CertCritical         time.Duration `yaml:"certCritical"`         // default 120h (5d)
	SendHeaders          []string      `yaml:"sendHeaders"`          // "name: value"
	CheckRevocation      bool          `yaml:"checkRevocation"`      // OCSP/CRL on secure targets
}

// GenericCheck holds defaults for `nagcheck generic`.
type GenericCheck struct {
	RequestTimeout      time.Duration `yaml:"requestTimeout"`      // default 60s
	RequestTimeWarning  time.Duration `yaml:"requestTimeWarning"`  // 0 = no limit
	RequestTimeCritical time.Duration `yaml:"requestTimeCritical"` // 0 = no limit
}

// Config holds nagcheck runtime configuration.
type Config struct {
	HTTP         HTTPCheck    `yaml:"http"`
	Generic      GenericCheck `yaml:"generic"`
	SOCKS5       string       `yaml:"socks5"`       // host:port of a SOCKS5 proxy
	RootCAFile   string       `yaml:"rootCAFile"`   // PEM bundle replacing the system roots
	OTelEndpoint string       `yaml:"otelEndpoint"` // empty = tracing disabled
	MetricsFile  string       `yaml:"metricsFile"`  // node-exporter textfile
	HistoryDB    string       `yaml:"historyDB"`    // SQLite path, empty = no history
	Output       string       `yaml:"output"`       // text or json
}

// Defaults returns a Config with the plugin defaults.
func Defaults() *Config {
	return &Config{
		HTTP: HTTPCheck{
			Timeout:      60 * time.Second,
			CertWarning:  168 * time.Hour, // 7 days
			CertCritical: 120 * time.Hour, // 5 days
		},
		Generic: GenericCheck{
			RequestTimeout: 60 * time.Second,
		},
		Output: "text",
	}
}

// Load reads a YAML config file and merges with defaults.
func Load(path string) (*Config, error) {
	c := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return c, nil
}

// Validate checks that the config values are sane.
func (c *Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.Generic.RequestTimeout <= 0 {
		return fmt.Errorf("generic.requestTimeout must be positive, got %s", c.Generic.RequestTimeout)
	}
	if err := validateBounds("http.responseTime", c.HTTP.ResponseTimeWarning, c.HTTP.ResponseTimeCritical); err != nil {
		return err
	}
	if err := validateBounds("generic.requestTime", c.Generic.RequestTimeWarning, c.Generic.RequestTimeCritical); err != nil {
		return err
	}
	if c.HTTP.CertWarning < 0 || c.HTTP.CertCritical < 0 {
		return fmt.Errorf("certificate thresholds must not be negative")
	}
	if c.HTTP.CertWarning > 0 && c.HTTP.CertCritical >= c.HTTP.CertWarning {
		return fmt.Errorf("http.certCritical (%s) must be less than http.certWarning (%s)", c.HTTP.CertCritical, c.HTTP.CertWarning)
	}
	for _, h := range c.HTTP.SendHeaders {
		if !strings.Contains(h, ":") {
			return fmt.Errorf("http.sendHeaders entry %q must be in 'name: value' format", h)
		}
	}
	if c.Output != "text" && c.Output != "json" {
		return fmt.Errorf("output must be text or json, got %q", c.Output)
	}
	return nil
}

// validateBounds checks an upper-bound pair where zero means no limit.
func validateBounds(name string, warning, critical time.Duration) error {
	if warning < 0 || critical < 0 {
		return fmt.Errorf("%s thresholds must not be negative", name)
	}
	if warning > 0 && critical > 0 && critical < warning {
		return fmt.Errorf("%sCritical (%s) must not be less than %sWarning (%s)", name, critical, name, warning)
	}
	return nil
}
