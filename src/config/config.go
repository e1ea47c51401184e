// Package config provides configuration management for buildctl.
//
// Values come from, in increasing precedence: defaults, an optional
// buildctl.yaml (in the working directory or $HOME/.config/buildctl, or an
// explicit file), and BUILDCTL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. BUILDCTL_SERVER_URL.
const EnvPrefix = "BUILDCTL"

// Config holds the application configuration.
type Config struct {
	// ServerURL is the base URL of the build server, e.g. https://builds.example.com.
	ServerURL string `mapstructure:"server_url"`
	// Token is sent as a bearer token on every build server request.
	Token string `mapstructure:"token"`

	// HTTPAddr is the listen address of `buildctl serve`.
	HTTPAddr string `mapstructure:"http_addr"`
	// DownloadRoot confines API download destinations.
	DownloadRoot string `mapstructure:"download_root"`

	// RedpandaBrokers enables event publishing when non-empty.
	RedpandaBrokers []string `mapstructure:"redpanda_brokers"`
	// PostgresDSN enables persistent operation history when set.
	PostgresDSN string `mapstructure:"postgres_dsn"`

	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	OTelEnabled bool `mapstructure:"otel_enabled"`
	Debug       bool `mapstructure:"debug"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("server_url", "")
	v.SetDefault("token", "")
	v.SetDefault("http_addr", ":8088")
	v.SetDefault("download_root", ".")
	v.SetDefault("redpanda_brokers", "")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_delay", "5s")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("debug", false)
	return v
}

// Load reads configuration. configFile, when non-empty, must exist;
// otherwise buildctl.yaml is looked up and is optional.
func Load(configFile string) (*Config, error) {
	v := newViper()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("buildctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/buildctl")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.RedpandaBrokers = splitList(cfg.RedpandaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration from defaults, the optional config file
// and environment variables.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// MustLoadFromEnv loads configuration from environment variables and panics on error.
// This is useful for initialization in main() where configuration errors should be fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// splitList trims entries and drops empty ones, accepting both YAML lists
// and a comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.ServerURL == "" {
		result = multierror.Append(result, fmt.Errorf("%s_SERVER_URL environment variable is required", EnvPrefix))
	} else if u, err := url.Parse(c.ServerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("server_url %q must be an http(s) URL", c.ServerURL))
	}
	if c.HTTPAddr == "" {
		result = multierror.Append(result, fmt.Errorf("http_addr must not be empty"))
	}
	if c.DownloadRoot == "" {
		result = multierror.Append(result, fmt.Errorf("download_root must not be empty"))
	}
	if c.RetryAttempts < 1 {
		result = multierror.Append(result, fmt.Errorf("retry_attempts %d must be at least 1", c.RetryAttempts))
	}
	if c.RetryDelay < 0 {
		result = multierror.Append(result, fmt.Errorf("retry_delay %v must not be negative", c.RetryDelay))
	} else if c.RetryDelay%time.Second != 0 {
		// Retry delays travel as whole seconds.
		result = multierror.Append(result, fmt.Errorf("retry_delay %v must be a whole number of seconds", c.RetryDelay))
	}
	if c.RequestTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("request_timeout %v must be positive", c.RequestTimeout))
	}

	return result.ErrorOrNil()
}
