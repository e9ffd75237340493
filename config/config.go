package config

import (
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// GatewayConfig holds the resilience tunables. Durations are strings so
// they can be written as "30s" in YAML and validated before parsing.
type GatewayConfig struct {
	Version          string `mapstructure:"version"`
	FailureThreshold int    `mapstructure:"failure_threshold"`
	CooldownPeriod   string `mapstructure:"cooldown_period"`
	HealthCacheTTL   string `mapstructure:"health_cache_ttl"`
	ProbeTimeout     string `mapstructure:"probe_timeout"`
	ProxyTimeout     string `mapstructure:"proxy_timeout"`
}

// ServiceConfig describes one backend service. URLEnv names the environment
// variable that overrides URL at startup; URL itself is the documented
// fallback used when the variable is unset.
type ServiceConfig struct {
	Name         string   `mapstructure:"name"`
	URL          string   `mapstructure:"url"`
	URLEnv       string   `mapstructure:"url_env"`
	PathPrefixes []string `mapstructure:"path_prefixes"`
	HealthPath   string   `mapstructure:"health_path"`
}

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Gateway  GatewayConfig   `mapstructure:"gateway"`
	Services []ServiceConfig `mapstructure:"services"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("gateway.version", "1.0.0")
	viper.SetDefault("gateway.failure_threshold", 5)
	viper.SetDefault("gateway.cooldown_period", "30s")
	viper.SetDefault("gateway.health_cache_ttl", "30s")
	viper.SetDefault("gateway.probe_timeout", "5s")
	viper.SetDefault("gateway.proxy_timeout", "30s")
	viper.SetDefault("services", defaultServices())

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	applyURLOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// defaultServices is the deploy-time service table. The set of services,
// their path prefixes, and health paths are fixed here; only the base URLs
// can be overridden via the listed environment variables.
func defaultServices() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"name":          "events",
			"url":           "http://localhost:4001",
			"url_env":       "EVENTS_SERVICE_URL",
			"path_prefixes": []string{"/events", "/search"},
			"health_path":   "/health",
		},
		{
			"name":          "calendar",
			"url":           "http://localhost:4002",
			"url_env":       "CALENDAR_SERVICE_URL",
			"path_prefixes": []string{"/calendar"},
			"health_path":   "/health",
		},
		{
			"name":          "matchmaking",
			"url":           "http://localhost:4003",
			"url_env":       "MATCHMAKING_SERVICE_URL",
			"path_prefixes": []string{"/matchmaking"},
			"health_path":   "/health",
		},
		{
			"name":          "users",
			"url":           "http://localhost:4004",
			"url_env":       "USERS_SERVICE_URL",
			"path_prefixes": []string{"/users", "/profiles"},
			"health_path":   "/health",
		},
	}
}

func applyURLOverrides(cfg *Config) {
	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if svc.URLEnv == "" {
			continue
		}
		if override := os.Getenv(svc.URLEnv); override != "" {
			svc.URL = override
		}
	}
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Gateway,
			validation.Required,
			validation.By(func(value interface{}) error {
				gc, ok := value.(GatewayConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a GatewayConfig")
				}
				return validation.ValidateStruct(&gc,
					validation.Field(&gc.Version, validation.Required),
					validation.Field(&gc.FailureThreshold, validation.Required, validation.Min(1)),
					validation.Field(&gc.CooldownPeriod, validation.Required, validation.By(validateDuration)),
					validation.Field(&gc.HealthCacheTTL, validation.Required, validation.By(validateDuration)),
					validation.Field(&gc.ProbeTimeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&gc.ProxyTimeout, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Services,
			validation.Required,
			validation.Length(1, 0),
			validation.By(validateUniqueServiceNames),
			validation.Each(validation.By(validateServiceConfig)),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 5s, 30s, 1m)")
	}

	return nil
}

func validateServiceURL(serviceURL string) error {
	if serviceURL == "" {
		return validation.NewError("validation_empty_url", "service URL cannot be empty")
	}

	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func validateServiceConfig(value interface{}) error {
	svc, ok := value.(ServiceConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ServiceConfig")
	}

	if svc.Name == "" {
		return validation.NewError("validation_empty_name", "service name cannot be empty")
	}

	if err := validateServiceURL(svc.URL); err != nil {
		return err
	}

	if len(svc.PathPrefixes) == 0 {
		return validation.NewError("validation_missing_prefixes", "service must declare at least one path prefix")
	}

	for _, prefix := range svc.PathPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return validation.NewError("validation_invalid_prefix", "path prefixes must start with /")
		}
	}

	if !strings.HasPrefix(svc.HealthPath, "/") {
		return validation.NewError("validation_invalid_health_path", "health path must start with /")
	}

	return nil
}

func validateUniqueServiceNames(value interface{}) error {
	services, ok := value.([]ServiceConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a list of ServiceConfig")
	}

	seen := make(map[string]struct{}, len(services))
	for _, svc := range services {
		if _, dup := seen[svc.Name]; dup {
			return validation.NewError("validation_duplicate_service", "service names must be unique")
		}
		seen[svc.Name] = struct{}{}
	}

	return nil
}
