// Package config loads the runtime configuration with the precedence
// runtime overrides > environment > config file > defaults.
package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	apperrors "github.com/SheetMetalConnect/metalfab-uns-simulator/internal/errors"
)

// EnvPrefix namespaces every environment override (METALFAB_PORT etc.).
const EnvPrefix = "METALFAB"

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Broker    BrokerConfig    `mapstructure:"broker" yaml:"broker"`
	Simulator SimulatorConfig `mapstructure:"simulator" yaml:"simulator"`
	UNS       UNSConfig       `mapstructure:"uns" yaml:"uns"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
}

// ServerConfig configures the HTTP status server.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig configures the runtime logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// BrokerConfig configures the MQTT connection. An empty URL selects the
// in-memory transport (dry-run mode).
type BrokerConfig struct {
	URL       string        `mapstructure:"url" yaml:"url"`
	ClientID  string        `mapstructure:"client_id" yaml:"client_id"`
	Username  string        `mapstructure:"username" yaml:"username"`
	Password  string        `mapstructure:"password" yaml:"password"`
	KeepAlive time.Duration `mapstructure:"keep_alive" yaml:"keep_alive"`

	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int `mapstructure:"burst" yaml:"burst"`
}

// SimulatorConfig configures the tick loop.
type SimulatorConfig struct {
	Level        int           `mapstructure:"level" yaml:"level"`
	Sites        []string      `mapstructure:"sites" yaml:"sites"`
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	Seed         int64         `mapstructure:"seed" yaml:"seed"`
}

// UNSConfig configures the topic layout.
type UNSConfig struct {
	Prefix     string `mapstructure:"prefix" yaml:"prefix"`
	Enterprise string `mapstructure:"enterprise" yaml:"enterprise"`
}

// HealthConfig toggles the health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("broker.url", "tcp://localhost:1883")
	v.SetDefault("broker.client_id", "metalfab-sim")
	v.SetDefault("broker.keep_alive", "30s")
	v.SetDefault("broker.queue_size", 4096)
	v.SetDefault("broker.rate_limit", 500)
	v.SetDefault("broker.burst", 200)

	v.SetDefault("simulator.level", 3)
	v.SetDefault("simulator.sites", []string{"eindhoven"})
	v.SetDefault("simulator.tick_interval", "1s")
	v.SetDefault("simulator.seed", 0)

	v.SetDefault("uns.prefix", "umh/v1")
	v.SetDefault("uns.enterprise", "metalfab")

	v.SetDefault("health.enabled", true)
}

// envBindings maps flat environment variable suffixes onto config paths,
// so METALFAB_PORT works alongside METALFAB_SERVER_PORT.
var envBindings = map[string]string{
	"PORT":          "server.port",
	"HOST":          "server.host",
	"LOG_LEVEL":     "logging.level",
	"LOG_PROFILE":   "logging.profile",
	"BROKER_URL":    "broker.url",
	"CLIENT_ID":     "broker.client_id",
	"USERNAME":      "broker.username",
	"PASSWORD":      "broker.password",
	"LEVEL":         "simulator.level",
	"SITES":         "simulator.sites",
	"TICK_INTERVAL": "simulator.tick_interval",
	"SEED":          "simulator.seed",
	"PREFIX":        "uns.prefix",
	"ENTERPRISE":    "uns.enterprise",
}

// Load reads configuration and installs it as the current config. An
// optional overrides map wins over environment and file values.
func Load(_ context.Context, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("metalfab-sim")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.metalfab-simulator")
	v.AddConfigPath("/etc/metalfab-sim")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, apperrors.Wrap(apperrors.CodeConfig, err, "read config file")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for suffix, path := range envBindings {
		if err := v.BindEnv(path, EnvPrefix+"_"+suffix); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfig, err, "bind environment")
		}
	}

	for _, o := range overrides {
		applyOverrides(v, "", o)
	}

	cfg := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = cfg
	configMu.Unlock()
	return cfg, nil
}

// applyOverrides flattens nested maps into dotted keys and installs them
// with the highest viper precedence, ahead of environment values.
func applyOverrides(v *viper.Viper, prefix string, m map[string]any) {
	for key, val := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			applyOverrides(v, path, nested)
			continue
		}
		v.Set(path, val)
	}
}

// GetConfig returns the most recently loaded config, or nil before Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return apperrors.NewValidationError(fmt.Sprintf("server port %d out of range", c.Server.Port))
	}
	if c.Simulator.Level < 0 || c.Simulator.Level > 4 {
		return apperrors.NewValidationError(fmt.Sprintf("simulator level %d out of range [0,4]", c.Simulator.Level))
	}
	if c.Simulator.TickInterval < 100*time.Millisecond {
		return apperrors.NewValidationError("tick interval below 100ms")
	}
	if c.Broker.URL != "" && !strings.Contains(c.Broker.URL, "://") {
		return apperrors.NewValidationError(fmt.Sprintf("broker url %q missing scheme", c.Broker.URL))
	}
	return nil
}
