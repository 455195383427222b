package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "tcp://localhost:1883", cfg.Broker.URL)
	assert.Equal(t, "metalfab-sim", cfg.Broker.ClientID)
	assert.Equal(t, 3, cfg.Simulator.Level)
	assert.Equal(t, []string{"eindhoven"}, cfg.Simulator.Sites)
	assert.Equal(t, time.Second, cfg.Simulator.TickInterval)
	assert.Equal(t, "umh/v1", cfg.UNS.Prefix)
	assert.Equal(t, "metalfab", cfg.UNS.Enterprise)
	assert.True(t, cfg.Health.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("METALFAB_PORT", "9090")
	t.Setenv("METALFAB_LOG_LEVEL", "debug")
	t.Setenv("METALFAB_BROKER_URL", "tcp://broker.example.com:1883")
	t.Setenv("METALFAB_LEVEL", "4")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "tcp://broker.example.com:1883", cfg.Broker.URL)
	assert.Equal(t, 4, cfg.Simulator.Level)
}

func TestLoadNestedEnvOverrides(t *testing.T) {
	t.Setenv("METALFAB_SERVER_PORT", "7070")
	t.Setenv("METALFAB_UNS_ENTERPRISE", "acme")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "acme", cfg.UNS.Enterprise)
}

func TestLoadRuntimeOverridesWin(t *testing.T) {
	t.Setenv("METALFAB_PORT", "9090")

	cfg, err := Load(context.Background(), map[string]any{
		"server": map[string]any{"port": 6060},
		"simulator": map[string]any{
			"sites": []string{"eindhoven", "roeselare"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.Server.Port)
	assert.Equal(t, []string{"eindhoven", "roeselare"}, cfg.Simulator.Sites)
}

func TestGetConfigReturnsLoaded(t *testing.T) {
	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, cfg, GetConfig())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"negative port", func(c *Config) { c.Server.Port = -1 }},
		{"level too high", func(c *Config) { c.Simulator.Level = 5 }},
		{"tick too fast", func(c *Config) { c.Simulator.TickInterval = time.Millisecond }},
		{"broker url without scheme", func(c *Config) { c.Broker.URL = "localhost:1883" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(context.Background())
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsEmptyBrokerURL(t *testing.T) {
	cfg, err := Load(context.Background())
	require.NoError(t, err)
	cfg.Broker.URL = ""
	assert.NoError(t, cfg.Validate())
}
