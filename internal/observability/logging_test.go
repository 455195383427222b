package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLILoggerAvailable(t *testing.T) {
	assert.NotNil(t, CLILogger)
	assert.NotPanics(t, func() { CLILogger.Info("hello") })
}

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		profile string
		wantErr bool
	}{
		{"structured info", "info", "structured", false},
		{"json alias", "debug", "json", false},
		{"console dev", "warn", "console", false},
		{"empty profile defaults to structured", "info", "", false},
		{"bad level", "loud", "structured", true},
		{"bad profile", "info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := Init(tt.level, tt.profile)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
			assert.Same(t, logger, Logger())
		})
	}
}

func TestSyncDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, Sync)
}
