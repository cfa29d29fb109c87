package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/dfkpanel/panel/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		level   string
		wantErr string
		enabled zapcore.Level
	}{
		{name: "development debug", mode: "development", level: "debug", enabled: zapcore.DebugLevel},
		{name: "production info", mode: "production", level: "info", enabled: zapcore.InfoLevel},
		{name: "production warn", mode: "production", level: "warn", enabled: zapcore.WarnLevel},
		{name: "unknown mode", mode: "verbose", level: "info", wantErr: "invalid logging mode"},
		{name: "unknown level", mode: "production", level: "loud", wantErr: "invalid logging level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.mode, tt.level)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.enabled))
			assert.False(t, log.Core().Enabled(tt.enabled-1))
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Run("ConsoleOnly", func(t *testing.T) {
		log, err := NewFromConfig(&config.Config{
			Logging: config.LoggingConfig{Mode: "development", Level: "debug"},
		})
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("BadMode", func(t *testing.T) {
		_, err := NewFromConfig(&config.Config{
			Logging: config.LoggingConfig{Mode: "quiet", Level: "info"},
		})
		assert.Error(t, err)
	})

	t.Run("FileSink", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "panel.log")
		log, err := NewFromConfig(&config.Config{
			Logging: config.LoggingConfig{
				Mode:       "production",
				Level:      "info",
				File:       path,
				MaxSizeMB:  1,
				MaxBackups: 1,
			},
		})
		require.NoError(t, err)
		log.Info("site created")
		log.Debug("below level")
		_ = log.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"site created"`)
		assert.Contains(t, string(data), `"timestamp"`)
		assert.NotContains(t, string(data), "below level")
	})
}

func TestNewRotatingWriter(t *testing.T) {
	w := NewRotatingWriter(config.LoggingConfig{
		File:       "/var/log/dfkpanel/panel.log",
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 7,
	})
	assert.Equal(t, "/var/log/dfkpanel/panel.log", w.Filename)
	assert.Equal(t, 50, w.MaxSize)
	assert.Equal(t, 3, w.MaxBackups)
	assert.Equal(t, 7, w.MaxAge)
}
