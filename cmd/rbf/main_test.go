package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/rbf/config"
)

func TestCreateLogger(t *testing.T) {
	t.Run("levels", func(t *testing.T) {
		for _, lvl := range []string{"debug", "INFO", "warn", "error"} {
			logger, closer, err := createLogger(config.LoggingConfig{Level: lvl, Output: "none"})
			require.NoError(t, err, lvl)
			assert.Nil(t, closer)
			assert.NotNil(t, logger)
		}
	})

	t.Run("level filters", func(t *testing.T) {
		logger, _, err := createLogger(config.LoggingConfig{Level: "warn", Output: "stderr"})
		require.NoError(t, err)
		assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
		assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rbf.log")
		logger, closer, err := createLogger(config.LoggingConfig{Level: "info", Output: "file", File: path})
		require.NoError(t, err)
		require.NotNil(t, closer)
		logger.Info("hello", "frames", 3)
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"hello"`)
		assert.Contains(t, string(data), `"frames":3`)
	})

	t.Run("invalid", func(t *testing.T) {
		_, _, err := createLogger(config.LoggingConfig{Level: "loud", Output: "none"})
		assert.Error(t, err)
		_, _, err = createLogger(config.LoggingConfig{Level: "info", Output: "syslog"})
		assert.Error(t, err)
		_, _, err = createLogger(config.LoggingConfig{Level: "info", Output: "file"})
		assert.Error(t, err)
	})
}

func TestInitTracerProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tp, shutdown, err := initTracerProvider(config.TracingConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.Nil(t, tp)
	assert.NotPanics(t, shutdown)

	_, _, err = initTracerProvider(config.TracingConfig{Enabled: true, Protocol: "carrier-pigeon"}, logger)
	assert.Error(t, err)
}
