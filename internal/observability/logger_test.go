package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylol-app/ylol/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestNewHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newHandler(&buf, config.Logging{Format: "json", Level: "info"}))
	l.Debug("hidden")
	l.Info("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "v", line["k"])

	buf.Reset()
	l = slog.New(newHandler(&buf, config.Logging{Format: "text"}))
	l.Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestWithFieldsAddsAttributes(t *testing.T) {
	prev := logger
	t.Cleanup(func() { logger = prev })

	var buf bytes.Buffer
	logger = slog.New(newHandler(&buf, config.Logging{Format: "json"}))
	WithFields("component", "server").Info("up")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "server", line["component"])
	assert.Equal(t, "up", line["msg"])
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestSetupWithFile(t *testing.T) {
	prev := logger
	t.Cleanup(func() {
		logger = prev
		slog.SetDefault(prev)
	})

	closeFn := Setup(config.Logging{Level: "info", File: filepath.Join(t.TempDir(), "ylol.log")})
	Logger().Info("written to file")
	require.NoError(t, closeFn())
}

func TestInitTelemetryDisabled(t *testing.T) {
	shutdown, err := InitTelemetry(context.Background(), config.Telemetry{Enabled: false}, "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
