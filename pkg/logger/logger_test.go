package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_JSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "json")
	slog.Info("dropped")
	slog.Warn("kept", "n", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
}

func TestFromContext_AddsBuildID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "text")
	ctx := WithBuildID(context.Background(), "b-42")

	assert.Equal(t, "b-42", BuildID(ctx))
	assert.Empty(t, BuildID(context.Background()))

	FromContext(ctx).Debug("hello")
	assert.Contains(t, buf.String(), "build_id=b-42")

	buf.Reset()
	WithComponent("pipeline").Info("x")
	assert.Contains(t, buf.String(), "component=pipeline")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
