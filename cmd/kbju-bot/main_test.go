package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/assistant"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/config"
)

func TestVersionCmd(t *testing.T) {
	t.Parallel()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestServeMissingConfig(t *testing.T) {
	t.Parallel()
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--config", t.TempDir() + "/absent.yaml"})

	assert.Error(t, cmd.Execute())
}

func TestCommandSpecs(t *testing.T) {
	t.Parallel()
	specs := commandSpecs()
	require.Len(t, specs, len(assistant.Commands))
	for _, s := range specs {
		assert.NotEmpty(t, s.Description)
		if s.Name == assistant.CommandTimezone {
			assert.Equal(t, "zone", s.Option)
		} else {
			assert.Empty(t, s.Option)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		l := newLogger(tt.level)
		assert.True(t, l.Enabled(context.Background(), tt.want), tt.level)
		assert.False(t, l.Enabled(context.Background(), tt.want-1), tt.level)
	}
}
