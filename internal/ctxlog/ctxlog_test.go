// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		logger *slog.Logger
	}{
		{
			name:   "with custom logger",
			logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		},
		{
			name:   "with nil logger should use default",
			logger: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := New(context.Background(), tt.logger)

			got := Logger(ctx)
			require.NotNil(t, got)

			if tt.logger == nil {
				assert.Same(t, DefaultLogger, got)
				return
			}

			assert.Same(t, tt.logger, got)
		})
	}
}

func TestLoggerWithoutContextValue(t *testing.T) {
	got := Logger(context.Background())
	assert.Same(t, DefaultLogger, got)
}

func TestContextHelpers(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	ctx := New(context.Background(), logger)

	Debug(ctx, "debug message", "k", "v")
	Info(ctx, "info message")
	Warn(ctx, "warn message")
	Error(ctx, "error message")

	out := buf.String()
	assert.Contains(t, out, "debug message")
	assert.Contains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
	assert.Contains(t, out, "k=v")
}

func TestLogLevelFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelWarn},
		{"bogus", slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run("level "+tt.value, func(t *testing.T) {
			t.Setenv(LogLevelEnv, tt.value)
			assert.Equal(t, tt.want, logLevelFromEnv())
		})
	}
}

func TestPrettyHandlerWritesMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	h := NewPrettyHandler(&slog.HandlerOptions{Level: slog.LevelDebug},
		WithDestinationWriter(buf),
	)
	logger := slog.New(h)

	logger.Info("hello world", "stage", 1)

	out := buf.String()
	assert.True(t, strings.Contains(out, "hello world"), "output %q should contain message", out)
	assert.Contains(t, out, "stage")
}
