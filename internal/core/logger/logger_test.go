package logger

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"account-service/internal/core/config"
)

func TestFileRotateSink(t *testing.T) {
	file := filepath.Join(t.TempDir(), "app.log")
	l, cleanup := FromConfig(config.Log{
		Level: "info",
		JSON:  true,
		File:  config.LogFile{Filename: file, MaxSizeMB: 1},
	})
	l.Debug("hidden")
	l.Info("account purged", zap.String("id", "acc-1"))
	cleanup()

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"account purged"`)
	assert.Contains(t, string(b), `"id":"acc-1"`)
	assert.NotContains(t, string(b), "hidden")
}

func TestRedirectStdLog(t *testing.T) {
	file := filepath.Join(t.TempDir(), "std.log")
	l, cleanup := New(Options{Level: "debug", Rotate: FileRotate{Filename: file}})
	undo := RedirectStdLog(l, zapcore.WarnLevel)
	log.Print("from std log")
	undo()
	cleanup()

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), "from std log")
	assert.Contains(t, string(b), "WARN")
}

func TestBadLevelFallsBackToInfo(t *testing.T) {
	l, cleanup := New(Options{Level: "loud"})
	defer cleanup()
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
