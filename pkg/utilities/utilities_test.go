package utilities

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewSnowflakeID_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewSnowflakeID()
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestNewKSUID_Length(t *testing.T) {
	assert.Len(t, NewKSUID(), 27)
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelFromString("debug"))
	assert.Equal(t, zapcore.WarnLevel, levelFromString("warning"))
	assert.Equal(t, zapcore.ErrorLevel, levelFromString("error"))
	assert.Equal(t, zapcore.InfoLevel, levelFromString("bogus"))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_DEV", "1")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FILE", "/tmp/cinelog.log")
	cfg := ConfigFromEnv()
	assert.True(t, cfg.Dev)
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "/tmp/cinelog.log", cfg.File)
}

func TestInit_WritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "auth.log")

	lg, err := Init(Config{Level: "info", File: base})
	require.NoError(t, err)
	lg.Info("hello")
	_ = lg.Sync()

	matches, err := filepath.Glob(base + ".*")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
