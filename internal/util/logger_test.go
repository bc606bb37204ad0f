package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_File(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	logger, closeFn, err := NewLogger("info", dir, "")
	require.NoError(t, err)

	logger.Info("Service started", zap.String("addr", ":7777"))
	logger.Debug("hidden at info level")
	closeFn()

	content, err := os.ReadFile(filepath.Join(dir, DEFAULT_LOG_FILE))
	require.NoError(t, err)
	assert.Contains(t, string(content), "INFO")
	assert.Contains(t, string(content), "Service started")
	assert.NotContains(t, string(content), "hidden at info level")
}

func TestNewLogger_StderrOnly(t *testing.T) {
	logger, closeFn, err := NewLogger("", "", "")
	require.NoError(t, err)
	defer closeFn()
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, _, err := NewLogger("loud", "", "")
	assert.Error(t, err)
}

func TestCheckAndCreateLogFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, CheckAndCreateLogFolder(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.NoError(t, CheckAndCreateLogFolder(dir), "existing folder is fine")
}
