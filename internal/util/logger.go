package util

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LOG_BUFFER_SIZE     = 256 * 1024
	LOG_FLUSH_INTERVAL  = time.Second
	DEFAULT_LOG_FILE    = "webService.log"
	DEFAULT_LOG_LEVEL   = "info"
	logFilePermissions  = 0666
	logFolderPermission = 0755
)

// NewLogger builds the service logger. Entries always go to stderr; when dir
// is set they are also appended, buffered, to dir/file. The returned function
// flushes and closes every sink and must be called before exit.
func NewLogger(level, dir, file string) (*zap.Logger, func(), error) {
	if level == "" {
		level = DEFAULT_LOG_LEVEL
	}
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(config)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapLevel),
	}
	var closers []func()

	if dir != "" {
		if file == "" {
			file = DEFAULT_LOG_FILE
		}
		if err := CheckAndCreateLogFolder(dir); err != nil {
			return nil, nil, err
		}
		handle, err := os.OpenFile(filepath.Join(dir, file), os.O_RDWR|os.O_CREATE|os.O_APPEND, logFilePermissions)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		writer := &zapcore.BufferedWriteSyncer{
			WS:            zapcore.AddSync(handle),
			Size:          LOG_BUFFER_SIZE,
			FlushInterval: LOG_FLUSH_INTERVAL,
		}
		cores = append(cores, zapcore.NewCore(encoder, writer, zapLevel))
		closers = append(closers, func() {
			_ = writer.Stop()
			_ = handle.Close()
		})
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())

	closeFn := func() {
		// Sync on stderr fails on some platforms; nothing to do about it.
		_ = logger.Sync()
		for _, c := range closers {
			c()
		}
	}
	return logger, closeFn, nil
}

func CheckAndCreateLogFolder(folderNameWithPath string) error {
	_, err := os.Stat(folderNameWithPath)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(folderNameWithPath, logFolderPermission); err != nil {
			return fmt.Errorf("creating log folder %s: %w", folderNameWithPath, err)
		}
		return nil
	}
	return err
}
