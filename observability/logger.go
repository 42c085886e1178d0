package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewFileLogger returns a JSON logger writing to a rotated file. The
// terminal client uses it because its stdout is the chat itself.
func NewFileLogger(path, level string, maxSizeMB int) (*slog.Logger, io.Closer, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	writer := RotatingFile(path, maxSizeMB)
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), writer, nil
}

// RotatingFile keeps at most three compressed backups of maxSizeMB each.
func RotatingFile(path string, maxSizeMB int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}
