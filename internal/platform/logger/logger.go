package logger

import (
	"io"
	"log/slog"
	"os"
)

func New(mode string) *slog.Logger {
	return NewWithWriter(mode, os.Stdout)
}

func NewWithWriter(mode string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if mode == "dev" {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// Discard は テスト用
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
