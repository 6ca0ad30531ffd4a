// Package logging builds the process logger: coloured console output and,
// optionally, a rotated log file.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Verbose bool

	// File, when set, receives a plain text copy of every record.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New returns a logger and a function that closes the log file.
func New(console *os.File, opts Options) (*slog.Logger, func() error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var h slog.Handler = tint.NewHandler(console, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(console.Fd()),
	})
	closer := func() error { return nil }

	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
		}
		h = NewMultiHandler(h, newFileHandler(lj))
		closer = lj.Close
	}
	return slog.New(h), closer
}

func newFileHandler(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// MultiHandler forwards each record to every handler that accepts its
// level.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if e := handler.Handle(ctx, r.Clone()); e != nil {
			err = e
		}
	}
	return err
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return NewMultiHandler(handlers...)
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return NewMultiHandler(handlers...)
}
