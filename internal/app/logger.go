package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger. Every entry carries the
// service attribute so the API, worker and ctl processes are
// distinguishable in a shared log stream.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "meridian"))
}
