// Package logging builds the slog logger shared by the bluff binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pterm/pterm"
)

// New returns a logger writing to w. Format "pretty" renders through pterm for
// terminals; "json" emits one JSON object per line for collectors.
func New(format, level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	switch strings.ToLower(format) {
	case "", "pretty":
		pl := pterm.DefaultLogger.WithLevel(ptermLevel(lvl)).WithWriter(w)
		return slog.New(pterm.NewSlogHandler(pl)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func ptermLevel(l slog.Level) pterm.LogLevel {
	switch {
	case l >= slog.LevelError:
		return pterm.LogLevelError
	case l >= slog.LevelWarn:
		return pterm.LogLevelWarn
	case l >= slog.LevelInfo:
		return pterm.LogLevelInfo
	default:
		return pterm.LogLevelDebug
	}
}
