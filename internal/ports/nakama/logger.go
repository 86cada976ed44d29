package nakama

import (
	"context"
	"log/slog"

	"github.com/heroiclabs/nakama-common/runtime"
)

// logHandler routes slog records to the Nakama runtime logger so app and bot
// code log through the server's own sink. Attributes become logger fields.
type logHandler struct {
	logger runtime.Logger
	level  slog.Leveler
	prefix string
	attrs  []slog.Attr
}

// NewLogger wraps a runtime logger in a *slog.Logger.
func NewLogger(logger runtime.Logger, level slog.Leveler) *slog.Logger {
	if level == nil {
		level = slog.LevelInfo
	}
	return slog.New(&logHandler{logger: logger, level: level})
}

func (h *logHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *logHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addField(fields, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addField(fields, h.prefix, a)
		return true
	})

	l := h.logger
	if len(fields) > 0 {
		l = l.WithFields(fields)
	}
	switch {
	case r.Level >= slog.LevelError:
		l.Error("%s", r.Message)
	case r.Level >= slog.LevelWarn:
		l.Warn("%s", r.Message)
	case r.Level >= slog.LevelInfo:
		l.Info("%s", r.Message)
	default:
		l.Debug("%s", r.Message)
	}
	return nil
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func addField(fields map[string]interface{}, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			addField(fields, p, ga)
		}
		return
	}
	fields[prefix+a.Key] = a.Value.Any()
}
