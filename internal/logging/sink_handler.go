package logging

import (
	"context"
	"log/slog"
)

// sinkHandler delivers each record to every sink whose own level admits it.
// The daemon uses it to keep the per-run log file more verbose than the
// terminal.
type sinkHandler []slog.Handler

func newSinkHandler(sinks ...slog.Handler) slog.Handler {
	var live sinkHandler
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return NoopHandler{}
	case 1:
		return live[0]
	}
	return live
}

func (h sinkHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h sinkHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, s := range h {
		if !s.Enabled(ctx, record.Level) {
			continue
		}
		if err := s.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (h sinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (h sinkHandler) WithGroup(name string) slog.Handler {
	return h.each(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (h sinkHandler) each(fn func(slog.Handler) slog.Handler) sinkHandler {
	out := make(sinkHandler, len(h))
	for i, s := range h {
		out[i] = fn(s)
	}
	return out
}
