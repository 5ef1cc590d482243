package logger

import (
	"context"
	"log/slog"
)

// ContextHandler is a slog.Handler that copies logging fields stored in the
// context onto each record before delegating to an inner handler.
type ContextHandler struct {
	inner        slog.Handler
	commonFields []slog.Attr
}

// NewContextHandler wraps inner. commonFields are added to every record
// (service name, environment).
func NewContextHandler(inner slog.Handler, commonFields ...slog.Attr) *ContextHandler {
	return &ContextHandler{
		inner:        inner,
		commonFields: commonFields,
	}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds common fields, then context fields, then the record's own
// attributes, and passes the result to the inner handler. A context field is
// skipped when the record carries an attribute with the same key.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	newRecord := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	for _, attr := range h.commonFields {
		newRecord.AddAttrs(attr)
	}

	if ctx != nil {
		own := make(map[string]bool, r.NumAttrs())
		r.Attrs(func(a slog.Attr) bool {
			own[a.Key] = true
			return true
		})
		for _, key := range allContextKeys {
			if own[string(key)] {
				continue
			}
			if s, ok := ctx.Value(key).(string); ok && s != "" {
				newRecord.AddAttrs(slog.String(string(key), s))
			}
		}
	}

	r.Attrs(func(a slog.Attr) bool {
		newRecord.AddAttrs(a)
		return true
	})

	return h.inner.Handle(ctx, newRecord)
}

// WithAttrs returns a new handler with the given attributes added to the inner handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		inner:        h.inner.WithAttrs(attrs),
		commonFields: h.commonFields,
	}
}

// WithGroup returns a new handler with the given group opened on the inner handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{
		inner:        h.inner.WithGroup(name),
		commonFields: h.commonFields,
	}
}

// Unwrap returns the inner handler.
func (h *ContextHandler) Unwrap() slog.Handler {
	return h.inner
}

var _ slog.Handler = (*ContextHandler)(nil)
