package logging

import (
	"context"
	"log/slog"
)

// componentFilter drops records below the level the spec gives the
// logger's component. The level is resolved once, when the component
// attribute is attached, not per record.
type componentFilter struct {
	inner   slog.Handler
	spec    *Spec
	level   slog.Level
	grouped bool
}

// NewFilteringHandler wraps inner with per-component level filtering.
// Loggers without a component use the spec's base level.
func NewFilteringHandler(inner slog.Handler, spec *Spec) slog.Handler {
	return &componentFilter{inner: inner, spec: spec, level: spec.BaseLevel.ToSlog()}
}

func (h *componentFilter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *componentFilter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.level {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *componentFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	level := h.level
	for _, attr := range attrs {
		if attr.Key == ComponentKey && !h.grouped {
			level = h.spec.LevelFor(attr.Value.String()).ToSlog()
		}
	}
	return &componentFilter{inner: h.inner.WithAttrs(attrs), spec: h.spec, level: level, grouped: h.grouped}
}

// WithGroup keeps the component level; attributes added inside a group
// are not component tags.
func (h *componentFilter) WithGroup(name string) slog.Handler {
	return &componentFilter{inner: h.inner.WithGroup(name), spec: h.spec, level: h.level, grouped: true}
}
