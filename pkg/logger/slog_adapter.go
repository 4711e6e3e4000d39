package logger

import (
	"context"
	"log/slog"
	"strings"
)

// SlogHandler adapts a Logger to slog.Handler for libraries that log through
// *slog.Logger, such as the MCP server.
type SlogHandler struct {
	logger *Logger
	attrs  []slog.Attr
	group  string
}

// NewSlogHandler wraps logger.
func NewSlogHandler(logger *Logger) *SlogHandler {
	return &SlogHandler{logger: logger}
}

// Enabled ignores the level; the namespace decides.
func (h *SlogHandler) Enabled(context.Context, slog.Level) bool {
	return h.logger.Enabled()
}

// Handle renders the record as "[LEVEL] message key=value ...".
func (h *SlogHandler) Handle(_ context.Context, r slog.Record) error {
	if !h.logger.Enabled() {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("[" + r.Level.String() + "] ")
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		h.appendAttr(&sb, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&sb, a)
		return true
	})

	h.logger.Print(sb.String())
	return nil
}

func (h *SlogHandler) appendAttr(sb *strings.Builder, a slog.Attr) {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	sb.WriteString(" " + key + "=" + a.Value.Resolve().String())
}

// WithAttrs returns a handler that prepends attrs to every record.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &SlogHandler{logger: h.logger, attrs: merged, group: h.group}
}

// WithGroup qualifies subsequent attribute keys with name.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &SlogHandler{logger: h.logger, attrs: h.attrs, group: group}
}

// NewSlogLogger returns a *slog.Logger that writes through a namespaced Logger.
func NewSlogLogger(namespace string) *slog.Logger {
	return slog.New(NewSlogHandler(New(namespace)))
}
