package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ActionsHandler forwards every record to next and additionally writes
// warnings and errors as GitHub Actions workflow commands.
type ActionsHandler struct {
	w     io.Writer
	next  slog.Handler
	attrs []slog.Attr
}

func NewActionsHandler(w io.Writer, next slog.Handler) *ActionsHandler {
	return &ActionsHandler{w: w, next: next}
}

func (h *ActionsHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn || h.next.Enabled(ctx, level)
}

func (h *ActionsHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.next.Enabled(ctx, r.Level) {
		if err := h.next.Handle(ctx, r); err != nil {
			return err
		}
	}

	var command string
	switch {
	case r.Level >= slog.LevelError:
		command = "error"
	case r.Level >= slog.LevelWarn:
		command = "warning"
	default:
		return nil
	}

	parts := []string{r.Message}
	for _, a := range h.attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Key, a.Value.String()))
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Key, a.Value.String()))
		return true
	})

	_, err := fmt.Fprintf(h.w, "::%s::%s\n", command, escapeWorkflowData(strings.Join(parts, " ")))
	return err
}

func (h *ActionsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &ActionsHandler{w: h.w, next: h.next.WithAttrs(attrs), attrs: newAttrs}
}

func (h *ActionsHandler) WithGroup(name string) slog.Handler {
	return &ActionsHandler{w: h.w, next: h.next.WithGroup(name), attrs: h.attrs}
}

// escapeWorkflowData applies the escaping GitHub requires for command data.
func escapeWorkflowData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}
