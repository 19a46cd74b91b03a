package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Handler forwards records to next and mirrors them into a Journal as
// one-line messages ("msg key=value ...").
type Handler struct {
	next    slog.Handler
	journal *Journal
	prefix  string // group prefix for attribute keys
	attrs   string // preformatted attributes from WithAttrs
}

// NewHandler wraps next.
func NewHandler(next slog.Handler, journal *Journal) *Handler {
	return &Handler{next: next, journal: journal}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	h.journal.Append(SeverityOf(r.Level), b.String(), r.Time)

	return h.next.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		writeAttr(&b, h.prefix, a)
	}
	return &Handler{
		next:    h.next.WithAttrs(attrs),
		journal: h.journal,
		prefix:  h.prefix,
		attrs:   b.String(),
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{
		next:    h.next.WithGroup(name),
		journal: h.journal,
		prefix:  h.prefix + name + ".",
		attrs:   h.attrs,
	}
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, p, ga)
		}
		return
	}
	fmt.Fprintf(b, " %s%s=%v", prefix, a.Key, a.Value.Any())
}

// NewLogger builds the process logger: JSON on next's writer plus the journal.
func NewLogger(next slog.Handler, journal *Journal) *slog.Logger {
	return slog.New(NewHandler(next, journal))
}
