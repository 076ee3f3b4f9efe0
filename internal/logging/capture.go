package logging

import (
	"context"
	"log/slog"
	"sync"
)

// Entry is one record seen by a CaptureHandler.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// CaptureHandler keeps every record in memory. Tests use it to assert on
// what a fixture logged.
type CaptureHandler struct {
	mu      *sync.Mutex
	entries *[]Entry
	attrs   []slog.Attr
	group   string
}

func NewCaptureHandler() *CaptureHandler {
	return &CaptureHandler{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.key(a.Key)] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	*h.entries = append(*h.entries, Entry{Level: r.Level, Message: r.Message, Attrs: attrs})
	return nil
}

func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return &next
}

func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.group = h.key(name)
	return &next
}

// Entries returns a copy of the captured records.
func (h *CaptureHandler) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Entry(nil), *h.entries...)
}

// Messages returns the messages logged at level.
func (h *CaptureHandler) Messages(level slog.Level) []string {
	var out []string
	for _, e := range h.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

func (h *CaptureHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
