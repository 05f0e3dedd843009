package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultDebugEntries is the number of records a [DebugLog] keeps.
const DefaultDebugEntries = 10

// DebugEntry is one captured log record.
type DebugEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Attrs   string    `json:"attrs,omitempty"`
}

// DebugLog is a bounded ring of recent log records. Its [DebugLog.Handler]
// wraps another [slog.Handler] and copies every record it handles into the
// ring, so the last few events can be shown to the user.
type DebugLog struct {
	mu      sync.Mutex
	entries []DebugEntry
	next    int
	full    bool
}

// NewDebugLog creates a ring holding up to n entries. n <= 0 uses
// [DefaultDebugEntries].
func NewDebugLog(n int) *DebugLog {
	if n <= 0 {
		n = DefaultDebugEntries
	}
	return &DebugLog{entries: make([]DebugEntry, n)}
}

func (d *DebugLog) add(e DebugEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[d.next] = e
	d.next = (d.next + 1) % len(d.entries)
	if d.next == 0 {
		d.full = true
	}
}

// Entries returns the captured records, newest first.
func (d *DebugLog) Entries() []DebugEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.next
	if d.full {
		n = len(d.entries)
	}
	out := make([]DebugEntry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, d.entries[(d.next-i+len(d.entries))%len(d.entries)])
	}
	return out
}

// Handler returns an [slog.Handler] that forwards to next and records every
// record at or above minLevel.
func (d *DebugLog) Handler(next slog.Handler, minLevel slog.Leveler) slog.Handler {
	return &teeHandler{next: next, log: d, min: minLevel}
}

type teeHandler struct {
	next  slog.Handler
	log   *DebugLog
	min   slog.Leveler
	attrs []slog.Attr
	group string
}

func (h *teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.min.Level() || h.next.Enabled(ctx, l)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.min.Level() {
		var sb strings.Builder
		write := func(a slog.Attr) {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%s=%v", a.Key, a.Value.Resolve())
		}
		for _, a := range h.attrs {
			write(a)
		}
		r.Attrs(func(a slog.Attr) bool {
			write(h.qualify(a))
			return true
		})
		h.log.add(DebugEntry{Time: r.Time, Level: r.Level.String(), Message: r.Message, Attrs: sb.String()})
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		c.attrs = append(c.attrs, h.qualify(a))
	}
	return &c
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.next = h.next.WithGroup(name)
	if c.group != "" {
		name = c.group + "." + name
	}
	c.group = name
	return &c
}

// qualify prefixes the attribute key with the open group names.
func (h *teeHandler) qualify(a slog.Attr) slog.Attr {
	if h.group != "" {
		a.Key = h.group + "." + a.Key
	}
	return a
}
