package logging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"grimm.is/holdover/internal/clock"
)

const appLogCapacity = 1000

// AppLogEntry is one record kept for the logs command and /api/logs.
type AppLogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     string            `json:"level"`
	Source    string            `json:"source"`
	Message   string            `json:"message"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// RingBuffer keeps the most recent entries, overwriting the oldest.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []AppLogEntry
	next    int
	full    bool
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]AppLogEntry, max(size, 1))}
}

func (rb *RingBuffer) Add(entry AppLogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries[rb.next] = entry
	rb.next++
	if rb.next == len(rb.entries) {
		rb.next = 0
		rb.full = true
	}
}

func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count()
}

func (rb *RingBuffer) count() int {
	if rb.full {
		return len(rb.entries)
	}
	return rb.next
}

func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.entries)
	rb.next, rb.full = 0, false
}

// GetAll returns every entry, oldest first.
func (rb *RingBuffer) GetAll() []AppLogEntry {
	return rb.newest(0, nil)
}

// GetLast returns up to n of the newest entries, oldest first.
func (rb *RingBuffer) GetLast(n int) []AppLogEntry {
	if n <= 0 {
		return []AppLogEntry{}
	}
	return rb.newest(n, nil)
}

// GetBySource returns up to limit of the newest entries from source, oldest
// first. A limit of 0 returns all of them.
func (rb *RingBuffer) GetBySource(source string, limit int) []AppLogEntry {
	return rb.newest(limit, func(e *AppLogEntry) bool { return e.Source == source })
}

// newest walks backwards from the latest entry collecting up to limit
// matches (all when limit <= 0) and returns them in chronological order.
func (rb *RingBuffer) newest(limit int, keep func(*AppLogEntry) bool) []AppLogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n := rb.count()
	out := make([]AppLogEntry, 0, min(n, max(limit, 0)))
	for i := 1; i <= n; i++ {
		idx := (rb.next - i + len(rb.entries)) % len(rb.entries)
		e := &rb.entries[idx]
		if keep != nil && !keep(e) {
			continue
		}
		out = append(out, *e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	slices.Reverse(out)
	return out
}

// GetAppLogBuffer returns the process-wide log buffer.
var GetAppLogBuffer = sync.OnceValue(func() *RingBuffer {
	return NewRingBuffer(appLogCapacity)
})

// Log records a message in the app log buffer without writing it to the
// process output.
func Log(source, level, format string, args ...any) {
	GetAppLogBuffer().Add(AppLogEntry{
		Timestamp: clock.Now(),
		Level:     level,
		Source:    source,
		Message:   fmt.Sprintf(format, args...),
	})
}

// APILog records an entry from the HTTP surface.
func APILog(level, format string, args ...any) { Log("api", level, format, args...) }

// CtlLog records an entry from the control plane.
func CtlLog(level, format string, args ...any) { Log("ctlplane", level, format, args...) }

// bufferHandler copies every handled record into a RingBuffer before
// passing it on.
type bufferHandler struct {
	next      slog.Handler
	buf       *RingBuffer
	component string
	extra     map[string]string
}

func newBufferHandler(next slog.Handler, buf *RingBuffer) *bufferHandler {
	return &bufferHandler{next: next, buf: buf}
}

func (h *bufferHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *bufferHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := AppLogEntry{
		Timestamp: r.Time,
		Level:     levelName(r.Level),
		Source:    h.component,
		Message:   r.Message,
		Extra:     make(map[string]string, len(h.extra)+r.NumAttrs()),
	}
	for k, v := range h.extra {
		entry.Extra[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			entry.Source = a.Value.String()
		} else {
			entry.Extra[a.Key] = a.Value.String()
		}
		return true
	})
	if entry.Source == "" {
		entry.Source = "system"
	}
	if len(entry.Extra) == 0 {
		entry.Extra = nil
	}
	h.buf.Add(entry)
	return h.next.Handle(ctx, r)
}

func (h *bufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := &bufferHandler{
		next:      h.next.WithAttrs(attrs),
		buf:       h.buf,
		component: h.component,
		extra:     make(map[string]string, len(h.extra)+len(attrs)),
	}
	for k, v := range h.extra {
		c.extra[k] = v
	}
	for _, a := range attrs {
		if a.Key == "component" {
			c.component = a.Value.String()
		} else {
			c.extra[a.Key] = a.Value.String()
		}
	}
	return c
}

func (h *bufferHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.next = h.next.WithGroup(name)
	return &c
}
