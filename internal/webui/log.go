// Package webui is the self-hosted HTTP/WebSocket status dashboard: an
// in-memory log tail and read-only JSON snapshots of the DHCP lease table,
// DNS cache, and NAT table. Contract-level per spec.md §1 ("the
// HTTP/WebSocket dashboard ... [is an] external collaborator, contract
// only"); grounded on original_source/src/log.cc for the log-tail/ANSI
// behavior and on internal/home's HTTP mux idiom for everything else.
package webui

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
)

// tailLen is how many recent log lines the dashboard keeps in memory,
// matching spec.md §7's "last ~20 messages".
const tailLen = 20

var ansiEscape = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

// LogTail is an [slog.Handler] that keeps the last [tailLen] formatted,
// ANSI-stripped log lines in memory and fans each new line out to every
// subscribed WebSocket connection, mirroring src/log.cc's in-memory ring
// buffer plus live listener list.
type LogTail struct {
	next slog.Handler

	mu   sync.Mutex
	ring []string

	subs map[chan string]struct{}
}

// NewLogTail wraps next, a normal formatting handler (e.g. the one
// [slogutil.New] returns), tee-ing every record into the dashboard's tail.
func NewLogTail(next slog.Handler) *LogTail {
	return &LogTail{next: next, subs: make(map[chan string]struct{})}
}

// Enabled implements slog.Handler.
func (t *LogTail) Enabled(ctx context.Context, lvl slog.Level) bool { return t.next.Enabled(ctx, lvl) }

// WithAttrs implements slog.Handler.
func (t *LogTail) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogTail{next: t.next.WithAttrs(attrs), subs: t.subs, ring: t.ring}
}

// WithGroup implements slog.Handler.
func (t *LogTail) WithGroup(name string) slog.Handler {
	return &LogTail{next: t.next.WithGroup(name), subs: t.subs, ring: t.ring}
}

// Handle implements slog.Handler: it forwards the record to the wrapped
// handler, then records a plain "LEVEL message" line for the dashboard.
func (t *LogTail) Handle(ctx context.Context, r slog.Record) error {
	line := ansiEscape.ReplaceAllString(r.Level.String()+" "+r.Message, "")

	t.mu.Lock()
	t.ring = append(t.ring, line)
	if len(t.ring) > tailLen {
		t.ring = t.ring[len(t.ring)-tailLen:]
	}
	for ch := range t.subs {
		select {
		case ch <- line:
		default: // slow subscriber: drop rather than block the reactor thread
		}
	}
	t.mu.Unlock()

	return t.next.Handle(ctx, r)
}

// Snapshot returns the current tail, oldest first.
func (t *LogTail) Snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, len(t.ring))
	copy(out, t.ring)

	return out
}

// Subscribe registers a channel to receive every future line, until
// Unsubscribe is called. The channel must be drained promptly; a full
// channel causes lines to be dropped for that subscriber, not blocked.
func (t *LogTail) Subscribe(ch chan string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[ch] = struct{}{}
}

// Unsubscribe removes ch, registered by [LogTail.Subscribe].
func (t *LogTail) Unsubscribe(ch chan string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, ch)
}
