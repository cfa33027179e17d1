package dns

import (
	"net/netip"
	"sort"
	"time"

	"github.com/mafik/gatekeeperd/internal/expirable"
)

// IncomingRequest is one client waiting on a Pending cache entry, recorded
// so the eventual (or timed-out) answer can be replayed to the right
// socket address with the right original transaction id.
type IncomingRequest struct {
	ID      uint16
	SrcAddr netip.Addr
	SrcPort uint16
}

// entryState tags whether a cache entry is still awaiting an upstream
// answer or has one cached, per spec.md §4.7's "Pending/Ready" tagged
// variant and the invariant in §8 ("never both").
type entryState int

const (
	statePending entryState = iota
	stateReady
)

// CacheEntry is the single struct backing both cache states; state decides
// which fields are meaningful, matching the reference implementation's
// tagged union more closely than two Go types would (a single registry key
// maps to exactly one entry either way).
type CacheEntry struct {
	Question Question
	state    entryState

	// Pending fields.
	UpstreamID uint16
	Waiters    []IncomingRequest

	// Ready fields.
	RCode      uint8
	Answers    []Record
	Authority  []Record
	Additional []Record
}

const (
	pendingTTL     = 25 * time.Second
	negativeTTL    = 60 * time.Second
	maxPositiveTTL = 24 * time.Hour
)

// Cache is the Question-keyed registry backing both the server and client
// sides of the proxy.
type Cache struct {
	byQuestion map[Question]*CacheEntry
	expiry     *expirable.Registry[Question]
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		byQuestion: make(map[Question]*CacheEntry),
		expiry:     expirable.New[Question](),
	}
}

// Get returns the entry for q, if any.
func (c *Cache) Get(q Question) (e *CacheEntry, ok bool) {
	e, ok = c.byQuestion[q]

	return e, ok
}

// Delete removes q's entry, if any.
func (c *Cache) Delete(q Question) {
	delete(c.byQuestion, q)
	c.expiry.Delete(q)
}

// ExpireNow drops every entry whose deadline has passed.
func (c *Cache) ExpireNow(now time.Time) {
	c.expiry.ExpireNow(now, func(q Question) {
		delete(c.byQuestion, q)
	})
}

// NextDeadline reports the earliest pending expiration, for sizing the
// reactor's wakeup timer.
func (c *Cache) NextDeadline() (t time.Time, ok bool) { return c.expiry.NextDeadline() }

// PutPending creates (or replaces) a Pending entry for q, waiting on
// upstreamID, with the first waiter already attached.
func (c *Cache) PutPending(q Question, upstreamID uint16, first IncomingRequest) *CacheEntry {
	e := &CacheEntry{
		Question:   q,
		state:      statePending,
		UpstreamID: upstreamID,
		Waiters:    []IncomingRequest{first},
	}
	c.byQuestion[q] = e
	c.expiry.AddWithTTL(q, pendingTTL)

	return e
}

// AddWaiter appends req to a Pending entry's waiter list and refreshes its
// deadline, per spec.md §4.7 "append the IncomingRequest... refresh pending
// deadline". No-op if e is not Pending.
func (c *Cache) AddWaiter(e *CacheEntry, req IncomingRequest) {
	if e.state != statePending {
		return
	}
	e.Waiters = append(e.Waiters, req)
	c.expiry.UpdateTTL(e.Question, pendingTTL)
}

// PutReady replaces q's entry with a Ready one built from an upstream
// response, per spec.md §4.7's deadline rule: the minimum record TTL, 60s
// for NAME_ERROR, capped at 24h. deadline's zero value means "never
// expires" (used for authoritative local-domain entries).
func (c *Cache) PutReady(q Question, rcode uint8, answers, authority, additional []Record, deadline time.Time) *CacheEntry {
	e := &CacheEntry{
		Question:   q,
		state:      stateReady,
		RCode:      rcode,
		Answers:    answers,
		Authority:  authority,
		Additional: additional,
	}
	c.byQuestion[q] = e
	c.expiry.Delete(q)
	if !deadline.IsZero() {
		c.expiry.AddWithDeadline(q, deadline)
	}

	return e
}

// IsPending reports whether e is awaiting an upstream answer.
func (e *CacheEntry) IsPending() bool { return e.state == statePending }

// IsReady reports whether e carries a usable answer.
func (e *CacheEntry) IsReady() bool { return e.state == stateReady }

// ReadyDeadline computes the deadline a fresh Ready entry should carry for
// an upstream response with the given rcode and minimum answer TTL
// (ignored when rcode is NAME_ERROR), per spec.md §4.7.
func ReadyDeadline(now time.Time, rcode uint8, minTTL uint32, hasAnswers bool) time.Time {
	if rcode == RCodeNameError || !hasAnswers {
		return now.Add(negativeTTL)
	}

	ttl := time.Duration(minTTL) * time.Second
	if ttl > maxPositiveTTL {
		ttl = maxPositiveTTL
	}

	return now.Add(ttl)
}

// MinTTL returns the smallest TTL among recs, or 0 if recs is empty.
func MinTTL(recs []Record) (min uint32, ok bool) {
	for i, r := range recs {
		if i == 0 || r.TTL < min {
			min = r.TTL
		}
	}

	return min, len(recs) > 0
}

// SnapshotEntry is one entry's question and deadline (zero time for
// non-expiring entries), for the dashboard's "expiration-ordered list"
// view (spec.md §4.7).
type SnapshotEntry struct {
	Question   Question
	Pending    bool
	Expiration time.Time
}

// Snapshot returns every cache entry for the dashboard, ordered by
// expiration; non-expiring entries come first.
func (c *Cache) Snapshot() []SnapshotEntry {
	out := make([]SnapshotEntry, 0, len(c.byQuestion))
	for q, e := range c.byQuestion {
		se := SnapshotEntry{Question: q, Pending: e.IsPending()}
		if entry, ok := c.expiry.Get(q); ok {
			se.Expiration, _ = entry.Deadline()
		}
		out = append(out, se)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Expiration.Before(out[j].Expiration) })

	return out
}
