package dhcp

import (
	"net/netip"
	"time"

	"github.com/mafik/gatekeeperd/internal/expirable"
)

// Lease is one entry of the DHCP lease table (spec.md §3 "DHCP lease").
// Stable leases (seeded from /etc/ethers) never expire; this is modeled by
// simply not registering them with the expirable registry.
type Lease struct {
	ClientID     string
	Hostname     string
	IP           netip.Addr
	MAC          []byte
	Stable       bool
	LastActivity time.Time
}

// LeaseTable indexes leases by IP (the primary key, per spec.md §3) and by
// client id (for sticky-lease lookup), with an [expirable.Registry] keyed by
// IP driving expiration.
type LeaseTable struct {
	byIP       map[netip.Addr]*Lease
	byClientID map[string]*Lease
	expiry     *expirable.Registry[netip.Addr]
}

// NewLeaseTable returns an empty table.
func NewLeaseTable() *LeaseTable {
	return &LeaseTable{
		byIP:       make(map[netip.Addr]*Lease),
		byClientID: make(map[string]*Lease),
		expiry:     expirable.New[netip.Addr](),
	}
}

// Get returns the lease bound to ip, if any.
func (t *LeaseTable) Get(ip netip.Addr) (l *Lease, ok bool) {
	l, ok = t.byIP[ip]

	return l, ok
}

// GetByClientID returns the lease for clientID (sticky-lease lookup), if
// any.
func (t *LeaseTable) GetByClientID(clientID string) (l *Lease, ok bool) {
	l, ok = t.byClientID[clientID]

	return l, ok
}

// Put inserts or replaces the lease at l.IP, expiring after ttl. A zero ttl
// (and Stable set) installs a non-expiring entry.
func (t *LeaseTable) Put(l *Lease, ttl time.Duration) {
	t.Delete(l.IP)
	t.byIP[l.IP] = l
	t.byClientID[l.ClientID] = l

	if !l.Stable {
		t.expiry.AddWithTTL(l.IP, ttl)
	}
}

// Delete removes any lease at ip.
func (t *LeaseTable) Delete(ip netip.Addr) {
	old, ok := t.byIP[ip]
	if !ok {
		return
	}

	delete(t.byIP, ip)
	if old.ClientID != "" && t.byClientID[old.ClientID] == old {
		delete(t.byClientID, old.ClientID)
	}
	t.expiry.Delete(ip)
}

// ExpireNow drops every lease whose deadline has passed.
func (t *LeaseTable) ExpireNow(now time.Time) {
	t.expiry.ExpireNow(now, func(ip netip.Addr) {
		if l, ok := t.byIP[ip]; ok && t.byClientID[l.ClientID] == l {
			delete(t.byClientID, l.ClientID)
		}
		delete(t.byIP, ip)
	})
}

// IsExpired reports whether l's deadline, if any, is in the past.
func (t *LeaseTable) IsExpired(l *Lease, now time.Time) bool {
	e, ok := t.expiry.Get(l.IP)
	if !ok {
		return false
	}
	deadline, has := e.Deadline()

	return has && deadline.Before(now)
}

// MostExpired returns the lease whose deadline is furthest in the past
// among leases that have actually expired, for the evict-oldest fallback in
// [Allocate]. It never returns a stable lease.
func (t *LeaseTable) MostExpired(now time.Time) (l *Lease, ok bool) {
	var oldest time.Time
	for ip, lease := range t.byIP {
		e, has := t.expiry.Get(ip)
		if !has {
			continue
		}
		deadline, hasDeadline := e.Deadline()
		if !hasDeadline || !deadline.Before(now) {
			continue
		}
		if l == nil || deadline.Before(oldest) {
			l, oldest = lease, deadline
		}
	}

	return l, l != nil
}

// Snapshot returns every lease, for the dashboard's read-only table view.
func (t *LeaseTable) Snapshot() []*Lease {
	out := make([]*Lease, 0, len(t.byIP))
	for _, l := range t.byIP {
		out = append(out, l)
	}

	return out
}
