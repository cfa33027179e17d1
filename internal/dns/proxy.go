package dns

import (
	"log/slog"
	"math/rand"
	"net/netip"
)

// Config bundles the process-wide values shared by the server and client
// sockets, passed in explicitly per spec.md §9 rather than read from
// globals.
type Config struct {
	LANIface string
	LANNet   netip.Prefix
	ServerIP netip.Addr

	// Upstreams is the resolver set parsed from /etc/resolv.conf.
	Upstreams []netip.Addr

	Static *StaticTable
}

// Proxy is the shared state behind both the LAN-facing [Server] and the
// WAN-facing [Client]: one cache, one static table, one round-robin cursor
// over the upstream resolvers, and one request-id generator. Splitting the
// two sockets into separate [reactor.Listener]s while sharing this state
// mirrors the single-process, single-thread model of spec.md §5.
type Proxy struct {
	cfg   Config
	cache *Cache
	log   *slog.Logger

	upstreamCursor int
	nextID         uint16

	// serverSend delivers an answer to a LAN client; bound by
	// [ListenServer] once the server socket exists, so [Client] can relay
	// upstream replies without an import cycle between the two files.
	serverSend func(buf []byte, dst netip.Addr, port uint16) error
}

// NewProxy builds the shared state. The request id counter starts at a
// random 16-bit value per spec.md §4.7.
func NewProxy(cfg Config, log *slog.Logger) *Proxy {
	return &Proxy{
		cfg:    cfg,
		cache:  NewCache(),
		log:    log,
		nextID: uint16(rand.Intn(1 << 16)),
	}
}

// Cache exposes the shared cache, e.g. for the dashboard snapshot.
func (p *Proxy) Cache() *Cache { return p.cache }

// allocID returns the next outgoing transaction id, incrementing by 1 in
// network order per spec.md §4.7.
func (p *Proxy) allocID() uint16 {
	id := p.nextID
	p.nextID++

	return id
}

// nextUpstream round-robins over the configured resolvers.
func (p *Proxy) nextUpstream() (addr netip.Addr, ok bool) {
	if len(p.cfg.Upstreams) == 0 {
		return netip.Addr{}, false
	}

	addr = p.cfg.Upstreams[p.upstreamCursor%len(p.cfg.Upstreams)]
	p.upstreamCursor++

	return addr, true
}
