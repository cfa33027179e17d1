// Package nat implements the userspace NAT worker: packets enqueued by
// internal/netfilter's NFQUEUE binding are classified, their IPv4/TCP/UDP
// headers rewritten, and a verdict emitted.
//
// Grounded on original_source/src/firewall.cc for the classify/rewrite
// control flow and on internal/dhcpsvc/handler4.go for the
// google/gopacket + gopacket/layers decode/serialize idiom — IPv4/TCP/UDP
// headers are not in the set of bit-layout-sensitive wire structures this
// project hand-rolls (DHCP, DNS, EAPOL), so reusing the teacher's packet
// library here is the grounded choice.
package nat

import "net/netip"

// ProtoTCP and ProtoUDP are the IP protocol numbers of this table's two rows.
// Only TCP and UDP are ever translated; anything else is rejected by
// [ProtoIndex].
const (
	ProtoTCP = 6
	ProtoUDP = 17
)

// ProtoIndex returns the row index for proto, or ok=false if proto isn't
// TCP or UDP.
func ProtoIndex(proto uint8) (idx int, ok bool) {
	switch proto {
	case ProtoTCP:
		return 0, true
	case ProtoUDP:
		return 1, true
	default:
		return 0, false
	}
}

// Table is the port-indexed NAT mapping: 65536 ports × 2 protocols, each
// slot holding the LAN host IP currently owning that (protocol, port) pair.
// It is explicitly lossy: a new learn for an already-occupied slot silently
// overwrites the previous owner. Not safe for concurrent use — the NAT
// worker is single-threaded per spec.md §5.
type Table struct {
	slots [2][65536]netip.Addr
}

// New returns an empty NAT table.
func New() *Table {
	return &Table{}
}

// Lookup returns the LAN host IP owning (proto, port), if any.
func (t *Table) Lookup(proto uint8, port uint16) (addr netip.Addr, ok bool) {
	idx, ok := ProtoIndex(proto)
	if !ok {
		return netip.Addr{}, false
	}

	addr = t.slots[idx][port]

	return addr, addr.IsValid()
}

// Learn records that (proto, port) now belongs to addr, returning the
// previous owner if the slot was already occupied by a different host.
func (t *Table) Learn(proto uint8, port uint16, addr netip.Addr) (prev netip.Addr, collided bool) {
	idx, ok := ProtoIndex(proto)
	if !ok {
		return netip.Addr{}, false
	}

	prev = t.slots[idx][port]
	t.slots[idx][port] = addr

	return prev, prev.IsValid() && prev != addr
}

// Entry is one occupied slot, for [Table.Snapshot].
type Entry struct {
	Proto uint8
	Port  uint16
	Addr  netip.Addr
}

// Snapshot lists every occupied (protocol, port) slot, for the dashboard's
// read-only NAT table view.
func (t *Table) Snapshot() []Entry {
	var out []Entry
	for idx, proto := range [2]uint8{ProtoTCP, ProtoUDP} {
		for port, addr := range t.slots[idx] {
			if addr.IsValid() {
				out = append(out, Entry{Proto: proto, Port: uint16(port), Addr: addr})
			}
		}
	}

	return out
}
