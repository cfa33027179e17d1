package dhcp

import (
	"fmt"
	"net/netip"
	"time"
)

// Allocate picks an IP for a client per spec.md §4.6's five-step algorithm:
// sticky lease, then valid Requested-IP, then linear scan, then
// evict-most-expired, then failure.
func Allocate(
	t *LeaseTable,
	network netip.Prefix,
	serverIP netip.Addr,
	clientID string,
	requested netip.Addr,
	requestedOK bool,
	now time.Time,
) (ip netip.Addr, err error) {
	if l, ok := t.GetByClientID(clientID); ok {
		return l.IP, nil
	}

	if requestedOK && validForRequest(t, network, serverIP, requested, now) {
		return requested, nil
	}

	if ip, ok := scanFree(t, network, serverIP); ok {
		return ip, nil
	}

	for {
		l, ok := t.MostExpired(now)
		if !ok {
			break
		}
		if l.IP != serverIP {
			return l.IP, nil
		}
		// An expired lease on the server's own address is never handed out;
		// drop it and look at the next most-expired one.
		t.Delete(l.IP)
	}

	return netip.Addr{}, fmt.Errorf("dhcp: no IP available in %s", network)
}

// validForRequest reports whether requested may be handed to this client:
// inside the network, not network/broadcast/server, and either free or
// owned by an already-expired lease.
func validForRequest(t *LeaseTable, network netip.Prefix, serverIP, requested netip.Addr, now time.Time) bool {
	if !network.Contains(requested) {
		return false
	}
	if requested == networkAddress(network) || requested == broadcastAddress(network) || requested == serverIP {
		return false
	}

	owner, ok := t.Get(requested)
	if !ok {
		return true
	}

	return t.IsExpired(owner, now)
}

// scanFree linearly walks network for the first address with no lease,
// skipping the network/broadcast/server addresses.
func scanFree(t *LeaseTable, network netip.Prefix, serverIP netip.Addr) (ip netip.Addr, ok bool) {
	netAddr := networkAddress(network)
	bcast := broadcastAddress(network)

	for cur := netAddr.Next(); cur.IsValid() && network.Contains(cur) && cur != bcast; cur = cur.Next() {
		if cur == serverIP {
			continue
		}
		if _, taken := t.Get(cur); !taken {
			return cur, true
		}
	}

	return netip.Addr{}, false
}

func networkAddress(p netip.Prefix) netip.Addr { return p.Masked().Addr() }

func broadcastAddress(p netip.Prefix) netip.Addr {
	base := p.Masked().Addr().As4()
	bits := p.Bits()

	hostBits := 32 - bits
	var mask uint32
	if hostBits > 0 {
		mask = (uint32(1) << uint(hostBits)) - 1
	}

	v := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	v |= mask

	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
