// Package netconf owns the ambient system configuration every core
// subsystem reads: LAN/WAN interface selection, /etc/hosts, /etc/ethers,
// /etc/resolv.conf, /etc/hostname, and ARP programming. Grounded on the
// teacher's internal/aghnet (etchostscontainer.go, arpdb_linux.go,
// interfaces_linux.go) for parsing/watching style, and on
// original_source/src/etc.cc for the exact set of files and the join
// between /etc/ethers and /etc/hosts that seeds stable DHCP leases.
package netconf

import (
	"bufio"
	"net/netip"
	"os"
	"strings"
)

// HostsFile is a parsed /etc/hosts: every alias maps to its address. Per
// spec.md §4.7, entries in 127.0.0.0/8 are excluded from the DNS static
// authoritative set, but Hosts itself keeps everything so other consumers
// (e.g. the dashboard) can show the whole file.
type HostsFile struct {
	// ByName maps every alias (lowercased) to its address. When a name has
	// both an IPv4 and IPv6 entry, the IPv4 one wins, matching this
	// project's IPv4-only scope.
	ByName map[string]netip.Addr
}

// ParseHosts reads and parses the /etc/hosts-formatted file at path.
func ParseHosts(path string) (h *HostsFile, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h = &HostsFile{ByName: make(map[string]netip.Addr)}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		addr, parseErr := netip.ParseAddr(fields[0])
		if parseErr != nil || !addr.Is4() {
			continue
		}

		for _, name := range fields[1:] {
			name = strings.ToLower(name)
			if _, exists := h.ByName[name]; !exists {
				h.ByName[name] = addr
			}
		}
	}

	return h, sc.Err()
}

// NonLoopback returns every (name, addr) pair not in 127.0.0.0/8, the set
// spec.md §4.7 injects as static authoritative DNS entries.
func (h *HostsFile) NonLoopback() map[string]netip.Addr {
	loopback := netip.MustParsePrefix("127.0.0.0/8")

	out := make(map[string]netip.Addr)
	for name, addr := range h.ByName {
		if !loopback.Contains(addr) {
			out[name] = addr
		}
	}

	return out
}

// ReadHostname reads /etc/hostname, trimming whitespace and any domain
// suffix.
func ReadHostname(path string) (name string, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	name = strings.TrimSpace(string(b))
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}

	return name, nil
}
