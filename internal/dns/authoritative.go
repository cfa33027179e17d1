package dns

import (
	"net/netip"
	"strings"
	"time"
)

// StaticTable holds the authoritative {name -> A record} set spec.md §4.7
// seeds at startup: every non-loopback /etc/hosts alias, plus
// "<hostname>.<local-domain>" pointing at the LAN server address. It
// answers queries directly and decides whether a miss under the local
// domain should be treated as NAME_ERROR rather than forwarded upstream.
type StaticTable struct {
	localDomain string // e.g. "lan", no leading dot
	names       map[string]netip.Addr
}

// NewStaticTable builds the table from hostsEntries (already filtered to
// non-loopback per [netconf.HostsFile.NonLoopback]), the machine's short
// hostname, the chosen local domain suffix, and the LAN-facing server
// address used for the hostname's own record.
func NewStaticTable(hostsEntries map[string]netip.Addr, hostname, localDomain string, serverIP netip.Addr) *StaticTable {
	localDomain = strings.ToLower(strings.Trim(localDomain, "."))

	t := &StaticTable{
		localDomain: localDomain,
		names:       make(map[string]netip.Addr, len(hostsEntries)+1),
	}
	for name, addr := range hostsEntries {
		t.names[strings.ToLower(name)] = addr
	}

	if hostname != "" && serverIP.IsValid() {
		t.names[strings.ToLower(hostname)+"."+localDomain] = serverIP
	}

	return t
}

// Lookup returns the address for an exact, lowercased name match.
func (t *StaticTable) Lookup(name string) (addr netip.Addr, ok bool) {
	addr, ok = t.names[strings.ToLower(name)]

	return addr, ok
}

// IsLocalDomain reports whether name falls under the local domain suffix,
// meaning a cache miss must answer NAME_ERROR instead of forwarding
// upstream (spec.md §4.7).
func (t *StaticTable) IsLocalDomain(name string) bool {
	if t.localDomain == "" {
		return false
	}

	name = strings.ToLower(name)
	suffix := "." + t.localDomain

	return name == t.localDomain || strings.HasSuffix(name, suffix)
}

// AnswerRecord builds the A record for a direct static hit, with no
// expiration (authoritative local-domain entries never expire, per
// spec.md §4.7).
func (t *StaticTable) AnswerRecord(name string, addr netip.Addr) Record {
	return Record{
		Question: Question{Name: strings.ToLower(name), Type: TypeA, Class: ClassIN},
		TTL:      uint32(maxPositiveTTL / time.Second),
		RData:    addr.AsSlice(),
	}
}
