package netconf

import (
	"bufio"
	"net/netip"
	"os"
	"strings"
)

// ParseResolvConf returns every "nameserver" address in /etc/resolv.conf,
// the upstream resolver set for the DNS client socket (spec.md §4.7). Only
// IPv4 addresses are kept, per this project's IPv4-only scope.
func ParseResolvConf(path string) (upstreams []netip.Addr, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 || fields[0] != "nameserver" {
			continue
		}

		addr, parseErr := netip.ParseAddr(fields[1])
		if parseErr != nil || !addr.Is4() {
			continue
		}

		upstreams = append(upstreams, addr)
	}

	return upstreams, sc.Err()
}
