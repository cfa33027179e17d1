package netconf

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/exec"
	"strings"
)

// Interface bundles a selected LAN or WAN interface's name and index,
// resolved once at startup and then passed explicitly to every subsystem
// per spec.md §9 ("pass as an explicit context object ... rather than
// ambient globals").
type Interface struct {
	Name  string
	Index int
}

// SelectWAN picks the interface carrying the default route, honoring the
// WAN environment variable override (spec.md §6). Contract-level per
// spec.md §1 ("interface/route discovery helpers" is an out-of-scope
// collaborator); this is the thin `ip route` wrapper the reference
// implementation's src/route.cc/interface.cc provide.
func SelectWAN() (iface Interface, err error) {
	if name := os.Getenv("WAN"); name != "" {
		return lookup(name)
	}

	name, err := defaultRouteInterface()
	if err != nil {
		return Interface{}, fmt.Errorf("selecting WAN interface: %w", err)
	}

	return lookup(name)
}

// SelectLAN picks the first non-loopback, non-WAN interface that is up,
// honoring the LAN environment variable override.
func SelectLAN(wan Interface) (iface Interface, err error) {
	if name := os.Getenv("LAN"); name != "" {
		return lookup(name)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return Interface{}, fmt.Errorf("listing interfaces: %w", err)
	}

	for _, i := range ifaces {
		if i.Index == wan.Index {
			continue
		}
		if i.Flags&net.FlagLoopback != 0 || i.Flags&net.FlagUp == 0 {
			continue
		}

		return Interface{Name: i.Name, Index: i.Index}, nil
	}

	return Interface{}, fmt.Errorf("no candidate LAN interface found")
}

// Address returns iface's first configured IPv4 address, e.g. to learn the
// WAN interface's public-facing IP for NAT rewriting.
func Address(iface Interface) (addr netip.Addr, err error) {
	netIface, err := net.InterfaceByIndex(iface.Index)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("looking up interface %d: %w", iface.Index, err)
	}

	addrs, err := netIface.Addrs()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("listing addresses on %q: %w", iface.Name, err)
	}

	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			addr, _ = netip.AddrFromSlice(ip4)

			return addr, nil
		}
	}

	return netip.Addr{}, fmt.Errorf("interface %q has no IPv4 address", iface.Name)
}

func lookup(name string) (iface Interface, err error) {
	i, err := net.InterfaceByName(name)
	if err != nil {
		return Interface{}, fmt.Errorf("interface %q: %w", name, err)
	}

	return Interface{Name: i.Name, Index: i.Index}, nil
}

// defaultRouteInterface shells out to `ip route show default`, mirroring
// sysutil.GatewayIP's approach in the teacher pack.
func defaultRouteInterface() (name string, err error) {
	out, err := exec.Command("ip", "route", "show", "default").Output()
	if err != nil {
		return "", fmt.Errorf("running ip route: %w", err)
	}

	fields := strings.Fields(string(out))
	for i, f := range fields {
		if f == "dev" && i+1 < len(fields) {
			return fields[i+1], nil
		}
	}

	return "", fmt.Errorf("no default route found")
}

// EnableForwarding writes "1" to
// /proc/sys/net/ipv4/conf/<iface>/forwarding, per spec.md §6.
func EnableForwarding(ifaceName string) (err error) {
	path := fmt.Sprintf("/proc/sys/net/ipv4/conf/%s/forwarding", ifaceName)

	return os.WriteFile(path, []byte("1"), 0o644)
}

// AssignAddress gives ifaceName the LAN server's own address within net,
// bringing the link up if necessary, per spec.md §1's "configures it with
// a private IPv4 subnet". Shells out to `ip addr`/`ip link`, the same
// contract-level approach [defaultRouteInterface] already uses for route
// discovery.
func AssignAddress(ifaceName string, addr netip.Prefix) (err error) {
	if out, runErr := exec.Command("ip", "addr", "replace", addr.String(), "dev", ifaceName).CombinedOutput(); runErr != nil {
		return fmt.Errorf("assigning %s to %s: %w: %s", addr, ifaceName, runErr, out)
	}

	if out, runErr := exec.Command("ip", "link", "set", ifaceName, "up").CombinedOutput(); runErr != nil {
		return fmt.Errorf("bringing up %s: %w: %s", ifaceName, runErr, out)
	}

	return nil
}
