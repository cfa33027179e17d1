//go:build linux

package netconf

import (
	"fmt"
	"net"
	"net/netip"
	"unsafe"

	"golang.org/x/sys/unix"
)

// arpreq mirrors Linux's struct arpreq (net/if_arp.h) byte for byte:
//
//	struct arpreq {
//	  struct sockaddr arp_pa;      /* protocol address */
//	  struct sockaddr arp_ha;      /* hardware address */
//	  int              arp_flags;
//	  struct sockaddr arp_netmask; /* only for proxy arp */
//	  char             arp_dev[16];
//	};
//
// Grounded on original_source/src/arp.cc's IOCtlRequest, whose static_assert
// pins this exact layout. sockaddr is family(2) + 14 bytes of data.
type arpreq struct {
	paFamily   uint16
	paData     [14]byte
	haFamily   uint16
	haData     [14]byte
	flags      int32
	maskFamily uint16
	maskData   [14]byte
	dev        [16]byte
}

const (
	atfCom = 0x02 // ATF_COM: entry is complete (has a known hardware address)
)

// SetARP installs a static ARP entry (ip -> mac) on iface, per spec.md §4.6
// ("installs an ARP entry ... before replying"). af is an AF_INET socket
// used only to carry the ioctl.
func SetARP(af int, iface string, ip netip.Addr, mac net.HardwareAddr) (err error) {
	req, err := buildARPReq(iface, ip, mac)
	if err != nil {
		return err
	}
	req.flags = atfCom

	if err = ioctlARP(af, unix.SIOCSARP, &req); err != nil {
		return fmt.Errorf("ioctl(SIOCSARP) on %s for %s: %w", iface, ip, err)
	}

	return nil
}

// DelARP removes the ARP entry for ip on iface, e.g. on DHCP lease release.
func DelARP(af int, iface string, ip netip.Addr) (err error) {
	req, err := buildARPReq(iface, ip, nil)
	if err != nil {
		return err
	}

	if err = ioctlARP(af, unix.SIOCDARP, &req); err != nil {
		return fmt.Errorf("ioctl(SIOCDARP) on %s for %s: %w", iface, ip, err)
	}

	return nil
}

func buildARPReq(iface string, ip netip.Addr, mac net.HardwareAddr) (req arpreq, err error) {
	if !ip.Is4() {
		return arpreq{}, fmt.Errorf("arp: only IPv4 is supported, got %s", ip)
	}
	if len(iface) >= len(req.dev) {
		return arpreq{}, fmt.Errorf("arp: interface name %q too long", iface)
	}

	req.paFamily = unix.AF_INET
	addr := ip.As4()
	copy(req.paData[2:6], addr[:])

	if mac != nil {
		if len(mac) != 6 {
			return arpreq{}, fmt.Errorf("arp: MAC must be 6 bytes, got %d", len(mac))
		}
		req.haFamily = unix.AF_UNSPEC
		copy(req.haData[:6], mac)
	}

	copy(req.dev[:], iface)

	return req, nil
}

func ioctlARP(fd int, op uintptr, req *arpreq) (err error) {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), op, uintptr(unsafe.Pointer(req)))
	if errno != 0 {
		return errno
	}

	return nil
}
