package dhcp

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/sys/unix"
)

// Config bundles the process-wide values the server needs, passed in
// explicitly per spec.md §9 rather than read from globals.
type Config struct {
	LANIface    string
	LANIndex    int
	Network     netip.Prefix
	ServerIP    netip.Addr
	DomainName  string

	// OfferLease/AckLease are the fixed lease durations from spec.md §4.6's
	// message table.
	OfferLease time.Duration
	AckLease   time.Duration

	// SetARP programs a static ARP entry before a unicast reply to a
	// 0.0.0.0-sourced client, per spec.md §4.6. Optional: nil on platforms
	// without a Linux ARP ioctl (and in unit tests).
	SetARP func(iface string, ip netip.Addr, mac net.HardwareAddr) error
}

// Server is the DHCP UDP listener: one socket bound to 0.0.0.0:67 on the
// LAN device, reactor-driven, with its own lease table.
type Server struct {
	cfg    Config
	fd     int
	leases *LeaseTable
	log    *slog.Logger

	// sendTo transmits an encoded reply; overridable in tests so
	// Server.handle can be driven end to end without a real socket.
	// Defaults to a thin wrapper around unix.Sendto.
	sendTo func(buf []byte, addr [4]byte, port int) error
}

// Listen opens the UDP/67 socket bound to cfg.LANIface, matching spec.md
// §4.6's SO_BINDTODEVICE + SO_REUSEADDR requirement. The kernel-level
// binding lives outside net.ListenUDP's portable API, so this uses a raw
// socket the way original_source/src/epoll_udp.cc does.
func Listen(cfg Config, leases *LeaseTable, log *slog.Logger) (s *Server, err error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("dhcp: socket: %w", err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)

		return nil, fmt.Errorf("dhcp: SO_REUSEADDR: %w", err)
	}

	if err = unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, cfg.LANIface); err != nil {
		unix.Close(fd)

		return nil, fmt.Errorf("dhcp: SO_BINDTODEVICE(%s): %w", cfg.LANIface, err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		unix.Close(fd)

		return nil, fmt.Errorf("dhcp: SO_BROADCAST: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: ServerPort}
	if err = unix.Bind(fd, sa); err != nil {
		unix.Close(fd)

		return nil, fmt.Errorf("dhcp: bind :%d: %w", ServerPort, err)
	}

	s := &Server{cfg: cfg, fd: fd, leases: leases, log: log}
	s.sendTo = func(buf []byte, addr [4]byte, port int) error {
		return unix.Sendto(s.fd, buf, 0, &unix.SockaddrInet4{Port: port, Addr: addr})
	}

	return s, nil
}

// Fd implements internal/reactor.Listener.
func (s *Server) Fd() int { return s.fd }

// Name implements internal/reactor.Listener.
func (s *Server) Name() string { return "dhcp" }

// WantWrite implements internal/reactor.Listener; DHCP replies are sent
// synchronously from OnRead, so this server never wants EPOLLOUT.
func (s *Server) WantWrite() bool { return false }

// OnWrite implements internal/reactor.Listener.
func (s *Server) OnWrite() error { return nil }

// Close releases the socket.
func (s *Server) Close() (err error) { return unix.Close(s.fd) }

// OnRead drains every pending datagram (per spec.md §5, a listener loops
// `recvfrom` until EAGAIN), decoding and dispatching each one. A single
// malformed packet is logged and dropped without affecting the others.
func (s *Server) OnRead() (err error) {
	buf := make([]byte, 1500)

	for {
		n, from, recvErr := unix.Recvfrom(s.fd, buf, 0)
		if recvErr != nil {
			if errors.Is(recvErr, syscall.EAGAIN) || errors.Is(recvErr, syscall.EWOULDBLOCK) {
				return nil
			}

			return errors.Annotate(recvErr, "dhcp: recvfrom: %w")
		}

		sa4, ok := from.(*unix.SockaddrInet4)
		if !ok {
			continue
		}
		clientAddr := netip.AddrFrom4(sa4.Addr)

		msg, decodeErr := Decode(buf[:n])
		if decodeErr != nil {
			s.log.Warn("dropping malformed dhcp packet", "error", decodeErr, "from", clientAddr)
			continue
		}

		if handleErr := s.handle(msg, clientAddr); handleErr != nil {
			s.log.Warn("dhcp request failed", "error", handleErr, "from", clientAddr, "xid", msg.XID)
		}
	}
}

// handle dispatches msg by its DHCP message type, per spec.md §4.6's table.
func (s *Server) handle(msg *Message, clientAddr netip.Addr) (err error) {
	// Silently drop relayed packets not addressed to this server.
	if !msg.SIAddr.IsUnspecified() && msg.SIAddr != s.cfg.ServerIP {
		return nil
	}

	switch msg.MessageType() {
	case Discover:
		return s.handleDiscover(msg, clientAddr)
	case Request:
		return s.handleRequest(msg, clientAddr)
	case Inform:
		return s.handleInform(msg, clientAddr)
	case Release:
		return s.handleRelease(msg)
	default:
		return nil
	}
}

func (s *Server) handleDiscover(msg *Message, clientAddr netip.Addr) (err error) {
	clientID := msg.ClientID()
	requested, requestedOK := msg.RequestedIP()

	ip, err := Allocate(s.leases, s.cfg.Network, s.cfg.ServerIP, clientID, requested, requestedOK, time.Now())
	if err != nil {
		return err
	}

	hostname, _ := msg.HostName()
	lease := &Lease{
		ClientID:     clientID,
		Hostname:     hostname,
		IP:           ip,
		MAC:          append([]byte(nil), msg.ClientMAC()...),
		LastActivity: time.Now(),
	}
	s.leases.Put(lease, s.cfg.OfferLease)

	return s.reply(msg, clientAddr, Offer, ip, s.cfg.OfferLease)
}

func (s *Server) handleRequest(msg *Message, clientAddr netip.Addr) (err error) {
	clientID := msg.ClientID()
	requested, requestedOK := msg.RequestedIP()

	chosen, allocErr := Allocate(s.leases, s.cfg.Network, s.cfg.ServerIP, clientID, requested, requestedOK, time.Now())
	if allocErr != nil || !requestedOK || chosen != requested {
		return s.reply(msg, clientAddr, Nak, netip.Addr{}, 0)
	}

	hostname, _ := msg.HostName()
	lease := &Lease{
		ClientID:     clientID,
		Hostname:     hostname,
		IP:           chosen,
		MAC:          append([]byte(nil), msg.ClientMAC()...),
		LastActivity: time.Now(),
	}
	s.leases.Put(lease, s.cfg.AckLease)

	if msg.CIAddr.IsUnspecified() && s.cfg.SetARP != nil {
		if arpErr := s.cfg.SetARP(s.cfg.LANIface, chosen, msg.ClientMAC()); arpErr != nil {
			return fmt.Errorf("dhcp: installing ARP entry for %s: %w", chosen, arpErr)
		}
	}

	return s.reply(msg, clientAddr, Ack, chosen, s.cfg.AckLease)
}

func (s *Server) handleInform(msg *Message, clientAddr netip.Addr) (err error) {
	if msg.CIAddr != clientAddr {
		return nil
	}

	return s.reply(msg, clientAddr, Ack, msg.CIAddr, 0)
}

func (s *Server) handleRelease(msg *Message) (err error) {
	requested, _ := msg.RequestedIP()
	if !requested.IsValid() {
		requested = msg.CIAddr
	}
	s.leases.Delete(requested)

	return nil
}

// reply builds and sends a response per spec.md §4.6: OFFER and ACK carry
// Subnet-Mask, Router, Lease-Time, Domain-Name, Server-Identifier, DNS;
// INFORM's carries configuration only, no lease fields; NAK carries only
// Message-Type and Server-Identifier.
func (s *Server) reply(msg *Message, clientAddr netip.Addr, mt MessageType, yiaddr netip.Addr, lease time.Duration) (err error) {
	opts := map[uint8][]byte{
		OptMessageType: {byte(mt)},
		OptServerID:    s.cfg.ServerIP.AsSlice(),
	}

	if mt != Nak {
		opts[OptSubnetMask] = netMask4(s.cfg.Network)
		opts[OptRouter] = s.cfg.ServerIP.AsSlice()
		opts[OptDNS] = s.cfg.ServerIP.AsSlice()
		opts[OptDomainName] = []byte(s.cfg.DomainName)
		if lease > 0 {
			opts[OptLeaseTime] = be32(uint32(lease.Seconds()))
		}
	}

	buf := Encode(Reply{
		Op:     OpBootReply,
		XID:    msg.XID,
		CIAddr: msg.CIAddr,
		YIAddr: yiaddr,
		SIAddr: s.cfg.ServerIP,
		GIAddr: msg.GIAddr,
		CHAddr: msg.ClientMAC(),
		HType:  msg.HType,
		Options: opts,
	})

	dest := clientAddr
	if mt != Nak && yiaddr.IsValid() {
		dest = yiaddr
	}
	if dest == (netip.Addr{}) || !dest.IsValid() || dest.IsUnspecified() {
		dest = netip.AddrFrom4([4]byte{255, 255, 255, 255})
	}

	return s.sendTo(buf, dest.As4(), ClientPort)
}

func netMask4(p netip.Prefix) []byte {
	bits := net.CIDRMask(p.Bits(), 32)

	return []byte(bits)
}

func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
