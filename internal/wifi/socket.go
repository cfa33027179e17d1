package wifi

import (
	"fmt"
	"net"
	"syscall"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/sys/unix"
)

// ethPPAE is ETH_P_PAE (802.1X Port Access Entity), the link-layer protocol
// EAPOL frames use.
const ethPPAE = 0x888E

// Socket is the EAPOL transport: a single AF_PACKET/SOCK_DGRAM/ETH_P_PAE
// socket, not bound to any one interface, shared by every [AccessPoint] on
// the host and demultiplexed by the ifindex each frame arrives on.
// Grounded directly on EAPOLReceiver in wifi.cc, which is likewise a single
// global socket rather than one per wireless interface — an
// interface-bound listener (the shape github.com/mdlayher/packet's
// Listen(ifi, ...) offers) doesn't fit that one-socket-many-interfaces
// design, so this socket is opened with golang.org/x/sys/unix directly,
// matching how internal/dhcp and internal/dns already open their sockets
// in this repository.
type Socket struct {
	fd  int
	aps map[int]*AccessPoint // keyed by ifindex
}

// OpenSocket binds the shared EAPOL socket.
func OpenSocket() (s *Socket, err error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, htons(ethPPAE))
	if err != nil {
		return nil, fmt.Errorf("wifi: socket(AF_PACKET, SOCK_DGRAM, ETH_P_PAE): %w", err)
	}

	return &Socket{fd: fd, aps: make(map[int]*AccessPoint)}, nil
}

// Bind registers ap to receive EAPOL frames for its interface, and wires
// ap's outgoing EAPOL path back through this socket.
func (s *Socket) Bind(ap *AccessPoint) {
	s.aps[ap.ifindex] = ap
	ap.sendEAPOL = func(mac [6]byte, frame []byte) error {
		return s.send(ap.ifindex, mac, frame)
	}
}

// Fd implements internal/reactor.Listener.
func (s *Socket) Fd() int { return s.fd }

// Name implements internal/reactor.Listener.
func (s *Socket) Name() string { return "wifi-eapol" }

// WantWrite implements internal/reactor.Listener.
func (s *Socket) WantWrite() bool { return false }

// OnWrite implements internal/reactor.Listener.
func (s *Socket) OnWrite() error { return nil }

// Close releases the socket.
func (s *Socket) Close() (err error) { return unix.Close(s.fd) }

// send transmits frame to mac over ifindex, matching SendEAPOL in wifi.cc.
func (s *Socket) send(ifindex int, mac [6]byte, frame []byte) error {
	sa := &unix.SockaddrLinklayer{
		Protocol: htons(ethPPAE),
		Ifindex:  ifindex,
		Halen:    6,
	}
	copy(sa.Addr[:6], mac[:])

	return unix.Sendto(s.fd, frame, 0, sa)
}

// OnRead drains every pending EAPOL frame, per spec.md §5's "loop until
// EAGAIN" rule, dispatching each to the access point owning its interface.
func (s *Socket) OnRead() (err error) {
	buf := make([]byte, 2048)

	for {
		n, from, recvErr := unix.Recvfrom(s.fd, buf, 0)
		if recvErr != nil {
			if errors.Is(recvErr, syscall.EAGAIN) || errors.Is(recvErr, syscall.EWOULDBLOCK) {
				return nil
			}

			return errors.Annotate(recvErr, "wifi: recvfrom: %w")
		}

		sall, ok := from.(*unix.SockaddrLinklayer)
		if !ok {
			continue
		}

		ap, ok := s.aps[sall.Ifindex]
		if !ok {
			continue
		}

		var mac [6]byte
		copy(mac[:], sall.Addr[:6])

		if handleErr := ap.HandleEAPOL(mac, buf[:n]); handleErr != nil {
			ap.log.Warn("eapol frame handling failed", "error", handleErr, "mac", net.HardwareAddr(mac[:]))
		}
	}
}

func htons(v uint16) uint16 { return (v<<8)&0xff00 | v>>8 }
