package dns

import (
	"fmt"
	"net/netip"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/sys/unix"
)

// ServerPort is the well-known LAN-facing port (spec.md §4.7).
const ServerPort = 53

// Server is the LAN-facing UDP socket: validates requests, answers
// directly from the static table or cache, and otherwise forwards misses
// to the shared [Proxy]'s [Client].
type Server struct {
	p      *Proxy
	client *Client
	fd     int
}

// ListenServer opens the UDP/53 socket bound to cfg.LANIface, and wires its
// send path into p so [Client] can relay upstream replies back out this
// socket.
func ListenServer(p *Proxy, client *Client) (s *Server, err error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("dns: server: socket: %w", err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)

		return nil, fmt.Errorf("dns: server: SO_REUSEADDR: %w", err)
	}

	if err = unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, p.cfg.LANIface); err != nil {
		unix.Close(fd)

		return nil, fmt.Errorf("dns: server: SO_BINDTODEVICE(%s): %w", p.cfg.LANIface, err)
	}

	if err = unix.Bind(fd, &unix.SockaddrInet4{Port: ServerPort}); err != nil {
		unix.Close(fd)

		return nil, fmt.Errorf("dns: server: bind :%d: %w", ServerPort, err)
	}

	s = &Server{p: p, client: client, fd: fd}
	p.serverSend = s.send

	return s, nil
}

// Fd implements internal/reactor.Listener.
func (s *Server) Fd() int { return s.fd }

// Name implements internal/reactor.Listener.
func (s *Server) Name() string { return "dns-server" }

// WantWrite implements internal/reactor.Listener; replies are sent
// synchronously from OnRead.
func (s *Server) WantWrite() bool { return false }

// OnWrite implements internal/reactor.Listener.
func (s *Server) OnWrite() error { return nil }

// Close releases the socket.
func (s *Server) Close() (err error) { return unix.Close(s.fd) }

// send writes buf to dst:port from this socket, used both for direct
// replies and for relaying a waiter's eventual answer.
func (s *Server) send(buf []byte, dst netip.Addr, port uint16) error {
	sa := &unix.SockaddrInet4{Port: int(port), Addr: dst.As4()}

	return unix.Sendto(s.fd, buf, 0, sa)
}

// OnRead drains every pending request datagram, per spec.md §5's
// "loop until EAGAIN" rule.
func (s *Server) OnRead() (err error) {
	buf := make([]byte, 1500)

	for {
		n, from, recvErr := unix.Recvfrom(s.fd, buf, 0)
		if recvErr != nil {
			if errors.Is(recvErr, syscall.EAGAIN) || errors.Is(recvErr, syscall.EWOULDBLOCK) {
				return nil
			}

			return errors.Annotate(recvErr, "dns: server: recvfrom: %w")
		}

		sa4, ok := from.(*unix.SockaddrInet4)
		if !ok {
			continue
		}
		srcAddr := netip.AddrFrom4(sa4.Addr)

		// Reject requests whose source is outside the LAN network,
		// per spec.md §4.7.
		if !s.p.cfg.LANNet.Contains(srcAddr) {
			continue
		}

		msg, decodeErr := Decode(buf[:n])
		if decodeErr != nil {
			s.p.log.Warn("dropping malformed dns query", "error", decodeErr, "from", srcAddr)
			continue
		}

		if handleErr := s.handle(msg, srcAddr, uint16(sa4.Port)); handleErr != nil {
			s.p.log.Warn("dns request failed", "error", handleErr, "from", srcAddr, "id", msg.ID)
		}
	}
}

// handle processes one incoming query per spec.md §4.7's "Query processing
// (server side)" rules.
func (s *Server) handle(msg *Message, srcAddr netip.Addr, srcPort uint16) (err error) {
	if msg.Opcode != OpQuery {
		return s.replyError(msg, srcAddr, srcPort, RCodeNotImplemented)
	}
	if len(msg.Questions) != 1 {
		return s.replyError(msg, srcAddr, srcPort, RCodeFormatError)
	}

	q := msg.Questions[0]
	req := IncomingRequest{ID: msg.ID, SrcAddr: srcAddr, SrcPort: srcPort}

	if addr, ok := s.p.cfg.Static.Lookup(q.Name); ok && q.Type == TypeA && q.Class == ClassIN {
		rec := s.p.cfg.Static.AnswerRecord(q.Name, addr)

		return s.replyWith(req, q, RCodeNoError, []Record{rec}, nil, nil)
	}

	if e, ok := s.p.cache.Get(q); ok {
		if e.IsReady() {
			return s.replyWith(req, q, e.RCode, e.Answers, e.Authority, e.Additional)
		}

		s.p.cache.AddWaiter(e, req)

		return nil
	}

	if s.p.cfg.Static.IsLocalDomain(q.Name) {
		s.p.cache.PutReady(q, RCodeNameError, nil, nil, nil, time.Now().Add(negativeTTL))

		return s.replyWith(req, q, RCodeNameError, nil, nil, nil)
	}

	upstreamID, err := s.client.Forward(q)
	if err != nil {
		return errors.Annotate(err, "dns: server: forwarding %s: %w", q.Name)
	}
	s.p.cache.PutPending(q, upstreamID, req)

	return nil
}

// replyWith sends a direct answer built from cached or static data,
// mirroring the request id with QR=1, RA=1.
func (s *Server) replyWith(req IncomingRequest, q Question, rcode uint8, answers, authority, additional []Record) error {
	reply := &Message{
		Header: Header{
			ID:     req.ID,
			QR:     true,
			Opcode: OpQuery,
			RA:     true,
			RCode:  rcode,
		},
		Questions:  []Question{q},
		Answers:    answers,
		Authority:  authority,
		Additional: additional,
	}

	buf, err := Encode(reply)
	if err != nil {
		return errors.Annotate(err, "dns: server: encoding reply: %w")
	}

	return s.send(buf, req.SrcAddr, req.SrcPort)
}

// replyError sends a bare header-only reply carrying rcode, for requests
// rejected before a question is even considered.
func (s *Server) replyError(msg *Message, srcAddr netip.Addr, srcPort uint16, rcode uint8) error {
	reply := &Message{
		Header: Header{
			ID:     msg.ID,
			QR:     true,
			Opcode: msg.Opcode,
			RA:     true,
			RCode:  rcode,
		},
	}

	buf, err := Encode(reply)
	if err != nil {
		return errors.Annotate(err, "dns: server: encoding error reply: %w")
	}

	return s.send(buf, srcAddr, srcPort)
}
