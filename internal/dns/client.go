package dns

import (
	"fmt"
	"net/netip"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/sys/unix"
)

// ClientPort is the privileged source port spec.md §4.7 requires for the
// WAN-facing resolver socket.
const ClientPort = 338

// UpstreamPort is the well-known port every upstream resolver listens on.
const UpstreamPort = 53

// Client is the WAN-facing UDP socket that forwards cache misses to one of
// the configured upstream resolvers and folds their replies back into the
// shared [Proxy] cache.
type Client struct {
	p  *Proxy
	fd int
}

// ListenClient opens the UDP/338 socket bound to 0.0.0.0, matching
// spec.md §4.7's SO_REUSEADDR|SO_REUSEPORT requirement (multiple processes
// may legitimately share the privileged source port across restarts).
func ListenClient(p *Proxy) (c *Client, err error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("dns: client: socket: %w", err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)

		return nil, fmt.Errorf("dns: client: SO_REUSEADDR: %w", err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)

		return nil, fmt.Errorf("dns: client: SO_REUSEPORT: %w", err)
	}

	if err = unix.Bind(fd, &unix.SockaddrInet4{Port: ClientPort}); err != nil {
		unix.Close(fd)

		return nil, fmt.Errorf("dns: client: bind :%d: %w", ClientPort, err)
	}

	return &Client{p: p, fd: fd}, nil
}

// Fd implements internal/reactor.Listener.
func (c *Client) Fd() int { return c.fd }

// Name implements internal/reactor.Listener.
func (c *Client) Name() string { return "dns-client" }

// WantWrite implements internal/reactor.Listener; forwarded queries are
// sent synchronously from the server's OnRead via [Client.Forward].
func (c *Client) WantWrite() bool { return false }

// OnWrite implements internal/reactor.Listener.
func (c *Client) OnWrite() error { return nil }

// Close releases the socket.
func (c *Client) Close() (err error) { return unix.Close(c.fd) }

// Forward sends a single-question query for q, with RD=1, to the next
// upstream resolver, returning the id it used so the caller can create a
// Pending cache entry.
func (c *Client) Forward(q Question) (id uint16, err error) {
	upstream, ok := c.p.nextUpstream()
	if !ok {
		return 0, errors.Error("dns: no upstream resolvers configured")
	}

	id = c.p.allocID()

	buf, err := Encode(&Message{
		Header:    Header{ID: id, Opcode: OpQuery, RD: true},
		Questions: []Question{q},
	})
	if err != nil {
		return 0, errors.Annotate(err, "dns: client: encoding query: %w")
	}

	sa := &unix.SockaddrInet4{Port: UpstreamPort, Addr: upstream.As4()}
	if err = unix.Sendto(c.fd, buf, 0, sa); err != nil {
		return 0, errors.Annotate(err, "dns: client: sendto upstream %s: %w", upstream)
	}

	return id, nil
}

// OnRead drains every pending reply datagram, per spec.md §5's "loop until
// EAGAIN" rule, validating and folding each into the cache.
func (c *Client) OnRead() (err error) {
	buf := make([]byte, 1500)

	for {
		n, from, recvErr := unix.Recvfrom(c.fd, buf, 0)
		if recvErr != nil {
			if errors.Is(recvErr, syscall.EAGAIN) || errors.Is(recvErr, syscall.EWOULDBLOCK) {
				return nil
			}

			return errors.Annotate(recvErr, "dns: client: recvfrom: %w")
		}

		sa4, ok := from.(*unix.SockaddrInet4)
		if !ok || sa4.Port != UpstreamPort {
			continue
		}
		srcIP := netip.AddrFrom4(sa4.Addr)
		if !c.isKnownUpstream(srcIP) {
			continue
		}

		msg, decodeErr := Decode(buf[:n])
		if decodeErr != nil {
			c.p.log.Warn("dropping malformed dns reply", "error", decodeErr, "from", srcIP)
			continue
		}

		c.handleReply(msg)
	}
}

// isKnownUpstream reports whether addr is one of /etc/resolv.conf's
// entries, per spec.md §4.7's reply-source validation.
func (c *Client) isKnownUpstream(addr netip.Addr) bool {
	for _, u := range c.p.cfg.Upstreams {
		if u == addr {
			return true
		}
	}

	return false
}

// handleReply matches msg against a Pending cache entry by question and
// id, discarding it otherwise (spec.md §4.7 "discard replies for unknown
// questions or with mismatched ids").
func (c *Client) handleReply(msg *Message) {
	if len(msg.Questions) != 1 {
		return
	}
	q := msg.Questions[0]

	e, ok := c.p.cache.Get(q)
	if !ok || !e.IsPending() || e.UpstreamID != msg.ID {
		return
	}

	minTTL, hasAnswers := MinTTL(msg.Answers)
	deadline := ReadyDeadline(time.Now(), msg.RCode, minTTL, hasAnswers)

	waiters := e.Waiters
	c.p.cache.PutReady(q, msg.RCode, msg.Answers, msg.Authority, msg.Additional, deadline)

	for _, waiter := range waiters {
		if sendErr := c.replyToWaiter(waiter, msg); sendErr != nil {
			c.p.log.Warn("dns: replying to waiter failed", "error", sendErr, "to", waiter.SrcAddr)
		}
	}
}

func (c *Client) replyToWaiter(req IncomingRequest, upstream *Message) error {
	if c.p.serverSend == nil {
		return errors.Error("dns: no server socket bound to relay reply")
	}

	reply := &Message{
		Header: Header{
			ID:     req.ID,
			QR:     true,
			Opcode: OpQuery,
			RA:     true,
			RCode:  upstream.RCode,
		},
		Questions:  upstream.Questions,
		Answers:    upstream.Answers,
		Authority:  upstream.Authority,
		Additional: upstream.Additional,
	}

	buf, err := Encode(reply)
	if err != nil {
		return errors.Annotate(err, "dns: client: encoding waiter reply: %w")
	}

	return c.p.serverSend(buf, req.SrcAddr, req.SrcPort)
}
