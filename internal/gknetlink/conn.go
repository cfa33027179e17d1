// Package gknetlink is a thin convenience layer over
// github.com/mdlayher/netlink: it dials a given netlink family (ROUTE,
// NETFILTER) with the socket options the gateway always wants, and exposes
// a request/dump helper that gathers multi-part (NLM_F_DUMP) responses.
//
// Generic Netlink (and therefore nl80211) is built directly on top of
// github.com/mdlayher/genetlink in internal/genl instead of this package,
// matching how genetlink itself wraps a netlink.Conn.
package gknetlink

import (
	"fmt"

	"github.com/mdlayher/netlink"
)

// Conn wraps a *netlink.Conn dialed against a specific protocol family
// (e.g. unix.NETLINK_ROUTE, unix.NETLINK_NETFILTER).
type Conn struct {
	protocol int
	nl       *netlink.Conn
}

// Dial opens a netlink socket for protocol (one of the NETLINK_* constants
// from golang.org/x/sys/unix) and configures it the way every subsystem of
// this daemon needs: extended ACKs, strict attribute checking, and no
// silent ENOBUFS drops.
func Dial(protocol int) (c *Conn, err error) {
	conn, err := netlink.Dial(protocol, &netlink.Config{
		Strict: true,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing netlink protocol %d: %w", protocol, err)
	}

	for _, opt := range []netlink.ConnOption{
		netlink.ExtendedAcknowledge,
		netlink.GetStrictCheck,
	} {
		// Not every kernel build supports every option; a failure here is
		// informational, not fatal, matching the reference
		// implementation's best-effort setsockopt calls.
		_ = conn.SetOption(opt, true)
	}

	return &Conn{protocol: protocol, nl: conn}, nil
}

// Close closes the underlying socket.
func (c *Conn) Close() (err error) {
	return c.nl.Close()
}

// Raw returns the underlying *netlink.Conn for callers (such as
// internal/netfilter) that need to build protocol-specific messages with
// github.com/ti-mo/netfilter and hand them to mdlayher/netlink directly.
func (c *Conn) Raw() *netlink.Conn { return c.nl }

// Execute sends req and collects every response message, including the
// members of a multi-part (NLM_F_DUMP) reply, stopping at NLMSG_DONE.
func (c *Conn) Execute(req netlink.Message) (resp []netlink.Message, err error) {
	resp, err = c.nl.Execute(req)
	if err != nil {
		return nil, fmt.Errorf("netlink execute (type=%d): %w", req.Header.Type, err)
	}

	return resp, nil
}

// Send transmits req without waiting for a reply. Use this for messages
// that only elicit a response when NLM_F_ACK is set.
func (c *Conn) Send(req netlink.Message) (sent netlink.Message, err error) {
	sent, err = c.nl.Send(req)
	if err != nil {
		return netlink.Message{}, fmt.Errorf("netlink send (type=%d): %w", req.Header.Type, err)
	}

	return sent, nil
}

// Receive reads one batch of pending messages from the socket.
func (c *Conn) Receive() (msgs []netlink.Message, err error) {
	msgs, err = c.nl.Receive()
	if err != nil {
		return nil, fmt.Errorf("netlink receive: %w", err)
	}

	return msgs, nil
}
