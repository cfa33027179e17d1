// Package genl resolves a Generic Netlink family by name and provides the
// dump/execute/multicast-join primitives internal/nl80211 is built on, atop
// github.com/mdlayher/genetlink.
package genl

import (
	"fmt"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
)

// Family describes a resolved generic netlink family: its numeric id,
// protocol version, and available multicast groups, mirroring the
// CTRL_CMD_GETFAMILY response the reference implementation parses in
// maf::genl (original_source/src/genetlink.cc).
type Family struct {
	ID      uint16
	Version uint8
	Groups  map[string]uint32
}

// Conn is a Generic Netlink connection bound to one resolved family.
type Conn struct {
	raw    *genetlink.Conn
	Family Family
}

// Dial opens a generic netlink socket and resolves familyName (e.g.
// "nl80211").
func Dial(familyName string) (c *Conn, err error) {
	raw, err := genetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("dialing generic netlink: %w", err)
	}

	f, err := raw.GetFamily(familyName)
	if err != nil {
		_ = raw.Close()

		return nil, fmt.Errorf("resolving family %q: %w", familyName, err)
	}

	groups := make(map[string]uint32, len(f.Groups))
	for _, g := range f.Groups {
		groups[g.Name] = g.ID
	}

	return &Conn{
		raw: raw,
		Family: Family{
			ID:      f.ID,
			Version: f.Version,
			Groups:  groups,
		},
	}, nil
}

// Close closes the underlying socket.
func (c *Conn) Close() (err error) {
	return c.raw.Close()
}

// JoinGroup subscribes the socket to a multicast group by name (e.g.
// "mlme" for nl80211 station/association events).
func (c *Conn) JoinGroup(name string) (err error) {
	id, ok := c.Family.Groups[name]
	if !ok {
		return fmt.Errorf("unknown multicast group %q", name)
	}

	if err = c.raw.JoinGroup(id); err != nil {
		return fmt.Errorf("joining group %q: %w", name, err)
	}

	return nil
}

// Execute sends a generic netlink command with the given command id and
// attribute payload, returning every reply message (gathering dump parts).
func (c *Conn) Execute(
	cmd uint8,
	flags netlink.HeaderFlags,
	attrs []byte,
) (msgs []genetlink.Message, err error) {
	req := genetlink.Message{
		Header: genetlink.Header{
			Command: cmd,
			Version: c.Family.Version,
		},
		Data: attrs,
	}

	msgs, err = c.raw.Execute(req, c.Family.ID, netlink.Request|flags)
	if err != nil {
		return nil, fmt.Errorf("executing command %d on family %d: %w", cmd, c.Family.ID, err)
	}

	return msgs, nil
}

// Receive reads one batch of asynchronous multicast notifications (e.g.
// NEW_STATION events delivered after [Conn.JoinGroup]).
func (c *Conn) Receive() (msgs []genetlink.Message, err error) {
	msgs, err = c.raw.Receive()
	if err != nil {
		return nil, fmt.Errorf("receiving generic netlink message: %w", err)
	}

	return msgs, nil
}

// Fd returns the underlying socket file descriptor, so callers can register
// the connection with internal/reactor.
func (c *Conn) Fd() int {
	return int(c.raw.Conn().Fd())
}
