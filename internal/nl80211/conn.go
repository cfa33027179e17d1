package nl80211

import (
	"fmt"

	"github.com/mafik/gatekeeperd/internal/genl"
	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
)

// Conn is an nl80211-bound Generic Netlink connection.
type Conn struct {
	genl *genl.Conn
}

// Dial resolves the "nl80211" family and returns a ready Conn.
func Dial() (c *Conn, err error) {
	g, err := genl.Dial("nl80211")
	if err != nil {
		return nil, fmt.Errorf("nl80211: %w", err)
	}

	return &Conn{genl: g}, nil
}

// Close releases the underlying socket.
func (c *Conn) Close() (err error) { return c.genl.Close() }

// Fd exposes the socket for registration with internal/reactor.
func (c *Conn) Fd() int { return c.genl.Fd() }

// JoinGroup subscribes the connection to a multicast group by name (see
// [MulticastGroup]).
func (c *Conn) JoinGroup(name string) (err error) { return c.genl.JoinGroup(name) }

// Receive reads one batch of pending multicast notifications.
func (c *Conn) Receive() (msgs []genetlink.Message, err error) { return c.genl.Receive() }

func (c *Conn) dump(cmd uint8, attrs []byte) (payloads [][]byte, err error) {
	gmsgs, err := c.genl.Execute(cmd, netlink.Dump, attrs)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(gmsgs))
	for _, m := range gmsgs {
		out = append(out, m.Data)
	}

	return out, nil
}

func (c *Conn) do(cmd uint8, attrs []byte) (err error) {
	_, err = c.genl.Execute(cmd, 0, attrs)

	return err
}

func encodeIfindex(ifindex int) (b []byte, err error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(attrIfindex, uint32(ifindex))

	return ae.Encode()
}
