package netfilter

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/mafik/gatekeeperd/internal/gknetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// Conn is a netfilter-bound netlink connection, shared by the nftables
// transaction builder and the nfqueue worker.
type Conn struct {
	nl  *gknetlink.Conn
	log *slog.Logger
}

// Dial opens a NETLINK_NETFILTER socket. log may be nil, in which case
// [slog.Default] is used.
func Dial(log *slog.Logger) (c *Conn, err error) {
	nl, err := gknetlink.Dial(unix.NETLINK_NETFILTER)
	if err != nil {
		return nil, fmt.Errorf("netfilter: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Conn{nl: nl, log: log}, nil
}

// Close closes the underlying socket.
func (c *Conn) Close() (err error) { return c.nl.Close() }

// Raw exposes the underlying netlink connection.
func (c *Conn) Raw() *gknetlink.Conn { return c.nl }

func nfgenmsg(family Family, resID uint16) []byte {
	b := make([]byte, 4)
	b[0] = byte(family)
	b[1] = 0 // NFNETLINK_V0
	binary.BigEndian.PutUint16(b[2:], resID)

	return b
}

// nlAttrTLV hand-builds one nested-attribute-tree TLV blob (type + length +
// value, 4-byte aligned). It exists alongside github.com/ti-mo/netfilter's
// flat Attribute list because that type has no notion of nested attribute
// trees (NFTA_CHAIN_HOOK, the verdict/config payloads): nlAttrTLV builds the
// nested blob, which is then handed to ti-mo/netfilter as one Attribute's
// opaque Data.
func nlAttrTLV(typ uint16, data []byte) []byte {
	hdrLen := 4
	total := hdrLen + len(data)
	aligned := (total + 3) &^ 3

	b := make([]byte, aligned)
	binary.NativeEndian.PutUint16(b[0:2], uint16(total))
	binary.NativeEndian.PutUint16(b[2:4], typ)
	copy(b[4:], data)

	return b
}

func rawMessage(msgType uint16, flags netlink.HeaderFlags, body []byte) netlink.Message {
	return netlink.Message{
		Header: netlink.Header{
			Type:  netlink.HeaderType(msgType),
			Flags: flags,
		},
		Data: body,
	}
}
