// Package dhcp implements the BOOTP/DHCPv4 server: wire codec, lease table,
// and the UDP server itself. Grounded on original_source/src/dhcp.cc/.hh for
// the byte-exact wire layout and spec.md §4.6 for message handling and lease
// selection.
package dhcp

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Wire constants (RFC 2131/2132).
const (
	ServerPort = 67
	ClientPort = 68

	magicCookie = 0x63825363

	// headerLen is the fixed BOOTP header size, including the 4-byte magic
	// cookie but excluding any options: 1+1+1+1+4+2+2+4+4+4+4+16+64+128+4.
	headerLen = 240

	chaddrLen = 16
	snameLen  = 64
	fileLen   = 128
)

// Opcodes (RFC 951 op field).
const (
	OpBootRequest = 1
	OpBootReply   = 2
)

// MessageType is DHCP option 53's value (RFC 2132 §9.6).
type MessageType uint8

const (
	Discover MessageType = 1
	Offer    MessageType = 2
	Request  MessageType = 3
	Decline  MessageType = 4
	Ack      MessageType = 5
	Nak      MessageType = 6
	Release  MessageType = 7
	Inform   MessageType = 8
)

func (m MessageType) String() string {
	switch m {
	case Discover:
		return "DISCOVER"
	case Offer:
		return "OFFER"
	case Request:
		return "REQUEST"
	case Decline:
		return "DECLINE"
	case Ack:
		return "ACK"
	case Nak:
		return "NAK"
	case Release:
		return "RELEASE"
	case Inform:
		return "INFORM"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(m))
	}
}

// Option codes used by this server (RFC 2132).
const (
	OptPad             = 0
	OptSubnetMask      = 1
	OptRouter          = 3
	OptDNS             = 6
	OptHostName        = 12
	OptDomainName      = 15
	OptRequestedIP     = 50
	OptLeaseTime       = 51
	OptMessageType     = 53
	OptServerID        = 54
	OptParameterList   = 55
	OptClientID        = 61
	OptEnd             = 255
)

// Message is a decoded BOOTP/DHCP packet: the fixed header plus options
// parsed into a lookup map keyed by option code. Re-encoding never
// reconstructs the original option ordering; [Encode] always emits options
// in ascending code order.
type Message struct {
	Op     uint8
	HType  uint8
	HLen   uint8
	Hops   uint8
	XID    uint32
	Secs   uint16
	Flags  uint16
	CIAddr netip.Addr
	YIAddr netip.Addr
	SIAddr netip.Addr
	GIAddr netip.Addr
	CHAddr [chaddrLen]byte
	SName  [snameLen]byte
	File   [fileLen]byte

	Options map[uint8][]byte
}

// ClientMAC returns the first HLen bytes of CHAddr, the client's hardware
// address.
func (m *Message) ClientMAC() []byte {
	n := int(m.HLen)
	if n > chaddrLen {
		n = chaddrLen
	}

	return m.CHAddr[:n]
}

// ClientID returns the stable identity key used for sticky leases: the
// Client-Identifier option (61) if present, else the hardware address
// hex-encoded, matching spec.md §3's "client-id (string)" field.
func (m *Message) ClientID() string {
	if cid, ok := m.Options[OptClientID]; ok {
		return string(cid)
	}

	return fmt.Sprintf("%x", m.ClientMAC())
}

// MessageType returns option 53's value, or 0 if absent.
func (m *Message) MessageType() MessageType {
	if v, ok := m.Options[OptMessageType]; ok && len(v) == 1 {
		return MessageType(v[0])
	}

	return 0
}

// RequestedIP returns option 50's value, if present and 4 bytes long.
func (m *Message) RequestedIP() (ip netip.Addr, ok bool) {
	v, present := m.Options[OptRequestedIP]
	if !present || len(v) != 4 {
		return netip.Addr{}, false
	}

	return netip.AddrFrom4([4]byte(v)), true
}

// HostName returns option 12's value, if present.
func (m *Message) HostName() (name string, ok bool) {
	v, present := m.Options[OptHostName]

	return string(v), present
}

// Decode parses buf as a BOOTP/DHCP packet. Per spec.md §7, a malformed
// packet is a non-fatal error: the caller logs and drops it.
func Decode(buf []byte) (m *Message, err error) {
	if len(buf) < headerLen {
		return nil, fmt.Errorf("dhcp: packet too short: %d bytes", len(buf))
	}

	m = &Message{
		Op:    buf[0],
		HType: buf[1],
		HLen:  buf[2],
		Hops:  buf[3],
		XID:   binary.BigEndian.Uint32(buf[4:8]),
		Secs:  binary.BigEndian.Uint16(buf[8:10]),
		Flags: binary.BigEndian.Uint16(buf[10:12]),
	}

	m.CIAddr = addr4(buf[12:16])
	m.YIAddr = addr4(buf[16:20])
	m.SIAddr = addr4(buf[20:24])
	m.GIAddr = addr4(buf[24:28])
	copy(m.CHAddr[:], buf[28:28+chaddrLen])
	copy(m.SName[:], buf[28+chaddrLen:28+chaddrLen+snameLen])
	copy(m.File[:], buf[28+chaddrLen+snameLen:28+chaddrLen+snameLen+fileLen])

	cookieOff := 28 + chaddrLen + snameLen + fileLen
	if binary.BigEndian.Uint32(buf[cookieOff:cookieOff+4]) != magicCookie {
		return nil, fmt.Errorf("dhcp: bad magic cookie")
	}

	m.Options, err = decodeOptions(buf[cookieOff+4:])
	if err != nil {
		return nil, fmt.Errorf("dhcp: %w", err)
	}

	return m, nil
}

func addr4(b []byte) netip.Addr { return netip.AddrFrom4([4]byte(b)) }

// decodeOptions walks a sequence of {code, len, value} TLVs terminated by
// [OptEnd]. OptPad (a single zero byte, no length) is skipped.
func decodeOptions(buf []byte) (opts map[uint8][]byte, err error) {
	opts = make(map[uint8][]byte)

	for i := 0; i < len(buf); {
		code := buf[i]
		if code == OptEnd {
			break
		}
		if code == OptPad {
			i++
			continue
		}
		if i+1 >= len(buf) {
			return nil, fmt.Errorf("option %d: truncated length byte", code)
		}

		length := int(buf[i+1])
		start := i + 2
		if start+length > len(buf) {
			return nil, fmt.Errorf("option %d: length %d overruns packet", code, length)
		}

		opts[code] = append([]byte(nil), buf[start:start+length]...)
		i = start + length
	}

	return opts, nil
}

// Reply is the set of fields [Encode] needs to build a response packet,
// mirroring the request's transaction identity while substituting the
// server's own values.
type Reply struct {
	Op     uint8
	XID    uint32
	Flags  uint16
	CIAddr netip.Addr
	YIAddr netip.Addr
	SIAddr netip.Addr
	GIAddr netip.Addr
	CHAddr []byte
	HType  uint8

	// Options is emitted in ascending code order, terminated by OptEnd.
	Options map[uint8][]byte
}

// Encode serializes r as a full 240-byte BOOTP header plus options.
func Encode(r Reply) []byte {
	buf := make([]byte, headerLen)
	buf[0] = r.Op
	buf[1] = r.HType
	buf[2] = byte(len(r.CHAddr))
	buf[3] = 0 // hops

	binary.BigEndian.PutUint32(buf[4:8], r.XID)
	binary.BigEndian.PutUint16(buf[8:10], 0) // secs
	binary.BigEndian.PutUint16(buf[10:12], r.Flags)

	putAddr4(buf[12:16], r.CIAddr)
	putAddr4(buf[16:20], r.YIAddr)
	putAddr4(buf[20:24], r.SIAddr)
	putAddr4(buf[24:28], r.GIAddr)
	copy(buf[28:28+chaddrLen], r.CHAddr)

	cookieOff := 28 + chaddrLen + snameLen + fileLen
	binary.BigEndian.PutUint32(buf[cookieOff:cookieOff+4], magicCookie)

	buf = append(buf, encodeOptions(r.Options)...)
	buf = append(buf, OptEnd)

	return buf
}

func putAddr4(dst []byte, a netip.Addr) {
	if !a.IsValid() {
		return
	}
	b := a.As4()
	copy(dst, b[:])
}

// encodeOptions renders opts in ascending code order. size() for every
// option equals len(value); write_to appends exactly code, length, value —
// there is no separate size/write split to drift apart in this codec.
func encodeOptions(opts map[uint8][]byte) []byte {
	codes := make([]uint8, 0, len(opts))
	for c := range opts {
		codes = append(codes, c)
	}
	for i := 1; i < len(codes); i++ {
		for j := i; j > 0 && codes[j-1] > codes[j]; j-- {
			codes[j-1], codes[j] = codes[j], codes[j-1]
		}
	}

	var buf []byte
	for _, c := range codes {
		v := opts[c]
		buf = append(buf, c, byte(len(v)))
		buf = append(buf, v...)
	}

	return buf
}
