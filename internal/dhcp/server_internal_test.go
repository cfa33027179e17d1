package dhcp

import (
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var svrNetwork = netip.MustParsePrefix("192.168.1.0/24")
var svrIP = netip.MustParseAddr("192.168.1.1")
var clientMAC = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01}

const clientXID = uint32(0x12345678)

// newTestServer builds a Server with no real socket: sendTo records every
// reply instead of calling unix.Sendto, so [Server.handle] can be driven
// end to end per spec.md §8 scenario 1 without a kernel socket.
func newTestServer(t *testing.T) (s *Server, replies *[]Reply) {
	t.Helper()

	replies = new([]Reply)
	s = &Server{
		cfg: Config{
			LANIface:   "lan0",
			Network:    svrNetwork,
			ServerIP:   svrIP,
			DomainName: "lan",
			OfferLease: 10 * time.Second,
			AckLease:   60 * time.Second,
		},
		fd:     -1,
		leases: NewLeaseTable(),
		log:    slog.New(slog.DiscardHandler),
	}
	s.sendTo = func(buf []byte, addr [4]byte, port int) error {
		reply, err := Decode(buf)
		require.NoError(t, err)
		*replies = append(*replies, Reply{
			Op: reply.Op, XID: reply.XID, CIAddr: reply.CIAddr, YIAddr: reply.YIAddr,
			SIAddr: reply.SIAddr, GIAddr: reply.GIAddr, CHAddr: reply.ClientMAC(),
			HType: reply.HType, Options: reply.Options,
		})

		return nil
	}

	return s, replies
}

// encodeRequest builds a raw DHCP request packet reusing [Encode]'s BOOTP
// layout (identical between request and reply), then [Decode]s it back into
// a [Message], exercising the same wire codec the real socket path uses.
func encodeRequest(t *testing.T, siaddr, ciaddr netip.Addr, opts map[uint8][]byte) *Message {
	t.Helper()

	buf := Encode(Reply{
		Op:     OpBootRequest,
		XID:    clientXID,
		CIAddr: ciaddr,
		SIAddr: siaddr,
		CHAddr: clientMAC,
		HType:  1,
		Options: opts,
	})

	msg, err := Decode(buf)
	require.NoError(t, err)

	return msg
}

func TestServerHandleDiscoverOffer(t *testing.T) {
	s, replies := newTestServer(t)

	msg := encodeRequest(t, netip.Addr{}, netip.Addr{}, map[uint8][]byte{
		OptMessageType: {byte(Discover)},
	})

	err := s.handle(msg, netip.IPv4Unspecified())
	require.NoError(t, err)
	require.Len(t, *replies, 1)

	reply := (*replies)[0]
	assert.Equal(t, uint8(OpBootReply), reply.Op)
	assert.Equal(t, clientXID, reply.XID)
	assert.Equal(t, []byte{byte(Offer)}, reply.Options[OptMessageType])
	assert.Equal(t, net.CIDRMask(24, 32), net.IPMask(reply.Options[OptSubnetMask]))
	assert.Equal(t, svrIP.AsSlice(), reply.Options[OptRouter])
	assert.Equal(t, svrIP.AsSlice(), reply.Options[OptDNS])
	assert.Equal(t, be32(10), reply.Options[OptLeaseTime])

	lease, ok := s.leases.Get(netip.MustParseAddr("192.168.1.2"))
	require.True(t, ok)
	assert.Equal(t, "aabbcc000001", lease.ClientID)
}

// TestServerHandleRequestAck reproduces spec.md §8 scenario 1 end to end: a
// REQUEST with ciaddr 0.0.0.0 for the offered address installs an ARP entry
// before replying with ACK and a 60 s lease.
func TestServerHandleRequestAck(t *testing.T) {
	s, replies := newTestServer(t)

	requestedIP := netip.MustParseAddr("192.168.1.2")

	var arpIface string
	var arpIP netip.Addr
	var arpMAC net.HardwareAddr
	s.cfg.SetARP = func(iface string, ip netip.Addr, mac net.HardwareAddr) error {
		arpIface, arpIP, arpMAC = iface, ip, mac

		return nil
	}

	msg := encodeRequest(t, netip.Addr{}, netip.Addr{}, map[uint8][]byte{
		OptMessageType: {byte(Request)},
		OptRequestedIP: requestedIP.AsSlice(),
	})

	err := s.handle(msg, netip.IPv4Unspecified())
	require.NoError(t, err)
	require.Len(t, *replies, 1)

	reply := (*replies)[0]
	assert.Equal(t, []byte{byte(Ack)}, reply.Options[OptMessageType])
	assert.Equal(t, requestedIP, reply.YIAddr)
	assert.Equal(t, be32(60), reply.Options[OptLeaseTime])

	assert.Equal(t, "lan0", arpIface)
	assert.Equal(t, requestedIP, arpIP)
	assert.Equal(t, net.HardwareAddr(clientMAC), arpMAC)

	lease, ok := s.leases.Get(requestedIP)
	require.True(t, ok)
	assert.Equal(t, "aabbcc000001", lease.ClientID)
}

func TestServerHandleRequestMismatchNak(t *testing.T) {
	s, replies := newTestServer(t)

	msg := encodeRequest(t, netip.Addr{}, netip.Addr{}, map[uint8][]byte{
		OptMessageType: {byte(Request)},
		OptRequestedIP: netip.MustParseAddr("192.168.1.250").AsSlice(),
	})
	// Someone else already holds .250.
	s.leases.Put(&Lease{ClientID: "other", IP: netip.MustParseAddr("192.168.1.250")}, time.Hour)

	err := s.handle(msg, netip.IPv4Unspecified())
	require.NoError(t, err)
	require.Len(t, *replies, 1)
	assert.Equal(t, []byte{byte(Nak)}, (*replies)[0].Options[OptMessageType])
}

// TestServerHandleNonRelayedSIAddrZero is a regression test: every normal,
// non-relayed client packet carries siaddr 0.0.0.0 on the wire, which must
// not be confused with the zero-value netip.Addr{} and must not be dropped.
func TestServerHandleNonRelayedSIAddrZero(t *testing.T) {
	s, replies := newTestServer(t)

	msg := encodeRequest(t, netip.Addr{}, netip.Addr{}, map[uint8][]byte{
		OptMessageType: {byte(Discover)},
	})
	require.True(t, msg.SIAddr.IsValid())
	require.True(t, msg.SIAddr.IsUnspecified())

	err := s.handle(msg, netip.IPv4Unspecified())
	require.NoError(t, err)
	assert.Len(t, *replies, 1, "a siaddr=0.0.0.0 packet must be handled, not dropped")
}

// TestServerHandleDropsRelayedPacket is the complementary case: a packet
// whose siaddr names some other server must be silently dropped.
func TestServerHandleDropsRelayedPacket(t *testing.T) {
	s, replies := newTestServer(t)

	msg := encodeRequest(t, netip.MustParseAddr("10.0.0.9"), netip.Addr{}, map[uint8][]byte{
		OptMessageType: {byte(Discover)},
	})

	err := s.handle(msg, netip.IPv4Unspecified())
	require.NoError(t, err)
	assert.Empty(t, *replies)
}
