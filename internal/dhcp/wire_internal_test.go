package dhcp

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	mac := []byte{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01}

	buf := Encode(Reply{
		Op:     OpBootReply,
		XID:    0x12345678,
		YIAddr: netip.MustParseAddr("192.168.1.2"),
		SIAddr: netip.MustParseAddr("192.168.1.1"),
		CHAddr: mac,
		HType:  1,
		Options: map[uint8][]byte{
			OptMessageType: {byte(Offer)},
			OptSubnetMask:  {255, 255, 255, 0},
		},
	})

	msg, err := Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, uint32(0x12345678), msg.XID)
	assert.Equal(t, netip.MustParseAddr("192.168.1.2"), msg.YIAddr)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), msg.SIAddr)
	assert.Equal(t, Offer, msg.MessageType())
	assert.Equal(t, []byte{255, 255, 255, 0}, msg.Options[OptSubnetMask])
	assert.Equal(t, mac, msg.ClientMAC())
}

func TestDecodeRejectsShortPacket(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	assert.Error(t, err)
}

func TestDecodeRejectsBadCookie(t *testing.T) {
	buf := Encode(Reply{Op: OpBootReply})
	buf[236] = 0 // stomp the magic cookie

	_, err := Decode(buf)
	assert.Error(t, err)
}

func TestOptionSizeMatchesWriteLength(t *testing.T) {
	opts := map[uint8][]byte{
		OptRouter:      {192, 168, 1, 1},
		OptDomainName:  []byte("lan"),
		OptMessageType: {byte(Discover)},
	}

	encoded := encodeOptions(opts)
	decoded, err := decodeOptions(append(encoded, OptEnd))
	require.NoError(t, err)

	for code, want := range opts {
		assert.Equal(t, want, decoded[code], "option %d", code)
	}
}

func TestClientIDPrefersOption61(t *testing.T) {
	m := &Message{
		HLen:   6,
		CHAddr: [chaddrLen]byte{0xaa, 0xbb, 0xcc, 0, 0, 1},
		Options: map[uint8][]byte{
			OptClientID: []byte("custom-id"),
		},
	}

	assert.Equal(t, "custom-id", m.ClientID())
}

func TestClientIDFallsBackToMAC(t *testing.T) {
	m := &Message{
		HLen:    6,
		CHAddr:  [chaddrLen]byte{0xaa, 0xbb, 0xcc, 0, 0, 1},
		Options: map[uint8][]byte{},
	}

	assert.Equal(t, "aabbcc000001", m.ClientID())
}
