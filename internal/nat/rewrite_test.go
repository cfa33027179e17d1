package nat_test

import (
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mafik/gatekeeperd/internal/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = nat.Config{
	LANNetwork: netip.MustParsePrefix("192.168.1.0/24"),
	LANIP:      netip.MustParseAddr("192.168.1.1"),
	WANIP:      netip.MustParseAddr("203.0.113.7"),
}

func buildUDP(t *testing.T, src, dst string, srcPort, dstPort uint16) []byte {
	t.Helper()

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    netip.MustParseAddr(src).AsSlice(),
		DstIP:    netip.MustParseAddr(dst).AsSlice(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	payload := gopacket.Payload([]byte("hello"))
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}, ip, udp, payload))

	return buf.Bytes()
}

func decodeIPv4(t *testing.T, data []byte) (*layers.IPv4, *layers.UDP) {
	t.Helper()

	pkt := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.NoCopy)
	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)

	return ip, udp
}

func TestClassify_LANToLANNotWANIsUninteresting(t *testing.T) {
	t.Parallel()

	table := nat.New()
	data := buildUDP(t, "192.168.1.50", "192.168.1.60", 1234, 53)

	out, warn := nat.Classify(table, testConfig, data)
	require.NoError(t, warn)
	assert.True(t, out.Accept)
	assert.Nil(t, out.Rewritten)
}

func TestClassify_OutboundFromLANRewritesSource(t *testing.T) {
	t.Parallel()

	table := nat.New()
	data := buildUDP(t, "192.168.1.50", "8.8.8.8", 40000, 53)

	out, warn := nat.Classify(table, testConfig, data)
	require.NoError(t, warn)
	require.NotNil(t, out.Rewritten)

	ip, udp := decodeIPv4(t, out.Rewritten)
	assert.Equal(t, testConfig.WANIP.AsSlice(), []byte(ip.SrcIP))
	assert.Equal(t, layers.UDPPort(40000), udp.SrcPort)

	host, ok := table.Lookup(nat.ProtoUDP, 40000)
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("192.168.1.50"), host)
}

func TestClassify_InboundToWANIPRewritesDestination(t *testing.T) {
	t.Parallel()

	table := nat.New()
	table.Learn(nat.ProtoUDP, 40000, netip.MustParseAddr("192.168.1.50"))

	data := buildUDP(t, "8.8.8.8", "203.0.113.7", 53, 40000)

	out, warn := nat.Classify(table, testConfig, data)
	require.NoError(t, warn)
	require.NotNil(t, out.Rewritten)

	ip, _ := decodeIPv4(t, out.Rewritten)
	assert.Equal(t, netip.MustParseAddr("192.168.1.50").AsSlice(), []byte(ip.DstIP))
}

func TestClassify_InboundToWANIPWithoutMappingPassesThrough(t *testing.T) {
	t.Parallel()

	table := nat.New()
	data := buildUDP(t, "8.8.8.8", "203.0.113.7", 53, 40000)

	out, warn := nat.Classify(table, testConfig, data)
	require.NoError(t, warn)
	assert.Nil(t, out.Rewritten)
	assert.True(t, out.Accept)
}

func TestClassify_CollisionReturnsWarning(t *testing.T) {
	t.Parallel()

	table := nat.New()
	table.Learn(nat.ProtoUDP, 40000, netip.MustParseAddr("192.168.1.51"))

	data := buildUDP(t, "192.168.1.50", "8.8.8.8", 40000, 53)

	_, warn := nat.Classify(table, testConfig, data)
	assert.Error(t, warn)
}
