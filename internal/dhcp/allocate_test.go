package dhcp_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/mafik/gatekeeperd/internal/dhcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNetwork = netip.MustParsePrefix("192.168.1.0/24")
var testServerIP = netip.MustParseAddr("192.168.1.1")

// TestFirstContact reproduces spec.md §8 scenario 1: the server's first
// ever offer to a fresh client picks 192.168.1.2, the first free address
// after the network and server addresses.
func TestFirstContact(t *testing.T) {
	table := dhcp.NewLeaseTable()

	ip, err := dhcp.Allocate(table, testNetwork, testServerIP, "aabbcc000001", netip.Addr{}, false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.168.1.2"), ip)
}

func TestAllocateStickyLease(t *testing.T) {
	table := dhcp.NewLeaseTable()
	table.Put(&dhcp.Lease{ClientID: "client-a", IP: netip.MustParseAddr("192.168.1.50")}, time.Hour)

	ip, err := dhcp.Allocate(table, testNetwork, testServerIP, "client-a", netip.Addr{}, false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.168.1.50"), ip)
}

func TestAllocateRequestedIPHonoredWhenFree(t *testing.T) {
	table := dhcp.NewLeaseTable()
	requested := netip.MustParseAddr("192.168.1.77")

	ip, err := dhcp.Allocate(table, testNetwork, testServerIP, "client-b", requested, true, time.Now())
	require.NoError(t, err)
	assert.Equal(t, requested, ip)
}

func TestAllocateRequestedIPRejectedWhenTaken(t *testing.T) {
	table := dhcp.NewLeaseTable()
	requested := netip.MustParseAddr("192.168.1.77")
	table.Put(&dhcp.Lease{ClientID: "other", IP: requested}, time.Hour)

	ip, err := dhcp.Allocate(table, testNetwork, testServerIP, "client-b", requested, true, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, requested, ip)
}

func TestAllocateRejectsServerAndNetworkAddresses(t *testing.T) {
	table := dhcp.NewLeaseTable()

	for _, bad := range []netip.Addr{
		netip.MustParseAddr("192.168.1.0"),
		netip.MustParseAddr("192.168.1.255"),
		testServerIP,
	} {
		ip, err := dhcp.Allocate(table, testNetwork, testServerIP, "client-c", bad, true, time.Now())
		require.NoError(t, err)
		assert.NotEqual(t, bad, ip)
	}
}

func TestAllocateEvictsMostExpiredWhenExhausted(t *testing.T) {
	table := dhcp.NewLeaseTable()
	small := netip.MustParsePrefix("192.168.2.0/30") // usable hosts: .1, .2

	now := time.Now()
	// Both leases are already expired (negative ttl), but ExpireNow is never
	// called: Allocate's fallback must find them via MostExpired on its own.
	table.Put(&dhcp.Lease{ClientID: "old", IP: netip.MustParseAddr("192.168.2.1")}, -time.Hour)
	table.Put(&dhcp.Lease{ClientID: "new", IP: netip.MustParseAddr("192.168.2.2")}, -time.Minute)

	ip, err := dhcp.Allocate(table, small, netip.MustParseAddr("192.168.2.1"), "client-d", netip.Addr{}, false, now)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.168.2.2"), ip)
}
