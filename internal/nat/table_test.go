package nat_test

import (
	"net/netip"
	"testing"

	"github.com/mafik/gatekeeperd/internal/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtoIndex(t *testing.T) {
	t.Parallel()

	idx, ok := nat.ProtoIndex(nat.ProtoTCP)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = nat.ProtoIndex(nat.ProtoUDP)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = nat.ProtoIndex(1) // ICMP
	assert.False(t, ok)
}

func TestTable_LookupEmpty(t *testing.T) {
	t.Parallel()

	table := nat.New()

	_, ok := table.Lookup(nat.ProtoTCP, 8080)
	assert.False(t, ok)
}

func TestTable_LearnAndLookup(t *testing.T) {
	t.Parallel()

	table := nat.New()
	host := netip.MustParseAddr("192.168.1.42")

	prev, collided := table.Learn(nat.ProtoTCP, 8080, host)
	assert.False(t, prev.IsValid())
	assert.False(t, collided)

	got, ok := table.Lookup(nat.ProtoTCP, 8080)
	require.True(t, ok)
	assert.Equal(t, host, got)

	// Different protocol, same port: independent slot.
	_, ok = table.Lookup(nat.ProtoUDP, 8080)
	assert.False(t, ok)
}

func TestTable_LearnCollision(t *testing.T) {
	t.Parallel()

	table := nat.New()
	first := netip.MustParseAddr("192.168.1.10")
	second := netip.MustParseAddr("192.168.1.20")

	_, collided := table.Learn(nat.ProtoUDP, 53, first)
	assert.False(t, collided)

	prev, collided := table.Learn(nat.ProtoUDP, 53, second)
	assert.True(t, collided)
	assert.Equal(t, first, prev)

	got, ok := table.Lookup(nat.ProtoUDP, 53)
	require.True(t, ok)
	assert.Equal(t, second, got)
}

func TestTable_LearnSameHostNoCollision(t *testing.T) {
	t.Parallel()

	table := nat.New()
	host := netip.MustParseAddr("192.168.1.10")

	table.Learn(nat.ProtoTCP, 443, host)
	_, collided := table.Learn(nat.ProtoTCP, 443, host)
	assert.False(t, collided)
}
