package dns

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePendingThenReady(t *testing.T) {
	c := NewCache()
	q := Question{Name: "example.com", Type: TypeA, Class: ClassIN}
	waiter := IncomingRequest{ID: 1}

	e := c.PutPending(q, 0xABCD, waiter)
	assert.True(t, e.IsPending())
	assert.False(t, e.IsReady())

	got, ok := c.Get(q)
	require.True(t, ok)
	assert.True(t, got.IsPending())
	assert.Equal(t, uint16(0xABCD), got.UpstreamID)

	second := IncomingRequest{ID: 2}
	c.AddWaiter(got, second)
	assert.Len(t, got.Waiters, 2)

	ready := c.PutReady(q, RCodeNoError, []Record{{Question: q, TTL: 300}}, nil, nil, time.Now().Add(300*time.Second))
	assert.True(t, ready.IsReady())
	assert.False(t, ready.IsPending())

	got, ok = c.Get(q)
	require.True(t, ok)
	assert.True(t, got.IsReady())
}

func TestCacheEntryNeverBothPendingAndReady(t *testing.T) {
	c := NewCache()
	q := Question{Name: "example.com", Type: TypeA, Class: ClassIN}

	e := c.PutPending(q, 1, IncomingRequest{ID: 1})
	assert.NotEqual(t, e.IsPending(), e.IsReady())

	e = c.PutReady(q, RCodeNoError, nil, nil, nil, time.Time{})
	assert.NotEqual(t, e.IsPending(), e.IsReady())
}

func TestReadyDeadlineNameErrorIsNegativeTTL(t *testing.T) {
	now := time.Now()
	d := ReadyDeadline(now, RCodeNameError, 0, false)
	assert.WithinDuration(t, now.Add(negativeTTL), d, time.Millisecond)
}

func TestReadyDeadlineCapsAtMaxPositiveTTL(t *testing.T) {
	now := time.Now()
	d := ReadyDeadline(now, RCodeNoError, 1<<31, true)
	assert.WithinDuration(t, now.Add(maxPositiveTTL), d, time.Millisecond)
}

func TestReadyDeadlineUsesMinTTL(t *testing.T) {
	now := time.Now()
	d := ReadyDeadline(now, RCodeNoError, 42, true)
	assert.WithinDuration(t, now.Add(42*time.Second), d, time.Millisecond)
}

func TestMinTTLEmpty(t *testing.T) {
	_, ok := MinTTL(nil)
	assert.False(t, ok)
}

func TestMinTTLPicksSmallest(t *testing.T) {
	recs := []Record{{TTL: 300}, {TTL: 60}, {TTL: 120}}
	min, ok := MinTTL(recs)
	require.True(t, ok)
	assert.Equal(t, uint32(60), min)
}

func TestStaticTableLocalDomainMiss(t *testing.T) {
	st := NewStaticTable(nil, "router", "lan", netip.MustParseAddr("192.168.1.1"))

	addr, ok := st.Lookup("router.lan")
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), addr)

	assert.True(t, st.IsLocalDomain("unknown-host.lan"))
	assert.False(t, st.IsLocalDomain("example.com"))

	_, ok = st.Lookup("unknown-host.lan")
	assert.False(t, ok)
}
