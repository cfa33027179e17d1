package expirable_test

import (
	"testing"
	"time"

	"github.com/mafik/gatekeeperd/internal/expirable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ExpireNow(t *testing.T) {
	r := expirable.New[string]()
	now := time.Now()

	r.AddWithDeadline("a", now.Add(-time.Second))
	r.AddWithDeadline("b", now.Add(time.Hour))
	r.Add("c") // no deadline; must survive ExpireNow forever

	var expired []string
	r.ExpireNow(now, func(key string) { expired = append(expired, key) })

	assert.Equal(t, []string{"a"}, expired)
	assert.Equal(t, 2, r.Len())

	_, ok := r.Get("a")
	assert.False(t, ok)

	_, ok = r.Get("b")
	assert.True(t, ok)

	_, ok = r.Get("c")
	assert.True(t, ok)
}

func TestRegistry_UpdateExpiration(t *testing.T) {
	r := expirable.New[int]()
	now := time.Now()

	r.AddWithDeadline(1, now.Add(time.Minute))
	r.UpdateExpiration(1, now.Add(-time.Minute))

	var expired []int
	r.ExpireNow(now, func(key int) { expired = append(expired, key) })
	assert.Equal(t, []int{1}, expired)
}

func TestRegistry_Delete(t *testing.T) {
	r := expirable.New[string]()
	now := time.Now()

	e := r.AddWithDeadline("a", now.Add(time.Minute))
	require.NotNil(t, e)
	r.Delete("a")

	d, ok := r.NextDeadline()
	assert.False(t, ok)
	assert.True(t, d.IsZero())

	assert.Equal(t, 0, r.Len())
}

func TestRegistry_NextDeadlineOrdering(t *testing.T) {
	r := expirable.New[int]()
	now := time.Now()

	r.AddWithDeadline(3, now.Add(3*time.Second))
	r.AddWithDeadline(1, now.Add(1*time.Second))
	r.AddWithDeadline(2, now.Add(2*time.Second))

	d, ok := r.NextDeadline()
	require.True(t, ok)
	assert.WithinDuration(t, now.Add(time.Second), d, time.Millisecond)
}
