package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Timer is a timerfd(2)-backed [Listener] that invokes a callback on a
// fixed period. Every cache/expirable subsystem in this daemon (DNS cache,
// DHCP leases, Wi-Fi handshakes) needs a periodic sweep; rather than one
// timerfd per subsystem, the orchestrator runs a single Timer and fans its
// tick out to every registry's ExpireNow. Grounded on the reference
// implementation's maf::Timer (driven by timerfd and reachable from
// update.cc's periodic version check), adapted to Go's epoll wrapper here.
type Timer struct {
	fd       int
	name     string
	onExpire func() error
}

// NewTimer creates and arms a periodic timerfd firing every period,
// starting after the first period elapses.
func NewTimer(name string, period time.Duration, onExpire func() error) (t *Timer, err error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: timerfd_create: %w", err)
	}

	spec := &unix.ItimerSpec{
		Value:    unix.NsecToTimespec(period.Nanoseconds()),
		Interval: unix.NsecToTimespec(period.Nanoseconds()),
	}
	if err = unix.TimerfdSettime(fd, 0, spec, nil); err != nil {
		unix.Close(fd)

		return nil, fmt.Errorf("reactor: timerfd_settime: %w", err)
	}

	return &Timer{fd: fd, name: name, onExpire: onExpire}, nil
}

// Fd implements [Listener].
func (t *Timer) Fd() int { return t.fd }

// Name implements [Listener].
func (t *Timer) Name() string { return t.name }

// WantWrite implements [Listener]; timers never write.
func (t *Timer) WantWrite() bool { return false }

// OnWrite implements [Listener].
func (t *Timer) OnWrite() error { return nil }

// Close disarms and releases the timerfd.
func (t *Timer) Close() (err error) { return unix.Close(t.fd) }

// OnRead drains the expiration counter and invokes the callback once per
// readiness notification, regardless of how many periods elapsed while the
// reactor was busy elsewhere.
func (t *Timer) OnRead() (err error) {
	var buf [8]byte
	if _, err = unix.Read(t.fd, buf[:]); err != nil {
		if err == unix.EAGAIN {
			return nil
		}

		return fmt.Errorf("reactor: %s: reading timerfd: %w", t.name, err)
	}

	return t.onExpire()
}
