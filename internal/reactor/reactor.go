// Package reactor implements a single-threaded, level-triggered I/O
// multiplexer over epoll(7). It is the one event loop shared by the DHCP
// server, the DNS server and client sockets, and (when wired in) the
// dashboard's listening socket.
//
// Grounded on the reference implementation's maf::epoll namespace
// (original_source/src/epoll.cc): Add/Mod/Del/Loop semantics, including
// nulling out already-dequeued events for a listener removed mid-batch so a
// single epoll_wait batch never dispatches into a torn-down listener.
package reactor

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/sys/unix"
)

// Listener is the minimal capability set the reactor dispatches against.
// Implementations are plain structs (or thin wrappers around a socket),
// never an inheritance hierarchy — see spec.md §9 "Polymorphism".
type Listener interface {
	// Fd returns the listener's file descriptor. It must stay constant for
	// the lifetime of the listener's registration.
	Fd() int

	// Name identifies the listener in logs and diagnostics.
	Name() string

	// OnRead is invoked whenever Fd is readable. A non-nil error is treated
	// as fatal for the whole reactor loop.
	OnRead() error

	// OnWrite is invoked whenever Fd is writable and WantWrite reports
	// true. A non-nil error is treated as fatal for the whole reactor loop.
	OnWrite() error

	// WantWrite reports whether the listener currently wants EPOLLOUT
	// notifications. The reactor does not poll this continuously; callers
	// must call [Reactor.Mod] after changing it.
	WantWrite() bool
}

const maxEpollEvents = 10

// Reactor is a single-threaded epoll(7) listener registry. It is not safe
// for concurrent use: per spec.md §5, exactly one goroutine (the "reactor
// thread") ever calls into it.
type Reactor struct {
	epfd      int
	listeners map[int]Listener

	// tombstoned holds fds removed by Del during the processing of the
	// current batch of events, so a listener deleted by an earlier
	// callback in the same batch is never dispatched to again.
	tombstoned map[int]struct{}
}

// New creates an epoll instance. Callers must call [Reactor.Close] when
// done.
func New() (r *Reactor, err error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	return &Reactor{
		epfd:       fd,
		listeners:  map[int]Listener{},
		tombstoned: map[int]struct{}{},
	}, nil
}

// Close releases the underlying epoll fd. It does not close registered
// listeners' own fds.
func (r *Reactor) Close() (err error) {
	return unix.Close(r.epfd)
}

// Len returns the number of currently registered listeners. [Reactor.Loop]
// returns once this reaches zero.
func (r *Reactor) Len() int { return len(r.listeners) }

func epollEventFor(l Listener) unix.EpollEvent {
	var events uint32 = unix.EPOLLIN
	if l.WantWrite() {
		events |= unix.EPOLLOUT
	}

	return unix.EpollEvent{Events: events, Fd: int32(l.Fd())}
}

// Add registers l with the reactor. At most one listener per fd may be
// registered at a time.
func (r *Reactor) Add(l Listener) (err error) {
	fd := l.Fd()
	if _, ok := r.listeners[fd]; ok {
		return fmt.Errorf("reactor: fd %d already registered", fd)
	}

	ev := epollEventFor(l)
	if ctlErr := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); ctlErr != nil {
		return fmt.Errorf("epoll_ctl(ADD, %s, fd=%d): %w", l.Name(), fd, ctlErr)
	}

	r.listeners[fd] = l
	delete(r.tombstoned, fd)

	return nil
}

// Listeners returns a snapshot of every currently registered listener, for
// a caller that needs to tear all of them down at once (e.g. on shutdown).
func (r *Reactor) Listeners() []Listener {
	out := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, l)
	}

	return out
}

// Mod re-reads l's WantWrite bit and updates the kernel's interest mask.
// Call this whenever a listener toggles its write interest.
func (r *Reactor) Mod(l Listener) (err error) {
	ev := epollEventFor(l)
	if ctlErr := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, l.Fd(), &ev); ctlErr != nil {
		return fmt.Errorf("epoll_ctl(MOD, %s, fd=%d): %w", l.Name(), l.Fd(), ctlErr)
	}

	return nil
}

// Del deregisters l. It is safe to call from within a Listener's own
// OnRead/OnWrite callback — any event for l already dequeued in the
// current batch will not be dispatched.
func (r *Reactor) Del(l Listener) (err error) {
	fd := l.Fd()
	if ctlErr := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); ctlErr != nil {
		return fmt.Errorf("epoll_ctl(DEL, %s, fd=%d): %w", l.Name(), fd, ctlErr)
	}

	delete(r.listeners, fd)
	r.tombstoned[fd] = struct{}{}

	return nil
}

// Loop runs until no listeners remain registered or a callback returns a
// fatal error. Per-listener I/O errors should be handled by the listener
// itself (logged, connection dropped) rather than returned from
// OnRead/OnWrite, which the reactor treats as process-fatal.
func (r *Reactor) Loop() (err error) {
	events := make([]unix.EpollEvent, maxEpollEvents)

	for r.Len() > 0 {
		n, waitErr := unix.EpollWait(r.epfd, events, -1)
		if waitErr != nil {
			if waitErr == unix.EINTR {
				continue
			}

			return fmt.Errorf("epoll_wait: %w", waitErr)
		}

		clear(r.tombstoned)

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if _, dead := r.tombstoned[fd]; dead {
				continue
			}

			l, ok := r.listeners[fd]
			if !ok {
				continue
			}

			if events[i].Events&unix.EPOLLIN != 0 {
				if cbErr := l.OnRead(); cbErr != nil {
					return errors.Annotate(cbErr, "reactor: %s: on_read: %w", l.Name())
				}
			}

			if _, dead := r.tombstoned[fd]; dead {
				continue
			}

			if events[i].Events&unix.EPOLLOUT != 0 {
				if l2, stillOk := r.listeners[fd]; stillOk && l2.WantWrite() {
					if cbErr := l2.OnWrite(); cbErr != nil {
						return errors.Annotate(cbErr, "reactor: %s: on_write: %w", l2.Name())
					}
				}
			}
		}
	}

	return nil
}
