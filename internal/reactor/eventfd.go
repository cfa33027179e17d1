package reactor

import (
	"encoding/binary"
	"fmt"
	"syscall"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/sys/unix"
)

// EventFD is an eventfd(2)-backed [Listener] used as a self-pipe: any
// goroutine may call [EventFD.Signal] to wake the reactor thread, which
// then runs onSignal on the reactor thread itself. This is how
// reactor-external goroutines (fsnotify's internal watcher goroutine, for
// one) fold state changes back into reactor-owned data without violating
// spec.md §9's single-writer rule for everything but the traffic log.
type EventFD struct {
	fd       int
	name     string
	onSignal func() error
}

// NewEventFD creates a non-blocking eventfd and wires onSignal to run
// whenever [EventFD.Signal] is called from any goroutine.
func NewEventFD(name string, onSignal func() error) (e *EventFD, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	return &EventFD{fd: fd, name: name, onSignal: onSignal}, nil
}

// Signal wakes the reactor thread. Safe to call from any goroutine.
func (e *EventFD) Signal() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)

	_, err := unix.Write(e.fd, buf[:])

	return err
}

// Fd implements Listener.
func (e *EventFD) Fd() int { return e.fd }

// Name implements Listener.
func (e *EventFD) Name() string { return e.name }

// WantWrite implements Listener.
func (e *EventFD) WantWrite() bool { return false }

// OnWrite implements Listener.
func (e *EventFD) OnWrite() error { return nil }

// Close releases the eventfd.
func (e *EventFD) Close() (err error) { return unix.Close(e.fd) }

// OnRead drains the eventfd counter and runs onSignal.
func (e *EventFD) OnRead() (err error) {
	var buf [8]byte
	if _, err = unix.Read(e.fd, buf[:]); err != nil {
		if errors.Is(err, syscall.EAGAIN) {
			return nil
		}

		return fmt.Errorf("eventfd read: %w", err)
	}

	return e.onSignal()
}
