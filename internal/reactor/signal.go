package reactor

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Signal is a signalfd(2)-backed [Listener] delivering a fixed set of Unix
// signals into the reactor loop instead of a separate signal-handling
// goroutine, matching the single-threaded design of spec.md §5. Grounded on
// original_source/src/signal.cc's SignalHandler: block the signal with
// sigprocmask, open a signalfd for it, register with epoll, and restore the
// mask on Close.
type Signal struct {
	fd    int
	mask  unix.Sigset_t
	onSig func(sig int) error
}

// NewSignal blocks sigs on the calling thread via pthread_sigmask and opens
// a signalfd delivering them, invoking onSig from the reactor loop for each
// one received.
func NewSignal(onSig func(sig int) error, sigs ...int) (s *Signal, err error) {
	var mask unix.Sigset_t
	for _, sig := range sigs {
		addSignal(&mask, sig)
	}

	if err = unix.PthreadSigmask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return nil, fmt.Errorf("reactor: pthread_sigmask(SIG_BLOCK): %w", err)
	}

	fd, err := unix.Signalfd(-1, &mask, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		_ = unix.PthreadSigmask(unix.SIG_UNBLOCK, &mask, nil)

		return nil, fmt.Errorf("reactor: signalfd: %w", err)
	}

	return &Signal{fd: fd, mask: mask, onSig: onSig}, nil
}

// Fd implements [Listener].
func (s *Signal) Fd() int { return s.fd }

// Name implements [Listener].
func (s *Signal) Name() string { return "signal" }

// WantWrite implements [Listener].
func (s *Signal) WantWrite() bool { return false }

// OnWrite implements [Listener].
func (s *Signal) OnWrite() error { return nil }

// Close releases the signalfd and unblocks the signals it was handling.
func (s *Signal) Close() (err error) {
	unix.Close(s.fd)

	return unix.PthreadSigmask(unix.SIG_UNBLOCK, &s.mask, nil)
}

// signalfdSiginfoSize is sizeof(struct signalfd_siginfo): a fixed-size
// record regardless of architecture.
const signalfdSiginfoSize = 128

// OnRead drains every pending signalfd_siginfo and invokes onSig for each,
// in the order they were delivered.
func (s *Signal) OnRead() (err error) {
	var buf [signalfdSiginfoSize * 4]byte

	for {
		n, readErr := unix.Read(s.fd, buf[:])
		if readErr != nil {
			if readErr == unix.EAGAIN {
				return nil
			}

			return fmt.Errorf("reactor: signal: read: %w", readErr)
		}

		for off := 0; off+signalfdSiginfoSize <= n; off += signalfdSiginfoSize {
			sig := int(le32(buf[off : off+4]))
			if err = s.onSig(sig); err != nil {
				return err
			}
		}

		// A short read means the signalfd is drained; stopping here also
		// avoids reading a descriptor that onSig may have closed.
		if n < len(buf) {
			return nil
		}
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// addSignal sets sig's bit in mask. unix.Sigset_t.Val is a word array whose
// element width (32 or 64 bits) varies by architecture, so the word size is
// derived from the element type rather than hardcoded.
func addSignal(mask *unix.Sigset_t, sig int) {
	wordBits := int(unsafe.Sizeof(mask.Val[0])) * 8
	word := (sig - 1) / wordBits
	bit := uint((sig - 1) % wordBits)

	mask.Val[word] |= 1 << bit
}
