package nat

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mafik/gatekeeperd/internal/netfilter"
)

// Worker runs the NAT rewrite loop against a bound nfqueue connection. It is
// grounded on original_source/src/gatekeeper.cc's dedicated NAT thread: a
// single goroutine blocks in ReceivePackets until the connection is closed
// out from under it, at which point Run returns and the caller's WaitGroup
// unblocks — the Go equivalent of the reference's thread join on shutdown.
type Worker struct {
	conn    *netfilter.Conn
	table   *Table
	cfg     Config
	log     *slog.Logger
	running atomic.Bool
}

// NewWorker builds a worker bound to conn, translating packets per cfg into
// table.
func NewWorker(conn *netfilter.Conn, cfg Config, log *slog.Logger) *Worker {
	return &Worker{
		conn:  conn,
		table: New(),
		cfg:   cfg,
		log:   log,
	}
}

// Table exposes the worker's NAT mapping, e.g. for the dashboard's read-only
// snapshot.
func (w *Worker) Table() *Table { return w.table }

// Run reads and rewrites packets until the queue socket is closed or Stop is
// called. It returns nil on an orderly shutdown (the socket having been
// closed by the caller) and the receive error otherwise.
func (w *Worker) Run() (err error) {
	w.running.Store(true)
	defer w.running.Store(false)

	for w.running.Load() {
		packets, recvErr := w.conn.ReceivePackets()
		if recvErr != nil {
			if !w.running.Load() {
				return nil
			}

			return recvErr
		}

		for _, pkt := range packets {
			w.handle(pkt)
		}
	}

	return nil
}

// Stop marks the worker as no longer running. The caller must still close
// the underlying netfilter connection to unblock a pending ReceivePackets
// call; Stop alone only short-circuits the next loop iteration.
func (w *Worker) Stop() { w.running.Store(false) }

func (w *Worker) handle(pkt netfilter.QueuedPacket) {
	outcome, warn := Classify(w.table, w.cfg, pkt.Payload)
	if warn != nil {
		w.log.Warn("nat table collision", "error", warn)
	}

	if err := w.conn.Verdict(pkt.PacketIDBE, outcome.Accept, outcome.Rewritten); err != nil {
		w.log.Error("sending nfqueue verdict", "error", err)
	}
}

// RunInGroup runs the worker and signals wg when it returns, for callers
// joining several subsystem goroutines during shutdown.
func (w *Worker) RunInGroup(wg *sync.WaitGroup) {
	defer wg.Done()

	if err := w.Run(); err != nil {
		w.log.Error("nat worker stopped", "error", err)
	}
}
