package netconf

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports, on [Watcher.Events], whenever one of the watched files is
// written, renamed, or recreated. Grounded on internal/aghnet's fsnotify-based
// HostsContainer from the teacher pack, trimmed to the two files spec.md
// §4.6 requires a hot reload for: /etc/ethers and /etc/hosts.
type Watcher struct {
	w *fsnotify.Watcher
}

// NewWatcher starts watching paths. fsnotify drives its own inotify(7)
// reader goroutine internally (it exposes no raw fd the single-threaded
// reactor could poll), so the caller drains [Watcher.Events] from a
// goroutine of its own and folds reloads back into reactor-owned state.
func NewWatcher(paths ...string) (w *Watcher, err error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, p := range paths {
		if addErr := fsw.Add(p); addErr != nil {
			_ = fsw.Close()

			return nil, addErr
		}
	}

	return &Watcher{w: fsw}, nil
}

// Events exposes the fsnotify channel for the reactor-driven caller to
// drain; this package has no event loop of its own.
func (w *Watcher) Events() <-chan fsnotify.Event { return w.w.Events }

// Errors exposes fsnotify's internal error channel.
func (w *Watcher) Errors() <-chan error { return w.w.Errors }

// Close stops watching.
func (w *Watcher) Close() (err error) { return w.w.Close() }

// LogErrors drains w's error channel into log, for callers that don't care
// about watcher errors beyond reporting them.
func LogErrors(w *Watcher, log *slog.Logger) {
	go func() {
		for err := range w.Errors() {
			log.Warn("file watcher error", "error", err)
		}
	}()
}
