package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirProcessing is the private working directory files are claimed into,
// a sibling of the inbound directory.
const DirProcessing = ".processing"

// Watcher polls the inbound directory at a fixed interval and claims each new
// file by renaming it into the working directory before any processing begins.
// The rename is atomic at the filesystem level, so a second poll cycle or a
// second process instance can never claim the same file. An fsnotify watch on
// the inbound directory triggers an early scan for prompt pickup; the poll
// remains the fallback.
type Watcher struct {
	inboundDir string
	workDir    string
	interval   time.Duration
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewWatcher(inboundDir string, interval time.Duration, dispatcher *Dispatcher, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		inboundDir: inboundDir,
		workDir:    filepath.Join(filepath.Dir(inboundDir), DirProcessing),
		interval:   interval,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// WorkDir returns the claim directory. Files left here after a crash are not
// auto-retried; the operator re-drops them after inspection.
func (w *Watcher) WorkDir() string {
	return w.workDir
}

// Run scans until ctx is cancelled, then stops claiming and lets in-flight
// workers finish. It blocks for the watcher's lifetime.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.inboundDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(w.workDir, 0o755); err != nil {
		return err
	}

	// Best-effort inotify wake-up; polling alone is sufficient.
	var events chan fsnotify.Event
	if fw, err := fsnotify.NewWatcher(); err == nil {
		if err := fw.Add(w.inboundDir); err == nil {
			events = make(chan fsnotify.Event, 64)
			go w.forward(fw.Events, fw.Errors, events)
			defer func() {
				if err := fw.Close(); err != nil {
					w.logger.Warn("failed to close fsnotify watcher", "error", err)
				}
			}()
		} else {
			w.logger.Warn("fsnotify watch unavailable, polling only", "dir", w.inboundDir, "error", err)
			_ = fw.Close()
		}
	} else {
		w.logger.Warn("fsnotify unavailable, polling only", "error", err)
	}

	w.logger.Info("watching inbound directory", "dir", w.inboundDir, "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Scan()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher shutting down")
			return nil
		case <-ticker.C:
			w.Scan()
		case e := <-events:
			if e.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				w.Scan()
			}
		}
	}
}

// forward relays fsnotify events into the buffered wake-up channel, dropping
// events when it is full. Watch errors must be consumed too, or fsnotify's
// delivery goroutine blocks on its unread error channel (inotify queue
// overflow, for instance) and events stop arriving; errors are logged and the
// poll interval covers anything missed.
func (w *Watcher) forward(fsEvents <-chan fsnotify.Event, fsErrors <-chan error, out chan<- fsnotify.Event) {
	for {
		select {
		case e, ok := <-fsEvents:
			if !ok {
				return
			}
			select {
			case out <- e:
			default:
			}
		case err, ok := <-fsErrors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify watch error", "dir", w.inboundDir, "error", err)
		}
	}
}

// Scan claims every visible inbound file and submits it to the dispatcher.
// Returns the number of files claimed in this pass.
func (w *Watcher) Scan() int {
	entries, err := os.ReadDir(w.inboundDir)
	if err != nil {
		w.logger.Error("failed to read inbound directory", "dir", w.inboundDir, "error", err)
		return 0
	}

	claimed := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path, ok := w.claim(e.Name())
		if !ok {
			continue
		}
		claimed++
		w.dispatcher.Submit(path)
	}
	return claimed
}

// claim renames an inbound file into the working directory. A failed rename
// means another scan got there first (or the file vanished); that is not an
// error, the file is simply not ours.
func (w *Watcher) claim(name string) (string, bool) {
	src := filepath.Join(w.inboundDir, name)
	dst := filepath.Join(w.workDir, name)
	if _, err := os.Stat(dst); err == nil {
		// A crashed run left a same-named file behind; do not clobber it.
		dst = timestamped(dst)
	}

	if err := os.Rename(src, dst); err != nil {
		return "", false
	}
	w.logger.Debug("claimed inbound file", "file", name)
	return dst, true
}
