// Package reload tells browsers viewing a site to reload when the site's files
// change. A Watcher polls the files, a Broker pushes "reload" to every
// connected page over Server-Sent Events, and a ScriptDecorator adds the
// listening script to each page as it's served.
package reload

import (
	"context"
	"encoding/binary"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultExtensions are the file extensions watched when Options doesn't
// list any.
var DefaultExtensions = []string{".html", ".css", ".js"}

// Detector returns a fingerprint of the watched files. Two calls that return
// different values mean something changed.
type Detector func(ctx context.Context) (uint64, error)

// Options tunes a Watcher.
type Options struct {
	// Interval is how often the files are checked. Default: 1s.
	Interval time.Duration

	// Debounce is the quiet period after a change before the action
	// runs. Further changes during the window restart it. 0 runs the
	// action on the first poll that sees the change.
	Debounce time.Duration

	// Extensions limits which files are fingerprinted. Default:
	// DefaultExtensions.
	Extensions []string

	// Detector overrides the file walking fingerprint.
	Detector Detector

	// Logger overrides slog.Default().
	Logger *slog.Logger
}

// Stats are point-in-time counters for a Watcher.
type Stats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Reloads         int64 `json:"reloads"`
}

// Watcher polls a directory tree and runs an action when its watched files
// change.
type Watcher struct {
	root fs.FS
	opts Options

	fingerprint atomic.Uint64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	reloads atomic.Int64
}

// New returns a Watcher for root. Call OnChange to start watching.
func New(root fs.FS, opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	w := &Watcher{root: root, opts: opts}
	if w.opts.Detector == nil {
		w.opts.Detector = w.Fingerprint
	}
	return w
}

// Stats returns the Watcher's counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Reloads:         w.reloads.Load(),
	}
}

// Fingerprint hashes the path, size and modification time of every watched
// file under the root.
func (w *Watcher) Fingerprint(ctx context.Context) (uint64, error) {
	digest := xxhash.New()
	var buf [8]byte
	err := fs.WalkDir(w.root, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if name != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !slices.Contains(w.opts.Extensions, strings.ToLower(path.Ext(name))) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		_, _ = digest.WriteString(name)
		binary.LittleEndian.PutUint64(buf[:], uint64(info.Size()))
		_, _ = digest.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(info.ModTime().UnixNano()))
		_, _ = digest.Write(buf[:])
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error fingerprinting files: %w", err)
	}
	return digest.Sum64(), nil
}

// OnChange blocks until ctx is done, checking the files every Interval. When
// the fingerprint changes and the Debounce window passes without further
// changes, action is called. If action returns an error, the new fingerprint
// isn't recorded, so the action is tried again on the next poll.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	current, err := w.opts.Detector(ctx)
	if err != nil {
		w.errors.Add(1)
		log.WarnContext(ctx, "reload: initial check failed", "error", err)
	} else {
		w.fingerprint.Store(current)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceCh <-chan time.Time
	var pending uint64
	var hasPending bool

	log.InfoContext(ctx, "reload: watching", "interval", w.opts.Interval, "debounce", w.opts.Debounce, "extensions", w.opts.Extensions)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			log.InfoContext(ctx, "reload: stopped")
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx)
			if err != nil {
				w.errors.Add(1)
				log.WarnContext(ctx, "reload: check failed", "error", err)
				continue
			}
			if cur == w.fingerprint.Load() || (hasPending && cur == pending) {
				continue
			}
			w.changes.Add(1)
			pending, hasPending = cur, true
			if w.opts.Debounce <= 0 {
				w.fire(ctx, action, pending)
				hasPending = false
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceCh = debounce.C
			log.DebugContext(ctx, "reload: change detected, debouncing")

		case <-debounceCh:
			debounceCh = nil
			if hasPending {
				w.fire(ctx, action, pending)
				hasPending = false
			}
		}
	}
}

// fire runs action and records fingerprint as seen if it succeeds. A failed
// action leaves the old fingerprint in place, so the next poll sees the
// change again.
func (w *Watcher) fire(ctx context.Context, action func() error, fingerprint uint64) {
	if err := action(); err != nil {
		w.errors.Add(1)
		w.opts.Logger.ErrorContext(ctx, "reload: action failed", "error", err)
		return
	}
	w.reloads.Add(1)
	w.fingerprint.Store(fingerprint)
	w.opts.Logger.InfoContext(ctx, "reload: files changed, reloading clients")
}
