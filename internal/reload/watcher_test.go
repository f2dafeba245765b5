package reload_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"impractical.co/include/internal/reload"
)

func writeFile(t *testing.T, name, contents string, modTime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatalf("Error creating directory: %s", err)
	}
	if err := os.WriteFile(name, []byte(contents), 0o644); err != nil {
		t.Fatalf("Error writing %s: %s", name, err)
	}
	if err := os.Chtimes(name, modTime, modTime); err != nil {
		t.Fatalf("Error setting times on %s: %s", name, err)
	}
}

func TestWatcherFingerprint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeFile(t, filepath.Join(dir, "index.html"), "<p>hi</p>", base)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored", base)
	writeFile(t, filepath.Join(dir, ".git", "HEAD.js"), "ignored", base)

	watcher := reload.New(os.DirFS(dir), reload.Options{Logger: slog.New(slog.DiscardHandler)})
	ctx := context.Background()
	first, err := watcher.Fingerprint(ctx)
	if err != nil {
		t.Fatalf("Error fingerprinting: %s", err)
	}

	writeFile(t, filepath.Join(dir, "notes.txt"), "still ignored", base.Add(time.Hour))
	writeFile(t, filepath.Join(dir, ".git", "HEAD.js"), "still ignored", base.Add(time.Hour))
	second, err := watcher.Fingerprint(ctx)
	if err != nil {
		t.Fatalf("Error fingerprinting: %s", err)
	}
	if first != second {
		t.Error("Expected changes to unwatched files not to change the fingerprint")
	}

	writeFile(t, filepath.Join(dir, "css", "site.css"), "body {}", base)
	third, err := watcher.Fingerprint(ctx)
	if err != nil {
		t.Fatalf("Error fingerprinting: %s", err)
	}
	if third == second {
		t.Error("Expected a new stylesheet to change the fingerprint")
	}

	writeFile(t, filepath.Join(dir, "index.html"), "<p>hi</p>", base.Add(time.Minute))
	fourth, err := watcher.Fingerprint(ctx)
	if err != nil {
		t.Fatalf("Error fingerprinting: %s", err)
	}
	if fourth == third {
		t.Error("Expected a touched page to change the fingerprint")
	}
}

// sequence is a Detector that reports a new fingerprint whenever bump is
// called.
type sequence struct {
	value atomic.Uint64
}

func (s *sequence) detect(_ context.Context) (uint64, error) {
	return s.value.Load(), nil
}

func (s *sequence) bump() {
	s.value.Add(1)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestWatcherOnChange(t *testing.T) {
	t.Parallel()

	var seq sequence
	watcher := reload.New(nil, reload.Options{
		Interval: 5 * time.Millisecond,
		Debounce: 20 * time.Millisecond,
		Detector: seq.detect,
		Logger:   slog.New(slog.DiscardHandler),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var fired atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		watcher.OnChange(ctx, func() error {
			fired.Add(1)
			return nil
		})
	}()

	waitFor(t, "the first check", func() bool { return watcher.Stats().Checks > 0 })
	if fired.Load() != 0 {
		t.Fatal("Expected no action without a change")
	}

	seq.bump()
	waitFor(t, "the action", func() bool { return fired.Load() == 1 })

	cancel()
	<-done
	stats := watcher.Stats()
	if stats.Reloads != 1 {
		t.Errorf("Expected 1 reload, got %d", stats.Reloads)
	}
	if stats.ChangesDetected != 1 {
		t.Errorf("Expected 1 change, got %d", stats.ChangesDetected)
	}
}

func TestWatcherRetriesFailedAction(t *testing.T) {
	t.Parallel()

	var seq sequence
	watcher := reload.New(nil, reload.Options{
		Interval: 5 * time.Millisecond,
		Detector: seq.detect,
		Logger:   slog.New(slog.DiscardHandler),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var attempts atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		watcher.OnChange(ctx, func() error {
			if attempts.Add(1) == 1 {
				return errors.New("no clients yet")
			}
			return nil
		})
	}()

	waitFor(t, "the first check", func() bool { return watcher.Stats().Checks > 0 })
	seq.bump()
	waitFor(t, "a successful retry", func() bool { return watcher.Stats().Reloads == 1 })

	cancel()
	<-done
	if n := attempts.Load(); n != 2 {
		t.Errorf("Expected 2 attempts, got %d", n)
	}
	if n := watcher.Stats().Errors; n != 1 {
		t.Errorf("Expected 1 error, got %d", n)
	}
}
