// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

// startWatcher runs w in a goroutine and returns the Run error channel plus
// a cancel func. The caller cancels and drains the channel when done.
func startWatcher(t *testing.T, w *Watcher) (<-chan error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	return errCh, cancel
}

func TestWatcherDebounceCoalesces(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var (
		mu        sync.Mutex
		calls     int
		collected []string
	)
	done := make(chan struct{})

	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 100 * time.Millisecond,
		Stderr:   &bytes.Buffer{},
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			collected = append(collected, changed...)
			close(done)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	errCh, cancel := startWatcher(t, w)
	defer cancel()

	// Three writes in rapid succession land inside one debounce window.
	for _, name := range []string{"a.cue", "b.cue", "c.cue"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("stages: []"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the debounced callback")
	}
	time.Sleep(200 * time.Millisecond)

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("callback fired %d times, want 1", calls)
	}
	for _, want := range []string{"a.cue", "b.cue", "c.cue"} {
		if !slices.Contains(collected, want) {
			t.Errorf("changed paths %v missing %q", collected, want)
		}
	}
}

func TestWatcherPatternsFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fired := make(chan []string, 4)

	w, err := New(Config{
		BaseDir:  dir,
		Patterns: []string{"**/*.cue"},
		Debounce: 100 * time.Millisecond,
		Stderr:   &bytes.Buffer{},
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	errCh, cancel := startWatcher(t, w)
	defer cancel()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plan.cue"), []byte("stages: []"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case changed := <-fired:
		if !slices.Contains(changed, "plan.cue") {
			t.Errorf("changed paths %v missing plan.cue", changed)
		}
		if slices.Contains(changed, "notes.txt") {
			t.Errorf("changed paths %v include the non-matching notes.txt", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the callback")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

func TestWatcherIgnores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fired := make(chan []string, 4)

	w, err := New(Config{
		BaseDir:  dir,
		Ignore:   []string{"**/scratch/**"},
		Debounce: 100 * time.Millisecond,
		Stderr:   &bytes.Buffer{},
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	errCh, cancel := startWatcher(t, w)
	defer cancel()

	if err := os.MkdirAll(filepath.Join(dir, "scratch"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scratch", "tmp.cue"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plan.cue"), []byte("stages: []"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case changed := <-fired:
		for _, rel := range changed {
			if filepath.ToSlash(rel) == "scratch/tmp.cue" {
				t.Errorf("ignored path %q triggered the callback", rel)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the callback")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

func TestWatcherRejectsInvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New(Config{
		BaseDir:  t.TempDir(),
		Patterns: []string{"[unclosed"},
	})
	if err == nil {
		t.Fatal("New() should reject a malformed glob")
	}
}

func TestWatcherRunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{BaseDir: t.TempDir(), Stderr: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	errCh, cancel := startWatcher(t, w)
	// Give the first Run a moment to claim the watcher.
	time.Sleep(50 * time.Millisecond)

	if err := w.Run(context.Background()); err == nil {
		t.Error("second Run() should fail")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
}

func TestDefaultIgnoresCopy(t *testing.T) {
	t.Parallel()

	got := DefaultIgnores()
	if !slices.Contains(got, "**/.git/**") {
		t.Errorf("DefaultIgnores() = %v, missing the VCS pattern", got)
	}
	got[0] = "mutated"
	if defaultIgnores[0] == "mutated" {
		t.Error("DefaultIgnores() must return a copy")
	}
}
