// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// startWatcher runs w until the test ends and returns the channel Run's result
// is delivered on.
func startWatcher(t *testing.T, w *Watcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	return cancel, errCh
}

func stopWatcher(t *testing.T, cancel context.CancelFunc, errCh <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestModulePatterns(t *testing.T) {
	t.Parallel()

	got := ModulePatterns([]string{".lua", ".json"}, "package.json")
	want := []string{"**/*.lua", "**/*.json", "**/package.json"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ModulePatterns() mismatch (-want +got):\n%s", diff)
	}
	if got := ModulePatterns(nil, ""); len(got) != 0 {
		t.Errorf("ModulePatterns(nil) = %v, want empty", got)
	}
}

func TestWatcher_Debounce(t *testing.T) {
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
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			collected = append(collected, changed...)
			if calls == 1 {
				close(done)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	cancel, errCh := startWatcher(t, w)

	for _, name := range []string{"c.lua", "a.lua", "b.lua"} {
		writeFile(t, filepath.Join(dir, name), "exports.x = 1")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	time.Sleep(200 * time.Millisecond)
	stopWatcher(t, cancel, errCh)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("callbacks = %d, want 1 debounced callback", calls)
	}
	for _, want := range []string{"a.lua", "b.lua", "c.lua"} {
		if !slices.Contains(collected, want) {
			t.Errorf("changed = %v, want it to contain %q", collected, want)
		}
	}
	if !slices.IsSorted(collected) {
		t.Errorf("changed = %v, want sorted paths", collected)
	}
}

func TestWatcher_PatternsAndIgnores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fired := make(chan []string, 10)

	w, err := New(Config{
		BaseDir:  dir,
		Patterns: ModulePatterns([]string{".lua"}, "package.json"),
		Ignore:   []string{"**/vendor/**"},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "vendor"), 0o755); err != nil {
		t.Fatal(err)
	}
	cancel, errCh := startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "notes.txt"), "not a module")
	writeFile(t, filepath.Join(dir, "main.lua.swp"), "swap")
	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "package.json"), `{"type": "module"}`)

	select {
	case changed := <-fired:
		if diff := cmp.Diff([]string{"package.json"}, changed); diff != "" {
			t.Errorf("changed mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	stopWatcher(t, cancel, errCh)
}

func TestWatcher_SkipsWhileBusy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var (
		mu      sync.Mutex
		active  int
		overlap bool
	)
	firstDone := make(chan struct{})
	var once sync.Once

	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, _ []string) error {
			mu.Lock()
			active++
			if active > 1 {
				overlap = true
			}
			mu.Unlock()

			time.Sleep(300 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			once.Do(func() { close(firstDone) })
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	cancel, errCh := startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "first.lua"), "1")
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "second.lua"), "2")

	select {
	case <-firstDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first callback")
	}
	time.Sleep(200 * time.Millisecond)
	stopWatcher(t, cancel, errCh)

	mu.Lock()
	defer mu.Unlock()
	if overlap {
		t.Error("callbacks overlapped")
	}
}

func TestWatcher_ContextCancel(t *testing.T) {
	t.Parallel()

	w, err := New(Config{BaseDir: t.TempDir(), Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	cancel, errCh := startWatcher(t, w)
	time.Sleep(50 * time.Millisecond)
	stopWatcher(t, cancel, errCh)
}

func TestWatcher_RunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{BaseDir: t.TempDir(), Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	cancel, errCh := startWatcher(t, w)
	time.Sleep(50 * time.Millisecond)

	if err := w.Run(context.Background()); !errors.Is(err, ErrRunTwice) {
		t.Errorf("second Run() error = %v, want ErrRunTwice", err)
	}
	stopWatcher(t, cancel, errCh)
}

func TestWatcher_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseDir: t.TempDir(), Patterns: []string{"[invalid"}})
	if !errors.Is(err, ErrInvalidWatchConfig) || !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("New() error = %v, want ErrInvalidWatchConfig and ErrInvalidPattern", err)
	}
}

func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	ignores := DefaultIgnores()
	tests := []struct {
		path    string
		ignored bool
	}{
		{".git/config", true},
		{".git/objects/ab/cd1234", true},
		{"main.lua.swp", true},
		{"main.lua.swo", true},
		{"backup~", true},
		{"sub/.DS_Store", true},
		{"main.lua", false},
		{"node_modules/pkg/index.lua", false},
		{"package.json", false},
		{".gitignore", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			if got := matchAny(ignores, tt.path); got != tt.ignored {
				t.Errorf("ignored(%q) = %v, want %v", tt.path, got, tt.ignored)
			}
		})
	}
}
