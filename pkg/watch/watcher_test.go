package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestInbox_HandlesFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "early.csv"), []byte("a,b\n1,2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var (
		mu      sync.Mutex
		handled []string
	)
	handler := func(_ context.Context, path string) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, filepath.Base(path))
		if filepath.Base(path) == "bad.csv" {
			return errors.New("unreadable")
		}
		return nil
	}

	in, err := NewInbox(Config{Dir: dir, Debounce: 50 * time.Millisecond, Extensions: []string{".csv"}}, handler, nil)
	if err != nil {
		t.Fatalf("NewInbox() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	waitFor(t, func() bool { return exists(filepath.Join(dir, DoneDir, "early.csv")) })

	os.WriteFile(filepath.Join(dir, "bad.csv"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.md"), []byte("skip"), 0644)
	waitFor(t, func() bool { return exists(filepath.Join(dir, FailedDir, "bad.csv")) })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want canceled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 2 {
		t.Errorf("handled = %v, want early.csv and bad.csv", handled)
	}
	if !exists(filepath.Join(dir, "notes.md")) {
		t.Error("non-matching file was moved")
	}
}
