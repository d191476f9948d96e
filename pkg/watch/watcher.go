// Package watch registers files dropped into an inbox directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Subdirectories that handled files are moved into.
const (
	DoneDir   = "done"
	FailedDir = "failed"
)

// Handler is called once per settled inbox file.
type Handler func(ctx context.Context, path string) error

// Config holds inbox configuration.
type Config struct {
	Dir        string
	Debounce   time.Duration
	Extensions []string // lower-case, with dot; empty accepts all
}

// Inbox watches a directory and hands each new file to a Handler once it
// stops changing. Handled files move to done/ or failed/.
type Inbox struct {
	cfg     Config
	watcher *fsnotify.Watcher
	handle  Handler
	log     *zap.Logger

	mu    sync.Mutex
	files map[string]*fileState
	wg    sync.WaitGroup
}

type fileState struct {
	lastModified time.Time
	size         int64
	timer        *time.Timer
	processing   bool
}

// NewInbox creates the inbox directories and the watcher.
func NewInbox(cfg Config, handle Handler, log *zap.Logger) (*Inbox, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	absDir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inbox: %w", err)
	}
	cfg.Dir = absDir
	for _, d := range []string{absDir, filepath.Join(absDir, DoneDir), filepath.Join(absDir, FailedDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create inbox: %w", err)
		}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsWatcher.Add(absDir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &Inbox{
		cfg:     cfg,
		watcher: fsWatcher,
		handle:  handle,
		log:     log,
		files:   make(map[string]*fileState),
	}, nil
}

// Run handles files already in the inbox, then watches for new ones until
// ctx is canceled. In-flight handlers finish before Run returns.
func (in *Inbox) Run(ctx context.Context) error {
	defer in.wg.Wait()
	defer in.watcher.Close()

	entries, err := os.ReadDir(in.cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to list inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			in.schedule(ctx, filepath.Join(in.cfg.Dir, e.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			in.stopTimers()
			return ctx.Err()

		case event, ok := <-in.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			in.schedule(ctx, event.Name)

		case err, ok := <-in.watcher.Errors:
			if !ok {
				return nil
			}
			in.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (in *Inbox) accepts(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	if filepath.Dir(path) != in.cfg.Dir {
		return false
	}
	if len(in.cfg.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range in.cfg.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// schedule (re)starts the debounce timer of path.
func (in *Inbox) schedule(ctx context.Context, path string) {
	if !in.accepts(path) {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()

	state, ok := in.files[path]
	if !ok {
		state = &fileState{}
		in.files[path] = state
	}
	if state.timer != nil {
		state.timer.Stop()
	}
	state.timer = time.AfterFunc(in.cfg.Debounce, func() { in.settle(ctx, path, state) })
}

// settle runs the handler if the file stopped changing since the last event.
func (in *Inbox) settle(ctx context.Context, path string, state *fileState) {
	stat, err := os.Stat(path)
	if err != nil {
		in.forget(path)
		return
	}

	in.mu.Lock()
	if state.processing || ctx.Err() != nil {
		in.mu.Unlock()
		return
	}
	if !stat.ModTime().Equal(state.lastModified) || stat.Size() != state.size {
		state.lastModified = stat.ModTime()
		state.size = stat.Size()
		state.timer = time.AfterFunc(in.cfg.Debounce, func() { in.settle(ctx, path, state) })
		in.mu.Unlock()
		return
	}
	state.processing = true
	in.wg.Add(1)
	in.mu.Unlock()

	defer in.wg.Done()
	defer in.forget(path)

	dest := DoneDir
	if err := in.handle(ctx, path); err != nil {
		dest = FailedDir
		in.log.Warn("inbox file failed", zap.String("file", path), zap.Error(err))
	} else {
		in.log.Info("inbox file handled", zap.String("file", path))
	}
	target := filepath.Join(in.cfg.Dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		in.log.Warn("failed to move inbox file", zap.String("file", path), zap.Error(err))
	}
}

func (in *Inbox) forget(path string) {
	in.mu.Lock()
	delete(in.files, path)
	in.mu.Unlock()
}

func (in *Inbox) stopTimers() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, s := range in.files {
		if s.timer != nil {
			s.timer.Stop()
		}
	}
}
