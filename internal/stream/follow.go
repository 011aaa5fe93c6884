package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultIdle ends a followed stream after this long without new data.
const DefaultIdle = 3 * time.Second

// follower tails a file that another process is still appending to.
type follower struct {
	ctx     context.Context
	path    string
	file    *os.File
	watcher *fsnotify.Watcher
	idle    time.Duration
	removed bool
}

// Follow returns a reader over path that keeps waiting for appended data. The
// reader reports io.EOF once no write has arrived for idle, or once the file
// is removed or renamed and its remaining bytes have been read.
func Follow(ctx context.Context, path string, idle time.Duration) (io.ReadCloser, error) {
	if idle <= 0 {
		idle = DefaultIdle
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched so removal is seen while the file is still open.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		f.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	return &follower{
		ctx:     ctx,
		path:    filepath.Clean(path),
		file:    f,
		watcher: w,
		idle:    idle,
	}, nil
}

func (f *follower) Read(p []byte) (int, error) {
	for {
		n, err := f.file.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if f.removed {
			return 0, io.EOF
		}
		if err := f.wait(); err != nil {
			return 0, err
		}
	}
}

// wait blocks until the file may have grown.
func (f *follower) wait() error {
	timer := time.NewTimer(f.idle)
	defer timer.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return f.ctx.Err()
		case <-timer.C:
			return io.EOF
		case event, ok := <-f.watcher.Events:
			if !ok {
				return io.EOF
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				f.removed = true
				return nil
			case event.Has(fsnotify.Write):
				return nil
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return io.EOF
			}
			return fmt.Errorf("watch %s: %w", f.path, err)
		}
	}
}

func (f *follower) Close() error {
	werr := f.watcher.Close()
	ferr := f.file.Close()
	return errors.Join(werr, ferr)
}
