package watcher

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/aretw0/tsw/internal/logging"
	"github.com/fsnotify/fsnotify"
)

const readChunkSize = 32 * 1024

// Consumer receives the events of one tailed file, always from the watcher goroutine
// and in the order OnFileCreated, OnReadStarted, OnCharacter*, OnReadFinished, OnFileDeleted.
type Consumer interface {
	OnFileCreated()
	OnReadStarted()
	OnCharacter(b byte, pos int64)
	OnReadFinished(end int64)
	OnFileDeleted()
}

// Watcher tails a single file from a byte offset using directory change notifications.
type Watcher struct {
	path     string
	consumer Consumer
	logger   *slog.Logger

	offset  atomic.Int64
	reading atomic.Bool
	exists  bool // owned by the loop goroutine

	fsw      *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger configures a logger for the Watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a watcher for path that resumes reading at offset.
func New(path string, offset int64, consumer Consumer, opts ...Option) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		consumer: consumer,
		logger:   logging.NewNop(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	w.offset.Store(offset)
	w.reading.Store(true)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching the parent directory. The directory must exist.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// The watch goes in before the existence check so a file created in
	// between is still reported.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.fsw = fsw

	go w.loop()
	return nil
}

// StopReadingFile turns every later read pass into a no-op.
// Structural events (created/deleted) are still delivered.
func (w *Watcher) StopReadingFile() {
	w.reading.Store(false)
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.fsw != nil {
		<-w.done
	}
}

// Path returns the tailed file.
func (w *Watcher) Path() string {
	return w.path
}

// Offset returns the position the next read pass resumes at.
func (w *Watcher) Offset() int64 {
	return w.offset.Load()
}

func (w *Watcher) loop() {
	defer close(w.done)
	defer w.fsw.Close()

	if _, err := os.Stat(w.path); err == nil {
		w.exists = true
		w.read()
	}

	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "path", w.path, "err", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if w.exists {
			w.exists = false
			w.consumer.OnFileDeleted()
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if !w.exists {
			w.exists = true
			w.offset.Store(0)
			w.consumer.OnFileCreated()
		}
		w.read()
	}
}

// read performs one pass from the resume offset to the current end of file.
// The file handle never outlives the pass.
func (w *Watcher) read() {
	if !w.reading.Load() {
		return
	}

	f, err := os.Open(w.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("Failed to open tailed file", "path", w.path, "err", err)
		}
		return
	}
	defer f.Close()

	pos := w.offset.Load()
	w.consumer.OnReadStarted()

	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		w.logger.Warn("Failed to seek tailed file", "path", w.path, "offset", pos, "err", err)
		w.consumer.OnReadFinished(pos)
		return
	}

	buf := make([]byte, readChunkSize)
	for {
		n, err := f.Read(buf)
		for i := 0; i < n; i++ {
			w.consumer.OnCharacter(buf[i], pos)
			pos++
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.logger.Warn("Failed to read tailed file", "path", w.path, "err", err)
			}
			break
		}
	}

	w.offset.Store(pos)
	w.consumer.OnReadFinished(pos)
}
