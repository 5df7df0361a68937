package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TailConfig configures a Tailer.
type TailConfig struct {
	Path string
	// FromStart reads the existing content on the first open instead of
	// starting at the end of the file.
	FromStart bool
	// Interval is the poll period used in addition to file notifications.
	Interval time.Duration
}

// Tailer follows the server log like "tail -F": it survives truncation and
// replacement of the file and resumes at its last offset when the
// supervisor restarts it. It implements suture.Service.
type Tailer struct {
	cfg    TailConfig
	handle func(string) error
	logger *slog.Logger

	opened  bool
	offset  atomic.Int64
	pending []byte
}

// NewTailer creates a Tailer feeding lines to p.
func NewTailer(cfg TailConfig, p *Pipeline, logger *slog.Logger) *Tailer {
	return newTailer(cfg, p.HandleLine, logger)
}

func newTailer(cfg TailConfig, handle func(string) error, logger *slog.Logger) *Tailer {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tailer{
		cfg:    cfg,
		handle: handle,
		logger: logger.With("component", "tailer", "path", cfg.Path),
	}
}

// Offset returns the number of bytes consumed from the current file.
func (t *Tailer) Offset() int64 {
	return t.offset.Load()
}

func (t *Tailer) String() string {
	return "log-tailer"
}

// Serve follows the file until ctx is done.
func (t *Tailer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	var wake <-chan fsnotify.Event
	var werr <-chan error
	if w, err := fsnotify.NewWatcher(); err != nil {
		t.logger.Warn("file notifications unavailable, polling only", "error", err)
	} else {
		defer w.Close()
		if err := w.Add(filepath.Dir(t.cfg.Path)); err != nil {
			t.logger.Warn("file notifications unavailable, polling only", "error", err)
		} else {
			wake, werr = w.Events, w.Errors
		}
	}

	var f *os.File
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	for {
		if f == nil {
			var err error
			if f, err = t.open(); err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					return err
				}
				// Everything in a file created later is new.
				t.opened = true
				f = nil
			}
		}

		if f != nil {
			if err := t.drain(f); err != nil {
				return err
			}
			reopen, err := t.check(f)
			if err != nil {
				return err
			}
			if reopen {
				if err := t.drain(f); err != nil {
					return err
				}
				f.Close()
				f = nil
				t.offset.Store(0)
				t.pending = nil
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		case err, ok := <-werr:
			if ok {
				t.logger.Warn("file notification error", "error", err)
			}
		}
	}
}

// open opens the file and seeks to where reading should resume.
func (t *Tailer) open() (*os.File, error) {
	f, err := os.Open(t.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", t.cfg.Path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", t.cfg.Path, err)
	}

	var start int64
	switch {
	case !t.opened && !t.cfg.FromStart:
		start = fi.Size()
	case t.opened && t.offset.Load() <= fi.Size():
		start = t.offset.Load()
	}
	t.opened = true

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seeking %s: %w", t.cfg.Path, err)
	}
	t.offset.Store(start)
	t.logger.Info("following log", "offset", start)
	return f, nil
}

// check reports whether the path now names a different file. A truncated
// file is rewound in place.
func (t *Tailer) check(f *os.File) (bool, error) {
	cur, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat open log: %w", err)
	}
	fi, err := os.Stat(t.cfg.Path)
	if err != nil {
		// Rotated away and not recreated yet.
		return false, nil
	}
	if !os.SameFile(cur, fi) {
		t.logger.Info("log file replaced, reopening")
		return true, nil
	}
	if fi.Size() < t.offset.Load() {
		t.logger.Info("log file truncated, rewinding", "size", fi.Size(), "offset", t.offset.Load())
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return false, fmt.Errorf("rewinding log: %w", err)
		}
		t.offset.Store(0)
		t.pending = nil
	}
	return false, nil
}

// drain reads to EOF and hands every complete line to the handler. A
// trailing partial line is kept until its newline arrives.
func (t *Tailer) drain(f *os.File) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			t.offset.Add(int64(n))
			t.consume(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading log: %w", err)
		}
	}
}

func (t *Tailer) consume(chunk []byte) {
	data := append(t.pending, chunk...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if err := t.handle(string(data[:i])); err != nil {
			t.logger.Debug("line rejected", "error", err)
		}
		data = data[i+1:]
	}
	if len(data) > maxLineSize {
		t.logger.Warn("discarding oversized partial line", "bytes", len(data))
		data = nil
	}
	t.pending = append(t.pending[:0:0], data...)
}
