package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// rotatingWriter appends JSON log lines to day-stamped files. A new file
// starts on each UTC day and whenever the current file would grow past
// limit bytes. For a path of logs/hunterd.log the files come out as
// logs/hunterd-2026-08-26.log, logs/hunterd-2026-08-26-2.log and so on.
type rotatingWriter struct {
	path  string
	limit int64
	clock func() time.Time

	mu    sync.Mutex
	day   string
	index int
	out   *os.File
	used  int64
}

// NewRotatingWriter opens the log file for path, rolling over by UTC day
// and by size. A path of "-" discards all output.
func NewRotatingWriter(path string, limit int64) (io.WriteCloser, error) {
	if strings.TrimSpace(path) == "-" {
		return nopWriteCloser{w: io.Discard}, nil
	}
	w := &rotatingWriter{path: path, limit: limit, clock: time.Now}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := w.clock().UTC().Format("2006-01-02")
	switch {
	case w.out == nil || day != w.day:
		w.day = day
		w.index = 0
		if err := w.roll(); err != nil {
			return 0, err
		}
	case w.limit > 0 && w.used+int64(len(p)) > w.limit:
		if err := w.roll(); err != nil {
			return 0, err
		}
	}

	n, err := w.out.Write(p)
	w.used += int64(n)
	return n, err
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}
	err := w.out.Close()
	w.out = nil
	return err
}

// roll closes the current file and opens the next one for the day. It skips
// past files already at the size limit, so a restarted process continues in
// the newest slot instead of reopening the first file of the day.
func (w *rotatingWriter) roll() error {
	if w.out != nil {
		_ = w.out.Close()
		w.out = nil
	}
	if w.day == "" {
		w.day = w.clock().UTC().Format("2006-01-02")
	}
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	for {
		w.index++
		name := w.fileName()
		st, err := os.Stat(name)
		if err == nil && w.limit > 0 && st.Size() >= w.limit {
			continue
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w.out = f
		w.used = 0
		if st, err := f.Stat(); err == nil {
			w.used = st.Size()
		}
		return nil
	}
}

func (w *rotatingWriter) fileName() string {
	ext := filepath.Ext(w.path)
	if ext == "" {
		ext = ".log"
	}
	stem := strings.TrimSuffix(w.path, filepath.Ext(w.path))
	if w.index > 1 {
		return fmt.Sprintf("%s-%s-%d%s", stem, w.day, w.index, ext)
	}
	return fmt.Sprintf("%s-%s%s", stem, w.day, ext)
}

type nopWriteCloser struct{ w io.Writer }

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }
