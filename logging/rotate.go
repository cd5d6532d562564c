package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	dayLayout  = "2006-01-02"
	hourLayout = "2006-01-02-15"
)

// hourlyWriter keeps one lumberjack file per UTC hour under a per-day directory:
// <dir>/<YYYY-MM-DD>/<name>-<HH><ext>. Day directories older than maxAge are pruned.
type hourlyWriter struct {
	dir, name, ext string

	maxSize, maxBackups, maxAge int
	compress                    bool

	now func() time.Time

	mu       sync.Mutex
	hour     string
	prunedOn string
	out      *lumberjack.Logger
}

func newHourlyWriter(path string, maxSize, maxBackups, maxAge int, compress bool) (*hourlyWriter, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" || name == "." {
		return nil, fmt.Errorf("invalid log file: %q", path)
	}
	if ext == "" {
		ext = ".log"
	}
	w := &hourlyWriter{
		dir:        filepath.Dir(path),
		name:       name,
		ext:        ext,
		maxSize:    maxSize,
		maxBackups: maxBackups,
		maxAge:     maxAge,
		compress:   compress,
		now:        func() time.Time { return time.Now().UTC() },
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(w.now()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *hourlyWriter) pathFor(t time.Time) string {
	return filepath.Join(w.dir, t.Format(dayLayout), fmt.Sprintf("%s-%02d%s", w.name, t.Hour(), w.ext))
}

// roll switches to the file for t's hour if needed. Caller holds mu.
func (w *hourlyWriter) roll(t time.Time) error {
	key := t.Format(hourLayout)
	if w.out != nil && key == w.hour {
		return nil
	}
	if w.out != nil {
		_ = w.out.Close()
	}

	path := w.pathFor(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	w.hour = key
	w.out = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    w.maxSize,
		MaxBackups: w.maxBackups,
		MaxAge:     w.maxAge,
		Compress:   w.compress,
	}

	if day := t.Format(dayLayout); w.maxAge > 0 && day != w.prunedOn {
		w.prunedOn = day
		return w.prune(t)
	}
	return nil
}

func (w *hourlyWriter) prune(t time.Time) error {
	y, m, d := t.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(w.maxAge - 1))

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read log directory %q: %w", w.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, err := time.ParseInLocation(dayLayout, e.Name(), time.UTC)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		_ = os.RemoveAll(filepath.Join(w.dir, e.Name()))
	}
	return nil
}

func (w *hourlyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(w.now()); err != nil {
		return 0, err
	}
	return w.out.Write(p)
}

func (w *hourlyWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(w.now()); err != nil {
		return err
	}
	return w.out.Rotate()
}

func (w *hourlyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}
	err := w.out.Close()
	w.out = nil
	w.hour = ""
	return err
}
