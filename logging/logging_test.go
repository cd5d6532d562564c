package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":    DEBUG,
		"INFO":     INFO,
		"warn":     WARNING,
		"3":        ERROR,
		"critical": CRITICAL,
		"bogus":    INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestLoggerWritesHourlyFileAndFiltersLevel(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(Options{File: filepath.Join(dir, "bot.log"), MaxSizeMB: 1, Level: WARNING, Quiet: true})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	l.Info("hidden %d", 1)
	l.Warning("visible %d", 2)
	l.Critical("drawdown %s", "tripped")

	now := l.file.now()
	data, err := os.ReadFile(l.file.pathFor(now))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "[WARN]  visible 2") || !strings.Contains(out, "[CRIT]  drawdown tripped") {
		t.Fatalf("missing expected lines: %s", out)
	}

	l.ChangeLogLevel(DEBUG)
	l.Debug("now shown")
	data, _ = os.ReadFile(l.file.pathFor(now))
	if !strings.Contains(string(data), "[DEBUG] now shown") {
		t.Fatalf("debug line missing after level change")
	}
}

func TestHourlyWriterPrunesOldDays(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "2001-01-01")
	if err := os.MkdirAll(old, 0o755); err != nil {
		t.Fatal(err)
	}
	w, err := newHourlyWriter(filepath.Join(dir, "bot.log"), 1, 1, 3, false)
	if err != nil {
		t.Fatalf("newHourlyWriter: %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be pruned, stat err=%v", old, err)
	}

	fixed := time.Date(2030, 5, 6, 7, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }
	if _, err := w.Write([]byte("x\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "2030-05-06", "bot-07.log")); err != nil {
		t.Fatalf("expected hourly file: %v", err)
	}
}
