package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Setup Tests
// ============================================================================

func TestSetup_WritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "storyvec.log")

	logger, cleanup, err := Setup(Config{
		Level:    "debug",
		FilePath: logPath,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Info("index_complete", slog.String("content_type", "captions"), slog.Int("indexed", 3))
	cleanup()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, content)
	}
	if record["msg"] != "index_complete" {
		t.Errorf("msg = %v, want index_complete", record["msg"])
	}
	if record["content_type"] != "captions" {
		t.Errorf("content_type = %v, want captions", record["content_type"])
	}
}

func TestSetup_RespectsLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")
	cleanup()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if strings.Contains(string(content), "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(string(content), "shown") {
		t.Error("warn record should be written")
	}
}

func TestSetup_NoFileFallsBackToStderr(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	if logger == nil {
		t.Fatal("logger should not be nil")
	}
}

func TestSetup_UnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// A regular file where the log directory should be.
	_, _, err := Setup(Config{FilePath: filepath.Join(blocker, "app.log")})
	if err == nil {
		t.Error("expected error when log directory cannot be created")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", "INFO"} {
		if !ValidLevel(level) {
			t.Errorf("ValidLevel(%q) = false, want true", level)
		}
	}
	for _, level := range []string{"", "trace", "fatal"} {
		if ValidLevel(level) {
			t.Errorf("ValidLevel(%q) = true, want false", level)
		}
	}
}

// ============================================================================
// FindLogFile Tests
// ============================================================================

func TestFindLogFile_Explicit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "explicit.log")
	if err := os.WriteFile(logPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FindLogFile(logPath, "")
	if err != nil {
		t.Fatalf("FindLogFile failed: %v", err)
	}
	if got != logPath {
		t.Errorf("got %s, want %s", got, logPath)
	}
}

func TestFindLogFile_ExplicitMissing(t *testing.T) {
	configured := filepath.Join(t.TempDir(), "configured.log")
	if err := os.WriteFile(configured, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// An explicit path that does not exist is an error even when the
	// configured one exists.
	_, err := FindLogFile(filepath.Join(t.TempDir(), "missing.log"), configured)
	if err == nil {
		t.Fatal("expected error for missing explicit path")
	}
	if !strings.Contains(err.Error(), "missing.log") {
		t.Errorf("error should name the path: %v", err)
	}
}

func TestFindLogFile_Configured(t *testing.T) {
	configured := filepath.Join(t.TempDir(), "configured.log")
	if err := os.WriteFile(configured, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FindLogFile("", configured)
	if err != nil {
		t.Fatalf("FindLogFile failed: %v", err)
	}
	if got != configured {
		t.Errorf("got %s, want %s", got, configured)
	}
}

func TestFindLogFile_NothingFound(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := FindLogFile("", filepath.Join(t.TempDir(), "nope.log"))
	if err == nil {
		t.Error("expected error when no log file exists")
	}
}

// ============================================================================
// Viewer Tests
// ============================================================================

func TestParseLine_JSON(t *testing.T) {
	line := `{"time":"2026-01-02T15:04:05.123Z","level":"INFO","msg":"batch_upserted","batch":2,"collection":"captions"}`

	entry := parseLine(line)

	if !entry.IsValid {
		t.Fatal("entry should be valid")
	}
	if entry.Level != "INFO" {
		t.Errorf("Level = %s, want INFO", entry.Level)
	}
	if entry.Msg != "batch_upserted" {
		t.Errorf("Msg = %s, want batch_upserted", entry.Msg)
	}
	if !entry.Time.Equal(mustParseTime("2026-01-02T15:04:05.123Z")) {
		t.Errorf("Time = %v", entry.Time)
	}
	if entry.Attrs["collection"] != "captions" {
		t.Errorf("collection attr = %v", entry.Attrs["collection"])
	}
	if _, ok := entry.Attrs["msg"]; ok {
		t.Error("msg should not be duplicated in attrs")
	}
}

func TestParseLine_PlainText(t *testing.T) {
	entry := parseLine("panic: something went wrong")

	if entry.IsValid {
		t.Error("plain text should not be valid JSON entry")
	}
	if entry.Raw != "panic: something went wrong" {
		t.Errorf("Raw = %q", entry.Raw)
	}
}

func TestViewer_Matches(t *testing.T) {
	info := parseLine(`{"level":"INFO","msg":"search_complete"}`)
	warn := parseLine(`{"level":"WARN","msg":"batch_retry"}`)
	plain := parseLine("not json")

	tests := []struct {
		name  string
		cfg   ViewerConfig
		entry LogEntry
		want  bool
	}{
		{"no filter", ViewerConfig{}, info, true},
		{"below level", ViewerConfig{Level: "warn"}, info, false},
		{"at level", ViewerConfig{Level: "warn"}, warn, true},
		{"plain text ignores level", ViewerConfig{Level: "error"}, plain, true},
		{"pattern match", ViewerConfig{Pattern: regexp.MustCompile("retry")}, warn, true},
		{"pattern miss", ViewerConfig{Pattern: regexp.MustCompile("retry")}, info, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewViewer(tt.cfg, &bytes.Buffer{})
			if got := v.matches(tt.entry); got != tt.want {
				t.Errorf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	entry := parseLine(`{"time":"2026-01-02T15:04:05.123Z","level":"WARN","msg":"batch_retry","z":1,"a":"x"}`)

	got := v.FormatEntry(entry)

	want := entry.Time.Format("15:04:05.000") + " WARN  batch_retry a=x z=1"
	if got != want {
		t.Errorf("FormatEntry() = %q, want %q", got, want)
	}
}

func TestViewer_FormatEntry_Raw(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	if got := v.FormatEntry(parseLine("raw line")); got != "raw line" {
		t.Errorf("FormatEntry() = %q, want raw line", got)
	}
}

func TestViewer_FormatLevelColor(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	if got := v.formatLevel("error"); !strings.Contains(got, "\033[31m") {
		t.Errorf("error level should be red: %q", got)
	}
}

func TestViewer_Tail(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tail.log")

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		level := "INFO"
		if i%5 == 0 {
			level = "ERROR"
		}
		fmt.Fprintf(&sb, `{"level":"%s","msg":"line_%d"}`+"\n", level, i)
	}
	if err := os.WriteFile(logPath, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("last n", func(t *testing.T) {
		v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
		entries, err := v.Tail(logPath, 3)
		if err != nil {
			t.Fatalf("Tail failed: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("got %d entries, want 3", len(entries))
		}
		if entries[0].Msg != "line_17" || entries[2].Msg != "line_19" {
			t.Errorf("unexpected entries: %s .. %s", entries[0].Msg, entries[2].Msg)
		}
	})

	t.Run("level filter applies after tail", func(t *testing.T) {
		v := NewViewer(ViewerConfig{Level: "error"}, &bytes.Buffer{})
		entries, err := v.Tail(logPath, 10)
		if err != nil {
			t.Fatalf("Tail failed: %v", err)
		}
		// lines 10..19 contain errors at 10 and 15
		if len(entries) != 2 {
			t.Fatalf("got %d entries, want 2", len(entries))
		}
	})

	t.Run("zero uses default", func(t *testing.T) {
		v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
		entries, err := v.Tail(logPath, 0)
		if err != nil {
			t.Fatalf("Tail failed: %v", err)
		}
		if len(entries) != 20 {
			t.Errorf("got %d entries, want 20", len(entries))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
		if _, err := v.Tail(filepath.Join(t.TempDir(), "none.log"), 5); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestViewer_Print(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	v.Print([]LogEntry{parseLine("first"), parseLine("second")})

	if out.String() != "first\nsecond\n" {
		t.Errorf("Print output = %q", out.String())
	}
}

func TestViewer_Follow(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "follow.log")
	if err := os.WriteFile(logPath, []byte(`{"level":"INFO","msg":"old"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, logPath, entries) }()

	// Give Follow time to seek to the end before appending.
	time.Sleep(100 * time.Millisecond)

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"level":"INFO","msg":"new"}` + "\n")
	_ = f.Close()

	select {
	case entry := <-entries:
		if entry.Msg != "new" {
			t.Errorf("followed entry = %s, want new", entry.Msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for followed entry")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned error: %v", err)
	}
}

// ============================================================================
// Writer Rotation Tests
// ============================================================================

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")

	// 0 MB rotates before every write after the first
	w, err := NewRotatingWriter(logPath, 0, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	first := bytes.Repeat([]byte("a"), 2048)
	second := bytes.Repeat([]byte("b"), 2048)

	if _, err := w.Write(first); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if _, err := w.Write(second); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	rotated, err := os.ReadFile(logPath + ".1")
	if err != nil {
		t.Fatalf("rotated file .1 should exist: %v", err)
	}
	if !bytes.Equal(rotated, first) {
		t.Error("rotated file should hold the first write")
	}

	current, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("main log file should exist: %v", err)
	}
	if !bytes.Equal(current, second) {
		t.Error("current file should hold only the second write")
	}
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "maxfiles.log")

	w, err := NewRotatingWriter(logPath, 0, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		_, _ = w.Write([]byte(fmt.Sprintf("write %d\n", i)))
	}

	for _, name := range []string{logPath, logPath + ".1", logPath + ".2"} {
		if _, err := os.Stat(name); err != nil {
			t.Errorf("%s should exist: %v", filepath.Base(name), err)
		}
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("rotated file .3 should not exist (beyond maxFiles)")
	}

	newest, _ := os.ReadFile(logPath + ".1")
	if string(newest) != "write 3\n" {
		t.Errorf(".1 = %q, want write 3", newest)
	}
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "existing.log")
	if err := os.WriteFile(logPath, []byte("before\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	_, _ = w.Write([]byte("after\n"))
	_ = w.Close()

	content, _ := os.ReadFile(logPath)
	if string(content) != "before\nafter\n" {
		t.Errorf("content = %q", content)
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "close.log")

	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	if _, err := w.Write([]byte("test data\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
	if _, err := w.Write([]byte("late\n")); err != os.ErrClosed {
		t.Errorf("write after close = %v, want os.ErrClosed", err)
	}
	if err := w.Sync(); err != nil {
		t.Errorf("sync after close should be a no-op: %v", err)
	}
}

func TestRotatingWriter_SyncSuccess(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "sync.log")

	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("test data to sync\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(content), "test data to sync") {
		t.Error("synced data should be readable")
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")

	w, err := NewRotatingWriter(logPath, 10, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				msg := fmt.Sprintf(`{"id":%d,"iter":%d,"msg":"test"}`, id, j) + "\n"
				_, _ = w.Write([]byte(msg))
			}
		}(i)
	}
	wg.Wait()
	_ = w.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file should exist: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 1000 {
		t.Errorf("got %d lines, want 1000", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Fatalf("interleaved write produced invalid line: %q", line)
		}
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

func mustParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t
}
