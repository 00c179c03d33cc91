package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/storyvec/internal/document"
)

func startWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w, err := New(dir, Options{Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Stop()
	})
	return w
}

func nextBatch(t *testing.T, w *Watcher) []FileEvent {
	t.Helper()
	select {
	case events, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return events
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for watch events")
		return nil
	}
}

func TestNew_MissingDataDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), Options{}, nil)
	assert.Error(t, err)
}

func TestWatcher_YAMLChangeInCaptions(t *testing.T) {
	// Given: a watched data dir with an existing captions thread
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "captions", "t"), 0o755))
	w := startWatcher(t, dir)

	// When: a caption file is written
	require.NoError(t, os.WriteFile(filepath.Join(dir, "captions", "t", "page_1.yml"), []byte("ocr:\n  full_text: x\n"), 0o644))

	// Then: one batch reports the captions file
	events := nextBatch(t, w)
	require.NotEmpty(t, events)
	assert.Equal(t, "captions/t/page_1.yml", events[0].Path)
	assert.Equal(t, document.ContentTypeCaptions, events[0].ContentType)
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "stories"), 0o755))
	w := startWatcher(t, dir)

	// Noise first, then a real change.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stories", "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stories", ".hidden.yml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.yml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stories", "page_1.yaml"), []byte("posts: [a]\n"), 0o644))

	events := nextBatch(t, w)
	require.Len(t, events, 1)
	assert.Equal(t, "stories/page_1.yaml", events[0].Path)
	assert.Equal(t, document.ContentTypeStories, events[0].ContentType)
}

func TestWatcher_StopClosesChannels(t *testing.T) {
	w, err := New(t.TempDir(), Options{}, nil)
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}

func TestRunTrigger_IndexesAffectedTypes(t *testing.T) {
	// Given: a batch touching both content types
	events := make(chan []FileEvent, 1)
	events <- []FileEvent{
		{Path: "stories/a.yml", ContentType: document.ContentTypeStories},
		{Path: "captions/b.yml", ContentType: document.ContentTypeCaptions},
	}
	close(events)

	var (
		mu      sync.Mutex
		indexed []document.ContentType
	)
	index := func(_ context.Context, ct document.ContentType) error {
		mu.Lock()
		defer mu.Unlock()
		indexed = append(indexed, ct)
		return nil
	}

	// When: the trigger runs until the channel closes
	err := RunTrigger(context.Background(), events, index, nil)

	// Then: each type is indexed once, captions first
	require.NoError(t, err)
	assert.Equal(t, []document.ContentType{document.ContentTypeCaptions, document.ContentTypeStories}, indexed)
}

func TestRunTrigger_IndexErrorKeepsRunning(t *testing.T) {
	events := make(chan []FileEvent, 2)
	events <- []FileEvent{{Path: "captions/a.yml", ContentType: document.ContentTypeCaptions}}
	events <- []FileEvent{{Path: "captions/a.yml", ContentType: document.ContentTypeCaptions}}
	close(events)

	calls := 0
	err := RunTrigger(context.Background(), events, func(context.Context, document.ContentType) error {
		calls++
		return assert.AnError
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunTrigger_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunTrigger(ctx, make(chan []FileEvent), func(context.Context, document.ContentType) error { return nil }, nil)

	assert.ErrorIs(t, err, context.Canceled)
}
