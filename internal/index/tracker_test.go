package index

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/storyvec/internal/document"
)

func TestTracker_SaveLoad(t *testing.T) {
	dir := t.TempDir()

	tr, err := LoadTracker(dir, "captions")
	require.NoError(t, err)
	assert.False(t, tr.Unchanged(document.ContentTypeCaptions, "m", 4, "a.yml", "h1"))

	tr.Replace(document.ContentTypeCaptions, "m", 4, map[string]string{"a.yml": "h1"})
	require.NoError(t, tr.Save())

	loaded, err := LoadTracker(dir, "captions")
	require.NoError(t, err)
	assert.True(t, loaded.Unchanged(document.ContentTypeCaptions, "m", 4, "a.yml", "h1"))
	assert.False(t, loaded.Unchanged(document.ContentTypeCaptions, "m", 4, "a.yml", "h2"), "hash changed")
	assert.False(t, loaded.Unchanged(document.ContentTypeCaptions, "other", 4, "a.yml", "h1"), "model changed")
	assert.False(t, loaded.Unchanged(document.ContentTypeCaptions, "m", 8, "a.yml", "h1"), "dimension changed")
	assert.False(t, loaded.Unchanged(document.ContentTypeStories, "m", 4, "a.yml", "h1"), "other type")
	assert.Equal(t, map[string]string{"a.yml": "h1"}, loaded.Files(document.ContentTypeCaptions))
}

func TestLoadTracker_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(TrackerPath(dir, "captions"), []byte("captions: [unclosed"), 0o644))

	_, err := LoadTracker(dir, "captions")

	assert.Error(t, err)
}

func TestTracker_OneFilePerCollection(t *testing.T) {
	// Given: trackers for two collections in one state directory
	dir := t.TempDir()
	captions, err := LoadTracker(dir, "captions")
	require.NoError(t, err)
	stories, err := LoadTracker(dir, "stories")
	require.NoError(t, err)

	// When: both are saved
	captions.Replace(document.ContentTypeCaptions, "m", 4, map[string]string{"a.yml": "h1"})
	stories.Replace(document.ContentTypeStories, "m", 4, map[string]string{"b.yml": "h2"})
	require.NoError(t, captions.Save())
	require.NoError(t, stories.Save())

	// Then: each lives in its own file and neither overwrote the other
	assert.FileExists(t, TrackerPath(dir, "captions"))
	assert.FileExists(t, TrackerPath(dir, "stories"))

	reloaded, err := LoadTracker(dir, "captions")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.yml": "h1"}, reloaded.Files(document.ContentTypeCaptions))
	assert.Empty(t, reloaded.Files(document.ContentTypeStories))

	reloaded, err = LoadTracker(dir, "stories")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b.yml": "h2"}, reloaded.Files(document.ContentTypeStories))
}

func TestTracker_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	tr, err := LoadTracker(dir, "captions")
	require.NoError(t, err)
	tr.Replace(document.ContentTypeCaptions, "m", 4, map[string]string{"a.yml": "h1"})

	for range 3 {
		require.NoError(t, tr.Save())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "captions"+TrackerFileSuffix, entries[0].Name())
}
