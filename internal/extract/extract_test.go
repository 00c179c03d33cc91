package extract

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/storyvec/internal/document"
	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
)

func writeYAML(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func parse(t *testing.T, src string) any {
	t.Helper()
	var v any
	require.NoError(t, yaml.Unmarshal([]byte(src), &v))
	return v
}

// =============================================================================
// Rules
// =============================================================================

func TestCaptionRules_FallbackOrder(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantText string
		wantRule string
		wantOK   bool
	}{
		{
			name: "corrected beats ocr",
			yaml: `
text_processing:
  corrected_text: corrected
ocr:
  full_text: raw ocr
`,
			wantText: "corrected", wantRule: "text_processing.corrected_text", wantOK: true,
		},
		{
			name:     "only ocr",
			yaml:     "ocr:\n  full_text: raw ocr\n",
			wantText: "raw ocr", wantRule: "ocr.full_text", wantOK: true,
		},
		{
			name: "translation before ocr",
			yaml: `
translation:
  translated_text: translated
ocr:
  full_text: raw ocr
`,
			wantText: "translated", wantRule: "translation.translated_text", wantOK: true,
		},
		{
			name: "text_processing translated after translation block",
			yaml: `
text_processing:
  translated_text: tp translated
ocr:
  full_text: raw ocr
`,
			wantText: "tp translated", wantRule: "text_processing.translated_text", wantOK: true,
		},
		{
			name: "empty corrected falls through",
			yaml: `
text_processing:
  corrected_text: "   "
ocr:
  full_text: raw ocr
`,
			wantText: "raw ocr", wantRule: "ocr.full_text", wantOK: true,
		},
		{
			name:     "top level full_text",
			yaml:     "full_text: top\n",
			wantText: "top", wantRule: "full_text", wantOK: true,
		},
		{
			name:   "non-string field",
			yaml:   "ocr:\n  full_text: 42\n",
			wantOK: false,
		},
		{
			name:   "none",
			yaml:   "metadata:\n  author: someone\n",
			wantOK: false,
		},
		{
			name:   "wrong shape",
			yaml:   "- a\n- b\n",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, rule, ok := FirstMatch(CaptionRules, parse(t, tt.yaml))

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantRule, rule)
		})
	}
}

func TestRule_Apply_IntermediateNotMap(t *testing.T) {
	r := Rule{Name: "ocr.full_text", Path: []string{"ocr", "full_text"}}

	_, ok := r.Apply(parse(t, "ocr: just a string\n"))

	assert.False(t, ok)
}

// =============================================================================
// Walk
// =============================================================================

func TestWalk_LexicalAndFiltered(t *testing.T) {
	root := t.TempDir()
	writeYAML(t, root, "b/page_2.yml", "x: 1")
	writeYAML(t, root, "a/page_1.yaml", "x: 1")
	writeYAML(t, root, "a/notes.txt", "ignored")
	writeYAML(t, root, ".cache/hidden.yml", "x: 1")
	writeYAML(t, root, "a/.hidden.yml", "x: 1")
	writeYAML(t, root, "top.YML", "x: 1")

	var got []string
	for p, err := range Walk(root) {
		require.NoError(t, err)
		got = append(got, p)
	}

	assert.Equal(t, []string{"a/page_1.yaml", "b/page_2.yml", "top.YML"}, got)
}

func TestWalk_Restartable(t *testing.T) {
	root := t.TempDir()
	writeYAML(t, root, "one.yml", "x: 1")
	seq := Walk(root)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}

	assert.Equal(t, 1, count())
	writeYAML(t, root, "two.yml", "x: 1")
	assert.Equal(t, 2, count())
}

func TestWalk_EarlyBreak(t *testing.T) {
	root := t.TempDir()
	writeYAML(t, root, "a.yml", "x: 1")
	writeYAML(t, root, "b.yml", "x: 1")

	var first string
	for p := range Walk(root) {
		first = p
		break
	}

	assert.Equal(t, "a.yml", first)
}

func TestWalk_MissingRoot(t *testing.T) {
	n := 0
	for range Walk(filepath.Join(t.TempDir(), "absent")) {
		n++
	}
	assert.Zero(t, n)
}

// unreadableDirFS fails to list one directory.
type unreadableDirFS struct {
	fstest.MapFS
	dir string
}

func (f unreadableDirFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name == f.dir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrPermission}
	}
	return f.MapFS.ReadDir(name)
}

func TestWalk_UnreadableDirectoryDoesNotStopWalk(t *testing.T) {
	fsys := unreadableDirFS{
		MapFS: fstest.MapFS{
			"captions/a.yml":      {Data: []byte("full_text: a\n")},
			"captions/bad/x.yml":  {Data: []byte("full_text: x\n")},
			"captions/z/page.yml": {Data: []byte("full_text: z\n")},
		},
		dir: "captions/bad",
	}

	var (
		paths  []string
		failed []string
	)
	for p, err := range walkFS(fsys, "captions") {
		if err != nil {
			failed = append(failed, p)
			assert.ErrorIs(t, err, fs.ErrPermission)
			continue
		}
		paths = append(paths, p)
	}

	assert.Equal(t, []string{"a.yml", "z/page.yml"}, paths)
	assert.Equal(t, []string{"bad"}, failed)
}

func TestWalk_UnreadableRoot(t *testing.T) {
	fsys := unreadableDirFS{
		MapFS: fstest.MapFS{"captions/a.yml": {Data: []byte("full_text: a\n")}},
		dir:   "captions",
	}

	var errs []error
	for p, err := range walkFS(fsys, "captions") {
		assert.Empty(t, p)
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], fs.ErrPermission)
}

// =============================================================================
// Extractor
// =============================================================================

func TestExtract_UnreadableDirectoryIsSkipped(t *testing.T) {
	// Given: a caption tree where one thread directory cannot be listed
	e := New(t.TempDir(), 2, nil)
	e.fsys = unreadableDirFS{
		MapFS: fstest.MapFS{
			"captions/a.yml":        {Data: []byte("full_text: first\n")},
			"captions/locked/b.yml": {Data: []byte("full_text: hidden\n")},
			"captions/thread/c.yml": {Data: []byte("full_text: third\n")},
		},
		dir: "captions/locked",
	}

	// When: extracting captions
	res, err := e.Extract(context.Background(), document.ContentTypeCaptions)

	// Then: the readable files are extracted and the directory is a skip
	require.NoError(t, err)
	require.Len(t, res.Units, 2)
	assert.Equal(t, "first", res.Units[0].Text)
	assert.Equal(t, "third", res.Units[1].Text)

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "locked", res.Skipped[0].Path)
	assert.Equal(t, -1, res.Skipped[0].PostIndex)
	assert.ErrorIs(t, res.Skipped[0].Err, sverrors.ErrExtraction)
}

func TestExtract_UnreadableRootFails(t *testing.T) {
	e := New(t.TempDir(), 2, nil)
	e.fsys = unreadableDirFS{
		MapFS: fstest.MapFS{"captions/a.yml": {Data: []byte("full_text: a\n")}},
		dir:   "captions",
	}

	_, err := e.Extract(context.Background(), document.ContentTypeCaptions)

	assert.ErrorIs(t, err, sverrors.ErrExtraction)
}

func TestExtract_DanglingSymlinkIsSkipped(t *testing.T) {
	data := t.TempDir()
	root := filepath.Join(data, "captions")
	writeYAML(t, root, "a.yml", "full_text: kept\n")
	require.NoError(t, os.Symlink(filepath.Join(data, "gone.yml"), filepath.Join(root, "b.yml")))

	res, err := New(data, 2, nil).Extract(context.Background(), document.ContentTypeCaptions)

	require.NoError(t, err)
	require.Len(t, res.Units, 1)
	assert.Equal(t, "kept", res.Units[0].Text)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "b.yml", res.Skipped[0].Path)
	assert.Equal(t, "failed to read file", res.Skipped[0].Reason)
}

func TestExtract_Captions(t *testing.T) {
	// Given: a caption tree with good, textless and malformed files
	data := t.TempDir()
	root := filepath.Join(data, "captions")
	writeYAML(t, root, "thread_1/img_01.yml", "text_processing:\n  corrected_text: missing girl\nocr:\n  full_text: m1ss1ng g1rl\n")
	writeYAML(t, root, "thread_1/img_02.yml", "ocr:\n  full_text: last seen downtown\n")
	writeYAML(t, root, "thread_1/img_03.yml", "metadata:\n  width: 100\n")
	writeYAML(t, root, "thread_2/broken.yml", "ocr: [unclosed\n")
	writeYAML(t, root, "thread_2/empty.yml", "")

	e := New(data, 3, nil)

	// When: extracting captions
	res, err := e.Extract(context.Background(), document.ContentTypeCaptions)

	// Then: two units, three skips, every file hashed
	require.NoError(t, err)
	require.Len(t, res.Units, 2)
	assert.Len(t, res.Files, 5)

	u := res.Units[0]
	assert.Equal(t, "thread_1/img_01.yml", u.RelPath)
	assert.Equal(t, "missing girl", u.Text)
	assert.Equal(t, "text_processing.corrected_text", u.Rule)
	assert.Equal(t, "thread_1", u.ThreadID)
	assert.Equal(t, "img_01.yml", u.Page)
	assert.Len(t, u.SourceHash, 64)
	assert.Equal(t, "last seen downtown", res.Units[1].Text)

	require.Len(t, res.Skipped, 3)
	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[s.Path] = s.Reason
		assert.Equal(t, -1, s.PostIndex)
		assert.ErrorIs(t, s.Err, sverrors.ErrExtraction)
	}
	assert.Equal(t, "no caption text field", reasons["thread_1/img_03.yml"])
	assert.Equal(t, "malformed YAML", reasons["thread_2/broken.yml"])
	assert.Equal(t, "empty document", reasons["thread_2/empty.yml"])
}

func TestExtract_StoriesPosts(t *testing.T) {
	data := t.TempDir()
	root := filepath.Join(data, "stories")
	writeYAML(t, root, "thread_9/page_2.yml", `
title: ignored when posts exist
posts:
  - "plain string post"
  - content: content post
  - text: text post
  - body: body post
  - author: nobody
  - "   "
`)

	res, err := New(data, 2, nil).Extract(context.Background(), document.ContentTypeStories)

	require.NoError(t, err)
	require.Len(t, res.Units, 4)
	texts := []string{}
	for _, u := range res.Units {
		texts = append(texts, u.Text)
		assert.True(t, u.HasPost)
		assert.Equal(t, 2, u.PageNumber)
		assert.Equal(t, "thread_9", u.ThreadID)
	}
	assert.Equal(t, []string{"plain string post", "content post", "text post", "body post"}, texts)
	assert.Equal(t, []int{0, 1, 2, 3}, []int{res.Units[0].SubIndex, res.Units[1].SubIndex, res.Units[2].SubIndex, res.Units[3].SubIndex})

	require.Len(t, res.Skipped, 2)
	assert.Equal(t, 4, res.Skipped[0].PostIndex)
	assert.Equal(t, 5, res.Skipped[1].PostIndex)
}

func TestExtract_StoriesPageFallback(t *testing.T) {
	data := t.TempDir()
	root := filepath.Join(data, "stories")
	writeYAML(t, root, "page_1.yml", `
title: First page
sections:
  - heading: Where
    detail: Near the station
  - 12
meta:
  views: 40
`)

	res, err := New(data, 1, nil).Extract(context.Background(), document.ContentTypeStories)

	require.NoError(t, err)
	require.Len(t, res.Units, 1)
	u := res.Units[0]
	assert.Equal(t, "First page\nWhere\nNear the station", u.Text)
	assert.False(t, u.HasPost)
	assert.Equal(t, "page_1", u.ThreadID)
	assert.Equal(t, "page.strings", u.Rule)
}

func TestExtract_MissingRoot(t *testing.T) {
	res, err := New(t.TempDir(), 2, nil).Extract(context.Background(), document.ContentTypeStories)

	require.NoError(t, err)
	assert.Empty(t, res.Units)
	assert.Empty(t, res.Skipped)
}

func TestExtract_DeterministicOrder(t *testing.T) {
	data := t.TempDir()
	root := filepath.Join(data, "captions")
	for _, name := range []string{"c.yml", "a.yml", "b.yml", "d/e.yml"} {
		writeYAML(t, root, name, "full_text: "+name+"\n")
	}

	for i := 0; i < 5; i++ {
		res, err := New(data, 4, nil).Extract(context.Background(), document.ContentTypeCaptions)
		require.NoError(t, err)

		var paths []string
		for _, u := range res.Units {
			paths = append(paths, u.RelPath)
		}
		assert.Equal(t, []string{"a.yml", "b.yml", "c.yml", "d/e.yml"}, paths)
	}
}

func TestExtract_SameBytesSameHash(t *testing.T) {
	data := t.TempDir()
	root := filepath.Join(data, "captions")
	writeYAML(t, root, "x.yml", "full_text: same\n")
	writeYAML(t, root, "y.yml", "full_text: same\n")

	res, err := New(data, 2, nil).Extract(context.Background(), document.ContentTypeCaptions)

	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, res.Files[0].Hash, res.Files[1].Hash)
}

func TestExtract_Cancelled(t *testing.T) {
	data := t.TempDir()
	writeYAML(t, filepath.Join(data, "captions"), "a.yml", "full_text: a\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(data, 1, nil).Extract(ctx, document.ContentTypeCaptions)

	assert.ErrorIs(t, err, context.Canceled)
}
