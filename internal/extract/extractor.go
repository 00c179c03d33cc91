// Package extract walks the caption and story trees and pulls text units out
// of loosely structured YAML files.
//
// A file that cannot be parsed, or a unit with no
// recognizable text, is recorded as a skip and the walk continues.
package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/storyvec/internal/document"
	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
)

var pageNumberPattern = regexp.MustCompile(`(?i)page[_-]?(\d+)`)

// Skip records a file or unit that produced no document.
type Skip struct {
	Path      string `json:"path"`
	PostIndex int    `json:"post_index"` // -1 for whole-file skips
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// File is one source file seen during a walk.
type File struct {
	RelPath string
	Hash    string
}

// Result is everything a single extraction run produced.
type Result struct {
	ContentType document.ContentType
	Files       []File
	Units       []document.Unit
	Skipped     []Skip
}

// Extractor reads the content roots under a data directory.
type Extractor struct {
	dataDir string
	fsys    fs.FS
	workers int
	logger  *slog.Logger
}

// New creates an Extractor. workers bounds the number of files parsed at once.
func New(dataDir string, workers int, logger *slog.Logger) *Extractor {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{dataDir: dataDir, fsys: os.DirFS(dataDir), workers: workers, logger: logger}
}

// Root returns the content root for a content type.
func (e *Extractor) Root(ct document.ContentType) string {
	return filepath.Join(e.dataDir, string(ct))
}

// Extract walks the content root for ct and returns every unit found.
// Output is ordered by path, then post index.
func (e *Extractor) Extract(ctx context.Context, ct document.ContentType) (*Result, error) {
	root := e.Root(ct)

	var (
		paths     []string
		walkSkips []Skip
	)
	for relPath, err := range walkFS(e.fsys, string(ct)) {
		switch {
		case err == nil:
			paths = append(paths, relPath)
		case relPath == "":
			return nil, sverrors.ExtractionError(root, "failed to walk content root", err)
		default:
			walkSkips = append(walkSkips, fileSkip(relPath, "unreadable path", err))
		}
	}

	type fileResult struct {
		file    File
		units   []document.Unit
		skipped []Skip
	}
	results := make([]fileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, relPath := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hash, units, skipped := e.extractFile(ct, relPath)
			results[i] = fileResult{File{RelPath: relPath, Hash: hash}, units, skipped}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{ContentType: ct, Skipped: walkSkips}
	for _, r := range results {
		res.Files = append(res.Files, r.file)
		res.Units = append(res.Units, r.units...)
		res.Skipped = append(res.Skipped, r.skipped...)
	}

	for _, s := range res.Skipped {
		e.logger.Debug("extraction_skipped",
			slog.String("content_type", string(ct)),
			slog.String("path", s.Path),
			slog.Int("post_index", s.PostIndex),
			slog.String("reason", s.Reason))
	}
	e.logger.Info("extraction_complete",
		slog.String("content_type", string(ct)),
		slog.Int("files", len(res.Files)),
		slog.Int("units", len(res.Units)),
		slog.Int("skipped", len(res.Skipped)))

	return res, nil
}

// extractFile never fails: problems come back as skips.
func (e *Extractor) extractFile(ct document.ContentType, relPath string) (string, []document.Unit, []Skip) {
	data, err := fs.ReadFile(e.fsys, path.Join(string(ct), relPath))
	if err != nil {
		return "", nil, []Skip{fileSkip(relPath, "failed to read file", err)}
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return hash, nil, []Skip{fileSkip(relPath, "malformed YAML", err)}
	}
	if node.Kind == 0 || len(node.Content) == 0 || len(bytes.TrimSpace(data)) == 0 {
		return hash, nil, []Skip{fileSkip(relPath, "empty document", nil)}
	}
	body := node.Content[0]

	var doc any
	if err := body.Decode(&doc); err != nil {
		return hash, nil, []Skip{fileSkip(relPath, "malformed YAML", err)}
	}

	base := unitBase(ct, relPath, hash)

	var (
		units   []document.Unit
		skipped []Skip
	)
	switch ct {
	case document.ContentTypeCaptions:
		units, skipped = extractCaption(base, doc)
	case document.ContentTypeStories:
		units, skipped = extractStory(base, doc, body)
	default:
		skipped = []Skip{fileSkip(relPath, fmt.Sprintf("unknown content type %q", ct), nil)}
	}
	return hash, units, skipped
}

func extractCaption(base document.Unit, doc any) ([]document.Unit, []Skip) {
	text, rule, ok := FirstMatch(CaptionRules, doc)
	if !ok {
		return nil, []Skip{fileSkip(base.RelPath, "no caption text field", nil)}
	}

	u := base
	u.Text = text
	u.Rule = rule
	return []document.Unit{u}, nil
}

func extractStory(base document.Unit, doc any, body *yaml.Node) ([]document.Unit, []Skip) {
	if m, ok := doc.(map[string]any); ok {
		if posts, ok := m["posts"].([]any); ok {
			return extractPosts(base, posts)
		}
	}

	// No posts list: the whole page is one unit.
	leaves := stringLeaves(body, nil)
	if len(leaves) == 0 {
		return nil, []Skip{fileSkip(base.RelPath, "no story text", nil)}
	}
	u := base
	u.Text = strings.Join(leaves, "\n")
	u.Rule = "page.strings"
	return []document.Unit{u}, nil
}

func extractPosts(base document.Unit, posts []any) ([]document.Unit, []Skip) {
	var (
		units   []document.Unit
		skipped []Skip
	)
	for i, post := range posts {
		var text, rule string
		switch p := post.(type) {
		case string:
			text, rule = strings.TrimSpace(p), "posts.string"
		default:
			text, rule, _ = FirstMatch(PostRules, p)
		}
		if text == "" {
			skipped = append(skipped, Skip{
				Path:      base.RelPath,
				PostIndex: i,
				Reason:    "post has no text",
				Err:       sverrors.ExtractionError(base.RelPath, "post has no text", nil),
			})
			continue
		}

		u := base
		u.SubIndex = i
		u.HasPost = true
		u.Text = text
		u.Rule = rule
		units = append(units, u)
	}
	return units, skipped
}

// stringLeaves collects non-empty string scalars in document order.
func stringLeaves(n *yaml.Node, out []string) []string {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!str" {
			if s := strings.TrimSpace(n.Value); s != "" {
				out = append(out, s)
			}
		}
	case yaml.MappingNode:
		// Values only; keys are field names.
		for i := 1; i < len(n.Content); i += 2 {
			out = stringLeaves(n.Content[i], out)
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, c := range n.Content {
			out = stringLeaves(c, out)
		}
	case yaml.AliasNode:
		if n.Alias != nil {
			out = stringLeaves(n.Alias, out)
		}
	}
	return out
}

func unitBase(ct document.ContentType, relPath, hash string) document.Unit {
	page := path.Base(relPath)
	thread := strings.TrimSuffix(page, path.Ext(page))
	if dir, _, found := strings.Cut(relPath, "/"); found {
		thread = dir
	}

	var pageNumber int
	if m := pageNumberPattern.FindStringSubmatch(page); m != nil {
		pageNumber, _ = strconv.Atoi(m[1])
	}

	return document.Unit{
		ContentType: ct,
		RelPath:     relPath,
		ThreadID:    thread,
		Page:        page,
		PageNumber:  pageNumber,
		SourceHash:  hash,
	}
}

func fileSkip(relPath, reason string, cause error) Skip {
	return Skip{
		Path:      relPath,
		PostIndex: -1,
		Reason:    reason,
		Err:       sverrors.ExtractionError(relPath, reason, cause),
	}
}
