package extract

import (
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// IsYAML reports whether path has a YAML extension.
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return true
	default:
		return false
	}
}

// Walk yields the slash-separated paths, relative to root, of every YAML
// file under root in lexical order. Hidden files and directories are
// skipped. Ranging over the sequence again re-walks the tree. A missing
// root yields nothing.
//
// An entry that cannot be read is yielded with its relative path and the
// error, and the walk continues past it. An error with an empty path means
// root itself could not be read.
func Walk(root string) iter.Seq2[string, error] {
	return walkFS(os.DirFS(root), ".")
}

func walkFS(fsys fs.FS, root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if _, err := fs.Stat(fsys, root); errors.Is(err, fs.ErrNotExist) {
			return
		}

		stop := false
		err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
			relPath := relativeTo(root, p)
			if err != nil {
				if relPath == "" {
					stop = !yield("", err)
					return fs.SkipAll
				}
				if !yield(relPath, err) {
					stop = true
					return fs.SkipAll
				}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if relPath == "" {
				return nil
			}

			if strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !IsYAML(p) {
				return nil
			}

			if !yield(relPath, nil) {
				stop = true
				return fs.SkipAll
			}
			return nil
		})
		if err != nil && !stop {
			yield("", err)
		}
	}
}

// relativeTo returns p relative to root, or "" for root itself.
func relativeTo(root, p string) string {
	if p == root {
		return ""
	}
	if root == "." {
		return p
	}
	return strings.TrimPrefix(p, root+"/")
}
