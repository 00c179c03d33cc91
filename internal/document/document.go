// Package document turns extracted text units into canonical Documents with
// deterministic identifiers.
//
// Everything here is pure: no I/O and no shared state, so the extractor's
// worker pool can call it concurrently.
package document

import (
	"fmt"

	"github.com/google/uuid"
)

// ContentType identifies which collection a document belongs to.
type ContentType string

const (
	ContentTypeCaptions ContentType = "captions"
	ContentTypeStories  ContentType = "stories"
)

// ContentTypes lists the content types in indexing order.
var ContentTypes = []ContentType{ContentTypeCaptions, ContentTypeStories}

// ParseContentType validates s as a content type.
func ParseContentType(s string) (ContentType, error) {
	switch ContentType(s) {
	case ContentTypeCaptions, ContentTypeStories:
		return ContentType(s), nil
	default:
		return "", fmt.Errorf("unknown content type %q (want captions or stories)", s)
	}
}

// Kind returns the singular label stored in the payload ("caption" or "story").
func (c ContentType) Kind() string {
	switch c {
	case ContentTypeCaptions:
		return "caption"
	case ContentTypeStories:
		return "story"
	default:
		return string(c)
	}
}

// Metadata keys written into every payload.
const (
	MetaType        = "type"
	MetaThreadID    = "thread_id"
	MetaFilePath    = "file_path"
	MetaPage        = "page"
	MetaPageNumber  = "page_number"
	MetaPostIndex   = "post_index"
	MetaRule        = "rule"
	MetaSourceHash  = "source_hash"
	MetaParentID    = "parent_id"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
)

// Unit is one piece of raw text pulled out of a source file, before cleanup.
type Unit struct {
	ContentType ContentType
	RelPath     string // relative to the content root, slash separated
	SubIndex    int    // post index within a story page, 0 for captions
	Text        string
	Rule        string // extraction rule that produced Text
	ThreadID    string
	Page        string // file name of the page
	PageNumber  int    // parsed from page_<n>, 0 when absent
	HasPost     bool   // SubIndex refers to an entry of a posts list
	SourceHash  string // SHA-256 of the file bytes
}

// Document is the unit of indexing: one point in a collection.
type Document struct {
	ID          string
	ContentType ContentType
	Text        string
	Metadata    map[string]any
	SourceHash  string
	SourcePath  string // Unit.RelPath, used for change tracking
}

// Payload returns the vector store payload: {text, metadata}.
func (d Document) Payload() map[string]any {
	return map[string]any{
		"text":     d.Text,
		"metadata": d.Metadata,
	}
}

// NewID returns the deterministic point id for a source unit. The same
// (content type, path, sub-index) always yields the same UUID, so
// re-indexing overwrites instead of duplicating.
func NewID(contentType ContentType, relPath string, subIndex int) string {
	name := fmt.Sprintf("%s:%s#%d", contentType, relPath, subIndex)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
}

// ChunkID returns the deterministic id of chunk i of parentID.
func ChunkID(parentID string, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fmt.Sprintf("%s_chunk_%d", parentID, i))).String()
}
