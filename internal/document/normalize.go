package document

import (
	"regexp"
	"strings"

	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	excessNewlines  = regexp.MustCompile(`\n{3,}`)
)

// CleanText trims the text, collapses runs of spaces and tabs, normalizes
// line endings and squeezes three or more newlines to two.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = horizontalSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")

	s = excessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Normalize builds the Document for u. A unit whose text is empty after
// cleanup is rejected with an extraction error.
func Normalize(u Unit) (Document, error) {
	text := CleanText(u.Text)
	if text == "" {
		return Document{}, sverrors.ExtractionError(u.RelPath, "text is empty after cleanup", nil)
	}

	meta := map[string]any{
		MetaType:       u.ContentType.Kind(),
		MetaThreadID:   u.ThreadID,
		MetaFilePath:   u.RelPath,
		MetaPage:       u.Page,
		MetaSourceHash: u.SourceHash,
	}
	if u.PageNumber > 0 {
		meta[MetaPageNumber] = u.PageNumber
	}
	if u.HasPost {
		meta[MetaPostIndex] = u.SubIndex
	}
	if u.Rule != "" {
		meta[MetaRule] = u.Rule
	}

	return Document{
		ID:          NewID(u.ContentType, u.RelPath, u.SubIndex),
		ContentType: u.ContentType,
		Text:        text,
		Metadata:    meta,
		SourceHash:  u.SourceHash,
		SourcePath:  u.RelPath,
	}, nil
}
