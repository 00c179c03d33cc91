package document

import (
	"maps"
	"strings"
)

// tokensPerWord approximates subword tokens for English text.
const tokensPerWord = 1.33

// EstimateTokens returns a rough token count for text.
func EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * tokensPerWord)
}

// Chunk splits doc into overlapping word windows when its estimated token
// count exceeds maxTokens. Short documents are returned unchanged, keeping
// their unit id. A maxTokens <= 0 disables chunking.
func Chunk(doc Document, maxTokens, overlap int) []Document {
	if maxTokens <= 0 || EstimateTokens(doc.Text) <= maxTokens {
		return []Document{doc}
	}

	window := max(int(float64(maxTokens)/tokensPerWord), 1)
	step := window - int(float64(overlap)/tokensPerWord)
	if step < 1 {
		step = 1
	}

	words := strings.Fields(doc.Text)
	var texts []string
	for start := 0; start < len(words); start += step {
		end := min(start+window, len(words))
		texts = append(texts, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}

	chunks := make([]Document, len(texts))
	for i, text := range texts {
		meta := maps.Clone(doc.Metadata)
		if meta == nil {
			meta = make(map[string]any, 3)
		}
		meta[MetaParentID] = doc.ID
		meta[MetaChunkIndex] = i
		meta[MetaTotalChunks] = len(texts)

		chunks[i] = Document{
			ID:          ChunkID(doc.ID, i),
			ContentType: doc.ContentType,
			Text:        text,
			Metadata:    meta,
			SourceHash:  doc.SourceHash,
			SourcePath:  doc.SourcePath,
		}
	}
	return chunks
}
