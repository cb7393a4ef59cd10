package ingest

import (
	"strings"

	"github.com/banglarag/banglarag/internal/transcribe"
)

// Chunk sizes are in runes, not bytes. Bangla text packs fewer words into
// the same rune count, so its chunks are smaller to keep retrieval granular.
const (
	defaultEnglishChunkSize = 1000
	defaultBanglaChunkSize  = 800
	defaultChunkOverlap     = 100
)

// Chunker splits page text into overlapping retrieval chunks. Splitting is
// deterministic: the same text always yields the same chunks, which keeps
// chunk IDs stable across re-ingestion runs.
type Chunker struct {
	// EnglishSize is the target chunk length in runes for English text.
	EnglishSize int

	// BanglaSize is the target chunk length in runes for Bangla text.
	BanglaSize int

	// Overlap is the number of runes repeated between adjacent chunks.
	Overlap int
}

// DefaultChunker returns the standard sizes: 1000 runes English, 800 Bangla,
// 100 overlap.
func DefaultChunker() Chunker {
	return Chunker{
		EnglishSize: defaultEnglishChunkSize,
		BanglaSize:  defaultBanglaChunkSize,
		Overlap:     defaultChunkOverlap,
	}
}

// Chunk splits text into chunks of at most the language's target size,
// preferring to cut on paragraph, line, or sentence boundaries. Adjacent
// chunks overlap so that a sentence straddling a cut is retrievable from
// both sides. Empty or whitespace-only text yields no chunks.
func (c Chunker) Chunk(text, lang string) []string {
	size := c.EnglishSize
	if lang == transcribe.LangBangla {
		size = c.BanglaSize
	}
	if size <= 0 {
		size = defaultEnglishChunkSize
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}
		cut := cutPoint(runes, start, end)
		if chunk := strings.TrimSpace(string(runes[start:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// cutPoint finds the best split position in (start, end], searching backward
// no further than half the chunk so a pathological run of unbroken text
// still advances. Boundary preference: blank line, newline, sentence end,
// word break.
func cutPoint(runes []rune, start, end int) int {
	floor := start + (end-start)/2

	for i := end; i > floor; i-- {
		if runes[i-1] == '\n' && i < len(runes) && runes[i] == '\n' {
			return i
		}
	}
	for i := end; i > floor; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := end; i > floor; i-- {
		if isSentenceEnd(runes[i-1]) && i < len(runes) && runes[i] == ' ' {
			return i
		}
	}
	for i := end; i > floor; i-- {
		if runes[i-1] == ' ' {
			return i
		}
	}
	return end
}

// isSentenceEnd reports sentence-terminal punctuation, including the Bangla
// danda.
func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '।': // U+0964 is the danda
		return true
	}
	return false
}
