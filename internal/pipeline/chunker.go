package pipeline

import "strings"

// DocumentChunk is one window of a chunked document. Chunks are ordered by
// ascending start offset and adjacent chunks share an overlap region so a
// scorer never sees a sentence cut in half at both sides of a boundary.
type DocumentChunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// boundaryWindow is how far back from a raw cut the chunker searches for a
// sentence ending or paragraph break.
const boundaryWindow = 1000

// Chunk splits text into overlapping chunks of at most chunkSize characters.
// A chunk prefers to end at the rightmost sentence-ending punctuation or blank
// line within the trailing search window; when none is found the raw offset is
// used. Each subsequent chunk starts overlap characters before the previous
// end, except the final chunk. Whitespace-only windows are dropped.
func Chunk(text string, chunkSize, overlap int) []DocumentChunk {
	if chunkSize <= 0 {
		return nil
	}
	if len(text) <= chunkSize {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []DocumentChunk{{Index: 0, Text: text, Start: 0, End: len(text)}}
	}

	var chunks []DocumentChunk
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			searchStart := end - boundaryWindow
			if searchStart < start {
				searchStart = start
			}
			if boundary := lastBoundary(text, searchStart, end); boundary > searchStart {
				end = boundary + 1
			}
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, DocumentChunk{Index: len(chunks), Text: chunk, Start: start, End: end})
		}

		next := end
		if end < len(text) {
			next = end - overlap
		}
		if next <= start {
			// Degenerate overlap configuration; advance to keep termination.
			next = end
		}
		start = next
	}
	return chunks
}

// lastBoundary returns the rightmost sentence-ending punctuation or blank-line
// index in text[from:to], or -1.
func lastBoundary(text string, from, to int) int {
	window := text[from:to]
	best := -1
	for _, marker := range []string{".", "!", "?", "\n\n"} {
		if idx := strings.LastIndex(window, marker); idx > best {
			best = idx
		}
	}
	if best < 0 {
		return -1
	}
	return from + best
}
