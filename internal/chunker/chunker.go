package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

// Chunk is a contiguous window of a document's normalized text together with
// its starting offset in that normalized text. Offsets are only meaningful
// relative to the output of Normalize, not the original file.
type Chunk struct {
	Text  string
	Start int
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize collapses every run of whitespace to a single space and trims
// both ends. Chunk offsets refer to this normalized form.
func Normalize(text string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
}

// Split normalizes text and cuts it into overlapping windows of chunkSize
// characters. Consecutive windows advance by chunkSize-overlap, so each chunk
// shares its trailing overlap characters with the next chunk's head. Empty
// input yields no chunks.
//
// overlap >= chunkSize would make the advance non-positive and loop forever,
// so it is rejected as a configuration error.
func Split(text string, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, chunkSize)
	}

	text = Normalize(text)
	if text == "" {
		return nil, nil
	}

	// Once a window reaches the end of the text, every later window would
	// fall entirely inside this window's overlap tail, so stop there. This
	// yields ceil((len-overlap)/(chunkSize-overlap)) chunks.
	step := chunkSize - overlap
	var chunks []Chunk
	for start := 0; ; start += step {
		end := start + chunkSize
		if end >= len(text) {
			chunks = append(chunks, Chunk{Text: text[start:], Start: start})
			break
		}
		chunks = append(chunks, Chunk{Text: text[start:end], Start: start})
	}
	return chunks, nil
}

// WholeDocument bypasses windowing and returns the full normalized text as a
// single chunk at offset 0, for callers that want one embedding per document.
// Empty input yields no chunks.
func WholeDocument(text string) []Chunk {
	text = Normalize(text)
	if text == "" {
		return nil
	}
	return []Chunk{{Text: text, Start: 0}}
}
