// Package chunk splits plain text into word-bounded chunks.
// Words are whitespace-separated tokens (words ≈ tokens); line breaks inside
// a chunk are preserved so outlines keep their structure.
package chunk

import "strings"

// Chunker splits text into chunks of at most ChunkSize words.
type Chunker struct {
	ChunkSize int // number of words per chunk
}

// New creates a Chunker with the given chunk size.
// Defaults to 512 if chunkSize <= 0.
func New(chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	return &Chunker{ChunkSize: chunkSize}
}

// Chunk splits the input text into chunks of at most ChunkSize words.
// Blank lines are dropped; a line that straddles a boundary is split
// between the two chunks.
func (c *Chunker) Chunk(text string) []string {
	var chunks []string
	var lines []string
	count := 0

	flush := func() {
		if len(lines) > 0 {
			chunks = append(chunks, strings.Join(lines, "\n"))
		}
		lines, count = nil, 0
	}

	for _, line := range strings.Split(text, "\n") {
		words := strings.Fields(line)
		for len(words) > 0 {
			room := c.ChunkSize - count
			if room == 0 {
				flush()
				room = c.ChunkSize
			}
			take := min(room, len(words))
			lines = append(lines, strings.Join(words[:take], " "))
			count += take
			words = words[take:]
		}
	}
	flush()
	return chunks
}

// Head returns the first chunk of text and whether anything was left out.
func (c *Chunker) Head(text string) (string, bool) {
	chunks := c.Chunk(text)
	if len(chunks) == 0 {
		return "", false
	}
	return chunks[0], len(chunks) > 1
}
