package document

import "strings"

// defaultChunkSize is the target chunk length in characters. Chunks stay
// small enough to embed individually while keeping whole paragraphs
// together where possible.
const defaultChunkSize = 1000

// Chunker splits extracted text into embedding-sized pieces along
// paragraph boundaries.
type Chunker struct {
	// MaxChars caps the chunk length. Zero means defaultChunkSize.
	MaxChars int
}

// Split breaks text into chunks of at most MaxChars, preferring paragraph
// boundaries and falling back to hard splits for oversized paragraphs.
// Whitespace-only input yields no chunks.
func (c Chunker) Split(text string) []string {
	max := c.MaxChars
	if max <= 0 {
		max = defaultChunkSize
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		// Hard-split paragraphs that are too large on their own.
		for len(para) > max {
			flush()
			cut := strings.LastIndex(para[:max], " ")
			if cut <= 0 {
				cut = max
			}
			chunks = append(chunks, strings.TrimSpace(para[:cut]))
			para = strings.TrimSpace(para[cut:])
		}
		if para == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(para)+2 > max {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}
