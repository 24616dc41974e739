package parser

import (
	"errors"
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"pdf-rag/internal/models"
)

var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// CharacterSplitter cuts text into windows of at most ChunkSize runes.
// Consecutive chunks share exactly ChunkOverlap runes, so the first chunk
// followed by every later chunk minus its overlap prefix is the input text.
// A window may end early on whitespace found in its last tenth.
type CharacterSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

var _ textsplitter.TextSplitter = CharacterSplitter{}

func NewCharacterSplitter(size, overlap int) CharacterSplitter {
	if overlap < 0 {
		overlap = 0
	}
	if size > 0 && overlap >= size {
		overlap = size / 2
	}
	return CharacterSplitter{ChunkSize: size, ChunkOverlap: overlap}
}

func (s CharacterSplitter) SplitText(text string) ([]string, error) {
	if s.ChunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	s = NewCharacterSplitter(s.ChunkSize, s.ChunkOverlap)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	n := len(runes)
	if n <= s.ChunkSize {
		return []string{text}, nil
	}

	lookBack := s.ChunkSize / 10
	var chunks []string
	start := 0
	for {
		end := min(start+s.ChunkSize, n)
		if end < n {
			// end must stay past start+overlap or the window never advances
			for i := end - 1; i >= end-lookBack && i > start+s.ChunkOverlap; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i + 1
					break
				}
			}
		}
		chunks = append(chunks, string(runes[start:end]))
		if end >= n {
			break
		}
		start = end - s.ChunkOverlap
	}
	return chunks, nil
}

// Split breaks every page into chunks. Each chunk keeps its page metadata
// and gets a 1-based MetaChunk index counted within that page.
func Split(docs []schema.Document, splitter textsplitter.TextSplitter) ([]schema.Document, error) {
	var out []schema.Document
	for _, doc := range docs {
		chunks, err := textsplitter.CreateDocuments(splitter, []string{doc.PageContent}, []map[string]any{doc.Metadata})
		if err != nil {
			return nil, err
		}
		// CreateDocuments hands every chunk its own metadata copy
		for i := range chunks {
			chunks[i].Metadata[models.MetaChunk] = i + 1
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// Reassemble undoes CharacterSplitter for chunks of a single text.
func Reassemble(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		r := []rune(c)
		if overlap < len(r) {
			b.WriteString(string(r[overlap:]))
		}
	}
	return b.String()
}
