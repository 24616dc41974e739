// Package testutil holds test doubles for the model clients.
package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
)

const embeddingDim = 64

// FakeEmbedder produces deterministic bag-of-words vectors, so texts that
// share words are close to each other.
type FakeEmbedder struct {
	// EmbedDocumentsFunc replaces the default behavior if set.
	EmbedDocumentsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	mu        sync.Mutex
	callCount int
}

var _ embeddings.Embedder = (*FakeEmbedder)(nil)

func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{}
}

func (e *FakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.count()
	if e.EmbedDocumentsFunc != nil {
		return e.EmbedDocumentsFunc(ctx, texts)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = Vector(text)
	}
	return vectors, nil
}

func (e *FakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.count()
	return Vector(text), nil
}

// CallCount returns the number of embedder calls so far.
func (e *FakeEmbedder) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callCount
}

func (e *FakeEmbedder) count() {
	e.mu.Lock()
	e.callCount++
	e.mu.Unlock()
}

// Vector hashes each lower-cased word of text into one of the dimensions.
// The last dimension is a small constant so no vector is all zeros.
func Vector(text string) []float32 {
	v := make([]float32, embeddingDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%(embeddingDim-1)]++
	}
	v[embeddingDim-1] = 0.01
	return v
}
