package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"pdf-rag/internal/config"
)

func TestNewEmbedder(t *testing.T) {
	t.Run("openai without key fails fast", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := NewEmbedder(config.LLMConfig{Provider: "openai", Model: "text-embedding-ada-002"})
		assert.ErrorIs(t, err, openai.ErrMissingToken)
	})

	t.Run("openai with key", func(t *testing.T) {
		e, err := NewEmbedder(config.LLMConfig{Provider: "openai", Key: "Bearer sk-test", Model: "text-embedding-ada-002"})
		require.NoError(t, err)
		assert.NotNil(t, e)
	})

	t.Run("ollama", func(t *testing.T) {
		e, err := NewEmbedder(config.LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "nomic-embed-text"})
		require.NoError(t, err)
		assert.NotNil(t, e)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewEmbedder(config.LLMConfig{Provider: "cohere"})
		assert.ErrorContains(t, err, "unknown embedding provider")
	})
}

type stubEmbedder struct {
	vectors [][]float32
	err     error
	calls   [][]string
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	s.calls = append(s.calls, texts)
	return s.vectors, s.err
}

func (s *stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("not used")
}

var _ embeddings.Embedder = (*stubEmbedder)(nil)

func TestEmbedDocuments(t *testing.T) {
	ctx := context.Background()
	docs := []schema.Document{{PageContent: "one"}, {PageContent: "two"}}

	t.Run("no documents skips the embedder", func(t *testing.T) {
		s := &stubEmbedder{}
		vectors, err := EmbedDocuments(ctx, s, nil)
		require.NoError(t, err)
		assert.Nil(t, vectors)
		assert.Empty(t, s.calls)
	})

	t.Run("page contents are embedded in order", func(t *testing.T) {
		s := &stubEmbedder{vectors: [][]float32{{1}, {2}}}
		vectors, err := EmbedDocuments(ctx, s, docs)
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1}, {2}}, vectors)
		assert.Equal(t, [][]string{{"one", "two"}}, s.calls)
	})

	t.Run("count mismatch", func(t *testing.T) {
		s := &stubEmbedder{vectors: [][]float32{{1}}}
		_, err := EmbedDocuments(ctx, s, docs)
		assert.Error(t, err)
	})

	t.Run("embedder error is wrapped", func(t *testing.T) {
		boom := errors.New("rate limited")
		_, err := EmbedDocuments(ctx, &stubEmbedder{err: boom}, docs)
		assert.ErrorIs(t, err, boom)
	})
}
