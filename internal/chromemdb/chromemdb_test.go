package chromemdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"pdf-rag/internal/models"
	"pdf-rag/internal/testutil"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newManager(t *testing.T, inMemory bool) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager(t.TempDir(), "pdf_collection", testutil.NewFakeEmbedder(), inMemory, testKey)
	require.NoError(t, err)
	return m
}

func chunks() []schema.Document {
	return []schema.Document{
		{PageContent: "apples grow on trees in the orchard", Metadata: map[string]any{models.MetaSource: "fruit.pdf", models.MetaPage: 1, models.MetaChunk: 0}},
		{PageContent: "rust forms on iron exposed to water", Metadata: map[string]any{models.MetaSource: "metal.pdf", models.MetaPage: 2, models.MetaChunk: 0}},
		{PageContent: "the orchard also has pear trees", Metadata: map[string]any{models.MetaSource: "fruit.pdf", models.MetaPage: 3, models.MetaChunk: 1}},
	}
}

func TestAddDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch is a no-op", func(t *testing.T) {
		m := newManager(t, true)
		ids, err := m.AddDocuments(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.Equal(t, 0, m.Count())
	})

	t.Run("adding twice keeps duplicates", func(t *testing.T) {
		m := newManager(t, true)
		first, err := m.AddDocuments(ctx, chunks())
		require.NoError(t, err)
		second, err := m.AddDocuments(ctx, chunks())
		require.NoError(t, err)

		assert.Len(t, first, 3)
		assert.Len(t, second, 3)
		assert.NotEqual(t, first, second)
		assert.Equal(t, 6, m.Count())
	})

	t.Run("deduplicater skips documents", func(t *testing.T) {
		m := newManager(t, true)
		skipMetal := vectorstores.WithDeduplicater(func(_ context.Context, doc schema.Document) bool {
			return doc.Metadata[models.MetaSource] == "metal.pdf"
		})
		ids, err := m.AddDocuments(ctx, chunks(), skipMetal)
		require.NoError(t, err)
		assert.Len(t, ids, 2)
	})
}

func TestSimilaritySearch(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store returns nothing", func(t *testing.T) {
		m := newManager(t, true)
		docs, err := m.SimilaritySearch(ctx, "anything", 4)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("k is capped at the collection size", func(t *testing.T) {
		m := newManager(t, true)
		_, err := m.AddDocuments(ctx, chunks())
		require.NoError(t, err)

		docs, err := m.SimilaritySearch(ctx, "orchard trees", 4)
		require.NoError(t, err)
		assert.Len(t, docs, 3)
	})

	t.Run("most similar first with metadata restored", func(t *testing.T) {
		m := newManager(t, true)
		_, err := m.AddDocuments(ctx, chunks())
		require.NoError(t, err)

		docs, err := m.SimilaritySearch(ctx, "iron rust water", 2)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "rust forms on iron exposed to water", docs[0].PageContent)
		assert.Equal(t, "metal.pdf", docs[0].Metadata[models.MetaSource])
		assert.Equal(t, 2, docs[0].Metadata[models.MetaPage])
		assert.GreaterOrEqual(t, docs[0].Score, docs[1].Score)
	})

	t.Run("score threshold filters weak matches", func(t *testing.T) {
		m := newManager(t, true)
		_, err := m.AddDocuments(ctx, chunks())
		require.NoError(t, err)

		docs, err := m.SimilaritySearch(ctx, "iron rust water", 3, vectorstores.WithScoreThreshold(0.5))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "metal.pdf", docs[0].Metadata[models.MetaSource])
	})

	t.Run("metadata filter", func(t *testing.T) {
		m := newManager(t, true)
		_, err := m.AddDocuments(ctx, chunks())
		require.NoError(t, err)

		docs, err := m.SimilaritySearch(ctx, "iron rust water", 1,
			vectorstores.WithFilters(map[string]any{models.MetaSource: "fruit.pdf"}))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "fruit.pdf", docs[0].Metadata[models.MetaSource])
	})

	t.Run("non-positive k", func(t *testing.T) {
		m := newManager(t, true)
		_, err := m.SimilaritySearch(ctx, "q", 0)
		assert.Error(t, err)
	})
}

func TestDeleteCollection(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, false)
	_, err := m.AddDocuments(ctx, chunks())
	require.NoError(t, err)

	require.NoError(t, m.DeleteCollection())
	assert.Equal(t, 0, m.Count())

	// still usable afterwards
	_, err = m.AddDocuments(ctx, chunks()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m, err := NewVectorDBManager(dir, "pdf_collection", testutil.NewFakeEmbedder(), false, "")
	require.NoError(t, err)
	_, err = m.AddDocuments(ctx, chunks())
	require.NoError(t, err)

	reopened, err := NewVectorDBManager(dir, "pdf_collection", testutil.NewFakeEmbedder(), false, "")
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.Count())
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		dir := t.TempDir()
		m, err := NewVectorDBManager(dir, "pdf_collection", testutil.NewFakeEmbedder(), true, testKey)
		require.NoError(t, err)
		_, err = m.AddDocuments(ctx, chunks())
		require.NoError(t, err)

		path, err := m.Export(ctx)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "pdf_collection.chromem"), path)
		assert.FileExists(t, path)

		fresh, err := NewVectorDBManager(dir, "pdf_collection", testutil.NewFakeEmbedder(), true, testKey)
		require.NoError(t, err)
		require.Equal(t, 0, fresh.Count())
		require.NoError(t, fresh.Import(ctx))
		assert.Equal(t, 3, fresh.Count())

		docs, err := fresh.SimilaritySearch(ctx, "pear", 1)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "the orchard also has pear trees", docs[0].PageContent)
	})

	t.Run("persisted store keeps only the snapshot", func(t *testing.T) {
		dir := t.TempDir()
		m, err := NewVectorDBManager(dir, "pdf_collection", testutil.NewFakeEmbedder(), false, testKey)
		require.NoError(t, err)
		_, err = m.AddDocuments(ctx, chunks())
		require.NoError(t, err)
		_, err = m.Export(ctx)
		require.NoError(t, err)

		_, err = m.AddDocuments(ctx, chunks()[:2])
		require.NoError(t, err)
		require.Equal(t, 5, m.Count())

		restored, err := NewVectorDBManager(dir, "pdf_collection", testutil.NewFakeEmbedder(), false, testKey)
		require.NoError(t, err)
		require.Equal(t, 5, restored.Count())
		require.NoError(t, restored.Import(ctx))
		assert.Equal(t, 3, restored.Count())

		reopened, err := NewVectorDBManager(dir, "pdf_collection", testutil.NewFakeEmbedder(), false, testKey)
		require.NoError(t, err)
		assert.Equal(t, 3, reopened.Count())

		docs, err := reopened.SimilaritySearch(ctx, "orchard", 5)
		require.NoError(t, err)
		assert.Len(t, docs, 3)
	})

	t.Run("failed import leaves the store alone", func(t *testing.T) {
		dir := t.TempDir()
		m, err := NewVectorDBManager(dir, "pdf_collection", testutil.NewFakeEmbedder(), false, testKey)
		require.NoError(t, err)
		_, err = m.AddDocuments(ctx, chunks())
		require.NoError(t, err)
		_, err = m.Export(ctx)
		require.NoError(t, err)

		wrongKey, err := NewVectorDBManager(dir, "pdf_collection", testutil.NewFakeEmbedder(), false, "fedcba9876543210fedcba9876543210")
		require.NoError(t, err)
		assert.Error(t, wrongKey.Import(ctx))
		assert.Equal(t, 3, wrongKey.Count())

		reopened, err := NewVectorDBManager(dir, "pdf_collection", testutil.NewFakeEmbedder(), false, testKey)
		require.NoError(t, err)
		assert.Equal(t, 3, reopened.Count())
	})

	t.Run("missing snapshot", func(t *testing.T) {
		m := newManager(t, false)
		_, err := m.AddDocuments(ctx, chunks())
		require.NoError(t, err)
		assert.Error(t, m.Import(ctx))
		assert.Equal(t, 3, m.Count())
	})

	t.Run("key required", func(t *testing.T) {
		m, err := NewVectorDBManager(t.TempDir(), "pdf_collection", testutil.NewFakeEmbedder(), true, "")
		require.NoError(t, err)
		_, err = m.Export(ctx)
		assert.ErrorIs(t, err, ErrEncryptionKeyRequired)
		assert.ErrorIs(t, m.Import(ctx), ErrEncryptionKeyRequired)
	})
}

func TestMetadataConversion(t *testing.T) {
	in := map[string]any{models.MetaSource: "a.pdf", models.MetaPage: 4, "note": "12"}
	out := metadataFromString(metadataToString(in))
	assert.Equal(t, map[string]any{models.MetaSource: "a.pdf", models.MetaPage: 4, "note": "12"}, out)
	assert.Nil(t, metadataToString(nil))
}
