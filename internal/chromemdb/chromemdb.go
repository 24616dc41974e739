package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
)

const compress = false

var ErrEncryptionKeyRequired = errors.New("encryption key is required")

// VectorDBManager stores chunk embeddings in a single chromem-go collection.
// Every added chunk gets a fresh ID, so adding the same file twice keeps
// both copies.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	embedder      embeddings.Embedder
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

var _ vectorstores.VectorStore = (*VectorDBManager)(nil)

// NewVectorDBManager opens (or creates) the collection under dbPath.
// With inMemory set nothing is written to disk until Export.
func NewVectorDBManager(dbPath, collectionName string, embedder embeddings.Embedder, inMemory bool, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		embedder:      embedder,
		dbPath:        dbPath,
		compress:      compress,
		encryptionKey: encryptionKey,
		filePath:      filepath.Join(dbPath, collectionName+".chromem"),
	}
	if _, err := m.getOrCreateCollection(collectionName); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *VectorDBManager) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return m.embedder.EmbedQuery(ctx, text)
	}
}

func (m *VectorDBManager) getOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, m.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// AddDocuments embeds docs and stores them. An empty batch is a no-op.
func (m *VectorDBManager) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := parseOptions(options)
	if opts.Deduplicater != nil {
		kept := docs[:0:0]
		for _, doc := range docs {
			if !opts.Deduplicater(ctx, doc) {
				kept = append(kept, doc)
			}
		}
		docs = kept
	}
	if len(docs) == 0 {
		return nil, nil
	}

	vectors, err := embedding.EmbedDocuments(ctx, m.embedderFor(opts), docs)
	if err != nil {
		return nil, err
	}

	chromemDocs := make([]chromem.Document, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, err
		}
		ids[i] = id
		chromemDocs[i] = chromem.Document{
			ID:        id,
			Content:   doc.PageContent,
			Metadata:  metadataToString(doc.Metadata),
			Embedding: vectors[i],
		}
	}

	// embeddings are already computed, one writer is enough
	if err := m.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Str("collection", m.collection.Name).Int("count", len(ids)).Msg("Added documents")
	return ids, nil
}

// SimilaritySearch returns up to numDocuments chunks, most similar first.
// An empty collection yields no documents and no error.
func (m *VectorDBManager) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return nil, fmt.Errorf("number of documents must be positive, got %d", numDocuments)
	}
	opts := parseOptions(options)

	// chromem requires nResults <= document count
	count := m.collection.Count()
	if count == 0 {
		return []schema.Document{}, nil
	}
	if numDocuments > count {
		numDocuments = count
	}

	where, err := filtersToWhere(opts.Filters)
	if err != nil {
		return nil, err
	}

	queryEmbedding, err := m.embedderFor(opts).EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := m.collection.QueryEmbedding(ctx, queryEmbedding, numDocuments, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	docs := make([]schema.Document, 0, len(results))
	for _, r := range results {
		if opts.ScoreThreshold > 0 && r.Similarity < opts.ScoreThreshold {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: r.Content,
			Metadata:    metadataFromString(r.Metadata),
			Score:       r.Similarity,
		})
	}
	log.Debug().Int("k", numDocuments).Int("results", len(docs)).Msg("Searched collection")
	return docs, nil
}

// Count reports how many chunks the collection holds.
func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// DeleteCollection drops every stored chunk and leaves an empty collection
// of the same name behind.
func (m *VectorDBManager) DeleteCollection() error {
	name := m.collection.Name
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	_, err := m.getOrCreateCollection(name)
	return err
}

// Export writes the collection to an encrypted file next to the database
// and returns its path.
func (m *VectorDBManager) Export(ctx context.Context) (string, error) {
	if m.encryptionKey == "" {
		return "", ErrEncryptionKeyRequired
	}
	if m.dbPath == "" {
		return "", errors.New("db path is required")
	}
	if err := helper.CreateFolder(m.dbPath); err != nil {
		return "", err
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", m.filePath).
		Bool("compress", m.compress).
		Msg("Exporting collection")
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return "", fmt.Errorf("failed to export database: %w", err)
	}
	return m.filePath, nil
}

// Import replaces the collection with the one in the file written by
// Export. Chunks added after the export are gone afterwards, on disk too.
func (m *VectorDBManager) Import(ctx context.Context) error {
	if m.encryptionKey == "" {
		return ErrEncryptionKeyRequired
	}
	name := m.collection.Name

	// read the snapshot once before dropping anything, so a bad key or a
	// missing file leaves the store as it was
	snapshot := chromem.NewDB()
	if err := snapshot.ImportFromFile(m.filePath, m.encryptionKey, name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	if snapshot.GetCollection(name, nil) == nil {
		return fmt.Errorf("collection %s not found in %s", name, m.filePath)
	}

	// chromem only writes the imported documents; stale files in the
	// collection directory would come back on the next open
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	// the import replaces the collection object, so pick the new one up
	c := m.db.GetCollection(name, m.embeddingFunc())
	if c == nil {
		return fmt.Errorf("collection %s missing after import", name)
	}
	m.collection = c
	return nil
}

func (m *VectorDBManager) embedderFor(opts vectorstores.Options) embeddings.Embedder {
	if opts.Embedder != nil {
		return opts.Embedder
	}
	return m.embedder
}

func parseOptions(options []vectorstores.Option) vectorstores.Options {
	var opts vectorstores.Options
	for _, o := range options {
		o(&opts)
	}
	return opts
}

func filtersToWhere(filters any) (map[string]string, error) {
	switch f := filters.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return f, nil
	case map[string]any:
		return metadataToString(f), nil
	default:
		return nil, fmt.Errorf("unsupported filter type %T", filters)
	}
}

func metadataToString(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// chromem only keeps strings; numeric keys are turned back into ints.
var intKeys = map[string]bool{
	models.MetaPage:       true,
	models.MetaTotalPages: true,
	models.MetaChunk:      true,
}

func metadataFromString(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if intKeys[k] {
			if n, err := strconv.Atoi(v); err == nil {
				out[k] = n
				continue
			}
		}
		out[k] = v
	}
	return out
}
