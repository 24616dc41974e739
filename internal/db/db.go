package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"pdf-rag/internal/config"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
)

var ErrDSNRequired = errors.New("database dsn is required")

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string          `bun:"id,pk,type:uuid"`
	Collection    string          `bun:"collection,notnull"`
	Content       string          `bun:"content,notnull"`
	Metadata      map[string]any  `bun:"metadata,type:jsonb"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Score         float32         `bun:"score,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a pool for cfg.Driver: "pgdriver" (default) or "pq".
// No connection is made until the first query.
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, ErrDSNRequired
	}
	dsn := cfg.DSN
	if !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=disable"
	}

	switch cfg.Driver {
	case "pgdriver", "":
		opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	case "pq", "postgres":
		return sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Store keeps chunks of one collection in the documents table and searches
// them by cosine distance.
type Store struct {
	db         *bun.DB
	embedder   embeddings.Embedder
	collection string
	vectorSize int
}

var _ vectorstores.VectorStore = (*Store)(nil)

func NewStore(db *bun.DB, embedder embeddings.Embedder, collection string, vectorSize int) *Store {
	return &Store{db: db, embedder: embedder, collection: collection, vectorSize: vectorSize}
}

// InitDB enables pgvector and creates the documents table.
func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	_, err := s.db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

func (s *Store) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	opts := parseOptions(options)

	vectors, err := embedding.EmbedDocuments(ctx, s.embedderFor(opts), docs)
	if err != nil {
		return nil, err
	}

	rows := make([]Document, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		if s.vectorSize > 0 && len(vectors[i]) != s.vectorSize {
			return nil, fmt.Errorf("embedding has %d dimensions, table expects %d", len(vectors[i]), s.vectorSize)
		}
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, err
		}
		ids[i] = id
		rows[i] = Document{
			ID:         id,
			Collection: s.collection,
			Content:    doc.PageContent,
			Metadata:   doc.Metadata,
			Embedding:  pgvector.NewVector(vectors[i]),
		}
	}

	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store documents: %w", err)
	}
	log.Debug().Str("collection", s.collection).Int("count", len(rows)).Msg("Stored documents")
	return ids, nil
}

func (s *Store) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return nil, fmt.Errorf("number of documents must be positive, got %d", numDocuments)
	}
	opts := parseOptions(options)

	queryEmbedding, err := s.embedderFor(opts).EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	q, err := s.searchQuery(queryEmbedding, numDocuments, opts)
	if err != nil {
		return nil, err
	}

	var rows []Document
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	docs := make([]schema.Document, len(rows))
	for i, r := range rows {
		docs[i] = schema.Document{PageContent: r.Content, Metadata: r.Metadata, Score: r.Score}
	}
	return docs, nil
}

func (s *Store) searchQuery(queryEmbedding []float32, limit int, opts vectorstores.Options) (*bun.SelectQuery, error) {
	vec := pgvector.NewVector(queryEmbedding)
	q := s.db.NewSelect().
		Model((*Document)(nil)).
		Column("d.id", "d.content", "d.metadata").
		ColumnExpr("1 - (d.embedding <=> ?) AS score", vec).
		Where("d.collection = ?", s.collection).
		OrderExpr("d.embedding <=> ?", vec).
		Limit(limit)

	if opts.ScoreThreshold > 0 {
		q = q.Where("1 - (d.embedding <=> ?) >= ?", vec, opts.ScoreThreshold)
	}
	if opts.Filters != nil {
		filter, err := json.Marshal(opts.Filters)
		if err != nil {
			return nil, fmt.Errorf("invalid metadata filter: %w", err)
		}
		q = q.Where("d.metadata @> ?::jsonb", string(filter))
	}
	return q, nil
}

// Count reports how many chunks the collection holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*Document)(nil)).Where("d.collection = ?", s.collection).Count(ctx)
}

// DeleteCollection removes every chunk of the collection.
func (s *Store) DeleteCollection(ctx context.Context) error {
	_, err := s.db.NewDelete().Model((*Document)(nil)).Where("d.collection = ?", s.collection).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// DropDocuments drops the whole table, every collection included.
func (s *Store) DropDocuments(ctx context.Context) error {
	_, err := s.db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

func (s *Store) embedderFor(opts vectorstores.Options) embeddings.Embedder {
	if opts.Embedder != nil {
		return opts.Embedder
	}
	return s.embedder
}

func parseOptions(options []vectorstores.Option) vectorstores.Options {
	var opts vectorstores.Options
	for _, o := range options {
		o(&opts)
	}
	return opts
}
