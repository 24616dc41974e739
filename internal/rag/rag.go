package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/tmc/langchaingo/vectorstores"

	"pdf-rag/internal/config"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
)

var ErrEmptyQuery = errors.New("query is required")

const (
	answerKey  = "text"
	sourcesKey = "source_documents"
)

// RAG answers questions about the staged documents with a "stuff"
// retrieval QA chain.
type RAG struct {
	store    vectorstores.VectorStore
	llm      llms.Model
	cfg      *config.Config
	splitter textsplitter.TextSplitter
}

func NewRAG(store vectorstores.VectorStore, llm llms.Model, cfg *config.Config) *RAG {
	return &RAG{
		store:    store,
		llm:      llm,
		cfg:      cfg,
		splitter: parser.NewCharacterSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
	}
}

// Ingest loads every staged document, splits it and adds the chunks to the
// store. It returns the number of chunks added. Nothing is deduplicated, so
// ingesting the same files again stores them again.
func (r *RAG) Ingest(ctx context.Context) (int, error) {
	pages, err := parser.LoadDirectory(r.cfg.Paths.Uploads, r.cfg.Paths.UploadGlob)
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		log.Warn().Str("dir", r.cfg.Paths.Uploads).Msg("No staged documents to ingest")
		return 0, nil
	}

	chunks, err := parser.Split(pages, r.splitter)
	if err != nil {
		return 0, fmt.Errorf("failed to split documents: %w", err)
	}
	if len(chunks) == 0 {
		log.Warn().Int("pages", len(pages)).Msg("Staged documents contain no text")
		return 0, nil
	}

	ids, err := r.store.AddDocuments(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	log.Info().Int("pages", len(pages)).Int("chunks", len(ids)).Msg("Ingested documents")
	return len(ids), nil
}

// Query retrieves the TopK closest chunks and asks the model to answer from
// them. Source holds the text of the best match, or "" when the store had
// nothing to offer.
func (r *RAG) Query(ctx context.Context, question string) (*models.PromptResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuery
	}

	qa := chains.NewRetrievalQAFromLLM(r.llm, vectorstores.ToRetriever(r.store, r.cfg.RAG.TopK))
	qa.ReturnSourceDocuments = true

	out, err := chains.Call(ctx, qa, map[string]any{"query": question}, llmservice.CallOptions(r.cfg.LLM)...)
	if err != nil {
		return nil, fmt.Errorf("failed to answer query: %w", err)
	}

	return newResponse(question, out)
}

func newResponse(question string, out map[string]any) (*models.PromptResponse, error) {
	answer, ok := out[answerKey].(string)
	if !ok {
		return nil, fmt.Errorf("retrieval chain returned %T, want string", out[answerKey])
	}
	sources, ok := out[sourcesKey].([]schema.Document)
	if !ok && out[sourcesKey] != nil {
		return nil, fmt.Errorf("retrieval chain returned sources of type %T", out[sourcesKey])
	}
	resp := &models.PromptResponse{
		Query:   question,
		Content: answer,
		Sources: sources,
	}
	if len(sources) > 0 {
		resp.Source = sources[0].PageContent
	}
	log.Debug().Str("query", question).Int("sources", len(sources)).Msg("Answered query")
	return resp, nil
}

// Submit re-ingests the staged documents and then answers question.
func (r *RAG) Submit(ctx context.Context, question string) (*models.PromptResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuery
	}
	if _, err := r.Ingest(ctx); err != nil {
		return nil, err
	}
	return r.Query(ctx, question)
}
