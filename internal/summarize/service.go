package summarize

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"pdf-rag/internal/config"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
)

var ErrNoContent = errors.New("document has no extractable text")

type State int

const (
	Idle State = iota
	Loaded
	Summarizing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Summarizing:
		return "summarizing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Service summarizes the configured input document on request.
type Service struct {
	llm      llms.Model
	cfg      *config.Config
	splitter textsplitter.TextSplitter

	mu       sync.Mutex
	state    State
	strategy Strategy
}

func NewService(llm llms.Model, cfg *config.Config) *Service {
	return &Service{
		llm:      llm,
		cfg:      cfg,
		splitter: parser.NewCharacterSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
	}
}

// State returns the current state and the strategy of the last run.
func (s *Service) State() (State, Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.strategy
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run summarizes the input document with the strategy named by option.
// An option that is not one of Strategies yields the dropdown hint instead
// of an error and leaves the state alone.
func (s *Service) Run(ctx context.Context, option string) (string, error) {
	strategy, ok := ParseStrategy(option)
	if !ok {
		return models.DropdownFallback, nil
	}

	s.mu.Lock()
	s.state, s.strategy = Idle, strategy
	s.mu.Unlock()

	docs, err := s.load()
	if err != nil {
		s.setState(Failed)
		return "", err
	}
	s.setState(Loaded)

	summarizer, err := New(strategy, s.llm, llmservice.CallOptions(s.cfg.LLM)...)
	if err != nil {
		s.setState(Failed)
		return "", err
	}

	s.setState(Summarizing)
	log.Info().Str("strategy", string(strategy)).Int("chunks", len(docs)).Msg("Summarizing document")
	summary, err := summarizer.Summarize(ctx, docs)
	if err != nil {
		s.setState(Failed)
		return "", fmt.Errorf("failed to summarize with %s: %w", strategy, err)
	}
	s.setState(Done)
	return summary, nil
}

func (s *Service) load() ([]schema.Document, error) {
	path := s.cfg.Paths.SummaryInput
	pages, err := parser.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	chunks, err := parser.Split(pages, s.splitter)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s: %w", path, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoContent)
	}
	return chunks, nil
}
