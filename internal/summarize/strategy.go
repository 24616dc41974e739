package summarize

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// Strategy names a way of combining chunk summaries. The values double as
// the dropdown options.
type Strategy string

const (
	Stuff     Strategy = "stuff"
	MapReduce Strategy = "map_reduce"
	Refine    Strategy = "refine"
)

// Strategies lists the dropdown options in display order.
func Strategies() []Strategy {
	return []Strategy{Stuff, MapReduce, Refine}
}

func ParseStrategy(s string) (Strategy, bool) {
	for _, strategy := range Strategies() {
		if string(strategy) == s {
			return strategy, true
		}
	}
	return "", false
}

// Summarizer condenses a list of chunks into one text.
type Summarizer interface {
	Summarize(ctx context.Context, docs []schema.Document) (string, error)
}

type chainSummarizer struct {
	chain   chains.Chain
	options []chains.ChainCallOption
}

func (s chainSummarizer) Summarize(ctx context.Context, docs []schema.Document) (string, error) {
	out, err := chains.Call(ctx, s.chain, map[string]any{"input_documents": docs}, s.options...)
	if err != nil {
		return "", err
	}
	text, ok := out["text"].(string)
	if !ok {
		return "", fmt.Errorf("summarization chain returned %T, want string", out["text"])
	}
	return text, nil
}

// New builds the summarizer for strategy.
//
//   - stuff: one call over all chunks joined together.
//   - map_reduce: one call per chunk, strictly one at a time, then one call
//     over the partial summaries.
//   - refine: one call on the first chunk, then one call per following chunk
//     that rewrites the running summary.
func New(strategy Strategy, llm llms.Model, options ...chains.ChainCallOption) (Summarizer, error) {
	switch strategy {
	case Stuff:
		return chainSummarizer{chain: chains.LoadStuffSummarization(llm), options: options}, nil
	case MapReduce:
		chain := chains.LoadMapReduceSummarization(llm)
		chain.MaxNumberOfConcurrent = 1
		return chainSummarizer{chain: chain, options: options}, nil
	case Refine:
		return chainSummarizer{chain: chains.LoadRefineSummarization(llm), options: options}, nil
	default:
		return nil, fmt.Errorf("unknown summarization strategy %q", strategy)
	}
}
