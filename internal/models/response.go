package models

import "github.com/tmc/langchaingo/schema"

// PromptResponse is the answer to one question plus the supporting excerpt.
type PromptResponse struct {
	Query   string            `json:"query"`
	Source  string            `json:"source"`
	Content string            `json:"content"`
	Sources []schema.Document `json:"sources,omitempty"`
}

// SourceLabel describes where the top source came from, e.g. "manual.pdf p.3".
func (r *PromptResponse) SourceLabel() string {
	if len(r.Sources) == 0 {
		return ""
	}
	return DocumentLabel(r.Sources[0])
}
