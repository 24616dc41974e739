package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

var ErrNoResponse = errors.New("fake llm has no scripted response left")

// FakeLLM records every prompt it receives. Replies come from RespondFunc
// when set, otherwise from Responses in order.
type FakeLLM struct {
	RespondFunc func(prompt string) (string, error)
	Responses   []string

	mu      sync.Mutex
	prompts []string
	next    int
}

var _ llms.Model = (*FakeLLM)(nil)

func NewFakeLLM(responses ...string) *FakeLLM {
	return &FakeLLM{Responses: responses}
}

func (f *FakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var parts []string
	for _, m := range messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				parts = append(parts, t.Text)
			}
		}
	}
	prompt := strings.Join(parts, "\n")

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	respond := f.RespondFunc
	var reply string
	var err error
	if respond == nil {
		if f.next < len(f.Responses) {
			reply = f.Responses[f.next]
			f.next++
		} else {
			err = ErrNoResponse
		}
	}
	f.mu.Unlock()

	if respond != nil {
		reply, err = respond(prompt)
	}
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: reply}},
	}, nil
}

func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// Prompts returns a copy of the prompts seen so far, in call order.
func (f *FakeLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}
