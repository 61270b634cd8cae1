package llm

import (
	"context"
	"sync"
)

// FakeSummarizer returns canned completions keyed by system prompt. It is used in tests and by
// callers that need a summarizer without a model server.
type FakeSummarizer struct {
	mu        sync.RWMutex
	responses map[string]string
	errors    map[string]error
	fallback  string
	calls     int
}

// NewFakeSummarizer creates a fake that answers unknown prompts with fallback.
func NewFakeSummarizer(fallback string) *FakeSummarizer {
	return &FakeSummarizer{
		responses: make(map[string]string),
		errors:    make(map[string]error),
		fallback:  fallback,
	}
}

// Name returns the provider name
func (f *FakeSummarizer) Name() string { return "fake" }

// SetResponse sets the completion for a system prompt.
func (f *FakeSummarizer) SetResponse(system, response string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[system] = response
}

// SetError makes calls with the given system prompt fail.
func (f *FakeSummarizer) SetError(system string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[system] = err
}

// Summarize returns the canned response.
func (f *FakeSummarizer) Summarize(ctx context.Context, system, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if err, ok := f.errors[system]; ok {
		return "", err
	}
	if resp, ok := f.responses[system]; ok {
		return resp, nil
	}
	return f.fallback, nil
}

// CallCount returns how many times Summarize was called.
func (f *FakeSummarizer) CallCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls
}
