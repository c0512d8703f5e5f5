package llm

import (
	"context"
	"sync"
)

// Mock is a scriptable generator for tests: responses are returned in
// order, then the last one repeats.
type Mock struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Prompts   []string
}

func (m *Mock) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	idx := len(m.Prompts) - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}
