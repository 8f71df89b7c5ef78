package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockCompleter is a scripted Completer for tests. Responses are played
// back in order; when the script is exhausted the last response repeats.
// An optional Script function overrides playback per request.
type MockCompleter struct {
	mu        sync.Mutex
	responses []string
	calls     []CompletionRequest
	err       error

	// Script, when non-nil, computes the response for each request.
	Script func(req CompletionRequest) (string, error)
}

// NewMockCompleter creates a mock that plays back the given responses.
func NewMockCompleter(responses ...string) *MockCompleter {
	return &MockCompleter{responses: responses}
}

// Fail makes every Complete call return err.
func (m *MockCompleter) Fail(err error) { m.err = err }

// Name returns the completer name.
func (m *MockCompleter) Name() string { return "mock" }

// Available always reports true.
func (m *MockCompleter) Available() bool { return true }

// Complete records the request and returns the next scripted response.
func (m *MockCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if m.Script != nil {
		return m.Script(req)
	}
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", fmt.Errorf("mock completer has no scripted responses")
	}
	i := len(m.calls) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

// CallCount returns the number of Complete calls made.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded requests.
func (m *MockCompleter) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastCall returns the most recent request, or a zero value if none.
func (m *MockCompleter) LastCall() CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return CompletionRequest{}
	}
	return m.calls[len(m.calls)-1]
}
