package inference

import (
	"context"
	"sync"
)

// Mock is a scripted Provider. Nil funcs fall back to NewMock's behavior
// for Health and Close, and to ErrProviderUnavailable for Chat.
type Mock struct {
	ChatFunc   func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	HealthFunc func(ctx context.Context) error
	CloseFunc  func() error

	mu       sync.Mutex
	requests []*ChatRequest
}

// NewMock answers with replies in turn, repeating the last one. With no
// replies it answers "はい".
func NewMock(replies ...string) *Mock {
	if len(replies) == 0 {
		replies = []string{"はい"}
	}
	m := &Mock{}
	m.ChatFunc = func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
		n := len(m.Requests()) - 1
		if n >= len(replies) {
			n = len(replies) - 1
		}
		return &ChatResponse{Message: NewAssistantMessage(replies[n]), FinishReason: "stop"}, nil
	}
	return m
}

// NewFailingMock fails every Chat and Health with err.
func NewFailingMock(err error) *Mock {
	return &Mock{
		ChatFunc:   func(context.Context, *ChatRequest) (*ChatResponse, error) { return nil, err },
		HealthFunc: func(context.Context) error { return err },
	}
}

func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, WrapError("mock", err)
	}
	if m.ChatFunc == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m.ChatFunc(ctx, req)
}

func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Requests returns every Chat request in order.
func (m *Mock) Requests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ChatRequest(nil), m.requests...)
}

// LastRequest returns the latest Chat request, or nil.
func (m *Mock) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

var _ Provider = (*Mock)(nil)
