package agent

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

// fakeProvider replays scripted completions and records every request
type fakeProvider struct {
	mu       sync.Mutex
	replies  []Message
	streams  [][]*Delta
	requests []*CompletionRequest
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, request *CompletionRequest) (*Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, request)
	if len(p.replies) == 0 {
		return nil, fmt.Errorf("no scripted reply for request %d", len(p.requests))
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return &reply, nil
}

func (p *fakeProvider) Stream(ctx context.Context, request *CompletionRequest) iter.Seq2[*Delta, error] {
	p.mu.Lock()
	p.requests = append(p.requests, request)
	if len(p.streams) == 0 {
		p.mu.Unlock()
		return errorSeq(fmt.Errorf("no scripted stream for request %d", len(p.requests)))
	}
	deltas := p.streams[0]
	p.streams = p.streams[1:]
	p.mu.Unlock()

	return func(yield func(*Delta, error) bool) {
		for _, d := range deltas {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// mockProvider is a testify mock of Provider
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(ctx context.Context, request *CompletionRequest) (*Message, error) {
	args := m.Called(ctx, request)
	msg, _ := args.Get(0).(*Message)
	return msg, args.Error(1)
}

func (m *mockProvider) Stream(ctx context.Context, request *CompletionRequest) iter.Seq2[*Delta, error] {
	args := m.Called(ctx, request)
	return args.Get(0).(iter.Seq2[*Delta, error])
}

func newTestRunner(t interface{ Fatalf(string, ...any) }, p Provider) *Runner {
	r, err := NewRunner(Config{Provider: p, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func textReply(s string) Message {
	return Message{Role: RoleAssistant, Content: Text(s)}
}

func toolReply(calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

func call(id, name, args string) ToolCall {
	return ToolCall{ID: id, Type: "function", Function: FunctionCall{Name: name, Arguments: args}}
}

func constFunction(name string, out Output) Function {
	return NewFunction(name, "test function", func(ctx context.Context, args Arguments) (Output, error) {
		return out, nil
	})
}
