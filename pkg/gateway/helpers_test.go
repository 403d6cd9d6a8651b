package gateway

import (
	"context"
	"fmt"
	"iter"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/hive/pkg/agent"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// scriptedProvider replays replies in order, as whole messages or as deltas
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []agent.Message
	requests []*agent.CompletionRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) next(request *agent.CompletionRequest) (agent.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, request)
	if len(p.replies) == 0 {
		return agent.Message{}, fmt.Errorf("no scripted reply")
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return reply, nil
}

func (p *scriptedProvider) Complete(_ context.Context, request *agent.CompletionRequest) (*agent.Message, error) {
	reply, err := p.next(request)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

func (p *scriptedProvider) Stream(_ context.Context, request *agent.CompletionRequest) iter.Seq2[*agent.Delta, error] {
	reply, err := p.next(request)
	return func(yield func(*agent.Delta, error) bool) {
		if err != nil {
			yield(nil, err)
			return
		}
		deltas := []*agent.Delta{{Role: agent.RoleAssistant}}
		for _, word := range strings.SplitAfter(reply.ContentString(), " ") {
			if word != "" {
				deltas = append(deltas, &agent.Delta{Content: word})
			}
		}
		for i, tc := range reply.ToolCalls {
			deltas = append(deltas, &agent.Delta{ToolCalls: []agent.ToolCallDelta{{
				Index: i, ID: tc.ID, Type: tc.Type, Function: tc.Function,
			}}})
		}
		for _, d := range deltas {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func (p *scriptedProvider) lastRequest() *agent.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

func text(s string) agent.Message {
	return agent.Message{Role: agent.RoleAssistant, Content: agent.Text(s)}
}

func toolCall(id, name string) agent.Message {
	return agent.Message{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{{
		ID: id, Type: "function", Function: agent.FunctionCall{Name: name, Arguments: "{}"},
	}}}
}

// staticAgents is a two-agent source: triage can hand off to sales
type staticAgents struct {
	triage *agent.Agent
	sales  *agent.Agent
}

func newStaticAgents() *staticAgents {
	sales := agent.NewAgent("sales")
	sales.Instructions = agent.StaticInstructions("Sell bees.")

	triage := agent.NewAgent("triage")
	triage.Instructions = agent.StaticInstructions("Route the user.")
	triage.Functions = []agent.Function{
		agent.NewFunction("transfer_to_sales", "Hand off to sales", func(context.Context, agent.Arguments) (agent.Output, error) {
			return sales, nil
		}),
	}
	return &staticAgents{triage: triage, sales: sales}
}

func (s *staticAgents) Entry() *agent.Agent { return s.triage }

func (s *staticAgents) Agent(name string) (*agent.Agent, bool) {
	switch name {
	case "triage":
		return s.triage, true
	case "sales":
		return s.sales, true
	}
	return nil, false
}

func (s *staticAgents) Names() []string { return []string{"triage", "sales"} }

func (s *staticAgents) Describe(name string) string { return "the " + name + " agent" }

func newTestServer(t *testing.T, provider agent.Provider) (*Server, *httptest.Server) {
	t.Helper()

	runner, err := agent.NewRunner(agent.Config{Provider: provider, Logger: zerolog.Nop()})
	require.NoError(t, err)

	srv, err := NewServer(Config{
		SharedSecret: testSecret,
		TickInterval: -1,
		Runner:       runner,
		Agents:       newStaticAgents(),
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func authenticate(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	var challenge AuthChallenge
	readJSON(t, conn, &challenge)
	require.Equal(t, "auth.challenge", challenge.Event)

	require.NoError(t, conn.WriteJSON(AuthResponse{
		Method:    "auth.response",
		Signature: Sign(testSecret, challenge.Challenge),
	}))

	var result AuthResult
	readJSON(t, conn, &result)
	require.True(t, result.Success, result.Message)
}

// frame is either an event frame or an RPC response
type frame struct {
	Event     string       `json:"event"`
	Stream    StreamType   `json:"stream"`
	Seq       int64        `json:"seq"`
	RequestID string       `json:"request_id"`
	Agent     string       `json:"agent"`
	Data      *agent.Delta `json:"data"`
	ID        string       `json:"id"`
	JSONRPC   string       `json:"jsonrpc"`
	Error     *RPCError    `json:"error"`
	Result    *runResult   `json:"result"`
}

type runResult struct {
	Agent            string                 `json:"agent"`
	Messages         []agent.Message        `json:"messages"`
	ContextVariables agent.ContextVariables `json:"context_variables"`
}

func call(t *testing.T, conn *websocket.Conn, id, method string, params map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(RPCRequest{ID: id, Method: method, Params: params, JSONRPC: "2.0"}))
}

// readUntilResponse collects event frames until the response to id arrives
func readUntilResponse(t *testing.T, conn *websocket.Conn, id string) ([]frame, frame) {
	t.Helper()

	var events []frame
	for {
		var f frame
		readJSON(t, conn, &f)
		if f.JSONRPC != "" {
			require.Equal(t, id, f.ID)
			return events, f
		}
		events = append(events, f)
	}
}
