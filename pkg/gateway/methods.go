package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/hive/internal/tracing"
	"github.com/harun/hive/pkg/agent"
)

// AgentInfo describes one agent of the source
type AgentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Entry       bool   `json:"entry,omitempty"`
}

// ChatParams are the parameters of chat.send
type ChatParams struct {
	Message          string                 `json:"message"`
	Agent            string                 `json:"agent,omitempty"`
	ContextVariables agent.ContextVariables `json:"context_variables,omitempty"`
	Stream           bool                   `json:"stream,omitempty"`
}

// RunParams are the parameters of the stateless run method
type RunParams struct {
	Agent            string                 `json:"agent,omitempty"`
	Messages         []agent.Message        `json:"messages"`
	ContextVariables agent.ContextVariables `json:"context_variables,omitempty"`
	MaxTurns         *int                   `json:"max_turns,omitempty"`
	Stream           bool                   `json:"stream,omitempty"`
}

func (s *Server) registerBuiltinMethods() {
	_ = s.RegisterMethod("agents.list", s.handleAgentsList)
	_ = s.RegisterMethod("chat.send", s.handleChatSend)
	_ = s.RegisterMethod("run", s.handleRun)
	_ = s.RegisterMethod("session.reset", s.handleSessionReset)
	_ = s.RegisterMethod("clients.list", s.handleClientsList)
}

func decodeParams(req *RPCRequest, target any) error {
	raw, err := json.Marshal(req.Params)
	if err != nil {
		return &RPCError{Code: InvalidParams, Message: err.Error()}
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &RPCError{Code: InvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func (s *Server) resolveAgent(name string, fallback *agent.Agent) (*agent.Agent, error) {
	if name == "" {
		return fallback, nil
	}
	a, ok := s.agents.Agent(name)
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("unknown agent: %s", name)}
	}
	return a, nil
}

func (s *Server) handleAgentsList(_ context.Context, _ *Client, _ *RPCRequest) (any, error) {
	entry := s.agents.Entry().Name
	names := s.agents.Names()
	infos := make([]AgentInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, AgentInfo{
			Name:        name,
			Description: s.agents.Describe(name),
			Entry:       name == entry,
		})
	}
	return infos, nil
}

func (s *Server) handleClientsList(_ context.Context, _ *Client, _ *RPCRequest) (any, error) {
	return s.GetConnectedClients(), nil
}

func (s *Server) handleSessionReset(_ context.Context, client *Client, _ *RPCRequest) (any, error) {
	entry := s.agents.Entry()
	client.Session.Reset(entry)
	return map[string]any{"agent": entry.Name}, nil
}

// handleChatSend appends a user message to the client's session and runs the
// active agent. The session adopts the run's final agent and context.
func (s *Server) handleChatSend(ctx context.Context, client *Client, req *RPCRequest) (any, error) {
	var params ChatParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	if params.Message == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "message parameter is required"}
	}

	snapshot, ok := client.Session.Begin()
	if !ok {
		return nil, &RPCError{Code: RunInProgress, Message: "a run is already in progress for this session"}
	}
	defer client.Session.End()

	active, err := s.resolveAgent(params.Agent, snapshot.Active)
	if err != nil {
		return nil, err
	}

	sent := []agent.Message{agent.UserMessage(params.Message)}
	messages := append(snapshot.History, sent...)
	cv := snapshot.ContextVariables.Merge(params.ContextVariables)

	resp, err := s.execute(ctx, client, req.ID, active, messages, params.Stream, agent.WithContextVariables(cv))
	if err != nil {
		return nil, err
	}

	client.Session.Commit(sent, resp)
	return resp, nil
}

// handleRun executes a run over caller-supplied history without touching the
// client's session.
func (s *Server) handleRun(ctx context.Context, client *Client, req *RPCRequest) (any, error) {
	var params RunParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	if len(params.Messages) == 0 {
		return nil, &RPCError{Code: InvalidParams, Message: "messages parameter is required"}
	}

	active, err := s.resolveAgent(params.Agent, s.agents.Entry())
	if err != nil {
		return nil, err
	}

	opts := []agent.RunOption{agent.WithContextVariables(params.ContextVariables)}
	if params.MaxTurns != nil {
		opts = append(opts, agent.WithMaxTurns(*params.MaxTurns))
	}
	return s.execute(ctx, client, req.ID, active, params.Messages, params.Stream, opts...)
}

// execute runs the turn loop. When streaming, every run event is forwarded
// to the client as a run frame tagged with requestID, and a failed write
// stops the run.
func (s *Server) execute(ctx context.Context, client *Client, requestID string, active *agent.Agent, messages []agent.Message, stream bool, extra ...agent.RunOption) (*agent.Response, error) {
	opts := append(append([]agent.RunOption{}, s.runOptions...), extra...)

	if !stream || client.Conn == nil {
		resp, err := s.runner.Run(ctx, active, messages, opts...)
		if err != nil {
			return nil, fmt.Errorf("run failed: %w", err)
		}
		return resp, nil
	}

	sender := active.Name
	for event, err := range s.runner.RunStream(ctx, active, messages, opts...) {
		if err != nil {
			return nil, fmt.Errorf("run failed: %w", err)
		}
		if event.Type == agent.EventResponse {
			return event.Response, nil
		}

		frame := EventMessage{
			Event:     "run." + string(event.Type),
			Stream:    StreamTypeRun,
			RequestID: requestID,
			TraceID:   tracing.GetTraceID(ctx),
			Agent:     sender,
		}
		if event.Delta != nil {
			if event.Delta.Sender != "" {
				sender = event.Delta.Sender
				frame.Agent = sender
			}
			frame.Data = event.Delta
		}
		if err := s.broadcaster.SendToClient(client, frame); err != nil {
			return nil, fmt.Errorf("failed to forward run event: %w", err)
		}
	}
	return nil, fmt.Errorf("run ended without a response")
}
