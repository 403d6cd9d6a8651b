package agent

import (
	"encoding/json"
	"fmt"
)

// ContextVariablesKey is the argument name under which context variables are
// injected into functions that ask for them. It is never exposed to providers.
const ContextVariablesKey = "context_variables"

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
	// RoleTool is accepted on input as an alias of RoleFunction.
	RoleTool Role = "tool"
)

// Default agent settings
const (
	DefaultAgentName    = "Agent"
	DefaultModel        = "gpt-4o"
	DefaultInstructions = "You are a helpful agent."
)

// Message represents a message in the conversation
type Message struct {
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Sender     string     `json:"sender,omitempty"`
}

// ToolCall represents a tool invocation requested by an assistant message
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its serialized arguments
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Text returns a pointer to s, for use as Message content.
func Text(s string) *string {
	return &s
}

// UserMessage creates a user message
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: Text(content)}
}

// SystemMessage creates a system message
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: Text(content)}
}

// ContentString returns the message content, or "" when absent.
func (m Message) ContentString() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = Text(*m.Content)
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	return out
}

// ContextVariables is the open key/value mapping threaded through a run.
type ContextVariables map[string]any

// Merge returns a new mapping holding cv overlaid with each update in order.
// Later keys overwrite earlier ones; untouched keys persist.
func (cv ContextVariables) Merge(updates ...ContextVariables) ContextVariables {
	out := make(ContextVariables, len(cv))
	for k, v := range cv {
		out[k] = v
	}
	for _, u := range updates {
		for k, v := range u {
			out[k] = v
		}
	}
	return out
}

// Clone returns a shallow copy.
func (cv ContextVariables) Clone() ContextVariables {
	return cv.Merge()
}

// Result is the normalized output of one function call
type Result struct {
	Value            string
	Agent            *Agent
	ContextVariables ContextVariables
}

// Response is the terminal output of a run
type Response struct {
	Messages         []Message        `json:"messages"`
	Agent            *Agent           `json:"-"`
	ContextVariables ContextVariables `json:"context_variables"`
}

// AgentName returns the final agent's name, or "" when no agent is active.
func (r *Response) AgentName() string {
	if r == nil || r.Agent == nil {
		return ""
	}
	return r.Agent.Name
}

// MarshalJSON includes the final agent's name alongside messages and context.
func (r Response) MarshalJSON() ([]byte, error) {
	type alias Response
	return json.Marshal(struct {
		alias
		Agent string `json:"agent,omitempty"`
	}{alias: alias(r), Agent: r.AgentName()})
}

// PartialResponse aggregates what one dispatch produced
type PartialResponse struct {
	Messages         []Message
	Agent            *Agent
	ContextVariables ContextVariables
}

// TypeError reports a function return value that cannot be turned into text
type TypeError struct {
	Value any
	Err   error
}

func (e *TypeError) Error() string {
	msg := fmt.Sprintf("failed to cast response to string: %#v; agent functions must return a string-convertible value, a Result or an Agent", e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TypeError) Unwrap() error {
	return e.Err
}

// ToolError wraps an error raised by an agent function
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
