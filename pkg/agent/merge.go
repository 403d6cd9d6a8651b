package agent

import (
	"iter"
	"sort"
)

// Delta is one streamed fragment of an assistant message
type Delta struct {
	Role      Role            `json:"role,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is a fragment of the tool call at position Index
type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// Accumulator folds deltas into one assistant message. Tool call fragments
// are kept in a table indexed by their position until Message is called.
type Accumulator struct {
	content   string
	sender    string
	toolCalls map[int]*ToolCall
}

// NewAccumulator creates an empty accumulator for a message from sender
func NewAccumulator(sender string) *Accumulator {
	return &Accumulator{
		sender:    sender,
		toolCalls: make(map[int]*ToolCall),
	}
}

// Add merges d into the accumulator. String fields are appended, never
// overwritten. Role and sender are ignored.
func (a *Accumulator) Add(d Delta) {
	a.content += d.Content
	for _, tc := range d.ToolCalls {
		entry, ok := a.toolCalls[tc.Index]
		if !ok {
			entry = &ToolCall{}
			a.toolCalls[tc.Index] = entry
		}
		entry.ID += tc.ID
		entry.Type += tc.Type
		entry.Function.Name += tc.Function.Name
		entry.Function.Arguments += tc.Function.Arguments
	}
}

// Message converts the accumulated state into a message. Tool calls are
// ordered by index; an empty table yields no tool calls.
func (a *Accumulator) Message() Message {
	msg := Message{
		Role:    RoleAssistant,
		Content: Text(a.content),
		Sender:  a.sender,
	}
	if len(a.toolCalls) == 0 {
		return msg
	}

	indexes := make([]int, 0, len(a.toolCalls))
	for idx := range a.toolCalls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	msg.ToolCalls = make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		msg.ToolCalls = append(msg.ToolCalls, *a.toolCalls[idx])
	}
	return msg
}

// MergeDeltas folds a slice of deltas into a message
func MergeDeltas(sender string, deltas ...Delta) Message {
	acc := NewAccumulator(sender)
	for _, d := range deltas {
		acc.Add(d)
	}
	return acc.Message()
}

// Fold consumes a delta sequence into a message, stopping at the first error.
func Fold(sender string, seq iter.Seq2[*Delta, error]) (Message, error) {
	acc := NewAccumulator(sender)
	for d, err := range seq {
		if err != nil {
			return Message{}, err
		}
		if d != nil {
			acc.Add(*d)
		}
	}
	return acc.Message(), nil
}
