package agent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMergeDeltas(t *testing.T) {
	t.Run("should concatenate content", func(t *testing.T) {
		msg := MergeDeltas("bee", Delta{Role: RoleAssistant}, Delta{Content: "a"}, Delta{Content: "b"})

		assert.Equal(t, RoleAssistant, msg.Role)
		assert.Equal(t, "ab", msg.ContentString())
		assert.Equal(t, "bee", msg.Sender)
		assert.Nil(t, msg.ToolCalls)
	})

	t.Run("should ignore role and sender fragments", func(t *testing.T) {
		msg := MergeDeltas("bee", Delta{Role: RoleUser, Sender: "other", Content: "x"})

		assert.Equal(t, RoleAssistant, msg.Role)
		assert.Equal(t, "bee", msg.Sender)
	})

	t.Run("should order tool calls by index", func(t *testing.T) {
		msg := MergeDeltas("bee",
			Delta{ToolCalls: []ToolCallDelta{{Index: 1, ID: "b", Function: FunctionCall{Name: "second"}}}},
			Delta{ToolCalls: []ToolCallDelta{{Index: 0, ID: "a", Function: FunctionCall{Name: "first"}}}},
			Delta{ToolCalls: []ToolCallDelta{{Index: 1, Function: FunctionCall{Arguments: "{}"}}}},
		)

		require.Len(t, msg.ToolCalls, 2)
		assert.Equal(t, "first", msg.ToolCalls[0].Function.Name)
		assert.Equal(t, "second", msg.ToolCalls[1].Function.Name)
		assert.Equal(t, "{}", msg.ToolCalls[1].Function.Arguments)
	})

	t.Run("should produce empty content for no deltas", func(t *testing.T) {
		msg := MergeDeltas("bee")

		require.NotNil(t, msg.Content)
		assert.Equal(t, "", msg.ContentString())
		assert.Nil(t, msg.ToolCalls)
	})
}

func TestFold(t *testing.T) {
	t.Run("should fold a sequence", func(t *testing.T) {
		msg, err := Fold("bee", func(yield func(*Delta, error) bool) {
			for _, d := range []*Delta{{Content: "he"}, nil, {Content: "y"}} {
				if !yield(d, nil) {
					return
				}
			}
		})
		require.NoError(t, err)
		assert.Equal(t, "hey", msg.ContentString())
	})

	t.Run("should stop at the first error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Fold("bee", errorSeq(boom))
		assert.ErrorIs(t, err, boom)
	})
}

// fragments splits s into consecutive non-empty pieces
func fragments(rt *rapid.T, s, label string) []string {
	var out []string
	for len(s) > 0 {
		n := rapid.IntRange(1, len(s)).Draw(rt, label)
		out = append(out, s[:n])
		s = s[n:]
	}
	return out
}

func TestMergeDeltasPartitionProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		field := rapid.StringMatching(`[a-zA-Z0-9{}":_ ]{0,12}`)

		want := Message{
			Role:    RoleAssistant,
			Content: Text(field.Draw(rt, "content")),
			Sender:  "bee",
		}
		calls := rapid.IntRange(0, 3).Draw(rt, "calls")
		for i := 0; i < calls; i++ {
			want.ToolCalls = append(want.ToolCalls, ToolCall{
				ID:   field.Draw(rt, "id"),
				Type: "function",
				Function: FunctionCall{
					Name:      field.Draw(rt, "name"),
					Arguments: field.Draw(rt, "arguments"),
				},
			})
		}

		// one queue of fragments per field, each queue kept in order
		var queues [][]Delta
		var content []Delta
		for _, piece := range fragments(rt, want.ContentString(), "content_cut") {
			content = append(content, Delta{Content: piece})
		}
		queues = append(queues, content)
		for i, tc := range want.ToolCalls {
			q := []Delta{{ToolCalls: []ToolCallDelta{{Index: i, Type: tc.Type}}}}
			for _, piece := range fragments(rt, tc.ID, fmt.Sprintf("id_cut_%d", i)) {
				q = append(q, Delta{ToolCalls: []ToolCallDelta{{Index: i, ID: piece}}})
			}
			for _, piece := range fragments(rt, tc.Function.Name, fmt.Sprintf("name_cut_%d", i)) {
				q = append(q, Delta{ToolCalls: []ToolCallDelta{{Index: i, Function: FunctionCall{Name: piece}}}})
			}
			for _, piece := range fragments(rt, tc.Function.Arguments, fmt.Sprintf("args_cut_%d", i)) {
				q = append(q, Delta{ToolCalls: []ToolCallDelta{{Index: i, Function: FunctionCall{Arguments: piece}}}})
			}
			queues = append(queues, q)
		}

		// interleave the queues at random
		var deltas []Delta
		for {
			var open []int
			for i, q := range queues {
				if len(q) > 0 {
					open = append(open, i)
				}
			}
			if len(open) == 0 {
				break
			}
			pick := open[rapid.IntRange(0, len(open)-1).Draw(rt, "pick")]
			deltas = append(deltas, queues[pick][0])
			queues[pick] = queues[pick][1:]
		}

		got := MergeDeltas("bee", deltas...)
		if len(want.ToolCalls) == 0 {
			want.ToolCalls = nil
		}
		if !assert.Equal(rt, want, got) {
			rt.Fatalf("merge mismatch for %d deltas", len(deltas))
		}
	})
}
