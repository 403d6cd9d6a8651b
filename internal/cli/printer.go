package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"

	"github.com/harun/hive/pkg/agent"
)

// printMessages writes the assistant messages of a finished turn as
// "sender: content" lines, one line per tool call
func printMessages(out io.Writer, messages []agent.Message) {
	for _, msg := range messages {
		if msg.Role != agent.RoleAssistant {
			continue
		}
		if content := msg.ContentString(); content != "" {
			fmt.Fprintf(out, "%s: %s\n", msg.Sender, content)
		}
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(out, "%s: %s(%s)\n", msg.Sender, tc.Function.Name, formatArguments(tc.Function.Arguments))
		}
	}
}

// formatArguments renders a JSON object as sorted key=value pairs. Anything
// else is returned unchanged.
func formatArguments(raw string) string {
	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return raw
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v, _ := json.Marshal(args[k])
		pairs = append(pairs, k+"="+string(v))
	}
	return strings.Join(pairs, ", ")
}

// printStream writes content as it arrives and tool calls by name, then
// returns the final response of the run
func printStream(out io.Writer, seq iter.Seq2[agent.StreamEvent, error]) (*agent.Response, error) {
	sender := ""
	open := false
	closeLine := func() {
		if open {
			fmt.Fprintln(out)
			open = false
		}
	}

	for event, err := range seq {
		if err != nil {
			closeLine()
			return nil, err
		}

		switch event.Type {
		case agent.EventDelta:
			d := event.Delta
			if d.Sender != "" {
				sender = d.Sender
			}
			if d.Content != "" {
				if !open {
					fmt.Fprintf(out, "%s: ", sender)
					open = true
				}
				fmt.Fprint(out, d.Content)
			}
			for _, tc := range d.ToolCalls {
				if tc.Function.Name == "" {
					continue
				}
				closeLine()
				fmt.Fprintf(out, "%s: %s()\n", sender, tc.Function.Name)
			}
		case agent.EventTurnEnd:
			closeLine()
		case agent.EventResponse:
			return event.Response, nil
		}
	}

	return nil, fmt.Errorf("stream ended without a response")
}
