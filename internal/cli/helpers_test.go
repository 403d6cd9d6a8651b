package cli

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/harun/hive/pkg/agent"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const baseConfig = `provider:
  provider: openai
  api_key: sk-test-key-1234
logging:
  level: error
  pretty: false
`

// fakeProvider replays replies in order. Streams split content on spaces.
type fakeProvider struct {
	mu       sync.Mutex
	replies  []agent.Message
	requests []*agent.CompletionRequest
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) next(request *agent.CompletionRequest) (agent.Message, error) {
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

func (p *fakeProvider) Complete(_ context.Context, request *agent.CompletionRequest) (*agent.Message, error) {
	reply, err := p.next(request)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

func (p *fakeProvider) Stream(_ context.Context, request *agent.CompletionRequest) iter.Seq2[*agent.Delta, error] {
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

func (p *fakeProvider) request(i int) *agent.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func toolCallReply(id, name, args string) agent.Message {
	return agent.Message{
		Role: agent.RoleAssistant,
		ToolCalls: []agent.ToolCall{{
			ID:       id,
			Type:     "function",
			Function: agent.FunctionCall{Name: name, Arguments: args},
		}},
	}
}

func textReply(content string) agent.Message {
	return agent.Message{Role: agent.RoleAssistant, Content: agent.Text(content)}
}

func useProvider(t *testing.T, p agent.Provider) {
	t.Helper()
	orig := newProvider
	newProvider = func(agent.ProviderConfig) (agent.Provider, error) { return p, nil }
	t.Cleanup(func() { newProvider = orig })
}

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseConfig+extra), 0600))
	return path
}

// resetFlags clears flag state left behind by earlier executions of the
// shared command tree
func resetFlags(ctx context.Context) {
	cfgFile = ""
	logLevel = ""
	statusURL = ""
	chatOpts = chatOptions{}
	serveOpts = serveOptions{}

	reset := func(f *pflag.Flag) {
		if f.Value.Type() != "stringArray" {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	rootCmd.Flags().VisitAll(reset)
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(reset)
		c.SetContext(ctx)
	}
}

func executeContext(ctx context.Context, stdin string, args ...string) (string, string, error) {
	resetFlags(ctx)

	var out, errOut bytes.Buffer
	cmd := GetRootCmd()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func execute(stdin string, args ...string) (string, string, error) {
	return executeContext(context.Background(), stdin, args...)
}
