package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/harun/hive/pkg/agent"
)

// Registry holds named tools that catalog agents can reference
type Registry struct {
	tools map[string]agent.Function
	mu    sync.RWMutex
}

// NewRegistry creates a registry with the built-in context tools
func NewRegistry() *Registry {
	r := &Registry{
		tools: make(map[string]agent.Function),
	}
	_ = r.Register(SetContextTool())
	_ = r.Register(GetContextTool())
	return r
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(fn agent.Function) error {
	if err := fn.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[fn.Name]; exists {
		return fmt.Errorf("tool already registered: %s", fn.Name)
	}
	r.tools[fn.Name] = fn
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (agent.Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, exists := r.tools[name]
	if !exists {
		return agent.Function{}, fmt.Errorf("tool not found: %s", name)
	}
	return fn, nil
}

// Names lists registered tool names in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetContextTool stores a string value in the run's context variables
func SetContextTool() agent.Function {
	return agent.NewFunction(
		"set_context",
		"Remember a value for the rest of the conversation.",
		func(ctx context.Context, args agent.Arguments) (agent.Output, error) {
			key := args.String("key")
			return &agent.Result{
				Value:            fmt.Sprintf("Saved %s.", key),
				ContextVariables: agent.ContextVariables{key: args.String("value")},
			}, nil
		},
		agent.Parameter{Name: "key", Type: "string", Description: "Name of the value", Required: true},
		agent.Parameter{Name: "value", Type: "string", Description: "Value to remember", Required: true},
	)
}

// GetContextTool reads a value from the run's context variables
func GetContextTool() agent.Function {
	fn := agent.NewFunction(
		"get_context",
		"Look up a previously remembered value.",
		func(ctx context.Context, args agent.Arguments) (agent.Output, error) {
			key := args.String("key")
			v, ok := args.ContextVariables()[key]
			if !ok {
				return agent.TextOutput(fmt.Sprintf("No value stored for %s.", key)), nil
			}
			return agent.Value{V: v}, nil
		},
		agent.Parameter{Name: "key", Type: "string", Description: "Name of the value", Required: true},
	)
	fn.TakesContext = true
	return fn
}

// HandoffName returns the tool name that transfers to the named agent
func HandoffName(target string) string {
	var b strings.Builder
	b.WriteString("transfer_to_")
	for _, r := range strings.ToLower(target) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// HandoffTool returns a function that hands the conversation to target
func HandoffTool(target *agent.Agent, description string) agent.Function {
	if description == "" {
		description = fmt.Sprintf("Transfer the conversation to the %s agent.", target.Name)
	} else {
		description = fmt.Sprintf("Transfer the conversation to the %s agent: %s", target.Name, description)
	}
	return agent.NewFunction(
		HandoffName(target.Name),
		description,
		func(ctx context.Context, args agent.Arguments) (agent.Output, error) {
			return target, nil
		},
	)
}
