package agent

import (
	"context"
	"fmt"
)

// Instructions is either fixed text or a function of the current context
// variables. It is resolved at every completion request.
type Instructions struct {
	text string
	fn   func(ContextVariables) string
}

// StaticInstructions returns fixed instructions
func StaticInstructions(text string) Instructions {
	return Instructions{text: text}
}

// DynamicInstructions returns instructions computed from context variables
func DynamicInstructions(fn func(ContextVariables) string) Instructions {
	return Instructions{fn: fn}
}

// Resolve evaluates the instructions against cv.
func (i Instructions) Resolve(cv ContextVariables) string {
	if i.fn != nil {
		return i.fn(cv)
	}
	return i.text
}

// IsDynamic reports whether the instructions depend on context variables.
func (i Instructions) IsDynamic() bool {
	return i.fn != nil
}

// Agent is a named persona that can hold the floor of a conversation.
// The turn loop never mutates an agent; handoff replaces it.
type Agent struct {
	Name              string
	Model             string
	Instructions      Instructions
	Functions         []Function
	ToolChoice        string
	ParallelToolCalls bool
}

// NewAgent creates an agent with the default model and instructions.
// Parallel tool calls are enabled.
func NewAgent(name string) *Agent {
	if name == "" {
		name = DefaultAgentName
	}
	return &Agent{
		Name:              name,
		Model:             DefaultModel,
		Instructions:      StaticInstructions(DefaultInstructions),
		ParallelToolCalls: true,
	}
}

// Validate checks the agent is usable by the turn loop
func (a *Agent) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}
	if a.Model == "" {
		return fmt.Errorf("agent %s: model cannot be empty", a.Name)
	}
	seen := make(map[string]bool, len(a.Functions))
	for _, fn := range a.Functions {
		if err := fn.Validate(); err != nil {
			return fmt.Errorf("agent %s: %w", a.Name, err)
		}
		if seen[fn.Name] {
			return fmt.Errorf("agent %s: duplicate function %s", a.Name, fn.Name)
		}
		seen[fn.Name] = true
	}
	return nil
}

// FunctionTable indexes the agent's functions by name
func (a *Agent) FunctionTable() map[string]*Function {
	return functionTable(a.Functions)
}

func functionTable(functions []Function) map[string]*Function {
	table := make(map[string]*Function, len(functions))
	for i := range functions {
		table[functions[i].Name] = &functions[i]
	}
	return table
}

// Output is what an agent function returns: a *Result, an *Agent (handoff)
// or a Value. The set is closed.
type Output interface {
	isOutput()
}

// Value wraps a plain return value that is converted to text
type Value struct {
	V any
}

func (Value) isOutput()   {}
func (*Result) isOutput() {}
func (*Agent) isOutput()  {}

// TextOutput wraps a string return value
func TextOutput(s string) Output {
	return Value{V: s}
}

// Arguments is the decoded argument record of a tool call
type Arguments map[string]any

// ContextVariables returns the injected context variables, if any.
func (a Arguments) ContextVariables() ContextVariables {
	switch cv := a[ContextVariablesKey].(type) {
	case ContextVariables:
		return cv
	case map[string]any:
		return ContextVariables(cv)
	}
	return ContextVariables{}
}

// String returns the argument as a string, or "" when absent.
func (a Arguments) String(name string) string {
	if v, ok := a[name].(string); ok {
		return v
	}
	return ""
}

// Handler is the function signature for agent functions. A returned error
// aborts the run.
type Handler func(ctx context.Context, args Arguments) (Output, error)

// Parameter declares one function parameter
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required" yaml:"required"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Function is a callable tool registered on an agent
type Function struct {
	Name        string
	Description string

	// Parameters declares the argument record. Ignored when Schema is set.
	Parameters []Parameter

	// Schema is an explicit JSON schema for the argument record.
	Schema map[string]any

	// TakesContext requests injection of the run's context variables under
	// ContextVariablesKey. A declared parameter with that name implies it.
	TakesContext bool

	Handler Handler
}

// NewFunction creates a function from a handler
func NewFunction(name, description string, handler Handler, params ...Parameter) Function {
	return Function{
		Name:        name,
		Description: description,
		Parameters:  params,
		Handler:     handler,
	}
}

// WantsContext reports whether context variables are injected on call.
func (f *Function) WantsContext() bool {
	if f.TakesContext {
		return true
	}
	for _, p := range f.Parameters {
		if p.Name == ContextVariablesKey {
			return true
		}
	}
	if props, ok := f.Schema["properties"].(map[string]any); ok {
		if _, ok := props[ContextVariablesKey]; ok {
			return true
		}
	}
	return false
}

// Validate validates a function definition
func (f *Function) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	if f.Handler == nil {
		return fmt.Errorf("function %s: handler cannot be nil", f.Name)
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true, "null": true,
	}
	for _, param := range f.Parameters {
		if param.Name == "" {
			return fmt.Errorf("function %s: parameter name cannot be empty", f.Name)
		}
		if param.Name == ContextVariablesKey {
			continue
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("function %s: invalid parameter type %q for %s", f.Name, param.Type, param.Name)
		}
	}
	return nil
}
