package catalog

import (
	"fmt"

	"github.com/harun/hive/pkg/agent"
	"github.com/rs/zerolog"
)

// Catalog is a built set of agents wired together by handoff functions.
// Agents are fully constructed before Build returns and are never changed
// afterwards.
type Catalog struct {
	name   string
	entry  string
	order  []string
	agents map[string]*agent.Agent
	defs   map[string]AgentDefinition
}

// Options configures Build
type Options struct {
	// DefaultModel is used for agents without a model
	DefaultModel string
	// Registry resolves tool names. Nil selects NewRegistry().
	Registry *Registry
	Logger   zerolog.Logger
}

// Build turns a definition into agents. Every agent is created first, then tools
// and handoff functions are attached, so handoffs may form cycles.
func Build(def *Definition, opts Options) (*Catalog, error) {
	if def == nil {
		return nil, fmt.Errorf("catalog definition is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	c := &Catalog{
		name:   def.Name,
		entry:  def.Entry,
		agents: make(map[string]*agent.Agent, len(def.Agents)),
		defs:   make(map[string]AgentDefinition, len(def.Agents)),
	}
	if c.entry == "" {
		c.entry = def.Agents[0].Name
	}

	for _, as := range def.Agents {
		a := agent.NewAgent(as.Name)
		switch {
		case as.Model != "":
			a.Model = as.Model
		case opts.DefaultModel != "":
			a.Model = opts.DefaultModel
		}

		instructions, err := compileInstructions(as.Name, as.Instructions, opts.Logger)
		if err != nil {
			return nil, err
		}
		a.Instructions = instructions
		a.ToolChoice = as.ToolChoice
		if as.ParallelToolCalls != nil {
			a.ParallelToolCalls = *as.ParallelToolCalls
		}

		c.agents[as.Name] = a
		c.defs[as.Name] = as
		c.order = append(c.order, as.Name)
	}

	for _, as := range def.Agents {
		a := c.agents[as.Name]
		functions := make([]agent.Function, 0, len(as.Tools)+len(as.Handoffs))

		for _, name := range as.Tools {
			fn, err := registry.Get(name)
			if err != nil {
				return nil, fmt.Errorf("agent %s: %w", as.Name, err)
			}
			functions = append(functions, fn)
		}
		for _, target := range as.Handoffs {
			functions = append(functions, HandoffTool(c.agents[target], c.defs[target].Description))
		}

		a.Functions = functions
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}

	opts.Logger.Debug().
		Str("catalog", c.name).
		Int("agents", len(c.order)).
		Str("entry", c.entry).
		Msg("Built agent catalog")

	return c, nil
}

// Load reads and builds a catalog file
func Load(path string, opts Options) (*Catalog, error) {
	def, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(def, opts)
}

// Name returns the catalog name
func (c *Catalog) Name() string {
	return c.name
}

// Entry returns the starting agent
func (c *Catalog) Entry() *agent.Agent {
	return c.agents[c.entry]
}

// Agent returns the named agent
func (c *Catalog) Agent(name string) (*agent.Agent, bool) {
	a, ok := c.agents[name]
	return a, ok
}

// Names lists agents in declaration order
func (c *Catalog) Names() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// Describe returns the declared description of the named agent
func (c *Catalog) Describe(name string) string {
	return c.defs[name].Description
}
