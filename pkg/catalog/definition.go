package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Definition is the declarative form of an agent catalog
type Definition struct {
	Name   string            `json:"name" yaml:"name"`
	Entry  string            `json:"entry" yaml:"entry"` // starting agent, defaults to the first
	Agents []AgentDefinition `json:"agents" yaml:"agents"`
}

// AgentDefinition declares one agent
type AgentDefinition struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Model       string `json:"model" yaml:"model"`

	// Instructions may reference context variables with text/template
	// syntax, e.g. "Help {{ .user_name | default \"the user\" }}".
	Instructions string `json:"instructions" yaml:"instructions"`

	// Handoffs names agents this agent can transfer to
	Handoffs []string `json:"handoffs" yaml:"handoffs"`

	// Tools names registered tools available to this agent
	Tools []string `json:"tools" yaml:"tools"`

	ToolChoice        string `json:"tool_choice" yaml:"tool_choice"`
	ParallelToolCalls *bool  `json:"parallel_tool_calls" yaml:"parallel_tool_calls"`
}

// Validate checks names and references inside the definition
func (s *Definition) Validate() error {
	if len(s.Agents) == 0 {
		return fmt.Errorf("catalog has no agents")
	}

	seen := make(map[string]bool, len(s.Agents))
	for i, a := range s.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent at index %d: name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name: %s", a.Name)
		}
		seen[a.Name] = true
	}

	for _, a := range s.Agents {
		for _, target := range a.Handoffs {
			if !seen[target] {
				return fmt.Errorf("agent %s: unknown handoff target %s", a.Name, target)
			}
			if target == a.Name {
				return fmt.Errorf("agent %s: cannot hand off to itself", a.Name)
			}
		}
	}

	if s.Entry != "" && !seen[s.Entry] {
		return fmt.Errorf("unknown entry agent: %s", s.Entry)
	}

	return nil
}

// Parse decodes a YAML catalog. Unknown fields are rejected.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML catalog: %w", err)
	}
	return &def, nil
}

// ReadFile loads a catalog definition from a .yaml, .yml or .json file
func ReadFile(path string) (*Definition, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		return Parse(data)
	case ".json":
		var def Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse JSON catalog: %w", err)
		}
		return &def, nil
	default:
		return nil, fmt.Errorf("unsupported catalog file format: %s (supported: .json, .yaml, .yml)", ext)
	}
}
