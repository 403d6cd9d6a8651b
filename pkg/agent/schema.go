package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// ToolSchema is the provider-facing description of one function
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolSchemas returns the provider-facing schemas for the agent's functions.
// The context variables parameter is never included.
func (a *Agent) ToolSchemas() []ToolSchema {
	if len(a.Functions) == 0 {
		return nil
	}
	tools := make([]ToolSchema, 0, len(a.Functions))
	for i := range a.Functions {
		fn := &a.Functions[i]
		tools = append(tools, ToolSchema{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  fn.JSONSchema(),
		})
	}
	return tools
}

// JSONSchema returns the argument schema with the context variables
// parameter removed from both properties and required.
func (f *Function) JSONSchema() map[string]any {
	var schema map[string]any
	if f.Schema != nil {
		schema = cloneSchema(f.Schema)
	} else {
		schema = schemaFromParameters(f.Parameters)
	}
	return hideContextVariables(schema)
}

func schemaFromParameters(params []Parameter) map[string]any {
	properties := make(map[string]any, len(params))
	required := []string{}

	for _, param := range params {
		paramSchema := map[string]any{
			"type": param.Type,
		}
		if param.Description != "" {
			paramSchema["description"] = param.Description
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func hideContextVariables(schema map[string]any) map[string]any {
	if props, ok := schema["properties"].(map[string]any); ok {
		delete(props, ContextVariablesKey)
	}
	switch required := schema["required"].(type) {
	case []string:
		kept := make([]string, 0, len(required))
		for _, name := range required {
			if name != ContextVariablesKey {
				kept = append(kept, name)
			}
		}
		if len(kept) == 0 {
			delete(schema, "required")
		} else {
			schema["required"] = kept
		}
	case []any:
		kept := make([]any, 0, len(required))
		for _, name := range required {
			if name != ContextVariablesKey {
				kept = append(kept, name)
			}
		}
		if len(kept) == 0 {
			delete(schema, "required")
		} else {
			schema["required"] = kept
		}
	}
	return schema
}

// cloneSchema copies the top level and the properties map so that stripping
// never touches the caller's schema.
func cloneSchema(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	if props, ok := in["properties"].(map[string]any); ok {
		cp := make(map[string]any, len(props))
		for k, v := range props {
			cp[k] = v
		}
		out["properties"] = cp
	}
	return out
}

// validateArguments checks args against the function's schema
func (f *Function) validateArguments(args Arguments) error {
	loader := gojsonschema.NewGoLoader(f.JSONSchema())
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", f.Name, err)
	}

	params := make(map[string]any, len(args))
	for k, v := range args {
		if k != ContextVariablesKey {
			params[k] = v
		}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errors := []string{}
		for _, e := range result.Errors() {
			errors = append(errors, e.String())
		}
		return fmt.Errorf("validation errors: %v", errors)
	}
	return nil
}

// NewTypedFunction creates a function whose argument record is decoded into
// T. The schema is reflected from T's json and jsonschema struct tags.
func NewTypedFunction[T any](name, description string, fn func(ctx context.Context, in T, cv ContextVariables) (Output, error)) (Function, error) {
	schema, err := reflectSchema[T]()
	if err != nil {
		return Function{}, fmt.Errorf("failed to generate schema for %s: %w", name, err)
	}

	handler := func(ctx context.Context, args Arguments) (Output, error) {
		cv := args.ContextVariables()
		params := make(map[string]any, len(args))
		for k, v := range args {
			if k != ContextVariablesKey {
				params[k] = v
			}
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		var in T
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("failed to decode arguments: %w", err)
		}
		return fn(ctx, in, cv)
	}

	return Function{
		Name:         name,
		Description:  description,
		Schema:       schema,
		TakesContext: true,
		Handler:      handler,
	}, nil
}

func reflectSchema[T any]() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	raw, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, err
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema, nil
}
