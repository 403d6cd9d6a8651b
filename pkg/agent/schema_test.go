package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSchemaFromParameters(t *testing.T) {
	fn := NewFunction("get_weather", "Get the weather", nil,
		Parameter{Name: "location", Type: "string", Description: "City name", Required: true},
		Parameter{Name: "unit", Type: "string", Default: "celsius"},
		Parameter{Name: ContextVariablesKey, Type: "object", Required: true},
	)

	schema := fn.JSONSchema()

	assert.Equal(t, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{"type": "string", "description": "City name"},
			"unit":     map[string]any{"type": "string", "default": "celsius"},
		},
		"required": []string{"location"},
	}, schema)
	assert.True(t, fn.WantsContext())
}

func TestJSONSchemaOmitsEmptyRequired(t *testing.T) {
	fn := NewFunction("ping", "", nil, Parameter{Name: ContextVariablesKey, Type: "object", Required: true})

	schema := fn.JSONSchema()

	assert.NotContains(t, schema, "required")
	assert.Equal(t, map[string]any{}, schema["properties"])
}

func TestJSONSchemaStripsExplicitSchema(t *testing.T) {
	explicit := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"q":                 map[string]any{"type": "string"},
			ContextVariablesKey: map[string]any{"type": "object"},
		},
		"required": []any{ContextVariablesKey, "q"},
	}
	fn := Function{Name: "search", Schema: explicit}

	schema := fn.JSONSchema()

	assert.Equal(t, []any{"q"}, schema["required"])
	assert.NotContains(t, schema["properties"], ContextVariablesKey)
	assert.Contains(t, explicit["properties"], ContextVariablesKey)
	assert.Equal(t, []any{ContextVariablesKey, "q"}, explicit["required"])
	assert.True(t, fn.WantsContext())
}

func TestToolSchemas(t *testing.T) {
	a := NewAgent("bee")
	assert.Nil(t, a.ToolSchemas())

	a.Functions = []Function{constFunction("one", TextOutput("1")), constFunction("two", TextOutput("2"))}
	tools := a.ToolSchemas()
	require.Len(t, tools, 2)
	assert.Equal(t, "one", tools[0].Name)
	assert.Equal(t, "test function", tools[0].Description)
	assert.Equal(t, "two", tools[1].Name)
}

func TestValidateArguments(t *testing.T) {
	fn := NewFunction("get_weather", "", nil,
		Parameter{Name: "location", Type: "string", Required: true},
		Parameter{Name: "days", Type: "integer"},
	)

	t.Run("should accept valid arguments", func(t *testing.T) {
		err := fn.validateArguments(Arguments{"location": "Oslo", "days": float64(3)})
		assert.NoError(t, err)
	})

	t.Run("should ignore injected context", func(t *testing.T) {
		err := fn.validateArguments(Arguments{"location": "Oslo", ContextVariablesKey: ContextVariables{}})
		assert.NoError(t, err)
	})

	t.Run("should reject a missing required argument", func(t *testing.T) {
		err := fn.validateArguments(Arguments{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "location is required")
	})

	t.Run("should reject a wrong type", func(t *testing.T) {
		err := fn.validateArguments(Arguments{"location": true})
		assert.Error(t, err)
	})
}

type forecastInput struct {
	City string `json:"city" jsonschema:"description=City to forecast"`
	Days int    `json:"days,omitempty"`
}

func TestNewTypedFunction(t *testing.T) {
	var gotIn forecastInput
	var gotCV ContextVariables

	fn, err := NewTypedFunction("forecast", "Forecast the weather", func(ctx context.Context, in forecastInput, cv ContextVariables) (Output, error) {
		gotIn = in
		gotCV = cv
		return TextOutput("sunny"), nil
	})
	require.NoError(t, err)

	schema := fn.JSONSchema()
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"city"}, schema["required"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "days")
	assert.True(t, fn.WantsContext())

	out, err := fn.Handler(context.Background(), Arguments{
		"city":              "Bergen",
		"days":              float64(2),
		ContextVariablesKey: ContextVariables{"user": "ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, TextOutput("sunny"), out)
	assert.Equal(t, forecastInput{City: "Bergen", Days: 2}, gotIn)
	assert.Equal(t, ContextVariables{"user": "ada"}, gotCV)

	assert.NoError(t, fn.validateArguments(Arguments{"city": "Bergen"}))
	assert.Error(t, fn.validateArguments(Arguments{"city": "Bergen", "extra": 1}))
}
