package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/harun/hive/pkg/agent"
	"github.com/rs/zerolog"
)

var templateFuncs = template.FuncMap{
	"default": func(def, v any) any {
		if v == nil {
			return def
		}
		if s, ok := v.(string); ok && s == "" {
			return def
		}
		return v
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"json": func(v any) (string, error) {
		data, err := json.Marshal(v)
		return string(data), err
	},
}

// compileInstructions returns static instructions for plain text and dynamic
// instructions for templates. A template that fails to render falls back to
// its source text.
func compileInstructions(name, text string, logger zerolog.Logger) (agent.Instructions, error) {
	if text == "" {
		return agent.StaticInstructions(agent.DefaultInstructions), nil
	}
	if !strings.Contains(text, "{{") {
		return agent.StaticInstructions(text), nil
	}

	tmpl, err := template.New(name).Funcs(templateFuncs).Parse(text)
	if err != nil {
		return agent.Instructions{}, fmt.Errorf("agent %s: invalid instructions template: %w", name, err)
	}

	return agent.DynamicInstructions(func(cv agent.ContextVariables) string {
		var b strings.Builder
		data := map[string]any(cv)
		if data == nil {
			data = map[string]any{}
		}
		if err := tmpl.Execute(&b, data); err != nil {
			logger.Warn().Err(err).Str("agent", name).Msg("Failed to render instructions")
			return text
		}
		return b.String()
	}), nil
}
