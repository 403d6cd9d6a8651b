package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/hive/internal/observability"
	"github.com/harun/hive/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatcher executes requested tool calls against an agent's functions
type Dispatcher struct {
	logger zerolog.Logger

	// ValidateArguments checks decoded arguments against each function's
	// schema before invoking it. Off by default.
	ValidateArguments bool
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// Dispatch invokes each tool call in order. Unknown tools produce an error
// message in the conversation, as do arguments failing schema validation
// when ValidateArguments is set; a failing function aborts the dispatch. Context updates merge in call order
// and the last handoff wins.
func (d *Dispatcher) Dispatch(ctx context.Context, toolCalls []ToolCall, functions []Function, cv ContextVariables) (*PartialResponse, error) {
	table := functionTable(functions)
	logger := tracing.LoggerFromContext(ctx, d.logger)

	partial := &PartialResponse{
		Messages:         []Message{},
		ContextVariables: ContextVariables{},
	}

	for _, toolCall := range toolCalls {
		name := toolCall.Function.Name
		fn, ok := table[name]
		if !ok {
			logger.Debug().Str("tool", name).Msg("Tool not found in function map")
			observability.RecordUnknownTool(name)
			partial.Messages = append(partial.Messages, functionMessage(toolCall, fmt.Sprintf("Error: Tool %s not found.", name)))
			continue
		}

		args, err := decodeArguments(toolCall.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("failed to parse arguments for tool %s: %w", name, err)
		}
		logger.Debug().Str("tool", name).Str("arguments", toolCall.Function.Arguments).Msg("Processing tool call")

		if d.ValidateArguments {
			if err := fn.validateArguments(args); err != nil {
				logger.Warn().Str("tool", name).Err(err).Msg("Tool arguments failed validation")
				partial.Messages = append(partial.Messages, functionMessage(toolCall, fmt.Sprintf("Error: Invalid arguments for tool %s: %v", name, err)))
				continue
			}
		}

		if fn.WantsContext() {
			args[ContextVariablesKey] = cv
		}

		result, err := d.invoke(ctx, logger, fn, args)
		if err != nil {
			return nil, err
		}

		partial.Messages = append(partial.Messages, functionMessage(toolCall, result.Value))
		partial.ContextVariables = partial.ContextVariables.Merge(result.ContextVariables)
		if result.Agent != nil {
			logger.Debug().Str("tool", name).Str("agent", result.Agent.Name).Msg("Handoff requested")
			partial.Agent = result.Agent
		}
	}

	return partial, nil
}

func (d *Dispatcher) invoke(ctx context.Context, logger zerolog.Logger, fn *Function, args Arguments) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "hive.agent", "tool_call", attribute.String("tool", fn.Name))
	defer span.End()
	start := time.Now()

	out, err := fn.Handler(ctx, args)
	if err != nil {
		observability.RecordToolCall(fn.Name, time.Since(start), false)
		tracing.FailSpan(span, err)
		return nil, &ToolError{Tool: fn.Name, Err: err}
	}

	result, err := Normalize(out)
	if err != nil {
		observability.RecordToolCall(fn.Name, time.Since(start), false)
		tracing.FailSpan(span, err)
		logger.Debug().Err(err).Str("tool", fn.Name).Msg("Failed to normalize tool result")
		return nil, err
	}

	observability.RecordToolCall(fn.Name, time.Since(start), true)
	return result, nil
}

func decodeArguments(raw string) (Arguments, error) {
	args := Arguments{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = Arguments{}
	}
	return args, nil
}

func functionMessage(toolCall ToolCall, content string) Message {
	return Message{
		Role:       RoleFunction,
		Name:       toolCall.Function.Name,
		Content:    Text(content),
		ToolCallID: toolCall.ID,
	}
}
