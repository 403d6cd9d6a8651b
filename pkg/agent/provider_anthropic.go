package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider implements Provider for the Anthropic Messages API.
// Function-role messages are sent as tool_result blocks.
type AnthropicProvider struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropicProvider creates a new Anthropic provider. baseURL may be empty
// and maxTokens <= 0 selects the default.
func NewAnthropicProvider(apiKey, baseURL string, maxTokens int) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		maxTokens: int64(maxTokens),
	}
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete makes a non-streaming Messages API call
func (p *AnthropicProvider) Complete(ctx context.Context, request *CompletionRequest) (*Message, error) {
	params, err := p.params(request)
	if err != nil {
		return nil, err
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	content := ""
	message := &Message{Role: RoleAssistant}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			message.ToolCalls = append(message.ToolCalls, ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      b.Name,
					Arguments: b.JSON.Input.Raw(),
				},
			})
		}
	}
	if content != "" || len(message.ToolCalls) == 0 {
		message.Content = Text(content)
	}

	return message, nil
}

// Stream makes a streaming Messages API call. Tool-use content blocks are
// numbered in arrival order to form tool call indexes.
func (p *AnthropicProvider) Stream(ctx context.Context, request *CompletionRequest) iter.Seq2[*Delta, error] {
	params, err := p.params(request)
	if err != nil {
		return errorSeq(err)
	}

	return func(yield func(*Delta, error) bool) {
		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		toolIndex := map[int64]int{}

		for stream.Next() {
			event := stream.Current()

			var out *Delta
			switch variant := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				out = &Delta{Role: RoleAssistant}
			case anthropic.ContentBlockStartEvent:
				if variant.ContentBlock.Type != "tool_use" {
					continue
				}
				idx := len(toolIndex)
				toolIndex[variant.Index] = idx
				out = &Delta{ToolCalls: []ToolCallDelta{{
					Index: idx,
					ID:    variant.ContentBlock.ID,
					Type:  "function",
					Function: FunctionCall{
						Name: variant.ContentBlock.Name,
					},
				}}}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					out = &Delta{Content: delta.Text}
				case anthropic.InputJSONDelta:
					idx, ok := toolIndex[variant.Index]
					if !ok {
						continue
					}
					out = &Delta{ToolCalls: []ToolCallDelta{{
						Index:    idx,
						Function: FunctionCall{Arguments: delta.PartialJSON},
					}}}
				}
			}
			if out == nil {
				continue
			}

			if !yield(out, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func (p *AnthropicProvider) params(request *CompletionRequest) (anthropic.MessageNewParams, error) {
	system, messages, err := anthropicMessages(request.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		Messages:  messages,
		MaxTokens: p.maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if len(request.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(request.Tools))
		for _, tool := range request.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.Parameters["properties"],
					Required:   requiredNames(tool.Parameters),
				},
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
		params.ToolChoice = anthropicToolChoice(request)
	}

	return params, nil
}

func anthropicToolChoice(request *CompletionRequest) anthropic.ToolChoiceUnionParam {
	disableParallel := request.ParallelToolCalls != nil && !*request.ParallelToolCalls

	switch request.ToolChoice {
	case "", "auto":
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{
			DisableParallelToolUse: anthropic.Bool(disableParallel),
		}}
	case "required":
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{
			DisableParallelToolUse: anthropic.Bool(disableParallel),
		}}
	case "none":
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{
			Name:                   request.ToolChoice,
			DisableParallelToolUse: anthropic.Bool(disableParallel),
		}}
	}
}

func requiredNames(schema map[string]any) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []any:
		names := make([]string, 0, len(required))
		for _, r := range required {
			if name, ok := r.(string); ok {
				names = append(names, name)
			}
		}
		return names
	}
	return nil
}

// anthropicMessages converts the conversation. System messages are joined
// into the system prompt and consecutive tool results share one user turn.
func anthropicMessages(messages []Message) (string, []anthropic.MessageParam, error) {
	system := ""
	out := []anthropic.MessageParam{}
	var pendingResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.ContentString()
		case RoleFunction, RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.ContentString(), false))
		case RoleUser:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.ContentString())))
		case RoleAssistant:
			flush()
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.ContentString() != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.ContentString()))
			}
			for _, tc := range msg.ToolCalls {
				input := map[string]any{}
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
						return "", nil, fmt.Errorf("failed to parse tool arguments for %s: %w", tc.Function.Name, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		}
	}
	flush()

	return system, out, nil
}
