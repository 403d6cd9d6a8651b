package agent

import (
	"context"
	"fmt"
	"iter"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider for the OpenAI Chat Completions API
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider. baseURL may be empty.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete makes a non-streaming chat completion call
func (p *OpenAIProvider) Complete(ctx context.Context, request *CompletionRequest) (*Message, error) {
	response, err := p.client.Chat.Completions.New(ctx, openAIParams(request))
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0].Message
	message := &Message{
		Role:    RoleAssistant,
		Content: Text(choice.Content),
	}

	for _, tc := range choice.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + gonanoid.Must()
		}
		message.ToolCalls = append(message.ToolCalls, ToolCall{
			ID:   id,
			Type: "function",
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	if choice.Content == "" && len(message.ToolCalls) > 0 {
		message.Content = nil
	}

	return message, nil
}

// Stream makes a streaming chat completion call and yields one delta per
// chunk
func (p *OpenAIProvider) Stream(ctx context.Context, request *CompletionRequest) iter.Seq2[*Delta, error] {
	return func(yield func(*Delta, error) bool) {
		stream := p.client.Chat.Completions.NewStreaming(ctx, openAIParams(request))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta

			out := &Delta{
				Role:    Role(delta.Role),
				Content: delta.Content,
			}
			for _, tc := range delta.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, ToolCallDelta{
					Index: int(tc.Index),
					ID:    tc.ID,
					Type:  string(tc.Type),
					Function: FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
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

func openAIParams(request *CompletionRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: openAIMessages(request.Messages),
	}

	if len(request.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(request.Tools))
		for _, tool := range request.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.Parameters),
				},
			})
		}
		params.Tools = tools
	}

	if request.ParallelToolCalls != nil {
		params.ParallelToolCalls = openai.Bool(*request.ParallelToolCalls)
	}

	switch request.ToolChoice {
	case "":
	case "auto", "none", "required":
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(request.ToolChoice),
		}
	default:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
					Name: request.ToolChoice,
				},
			},
		}
	}

	return params
}

func openAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.ContentString()))
		case RoleUser:
			out = append(out, openai.UserMessage(msg.ContentString()))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.ContentString()))
				continue
			}

			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: toolCalls,
			}
			if msg.Content != nil && *msg.Content != "" {
				assistant.Content.OfString = openai.String(*msg.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleFunction, RoleTool:
			out = append(out, openai.ToolMessage(msg.ContentString(), msg.ToolCallID))
		}
	}

	return out
}
