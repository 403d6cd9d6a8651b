package agent

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conversation() []Message {
	return []Message{
		SystemMessage("Be brief."),
		UserMessage("weather?"),
		{Role: RoleAssistant, Sender: "bee", ToolCalls: []ToolCall{
			call("c1", "get_weather", `{"city":"Oslo"}`),
			call("c2", "get_time", ""),
		}},
		{Role: RoleFunction, Name: "get_weather", Content: Text("rain"), ToolCallID: "c1"},
		{Role: RoleTool, Name: "get_time", Content: Text("noon"), ToolCallID: "c2"},
		{Role: RoleAssistant, Content: Text("Rain at noon."), Sender: "bee"},
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		cfg     ProviderConfig
		want    string
		wantErr bool
	}{
		{ProviderConfig{}, "openai", false},
		{ProviderConfig{Provider: "openai", APIKey: "k"}, "openai", false},
		{ProviderConfig{Provider: "anthropic", APIKey: "k", MaxTokens: 100}, "anthropic", false},
		{ProviderConfig{Provider: "gemini"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Provider, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unsupported provider")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}

	assert.Equal(t, int64(defaultAnthropicMaxTokens), NewAnthropicProvider("k", "", 0).maxTokens)
}

func TestOpenAIParams(t *testing.T) {
	parallel := false
	request := &CompletionRequest{
		Model:    "gpt-4o",
		Messages: conversation(),
		Tools: []ToolSchema{{
			Name:        "get_weather",
			Description: "Weather lookup",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		}},
		ToolChoice:        "required",
		ParallelToolCalls: &parallel,
	}

	params := openAIParams(request)

	assert.Equal(t, "gpt-4o", string(params.Model))
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "get_weather", params.Tools[0].Function.Name)
	assert.False(t, params.ParallelToolCalls.Value)
	assert.Equal(t, "required", params.ToolChoice.OfAuto.Value)

	named := openAIParams(&CompletionRequest{Model: "gpt-4o", ToolChoice: "get_weather"})
	require.NotNil(t, named.ToolChoice.OfChatCompletionNamedToolChoice)
	assert.Equal(t, "get_weather", named.ToolChoice.OfChatCompletionNamedToolChoice.Function.Name)

	bare := openAIParams(&CompletionRequest{Model: "gpt-4o"})
	assert.Empty(t, bare.Tools)
	assert.Empty(t, bare.ToolChoice.OfAuto.Value)
}

func TestOpenAIMessages(t *testing.T) {
	out := openAIMessages(conversation())

	require.Len(t, out, 6)
	assert.NotNil(t, out[0].OfSystem)
	assert.NotNil(t, out[1].OfUser)

	require.NotNil(t, out[2].OfAssistant)
	require.Len(t, out[2].OfAssistant.ToolCalls, 2)
	assert.Equal(t, "c1", out[2].OfAssistant.ToolCalls[0].ID)
	assert.Equal(t, `{"city":"Oslo"}`, out[2].OfAssistant.ToolCalls[0].Function.Arguments)

	require.NotNil(t, out[3].OfTool)
	assert.Equal(t, "c1", out[3].OfTool.ToolCallID)
	require.NotNil(t, out[4].OfTool)
	assert.Equal(t, "c2", out[4].OfTool.ToolCallID)
	assert.NotNil(t, out[5].OfAssistant)
}

func TestAnthropicMessages(t *testing.T) {
	system, out, err := anthropicMessages(append([]Message{SystemMessage("Be kind.")}, conversation()...))
	require.NoError(t, err)

	assert.Equal(t, "Be kind.\n\nBe brief.", system)
	require.Len(t, out, 4)

	assert.Equal(t, anthropic.MessageParamRoleUser, out[0].Role)

	assert.Equal(t, anthropic.MessageParamRoleAssistant, out[1].Role)
	require.Len(t, out[1].Content, 2)
	require.NotNil(t, out[1].Content[0].OfToolUse)
	assert.Equal(t, "c1", out[1].Content[0].OfToolUse.ID)
	assert.Equal(t, "get_weather", out[1].Content[0].OfToolUse.Name)
	assert.Equal(t, "c2", out[1].Content[1].OfToolUse.ID)

	// both tool results share one user turn
	assert.Equal(t, anthropic.MessageParamRoleUser, out[2].Role)
	require.Len(t, out[2].Content, 2)
	require.NotNil(t, out[2].Content[0].OfToolResult)
	assert.Equal(t, "c1", out[2].Content[0].OfToolResult.ToolUseID)
	assert.Equal(t, "c2", out[2].Content[1].OfToolResult.ToolUseID)

	assert.Equal(t, anthropic.MessageParamRoleAssistant, out[3].Role)
	require.NotNil(t, out[3].Content[0].OfText)
	assert.Equal(t, "Rain at noon.", out[3].Content[0].OfText.Text)
}

func TestAnthropicMessagesRejectsBadArguments(t *testing.T) {
	_, _, err := anthropicMessages([]Message{{Role: RoleAssistant, ToolCalls: []ToolCall{call("c1", "f", "{nope")}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse tool arguments for f")
}

func TestAnthropicToolChoice(t *testing.T) {
	parallel := false

	auto := anthropicToolChoice(&CompletionRequest{})
	require.NotNil(t, auto.OfAuto)
	assert.False(t, auto.OfAuto.DisableParallelToolUse.Value)

	required := anthropicToolChoice(&CompletionRequest{ToolChoice: "required", ParallelToolCalls: &parallel})
	require.NotNil(t, required.OfAny)
	assert.True(t, required.OfAny.DisableParallelToolUse.Value)

	none := anthropicToolChoice(&CompletionRequest{ToolChoice: "none"})
	assert.NotNil(t, none.OfNone)

	named := anthropicToolChoice(&CompletionRequest{ToolChoice: "get_weather"})
	require.NotNil(t, named.OfTool)
	assert.Equal(t, "get_weather", named.OfTool.Name)
}

func TestAnthropicParams(t *testing.T) {
	p := NewAnthropicProvider("k", "", 0)
	params, err := p.params(&CompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{SystemMessage("sys"), UserMessage("hi")},
		Tools: []ToolSchema{{
			Name: "get_weather",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"city": map[string]any{"type": "string"}},
				"required":   []string{"city"},
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(defaultAnthropicMaxTokens), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "sys", params.System[0].Text)
	require.Len(t, params.Tools, 1)
	require.NotNil(t, params.Tools[0].OfTool)
	assert.Equal(t, []string{"city"}, params.Tools[0].OfTool.InputSchema.Required)
	assert.NotNil(t, params.ToolChoice.OfAuto)
}

func TestRequiredNames(t *testing.T) {
	assert.Equal(t, []string{"a"}, requiredNames(map[string]any{"required": []string{"a"}}))
	assert.Equal(t, []string{"a", "b"}, requiredNames(map[string]any{"required": []any{"a", 1, "b"}}))
	assert.Nil(t, requiredNames(map[string]any{}))
}
