package scratchpad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/enginecore/pkg/capabilities"
	"github.com/forgewright/enginecore/pkg/chat"
)

func TestAdaptReasoning_OpenAIBoost(t *testing.T) {
	t.Parallel()

	model := capabilities.Record{SupportsReasoning: capabilities.ReasoningOpenAI, SupportsBoostReasoning: true}
	messages := []chat.Message{
		{Role: chat.RoleSystem, Text: "sys"},
		{Role: chat.RoleUser, Text: "hi"},
	}

	out, params := AdaptReasoning(messages, model, true, 1000)
	assert.Equal(t, "high", params.ReasoningEffort)
	require.Len(t, out, 2)
	assert.Equal(t, chat.RoleUser, out[0].Role)
}

func TestAdaptReasoning_OpenAIWithoutBoostSupport(t *testing.T) {
	t.Parallel()

	model := capabilities.Record{SupportsReasoning: capabilities.ReasoningOpenAI, SupportsBoostReasoning: false}
	messages := []chat.Message{{Role: chat.RoleSystem, Text: "sys"}}

	out, params := AdaptReasoning(messages, model, true, 1000)
	assert.Empty(t, params.ReasoningEffort)
	assert.Equal(t, messages, out)
}

func TestAdaptReasoning_AnthropicBoost(t *testing.T) {
	t.Parallel()

	model := capabilities.Record{SupportsReasoning: capabilities.ReasoningAnthropic}
	_, params := AdaptReasoning(nil, model, true, 1000)
	require.NotNil(t, params.Thinking)
	assert.Equal(t, "enabled", params.Thinking.Type)
	assert.Equal(t, 500, params.Thinking.BudgetTokens)
}

func TestAdaptReasoning_NotBoosted(t *testing.T) {
	t.Parallel()

	model := capabilities.Record{SupportsReasoning: capabilities.ReasoningAnthropic}
	messages := []chat.Message{{Role: chat.RoleUser, Text: "hi"}}
	out, params := AdaptReasoning(messages, model, false, 1000)
	assert.Equal(t, messages, out)
	assert.Equal(t, ReasoningParams{}, params)
}

func TestPrepareThinkingBlocks_ReplacesOnlyLastOrphanAssistant(t *testing.T) {
	t.Parallel()

	model := capabilities.Record{SupportsReasoning: capabilities.ReasoningAnthropic}
	messages := []chat.Message{
		{Role: chat.RoleUser, Text: "hi"},
		{Role: chat.RoleAssistant, Text: "partial"},
	}

	out := PrepareThinkingBlocks(messages, model, true)
	require.Len(t, out, 2)
	assert.True(t, out[1].HasThinking())
}

func TestPrepareThinkingBlocks_PreservesAssistantWithToolCalls(t *testing.T) {
	t.Parallel()

	model := capabilities.Record{SupportsReasoning: capabilities.ReasoningAnthropic}
	messages := []chat.Message{
		{Role: chat.RoleAssistant, ToolCalls: []chat.ToolCall{{ID: "1"}}},
	}

	out := PrepareThinkingBlocks(messages, model, true)
	assert.Equal(t, messages, out)
}
