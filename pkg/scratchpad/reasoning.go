package scratchpad

import (
	"github.com/forgewright/enginecore/pkg/capabilities"
	"github.com/forgewright/enginecore/pkg/chat"
)

// ReasoningParams are the provider-payload fields the Reasoning Adapter
// sets or clears (spec.md §4.13).
type ReasoningParams struct {
	ReasoningEffort string // "high" when boosted on an OpenAI-style reasoning model
	Temperature     *float64
	Thinking        *ThinkingConfig // Anthropic-style extended thinking
}

// ThinkingConfig is the Anthropic `thinking` payload field.
type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// AdaptReasoning applies the Reasoning Adapter (spec.md §4.13) to a
// message history and returns the provider parameters to encode
// alongside it. boostReasoning is the caller's request flag; maxNewTokens
// is the turn's max_completion_tokens.
//
// For supports_reasoning=openai models, boosting sets reasoning_effort
// to "high", unsets temperature, and retargets any system message to
// user (OpenAI reasoning models prefer this). For anthropic models,
// boosting encodes thinking={type:enabled, budget_tokens:
// max_new_tokens/2}. Messages are returned unmodified when the model
// does not support reasoning or boosting was not requested.
func AdaptReasoning(messages []chat.Message, model capabilities.Record, boostReasoning bool, maxNewTokens int) ([]chat.Message, ReasoningParams) {
	if !boostReasoning {
		return messages, ReasoningParams{}
	}

	switch model.SupportsReasoning {
	case capabilities.ReasoningOpenAI:
		if !model.SupportsBoostReasoning {
			return messages, ReasoningParams{}
		}
		return retargetSystemToUser(messages), ReasoningParams{ReasoningEffort: "high"}
	case capabilities.ReasoningAnthropic:
		return messages, ReasoningParams{Thinking: &ThinkingConfig{Type: "enabled", BudgetTokens: maxNewTokens / 2}}
	default:
		return messages, ReasoningParams{}
	}
}

// retargetSystemToUser rewrites system messages to user role, per the
// OpenAI reasoning-model preference noted in spec.md §4.13.
func retargetSystemToUser(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, len(messages))
	copy(out, messages)
	for i := range out {
		if out[i].Role == chat.RoleSystem {
			out[i].Role = chat.RoleUser
		}
	}
	return out
}

// PrepareThinkingBlocks applies the interruption-placeholder hack (spec.md
// §9 "Thinking-block hack"): when the last assistant message in the
// conversation has empty ToolCalls and carries no thinking blocks while
// the model requires them (reasoning=anthropic, boosted), replace it
// with a placeholder rather than dropping prior thinking state. Only the
// last assistant message is ever touched; any assistant message with
// non-empty ToolCalls is left alone because its thinking must be
// preserved verbatim (I6).
func PrepareThinkingBlocks(messages []chat.Message, model capabilities.Record, boostReasoning bool) []chat.Message {
	if !boostReasoning || model.SupportsReasoning != capabilities.ReasoningAnthropic {
		return messages
	}

	idx := lastAssistantIndex(messages)
	if idx < 0 {
		return messages
	}
	last := &messages[idx]
	if len(last.ToolCalls) > 0 || last.HasThinking() {
		return messages
	}

	out := make([]chat.Message, len(messages))
	copy(out, messages)
	out[idx] = chat.Message{
		Role: chat.RoleAssistant,
		ThinkingBlocks: []chat.MessagePart{
			{Type: chat.PartRedactedThinking, Thinking: "(continuing)"},
		},
		Text: last.Text,
	}
	return out
}

func lastAssistantIndex(messages []chat.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleAssistant {
			return i
		}
	}
	return -1
}
