package scratchpad

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/enginecore/pkg/chat"
)

// charTokenCounter treats each rune as one token, so tests can reason
// about exact budgets without a real tokenizer.
type charTokenCounter struct{}

func (charTokenCounter) CountTokens(s string) int { return len([]rune(s)) }

// TestFixAndLimitMessagesHistory_ContextFitting covers spec.md §8 seed
// test 2: a conversation whose naive prompt exceeds n_ctx=4096,
// maxgen=512 is fit to <= 3584 tokens, keeping the system message and
// final user turn.
func TestFixAndLimitMessagesHistory_ContextFitting(t *testing.T) {
	t.Parallel()

	messages := []chat.Message{
		{Role: chat.RoleSystem, Text: "you are a helpful assistant"},
	}
	for i := 0; i < 20; i++ {
		messages = append(messages,
			chat.Message{Role: chat.RoleUser, Text: strings.Repeat("x", 300)},
			chat.Message{Role: chat.RoleAssistant, Text: strings.Repeat("y", 300)},
		)
	}
	finalUser := chat.Message{Role: chat.RoleUser, Text: "what does this code do"}
	messages = append(messages, finalUser)

	tok := charTokenCounter{}
	result := FixAndLimitMessagesHistory(messages, tok, 4096, 512)

	total := 0
	for _, m := range result.Messages {
		total += tok.CountTokens(m.Text)
	}
	assert.LessOrEqual(t, total, 3584)

	require.NotEmpty(t, result.Messages)
	assert.Equal(t, chat.RoleSystem, result.Messages[0].Role)

	last := result.Messages[len(result.Messages)-1]
	assert.Equal(t, finalUser.Text, last.Text)
}

func TestFixAndLimitMessagesHistory_UnderBudgetIsUntouched(t *testing.T) {
	t.Parallel()

	messages := []chat.Message{
		{Role: chat.RoleSystem, Text: "sys"},
		{Role: chat.RoleUser, Text: "hi"},
	}
	result := FixAndLimitMessagesHistory(messages, charTokenCounter{}, 4096, 512)
	assert.Equal(t, messages, result.Messages)
	assert.Zero(t, result.CompressionStrength)
}
