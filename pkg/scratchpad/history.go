// Package scratchpad implements the Chat Scratchpad (spec.md §4.9 output
// consumer, §4.10, §4.13): it fits message history to the model's
// context window and encodes reasoning/thinking parameters before a
// payload is handed to the Streaming Proxy.
package scratchpad

import (
	"github.com/forgewright/enginecore/pkg/chat"
)

// safetyMargin is held back from n_ctx-maxgen in addition to maxgen
// itself, absorbing tokenizer estimation error (spec.md §4.10).
const safetyMargin = 64

// TokenCounter counts tokens in a string.
type TokenCounter interface {
	CountTokens(text string) int
}

// LimitResult is the outcome of fitting a message history to budget.
type LimitResult struct {
	Messages []chat.Message
	// CompressionStrength records how aggressively messages were
	// dropped/compressed, 0 (untouched) to 1 (maximally compressed), so
	// the provider payload can let upstream caching distinguish variants
	// (spec.md §4.10).
	CompressionStrength float64
}

// FixAndLimitMessagesHistory ensures messages fit within n_ctx-maxgen
// tokens (spec.md §4.10, invariant I2): it never drops the system
// message, drops/compresses from the middle outward, and keeps the
// latest user/assistant/tool cluster intact.
func FixAndLimitMessagesHistory(messages []chat.Message, tok TokenCounter, nCtx, maxgen int) LimitResult {
	reserve := nCtx - maxgen - safetyMargin
	if reserve < 0 {
		reserve = 0
	}

	if countTokens(messages, tok) <= reserve {
		return LimitResult{Messages: messages}
	}

	systemIdx, hasSystem := systemMessageIndex(messages)
	tailStart := latestClusterStart(messages)

	kept := make([]bool, len(messages))
	if hasSystem {
		kept[systemIdx] = true
	}
	for i := tailStart; i < len(messages); i++ {
		kept[i] = true
	}

	budget := reserve - tokensOf(kept, messages, tok)

	// Fill remaining budget from the middle outward: alternate stepping
	// away from the midpoint between the protected head and protected
	// tail, taking whichever side still fits.
	mid := (boolIndexAfter(hasSystem, systemIdx) + tailStart) / 2
	left, right := mid, mid+1
	dropped := 0
	total := 0
	for i := range messages {
		if !kept[i] {
			total++
		}
	}

	for left >= 0 || right < len(messages) {
		if left >= 0 && !kept[left] {
			cost := tok.CountTokens(messages[left].Text)
			if cost <= budget {
				kept[left] = true
				budget -= cost
			} else {
				dropped++
			}
		}
		left--
		if right < len(messages) && !kept[right] {
			cost := tok.CountTokens(messages[right].Text)
			if cost <= budget {
				kept[right] = true
				budget -= cost
			} else {
				dropped++
			}
		}
		right++
	}

	out := make([]chat.Message, 0, len(messages))
	for i, k := range kept {
		if k {
			out = append(out, messages[i])
		}
	}

	strength := 0.0
	if total > 0 {
		strength = float64(dropped) / float64(total)
	}
	return LimitResult{Messages: out, CompressionStrength: strength}
}

func boolIndexAfter(has bool, idx int) int {
	if has {
		return idx + 1
	}
	return 0
}

func countTokens(messages []chat.Message, tok TokenCounter) int {
	total := 0
	for _, m := range messages {
		total += tok.CountTokens(m.Text)
	}
	return total
}

func tokensOf(kept []bool, messages []chat.Message, tok TokenCounter) int {
	total := 0
	for i, k := range kept {
		if k {
			total += tok.CountTokens(messages[i].Text)
		}
	}
	return total
}

func systemMessageIndex(messages []chat.Message) (int, bool) {
	for i, m := range messages {
		if m.Role == chat.RoleSystem {
			return i, true
		}
	}
	return -1, false
}

// latestClusterStart finds the start of the latest user/assistant/tool
// cluster: the last user message, together with any assistant/tool
// messages after it. Without a user message only the final message is
// protected.
func latestClusterStart(messages []chat.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleUser {
			return i
		}
	}
	return len(messages) - 1
}
