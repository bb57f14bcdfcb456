package scratchpad

import (
	"context"
	"fmt"

	"github.com/forgewright/enginecore/pkg/atcommands"
	"github.com/forgewright/enginecore/pkg/capabilities"
	"github.com/forgewright/enginecore/pkg/chat"
	"github.com/forgewright/enginecore/pkg/postprocess"
)

// Payload is what the Streaming Proxy sends upstream: a fitted message
// history plus the reasoning parameters the Reasoning Adapter derived
// (spec.md §2 "Chat Scratchpad: builds provider payload").
type Payload struct {
	Messages            []chat.Message
	Model               capabilities.Record
	Reasoning           ReasoningParams
	MaxNewTokens         int
	CompressionStrength float64
}

// Scratchpad builds a chat turn's provider payload: resolve @-commands,
// postprocess the context files they produced, fit history to budget,
// then apply the reasoning adapter (spec.md §2 "Control flow of a chat
// turn", steps 2-4).
type Scratchpad struct {
	resolver  *atcommands.Resolver
	tokenizer TokenCounter
}

// New constructs a Scratchpad over a command resolver and token counter.
func New(resolver *atcommands.Resolver, tokenizer TokenCounter) *Scratchpad {
	return &Scratchpad{resolver: resolver, tokenizer: tokenizer}
}

// BuildPayload runs the scratchpad's share of a chat turn (spec.md §2
// steps 2-4, §4.9, §4.10, §4.13).
func (s *Scratchpad) BuildPayload(ctx context.Context, turn *atcommands.Turn, model capabilities.Record, maxgen int, boostReasoning bool) (Payload, error) {
	messages, err := s.resolveAtCommands(ctx, turn)
	if err != nil {
		return Payload{}, fmt.Errorf("resolving at-commands: %w", err)
	}

	limited := FixAndLimitMessagesHistory(messages, s.tokenizer, turn.NCtx, maxgen)

	adapted := PrepareThinkingBlocks(limited.Messages, model, boostReasoning)
	adapted, reasoning := AdaptReasoning(adapted, model, boostReasoning, maxgen)

	return Payload{
		Messages:            adapted,
		Model:               model,
		Reasoning:           reasoning,
		MaxNewTokens:        maxgen,
		CompressionStrength: limited.CompressionStrength,
	}, nil
}

// resolveAtCommands runs the resolver over every user message and
// splices the results into the rebuilt history
// (spec.md §4.9): command-produced messages and postprocessed context
// files are inserted immediately before the user message that triggered
// them.
func (s *Scratchpad) resolveAtCommands(ctx context.Context, turn *atcommands.Turn) ([]chat.Message, error) {
	messages := turn.MessagesUnderAssembly
	nWithAt := atcommands.TrailingUserMessagesWithAt(messages)
	perMessageBudget := atcommands.ReserveForContext(turn.TokensForRAG, nWithAt)

	out := make([]chat.Message, 0, len(messages))
	for i := range messages {
		msg := messages[i]
		if msg.Role != chat.RoleUser {
			out = append(out, msg)
			continue
		}

		rewritten, result, err := s.resolver.ExecuteInQuery(ctx, turn, msg.Text)
		if err != nil {
			return nil, err
		}
		msg.Text = rewritten

		out = append(out, result.Messages...)
		if len(result.ContextFiles) > 0 {
			settings := postprocess.Settings{TokenLimit: perMessageBudget}
			if turn.PPSkeleton {
				settings.TakeFloor = 50.0
			}
			rendered := postprocess.Process(result.ContextFiles, s.tokenizer, settings)
			if text := renderContextFiles(rendered); text != "" {
				out = append(out, chat.Message{Role: chat.RoleContextFile, Text: text})
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func renderContextFiles(files []postprocess.RenderedFile) string {
	var out string
	for _, f := range files {
		out += fmt.Sprintf("%s:\n", f.FileName)
		for i, r := range f.Ranges {
			if i > 0 {
				out += "...\n"
			}
			out += r.Text + "\n"
		}
	}
	return out
}
