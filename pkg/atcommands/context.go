// Package atcommands implements the At-Commands Context and Resolver
// (spec.md §4.8, §4.9), grounded directly on the refact original's
// run_at_commands_locally/execute_at_commands_in_query
// (_examples/original_source/.../at_commands/execute_at.rs).
package atcommands

import (
	"context"

	"github.com/forgewright/enginecore/pkg/chat"
	"github.com/forgewright/enginecore/pkg/vecstore"
)

// minRAGContextLimit is the floor below which the resolver refuses to
// allocate a per-message context budget (spec.md §4.9, refact's
// MIN_RAG_CONTEXT_LIMIT).
const minRAGContextLimit = 256

// Turn is the per-turn scratchpad (spec.md §4.8): created at the entry of
// a chat/completion turn, destroyed at its end.
type Turn struct {
	ChatID                 string
	NCtx                   int
	TopN                   int
	ShouldExecuteRemotely  bool
	SubchatToolParameters  map[string]any
	PostprocessParameters  map[string]any
	PPSkeleton             bool
	TokensForRAG           int

	// MessagesUnderAssembly is the message vector under assembly for this turn.
	MessagesUnderAssembly []chat.Message
}

// Command is a registered @-command (spec.md §4.9).
type Command interface {
	Name() string
	// Execute runs the command with its parsed arguments and returns
	// context items plus replacement text for the matched span.
	Execute(ctx context.Context, turn *Turn, args []string) (Result, error)
}

// Result is one @-command's output.
type Result struct {
	Messages        []chat.Message
	ContextFiles    []vecstore.ContextFile
	ReplacementText string
}
