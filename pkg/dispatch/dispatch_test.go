package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/enginecore/pkg/chat"
	"github.com/forgewright/enginecore/pkg/permissions"
	"github.com/forgewright/enginecore/pkg/postprocess"
	"github.com/forgewright/enginecore/pkg/tools"
)

type stubToolSet struct {
	tools []tools.Tool
}

func (s stubToolSet) Tools(context.Context) ([]tools.Tool, error) { return s.tools, nil }

type fakeTokenCounter struct{}

func (fakeTokenCounter) CountTokens(s string) int { return len(s) / 4 }

func shellTool() tools.Tool {
	return tools.Tool{
		Name: "shell",
		Handler: func(_ context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
			return tools.ResultSuccess("ran: " + call.Function.Arguments), nil
		},
	}
}

// TestDispatch_ToolDenial covers spec.md §8 seed test 3: a denied tool
// call returns a tool message whose content begins with the expected
// denial prefix, without aborting the turn.
func TestDispatch_ToolDenial(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, err := NewRegistry(ctx, stubToolSet{tools: []tools.Tool{shellTool()}})
	require.NoError(t, err)

	checker := permissions.NewChecker(&permissions.Config{Deny: []string{"shell:cmd=rm -rf*"}})
	d := New(reg, WithPermissions(checker), WithTokenCounter(fakeTokenCounter{}))

	calls := []tools.ToolCall{{ID: "call_1", Function: tools.FunctionCall{Name: "shell", Arguments: `{"cmd":"rm -rf /"}`}}}

	result, err := d.Dispatch(ctx, calls, nil, 0, postprocess.Settings{TokenLimit: 1000})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, chat.RoleTool, result.Messages[0].Role)
	assert.Equal(t, "call_1", result.Messages[0].ToolCallID)
	assert.Contains(t, result.Messages[0].Text, "tool use: command 'rm -rf /' is denied")
}

// TestDispatch_AskRequiresConfirmation covers I1: an unanswered call
// under the default Ask policy produces no tool message and is surfaced
// via RequiredConfirmation instead.
func TestDispatch_AskRequiresConfirmation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, err := NewRegistry(ctx, stubToolSet{tools: []tools.Tool{shellTool()}})
	require.NoError(t, err)

	d := New(reg, WithTokenCounter(fakeTokenCounter{}))
	calls := []tools.ToolCall{{ID: "call_1", Function: tools.FunctionCall{Name: "shell", Arguments: `{"cmd":"ls"}`}}}

	result, err := d.Dispatch(ctx, calls, nil, 0, postprocess.Settings{TokenLimit: 1000})
	require.NoError(t, err)
	assert.Empty(t, result.Messages)
	assert.Equal(t, []string{"call_1"}, result.RequiredConfirmation)
}

// TestDispatch_AllowRunsConcurrentlyInOrder runs two allowed calls and
// checks answers come back matched to their own call id (order is by
// original index, not completion order).
func TestDispatch_AllowRunsConcurrentlyInOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, err := NewRegistry(ctx, stubToolSet{tools: []tools.Tool{shellTool()}})
	require.NoError(t, err)

	checker := permissions.NewChecker(&permissions.Config{Allow: []string{"shell"}})
	d := New(reg, WithPermissions(checker), WithTokenCounter(fakeTokenCounter{}))

	calls := []tools.ToolCall{
		{ID: "call_1", Function: tools.FunctionCall{Name: "shell", Arguments: `{"cmd":"a"}`}},
		{ID: "call_2", Function: tools.FunctionCall{Name: "shell", Arguments: `{"cmd":"b"}`}},
	}

	result, err := d.Dispatch(ctx, calls, nil, 0, postprocess.Settings{TokenLimit: 1000})
	require.NoError(t, err)
	require.Len(t, result.Messages, 2)
	assert.Equal(t, "call_1", result.Messages[0].ToolCallID)
	assert.Equal(t, "call_2", result.Messages[1].ToolCallID)
}

func TestPendingToolCalls(t *testing.T) {
	t.Parallel()

	calls := []tools.ToolCall{{ID: "a"}, {ID: "b"}}
	answered := []chat.Message{{Role: chat.RoleTool, ToolCallID: "a"}}

	pending := PendingToolCalls(calls, answered)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)
}
