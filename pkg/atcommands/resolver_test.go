package atcommands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/enginecore/pkg/chat"
)

type stubCommand struct {
	name  string
	reply string
}

func (s stubCommand) Name() string { return s.name }

func (s stubCommand) Execute(_ context.Context, _ *Turn, args []string) (Result, error) {
	return Result{ReplacementText: s.reply}, nil
}

func TestExecuteInQuery_SeedCaseFileArg(t *testing.T) {
	t.Parallel()
	r := NewResolver(stubCommand{name: "file", reply: "[foo.py contents]"})
	out, res, err := r.ExecuteInQuery(context.Background(), &Turn{}, "hello @file foo.py world")
	require.NoError(t, err)
	assert.Equal(t, "hello [foo.py contents] world", out)
	assert.Empty(t, res.Messages)
}

func TestExecuteInQuery_RoundTripNoCommands(t *testing.T) {
	t.Parallel()
	r := NewResolver()
	out, _, err := r.ExecuteInQuery(context.Background(), &Turn{}, "plain text, no commands here.")
	require.NoError(t, err)
	assert.Equal(t, "plain text, no commands here.", out)
}

func TestExecuteInQuery_MultipleCommandsReverseSplice(t *testing.T) {
	t.Parallel()
	r := NewResolver(
		stubCommand{name: "a", reply: "<A>"},
		stubCommand{name: "b", reply: "<B>"},
	)
	out, _, err := r.ExecuteInQuery(context.Background(), &Turn{}, "@a one @b two")
	require.NoError(t, err)
	assert.Equal(t, "<A> <B>", out)
}

func TestTrimsTrailingPunctuation(t *testing.T) {
	t.Parallel()
	members := parseWordsFromLine("@file foo.py, please")
	require.Len(t, members, 3)
	assert.Equal(t, "@file", members[0].Text)
	assert.Equal(t, "foo.py", members[1].Text)
}

func TestReserveForContext_FloorsAtMinimum(t *testing.T) {
	t.Parallel()
	assert.Equal(t, minRAGContextLimit, ReserveForContext(100, 1))
	assert.Equal(t, 500, ReserveForContext(1000, 2))
}

func TestTrailingUserMessagesWithAt(t *testing.T) {
	t.Parallel()
	msgs := []chat.Message{
		{Role: chat.RoleUser, Text: "no at here"},
		{Role: chat.RoleUser, Text: "@file a.py"},
		{Role: chat.RoleUser, Text: "@file b.py"},
	}
	assert.Equal(t, 2, TrailingUserMessagesWithAt(msgs))
}

func TestSplitBudget_DonatesUnusedText(t *testing.T) {
	t.Parallel()
	text, files := splitBudget(1000, 100)
	assert.Equal(t, 100, text)
	assert.Equal(t, 900, files)
}

func TestCorrectAtArg_SuffixAndFuzzy(t *testing.T) {
	t.Parallel()
	r := NewResolver()
	r.SetKnownPaths([]string{"pkg/foo/bar.go", "pkg/foo/baz.go"})

	got, ok := r.CorrectAtArg("bar.go")
	require.True(t, ok)
	assert.Equal(t, "pkg/foo/bar.go", got)

	got, ok = r.CorrectAtArg("bzz.go")
	require.True(t, ok)
	assert.Equal(t, "pkg/foo/baz.go", got)
}
