package builtin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/enginecore/pkg/tools"
	"github.com/forgewright/enginecore/pkg/memory"
)

type mockMemoryStore struct {
	mock.Mock
}

func (m *mockMemoryStore) MemoriesAdd(ctx context.Context, mType, mGoal, mProject, mPayload, mOrigin string) (string, error) {
	args := m.Called(ctx, mType, mGoal, mProject, mPayload, mOrigin)
	return args.String(0), args.Error(1)
}

func (m *mockMemoryStore) MemoriesErase(ctx context.Context, memid string) error {
	args := m.Called(ctx, memid)
	return args.Error(0)
}

func (m *mockMemoryStore) MemoriesSelectAll(ctx context.Context) ([]memory.Record, error) {
	args := m.Called(ctx)
	return args.Get(0).([]memory.Record), args.Error(1)
}

func callArgs(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestMemoryTool_Instructions(t *testing.T) {
	tool := NewMemoryTool(new(mockMemoryStore))
	assert.Contains(t, tool.Instructions(), "Using the memory tool")
}

func TestMemoryTool_DisplayNames(t *testing.T) {
	tool := NewMemoryTool(new(mockMemoryStore))

	all, err := tool.Tools(t.Context())
	require.NoError(t, err)

	for _, tl := range all {
		assert.NotEmpty(t, tl.DisplayName())
	}
}

func TestMemoryTool_HandleAddMemory(t *testing.T) {
	store := new(mockMemoryStore)
	tool := NewMemoryTool(store)

	store.On("MemoriesAdd", mock.Anything, "note", "", "", "test memory", "agent").Return("abc1234567", nil)

	result, err := tool.handleAddMemory(t.Context(), tools.ToolCall{
		Function: tools.FunctionCall{Arguments: callArgs(map[string]string{"memory": "test memory"})},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "abc1234567")
	store.AssertExpectations(t)
}

func TestMemoryTool_HandleGetMemories(t *testing.T) {
	store := new(mockMemoryStore)
	tool := NewMemoryTool(store)

	memories := []memory.Record{
		{MemID: "1", MPayload: "memory 1"},
		{MemID: "2", MPayload: "memory 2"},
	}
	store.On("MemoriesSelectAll", mock.Anything).Return(memories, nil)

	result, err := tool.handleGetMemories(t.Context(), tools.ToolCall{})
	require.NoError(t, err)

	var returned []memory.Record
	require.NoError(t, json.Unmarshal([]byte(result.Output), &returned))
	assert.Len(t, returned, 2)
	store.AssertExpectations(t)
}

func TestMemoryTool_HandleDeleteMemory(t *testing.T) {
	store := new(mockMemoryStore)
	tool := NewMemoryTool(store)

	store.On("MemoriesErase", mock.Anything, "1").Return(nil)

	result, err := tool.handleDeleteMemory(t.Context(), tools.ToolCall{
		Function: tools.FunctionCall{Arguments: callArgs(map[string]string{"id": "1"})},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "Memory with ID 1 deleted successfully")
	store.AssertExpectations(t)
}

func TestMemoryTool_ParametersAreObjects(t *testing.T) {
	tool := NewMemoryTool(new(mockMemoryStore))

	allTools, err := tool.Tools(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, allTools)

	for _, tl := range allTools {
		if tl.Parameters == nil {
			continue
		}
		m, err := tools.SchemaToMap(tl.Parameters)
		require.NoError(t, err)
		assert.Equal(t, "object", m["type"])
	}
}
