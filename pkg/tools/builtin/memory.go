package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgewright/enginecore/pkg/memory"
	"github.com/forgewright/enginecore/pkg/tools"
)

// memoryStore is the subset of *memory.Store this toolset needs, kept
// narrow so the tool can be tested against a fake.
type memoryStore interface {
	MemoriesAdd(ctx context.Context, mType, mGoal, mProject, mPayload, mOrigin string) (string, error)
	MemoriesErase(ctx context.Context, memid string) error
	MemoriesSelectAll(ctx context.Context) ([]memory.Record, error)
}

// MemoryTool exposes the Memory Store (spec.md §4.7) as agent tools.
type MemoryTool struct {
	store memoryStore
}

// Make sure Memory Tool implements the ToolSet Interface
var _ tools.ToolSet = (*MemoryTool)(nil)

func NewMemoryTool(store memoryStore) *MemoryTool {
	return &MemoryTool{store: store}
}

func (t *MemoryTool) Instructions() string {
	return `## Using the memory tool

Before taking any action or responding to the user use the "get_memories" tool to remember things about the user.
Do not talk about using the tool, just use it.

## Rules
- Use the memory tool generously to remember things about the user.`
}

func (t *MemoryTool) Tools(context.Context) ([]tools.Tool, error) {
	return []tools.Tool{
		{
			Name:        "add_memory",
			Category:    "memory",
			Description: "Add a new memory to the database",
			Annotations: tools.ToolAnnotations{Title: "Add Memory"},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"memory":  map[string]any{"type": "string", "description": "The memory content to store"},
					"type":    map[string]any{"type": "string", "description": "Memory type, e.g. how-to, project-summary"},
					"goal":    map[string]any{"type": "string", "description": "The goal this memory relates to"},
					"project": map[string]any{"type": "string", "description": "The project this memory relates to"},
				},
				Required: []string{"memory"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler:      t.handleAddMemory,
		},
		{
			Name:         "get_memories",
			Category:     "memory",
			Description:  "Retrieve all stored memories",
			Annotations:  tools.ToolAnnotations{Title: "Get Memories", ReadOnlyHint: boolPtr(true)},
			OutputSchema: tools.MustSchemaFor[[]memory.Record](),
			Handler:      t.handleGetMemories,
		},
		{
			Name:        "delete_memory",
			Category:    "memory",
			Description: "Delete a specific memory by ID",
			Annotations: tools.ToolAnnotations{Title: "Delete Memory"},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"id": map[string]any{"type": "string", "description": "The ID of the memory to delete"},
				},
				Required: []string{"id"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler:      t.handleDeleteMemory,
		},
	}, nil
}

func (t *MemoryTool) handleAddMemory(ctx context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Memory  string `json:"memory"`
		Type    string `json:"type"`
		Goal    string `json:"goal"`
		Project string `json:"project"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}
	if args.Type == "" {
		args.Type = "note"
	}

	memid, err := t.store.MemoriesAdd(ctx, args.Type, args.Goal, args.Project, args.Memory, "agent")
	if err != nil {
		return nil, fmt.Errorf("failed to add memory: %w", err)
	}

	return &tools.ToolCallResult{
		Output: fmt.Sprintf("Memory added successfully with ID: %s", memid),
	}, nil
}

func (t *MemoryTool) handleGetMemories(ctx context.Context, _ tools.ToolCall) (*tools.ToolCallResult, error) {
	memories, err := t.store.MemoriesSelectAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memories: %w", err)
	}

	result, err := json.Marshal(memories)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal memories: %w", err)
	}

	return &tools.ToolCallResult{
		Output: string(result),
	}, nil
}

func (t *MemoryTool) handleDeleteMemory(ctx context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.store.MemoriesErase(ctx, args.ID); err != nil {
		return nil, fmt.Errorf("failed to delete memory: %w", err)
	}

	return &tools.ToolCallResult{
		Output: fmt.Sprintf("Memory with ID %s deleted successfully", args.ID),
	}, nil
}

func (t *MemoryTool) Start(context.Context) error {
	return nil
}

func (t *MemoryTool) Stop() error {
	return nil
}
