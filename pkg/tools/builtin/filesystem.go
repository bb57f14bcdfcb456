package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/aymanbagabas/go-udiff"

	"github.com/forgewright/enginecore/pkg/tools"
)

// PostEditConfig represents a post-edit command configuration
type PostEditConfig struct {
	Path string // File path pattern (glob-style)
	Cmd  string // Command to execute (with $path placeholder)
}

type FilesystemTool struct {
	allowedDirectories []string
	allowedTools       []string
	postEditCommands   []PostEditConfig
}

type FileSystemOpt func(*FilesystemTool)

func WithAllowedTools(allowedTools []string) FileSystemOpt {
	return func(t *FilesystemTool) {
		t.allowedTools = allowedTools
	}
}

func WithPostEditCommands(postEditCommands []PostEditConfig) FileSystemOpt {
	return func(t *FilesystemTool) {
		t.postEditCommands = postEditCommands
	}
}

func NewFilesystemTool(allowedDirectories []string, opts ...FileSystemOpt) *FilesystemTool {
	t := &FilesystemTool{
		allowedDirectories: allowedDirectories,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *FilesystemTool) Instructions() string {
	return `## Filesystem Tool Instructions

This toolset provides comprehensive filesystem operations with built-in security restrictions.

### Security Model
- All operations are restricted to allowed directories only
- Use list_allowed_directories to see available paths
- Subdirectories within allowed directories are accessible
- Use add_allowed_directory to request access to new directories (requires user consent)

### Directory Access Management
- If you need access to a directory outside the allowed list, use add_allowed_directory
- This will request user consent before expanding filesystem access
- Always provide a clear reason when requesting new directory access

### Common Patterns
- Always check if directories exist before creating files
- Use directory_tree for exploring unfamiliar directory structures
- Prefer read_multiple_files for batch operations
- Use search_files_content for finding specific code or text

### Performance Tips
- Use read_multiple_files instead of multiple read_file calls
- Use directory_tree with max_depth to limit large traversals
- Use appropriate exclude patterns in search operations`
}

func (t *FilesystemTool) Tools(context.Context) ([]tools.Tool, error) {
	tls := []tools.Tool{
		{
			Name:        "create_directory",
			Description: "Create a new directory or ensure a directory exists. Can create multiple nested directories in one operation.",
			Annotations: tools.ToolAnnotations{
				Title: "Create Directory",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The directory path to create",
					},
				},
				Required: []string{"path"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleCreateDirectory,
		},
		{
			Name:        "directory_tree",
			Description: "Get a recursive tree view of files and directories as a JSON structure.",
			Annotations: tools.ToolAnnotations{
				ReadOnlyHint: &[]bool{true}[0],
				Title:        "Directory Tree",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The directory path to traverse",
					},
					"max_depth": map[string]any{
						"type":        "number",
						"description": "Maximum depth to traverse (optional)",
					},
				},
				Required: []string{"path"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleDirectoryTree,
		},
		{
			Name:        "edit_file",
			Description: "Make line-based edits to a text file. Each edit replaces exact line sequences with new content.",
			Annotations: tools.ToolAnnotations{
				Title: "Edit File",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The file path to edit",
					},
					"edits": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"oldText": map[string]any{
									"type":        "string",
									"description": "The exact text to replace",
								},
								"newText": map[string]any{
									"type":        "string",
									"description": "The replacement text",
								},
							},
							"required": []string{"oldText", "newText"},
						},
						"description": "Array of edit operations",
					},
					"dryRun": map[string]any{
						"type":        "boolean",
						"description": "If true, preview changes without applying them",
					},
				},
				Required: []string{"path", "edits"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleEditFile,
		},
		{
			Name:        "get_file_info",
			Description: "Retrieve detailed metadata about a file or directory.",
			Annotations: tools.ToolAnnotations{
				ReadOnlyHint: &[]bool{true}[0],
				Title:        "Get File Info",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The file or directory path to inspect",
					},
				},
				Required: []string{"path"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleGetFileInfo,
		},
		{
			Name:        "list_allowed_directories",
			Description: "Returns a list of directories that the server has permission to access. Don't call if you access only the current working directory. It's always allowed.",
			Annotations: tools.ToolAnnotations{
				ReadOnlyHint: &[]bool{true}[0],
				Title:        "List Allowed Directories",
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleListAllowedDirectories,
		},
		{
			Name:        "add_allowed_directory",
			Description: "Request to add a new directory to the allowed directories list. This requires explicit user consent for security reasons.",
			Annotations: tools.ToolAnnotations{
				Title: "Add Allowed Directory",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The directory path to add to allowed directories",
					},
					"reason": map[string]any{
						"type":        "string",
						"description": "Explanation of why this directory needs to be added",
					},
					"confirmed": map[string]any{
						"type":        "boolean",
						"description": "Set to true to confirm that you consent to adding this directory",
					},
				},
				Required: []string{"path", "reason"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleAddAllowedDirectory,
		},
		{
			Name:        "list_directory",
			Description: "Get a detailed listing of all files and directories in a specified path.",
			Annotations: tools.ToolAnnotations{
				ReadOnlyHint: &[]bool{true}[0],
				Title:        "List Directory",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The directory path to list",
					},
				},
				Required: []string{"path"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleListDirectory,
		},
		{
			Name:        "list_directory_with_sizes",
			Description: "Get a detailed listing of all files and directories in a specified path, including sizes.",
			Annotations: tools.ToolAnnotations{
				ReadOnlyHint: &[]bool{true}[0],
				Title:        "List Directory With Sizes",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The directory path to list",
					},
				},
				Required: []string{"path"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleListDirectoryWithSizes,
		},
		{
			Name:        "move_file",
			Description: "Move or rename files and directories.",
			Annotations: tools.ToolAnnotations{
				Title: "Move File",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"source": map[string]any{
						"type":        "string",
						"description": "The source path",
					},
					"destination": map[string]any{
						"type":        "string",
						"description": "The destination path",
					},
				},
				Required: []string{"source", "destination"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleMoveFile,
		},
		{
			Name:        "read_file",
			Description: "Read the complete contents of a file from the file system.",
			Annotations: tools.ToolAnnotations{
				ReadOnlyHint: &[]bool{true}[0],
				Title:        "Read File",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The file path to read",
					},
				},
				Required: []string{"path"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleReadFile,
		},
		{
			Name:        "read_multiple_files",
			Description: "Read the contents of multiple files simultaneously.",
			Annotations: tools.ToolAnnotations{
				ReadOnlyHint: &[]bool{true}[0],
				Title:        "Read Multiple Files",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"paths": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "string",
						},
						"description": "Array of file paths to read",
					},
				},
				Required: []string{"paths"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleReadMultipleFiles,
		},
		{
			Name:        "search_files",
			Description: "Recursively search for files and directories matching a pattern. Prints the full paths of matching files and the total number of files found.",
			Annotations: tools.ToolAnnotations{
				ReadOnlyHint: &[]bool{true}[0],
				Title:        "Search Files",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The starting directory path",
					},
					"pattern": map[string]any{
						"type":        "string",
						"description": "The search pattern",
					},
					"excludePatterns": map[string]any{
						"type":        "array",
						"description": "Patterns to exclude from search",
						"items": map[string]any{
							"type": "string",
						},
					},
				},
				Required: []string{"path", "pattern"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleSearchFiles,
		},
		{
			Name:        "search_files_content",
			Description: "Searches for text or regex patterns in the content of every file under a directory. Files whose names match excludePatterns are skipped; there is no glob filter selecting which files are searched.",
			Annotations: tools.ToolAnnotations{
				ReadOnlyHint: &[]bool{true}[0],
				Title:        "Search Files Content",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The starting directory path",
					},
					"query": map[string]any{
						"type":        "string",
						"description": "The text or regex pattern to search for",
					},
					"is_regex": map[string]any{
						"type":        "boolean",
						"description": "If true, treat query as regex; otherwise literal text",
					},
					"excludePatterns": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "string",
						},
						"description": "Patterns to exclude from search",
					},
				},
				Required: []string{"path", "query"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleSearchFilesContent,
		},
		{
			Name:        "write_file",
			Description: "Create a new file or completely overwrite an existing file with new content.",
			Annotations: tools.ToolAnnotations{
				Title: "Write File",
			},
			Parameters: tools.FunctionParameters{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "The file path to write",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The content to write to the file",
					},
				},
				Required: []string{"path", "content"},
			},
			OutputSchema: tools.MustSchemaFor[string](),
			Handler: t.handleWriteFile,
		},
	}

	if len(t.allowedTools) == 0 {
		return tls, nil
	}

	var allowedTools []tools.Tool
	for _, tool := range tls {
		if slices.Contains(t.allowedTools, tool.Name) {
			allowedTools = append(allowedTools, tool)
		}
	}

	return allowedTools, nil
}

// executePostEditCommands executes any matching post-edit commands for the given file path
func (t *FilesystemTool) executePostEditCommands(ctx context.Context, filePath string) error {
	if len(t.postEditCommands) == 0 {
		return nil
	}

	for _, postEdit := range t.postEditCommands {
		matched, err := filepath.Match(postEdit.Path, filepath.Base(filePath))
		if err != nil {
			slog.WarnContext(ctx, "Invalid post-edit pattern", "pattern", postEdit.Path, "error", err)
			continue
		}
		if !matched {
			continue
		}

		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", postEdit.Cmd)
		cmd.Env = cmd.Environ()
		cmd.Env = append(cmd.Env, "path="+filePath)

		if err := cmd.Run(); err != nil {
			return fmt.Errorf("post-edit command failed for %s: %w", filePath, err)
		}

	}
	return nil
}

// Security helper to check if path is allowed
func (t *FilesystemTool) isPathAllowed(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("unable to resolve absolute path: %w", err)
	}

	for _, allowedDir := range t.allowedDirectories {
		allowedAbs, err := filepath.Abs(allowedDir)
		if err != nil {
			continue
		}

		if absPath == allowedAbs || strings.HasPrefix(absPath, strings.TrimSuffix(allowedAbs, string(filepath.Separator))+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("path %s is not within allowed directories", path)
}

// Handler implementations

func (t *FilesystemTool) handleCreateDirectory(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.isPathAllowed(args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error: %s", err)}, nil
	}

	if err := os.MkdirAll(args.Path, 0o755); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error creating directory: %s", err)}, nil
	}

	return &tools.ToolCallResult{Output: fmt.Sprintf("Directory created successfully: %s", args.Path)}, nil
}

func (t *FilesystemTool) handleDirectoryTree(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path     string `json:"path"`
		MaxDepth *int   `json:"max_depth"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.isPathAllowed(args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error: %s", err)}, nil
	}

	tree, err := t.buildDirectoryTree(args.Path, args.MaxDepth, 0)
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error building directory tree: %s", err)}, nil
	}

	result, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error formatting tree: %s", err)}, nil
	}

	return &tools.ToolCallResult{Output: string(result)}, nil
}

type TreeNode struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Children []*TreeNode `json:"children,omitempty"`
}

func (t *FilesystemTool) buildDirectoryTree(path string, maxDepth *int, currentDepth int) (*TreeNode, error) {
	if maxDepth != nil && currentDepth >= *maxDepth {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	node := &TreeNode{
		Name: filepath.Base(path),
		Type: "file",
	}

	if info.IsDir() {
		node.Type = "directory"
		node.Children = []*TreeNode{}

		entries, err := os.ReadDir(path)
		if err != nil {
			return node, nil // Return partial result on error
		}

		for _, entry := range entries {
			childPath := filepath.Join(path, entry.Name())
			if err := t.isPathAllowed(childPath); err != nil {
				continue // Skip disallowed paths
			}

			childNode, err := t.buildDirectoryTree(childPath, maxDepth, currentDepth+1)
			if err != nil || childNode == nil {
				continue
			}
			node.Children = append(node.Children, childNode)
		}
	}

	return node, nil
}

func (t *FilesystemTool) handleEditFile(ctx context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path  string `json:"path"`
		Edits []struct {
			OldText string `json:"oldText"`
			NewText string `json:"newText"`
		} `json:"edits"`
		DryRun bool `json:"dryRun"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.isPathAllowed(args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error: %s", err)}, nil
	}

	content, err := os.ReadFile(args.Path)
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error reading file: %s", err)}, nil
	}

	originalContent := string(content)
	modifiedContent := originalContent

	var changes []string
	for i, edit := range args.Edits {
		if !strings.Contains(modifiedContent, edit.OldText) {
			return &tools.ToolCallResult{Output: fmt.Sprintf("Edit %d failed: old text not found", i+1)}, nil
		}
		modifiedContent = strings.Replace(modifiedContent, edit.OldText, edit.NewText, 1)
		changes = append(changes, fmt.Sprintf("Edit %d: Replaced %d characters", i+1, len(edit.OldText)))
	}

	diff := unifiedDiff(args.Path, originalContent, modifiedContent)

	if args.DryRun {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Dry run completed. Changes:\n%s\n%s", strings.Join(changes, "\n"), diff)}, nil
	}

	if err := os.WriteFile(args.Path, []byte(modifiedContent), 0o644); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error writing file: %s", err)}, nil
	}

	// Execute post-edit commands
	if err := t.executePostEditCommands(ctx, args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("File edited successfully but post-edit command failed: %s", err)}, nil
	}

	return &tools.ToolCallResult{Output: fmt.Sprintf("File edited successfully. Changes:\n%s\n%s", strings.Join(changes, "\n"), diff)}, nil
}

// unifiedDiff renders a unified diff of path's edit, falling back to a
// short note when the content is identical or the diff can't be computed.
func unifiedDiff(path, before, after string) string {
	if before == after {
		return "(no textual change)"
	}
	edits := udiff.Strings(before, after)
	d, err := udiff.ToUnifiedDiff(path, path, before, edits, 3)
	if err != nil {
		return fmt.Sprintf("(diff unavailable: %s)", err)
	}
	return udiff.Format(d)
}

func (t *FilesystemTool) handleGetFileInfo(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.isPathAllowed(args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error: %s", err)}, nil
	}

	info, err := os.Stat(args.Path)
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error getting file info: %s", err)}, nil
	}

	fileInfo := map[string]any{
		"name":    info.Name(),
		"size":    info.Size(),
		"mode":    info.Mode().String(),
		"modTime": info.ModTime().Format(time.RFC3339),
		"isDir":   info.IsDir(),
	}

	result, err := json.MarshalIndent(fileInfo, "", "  ")
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error formatting file info: %s", err)}, nil
	}

	return &tools.ToolCallResult{Output: string(result)}, nil
}

func (t *FilesystemTool) handleListAllowedDirectories(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
	result, err := json.MarshalIndent(t.allowedDirectories, "", "  ")
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error formatting directories: %s", err)}, nil
	}

	return &tools.ToolCallResult{Output: string(result)}, nil
}

func (t *FilesystemTool) handleAddAllowedDirectory(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path      string `json:"path"`
		Reason    string `json:"reason"`
		Confirmed bool   `json:"confirmed"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	// Validate the path exists and is a directory
	absPath, err := filepath.Abs(args.Path)
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error resolving path: %s", err)}, nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error accessing path: %s", err)}, nil
	}

	if !info.IsDir() {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error: %s is not a directory", absPath)}, nil
	}

	// Check if the directory is already allowed
	for _, allowedDir := range t.allowedDirectories {
		allowedAbs, err := filepath.Abs(allowedDir)
		if err != nil {
			continue
		}
		if allowedAbs == absPath {
			return &tools.ToolCallResult{Output: fmt.Sprintf("Directory %s is already in allowed directories list", absPath)}, nil
		}
		// Check if the requested path is already covered by an existing allowed directory
		if strings.HasPrefix(absPath, strings.TrimSuffix(allowedAbs, string(filepath.Separator))+string(filepath.Separator)) {
			return &tools.ToolCallResult{Output: fmt.Sprintf("Directory %s is already accessible (covered by %s)", absPath, allowedAbs)}, nil
		}
	}

	// If not confirmed, show consent request
	if !args.Confirmed {
		consentMsg := fmt.Sprintf(`SECURITY CONSENT REQUEST

The agent is requesting permission to add a new directory to the allowed filesystem access list:

Path: %s
Reason: %s

This will grant the agent read/write access to this directory and all its subdirectories.

IMPORTANT: Only grant this permission if:
1. You trust this request and understand the security implications
2. The directory contains files the agent legitimately needs to access
3. The directory doesn't contain sensitive personal data or system files

To proceed, call this tool again with the same parameters but add "confirmed": true
To deny, do not call the tool again.

Current allowed directories:
%s`, absPath, args.Reason, strings.Join(t.allowedDirectories, "\n"))

		return &tools.ToolCallResult{Output: consentMsg}, nil
	}

	// User has confirmed, add the directory
	return t.addAllowedDirectory(absPath)
}

// addAllowedDirectory adds a directory to the allowed directories list
func (t *FilesystemTool) addAllowedDirectory(absPath string) (*tools.ToolCallResult, error) {
	// Add the directory to the allowed list
	t.allowedDirectories = append(t.allowedDirectories, absPath)

	successMsg := fmt.Sprintf(`Directory successfully added to allowed directories list.

Added: %s

The agent now has filesystem access to this directory and all its subdirectories.

Updated allowed directories:
%s`, absPath, strings.Join(t.allowedDirectories, "\n"))

	return &tools.ToolCallResult{Output: successMsg}, nil
}

func (t *FilesystemTool) handleListDirectory(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.isPathAllowed(args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error: %s", err)}, nil
	}

	entries, err := os.ReadDir(args.Path)
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error reading directory: %s", err)}, nil
	}

	var result strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			result.WriteString(fmt.Sprintf("DIR  %s\n", entry.Name()))
		} else {
			result.WriteString(fmt.Sprintf("FILE %s\n", entry.Name()))
		}
	}

	return &tools.ToolCallResult{Output: result.String()}, nil
}

func (t *FilesystemTool) handleListDirectoryWithSizes(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.isPathAllowed(args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error: %s", err)}, nil
	}

	entries, err := os.ReadDir(args.Path)
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error reading directory: %s", err)}, nil
	}

	var result strings.Builder
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		if entry.IsDir() {
			result.WriteString(fmt.Sprintf("DIR  %s\n", entry.Name()))
		} else {
			result.WriteString(fmt.Sprintf("FILE %s (%d bytes)\n", entry.Name(), info.Size()))
		}
	}

	return &tools.ToolCallResult{Output: result.String()}, nil
}

func (t *FilesystemTool) handleMoveFile(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.isPathAllowed(args.Source); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error (source): %s", err)}, nil
	}
	if err := t.isPathAllowed(args.Destination); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error (destination): %s", err)}, nil
	}

	if _, err := os.Stat(args.Destination); err == nil {
		return &tools.ToolCallResult{Output: "Error: destination already exists"}, nil
	}

	if err := os.Rename(args.Source, args.Destination); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error moving file: %s", err)}, nil
	}

	return &tools.ToolCallResult{Output: fmt.Sprintf("Successfully moved %s to %s", args.Source, args.Destination)}, nil
}

func (t *FilesystemTool) handleReadFile(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.isPathAllowed(args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error: %s", err)}, nil
	}

	content, err := os.ReadFile(args.Path)
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error reading file: %s", err)}, nil
	}

	return &tools.ToolCallResult{Output: string(content)}, nil
}

func (t *FilesystemTool) handleReadMultipleFiles(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Paths []string `json:"paths"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	var result strings.Builder
	for _, path := range args.Paths {
		if err := t.isPathAllowed(path); err != nil {
			result.WriteString(fmt.Sprintf("=== %s ===\nError: %s\n\n", path, err))
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			result.WriteString(fmt.Sprintf("=== %s ===\nError reading file: %s\n\n", path, err))
			continue
		}

		result.WriteString(fmt.Sprintf("=== %s ===\n%s\n\n", path, string(content)))
	}

	return &tools.ToolCallResult{Output: result.String()}, nil
}

type SearchFilesArgs struct {
	Path            string   `json:"path"`
	Pattern         string   `json:"pattern"`
	ExcludePatterns []string `json:"excludePatterns"`
}

func (t *FilesystemTool) handleSearchFiles(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args SearchFilesArgs
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.isPathAllowed(args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error: %s", err)}, nil
	}

	var matches []string
	pattern := strings.ToLower(args.Pattern)

	err := filepath.WalkDir(args.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors and continue
		}

		if err := t.isPathAllowed(path); err != nil {
			return nil // Skip disallowed paths
		}

		// Check exclude patterns
		for _, exclude := range args.ExcludePatterns {
			if match(exclude, filepath.Base(path)) {
				return nil
			}
		}

		// Case-insensitive match
		if match(pattern, filepath.Base(path)) {
			matches = append(matches, path)
		}

		return nil
	})
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error searching files: %s", err)}, nil
	}

	if len(matches) == 0 {
		return &tools.ToolCallResult{Output: "No files found"}, nil
	}

	return &tools.ToolCallResult{
		Output: fmt.Sprintf("%d files found:\n%s", len(matches), strings.Join(matches, "\n")),
	}, nil
}

func (t *FilesystemTool) handleSearchFilesContent(_ context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path            string   `json:"path"`
		Query           string   `json:"query"`
		IsRegex         bool     `json:"is_regex"`
		ExcludePatterns []string `json:"excludePatterns"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.isPathAllowed(args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error: %s", err)}, nil
	}

	var regex *regexp.Regexp
	if args.IsRegex {
		var err error
		regex, err = regexp.Compile(args.Query)
		if err != nil {
			return &tools.ToolCallResult{Output: fmt.Sprintf("Invalid regex pattern: %s", err)}, nil
		}
	}

	var results []string

	err := filepath.WalkDir(args.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		if err := t.isPathAllowed(path); err != nil {
			return nil
		}

		// Check exclude patterns
		for _, exclude := range args.ExcludePatterns {
			if match(exclude, filepath.Base(path)) {
				return nil
			}
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		lines := strings.Split(string(content), "\n")
		for lineNum, line := range lines {
			var matched bool
			var matchStart, matchEnd int

			if args.IsRegex {
				if loc := regex.FindStringIndex(line); loc != nil {
					matched = true
					matchStart, matchEnd = loc[0], loc[1]
				}
			} else {
				if idx := strings.Index(line, args.Query); idx != -1 {
					matched = true
					matchStart, matchEnd = idx, idx+len(args.Query)
				}
			}

			if matched {
				preview := line
				if len(preview) > 100 {
					start := max(matchStart-20, 0)
					end := matchEnd + 20
					end = min(end, len(preview))
					preview = preview[start:end]
				}

				result := fmt.Sprintf("%s:%d:%d: %s", path, lineNum+1, matchStart+1, preview)
				results = append(results, result)
			}
		}

		return nil
	})
	if err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error searching file contents: %s", err)}, nil
	}

	if len(results) == 0 {
		return &tools.ToolCallResult{Output: "No results found"}, nil
	}

	return &tools.ToolCallResult{Output: strings.Join(results, "\n")}, nil
}

func (t *FilesystemTool) handleWriteFile(ctx context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := t.isPathAllowed(args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error: %s", err)}, nil
	}

	if err := os.WriteFile(args.Path, []byte(args.Content), 0o644); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("Error writing file: %s", err)}, nil
	}

	// Execute post-edit commands
	if err := t.executePostEditCommands(ctx, args.Path); err != nil {
		return &tools.ToolCallResult{Output: fmt.Sprintf("File written successfully but post-edit command failed: %s", err)}, nil
	}

	return &tools.ToolCallResult{Output: fmt.Sprintf("File written successfully: %s (%d bytes)", args.Path, len(args.Content))}, nil
}

func (t *FilesystemTool) Start(context.Context) error {
	return nil
}

func (t *FilesystemTool) Stop() error {
	return nil
}

func match(pattern, name string) bool {
	matched, _ := filepath.Match(pattern, name)
	if matched {
		return true
	}

	return strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
}
