// Package chat defines the provider-agnostic chat message model shared by
// the scratchpad, dispatcher, postprocessor and streaming proxy.
package chat

import "encoding/json"

// Role is the role of a chat message.
type Role string

const (
	RoleSystem      Role = "system"
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleTool        Role = "tool"
	RoleContextFile Role = "context_file"
	RoleCDInstr     Role = "cd_instruction"
	RolePlainText   Role = "plain_text"
	RoleDiff        Role = "diff"
)

// FinishReason is the reason a streamed response ended.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonNull      FinishReason = ""
)

// PartType distinguishes a text part from an image part in multimodal
// content, and from the Anthropic-style thinking parts (§4.13).
type PartType string

const (
	PartText              PartType = "text"
	PartImage             PartType = "image"
	PartThinking          PartType = "thinking"
	PartRedactedThinking  PartType = "redacted_thinking"
)

// MessagePart is one element of a multimodal content array.
//
// MType is either "text", "image/<subtype>", "thinking" or
// "redacted_thinking". Image content is base64 in MContent.
type MessagePart struct {
	Type      PartType `json:"type"`
	MType     string   `json:"m_type,omitempty"`
	Text      string   `json:"text,omitempty"`
	MContent  string   `json:"m_content,omitempty"`
	Thinking  string   `json:"thinking,omitempty"`
	Signature string   `json:"signature,omitempty"`
	Data      string   `json:"data,omitempty"`
}

// FunctionCall is the function-call payload of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is an assistant-issued request to run a tool (spec.md §3.2).
//
// Every ToolCall MUST eventually be answered by exactly one Message with
// Role=RoleTool and ToolCallID equal to ID (invariant I1); unanswered
// calls are re-surfaced on resume.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is the chat message record (spec.md §3.1).
//
// Content is either a plain string (Text) or an ordered sequence of
// multimodal Parts. A text-only Parts slice of length 1 normalizes to
// plain text via Normalize.
type Message struct {
	Role           Role           `json:"role"`
	Text           string         `json:"content,omitempty"`
	Parts          []MessagePart  `json:"-"`
	ToolCalls      []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID     string         `json:"tool_call_id,omitempty"`
	ThinkingBlocks []MessagePart  `json:"thinking_blocks,omitempty"`
	FinishReason   FinishReason   `json:"finish_reason,omitempty"`
}

// Normalize collapses a single-element, text-only Parts slice into plain
// Text, per spec.md §3.1's invariant.
func (m *Message) Normalize() {
	if len(m.Parts) == 1 && m.Parts[0].Type == PartText {
		m.Text = m.Parts[0].Text
		m.Parts = nil
	}
}

// HasThinking reports whether this message carries thinking blocks that
// must be serialized inline in the content array (spec.md §4.13, I6).
func (m *Message) HasThinking() bool {
	return len(m.ThinkingBlocks) > 0
}

// contentWire is the JSON shape of Content when it must serialize as an
// array: thinking blocks first, then any other parts, never as a
// sibling "thinking_blocks" field (invariant I6).
func (m *Message) contentWire() any {
	if !m.HasThinking() {
		if m.Parts == nil {
			return m.Text
		}
		return m.Parts
	}
	parts := make([]MessagePart, 0, len(m.ThinkingBlocks)+len(m.Parts)+1)
	parts = append(parts, m.ThinkingBlocks...)
	if m.Parts != nil {
		parts = append(parts, m.Parts...)
	} else if m.Text != "" {
		parts = append(parts, MessagePart{Type: PartText, Text: m.Text})
	}
	return parts
}

// MarshalJSON implements the wire format required by I6: when thinking
// blocks are present, content is an array whose first element's type is
// "thinking" or "redacted_thinking"; thinking_blocks itself never appears
// as a sibling field.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire struct {
		Role         Role         `json:"role"`
		Content      any          `json:"content"`
		ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
		ToolCallID   string       `json:"tool_call_id,omitempty"`
		FinishReason FinishReason `json:"finish_reason,omitempty"`
	}
	return json.Marshal(wire{
		Role:         m.Role,
		Content:      m.contentWire(),
		ToolCalls:    m.ToolCalls,
		ToolCallID:   m.ToolCallID,
		FinishReason: m.FinishReason,
	})
}

// StreamChoice is one choice within a streamed provider response chunk.
type StreamChoice struct {
	Index        int          `json:"index"`
	Delta        MessageDelta `json:"delta"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
}

// MessageDelta is an incremental update to an in-progress assistant
// message, as emitted by the streaming proxy (§4.14).
type MessageDelta struct {
	Role             Role       `json:"role,omitempty"`
	Content          string     `json:"content,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// Usage is token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamResponse is one SSE frame of a streamed chat completion.
type StreamResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}
