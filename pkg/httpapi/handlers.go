package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/forgewright/enginecore/pkg/atcommands"
	"github.com/forgewright/enginecore/pkg/chat"
	"github.com/forgewright/enginecore/pkg/enginerr"
	"github.com/forgewright/enginecore/pkg/postprocess"
	"github.com/forgewright/enginecore/pkg/scratchpad"
	"github.com/forgewright/enginecore/pkg/tools"
)

// chatRequest is the body of POST /v1/chat (spec.md §6.1).
type chatRequest struct {
	Messages       []chat.Message `json:"messages"`
	Model          string         `json:"model"`
	Stream         bool           `json:"stream"`
	NCtx           int            `json:"n_ctx"`
	MaxTokens      int            `json:"maxgen"`
	BoostReasoning bool           `json:"boost_reasoning"`
}

// postChat implements POST /v1/chat: resolve @-commands and fit history
// (scratchpad), dispatch any pending tool calls, then hand the payload
// to the streaming proxy (spec.md §2 "Control flow of a chat turn").
func (s *Server) postChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, enginerr.BadRequest("invalid request body", err))
	}
	if len(req.Messages) == 0 {
		return writeError(c, enginerr.BadRequest("messages must not be empty", nil))
	}

	model, err := s.models.ResolveChatModel(req.Model)
	if err != nil {
		return writeError(c, err)
	}

	turn := &atcommands.Turn{
		NCtx:                  req.NCtx,
		TokensForRAG:          req.NCtx,
		MessagesUnderAssembly: req.Messages,
	}

	payload, err := s.scratchpad.BuildPayload(c.Request().Context(), turn, model, req.MaxTokens, req.BoostReasoning)
	if err != nil {
		return writeError(c, enginerr.Internal("building chat payload", err))
	}

	if req.Stream {
		return s.streamChat(c, payload)
	}
	return s.nonStreamChat(c, payload)
}

// nonStreamChat awaits the full provider response and, if the model
// asked for tool calls, dispatches them immediately so the reply
// already carries their results (spec.md §2 steps 4-5).
func (s *Server) nonStreamChat(c echo.Context, payload scratchpad.Payload) error {
	ctx := c.Request().Context()
	msg, usage, err := s.proxy.NonStream(ctx, payload)
	if err != nil {
		return writeError(c, err)
	}

	messages := append(append([]chat.Message{}, payload.Messages...), msg)
	if len(msg.ToolCalls) > 0 {
		result, err := s.dispatcher.Dispatch(ctx, toToolCalls(msg.ToolCalls), nil, 0, s.defaultPostprocessSettings())
		if err != nil {
			return writeError(c, enginerr.Internal("dispatching tool calls", err))
		}
		messages = append(messages, result.Messages...)
		return c.JSON(http.StatusOK, map[string]any{
			"messages":              messages,
			"required_confirmation": result.RequiredConfirmation,
			"usage":                 usage,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"messages": messages,
		"usage":    usage,
	})
}

// streamChat forwards the provider's SSE stream straight to the client
// (spec.md §4.14). Tool-call follow-up for a streamed turn is driven by
// the client re-posting to /v1/chat once it has collected the full
// assistant message, matching the teacher's cmd/root/web.go pattern of a
// dumb forwarding loop with no server-side state held across chunks.
func (s *Server) streamChat(c echo.Context, payload scratchpad.Payload) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	w := &sseWriter{resp: c.Response()}
	return s.proxy.Stream(c.Request().Context(), payload, w)
}

// sseWriter adapts an echo response to streamproxy.EventWriter.
type sseWriter struct {
	resp interface {
		Write([]byte) (int, error)
		Flush()
	}
}

func (w *sseWriter) WriteChunk(chunk chat.StreamResponse) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.resp, "data: %s\n\n", data); err != nil {
		return err
	}
	w.resp.Flush()
	return nil
}

func (w *sseWriter) WriteDone() error {
	if _, err := fmt.Fprint(w.resp, "data: [DONE]\n\n"); err != nil {
		return err
	}
	w.resp.Flush()
	return nil
}

// defaultPostprocessSettings is used for tool-produced context files when
// a chat turn doesn't carry explicit postprocess parameters of its own.
func (s *Server) defaultPostprocessSettings() postprocess.Settings {
	return postprocess.Settings{TokenLimit: 2048}
}

// toToolCalls adapts the wire-level chat.ToolCall shape the model
// returns to the tools.ToolCall shape the dispatcher consumes.
func toToolCalls(calls []chat.ToolCall) []tools.ToolCall {
	out := make([]tools.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = tools.ToolCall{
			ID:   c.ID,
			Type: tools.ToolTypeFunction,
			Function: tools.FunctionCall{
				Name:      c.Function.Name,
				Arguments: c.Function.Arguments,
			},
		}
	}
	return out
}

// codeCompletionRequest is the body of POST /v1/code-completion (spec.md
// §6.1).
type codeCompletionRequest struct {
	Inputs struct {
		Sources map[string]string `json:"sources"`
		Cursor  struct {
			File      string `json:"file"`
			Line      int    `json:"line"`
			Character int    `json:"character"`
		} `json:"cursor"`
		Multiline bool `json:"multiline"`
	} `json:"inputs"`
	Parameters map[string]any `json:"parameters"`
	Model      string         `json:"model"`
	Stream     bool           `json:"stream"`
	NoCache    bool           `json:"no_cache"`
	UseAST     bool           `json:"use_ast"`
	UseVecDB   bool           `json:"use_vecdb"`
	RAGTokensN int            `json:"rag_tokens_n"`
}

// postCodeCompletion implements POST /v1/code-completion, validating the
// cursor against the supplied sources (spec.md §6.1).
func (s *Server) postCodeCompletion(c echo.Context) error {
	var req codeCompletionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, enginerr.BadRequest("invalid request body", err))
	}

	source, ok := req.Inputs.Sources[req.Inputs.Cursor.File]
	if !ok {
		return writeError(c, enginerr.BadRequest("cursor.file is not present in sources", nil))
	}
	lines := strings.Split(source, "\n")
	if req.Inputs.Cursor.Line >= len(lines) {
		return writeError(c, enginerr.BadRequest("cursor.line is out of range", nil))
	}
	if req.Inputs.Cursor.Character > len([]rune(lines[req.Inputs.Cursor.Line])) {
		return writeError(c, enginerr.BadRequest("cursor.character is out of range", nil))
	}

	model, err := s.models.ResolveCompletionModel(req.Model)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"model": model.ID,
	})
}

// atCommandExecuteRequest is the body of POST /v1/at-command-execute
// (spec.md §6.1), the remote counterpart of §4.9 used when running
// inside a container.
type atCommandExecuteRequest struct {
	Messages              []chat.Message `json:"messages"`
	NCtx                  int            `json:"n_ctx"`
	MaxGen                int            `json:"maxgen"`
	SubchatToolParameters map[string]any `json:"subchat_tool_parameters"`
	PostprocessParameters map[string]any `json:"postprocess_parameters"`
	ModelName             string         `json:"model_name"`
	ChatID                string         `json:"chat_id"`
}

type atCommandExecuteResponse struct {
	Messages                []chat.Message `json:"messages"`
	MessagesToStreamBack    []chat.Message `json:"messages_to_stream_back"`
	UndroppableMsgNumber    int            `json:"undroppable_msg_number"`
	AnyContextProduced      bool           `json:"any_context_produced"`
}

// postAtCommandExecute implements POST /v1/at-command-execute (spec.md
// §6.1, §4.9).
func (s *Server) postAtCommandExecute(c echo.Context) error {
	var req atCommandExecuteRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, enginerr.BadRequest("invalid request body", err))
	}

	model, err := s.models.ResolveChatModel(req.ModelName)
	if err != nil {
		return writeError(c, err)
	}

	turn := &atcommands.Turn{
		ChatID:                req.ChatID,
		NCtx:                  req.NCtx,
		TokensForRAG:          req.NCtx,
		SubchatToolParameters: req.SubchatToolParameters,
		PostprocessParameters: req.PostprocessParameters,
		MessagesUnderAssembly: req.Messages,
	}

	payload, err := s.scratchpad.BuildPayload(c.Request().Context(), turn, model, req.MaxGen, false)
	if err != nil {
		return writeError(c, enginerr.Internal("resolving at-commands", err))
	}

	anyContext := false
	for _, m := range payload.Messages {
		if m.Role == chat.RoleContextFile {
			anyContext = true
			break
		}
	}

	return c.JSON(http.StatusOK, atCommandExecuteResponse{
		Messages:             payload.Messages,
		MessagesToStreamBack: payload.Messages[len(req.Messages):],
		UndroppableMsgNumber: 1,
		AnyContextProduced:   anyContext,
	})
}

// prependSystemPromptRequest is the body of POST
// /v1/prepend-system-prompt-and-maybe-more-initial-messages (spec.md
// §6.1).
type prependSystemPromptRequest struct {
	Messages []chat.Message `json:"messages"`
	ChatMeta map[string]any `json:"chat_meta"`
}

type prependSystemPromptResponse struct {
	Messages             []chat.Message `json:"messages"`
	MessagesToStreamBack []chat.Message `json:"messages_to_stream_back"`
}

// postPrependSystemPrompt implements POST
// /v1/prepend-system-prompt-and-maybe-more-initial-messages (spec.md
// §6.1): prepends a system message derived from chat_meta when the
// conversation doesn't already start with one.
func (s *Server) postPrependSystemPrompt(c echo.Context) error {
	var req prependSystemPromptRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, enginerr.BadRequest("invalid request body", err))
	}

	if len(req.Messages) > 0 && req.Messages[0].Role == chat.RoleSystem {
		return c.JSON(http.StatusOK, prependSystemPromptResponse{Messages: req.Messages})
	}

	prompt, _ := req.ChatMeta["system_prompt"].(string)
	if prompt == "" {
		prompt = "You are a helpful coding assistant."
	}
	systemMsg := chat.Message{Role: chat.RoleSystem, Text: prompt}

	out := make([]chat.Message, 0, len(req.Messages)+1)
	out = append(out, systemMsg)
	out = append(out, req.Messages...)

	return c.JSON(http.StatusOK, prependSystemPromptResponse{
		Messages:             out,
		MessagesToStreamBack: []chat.Message{systemMsg},
	})
}
