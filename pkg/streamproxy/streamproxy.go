// Package streamproxy implements the Streaming Proxy (spec.md §4.14):
// a non-streaming and an SSE bridge to an OpenAI-style provider
// endpoint, handed a Scratchpad payload and writing back either one JSON
// response or a sequence of SSE frames.
//
// Grounded on the teacher's pkg/model/provider/oaistream package for the
// overall shape (stream adapter tracking per-index tool-call ids,
// finish-reason carry-through for the usage-bearing final chunk); that
// package's own message conversion has drifted from the current
// pkg/chat shape (see DESIGN.md), so this package talks to pkg/chat
// directly instead of depending on it.
package streamproxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/forgewright/enginecore/pkg/chat"
	"github.com/forgewright/enginecore/pkg/enginerr"
	"github.com/forgewright/enginecore/pkg/scratchpad"
)

// doneSentinel is the SSE terminator all OpenAI-compatible providers use.
const doneSentinel = "[DONE]"

// Request is the wire body sent to an OpenAI-compatible chat completions
// endpoint (spec.md §6.2).
type Request struct {
	Model           string        `json:"model"`
	Messages        []chat.Message `json:"messages"`
	Stream          bool          `json:"stream"`
	Temperature     *float64      `json:"temperature,omitempty"`
	MaxTokens       int           `json:"max_completion_tokens,omitempty"`
	ReasoningEffort string        `json:"reasoning_effort,omitempty"`
	Thinking        *scratchpad.ThinkingConfig `json:"thinking,omitempty"`
}

// NewRequest builds a provider Request from a Scratchpad payload.
func NewRequest(payload scratchpad.Payload, stream bool) Request {
	return Request{
		Model:           payload.Model.ID,
		Messages:        payload.Messages,
		Stream:          stream,
		Temperature:     payload.Reasoning.Temperature,
		MaxTokens:       payload.MaxNewTokens,
		ReasoningEffort: payload.Reasoning.ReasoningEffort,
		Thinking:        payload.Reasoning.Thinking,
	}
}

// Proxy bridges requests to one provider endpoint.
type Proxy struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// New constructs a Proxy against endpoint, authenticating with apiKey.
func New(client *http.Client, endpoint, apiKey string) *Proxy {
	if client == nil {
		client = http.DefaultClient
	}
	return &Proxy{client: client, endpoint: endpoint, apiKey: apiKey}
}

// chatResponse is the non-streaming provider response shape.
type chatResponse struct {
	Choices []struct {
		Message      chat.Message     `json:"message"`
		FinishReason chat.FinishReason `json:"finish_reason"`
	} `json:"choices"`
	Usage *chat.Usage `json:"usage,omitempty"`
}

// NonStream sends payload and awaits the full JSON response, handing the
// first choice's message back for scratchpad normalization (spec.md
// §4.14 "Non-streaming").
func (p *Proxy) NonStream(ctx context.Context, payload scratchpad.Payload) (chat.Message, *chat.Usage, error) {
	req := NewRequest(payload, false)
	resp, err := p.post(ctx, req)
	if err != nil {
		return chat.Message{}, nil, err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return chat.Message{}, nil, enginerr.Upstream("decoding provider response", err)
	}
	if len(parsed.Choices) == 0 {
		return chat.Message{}, nil, enginerr.Upstream("provider response had no choices", nil)
	}
	msg := parsed.Choices[0].Message
	msg.FinishReason = parsed.Choices[0].FinishReason
	return msg, parsed.Usage, nil
}

func (p *Proxy) post(ctx context.Context, body Request) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, enginerr.Internal("marshaling provider request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, enginerr.Internal("building provider request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, enginerr.Timeout("provider request canceled", ctx.Err())
		}
		return nil, enginerr.Upstream("provider request failed", err)
	}
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, enginerr.Upstream(fmt.Sprintf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))), nil)
	}
	return resp, nil
}

// EventWriter receives SSE frames as the Proxy forwards them (spec.md
// §4.14 "Streaming (SSE)").
type EventWriter interface {
	WriteChunk(chat.StreamResponse) error
	WriteDone() error
}

// Stream forwards every upstream SSE event to w, preserving the [DONE]
// sentinel. On a stream break mid-answer (upstream EOF without [DONE]),
// it synthesizes a terminal chunk so the client can finalize cleanly,
// then writes [DONE] — the break itself is never surfaced as an error
// (spec.md §4.14, seed test 5: "no 500"). A client-initiated ctx
// cancellation aborts the upstream request immediately and returns an
// enginerr Timeout error wrapping ctx.Err().
func (p *Proxy) Stream(ctx context.Context, payload scratchpad.Payload, w EventWriter) error {
	req := NewRequest(payload, true)
	resp, err := p.post(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sawFinal := false
	for scanner.Scan() {
		if ctx.Err() != nil {
			return enginerr.Timeout("stream canceled by client", ctx.Err())
		}
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == doneSentinel {
			return w.WriteDone()
		}

		var chunk chat.StreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return enginerr.Upstream("decoding stream chunk", err)
		}
		if chunkIsFinal(chunk) {
			sawFinal = true
		}
		if err := w.WriteChunk(chunk); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return enginerr.Upstream("reading provider stream", err)
	}

	// Upstream closed without [DONE]: synthesize a terminal chunk unless
	// one already arrived, then close with [DONE] (spec.md §4.14).
	if !sawFinal {
		if err := w.WriteChunk(terminalChunk()); err != nil {
			return err
		}
	}
	return w.WriteDone()
}

func chunkIsFinal(c chat.StreamResponse) bool {
	for _, ch := range c.Choices {
		if ch.FinishReason != chat.FinishReasonNull && ch.FinishReason != "" {
			return true
		}
	}
	return false
}

func terminalChunk() chat.StreamResponse {
	return chat.StreamResponse{
		Object:  "chat.completion.chunk",
		Choices: []chat.StreamChoice{{FinishReason: chat.FinishReasonStop}},
	}
}
