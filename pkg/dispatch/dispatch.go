package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/forgewright/enginecore/pkg/chat"
	"github.com/forgewright/enginecore/pkg/permissions"
	"github.com/forgewright/enginecore/pkg/postprocess"
	"github.com/forgewright/enginecore/pkg/tools"
	"github.com/forgewright/enginecore/pkg/vecstore"
)

// defaultMaxCorrectionTurns bounds the corrections_flag loop-back
// (spec.md §4.12 step 5: "below a configured upper bound").
const defaultMaxCorrectionTurns = 2

// Result is the outcome of dispatching one assistant turn's pending tool
// calls (spec.md §4.12).
type Result struct {
	// Messages are ready to inject into the conversation: tool answers
	// first (in tool-call-id order mirroring the assistant's list, per
	// spec.md §5 ordering guarantee), then any other synthesized
	// messages, then a single aggregate context_file message.
	Messages []chat.Message

	// RequiredConfirmation lists tool_call_ids whose policy verdict was
	// Ask and that had no explicit confirmation in this turn; they
	// remain unanswered until the caller resolves them (I1).
	RequiredConfirmation []string

	// CorrectionRequested is true when a tool asked the model to correct
	// its calls and the turn index was still under the configured bound.
	CorrectionRequested bool
}

// Dispatcher runs a turn's pending tool calls against a Registry,
// enforcing the confirm/deny policy and guaranteeing exactly one tool
// message per call id (I1).
type Dispatcher struct {
	registry   *Registry
	checker    *permissions.Checker
	tokenizer  postprocess.TokenCounter
	maxCorrections int
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithPermissions(c *permissions.Checker) Option {
	return func(d *Dispatcher) { d.checker = c }
}

func WithTokenCounter(tc postprocess.TokenCounter) Option {
	return func(d *Dispatcher) { d.tokenizer = tc }
}

func WithMaxCorrectionTurns(n int) Option {
	return func(d *Dispatcher) { d.maxCorrections = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithTracer attaches an OTel tracer; each executed tool call becomes a
// "dispatch.tool" span (spec.md §4.12, grounded on the teacher's
// runtime.toolExecutor.startSpan idiom).
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// New constructs a Dispatcher over registry. A nil permissions.Checker
// means every tool call is Ask (requires confirmation), matching
// permissions.NewChecker(nil)'s own nil-safe default.
func New(registry *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:       registry,
		checker:        permissions.NewChecker(nil),
		maxCorrections: defaultMaxCorrectionTurns,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// pendingCall is one tool call still awaiting an answer.
type pendingCall struct {
	index int
	call  tools.ToolCall
}

// PendingToolCalls returns the tool calls in assistantCalls that have no
// matching role=tool message with the same tool_call_id among answered
// (spec.md §4.12 step 1).
func PendingToolCalls(assistantCalls []tools.ToolCall, answered []chat.Message) []tools.ToolCall {
	done := make(map[string]bool, len(answered))
	for _, m := range answered {
		if m.Role == chat.RoleTool {
			done[m.ToolCallID] = true
		}
	}
	var pending []tools.ToolCall
	for _, c := range assistantCalls {
		if !done[c.ID] {
			pending = append(pending, c)
		}
	}
	return pending
}

// Dispatch runs every pending tool call (spec.md §4.12 steps 2-7).
// confirmed is the set of tool_call_ids the caller has explicitly
// approved this turn (e.g. resumed from a prior RequiredConfirmation);
// turnIndex is the current tool-loop iteration, used against the
// corrections bound.
func (d *Dispatcher) Dispatch(ctx context.Context, pending []tools.ToolCall, confirmed map[string]bool, turnIndex int, ppSettings postprocess.Settings) (Result, error) {
	outcomes := make([]*outcome, len(pending))

	var required []string
	var runnable []pendingCall

	for i, call := range pending {
		args, err := parseArguments(call.Function.Arguments)
		if err != nil {
			outcomes[i] = &outcome{msg: toolErrorMessage(call, fmt.Sprintf("tool use: invalid arguments: %v", err))}
			continue
		}

		decision := d.checker.CheckWithArgs(call.Function.Name, args)
		switch decision {
		case permissions.Deny:
			cmd := matchCommand(call.Function.Name, args)
			outcomes[i] = &outcome{msg: toolErrorMessage(call, fmt.Sprintf("tool use: command '%s' is denied", cmd))}
		case permissions.Allow:
			runnable = append(runnable, pendingCall{index: i, call: call})
		case permissions.Ask:
			if confirmed[call.ID] {
				runnable = append(runnable, pendingCall{index: i, call: call})
			} else {
				required = append(required, call.ID)
			}
		}
	}

	if err := d.run(ctx, runnable, outcomes); err != nil {
		return Result{}, err
	}

	return d.assemble(outcomes, required, turnIndex, ppSettings), nil
}

// outcome is one tool call's resolution, set either synchronously (parse
// error, policy denial) or from a concurrent run() goroutine.
type outcome struct {
	msg          chat.Message
	contextFiles []vecstore.ContextFile
	corrections  bool
}

// run executes runnable tool calls concurrently (spec.md §4.12 step 4,
// §5: "concurrent sibling tasks joined before the dispatcher returns").
func (d *Dispatcher) run(ctx context.Context, runnable []pendingCall, outcomes []*outcome) error {
	if len(runnable) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for _, pc := range runnable {
		pc := pc
		g.Go(func() error {
			res := d.execute(gctx, pc.call)
			mu.Lock()
			outcomes[pc.index] = res
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// startSpan is a nil-safe tracer.Start: without a configured tracer it
// returns the no-op span already carried on ctx.
func (d *Dispatcher) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if d.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return d.tracer.Start(ctx, name, opts...)
}

// execute runs a single tool call's handler, converting a handler error
// or panic-free failure into a tool error message (spec.md §7: "Tool
// failures are local").
func (d *Dispatcher) execute(ctx context.Context, call tools.ToolCall) *outcome {
	ctx, span := d.startSpan(ctx, "dispatch.tool", trace.WithAttributes(
		attribute.String("tool.name", call.Function.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()

	tool, ok := d.registry.Lookup(call.Function.Name)
	if !ok {
		err := unknownTool(call.Function.Name)
		span.SetStatus(codes.Error, err.Error())
		return &outcome{msg: toolErrorMessage(call, err.Error())}
	}
	if tool.Handler == nil {
		err := fmt.Sprintf("tool %q has no handler", tool.Name)
		span.SetStatus(codes.Error, err)
		return &outcome{msg: toolErrorMessage(call, err)}
	}

	res, err := tool.Handler(ctx, call)
	if err != nil {
		d.logger.Error("tool handler failed", "tool", tool.Name, "call_id", call.ID, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return &outcome{msg: toolErrorMessage(call, fmt.Sprintf("tool use: error: %v", err))}
	}

	content := res.Output
	if content == "" {
		content = "(no output)"
	}
	return &outcome{
		msg:         chat.Message{Role: chat.RoleTool, Text: content, ToolCallID: call.ID},
		corrections: res.CorrectionsNeeded,
	}
}

// assemble builds the Result per spec.md §4.12 steps 5-7: tool-answer
// messages in call order first, corrections loop-back if requested and
// within bound, otherwise postprocessed context files as a single
// aggregate message.
func (d *Dispatcher) assemble(outcomes []*outcome, required []string, turnIndex int, ppSettings postprocess.Settings) Result {
	var toolMsgs []chat.Message
	var contextFiles []vecstore.ContextFile
	var anyCorrections bool

	for _, o := range outcomes {
		if o == nil {
			continue // awaiting confirmation; no answer yet (I1)
		}
		toolMsgs = append(toolMsgs, o.msg)
		contextFiles = append(contextFiles, o.contextFiles...)
		if o.corrections {
			anyCorrections = true
		}
	}

	result := Result{Messages: toolMsgs, RequiredConfirmation: required}

	if anyCorrections && turnIndex < d.maxCorrections {
		result.CorrectionRequested = true
		result.Messages = append(result.Messages, chat.Message{
			Role: chat.RoleUser,
			Text: "Your previous tool call(s) need correction before proceeding. Please review the tool error(s) above and retry with corrected arguments.",
		})
		return result
	}

	if len(contextFiles) > 0 && d.tokenizer != nil {
		rendered := postprocess.Process(contextFiles, d.tokenizer, ppSettings)
		if text := renderContextFiles(rendered); text != "" {
			result.Messages = append(result.Messages, chat.Message{Role: chat.RoleContextFile, Text: text})
		}
	}

	return result
}

func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func toolErrorMessage(call tools.ToolCall, text string) chat.Message {
	return chat.Message{Role: chat.RoleTool, Text: text, ToolCallID: call.ID}
}

// matchCommand extracts the string the confirm/deny policy matched
// against, for a readable denial message (spec.md seed test 3).
func matchCommand(toolName string, args map[string]any) string {
	if cmd, ok := args["cmd"].(string); ok {
		return cmd
	}
	if cmd, ok := args["command"].(string); ok {
		return cmd
	}
	return toolName
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
