// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine runs one conversational turn end to end.
//
// A turn moves through four states:
//
//	AGENT ──► TOOLS ──► (back to AGENT, bounded) ──► POSTPROCESS ──► DONE
//
// AGENT calls the chat model with the session transcript and the registered
// tool definitions. When the model requests tools, TOOLS executes them
// (concurrently, results appended in call-emission order) and loops back.
// When the model answers in plain text, POSTPROCESS downloads any document
// links in the answer and rewrites them into delivery markers. DONE persists
// the turn and returns the answer plus the staged files.
//
// The engine is stateless between turns; all state lives in the session
// store. Same-session turns serialize through the store's per-session lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/AleutianAI/concierge/services/assistant/observability"
	"github.com/AleutianAI/concierge/services/assistant/session"
	"github.com/AleutianAI/concierge/services/assistant/tools"
	"github.com/AleutianAI/concierge/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var engineTracer = otel.Tracer("concierge.assistant.engine")

// ErrNotReady is returned by RunTurn when the engine was constructed without
// a model or a tool registry.
var ErrNotReady = errors.New("engine is not ready: chat model and tool registry are required")

// User-facing fallback wording. The bot speaks Spanish to its users, so the
// degraded answers do too.
const (
	// DegradedAnswer is returned when the tool loop hits its iteration cap
	// without producing a plain answer.
	DegradedAnswer = "No pude completar la consulta. Por favor, intenta de nuevo."

	// ApologyAnswer is what callers send when a turn fails outright.
	ApologyAnswer = "Ocurrió un error al procesar tu consulta. Por favor, intenta de nuevo."
)

const defaultSystemPrompt = "You are a travel concierge assistant. Answer in the " +
	"language the user writes in. Use search_knowledge_base before answering " +
	"questions about the user's trip, and find_documents when they ask for a " +
	"ticket, reservation, or other stored document. When you include a document " +
	"for delivery, reference it as a markdown link using the link the tool returned."

// TurnResult is what one completed turn produces.
type TurnResult struct {
	Answer          string
	DownloadedFiles []datatypes.DownloadedFile
}

// Engine orchestrates the model/tool loop for a single turn.
//
// # Thread Safety
//
// Safe for concurrent use. Turns for the same session serialize through the
// session store's lock; distinct sessions run in parallel.
type Engine struct {
	model    llm.LLMClient
	registry *tools.Registry
	store    session.Store
	post     *PostProcessor

	// MaxIterations caps the AGENT/TOOLS loop. On overflow the turn degrades
	// to the last assistant text instead of failing.
	MaxIterations int

	// CallTimeout bounds each model call and each tool execution.
	CallTimeout time.Duration

	systemPrompt string
}

// NewEngine wires the engine. The system prompt comes from
// ASSISTANT_SYSTEM_PROMPT with a built-in default.
func NewEngine(model llm.LLMClient, registry *tools.Registry, store session.Store, post *PostProcessor) *Engine {
	systemPrompt := os.Getenv("ASSISTANT_SYSTEM_PROMPT")
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
		slog.Info("ASSISTANT_SYSTEM_PROMPT not set, using the built-in persona")
	}

	return &Engine{
		model:         model,
		registry:      registry,
		store:         store,
		post:          post,
		MaxIterations: 10,
		CallTimeout:   30 * time.Second,
		systemPrompt:  systemPrompt,
	}
}

// RunTurn processes one user question for the given session.
//
// The flow is:
//  1. Take the per-session lock (bounded wait) and load session state.
//  2. Run the model/tool loop until the model answers in plain text or the
//     iteration cap is hit.
//  3. Post-process the answer: download referenced documents, rewrite links.
//  4. Persist the turn transcript and the download list, release the lock.
//
// Tool executor failures never abort a turn; they become error-text tool
// results the model can react to. Model call failures do abort the turn and
// the caller is expected to send ApologyAnswer out of band.
func (e *Engine) RunTurn(ctx context.Context, sessionID, question string) (*TurnResult, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.RunTurn")
	defer span.End()

	if e.model == nil || e.registry == nil {
		return nil, ErrNotReady
	}
	if e.store == nil {
		return nil, fmt.Errorf("engine has no session store")
	}
	if sessionID == "" || question == "" {
		return nil, fmt.Errorf("a session id and a question are required")
	}

	span.SetAttributes(attribute.String("session.id", sessionID))
	started := time.Now()

	release, err := e.store.Acquire(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock acquisition failed")
		recordTurn("lock_timeout", started)
		return nil, fmt.Errorf("could not start turn for session %s: %w", sessionID, err)
	}
	defer release()

	state, err := e.store.Get(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session load failed")
		recordTurn("error", started)
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	// Working transcript: system prompt + bounded history window + question.
	working := make([]datatypes.Message, 0, len(state.Messages)+2)
	working = append(working, datatypes.NewSystemMessage(e.systemPrompt))
	working = append(working, historyWindow(state.Messages)...)
	userMsg := datatypes.NewUserMessage(question)
	working = append(working, userMsg)

	// turnMsgs is what gets persisted for this turn: the user question, the
	// assistant's tool-call messages, the tool results, and the final answer.
	turnMsgs := []datatypes.Message{userMsg}

	answer, loopMsgs, err := e.runLoop(ctx, working)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model loop failed")
		recordTurn("error", started)
		return nil, err
	}
	turnMsgs = append(turnMsgs, loopMsgs...)

	clean, files := e.postprocess(ctx, sessionID, answer)

	// The model may legally answer with empty content, and post-processing
	// can strip an answer that was nothing but a dead document link. The user
	// still gets a reply either way.
	if clean == "" && len(files) == 0 {
		slog.Warn("Turn produced no deliverable content, degrading",
			"sessionId", sessionID)
		clean = DegradedAnswer
	}

	// The persisted final message carries the cleaned answer, matching what
	// the user actually received.
	if len(turnMsgs) > 0 && turnMsgs[len(turnMsgs)-1].Role == datatypes.RoleAssistant {
		turnMsgs[len(turnMsgs)-1].Content = clean
	} else {
		turnMsgs = append(turnMsgs, datatypes.NewAssistantMessage(clean))
	}

	if err := e.store.Append(ctx, sessionID, turnMsgs...); err != nil {
		slog.Error("Failed to persist turn transcript", "sessionId", sessionID, "error", err)
	}
	if err := e.store.SetDownloads(ctx, sessionID, files); err != nil {
		slog.Error("Failed to persist download list", "sessionId", sessionID, "error", err)
	}

	span.SetAttributes(
		attribute.Int("turn.messages", len(turnMsgs)),
		attribute.Int("turn.downloads", len(files)),
	)
	recordTurn("success", started)

	return &TurnResult{Answer: clean, DownloadedFiles: files}, nil
}

// runLoop drives AGENT/TOOLS until a plain answer or the iteration cap.
// It returns the final answer text and every message the loop produced.
func (e *Engine) runLoop(ctx context.Context, working []datatypes.Message) (string, []datatypes.Message, error) {
	defs := e.registry.Definitions()
	var produced []datatypes.Message
	lastContent := ""

	for iteration := 0; iteration < e.MaxIterations; iteration++ {
		callCtx, cancel := context.WithTimeout(ctx, e.CallTimeout)
		assistant, err := e.model.Chat(callCtx, working, defs, llm.GenerationParams{})
		cancel()
		if err != nil {
			return "", nil, fmt.Errorf("chat model call failed: %w", err)
		}

		working = append(working, *assistant)
		produced = append(produced, *assistant)
		if assistant.Content != "" {
			lastContent = assistant.Content
		}

		if len(assistant.ToolCalls) == 0 {
			slog.Debug("Turn loop finished", "iterations", iteration+1)
			return assistant.Content, produced, nil
		}

		results := e.executeCalls(ctx, assistant.ToolCalls)
		working = append(working, results...)
		produced = append(produced, results...)
	}

	slog.Warn("Turn loop hit the iteration cap, degrading",
		"cap", e.MaxIterations)
	if lastContent != "" {
		return lastContent, produced, nil
	}
	// No usable assistant text anywhere in the loop.
	produced = append(produced, datatypes.NewAssistantMessage(DegradedAnswer))
	return DegradedAnswer, produced, nil
}

// executeCalls runs the batch of tool calls concurrently and returns one
// result message per call, in the same order the model emitted the calls.
func (e *Engine) executeCalls(ctx context.Context, calls []datatypes.ToolCall) []datatypes.Message {
	results := make([]datatypes.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			toolCtx, cancel := context.WithTimeout(gctx, e.CallTimeout)
			defer cancel()

			out, err := e.registry.Execute(toolCtx, call.Name, call.Arguments)
			if err != nil {
				slog.Warn("Tool call failed", "tool", call.Name, "error", err)
				recordToolCall(call.Name, "error")
				out = fmt.Sprintf("ERROR: %v", err)
			} else {
				recordToolCall(call.Name, "success")
			}
			results[i] = datatypes.NewToolResult(call.ID, out)
			return nil
		})
	}
	// Executors never return errors through the group; failures are encoded
	// as error-text results above.
	_ = g.Wait()

	return results
}

// postprocess runs the document post-processor, falling back to the raw
// answer when post-processing itself fails.
func (e *Engine) postprocess(ctx context.Context, sessionID, answer string) (string, []datatypes.DownloadedFile) {
	if e.post == nil {
		return answer, nil
	}
	clean, files, err := e.post.Process(ctx, sessionID, answer)
	if err != nil {
		slog.Error("Answer post-processing failed, delivering the raw answer",
			"sessionId", sessionID, "error", err)
		return answer, nil
	}
	return clean, files
}

// historyWindow bounds the history passed to the model without truncating
// stored state.
func historyWindow(msgs []datatypes.Message) []datatypes.Message {
	if len(msgs) <= datatypes.MaxMessagesPerRequest {
		return msgs
	}
	window := msgs[len(msgs)-datatypes.MaxMessagesPerRequest:]

	// An arbitrary cut can leave the window opening with tool results whose
	// emitting assistant message fell outside it; chat endpoints reject such
	// transcripts. Advance to the next user message so the window starts on
	// a turn boundary.
	for i := range window {
		if window[i].Role == datatypes.RoleUser {
			return window[i:]
		}
	}
	return nil
}

func recordTurn(status string, started time.Time) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordTurn(status, time.Since(started).Seconds())
	}
}

func recordToolCall(tool, status string) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordToolCall(tool, status)
	}
}
