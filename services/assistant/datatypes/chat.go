// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the concierge assistant.
//
// This file contains the conversation data model: messages, tool calls,
// per-session conversation state, and the request/response types for the
// synchronous turn endpoint. Webhook payload types live in webhook.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of history messages passed
	// to the model in a single turn. Stored history is never truncated; only
	// the window sent to the model is bounded.
	MaxMessagesPerRequest = 100
)

// =============================================================================
// Roles
// =============================================================================

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for assistant datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes checks byte length (not rune count) so oversized payloads
// are rejected before they reach the model.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Conversation Model
// =============================================================================

// ToolCall is a single tool invocation requested by the assistant.
//
// # Fields
//
//   - ID: Correlation id assigned by the model. A tool result message must
//     echo this id in its ToolCallID field.
//   - Name: The registered tool name (e.g. "search_knowledge_base").
//   - Arguments: Raw JSON arguments exactly as emitted by the model. The
//     tool executor is responsible for parsing and validating them.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry in a conversation transcript.
//
// # Description
//
// Messages cover four roles. A "user" or "system" message carries only
// Content. An "assistant" message may additionally carry ToolCalls when the
// model requested tool execution. A "tool" message is the result of exactly
// one tool call and must reference it via ToolCallID.
//
// # Invariants
//
//   - Every tool message's ToolCallID matches a ToolCall.ID from the
//     immediately preceding assistant message.
//   - Tool result messages appear in the same order the assistant emitted
//     the corresponding tool calls, regardless of execution completion order.
type Message struct {
	Role       string     `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// NewSystemMessage builds a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage builds a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage builds a plain assistant message without tool calls.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolResult builds a tool result message for the given call id.
func NewToolResult(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// DownloadedFile describes one document fetched during answer post-processing
// and staged on local disk for outbound delivery.
type DownloadedFile struct {
	Name        string `json:"name"`
	LocalPath   string `json:"local_path"`
	SourceURL   string `json:"source_url"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// ConversationState is the full persisted state for one session.
//
// DownloadedFiles always reflects the most recent turn only; each completed
// turn replaces the previous value.
type ConversationState struct {
	SessionID       string           `json:"session_id"`
	CreatedAt       int64            `json:"created_at"`
	Messages        []Message        `json:"messages"`
	DownloadedFiles []DownloadedFile `json:"downloaded_files"`
}

// Session is the administrative view of a stored conversation.
type Session struct {
	ID           string `json:"session_id"`
	CreatedAt    int64  `json:"created_at"`
	MessageCount int    `json:"message_count"`
}

// =============================================================================
// Turn Endpoint Types
// =============================================================================

// TurnRequest is the body for POST /v1/turn, the synchronous entry point used
// by the CLI chat console and by integration tests. The webhook path builds
// the same inputs from the gateway payload instead.
type TurnRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
	Question  string `json:"question" validate:"required,maxbytes"`
}

// Validate validates the TurnRequest fields.
func (r *TurnRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults generates a session id when the client did not supply one.
func (r *TurnRequest) EnsureDefaults() {
	if r.SessionID == "" {
		r.SessionID = generateSessionID()
	}
}

// TurnResponse is the result of one completed turn.
type TurnResponse struct {
	SessionID        string           `json:"session_id"`
	Answer           string           `json:"answer"`
	DownloadedFiles  []DownloadedFile `json:"downloaded_files,omitempty"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
}

// generateSessionID returns a fresh session identifier.
func generateSessionID() string {
	return "sess_" + uuid.NewString()
}

// NowMillis returns the current Unix timestamp in milliseconds (UTC).
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
