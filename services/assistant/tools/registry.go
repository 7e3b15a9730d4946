// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the tool registry and the assistant's built-in tools.
//
// A tool is a named capability the model can invoke during a turn. Each tool
// declares a JSON-schema parameter definition that is forwarded verbatim to
// the chat completion endpoint, and an Execute method that receives the raw
// JSON arguments the model emitted.
//
// # Execution Contract
//
// Execute returns a plain string result. Errors and panics inside executors
// never abort a turn: the engine converts them into error-text tool results
// so the model can react (retry, apologize, answer without the tool).
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/AleutianAI/concierge/services/llm"
)

// Tool is one callable capability exposed to the model.
type Tool interface {
	// Definition returns the name, description and JSON-schema parameters
	// advertised to the model.
	Definition() llm.ToolDefinition

	// Execute runs the tool with the raw JSON arguments from the model.
	// Implementations must honor ctx cancellation on any blocking work.
	Execute(ctx context.Context, rawArgs string) (string, error)
}

// NotFoundError is returned when the model requests a tool that was never
// registered.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Name)
}

// IsNotFound checks if an error is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Registry holds the tools available to the engine, keyed by name.
//
// Registration happens once at startup; lookups happen on every tool call.
// The registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering the same name twice replaces the earlier
// entry and logs a warning.
func (r *Registry) Register(t Tool) {
	def := t.Definition()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		slog.Warn("Replacing previously registered tool", "tool", def.Name)
	}
	r.tools[def.Name] = t
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return t, nil
}

// Definitions returns the tool definitions in stable (name-sorted) order for
// inclusion in chat completion requests.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute looks up and runs a tool, converting panics into errors so a
// misbehaving executor cannot take down a turn.
func (r *Registry) Execute(ctx context.Context, call string, rawArgs string) (result string, err error) {
	t, err := r.Get(call)
	if err != nil {
		return "", err
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool executor panicked", "tool", call, "panic", rec)
			err = fmt.Errorf("tool %q panicked: %v", call, rec)
		}
	}()

	return t.Execute(ctx, rawArgs)
}
