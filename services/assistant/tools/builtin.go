// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/concierge/services/assistant/docstore"
	"github.com/AleutianAI/concierge/services/assistant/retrieval"
	"github.com/AleutianAI/concierge/services/llm"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// =============================================================================
// current_datetime
// =============================================================================

// CurrentDatetime reports the current date and time in the assistant's
// configured time zone. The model calls it for anything time-sensitive
// ("¿qué hora es?", "is my flight today?").
type CurrentDatetime struct {
	Location *time.Location

	// now is overridable for tests; defaults to time.Now.
	now func() time.Time
}

// NewCurrentDatetime creates the tool for the given IANA zone name.
// Falls back to UTC (with a warning) when the zone cannot be loaded.
func NewCurrentDatetime(zone string) *CurrentDatetime {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		slog.Warn("Failed to load time zone, falling back to UTC", "zone", zone, "error", err)
		loc = time.UTC
	}
	return &CurrentDatetime{Location: loc, now: time.Now}
}

func (t *CurrentDatetime) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "current_datetime",
		Description: "Returns the current date and time in the assistant's time zone. Use for any question involving the current time, date, or day of week.",
		Parameters: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{},
		},
	}
}

func (t *CurrentDatetime) Execute(ctx context.Context, rawArgs string) (string, error) {
	now := t.now().In(t.Location)
	return fmt.Sprintf("Current datetime: %s (%s, week day %s)",
		now.Format("2006-01-02 15:04:05 MST"),
		t.Location.String(),
		now.Weekday()), nil
}

// =============================================================================
// search_knowledge_base
// =============================================================================

// searchArgs are the model-emitted arguments for search_knowledge_base.
type searchArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SearchKnowledgeBase retrieves relevant passages for a sub-question.
type SearchKnowledgeBase struct {
	Searcher retrieval.Searcher
	TopK     int
}

// NewSearchKnowledgeBase creates the retrieval tool with a default top-k.
func NewSearchKnowledgeBase(searcher retrieval.Searcher, topK int) *SearchKnowledgeBase {
	if topK <= 0 {
		topK = 4
	}
	return &SearchKnowledgeBase{Searcher: searcher, TopK: topK}
}

func (t *SearchKnowledgeBase) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "search_knowledge_base",
		Description: "Searches the private knowledge base for passages relevant to a question. Use this before answering anything about the user's itinerary, bookings, or trip details.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"query": {
					Type:        jsonschema.String,
					Description: "The sub-question to search for, phrased as standalone text.",
				},
				"top_k": {
					Type:        jsonschema.Integer,
					Description: "How many passages to return. Optional.",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *SearchKnowledgeBase) Execute(ctx context.Context, rawArgs string) (string, error) {
	var args searchArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("invalid arguments for search_knowledge_base: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("search_knowledge_base requires a non-empty query")
	}

	topK := args.TopK
	if topK <= 0 {
		topK = t.TopK
	}

	passages, err := t.Searcher.Search(ctx, args.Query, topK)
	if err != nil {
		return "", fmt.Errorf("knowledge base search failed: %w", err)
	}

	// An empty result is not an error. Tell the model so it answers from
	// general knowledge and says it did.
	if len(passages) == 0 {
		return "No passages found in the knowledge base for this query. " +
			"Answer from general knowledge and tell the user the information " +
			"did not come from their documents.", nil
	}

	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "[Passage %d: %s]\n%s\n\n", i+1, p.ParentSource, p.Content)
	}
	return strings.TrimSpace(b.String()), nil
}

// =============================================================================
// find_documents
// =============================================================================

// findArgs are the model-emitted arguments for find_documents.
type findArgs struct {
	Query string `json:"query"`
}

// FindDocuments lists deliverable documents with signed download URLs.
// It never moves bytes; the post-processor downloads whatever URLs the model
// keeps in its final answer.
type FindDocuments struct {
	Resolver docstore.Resolver
}

// NewFindDocuments creates the document lookup tool.
func NewFindDocuments(resolver docstore.Resolver) *FindDocuments {
	return &FindDocuments{Resolver: resolver}
}

func (t *FindDocuments) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "find_documents",
		Description: "Finds the user's stored documents (tickets, boarding passes, reservations) by name, category, or description. Returns file names with download links. Include a link in your answer as a markdown link when the user asked for the document.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"query": {
					Type:        jsonschema.String,
					Description: "What to look for, e.g. 'boarding pass', 'hotel reservation'.",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *FindDocuments) Execute(ctx context.Context, rawArgs string) (string, error) {
	var args findArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("invalid arguments for find_documents: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("find_documents requires a non-empty query")
	}

	matches, err := t.Resolver.Find(ctx, args.Query)
	if err != nil {
		return "", fmt.Errorf("document lookup failed: %w", err)
	}
	if len(matches) == 0 {
		return "No stored documents matched this query. Tell the user none of " +
			"their documents matched and ask them to rephrase.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d document(s):\n", len(matches))
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s (category: %s) %s\n  link: %s\n",
			m.FileName, m.Category, m.Description, m.URL)
	}
	return strings.TrimSpace(b.String()), nil
}
