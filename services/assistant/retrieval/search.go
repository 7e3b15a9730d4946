// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval implements semantic search over the knowledge base.
//
// Queries are embedded via the external embedding service and matched
// against the Passage class in Weaviate with a nearVector search. An empty
// result set is a normal outcome, not an error; the knowledge tool turns it
// into an instruction for the model instead.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("concierge.assistant.retrieval")

// Passage is one retrieved knowledge-base chunk, most relevant first.
type Passage struct {
	Content      string
	Source       string
	ParentSource string
	Certainty    float64
}

// Searcher retrieves the top-k passages for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Passage, error)
}

// EmbeddingProvider computes a vector for a piece of text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// maxEmbedLength bounds what we send to the embedding service.
const maxEmbedLength = 2048

// WeaviatePassageSearcher implements Searcher against the Passage class.
//
// # Thread Safety
//
// Safe for concurrent use; the Weaviate client pools connections.
type WeaviatePassageSearcher struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
}

// NewWeaviatePassageSearcher creates a searcher over the Passage class.
func NewWeaviatePassageSearcher(client *weaviate.Client, embedder EmbeddingProvider) *WeaviatePassageSearcher {
	return &WeaviatePassageSearcher{client: client, embedder: embedder}
}

// Search embeds the query and runs a nearVector search over Passage.
//
// Results are ordered by certainty descending (Weaviate's default for
// nearVector). Returns an empty slice when nothing matches.
func (s *WeaviatePassageSearcher) Search(ctx context.Context, query string, limit int) ([]Passage, error) {
	ctx, span := tracer.Start(ctx, "PassageSearch")
	defer span.End()

	if limit <= 0 {
		limit = 4
	}

	truncated := query
	if len(query) > maxEmbedLength {
		truncated = query[:maxEmbedLength]
		slog.Debug("Truncated query for embedding", "originalLen", len(query), "truncatedLen", len(truncated))
	}

	vector, err := s.embedder.Embed(ctx, truncated)
	if err != nil {
		slog.Error("Failed to embed query for passage search", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// Certainty is requested instead of distance: it is always in [0, 1]
	// regardless of the configured distance metric.
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "parent_source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName("Passage").
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to search the Passage class", "error", err)
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.PassageQueryResponse](result)
	if err != nil {
		slog.Error("Failed to parse passage search results", "error", err)
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	passages := make([]Passage, 0, len(parsed.Get.Passage))
	for _, p := range parsed.Get.Passage {
		var certainty float64
		if p.Additional.Certainty != nil {
			certainty = float64(*p.Additional.Certainty)
		}
		passages = append(passages, Passage{
			Content:      p.Content,
			Source:       p.Source,
			ParentSource: p.ParentSource,
			Certainty:    certainty,
		})
	}

	slog.Debug("Passage search complete", "query_len", len(query), "results", len(passages))
	return passages, nil
}

// =============================================================================
// DatatypesEmbedder
// =============================================================================

// DatatypesEmbedder adapts datatypes.EmbeddingResponse to EmbeddingProvider.
// Each call creates a fresh EmbeddingResponse, so it is safe for concurrent
// use.
type DatatypesEmbedder struct{}

// NewDatatypesEmbedder creates an embedding provider backed by the external
// embedding service (EMBEDDING_SERVICE_URL).
func NewDatatypesEmbedder() *DatatypesEmbedder {
	return &DatatypesEmbedder{}
}

// Embed computes a vector embedding for the given text.
func (e *DatatypesEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var embResp datatypes.EmbeddingResponse
	if err := embResp.GetWithContext(ctx, text); err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return embResp.Vector, nil
}
