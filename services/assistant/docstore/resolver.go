// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package docstore resolves deliverable documents for the assistant.
//
// Document bytes live in a GCS bucket; their metadata (file name, category,
// free-text description, object path) lives in the Weaviate TravelDocument
// class. Resolution is deliberately decoupled from fetching: the resolver
// only lists matches with short-lived signed URLs, and bytes move later when
// the post-processor downloads whatever URLs survive into the final answer.
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("concierge.assistant.docstore")

// SignedURLTTL is how long a generated download link stays valid.
const SignedURLTTL = time.Hour

// maxMatches caps how many documents a single lookup returns.
const maxMatches = 10

// Match is one resolved document with a ready-to-use download link.
type Match struct {
	FileName    string `json:"file_name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Resolver finds deliverable documents by free-text query.
type Resolver interface {
	Find(ctx context.Context, query string) ([]Match, error)
}

// URLSigner produces a time-limited download URL for a bucket object.
type URLSigner interface {
	SignedURL(objectPath string) (string, error)
}

// WeaviateResolver implements Resolver over the TravelDocument class plus a
// URLSigner for the bucket objects.
type WeaviateResolver struct {
	client *weaviate.Client
	signer URLSigner
}

// NewWeaviateResolver creates a resolver. Both dependencies are required.
func NewWeaviateResolver(client *weaviate.Client, signer URLSigner) *WeaviateResolver {
	return &WeaviateResolver{client: client, signer: signer}
}

// Find searches document metadata by file name, category and description.
//
// The primary search ORs Like filters over the three text fields. When that
// yields nothing, a fallback pass searches category alone with each
// significant word of the query, which catches queries like "mandame los
// pases de abordar" where only one word overlaps the metadata.
func (r *WeaviateResolver) Find(ctx context.Context, query string) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "DocumentFind")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	results, err := r.search(ctx, r.anyFieldFilter(query))
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		slog.Debug("Primary document search empty, trying category fallback", "query", query)
		for _, word := range significantWords(query) {
			results, err = r.search(ctx, r.categoryFilter(word))
			if err != nil {
				return nil, err
			}
			if len(results) > 0 {
				break
			}
		}
	}

	matches := make([]Match, 0, len(results))
	for _, doc := range results {
		url, err := r.signer.SignedURL(doc.ObjectPath)
		if err != nil {
			slog.Warn("Failed to sign URL for document, skipping",
				"file", doc.FileName, "object", doc.ObjectPath, "error", err)
			continue
		}
		matches = append(matches, Match{
			FileName:    doc.FileName,
			Category:    doc.Category,
			Description: doc.Description,
			URL:         url,
		})
	}

	slog.Info("Document lookup complete", "query", query, "matches", len(matches))
	return matches, nil
}

func (r *WeaviateResolver) search(ctx context.Context, where *filters.WhereBuilder) ([]datatypes.TravelDocumentResult, error) {
	fields := []graphql.Field{
		{Name: "file_name"},
		{Name: "category"},
		{Name: "description"},
		{Name: "object_path"},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName("TravelDocument").
		WithFields(fields...).
		WithWhere(where).
		WithLimit(maxMatches).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to query the TravelDocument class", "error", err)
		return nil, fmt.Errorf("weaviate query failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.TravelDocumentQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}
	return parsed.Get.TravelDocument, nil
}

func (r *WeaviateResolver) anyFieldFilter(query string) *filters.WhereBuilder {
	pattern := "*" + query + "*"
	fileNameFilter := filters.Where().
		WithPath([]string{"file_name"}).
		WithOperator(filters.Like).
		WithValueString(pattern)
	categoryFilter := filters.Where().
		WithPath([]string{"category"}).
		WithOperator(filters.Like).
		WithValueString(pattern)
	descriptionFilter := filters.Where().
		WithPath([]string{"description"}).
		WithOperator(filters.Like).
		WithValueString(pattern)

	return filters.Where().
		WithOperator(filters.Or).
		WithOperands([]*filters.WhereBuilder{fileNameFilter, categoryFilter, descriptionFilter})
}

func (r *WeaviateResolver) categoryFilter(word string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"category"}).
		WithOperator(filters.Like).
		WithValueString("*" + word + "*")
}

// significantWords returns the query words worth searching on their own.
// Short words are connectives in both Spanish and English and only add noise.
func significantWords(query string) []string {
	var words []string
	for _, w := range strings.Fields(query) {
		w = strings.Trim(w, "¿?¡!.,;:\"'")
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	return words
}

// =============================================================================
// GCS Signer / Uploader
// =============================================================================

// GCSBucket signs download URLs and uploads objects for one bucket.
type GCSBucket struct {
	storageClient *storage.Client
	BucketName    string
}

// NewGCSBucket wraps an existing storage client for the given bucket.
func NewGCSBucket(storageClient *storage.Client, bucketName string) *GCSBucket {
	return &GCSBucket{storageClient: storageClient, BucketName: bucketName}
}

// SignedURL returns a V4 signed GET URL valid for SignedURLTTL.
func (b *GCSBucket) SignedURL(objectPath string) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(SignedURLTTL),
	}
	url, err := b.storageClient.Bucket(b.BucketName).SignedURL(objectPath, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for gs://%s/%s: %w", b.BucketName, objectPath, err)
	}
	return url, nil
}
