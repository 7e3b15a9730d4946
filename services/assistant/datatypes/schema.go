// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"context"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// assistantClasses are the Weaviate classes the assistant depends on.
// Passage holds the embedded knowledge-base chunks; TravelDocument holds
// metadata for deliverable files stored in the object bucket. Both use
// vectorizer "none" because embeddings come from the external embedding
// service.
var assistantClasses = []*models.Class{
	{
		Class:       "Passage",
		Description: "Chunked knowledge base content with externally computed vectors",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "parent_source", DataType: []string{"text"}},
			{Name: "ingested_at", DataType: []string{"int"}},
		},
	},
	{
		Class:       "TravelDocument",
		Description: "Metadata for downloadable documents stored in the object bucket",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "file_name", DataType: []string{"text"}},
			{Name: "category", DataType: []string{"text"}},
			{Name: "description", DataType: []string{"text"}},
			{Name: "object_path", DataType: []string{"text"}},
			{Name: "uploaded_at", DataType: []string{"int"}},
		},
	},
}

// EnsureWeaviateSchema creates the assistant's classes if they do not exist.
// Failures are logged rather than fatal; the service can still answer
// tool-free questions without the vector store.
func EnsureWeaviateSchema(client *weaviate.Client) {
	ctx := context.Background()
	for _, class := range assistantClasses {
		exists, err := client.Schema().ClassExistenceChecker().
			WithClassName(class.Class).
			Do(ctx)
		if err != nil {
			slog.Warn("Failed to check Weaviate class existence", "class", class.Class, "error", err)
			continue
		}
		if exists {
			slog.Info("Weaviate class already present", "class", class.Class)
			continue
		}
		if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			slog.Warn("Failed to create Weaviate class", "class", class.Class, "error", err)
			continue
		}
		slog.Info("Successfully created Weaviate class", "class", class.Class)
	}
}
