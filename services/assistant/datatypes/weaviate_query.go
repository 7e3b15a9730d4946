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
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("Passage").Do(ctx)
//	if err != nil { ... }
//
//	parsed, err := ParseGraphQLResponse[PassageQueryResponse](resp)
//	if err != nil { ... }
//
//	for _, p := range parsed.Get.Passage {
//	    fmt.Println(p.Content)
//	}
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Passage Class (knowledge base chunks)
// =============================================================================

// PassageQueryResponse represents the response from querying the Passage class.
type PassageQueryResponse struct {
	Get struct {
		Passage []PassageResult `json:"Passage"`
	} `json:"Get"`
}

// PassageResult is a single knowledge-base chunk from a query.
type PassageResult struct {
	Content      string `json:"content"`
	Source       string `json:"source"`
	ParentSource string `json:"parent_source"`
	IngestedAt   int64  `json:"ingested_at"`
	Additional   struct {
		ID        string   `json:"id"`
		Distance  *float32 `json:"distance"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// PassageProperties represents the properties for creating a Passage object.
type PassageProperties struct {
	Content      string `json:"content"`
	Source       string `json:"source"`
	ParentSource string `json:"parent_source"`
	IngestedAt   int64  `json:"ingested_at"`
}

// ToMap converts PassageProperties to the map format required by Weaviate's
// WithProperties() method.
func (p *PassageProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"content":       p.Content,
		"source":        p.Source,
		"parent_source": p.ParentSource,
		"ingested_at":   p.IngestedAt,
	}
}

// =============================================================================
// TravelDocument Class (deliverable document metadata)
// =============================================================================

// TravelDocumentQueryResponse represents the response from querying the
// TravelDocument class.
type TravelDocumentQueryResponse struct {
	Get struct {
		TravelDocument []TravelDocumentResult `json:"TravelDocument"`
	} `json:"Get"`
}

// TravelDocumentResult is a single document metadata record from a query.
type TravelDocumentResult struct {
	FileName    string `json:"file_name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	ObjectPath  string `json:"object_path"`
	Additional  struct {
		ID string `json:"id"`
	} `json:"_additional"`
}

// TravelDocumentProperties represents the properties for creating a
// TravelDocument metadata object.
type TravelDocumentProperties struct {
	FileName    string `json:"file_name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	ObjectPath  string `json:"object_path"`
	UploadedAt  int64  `json:"uploaded_at"`
}

// ToMap converts TravelDocumentProperties to map[string]interface{} for Weaviate.
func (p *TravelDocumentProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"file_name":   p.FileName,
		"category":    p.Category,
		"description": p.Description,
		"object_path": p.ObjectPath,
		"uploaded_at": p.UploadedAt,
	}
}
