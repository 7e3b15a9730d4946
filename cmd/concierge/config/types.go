// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

type ConciergeConfig struct {
	// Assistant: where the assistant service listens
	Assistant AssistantConfig `yaml:"assistant"`

	// Storage: bucket used for deliverable travel documents
	Storage StorageConfig `yaml:"storage"`
}

type AssistantConfig struct {
	BaseURL string `yaml:"base_url"` // e.g. http://localhost:12220
	APIKey  string `yaml:"api_key,omitempty"`
}

type StorageConfig struct {
	Bucket string `yaml:"bucket"`
}

func DefaultConfig() ConciergeConfig {
	return ConciergeConfig{
		Assistant: AssistantConfig{
			BaseURL: "http://localhost:12220",
		},
	}
}
