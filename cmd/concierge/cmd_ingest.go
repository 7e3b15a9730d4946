// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/concierge/cmd/concierge/config"
	"github.com/AleutianAI/concierge/services/assistant/handlers"
	"github.com/spf13/cobra"
)

// ingestExtensions are the file types worth sending to the knowledge base.
var ingestExtensions = map[string]bool{
	".md":   true,
	".txt":  true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".csv":  true,
}

func runIngestCommand(cmd *cobra.Command, args []string) {
	var files []string
	for _, root := range args {
		found, err := collectIngestFiles(root)
		if err != nil {
			log.Fatalf("Error scanning %s: %v", root, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		log.Fatalf("No ingestible files found under: %s", strings.Join(args, ", "))
	}

	fmt.Printf("Ingesting %d file(s) into the knowledge base\n", len(files))
	ingested := 0
	for _, file := range files {
		chunks, err := ingestFile(file)
		if err != nil {
			fmt.Printf("  FAILED %s: %v\n", file, err)
			continue
		}
		fmt.Printf("  ok %s (%d chunks)\n", file, chunks)
		ingested++
	}
	fmt.Printf("Done: %d/%d file(s) ingested\n", ingested, len(files))
}

func runListCommand(cmd *cobra.Command, args []string) {
	httpReq, err := http.NewRequest(http.MethodGet, getAssistantBaseURL()+"/v1/documents", nil)
	if err != nil {
		log.Fatalf("Error creating request: %v", err)
	}
	if key := config.Global.Assistant.APIKey; key != "" {
		httpReq.Header.Set("X-API-Key", key)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		log.Fatalf("Error listing documents: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Assistant returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Documents []string `json:"documents"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}

	if len(result.Documents) == 0 {
		fmt.Println("The knowledge base is empty.")
		return
	}
	fmt.Printf("Knowledge base sources (%d):\n", len(result.Documents))
	for i, doc := range result.Documents {
		fmt.Printf("%d. %s\n", i+1, doc)
	}
}

func collectIngestFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if ingestExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func ingestFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}

	req := handlers.IngestPassageRequest{
		Content: string(content),
		Source:  filepath.Base(path),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost,
		getAssistantBaseURL()+"/v1/documents", bytes.NewBuffer(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := config.Global.Assistant.APIKey; key != "" {
		httpReq.Header.Set("X-API-Key", key)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("ingestion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("assistant returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		ChunksProcessed int `json:"chunks_processed"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return result.ChunksProcessed, nil
}
