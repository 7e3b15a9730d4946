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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/concierge/cmd/concierge/config"
	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func getAssistantBaseURL() string {
	if url := os.Getenv("ASSISTANT_BASE_URL"); url != "" {
		return strings.TrimSuffix(url, "/")
	}
	return strings.TrimSuffix(config.Global.Assistant.BaseURL, "/")
}

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	fmt.Printf("Asking: %s\n", question)
	fmt.Println("---")

	resp, err := sendTurnRequest(sessionID, question)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("\nAnswer:\n%s\n", resp.Answer)
	printDownloads(resp.DownloadedFiles)
	fmt.Printf("\n(session: %s, %dms)\n", resp.SessionID, resp.ProcessingTimeMs)
}

func runChatCommand(cmd *cobra.Command, args []string) {
	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	if interactive {
		fmt.Println("Chat with the concierge. Type 'exit' or Ctrl-D to quit.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	currentSession := sessionID
	for {
		if interactive {
			fmt.Print("you> ")
		}
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		resp, err := sendTurnRequest(currentSession, question)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		currentSession = resp.SessionID

		fmt.Printf("\nconcierge> %s\n\n", resp.Answer)
		printDownloads(resp.DownloadedFiles)
	}

	if currentSession != "" {
		fmt.Printf("\nSession: %s (resume with --resume %s)\n", currentSession, currentSession)
	}
}

func sendTurnRequest(session, question string) (*datatypes.TurnResponse, error) {
	req := datatypes.TurnRequest{SessionID: session, Question: question}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost,
		getAssistantBaseURL()+"/v1/turn", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := config.Global.Assistant.APIKey; key != "" {
		httpReq.Header.Set("X-API-Key", key)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("turn request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assistant returned status %d: %s", httpResp.StatusCode, string(body))
	}

	var resp datatypes.TurnResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

func printDownloads(files []datatypes.DownloadedFile) {
	if len(files) == 0 {
		return
	}
	fmt.Println("Documents staged for delivery:")
	for i, f := range files {
		fmt.Printf("%d. %s (%s)\n", i+1, f.Name, f.LocalPath)
	}
}
