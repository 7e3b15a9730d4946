// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transport pushes turn results back through the Evolution gateway.
//
// The webhook path is ack-then-async: the HTTP webhook returns 200 before
// the turn runs, and the answer plus any staged documents go out through
// this client once the engine finishes.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"golang.org/x/time/rate"
)

// MaxAttachmentsPerTurn caps how many documents ship in one turn. WhatsApp
// throttles accounts that burst media, so the remainder is offered instead
// of sent.
const MaxAttachmentsPerTurn = 3

// mediaPacing is the minimum spacing between consecutive media sends.
const mediaPacing = 1500 * time.Millisecond

// moreDocumentsOffer is sent when a turn staged more documents than the cap.
const moreDocumentsOffer = "Tengo %d documento(s) más para ti. Escribe \"más documentos\" y te los envío."

// Sender delivers answers and documents to a chat endpoint.
type Sender interface {
	SendText(ctx context.Context, jid, text string) error
	DeliverAnswer(ctx context.Context, jid, answer string, files []datatypes.DownloadedFile) error
}

// EvolutionClient talks to an Evolution API instance.
//
// # Thread Safety
//
// Safe for concurrent use; the pacing limiter is shared so parallel turns
// cannot jointly burst media sends.
type EvolutionClient struct {
	baseURL  string
	instance string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewEvolutionClientFromEnv builds the client from EVOLUTION_API_URL,
// EVOLUTION_INSTANCE and EVOLUTION_API_KEY.
func NewEvolutionClientFromEnv() (*EvolutionClient, error) {
	baseURL := os.Getenv("EVOLUTION_API_URL")
	instance := os.Getenv("EVOLUTION_INSTANCE")
	apiKey := os.Getenv("EVOLUTION_API_KEY")
	if baseURL == "" || instance == "" {
		return nil, fmt.Errorf("EVOLUTION_API_URL and EVOLUTION_INSTANCE must be set")
	}
	if apiKey == "" {
		slog.Warn("EVOLUTION_API_KEY not set, sending unauthenticated requests")
	}
	return NewEvolutionClient(baseURL, instance, apiKey), nil
}

// NewEvolutionClient builds a client for the given gateway.
func NewEvolutionClient(baseURL, instance, apiKey string) *EvolutionClient {
	return &EvolutionClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		instance: instance,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(mediaPacing), 1),
	}
}

// SendText sends a plain text message.
func (c *EvolutionClient) SendText(ctx context.Context, jid, text string) error {
	payload := map[string]interface{}{
		"number": jid,
		"text":   text,
	}
	return c.post(ctx, "/message/sendText/"+c.instance, payload)
}

// sendDocument sends one staged file as a base64-encoded document message.
func (c *EvolutionClient) sendDocument(ctx context.Context, jid string, file datatypes.DownloadedFile) error {
	data, err := os.ReadFile(file.LocalPath)
	if err != nil {
		return fmt.Errorf("read staged file %s: %w", file.LocalPath, err)
	}

	payload := map[string]interface{}{
		"number":    jid,
		"mediatype": "document",
		"fileName":  file.Name,
		"media":     base64.StdEncoding.EncodeToString(data),
	}
	return c.post(ctx, "/message/sendMedia/"+c.instance, payload)
}

// DeliverAnswer sends the answer text, then up to MaxAttachmentsPerTurn
// staged documents with pacing between sends. When more documents remain it
// offers them instead of sending, mirroring the gateway's throttling rules.
//
// A failed document send is logged and skipped; the remaining documents
// still go out.
func (c *EvolutionClient) DeliverAnswer(ctx context.Context, jid, answer string, files []datatypes.DownloadedFile) error {
	if answer != "" {
		if err := c.SendText(ctx, jid, answer); err != nil {
			return fmt.Errorf("send answer text: %w", err)
		}
	}

	toSend := files
	if len(toSend) > MaxAttachmentsPerTurn {
		toSend = toSend[:MaxAttachmentsPerTurn]
	}

	for _, file := range toSend {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("media pacing interrupted: %w", err)
		}
		if err := c.sendDocument(ctx, jid, file); err != nil {
			slog.Warn("Failed to send document, continuing with the rest",
				"jid", jid, "file", file.Name, "error", err)
		}
	}

	if remaining := len(files) - len(toSend); remaining > 0 {
		offer := fmt.Sprintf(moreDocumentsOffer, remaining)
		if err := c.SendText(ctx, jid, offer); err != nil {
			slog.Warn("Failed to send the more-documents offer", "jid", jid, "error", err)
		}
	}
	return nil
}

func (c *EvolutionClient) post(ctx context.Context, route string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+route, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
