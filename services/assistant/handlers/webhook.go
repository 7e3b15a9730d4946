// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides the gin HTTP handlers for the assistant service.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/concierge/services/assistant/allowlist"
	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/AleutianAI/concierge/services/assistant/engine"
	"github.com/AleutianAI/concierge/services/assistant/observability"
	"github.com/AleutianAI/concierge/services/assistant/transport"
	"github.com/gin-gonic/gin"
)

// TurnRunner is the engine surface the handlers need.
type TurnRunner interface {
	RunTurn(ctx context.Context, sessionID, question string) (*engine.TurnResult, error)
}

// webhookTurnTimeout bounds the asynchronous turn started by a webhook. The
// webhook itself has already been acked by the time this applies.
const webhookTurnTimeout = 5 * time.Minute

// defaultWelcome greets first contact and greeting keywords.
const defaultWelcome = "¡Hola! Soy tu asistente de viaje. Pregúntame sobre tu " +
	"itinerario o pídeme tus documentos (boletos, pases de abordar, reservas)."

// unsupportedTypeReply answers voice notes, stickers, and other non-text
// message kinds.
const unsupportedTypeReply = "Por ahora solo puedo leer mensajes de texto. " +
	"Escríbeme tu pregunta y con gusto te ayudo."

// greetingKeywords short-circuit to the welcome message without a turn.
var greetingKeywords = map[string]bool{
	"hola":   true,
	"start":  true,
	"inicio": true,
}

// WelcomeMessage returns the configured or default welcome text.
func WelcomeMessage() string {
	if msg := os.Getenv("ASSISTANT_WELCOME_MESSAGE"); msg != "" {
		return msg
	}
	return defaultWelcome
}

// HandleWebhook processes Evolution gateway events.
//
// # Description
//
// The gateway expects a fast 200; anything slower and it retries, producing
// duplicate turns. So the handler validates, classifies, acks, and only then
// runs the turn on a background goroutine. The answer and any staged
// documents return to the user out of band through the transport client.
//
// Dispositions (also recorded as metrics):
//
//   - ignored: non-upsert events, own messages, empty text
//   - filtered: sender not on the allow-list (no reply is sent)
//   - unsupported: message kinds without text (canned reply)
//   - greeting: greeting keywords (welcome reply, no turn)
//   - processed: a real question; a turn was started
func HandleWebhook(runner TurnRunner, sender transport.Sender, allow *allowlist.List) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload datatypes.WebhookPayload
		if err := c.BindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
			return
		}

		if !payload.IsMessageUpsert() || payload.Data.Key.FromMe {
			recordWebhookEvent("ignored")
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}

		jid := payload.Data.Key.RemoteJid
		if jid == "" {
			recordWebhookEvent("ignored")
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}

		if !allow.Allowed(jid) {
			slog.Info("Dropping message from sender outside the allow-list", "jid", jid)
			recordWebhookEvent("filtered")
			c.JSON(http.StatusOK, gin.H{"status": "filtered"})
			return
		}

		if !payload.Data.IsTextual() {
			recordWebhookEvent("unsupported")
			c.JSON(http.StatusOK, gin.H{"status": "unsupported"})
			go sendOutOfBand(sender, jid, unsupportedTypeReply)
			return
		}

		text := strings.TrimSpace(payload.Data.Text())
		if text == "" {
			recordWebhookEvent("ignored")
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}

		if greetingKeywords[strings.ToLower(text)] {
			recordWebhookEvent("greeting")
			c.JSON(http.StatusOK, gin.H{"status": "greeting"})
			go sendOutOfBand(sender, jid, WelcomeMessage())
			return
		}

		recordWebhookEvent("processed")
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})

		// Ack first, then run the turn. The request context is dead after
		// the ack, so the turn gets its own bounded context.
		go runWebhookTurn(runner, sender, jid, text)
	}
}

func runWebhookTurn(runner TurnRunner, sender transport.Sender, jid, question string) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTurnTimeout)
	defer cancel()

	result, err := runner.RunTurn(ctx, jid, question)
	if err != nil {
		slog.Error("Webhook turn failed", "jid", jid, "error", err)
		sendOutOfBand(sender, jid, engine.ApologyAnswer)
		return
	}

	deliverCtx, deliverCancel := context.WithTimeout(context.Background(), webhookTurnTimeout)
	defer deliverCancel()
	if err := sender.DeliverAnswer(deliverCtx, jid, result.Answer, result.DownloadedFiles); err != nil {
		slog.Error("Failed to deliver the answer", "jid", jid, "error", err)
	}
}

func sendOutOfBand(sender transport.Sender, jid, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sender.SendText(ctx, jid, text); err != nil {
		slog.Error("Failed to send out-of-band text", "jid", jid, "error", err)
	}
}

func recordWebhookEvent(disposition string) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordWebhookEvent(disposition)
	}
}
