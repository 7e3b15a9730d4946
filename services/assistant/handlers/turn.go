// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/AleutianAI/concierge/services/assistant/engine"
	"github.com/AleutianAI/concierge/services/assistant/session"
	"github.com/gin-gonic/gin"
)

// HandleTurn runs one turn synchronously.
//
// This is the direct API used by the CLI chat console and by integration
// tests. Unlike the webhook path there is no ack-then-async split; the caller
// waits for the answer.
func HandleTurn(runner TurnRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.TurnRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		started := time.Now()
		result, err := runner.RunTurn(c.Request.Context(), req.SessionID, req.Question)
		if err != nil {
			slog.Error("Turn failed", "sessionId", req.SessionID, "error", err)
			switch {
			case errors.Is(err, session.ErrLockTimeout):
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "Session is busy, try again shortly"})
			case errors.Is(err, engine.ErrNotReady):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Assistant is not ready"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process the question"})
			}
			return
		}

		c.JSON(http.StatusOK, datatypes.TurnResponse{
			SessionID:        req.SessionID,
			Answer:           result.Answer,
			DownloadedFiles:  result.DownloadedFiles,
			ProcessingTimeMs: time.Since(started).Milliseconds(),
		})
	}
}
