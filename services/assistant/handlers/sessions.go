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
	"log/slog"
	"net/http"

	"github.com/AleutianAI/concierge/services/assistant/session"
	"github.com/gin-gonic/gin"
)

// ListSessions returns the administrative view of stored sessions.
func ListSessions(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, err := store.List(c.Request.Context())
		if err != nil {
			slog.Error("Failed to list sessions", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
	}
}

// GetSessionHistory returns the full transcript and download list for one
// session. The session is created if it does not exist, matching the store's
// Get semantics, so callers probing an unknown id get an empty transcript.
func GetSessionHistory(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := session.SanitizeID(c.Param("sessionId"))
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Session id is required"})
			return
		}

		state, err := store.Get(c.Request.Context(), id)
		if err != nil {
			slog.Error("Failed to load session", "sessionId", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

// DeleteSession removes one session. Deleting a missing session succeeds.
func DeleteSession(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := session.SanitizeID(c.Param("sessionId"))
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Session id is required"})
			return
		}

		if err := store.Delete(c.Request.Context(), id); err != nil {
			slog.Error("Failed to delete session", "sessionId", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session"})
			return
		}
		slog.Info("Deleted session", "sessionId", id)
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "sessionId": id})
	}
}
