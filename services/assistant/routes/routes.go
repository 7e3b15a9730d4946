// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/AleutianAI/concierge/services/assistant/allowlist"
	"github.com/AleutianAI/concierge/services/assistant/handlers"
	"github.com/AleutianAI/concierge/services/assistant/middleware"
	"github.com/AleutianAI/concierge/services/assistant/session"
	"github.com/AleutianAI/concierge/services/assistant/transport"
	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

func SetupRoutes(router *gin.Engine, client *weaviate.Client, runner handlers.TurnRunner,
	sender transport.Sender, store session.Store, allow *allowlist.List) {

	router.GET("/health", handlers.HealthCheck)

	// The gateway posts here; it is filtered by the allow-list, not the API key.
	router.POST("/webhook/evolution", handlers.HandleWebhook(runner, sender, allow))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.APIKeyAuthFromEnv())
	{
		v1.POST("/turn", handlers.HandleTurn(runner))
		v1.POST("/documents", handlers.IngestKnowledge(client))
		v1.GET("/documents", handlers.ListKnowledgeSources(client))
		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(store))
			sessions.GET("/:sessionId/history", handlers.GetSessionHistory(store))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(store))
		}
	}
}
