// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the assistant service.
//
// # Authentication Flow
//
// Admin and ingestion routes are protected by a shared API key carried in
// the X-API-Key header. The webhook route is NOT behind this middleware;
// the gateway authenticates itself with its own apikey header and inbound
// senders are filtered by the allow-list instead.
//
// # Local Behavior
//
// When ASSISTANT_API_KEY is unset the middleware is open and every request
// passes. This keeps the CLI usable on a workstation without any secret
// distribution.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth creates a Gin middleware that checks the X-API-Key header
// against the given key. An empty key disables the check.
func APIKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		presented := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}
		c.Next()
	}
}

// APIKeyAuthFromEnv builds APIKeyAuth from the ASSISTANT_API_KEY variable.
func APIKeyAuthFromEnv() gin.HandlerFunc {
	return APIKeyAuth(os.Getenv("ASSISTANT_API_KEY"))
}
