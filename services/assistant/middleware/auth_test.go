// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newAuthRouter(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(APIKeyAuth(key))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func getWithKey(router *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestAPIKeyAuth_OpenWhenUnset verifies an empty key disables the check.
func TestAPIKeyAuth_OpenWhenUnset(t *testing.T) {
	router := newAuthRouter("")
	assert.Equal(t, http.StatusOK, getWithKey(router, "").Code)
	assert.Equal(t, http.StatusOK, getWithKey(router, "whatever").Code)
}

// TestAPIKeyAuth_EnforcesKey verifies the header must match exactly.
func TestAPIKeyAuth_EnforcesKey(t *testing.T) {
	router := newAuthRouter("secret")
	assert.Equal(t, http.StatusOK, getWithKey(router, "secret").Code)
	assert.Equal(t, http.StatusUnauthorized, getWithKey(router, "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, getWithKey(router, "").Code)
}
