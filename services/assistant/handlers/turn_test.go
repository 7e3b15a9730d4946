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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/AleutianAI/concierge/services/assistant/engine"
	"github.com/AleutianAI/concierge/services/assistant/session"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTurnRouter(runner TurnRunner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/turn", HandleTurn(runner))
	return router
}

func postTurn(router *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/v1/turn", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestHandleTurn_Success verifies the synchronous path returns the answer
// and staged files.
func TestHandleTurn_Success(t *testing.T) {
	runner := newMockRunner(&engine.TurnResult{
		Answer: "Tu hotel es el Camino Real.",
		DownloadedFiles: []datatypes.DownloadedFile{
			{Name: "reserva.pdf", LocalPath: "/tmp/reserva.pdf"},
		},
	}, nil)
	router := newTurnRouter(runner)

	w := postTurn(router, datatypes.TurnRequest{SessionID: "sess_1", Question: "¿mi hotel?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sess_1", resp.SessionID)
	assert.Equal(t, "Tu hotel es el Camino Real.", resp.Answer)
	require.Len(t, resp.DownloadedFiles, 1)
	assert.Equal(t, "reserva.pdf", resp.DownloadedFiles[0].Name)
}

// TestHandleTurn_GeneratesSessionID verifies a missing session id is filled
// in and returned.
func TestHandleTurn_GeneratesSessionID(t *testing.T) {
	runner := newMockRunner(&engine.TurnResult{Answer: "ok"}, nil)
	router := newTurnRouter(runner)

	w := postTurn(router, datatypes.TurnRequest{Question: "hola"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
}

// TestHandleTurn_MissingQuestion verifies validation rejects empty questions.
func TestHandleTurn_MissingQuestion(t *testing.T) {
	runner := newMockRunner(&engine.TurnResult{Answer: "ok"}, nil)
	router := newTurnRouter(runner)

	w := postTurn(router, datatypes.TurnRequest{SessionID: "sess_1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, runner.calls)
}

// TestHandleTurn_ErrorMapping verifies lock timeouts and readiness errors map
// to distinct statuses.
func TestHandleTurn_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"busy session", session.ErrLockTimeout, http.StatusTooManyRequests},
		{"engine not ready", engine.ErrNotReady, http.StatusServiceUnavailable},
		{"generic failure", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTurnRouter(newMockRunner(nil, tc.err))
			w := postTurn(router, datatypes.TurnRequest{SessionID: "s", Question: "hola"})
			assert.Equal(t, tc.code, w.Code)
		})
	}
}
