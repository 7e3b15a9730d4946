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
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/concierge/services/assistant/allowlist"
	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/AleutianAI/concierge/services/assistant/engine"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRunner scripts the engine side of the webhook flow.
type mockRunner struct {
	result *engine.TurnResult
	err    error

	mu        sync.Mutex
	questions []string
	calls     chan struct{}
}

func newMockRunner(result *engine.TurnResult, err error) *mockRunner {
	return &mockRunner{result: result, err: err, calls: make(chan struct{}, 8)}
}

func (m *mockRunner) RunTurn(_ context.Context, _, question string) (*engine.TurnResult, error) {
	m.mu.Lock()
	m.questions = append(m.questions, question)
	m.mu.Unlock()
	m.calls <- struct{}{}
	return m.result, m.err
}

// mockSender records outbound deliveries.
type mockSender struct {
	mu        sync.Mutex
	texts     []string
	answers   []string
	delivered chan struct{}
}

func newMockSender() *mockSender {
	return &mockSender{delivered: make(chan struct{}, 8)}
}

func (m *mockSender) SendText(_ context.Context, _, text string) error {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	m.delivered <- struct{}{}
	return nil
}

func (m *mockSender) DeliverAnswer(_ context.Context, _, answer string, _ []datatypes.DownloadedFile) error {
	m.mu.Lock()
	m.answers = append(m.answers, answer)
	m.mu.Unlock()
	m.delivered <- struct{}{}
	return nil
}

func writeAllowlist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowlist.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func waitSignal(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the async path")
	}
}

func postWebhook(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/evolution",
		bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func webhookBody(jid, messageType, text string, fromMe bool) string {
	return fmt.Sprintf(`{
		"event": "messages.upsert",
		"instance": "travel",
		"data": {
			"key": {"remoteJid": "%s", "fromMe": %t, "id": "MSG1"},
			"messageType": "%s",
			"message": {"conversation": "%s"}
		}
	}`, jid, fromMe, messageType, text)
}

func newWebhookRouter(runner TurnRunner, sender *mockSender, allow *allowlist.List) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook/evolution", HandleWebhook(runner, sender, allow))
	return router
}

/// TestWebhook_QuestionAckedThenAnswered verifies the ack-then-async flow:
// the HTTP response returns immediately and the answer goes out through the
// sender afterwards.
func TestWebhook_QuestionAckedThenAnswered(t *testing.T) {
	runner := newMockRunner(&engine.TurnResult{Answer: "Tu vuelo sale a las 10:00."}, nil)
	sender := newMockSender()
	router := newWebhookRouter(runner, sender, allowlist.Open())

	w := postWebhook(t, router, webhookBody("5215512345678@s.whatsapp.net",
		"conversation", "¿a qué hora es mi vuelo?", false))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "accepted")

	waitSignal(t, runner.calls)
	waitSignal(t, sender.delivered)

	runner.mu.Lock()
	require.Len(t, runner.questions, 1)
	assert.Equal(t, "¿a qué hora es mi vuelo?", runner.questions[0])
	runner.mu.Unlock()

	sender.mu.Lock()
	require.Len(t, sender.answers, 1)
	assert.Equal(t, "Tu vuelo sale a las 10:00.", sender.answers[0])
	sender.mu.Unlock()
}

// TestWebhook_TurnErrorSendsApology verifies a failed turn sends the Spanish
// apology instead of silence.
func TestWebhook_TurnErrorSendsApology(t *testing.T) {
	runner := newMockRunner(nil, errors.New("model down"))
	sender := newMockSender()
	router := newWebhookRouter(runner, sender, allowlist.Open())

	w := postWebhook(t, router, webhookBody("jid@s.whatsapp.net",
		"conversation", "hola mundo pregunta", false))
	assert.Equal(t, http.StatusOK, w.Code)

	waitSignal(t, runner.calls)
	waitSignal(t, sender.delivered)

	sender.mu.Lock()
	require.Len(t, sender.texts, 1)
	assert.Equal(t, engine.ApologyAnswer, sender.texts[0])
	sender.mu.Unlock()
}

// TestWebhook_OwnMessageIgnored verifies fromMe messages never start a turn.
func TestWebhook_OwnMessageIgnored(t *testing.T) {
	runner := newMockRunner(&engine.TurnResult{Answer: "x"}, nil)
	sender := newMockSender()
	router := newWebhookRouter(runner, sender, allowlist.Open())

	w := postWebhook(t, router, webhookBody("jid@s.whatsapp.net",
		"conversation", "respuesta propia", true))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Empty(t, runner.calls, "no turn should start")
}

// TestWebhook_NonUpsertIgnored verifies other gateway events are acked and
// dropped.
func TestWebhook_NonUpsertIgnored(t *testing.T) {
	runner := newMockRunner(nil, nil)
	router := newWebhookRouter(runner, newMockSender(), allowlist.Open())

	w := postWebhook(t, router, `{"event":"presence.update","data":{}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Empty(t, runner.calls)
}

// TestWebhook_GreetingSkipsTurn verifies greeting keywords get the welcome
// message without engaging the engine.
func TestWebhook_GreetingSkipsTurn(t *testing.T) {
	runner := newMockRunner(nil, nil)
	sender := newMockSender()
	router := newWebhookRouter(runner, sender, allowlist.Open())

	w := postWebhook(t, router, webhookBody("jid@s.whatsapp.net",
		"conversation", "Hola", false))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "greeting")

	waitSignal(t, sender.delivered)
	assert.Empty(t, runner.calls)

	sender.mu.Lock()
	require.Len(t, sender.texts, 1)
	assert.Equal(t, WelcomeMessage(), sender.texts[0])
	sender.mu.Unlock()
}

// TestWebhook_UnsupportedTypeGetsCannedReply verifies voice notes get the
// text-only reply and no turn.
func TestWebhook_UnsupportedTypeGetsCannedReply(t *testing.T) {
	runner := newMockRunner(nil, nil)
	sender := newMockSender()
	router := newWebhookRouter(runner, sender, allowlist.Open())

	body := `{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "jid@s.whatsapp.net", "fromMe": false},
			"messageType": "audioMessage",
			"message": {}
		}
	}`
	w := postWebhook(t, router, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported")

	waitSignal(t, sender.delivered)
	assert.Empty(t, runner.calls)

	sender.mu.Lock()
	assert.Equal(t, unsupportedTypeReply, sender.texts[0])
	sender.mu.Unlock()
}

// TestWebhook_CaptionlessImageGetsCannedReply verifies an image without a
// caption is answered like any other non-text message, not dropped.
func TestWebhook_CaptionlessImageGetsCannedReply(t *testing.T) {
	runner := newMockRunner(nil, nil)
	sender := newMockSender()
	router := newWebhookRouter(runner, sender, allowlist.Open())

	body := `{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "jid@s.whatsapp.net", "fromMe": false},
			"messageType": "imageMessage",
			"message": {"imageMessage": {"caption": ""}}
		}
	}`
	w := postWebhook(t, router, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported")

	waitSignal(t, sender.delivered)
	assert.Empty(t, runner.calls)

	sender.mu.Lock()
	assert.Equal(t, unsupportedTypeReply, sender.texts[0])
	sender.mu.Unlock()
}

// TestWebhook_FilteredSenderGetsNoReply verifies off-list senders are
// silently dropped.
func TestWebhook_FilteredSenderGetsNoReply(t *testing.T) {
	allowFile := writeAllowlist(t, `["5210000000000"]`)
	allow, err := allowlist.Load(allowFile)
	require.NoError(t, err)
	defer allow.Close()

	runner := newMockRunner(nil, nil)
	sender := newMockSender()
	router := newWebhookRouter(runner, sender, allow)

	w := postWebhook(t, router, webhookBody("5215512345678@s.whatsapp.net",
		"conversation", "hola pregunta", false))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "filtered")
	assert.Empty(t, runner.calls)
	assert.Empty(t, sender.delivered, "filtered senders get no reply at all")
}

// TestWebhook_BadPayloadRejected verifies malformed JSON is a 400.
func TestWebhook_BadPayloadRejected(t *testing.T) {
	router := newWebhookRouter(newMockRunner(nil, nil), newMockSender(), allowlist.Open())
	w := postWebhook(t, router, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
