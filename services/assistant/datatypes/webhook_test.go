// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWebhookPayload_Decode verifies the gateway's actual payload shape
// decodes into the expected fields.
func TestWebhookPayload_Decode(t *testing.T) {
	raw := `{
		"event": "messages.upsert",
		"instance": "travel",
		"data": {
			"key": {"remoteJid": "5215512345678@s.whatsapp.net", "fromMe": false, "id": "ABC"},
			"pushName": "Ana",
			"messageType": "conversation",
			"message": {"conversation": "¿a qué hora es mi vuelo?"}
		}
	}`

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	assert.True(t, payload.IsMessageUpsert())
	assert.False(t, payload.Data.Key.FromMe)
	assert.Equal(t, "5215512345678@s.whatsapp.net", payload.Data.Key.RemoteJid)
	assert.Equal(t, "¿a qué hora es mi vuelo?", payload.Data.Text())
}

// TestWebhookData_TextPerType covers the per-type text extraction rules.
func TestWebhookData_TextPerType(t *testing.T) {
	cases := []struct {
		name string
		data WebhookData
		want string
	}{
		{
			name: "conversation",
			data: WebhookData{
				MessageType: MessageTypeConversation,
				Message:     &WebhookMessage{Conversation: "hola"},
			},
			want: "hola",
		},
		{
			name: "extended text",
			data: WebhookData{
				MessageType: MessageTypeExtendedText,
				Message: &WebhookMessage{
					ExtendedTextMessage: &ExtendedTextMessage{Text: "¿mi hotel?"},
				},
			},
			want: "¿mi hotel?",
		},
		{
			name: "image caption",
			data: WebhookData{
				MessageType: MessageTypeImage,
				Message: &WebhookMessage{
					ImageMessage: &ImageMessage{Caption: "¿qué es esto?"},
				},
			},
			want: "¿qué es esto?",
		},
		{
			name: "audio has no text",
			data: WebhookData{
				MessageType: MessageTypeAudio,
				Message:     &WebhookMessage{},
			},
			want: "",
		},
		{
			name: "nil message body",
			data: WebhookData{MessageType: MessageTypeConversation},
			want: "",
		},
		{
			name: "extended type with missing body",
			data: WebhookData{
				MessageType: MessageTypeExtendedText,
				Message:     &WebhookMessage{},
			},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.data.Text())
		})
	}
}

// TestWebhookData_IsTextual verifies the textual/non-textual split, including
// the caption rule for images.
func TestWebhookData_IsTextual(t *testing.T) {
	assert.True(t, (&WebhookData{MessageType: MessageTypeConversation}).IsTextual())
	assert.True(t, (&WebhookData{MessageType: MessageTypeExtendedText}).IsTextual())
	assert.True(t, (&WebhookData{
		MessageType: MessageTypeImage,
		Message: &WebhookMessage{
			ImageMessage: &ImageMessage{Caption: "¿qué es esto?"},
		},
	}).IsTextual())

	assert.False(t, (&WebhookData{MessageType: MessageTypeImage}).IsTextual(),
		"image without a body carries no text")
	assert.False(t, (&WebhookData{
		MessageType: MessageTypeImage,
		Message: &WebhookMessage{
			ImageMessage: &ImageMessage{Caption: "  "},
		},
	}).IsTextual(), "blank caption is the same as no caption")
	assert.False(t, (&WebhookData{MessageType: MessageTypeAudio}).IsTextual())
	assert.False(t, (&WebhookData{MessageType: MessageTypeDocument}).IsTextual())
	assert.False(t, (&WebhookData{MessageType: "stickerMessage"}).IsTextual())
}

// TestNonUpsertEventIgnorable verifies other gateway events are detectable.
func TestNonUpsertEventIgnorable(t *testing.T) {
	payload := WebhookPayload{Event: "messages.update"}
	assert.False(t, payload.IsMessageUpsert())
}
