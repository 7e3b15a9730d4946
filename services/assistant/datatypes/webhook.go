// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Evolution API webhook payload types.
//
// The messaging gateway posts one event per inbound WhatsApp message. Only
// "messages.upsert" events carry user messages; everything else (delivery
// receipts, presence updates) is ignored by the webhook handler.
package datatypes

import "strings"

// Message type values the gateway reports for inbound messages.
const (
	MessageTypeConversation = "conversation"
	MessageTypeExtendedText = "extendedTextMessage"
	MessageTypeImage        = "imageMessage"
	MessageTypeAudio        = "audioMessage"
	MessageTypeDocument     = "documentMessage"
)

// EventMessagesUpsert is the only webhook event that carries a user message.
const EventMessagesUpsert = "messages.upsert"

// WebhookPayload is the envelope the Evolution gateway posts to the webhook.
type WebhookPayload struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance"`
	Data     WebhookData `json:"data"`
}

// WebhookData carries one inbound message.
type WebhookData struct {
	Key         MessageKey      `json:"key"`
	PushName    string          `json:"pushName"`
	MessageType string          `json:"messageType"`
	Message     *WebhookMessage `json:"message"`
}

// MessageKey identifies the sender and direction of a message.
// FromMe marks messages the bot itself sent; those must never re-enter the
// pipeline or the bot would answer its own replies.
type MessageKey struct {
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// WebhookMessage holds the message body variants. Exactly one of the fields
// is populated depending on MessageType.
type WebhookMessage struct {
	Conversation        string               `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedTextMessage `json:"extendedTextMessage,omitempty"`
	ImageMessage        *ImageMessage        `json:"imageMessage,omitempty"`
}

// ExtendedTextMessage is the body of a quoted or link-preview text message.
type ExtendedTextMessage struct {
	Text string `json:"text"`
}

// ImageMessage carries an image; only the caption is usable as question text.
type ImageMessage struct {
	Caption string `json:"caption"`
}

// IsMessageUpsert reports whether this event carries an inbound message.
func (p *WebhookPayload) IsMessageUpsert() bool {
	return p.Event == EventMessagesUpsert
}

// Text extracts the user-visible text for the message, following the
// gateway's per-type layout: plain conversation text, extended text, or an
// image caption. Returns "" when the message carries no usable text.
func (d *WebhookData) Text() string {
	if d.Message == nil {
		return ""
	}
	switch d.MessageType {
	case MessageTypeConversation:
		return d.Message.Conversation
	case MessageTypeExtendedText:
		if d.Message.ExtendedTextMessage != nil {
			return d.Message.ExtendedTextMessage.Text
		}
	case MessageTypeImage:
		if d.Message.ImageMessage != nil {
			return d.Message.ImageMessage.Caption
		}
	}
	return ""
}

// IsTextual reports whether the message carries usable question text. An
// image counts only when it has a caption; a caption-less image is handled
// like audio or stickers.
func (d *WebhookData) IsTextual() bool {
	switch d.MessageType {
	case MessageTypeConversation, MessageTypeExtendedText:
		return true
	case MessageTypeImage:
		return d.Message != nil && d.Message.ImageMessage != nil &&
			strings.TrimSpace(d.Message.ImageMessage.Caption) != ""
	default:
		return false
	}
}
