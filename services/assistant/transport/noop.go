// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/concierge/services/assistant/datatypes"
)

// NoopSender logs instead of sending. Used when the service runs without a
// configured gateway, keeping the synchronous /v1/turn path usable for local
// development.
type NoopSender struct{}

func (NoopSender) SendText(_ context.Context, jid, text string) error {
	slog.Info("Gateway disabled, dropping outbound text", "jid", jid, "chars", len(text))
	return nil
}

func (NoopSender) DeliverAnswer(_ context.Context, jid, answer string, files []datatypes.DownloadedFile) error {
	slog.Info("Gateway disabled, dropping outbound answer",
		"jid", jid, "chars", len(answer), "files", len(files))
	return nil
}
