// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the assistant.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "concierge"

// Subsystem for assistant turn metrics
const assistantSubsystem = "assistant"

// AssistantMetrics holds the Prometheus metrics for turn processing.
//
// # Fields
//
//   - TurnsTotal: Counter of completed turns by status
//   - TurnDurationSeconds: Histogram of end-to-end turn latency
//   - ToolCallsTotal: Counter of tool executions by tool name and status
//   - DownloadsTotal: Counter of post-processor downloads by status
//   - WebhookEventsTotal: Counter of inbound webhook events by disposition
type AssistantMetrics struct {
	// TurnsTotal counts turns. Labels: status (success, error, lock_timeout)
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures full turn latency. Labels: status
	TurnDurationSeconds *prometheus.HistogramVec

	// ToolCallsTotal counts tool executions. Labels: tool, status
	ToolCallsTotal *prometheus.CounterVec

	// DownloadsTotal counts document downloads. Labels: status
	DownloadsTotal *prometheus.CounterVec

	// WebhookEventsTotal counts inbound gateway events.
	// Labels: disposition (processed, ignored, filtered, unsupported, greeting)
	WebhookEventsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, initialized by InitMetrics().
// Code paths that record metrics treat a nil DefaultMetrics as "metrics
// disabled", which keeps unit tests free of registry setup.
var DefaultMetrics *AssistantMetrics

// InitMetrics creates and registers all metrics. Call once at startup;
// calling twice panics on duplicate registration.
func InitMetrics() *AssistantMetrics {
	DefaultMetrics = &AssistantMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "turns_total",
				Help:      "Total completed turns by status",
			},
			[]string{"status"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end turn latency in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		ToolCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "tool_calls_total",
				Help:      "Total tool executions by tool name and status",
			},
			[]string{"tool", "status"},
		),

		DownloadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "downloads_total",
				Help:      "Total post-processor document downloads by status",
			},
			[]string{"status"},
		),

		WebhookEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "webhook_events_total",
				Help:      "Total inbound webhook events by disposition",
			},
			[]string{"disposition"},
		),
	}

	return DefaultMetrics
}

// RecordTurn records one completed turn and its duration.
func (m *AssistantMetrics) RecordTurn(status string, seconds float64) {
	m.TurnsTotal.WithLabelValues(status).Inc()
	m.TurnDurationSeconds.WithLabelValues(status).Observe(seconds)
}

// RecordToolCall records one tool execution.
func (m *AssistantMetrics) RecordToolCall(tool, status string) {
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordDownload records one post-processor download attempt.
func (m *AssistantMetrics) RecordDownload(status string) {
	m.DownloadsTotal.WithLabelValues(status).Inc()
}

// RecordWebhookEvent records the disposition of one inbound gateway event.
func (m *AssistantMetrics) RecordWebhookEvent(disposition string) {
	m.WebhookEventsTotal.WithLabelValues(disposition).Inc()
}
