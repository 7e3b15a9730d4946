// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/AleutianAI/concierge/cmd/concierge/config"
	"github.com/AleutianAI/concierge/pkg/logging"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	sessionID   string
	docCategory string
	docDesc     string

	rootCmd = &cobra.Command{
		Use:   "concierge",
		Short: "A cli to manage the travel concierge assistant",
		Long: `Concierge manages the WhatsApp travel assistant: chat with it
				directly, ingest knowledge, and upload deliverable documents.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.New(logging.Config{
				Level:   logging.ParseLevel(os.Getenv("CONCIERGE_LOG_LEVEL")),
				LogDir:  "~/.concierge/logs",
				Service: "cli",
			})
			slog.SetDefault(logger.Slog())

			if err := config.Load(); err != nil {
				log.Fatalf("Failed to load configuration: %v", err)
			}
		},
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Starts an interactive chat session against the assistant",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks the assistant a single question",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_chat.go
	}

	// --- Knowledge base ---
	ingestCmd = &cobra.Command{
		Use:     "ingest [file or directory path]",
		Short:   "Ingest itinerary and FAQ files into the knowledge base",
		Aliases: []string{"i"},
		Args:    cobra.MinimumNArgs(1),
		Run:     runIngestCommand, // Defined in cmd_ingest.go
	}
	listDocsCmd = &cobra.Command{
		Use:   "list",
		Short: "List the sources already in the knowledge base",
		Run:   runListCommand, // Defined in cmd_ingest.go
	}

	// --- Deliverable documents ---
	uploadCmd = &cobra.Command{
		Use:   "upload [file path]",
		Short: "Upload a deliverable document (ticket, boarding pass) to the bucket",
		Args:  cobra.ExactArgs(1),
		Run:   runUploadCommand, // Defined in cmd_upload.go
	}
)

func init() {
	chatCmd.Flags().StringVar(&sessionID, "resume", "", "Resume an existing session id")
	askCmd.Flags().StringVar(&sessionID, "session", "", "Session id to ask under")
	uploadCmd.Flags().StringVar(&docCategory, "category", "", "Document category, e.g. 'boarding pass'")
	uploadCmd.Flags().StringVar(&docDesc, "description", "", "Free-text description used for lookup")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(listDocsCmd)
	rootCmd.AddCommand(uploadCmd)
}
