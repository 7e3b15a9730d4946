// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/AleutianAI/concierge/services/assistant/observability"
	"github.com/google/uuid"
)

// docURLPattern matches http(s) URLs that end in a document extension,
// optionally followed by a query string (signed URLs carry one).
var docURLPattern = regexp.MustCompile(
	`https?://[^\s<>()"']+?\.(?i:pdf|docx?|xlsx?|pptx?)(?:\?[^\s<>"')]*)?`)

// mdLinkPattern matches markdown links so labeled document links can be
// rewritten to a delivery marker instead of being stripped outright.
var mdLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\(\s*(https?://[^)\s]+)\s*\)`)

// blankRunPattern collapses three or more consecutive newlines left behind
// after URL removal.
var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// trailingSpacePattern trims spaces the URL removal leaves at line ends.
var trailingSpacePattern = regexp.MustCompile(`[ \t]+\n`)

// deliveryMarker prefixes the label of every document staged for delivery.
const deliveryMarker = "📄 "

// PostProcessor turns document links inside a model answer into staged local
// files plus user-friendly delivery markers.
//
// # Description
//
// The model is instructed to reference deliverable documents as markdown
// links using the signed URLs the find_documents tool returned. After the
// loop finishes, the post-processor:
//
//  1. Scans the answer for document URLs, deduplicated in first-appearance
//     order.
//  2. Downloads each into a per-run directory. Failures are logged and the
//     file is skipped; the turn never fails because a download did.
//  3. Rewrites markdown document links to "📄 <label>", strips bare document
//     URLs, collapses the blank runs left behind, and trims the result.
//
// Processing is idempotent: the output contains no document URLs, so running
// it again returns the same text and no files.
type PostProcessor struct {
	// DownloadDir is the base directory for staged files. Each run gets its
	// own subdirectory beneath it.
	DownloadDir string

	// FetchTimeout bounds each individual download.
	FetchTimeout time.Duration

	client *http.Client
}

// NewPostProcessor creates a post-processor staging files under baseDir.
// An empty baseDir falls back to a directory under the system temp dir.
func NewPostProcessor(baseDir string) *PostProcessor {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "concierge-downloads")
		slog.Info("DOWNLOAD_DIR not set, staging files under the temp dir", "dir", baseDir)
	}
	return &PostProcessor{
		DownloadDir:  baseDir,
		FetchTimeout: 30 * time.Second,
		client:       &http.Client{},
	}
}

// Process scans, downloads and rewrites one answer.
//
// The returned string is the cleaned answer; the slice lists successfully
// staged files in the order their URLs first appeared in the answer.
func (p *PostProcessor) Process(ctx context.Context, sessionID, answer string) (string, []datatypes.DownloadedFile, error) {
	urls := dedupeInOrder(docURLPattern.FindAllString(answer, -1))
	if len(urls) == 0 {
		return cleanupText(answer), nil, nil
	}

	runDir := filepath.Join(p.DownloadDir, uuid.NewString())
	if err := os.MkdirAll(runDir, 0750); err != nil {
		return "", nil, fmt.Errorf("create download directory %s: %w", runDir, err)
	}

	var files []datatypes.DownloadedFile
	usedNames := make(map[string]bool)
	for _, rawURL := range urls {
		name := fileNameFromURL(rawURL)
		name = uniqueName(name, usedNames)

		localPath := filepath.Join(runDir, name)
		if err := p.fetch(ctx, rawURL, localPath); err != nil {
			slog.Warn("Skipping document that failed to download",
				"sessionId", sessionID, "name", name, "error", err)
			recordDownload("error")
			continue
		}
		recordDownload("success")
		files = append(files, datatypes.DownloadedFile{
			Name:      name,
			LocalPath: localPath,
			SourceURL: rawURL,
		})
	}

	clean := rewriteAnswer(answer)
	slog.Info("Post-processed answer",
		"sessionId", sessionID, "urls", len(urls), "downloaded", len(files))
	return clean, files, nil
}

// fetch downloads one URL to localPath with the per-fetch timeout.
func (p *PostProcessor) fetch(ctx context.Context, rawURL, localPath string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, p.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write local file: %w", err)
	}
	return nil
}

// rewriteAnswer replaces markdown document links with delivery markers,
// removes bare document URLs, and cleans up the whitespace left behind.
func rewriteAnswer(answer string) string {
	answer = mdLinkPattern.ReplaceAllStringFunc(answer, func(link string) string {
		groups := mdLinkPattern.FindStringSubmatch(link)
		label, target := groups[1], groups[2]
		if docURLPattern.FindString(target) == target {
			return deliveryMarker + label
		}
		return link
	})

	answer = docURLPattern.ReplaceAllString(answer, "")
	return cleanupText(answer)
}

func cleanupText(answer string) string {
	answer = trailingSpacePattern.ReplaceAllString(answer, "\n")
	answer = blankRunPattern.ReplaceAllString(answer, "\n\n")
	return strings.TrimSpace(answer)
}

// fileNameFromURL derives a human-readable file name from the percent-decoded
// last path segment of the URL. Query strings never leak into the name.
func fileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "document"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return filepath.Base(name)
}

// uniqueName disambiguates repeated names within one run directory.
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for i := 2; used[candidate]; i++ {
		ext := filepath.Ext(name)
		candidate = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), i, ext)
	}
	used[candidate] = true
	return candidate
}

func dedupeInOrder(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func recordDownload(status string) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordDownload(status)
	}
}
