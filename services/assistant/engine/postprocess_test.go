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
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T) *PostProcessor {
	t.Helper()
	return NewPostProcessor(t.TempDir())
}

// docServer serves fake document bytes for any path.
func docServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprintf(w, "fake pdf bytes for %s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestProcess_NoLinks verifies answers without document URLs pass through
// cleaned but otherwise untouched.
func TestProcess_NoLinks(t *testing.T) {
	p := newTestProcessor(t)

	clean, files, err := p.Process(context.Background(), "s1",
		"Tu vuelo sale a las 10:00.  \n\n\n\nBuen viaje.")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, "Tu vuelo sale a las 10:00.\n\nBuen viaje.", clean)
}

// TestProcess_MarkdownLinkRewrite verifies a markdown document link becomes a
// delivery marker and the file is staged.
func TestProcess_MarkdownLinkRewrite(t *testing.T) {
	srv := docServer(t)
	p := newTestProcessor(t)

	answer := fmt.Sprintf("Aquí está tu pase: [Pase de abordar](%s/docs/pass.pdf)", srv.URL)
	clean, files, err := p.Process(context.Background(), "s1", answer)
	require.NoError(t, err)

	assert.Equal(t, "Aquí está tu pase: 📄 Pase de abordar", clean)
	require.Len(t, files, 1)
	assert.Equal(t, "pass.pdf", files[0].Name)
	assert.FileExists(t, files[0].LocalPath)

	data, err := os.ReadFile(files[0].LocalPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fake pdf bytes")
}

// TestProcess_SignedURL verifies query strings match the scan but never leak
// into the staged file name, and percent-encoding is decoded.
func TestProcess_SignedURL(t *testing.T) {
	srv := docServer(t)
	p := newTestProcessor(t)

	answer := fmt.Sprintf("Link: %s/docs/Boarding%%20Pass.pdf?X-Goog-Signature=abc123&Expires=999", srv.URL)
	clean, files, err := p.Process(context.Background(), "s1", answer)
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "Boarding Pass.pdf", files[0].Name)
	assert.NotContains(t, clean, "http", "bare URL should be stripped")
}

// TestProcess_DedupeAndCollision verifies repeated URLs download once and
// distinct URLs with the same base name get disambiguated.
func TestProcess_DedupeAndCollision(t *testing.T) {
	srv := docServer(t)
	p := newTestProcessor(t)

	answer := fmt.Sprintf("%s/a/ticket.pdf y %s/a/ticket.pdf y %s/b/ticket.pdf",
		srv.URL, srv.URL, srv.URL)
	_, files, err := p.Process(context.Background(), "s1", answer)
	require.NoError(t, err)

	require.Len(t, files, 2, "duplicate URL downloads once")
	assert.Equal(t, "ticket.pdf", files[0].Name)
	assert.Equal(t, "ticket_2.pdf", files[1].Name)
}

// TestProcess_FailedDownloadSkipped verifies a 404 skips the file but keeps
// the turn alive and still cleans the answer.
func TestProcess_FailedDownloadSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	p := newTestProcessor(t)

	answer := fmt.Sprintf("Mira [esto](%s/gone.pdf)", srv.URL)
	clean, files, err := p.Process(context.Background(), "s1", answer)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, "Mira 📄 esto", clean)
}

// TestProcess_Idempotent verifies running the processor on its own output
// changes nothing and stages nothing.
func TestProcess_Idempotent(t *testing.T) {
	srv := docServer(t)
	p := newTestProcessor(t)

	answer := fmt.Sprintf("[Reserva](%s/r.pdf)\n\n%s/otro.pdf", srv.URL, srv.URL)
	clean, files, err := p.Process(context.Background(), "s1", answer)
	require.NoError(t, err)
	require.Len(t, files, 2)

	again, moreFiles, err := p.Process(context.Background(), "s1", clean)
	require.NoError(t, err)
	assert.Equal(t, clean, again)
	assert.Empty(t, moreFiles)
}

// TestProcess_NonDocLinkKept verifies markdown links to non-document URLs
// are left alone.
func TestProcess_NonDocLinkKept(t *testing.T) {
	p := newTestProcessor(t)

	answer := "Revisa [el sitio](https://example.com/info) para más detalles."
	clean, files, err := p.Process(context.Background(), "s1", answer)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, answer, clean)
}

// TestDocURLPattern covers the extension and query matching rules.
func TestDocURLPattern(t *testing.T) {
	cases := []struct {
		url   string
		match bool
	}{
		{"https://x.com/a.pdf", true},
		{"https://x.com/a.PDF", true},
		{"https://x.com/a.docx", true},
		{"https://x.com/a.xlsx?sig=abc", true},
		{"http://x.com/a.pptx", true},
		{"https://x.com/a.png", false},
		{"https://x.com/a", false},
		{"ftp://x.com/a.pdf", false},
	}
	for _, tc := range cases {
		got := docURLPattern.FindString(tc.url)
		if tc.match {
			assert.Equal(t, tc.url, got, "should match whole URL: %s", tc.url)
		} else {
			assert.NotEqual(t, tc.url, got, "should not match: %s", tc.url)
		}
	}
}

// TestFileNameFromURL covers fallback behavior for odd URLs.
func TestFileNameFromURL(t *testing.T) {
	assert.Equal(t, "pass.pdf", fileNameFromURL("https://x.com/docs/pass.pdf"))
	assert.Equal(t, "Boarding Pass.pdf", fileNameFromURL("https://x.com/Boarding%20Pass.pdf?sig=1"))
	assert.Equal(t, "document", fileNameFromURL("https://x.com/"))
	assert.Equal(t, "document", fileNameFromURL("://bad"))
}

// TestUniqueName verifies disambiguation keeps the extension.
func TestUniqueName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "a.pdf", uniqueName("a.pdf", used))
	assert.Equal(t, "a_2.pdf", uniqueName("a.pdf", used))
	assert.Equal(t, "a_3.pdf", uniqueName("a.pdf", used))
	assert.True(t, strings.HasSuffix(uniqueName("b.docx", used), ".docx"))
}
