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
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/AleutianAI/concierge/cmd/concierge/config"
	"github.com/AleutianAI/concierge/services/assistant/docstore"
	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// runUploadCommand uploads one deliverable document to the bucket and
// registers its metadata so the assistant's lookup tool can find it.
func runUploadCommand(cmd *cobra.Command, args []string) {
	localPath := args[0]
	if _, err := os.Stat(localPath); err != nil {
		log.Fatalf("Cannot read %s: %v", localPath, err)
	}
	if docCategory == "" {
		log.Fatalf("--category is required (e.g. 'boarding pass', 'hotel reservation')")
	}

	bucketName := config.Global.Storage.Bucket
	if env := os.Getenv("GCS_BUCKET_NAME"); env != "" {
		bucketName = env
	}
	if bucketName == "" {
		log.Fatalf("No bucket configured. Set storage.bucket in the config or GCS_BUCKET_NAME.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatalf("Failed to create GCS client: %v", err)
	}
	defer storageClient.Close()

	uploader := docstore.NewUploader(
		docstore.NewGCSBucket(storageClient, bucketName),
		newUploadWeaviateClient())

	fmt.Printf("Uploading %s (category: %s)\n", localPath, docCategory)
	if err := uploader.UploadAndRegister(ctx, localPath, docCategory, docDesc); err != nil {
		log.Fatalf("Upload failed: %v", err)
	}
	fmt.Println("Done. The assistant can now find and deliver this document.")
}

// newUploadWeaviateClient builds a client from WEAVIATE_SERVICE_URL, or nil
// when it is unset. Without it the bytes still land in the bucket but the
// metadata registration is skipped.
func newUploadWeaviateClient() *weaviate.Client {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" {
		fmt.Println("WEAVIATE_SERVICE_URL not set, skipping metadata registration")
		return nil
	}
	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		fmt.Printf("WEAVIATE_SERVICE_URL is invalid (%s), skipping metadata registration\n", weaviateURL)
		return nil
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		fmt.Printf("Failed to create Weaviate client: %v\n", err)
		return nil
	}
	return client
}
