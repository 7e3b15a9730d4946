// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// Uploader pushes local documents to the bucket and records their metadata
// so the resolver can find them later.
type Uploader struct {
	bucket *GCSBucket
	client *weaviate.Client
}

// NewUploader creates an uploader. The Weaviate client may be nil, in which
// case only the object upload happens and no metadata is registered.
func NewUploader(bucket *GCSBucket, client *weaviate.Client) *Uploader {
	return &Uploader{bucket: bucket, client: client}
}

// UploadFile copies a local file into the bucket under the given object path.
func (u *Uploader) UploadFile(ctx context.Context, localPath, objectPath string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer localFile.Close()

	obj := u.bucket.storageClient.Bucket(u.bucket.BucketName).Object(objectPath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentTypeFor(localPath)
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, localFile); err != nil {
		return fmt.Errorf("failed to copy local file %s to GCS object %s: %w", localPath, objectPath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", objectPath, err)
	}
	slog.Info("Uploaded document to bucket",
		"local", localPath, "bucket", u.bucket.BucketName, "object", objectPath)
	return nil
}

// Register records document metadata in the TravelDocument class.
func (u *Uploader) Register(ctx context.Context, props datatypes.TravelDocumentProperties) error {
	if u.client == nil {
		slog.Warn("No Weaviate client configured, skipping metadata registration",
			"file", props.FileName)
		return nil
	}
	if props.UploadedAt == 0 {
		props.UploadedAt = time.Now().UnixMilli()
	}

	_, err := u.client.Data().Creator().
		WithClassName("TravelDocument").
		WithProperties(props.ToMap()).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to register document metadata for %s: %w", props.FileName, err)
	}
	slog.Info("Registered document metadata", "file", props.FileName, "category", props.Category)
	return nil
}

// UploadAndRegister uploads a file and registers its metadata in one call.
// The object path defaults to the base file name.
func (u *Uploader) UploadAndRegister(ctx context.Context, localPath, category, description string) error {
	objectPath := filepath.Base(localPath)
	if err := u.UploadFile(ctx, localPath, objectPath); err != nil {
		return err
	}
	return u.Register(ctx, datatypes.TravelDocumentProperties{
		FileName:    objectPath,
		Category:    category,
		Description: description,
		ObjectPath:  objectPath,
	})
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".ppt":
		return "application/vnd.ms-powerpoint"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	default:
		return "application/octet-stream"
	}
}
