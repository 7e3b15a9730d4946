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
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/AleutianAI/concierge/services/assistant/allowlist"
	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/AleutianAI/concierge/services/assistant/docstore"
	"github.com/AleutianAI/concierge/services/assistant/engine"
	"github.com/AleutianAI/concierge/services/assistant/observability"
	"github.com/AleutianAI/concierge/services/assistant/retrieval"
	"github.com/AleutianAI/concierge/services/assistant/routes"
	"github.com/AleutianAI/concierge/services/assistant/session"
	"github.com/AleutianAI/concierge/services/assistant/tools"
	"github.com/AleutianAI/concierge/services/assistant/transport"
	"github.com/AleutianAI/concierge/services/llm"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "concierge-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("assistant-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient builds the client from WEAVIATE_SERVICE_URL. Returns nil
// when the URL is missing or invalid, which drops the service into
// lightweight mode (chat only, no retrieval and no document lookup).
func newWeaviateClient() *weaviate.Client {
	weaviateURL := os.Getenv("WEAVIATE_SERVICE_URL")
	// Sanitize: Trim quotes and whitespace just in case Podman passes them literally
	weaviateURL = strings.Trim(weaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running in lightweight mode (chat only).")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running in lightweight mode.",
			"url", weaviateURL, "error", err)
		return nil
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}
	client, err := weaviate.NewClient(clientConf)
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	datatypes.EnsureWeaviateSchema(client)
	return client
}

// buildRegistry wires the tool registry from whatever backends are
// configured. current_datetime is always available; the retrieval and
// document tools appear only when their backends do.
func buildRegistry(weaviateClient *weaviate.Client, bucket *docstore.GCSBucket) *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(tools.NewCurrentDatetime(os.Getenv("ASSISTANT_TIMEZONE")))

	if weaviateClient == nil {
		slog.Warn("No Weaviate client, retrieval and document tools disabled")
		return registry
	}

	searcher := retrieval.NewWeaviatePassageSearcher(weaviateClient, retrieval.NewDatatypesEmbedder())
	registry.Register(tools.NewSearchKnowledgeBase(searcher, 0))

	if bucket != nil {
		registry.Register(tools.NewFindDocuments(docstore.NewWeaviateResolver(weaviateClient, bucket)))
	} else {
		slog.Warn("No GCS bucket configured, document tool disabled")
	}
	return registry
}

func main() {
	port := os.Getenv("ASSISTANT_PORT")
	if port == "" {
		port = "12220"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	weaviateClient := newWeaviateClient()

	var bucket *docstore.GCSBucket
	if bucketName := os.Getenv("GCS_BUCKET_NAME"); bucketName != "" {
		storageClient, err := storage.NewClient(context.Background())
		if err != nil {
			log.Fatalf("Failed to create GCS client: %v", err)
		}
		defer storageClient.Close()
		bucket = docstore.NewGCSBucket(storageClient, bucketName)
	} else {
		slog.Warn("GCS_BUCKET_NAME not set, document delivery disabled")
	}

	log.Println("Configuring the LLM Client")
	model, err := llm.NewOpenAIClient()
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	sessionPath := os.Getenv("SESSION_DB_PATH")
	if sessionPath == "" {
		sessionPath = "/data/sessions"
	}
	store, err := session.Open(session.DefaultConfig(sessionPath))
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer store.Close()

	registry := buildRegistry(weaviateClient, bucket)
	post := engine.NewPostProcessor(os.Getenv("DOWNLOAD_DIR"))
	turnEngine := engine.NewEngine(model, registry, store, post)

	var sender transport.Sender
	if evo, err := transport.NewEvolutionClientFromEnv(); err != nil {
		slog.Warn("Gateway not configured, webhook replies disabled", "error", err)
		sender = transport.NoopSender{}
	} else {
		sender = evo
	}

	var allow *allowlist.List
	if allowPath := os.Getenv("ALLOWLIST_PATH"); allowPath != "" {
		allow, err = allowlist.Load(allowPath)
		if err != nil {
			log.Fatalf("Failed to load the sender allow-list: %v", err)
		}
		defer allow.Close()
	} else {
		slog.Warn("ALLOWLIST_PATH not set, accepting every sender")
		allow = allowlist.Open()
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("assistant-service"))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.SetupRoutes(router, weaviateClient, turnEngine, sender, store, allow)
	log.Println("started up the container")

	log.Println("Starting the assistant server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
