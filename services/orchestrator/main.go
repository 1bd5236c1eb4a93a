// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"

	"github.com/shelterchat/shelterchat/pkg/extensions"
	"github.com/shelterchat/shelterchat/services/llm"
	"github.com/shelterchat/shelterchat/services/orchestrator/config"
	"github.com/shelterchat/shelterchat/services/orchestrator/memory"
	"github.com/shelterchat/shelterchat/services/orchestrator/middleware"
	"github.com/shelterchat/shelterchat/services/orchestrator/observability"
	"github.com/shelterchat/shelterchat/services/orchestrator/rag"
	"github.com/shelterchat/shelterchat/services/orchestrator/routes"
	"github.com/shelterchat/shelterchat/services/orchestrator/session"
	"github.com/shelterchat/shelterchat/services/orchestrator/stream"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("orchestrator-service")))
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

// newWeaviateClient connects to the retrieval index, or returns nil to put
// the service in lightweight mode when the URL is unset or unusable.
func newWeaviateClient(cfg config.WeaviateConfig) *weaviate.Client {
	// Trim quotes and whitespace in case the container runtime passes
	// them literally.
	endpoint := strings.Trim(cfg.Endpoint, "\"' ")
	if endpoint == "" || !strings.Contains(endpoint, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running in lightweight mode (chat without retrieval).")
		return nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running in lightweight mode.",
			"url", endpoint, "error", err)
		return nil
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}
	if cfg.APIKey != "" {
		clientConf.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(clientConf)
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	return client
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	cleanup, err := initTracer(cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	// --- Conversation memory ---
	var store memory.Store
	if cfg.MongoURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		mongoStore, err := memory.NewMongoStore(ctx, cfg.MongoURL)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to the conversation store: %v", err)
		}
		defer mongoStore.Close(context.Background())
		store = mongoStore
		slog.Info("Using MongoDB conversation store")
	} else {
		store = memory.NewInProcStore()
		slog.Warn("MONGO_URL not set, conversation history will not survive restarts")
	}

	// --- Retrieval ---
	weaviateClient := newWeaviateClient(cfg.Weaviate)
	retrieverFactory := func(ctx context.Context, identity string) (rag.Retriever, error) {
		if weaviateClient == nil {
			return rag.NopRetriever{}, nil
		}
		return rag.NewWeaviateRetriever(weaviateClient, cfg.Weaviate.IndexName, cfg.Weaviate.Limit)
	}

	// --- Completion service ---
	llmFactory := func(ctx context.Context, identity string) (llm.LLMClient, error) {
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
		})
	}

	builder := &session.Builder{
		LLMFactory:       llmFactory,
		RetrieverFactory: retrieverFactory,
		Memory:           store,
		Prompt: rag.PromptConfig{
			Persona:        cfg.Prompt.Persona,
			SupportContact: cfg.Prompt.SupportContact,
		},
	}

	mgr, err := session.NewManager(builder, session.Options{
		IdleTTL: cfg.Session.IdleTTL,
		OnBuild: func(string) {
			metrics.SessionsBuiltTotal.Inc()
			metrics.ActiveSessions.Inc()
		},
		OnEvict: func(string) {
			metrics.SessionsEvictedTotal.Inc()
			metrics.ActiveSessions.Dec()
		},
	})
	if err != nil {
		log.Fatalf("failed to create the session manager: %v", err)
	}
	defer mgr.Close()

	// --- Auth ---
	var authProvider extensions.AuthProvider
	if cfg.AuthSecret != "" {
		authProvider, err = extensions.NewHMACAuthProvider(cfg.AuthSecret)
		if err != nil {
			log.Fatalf("failed to create the auth provider: %v", err)
		}
		slog.Info("Using HMAC token authentication")
	} else {
		authProvider = &extensions.NopAuthProvider{}
		slog.Warn("SHELTERCHAT_AUTH_SECRET not set, all requests authenticate as local-user")
	}

	streamer := stream.New(cfg.Stream.ChunkSize, cfg.Stream.Interval)

	router := gin.Default()
	router.Use(otelgin.Middleware("orchestrator-service"))
	router.Use(middleware.RequestIDMiddleware())

	routes.SetupRoutes(router, mgr, store, streamer, authProvider)

	slog.Info("Starting the orchestrator server", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
