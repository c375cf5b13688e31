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
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/michaelwaves/coinchase/pkg/logging"
	"github.com/michaelwaves/coinchase/prompts"
	"github.com/michaelwaves/coinchase/services/dispute/config"
	"github.com/michaelwaves/coinchase/services/dispute/conversation"
	"github.com/michaelwaves/coinchase/services/dispute/observability"
	"github.com/michaelwaves/coinchase/services/dispute/routes"
	"github.com/michaelwaves/coinchase/services/dispute/session"
	"github.com/michaelwaves/coinchase/services/evidence"
	"github.com/michaelwaves/coinchase/services/llm"
	"github.com/michaelwaves/coinchase/services/payment"

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
		resource.WithAttributes(semconv.ServiceNameKey.String("dispute-service")))
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

func main() {
	cfg := config.Load()

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "dispute",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// --- Init the tracer ---
	cleanup, err := initTracer(cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	promptLib, err := prompts.Load()
	if err != nil {
		log.Fatalf("FATAL: Could not load the prompt library: %v", err)
	}

	log.Println("Configuring the LLM Client")
	agent, err := llm.NewClientFromEnv(cfg.LLMBackend)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// The payment and evidence collaborators are optional; without them the
	// service still analyzes disputes, it just cannot move funds or
	// auto-load delivery proof.
	var payments conversation.Refunder
	if cfg.Locus.MCPURL != "" {
		locus, err := payment.NewLocusClient(cfg.Locus)
		if err != nil {
			slog.Warn("Payment client unavailable, automatic refunds disabled", "error", err)
		} else {
			payments = locus
			slog.Info("Payment client configured", "mcpUrl", cfg.Locus.MCPURL)
		}
	} else {
		slog.Warn("LOCUS_MCP_URL not set, automatic refunds disabled")
	}

	var evidenceSource conversation.EvidenceSource
	if registry, err := evidence.NewRegistryFromFile(cfg.EvidenceDataFile); err != nil {
		slog.Warn("Shipment evidence unavailable", "file", cfg.EvidenceDataFile, "error", err)
	} else {
		evidenceSource = registry
	}

	store := session.NewStore(cfg.SessionTTL)
	sweeper := session.NewSweeper(store, cfg.SweepInterval, func(count int) {
		metrics.SessionsExpired(count)
		for i := 0; i < count; i++ {
			metrics.SessionClosed()
		}
	})
	if err := sweeper.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start session sweeper: %v", err)
	}
	defer sweeper.Stop()

	ctrl, err := conversation.New(conversation.Options{
		Store:    store,
		Agent:    agent,
		Payments: payments,
		Evidence: evidenceSource,
		Prompts:  promptLib,
		Metrics:  metrics,
	})
	if err != nil {
		log.Fatalf("FATAL: Could not initialize the conversation controller: %v", err)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("dispute-service"))

	routes.SetupRoutes(router, ctrl, store, metrics, cfg.APIKey)

	port := cfg.Port
	if port == "" {
		port = "12230"
	}
	log.Println("Starting the dispute server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
