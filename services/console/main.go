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
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/labelops/pkg/logging"
	"github.com/AleutianAI/labelops/services/console/handlers"
	"github.com/AleutianAI/labelops/services/console/routes"
	"github.com/AleutianAI/labelops/services/labeler/cloud"
	"github.com/AleutianAI/labelops/services/labeler/engine"
	"github.com/AleutianAI/labelops/services/labeler/gateway"
	"github.com/AleutianAI/labelops/services/labeler/history"
	"github.com/AleutianAI/labelops/services/labeler/transport"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "labelops-otel-collector:4317"
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
		resource.WithAttributes(semconv.ServiceNameKey.String("labelops-console")))
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

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env var, using default", "name", name, "value", v)
		return fallback
	}
	return n
}

// buildHistory opens the durable change history, optionally decorated
// with GCS batch snapshots. Falls back to in-memory when the database
// cannot be opened; the console still works, history just won't survive
// restarts.
func buildHistory(logger *slog.Logger) history.Store {
	path := os.Getenv("HISTORY_DB_PATH")
	if path == "" {
		path = "~/.labelops/history"
	}

	var store history.Store
	badgerStore, err := history.OpenBadgerStore(history.DefaultBadgerConfig(expandHome(path)))
	if err != nil {
		logger.Error("opening history database failed, falling back to in-memory history",
			"path", path, "error", err)
		store = history.NewMemoryStore()
	} else {
		store = badgerStore
	}

	bucket := os.Getenv("SNAPSHOT_BUCKET")
	if bucket == "" {
		return store
	}
	exporter, err := history.NewGCSExporter(context.Background(), bucket)
	if err != nil {
		logger.Error("creating GCS snapshot exporter failed, snapshots disabled",
			"bucket", bucket, "error", err)
		return store
	}
	logger.Info("batch history snapshots enabled", "bucket", bucket)
	return history.WithSnapshots(store, exporter, logger)
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

func main() {
	port := os.Getenv("CONSOLE_PORT")
	if port == "" {
		port = "12310"
	}

	appLogger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		LogDir:  os.Getenv("LOG_DIR"),
		Service: "console",
		JSON:    true,
	})
	defer appLogger.Close()
	logger := appLogger.Slog()
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	apiURL := os.Getenv("LABEL_API_URL")
	if apiURL == "" {
		log.Fatal("LABEL_API_URL must be set")
	}

	var inventory cloud.Inventory
	if path := os.Getenv("INVENTORY_PATH"); path != "" {
		inv, err := cloud.LoadInventory(expandHome(path))
		if err != nil {
			log.Fatalf("failed to load inventory: %v", err)
		}
		logger.Info("inventory loaded", "path", path, "resource_count", len(inv.List()))
		inventory = inv
	} else {
		logger.Warn("INVENTORY_PATH not set, starting with an empty inventory")
		inventory = cloud.NewMemoryInventory(nil)
	}

	gw := gateway.New(
		envInt("CONCURRENCY_LIMIT", gateway.DefaultLimit),
		gateway.WithRateLimit(float64(envInt("RATE_LIMIT_RPS", 50)), envInt("RATE_LIMIT_BURST", 10)),
	)
	retrier, err := transport.NewRetrier(transport.DefaultPolicy(), cloud.IsTransient)
	if err != nil {
		log.Fatalf("failed to build retry transport: %v", err)
	}
	api := cloud.NewRESTClient(apiURL, &http.Client{Timeout: 30 * time.Second}, logger)
	mutator := cloud.NewMutator(api, gw, retrier, logger)

	hist := buildHistory(logger)
	hub := handlers.NewHub(logger)

	coordinator, err := engine.NewCoordinator(mutator, hist, hub, hub, logger, engine.DefaultConfig())
	if err != nil {
		log.Fatalf("failed to build batch coordinator: %v", err)
	}
	single := engine.NewSingleUpdater(mutator, hist, logger)

	svc := handlers.NewService(coordinator, single, inventory, hist, logger)

	router := gin.Default()
	router.Use(otelgin.Middleware("labelops-console"))
	routes.SetupRoutes(router, svc, hub)

	logger.Info("starting console", "port", port, "label_api", apiURL)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
