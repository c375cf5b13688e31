// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the dispute service configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/michaelwaves/coinchase/services/payment"
)

// Config carries every runtime setting of the dispute service. Collaborator
// settings (payments, shipment evidence) may be absent; the service starts
// in degraded mode without them.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// APIKey protects the /v1 routes. Empty disables authentication.
	APIKey string

	// LLMBackend selects the analysis agent backend ("anthropic" or
	// "openai"). Empty means Anthropic.
	LLMBackend string

	// SessionTTL is how long an untouched session stays reachable.
	SessionTTL time.Duration

	// SweepInterval is how often the expiry sweeper runs.
	SweepInterval time.Duration

	// EvidenceDataFile is the path to the shipment evidence JSON database.
	EvidenceDataFile string

	// LogDir enables file logging when set.
	LogDir string

	// LogLevel is the minimum level name ("debug", "info", "warn", "error").
	LogLevel string

	// OTELEndpoint is the OTLP gRPC collector address.
	OTELEndpoint string

	// Locus holds the payment client credentials.
	Locus payment.Config
}

// Load reads the configuration. A missing .env file is not an error.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration from .env file")
	}

	return Config{
		Port:             getEnv("DISPUTE_PORT", "12230"),
		APIKey:           os.Getenv("DISPUTE_API_KEY"),
		LLMBackend:       os.Getenv("LLM_BACKEND_TYPE"),
		SessionTTL:       getDuration("SESSION_TTL", 30*time.Minute),
		SweepInterval:    getDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		EvidenceDataFile: getEnv("EVIDENCE_DATA_FILE", "data/shipment_evidence.json"),
		LogDir:           os.Getenv("LOG_DIR"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "coinchase-otel-collector:4317"),
		Locus: payment.Config{
			MCPURL:       os.Getenv("LOCUS_MCP_URL"),
			APIKey:       os.Getenv("LOCUS_API_KEY"),
			ClientID:     os.Getenv("LOCUS_CLIENT_ID"),
			ClientSecret: os.Getenv("LOCUS_CLIENT_SECRET"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}
