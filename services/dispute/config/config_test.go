// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "12230", cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, "data/shipment_evidence.json", cfg.EvidenceDataFile)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DISPUTE_PORT", "9999")
	t.Setenv("DISPUTE_API_KEY", "secret")
	t.Setenv("SESSION_TTL", "10m")
	t.Setenv("LOCUS_MCP_URL", "https://mcp.example.com")
	t.Setenv("LOCUS_API_KEY", "locus-key")

	cfg := Load()

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "https://mcp.example.com", cfg.Locus.MCPURL)
	assert.Equal(t, "locus-key", cfg.Locus.APIKey)
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "not-a-duration")
	t.Setenv("SESSION_SWEEP_INTERVAL", "-5m")

	cfg := Load()

	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
}
