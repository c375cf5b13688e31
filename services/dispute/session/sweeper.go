// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background sweeper runs.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically deletes expired sessions from a Store.
//
// Expiry is already enforced lazily by Store.Get; the sweeper exists so that
// abandoned sessions are reclaimed even when nobody asks for them again.
// Uses the ticker + done channel pattern for graceful shutdown.
type Sweeper struct {
	store    *Store
	interval time.Duration

	// onSwept, if set, is called with the count after each non-empty sweep.
	// Used to feed the observability counters without importing them here.
	onSwept func(count int)

	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper for store. A non-positive interval falls back
// to DefaultSweepInterval. onSwept may be nil.
func NewSweeper(store *Store, interval time.Duration, onSwept func(count int)) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		onSwept:  onSwept,
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep goroutine. It returns an error if the
// sweeper is already running. The goroutine stops when Stop is called or the
// context is cancelled.
func (sw *Sweeper) Start(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.running {
		return fmt.Errorf("sweeper already running")
	}
	sw.running = true

	go func() {
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		slog.Info("Session sweeper started", "interval", sw.interval.String())
		for {
			select {
			case <-ticker.C:
				n := sw.store.Sweep()
				if n > 0 && sw.onSwept != nil {
					sw.onSwept(n)
				}
			case <-sw.done:
				slog.Info("Session sweeper stopped")
				return
			case <-ctx.Done():
				slog.Info("Session sweeper stopped by context", "reason", ctx.Err())
				return
			}
		}
	}()
	return nil
}

// Stop signals the sweep goroutine to exit. Safe to call once.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.running {
		return
	}
	sw.running = false
	close(sw.done)
}
