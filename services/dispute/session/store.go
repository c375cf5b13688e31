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
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session id does not resolve to a live,
// unexpired session. The caller must start a new session.
var ErrNotFound = errors.New("session not found or expired")

// SessionInfo is a read-only snapshot of one session for the admin endpoints.
type SessionInfo struct {
	SessionID     string   `json:"session_id"`
	TransactionID string   `json:"transaction_id"`
	Step          int      `json:"step"`
	Evidence      []string `json:"evidence_collected"`
	HistoryLen    int      `json:"history_len"`
	CreatedAt     string   `json:"created_at"`
	LastAccessed  string   `json:"last_accessed"`
}

// Store holds all live sessions, keyed by id, with time-based expiry.
//
// The store's mutex guards the map and every session's lastAccessed field;
// it is never held while waiting on a session's own lock, so lookups on
// distinct session ids do not contend with an in-flight turn.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration

	// now is the clock used for expiry checks, injectable for tests.
	now func() time.Time
}

// NewStore creates an empty store. A non-positive ttl falls back to
// DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create allocates a new session with turn 0, empty evidence and history,
// and a fresh unique id.
func (st *Store) Create(transactionID string) *Session {
	now := st.now()
	sess := &Session{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		CreatedAt:     now,
		lastAccessed:  now,
	}

	st.mu.Lock()
	st.sessions[sess.ID] = sess
	st.mu.Unlock()

	slog.Info("Created session", "sessionId", sess.ID, "transactionId", transactionID)
	return sess
}

// Get returns the session for id if it exists and has not expired. An expired
// session is deleted on the spot and reported as missing. A successful hit
// refreshes lastAccessed.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	if !ok {
		st.mu.Unlock()
		return nil, false
	}
	if st.now().Sub(sess.lastAccessed) > st.ttl {
		delete(st.sessions, id)
		st.mu.Unlock()
		// Mark outside the store lock; an in-flight turn on this session
		// finishes first, then observes the deleted flag.
		sess.Lock()
		sess.MarkDeleted()
		sess.Unlock()
		slog.Info("Session expired", "sessionId", id)
		return nil, false
	}
	sess.lastAccessed = st.now()
	st.mu.Unlock()
	return sess, true
}

// Remove drops the session from the map without touching the session lock.
// It exists for callers that already hold the session's lock (the controller
// finishing a turn); they pair it with MarkDeleted. Idempotent.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Delete removes the session and flags it deleted, reporting whether the id
// was present. Idempotent. Must not be called while holding the session's
// lock; use MarkDeleted plus Remove there instead.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if ok {
		sess.Lock()
		sess.MarkDeleted()
		sess.Unlock()
		slog.Info("Deleted session", "sessionId", id)
	}
	return ok
}

// Sweep deletes every expired session and returns how many were removed.
// Safe to run concurrently with foreground access: sessions are unlinked
// under the store lock and flagged deleted under their own lock, so a
// foreground turn either finished before the sweep or finds the deleted
// flag set when it next looks.
func (st *Store) Sweep() int {
	now := st.now()

	st.mu.Lock()
	var expired []*Session
	for id, sess := range st.sessions {
		if now.Sub(sess.lastAccessed) > st.ttl {
			delete(st.sessions, id)
			expired = append(expired, sess)
		}
	}
	st.mu.Unlock()

	for _, sess := range expired {
		sess.Lock()
		sess.MarkDeleted()
		sess.Unlock()
	}

	if len(expired) > 0 {
		slog.Info("Cleaned up expired sessions", "count", len(expired))
	}
	return len(expired)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Snapshot returns read-only metadata for every live session, for the admin
// listing endpoint. Each session is locked briefly while its fields are
// copied, after the store lock has been released.
func (st *Store) Snapshot() []SessionInfo {
	st.mu.Lock()
	refs := make([]*Session, 0, len(st.sessions))
	accessed := make([]time.Time, 0, len(st.sessions))
	for _, sess := range st.sessions {
		refs = append(refs, sess)
		accessed = append(accessed, sess.lastAccessed)
	}
	st.mu.Unlock()

	infos := make([]SessionInfo, 0, len(refs))
	for i, sess := range refs {
		sess.Lock()
		if sess.Deleted() {
			sess.Unlock()
			continue
		}
		infos = append(infos, SessionInfo{
			SessionID:     sess.ID,
			TransactionID: sess.TransactionID,
			Step:          sess.Turn(),
			Evidence:      sess.EvidenceCollected(),
			HistoryLen:    sess.HistoryLen(),
			CreatedAt:     sess.CreatedAt.UTC().Format(time.RFC3339),
			LastAccessed:  accessed[i].UTC().Format(time.RFC3339),
		})
		sess.Unlock()
	}
	return infos
}
