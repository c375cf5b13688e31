// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns all live dispute-negotiation state. The Store is the
// exclusive owner of Session objects; request handlers borrow a session for
// the duration of one turn under the session's own lock and either commit
// their mutations or delete the session before returning.
package session

import (
	"sync"
	"time"

	"github.com/michaelwaves/coinchase/services/dispute/datatypes"
)

// MaxTurns is the hard bound on turns per session. Turns 1 and 2 may end in
// an evidence request; turn 3 always ends in a decision, forced if necessary.
const MaxTurns = 3

// DefaultTTL is how long an untouched session stays reachable.
const DefaultTTL = 30 * time.Minute

// Session is one in-flight dispute negotiation.
//
// # Locking
//
// Turn, Evidence, History, the refund latch, and the deleted flag are guarded
// by the session's own mutex: a request handler must hold Lock() for the whole
// read-modify-write sequence of a turn so that two concurrent requests on the
// same id cannot double-increment the turn or double-trigger a refund.
// lastAccessed is guarded by the Store's mutex instead, because only the
// store's get/sweep paths ever touch it.
type Session struct {
	ID            string
	TransactionID string
	CreatedAt     time.Time

	mu           sync.Mutex
	lastAccessed time.Time
	deleted      bool
	refundSent   bool
	turn         int
	evidence     []string
	history      []datatypes.Message
}

// Lock acquires the session's critical section for one turn.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's critical section.
func (s *Session) Unlock() { s.mu.Unlock() }

// Deleted reports whether the session was removed from its store while the
// caller was waiting for the lock. Callers must check this immediately after
// Lock() and treat a deleted session as not found.
func (s *Session) Deleted() bool { return s.deleted }

// MarkDeleted flags the session as terminally removed. Caller must hold the
// session lock and must also remove the session from the store.
func (s *Session) MarkDeleted() { s.deleted = true }

// Turn returns the current turn counter. Caller must hold the session lock.
func (s *Session) Turn() int { return s.turn }

// AdvanceTurn increments the turn counter and returns the new value. The
// counter never exceeds MaxTurns; callers enforce the turn-limit protocol
// before advancing, this clamp just keeps the invariant unconditional.
func (s *Session) AdvanceTurn() int {
	if s.turn < MaxTurns {
		s.turn++
	}
	return s.turn
}

// AddEvidence records that evidence of the given kind was collected.
// Duplicate kinds are ignored. Caller must hold the session lock.
func (s *Session) AddEvidence(kind string) {
	for _, e := range s.evidence {
		if e == kind {
			return
		}
	}
	s.evidence = append(s.evidence, kind)
}

// EvidenceCollected returns a copy of the evidence tags collected so far.
// Caller must hold the session lock.
func (s *Session) EvidenceCollected() []string {
	out := make([]string, len(s.evidence))
	copy(out, s.evidence)
	return out
}

// AppendHistory appends one message to the conversation log, stamping it with
// the current time. History is append-only. Caller must hold the session lock.
func (s *Session) AppendHistory(msg datatypes.Message) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	s.history = append(s.history, msg)
}

// HistorySnapshot returns an immutable copy of the conversation history for
// replay to the agent. The copy is never mutated by a later turn, so it is
// safe to hand to an in-flight agent call. Caller must hold the session lock.
func (s *Session) HistorySnapshot() []datatypes.Message {
	out := make([]datatypes.Message, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryLen returns the history length. Caller must hold the session lock.
func (s *Session) HistoryLen() int { return len(s.history) }

// RefundSent reports whether a refund was already triggered for this session.
// Caller must hold the session lock.
func (s *Session) RefundSent() bool { return s.refundSent }

// MarkRefundSent latches the refund flag. The latch is never cleared, which
// is what guarantees the funds-transfer collaborator is invoked at most once
// per session. Caller must hold the session lock.
func (s *Session) MarkRefundSent() { s.refundSent = true }
