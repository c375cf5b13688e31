// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the wire schemas shared by the dispute service
// handlers, the conversation controller, and the LLM collaborator clients.
package datatypes

// Response status values for a dispute analysis turn.
const (
	StatusNeedsEvidence = "needs_evidence"
	StatusCompleted     = "completed"
	StatusAnalyzing     = "analyzing"
)

// Decision verdicts. These are the exact tokens the analysis agent is
// instructed to emit, so they double as the external wire format.
const (
	DecisionApproveRefund = "APPROVE_REFUND"
	DecisionDenyRefund    = "DENY_REFUND"
)

// Evidence kinds the system knows how to request. The reason strings and
// field lists attached to each kind are fixed by the classifier, not by the
// agent, so the agent cannot invent arbitrary evidence schemas.
const (
	EvidenceUserPrompt    = "user_prompt"
	EvidenceAgentDecision = "agent_decision"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ImageAttachment carries one base64-encoded image supplied as evidence.
type ImageAttachment struct {
	Data      string `json:"data"`
	MediaType string `json:"mediaType"`
}

// Message is one entry in a session's conversation history. The full history
// is replayed to the agent on every turn. Timestamp is RFC 3339 and only set
// on persisted history entries, not on synthetic system messages.
type Message struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp string            `json:"timestamp,omitempty"`
	Images    []ImageAttachment `json:"images,omitempty"`
}

// AdditionalEvidence is caller-supplied evidence for a follow-up turn.
type AdditionalEvidence struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// DisputeAnalysisRequest is the request body for one dispute analysis turn.
type DisputeAnalysisRequest struct {
	DisputeDescription string              `json:"dispute_description" binding:"required,min=10,max=5000"`
	TransactionID      string              `json:"transaction_id,omitempty"`
	Amount             float64             `json:"amount,omitempty" binding:"omitempty,gte=0"`
	SessionID          string              `json:"session_id,omitempty"`
	AdditionalEvidence *AdditionalEvidence `json:"additional_evidence,omitempty"`
	RecipientAddress   string              `json:"recipient_address,omitempty"`
	Images             []ImageAttachment   `json:"images,omitempty"`
}

// EvidenceRequest describes evidence the agent needs before it can decide.
type EvidenceRequest struct {
	EvidenceType string   `json:"evidence_type"`
	Reason       string   `json:"reason"`
	Fields       []string `json:"fields"`
}

// DisputeDecision is the final verdict for a completed dispute.
type DisputeDecision struct {
	Decision         string   `json:"decision"`
	Confidence       float64  `json:"confidence"`
	Justification    string   `json:"justification"`
	EvidenceReviewed []string `json:"evidence_reviewed"`
}

// DisputeAnalysisResponse is the response body for one dispute analysis turn.
//
// SessionID is a pointer so completed responses serialize it as an explicit
// null: a null session id tells the caller the negotiation is over and the
// session is gone.
type DisputeAnalysisResponse struct {
	Status            string           `json:"status"`
	SessionID         *string          `json:"session_id"`
	TransactionID     string           `json:"transaction_id,omitempty"`
	EvidenceRequested *EvidenceRequest `json:"evidence_requested,omitempty"`
	Decision          *DisputeDecision `json:"decision,omitempty"`
	Message           string           `json:"message"`
	Step              int              `json:"step"`
}

// HealthResponse is returned by the health probes.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
