// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation implements the multi-turn dispute negotiation protocol.
//
// # Description
//
// The Controller drives one analysis turn per call: it resolves or creates
// the session, builds the prompt, replays the conversation to the analysis
// agent, classifies the reply, and routes it to one of three outcomes
// (evidence request, final decision, still analyzing). Sessions get at most
// three turns; a session reaching its final turn without a decision is
// closed with a default denial.
//
// # Concurrency
//
// The session's own lock is held for the entire turn, agent call included,
// so two concurrent requests on the same session id serialize and can never
// double-advance the turn counter or double-trigger a refund.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/michaelwaves/coinchase/pkg/validation"
	"github.com/michaelwaves/coinchase/prompts"
	"github.com/michaelwaves/coinchase/services/dispute/classifier"
	"github.com/michaelwaves/coinchase/services/dispute/datatypes"
	"github.com/michaelwaves/coinchase/services/dispute/observability"
	"github.com/michaelwaves/coinchase/services/dispute/session"
	"github.com/michaelwaves/coinchase/services/llm"
)

// conversationTracer is the OpenTelemetry tracer for dispute turns.
var conversationTracer = otel.Tracer("coinchase.dispute.conversation")

// approvalSignalThreshold is the minimum stated confidence for the secondary
// refund trigger inside an analyzing-state message.
const approvalSignalThreshold = 0.70

// Options wires the controller's collaborators. Store, Agent, and Prompts
// are required; Payments, Evidence, and Metrics may be nil, in which case
// the matching feature is skipped.
type Options struct {
	Store    *session.Store
	Agent    llm.LLMClient
	Payments Refunder
	Evidence EvidenceSource
	Prompts  *prompts.Library
	Metrics  *observability.DisputeMetrics
}

// Controller orchestrates dispute analysis turns.
type Controller struct {
	store    *session.Store
	agent    llm.LLMClient
	payments Refunder
	evidence EvidenceSource
	prompts  *prompts.Library
	metrics  *observability.DisputeMetrics
}

// New validates the wiring and returns a ready controller.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("conversation controller requires a session store")
	}
	if opts.Agent == nil {
		return nil, fmt.Errorf("conversation controller requires an analysis agent")
	}
	if opts.Prompts == nil {
		return nil, fmt.Errorf("conversation controller requires a prompt library")
	}
	if opts.Payments == nil {
		slog.Warn("No payment client configured, automatic refunds disabled")
	}
	if opts.Evidence == nil {
		slog.Warn("No shipment evidence source configured, auto-loading disabled")
	}
	return &Controller{
		store:    opts.Store,
		agent:    opts.Agent,
		payments: opts.Payments,
		evidence: opts.Evidence,
		prompts:  opts.Prompts,
		metrics:  opts.Metrics,
	}, nil
}

// Analyze runs one dispute analysis turn.
//
// Errors returned: session.ErrNotFound for an unknown or expired session id,
// ErrTurnLimitExceeded for a continuation past the final turn (the session
// is left unmodified), and wrapped agent errors (the session is deleted).
func (c *Controller) Analyze(ctx context.Context, req *datatypes.DisputeAnalysisRequest) (datatypes.DisputeAnalysisResponse, error) {
	start := time.Now()

	ctx, span := conversationTracer.Start(ctx, "Controller.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("dispute.transaction_id", req.TransactionID),
		attribute.Bool("dispute.continuation", req.SessionID != ""),
	)

	// Payout destinations come straight from callers; strip stray whitespace
	// before the refund policy checks the format.
	if req.RecipientAddress != "" {
		if addr, err := validation.SanitizeWalletAddress(req.RecipientAddress); err == nil {
			req.RecipientAddress = addr
		}
	}

	var (
		sess   *session.Session
		prompt string
		images []datatypes.ImageAttachment
		turn   int
	)

	if req.SessionID != "" {
		s, ok := c.store.Get(req.SessionID)
		if !ok {
			c.metrics.RecordError(observability.ErrorCodeSessionNotFound)
			return datatypes.DisputeAnalysisResponse{}, session.ErrNotFound
		}
		sess = s
		sess.Lock()
		defer sess.Unlock()

		// The session may have expired or been deleted while we waited.
		if sess.Deleted() {
			c.metrics.RecordError(observability.ErrorCodeSessionNotFound)
			return datatypes.DisputeAnalysisResponse{}, session.ErrNotFound
		}
		if sess.Turn() >= session.MaxTurns {
			c.metrics.RecordError(observability.ErrorCodeTurnLimit)
			span.SetStatus(codes.Error, "turn limit exceeded")
			return datatypes.DisputeAnalysisResponse{}, ErrTurnLimitExceeded
		}
		turn = sess.AdvanceTurn()
		slog.Info("Continuing session", "sessionId", sess.ID, "step", turn)

		if req.AdditionalEvidence != nil {
			evidenceType := req.AdditionalEvidence.Type
			if evidenceType == "" {
				evidenceType = "unknown"
			}
			prompt = evidencePrompt(evidenceType, req.AdditionalEvidence.Data)
			sess.AddEvidence(evidenceType)
		} else {
			prompt = req.DisputeDescription
		}
	} else {
		transactionID := req.TransactionID
		if transactionID == "" {
			transactionID = "unknown"
		}
		sess = c.store.Create(transactionID)
		c.metrics.SessionOpened()
		sess.Lock()
		defer sess.Unlock()

		turn = sess.AdvanceTurn()
		slog.Info("New dispute analysis session", "sessionId", sess.ID, "step", turn)

		var shipmentText string
		if c.evidence != nil && req.TransactionID != "" {
			if res := c.evidence.CheckDeliveryStatus(req.TransactionID); res.Found {
				shipmentText = shipmentBlock(res.Summary)
				sess.AddEvidence("shipment_evidence")
				slog.Info("Auto-loaded shipment evidence", "transactionId", req.TransactionID)
			}
		}

		var err error
		prompt, err = c.initialPrompt(req, shipmentText)
		if err != nil {
			c.closeSession(sess)
			c.metrics.RecordError(observability.ErrorCodeInternal)
			return datatypes.DisputeAnalysisResponse{}, fmt.Errorf("failed to build dispute prompt: %w", err)
		}

		if len(req.Images) > 0 {
			images = req.Images
			sess.AddEvidence("images")
			slog.Info("Processing dispute images", "count", len(images))
		}
	}

	sess.AppendHistory(datatypes.Message{
		Role:    datatypes.RoleUser,
		Content: prompt,
		Images:  images,
	})

	messages := make([]datatypes.Message, 0, sess.HistoryLen()+1)
	if system := c.prompts.System(disputePromptName); system != "" {
		messages = append(messages, datatypes.Message{Role: datatypes.RoleSystem, Content: system})
	}
	messages = append(messages, sess.HistorySnapshot()...)

	analysis, err := c.agent.Chat(ctx, messages, llm.GenerationParams{})
	if err != nil {
		slog.Error("Dispute analysis agent call failed", "sessionId", sess.ID, "error", err)
		c.closeSession(sess)
		c.metrics.RecordError(observability.ErrorCodeLLMError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis agent failed")
		return datatypes.DisputeAnalysisResponse{}, fmt.Errorf("failed to analyze dispute: %w", err)
	}

	span.SetAttributes(attribute.String("dispute.session_id", sess.ID), attribute.Int("dispute.step", turn))

	sess.AppendHistory(datatypes.Message{Role: datatypes.RoleAssistant, Content: analysis})

	outcome := classifier.Classify(analysis, turn)

	// The final turn must end in a decision. Anything else becomes a
	// default denial and the session is closed.
	if outcome.Kind != classifier.KindDecision && turn >= session.MaxTurns {
		slog.Warn("Max follow-ups reached, forcing decision", "sessionId", sess.ID)
		reviewed := sess.EvidenceCollected()
		c.closeSession(sess)
		c.metrics.RecordDecision(datatypes.DecisionDenyRefund, true)
		resp := forcedDenyResponse(req, reviewed, turn)
		c.metrics.RecordTurn(resp.Status, time.Since(start).Seconds())
		return resp, nil
	}

	switch outcome.Kind {
	case classifier.KindNeedsEvidence:
		slog.Info("Requesting evidence", "sessionId", sess.ID, "evidenceType", outcome.Evidence.EvidenceType)
		resp := needsEvidenceResponse(sess.ID, req, outcome.Evidence, turn)
		c.metrics.RecordTurn(resp.Status, time.Since(start).Seconds())
		return resp, nil

	case classifier.KindDecision:
		slog.Info("Decision made", "sessionId", sess.ID, "decision", outcome.Decision)

		refunded := false
		if outcome.Decision == datatypes.DecisionApproveRefund && c.refundAllowed(turn, req, sess) {
			refunded = c.sendRefund(ctx, req, sess, "decision")
		}

		reviewed := sess.EvidenceCollected()
		if req.TransactionID != "" {
			reviewed = append(reviewed, "dispute_description")
		}
		c.closeSession(sess)
		c.metrics.RecordDecision(outcome.Decision, false)

		resp := completedResponse(req, datatypes.DisputeDecision{
			Decision:         outcome.Decision,
			Confidence:       outcome.Confidence,
			Justification:    outcome.Justification,
			EvidenceReviewed: reviewed,
		}, refunded, turn)
		c.metrics.RecordTurn(resp.Status, time.Since(start).Seconds())
		return resp, nil

	default:
		message := outcome.Message

		// An analyzing reply can still carry an explicit, high-confidence
		// approval. Honor it once per session.
		if conf, approved := classifier.ApprovalSignal(message); approved &&
			conf >= approvalSignalThreshold && c.refundAllowed(turn, req, sess) {
			slog.Info("Detected high-confidence approval in analyzing message",
				"sessionId", sess.ID, "confidence", conf)
			if c.sendRefund(ctx, req, sess, "analyzing") {
				message += refundNote(req.Amount, req.RecipientAddress)
			}
		}

		resp := analyzingResponse(sess.ID, req, message, turn)
		c.metrics.RecordTurn(resp.Status, time.Since(start).Seconds())
		return resp, nil
	}
}

// closeSession removes the session from the store. Caller must hold the
// session lock; MarkDeleted plus Remove avoids re-taking it.
func (c *Controller) closeSession(sess *session.Session) {
	sess.MarkDeleted()
	c.store.Remove(sess.ID)
	c.metrics.SessionClosed()
}

// refundAllowed checks every precondition for moving funds: a payment client,
// a turn before the final one, a positive amount, a transaction id, a
// well-formed payout address, and no prior transfer on this session.
func (c *Controller) refundAllowed(turn int, req *datatypes.DisputeAnalysisRequest, sess *session.Session) bool {
	return c.payments != nil &&
		turn < session.MaxTurns &&
		req.Amount > 0 &&
		req.TransactionID != "" &&
		validation.IsWalletAddress(req.RecipientAddress) &&
		!sess.RefundSent()
}

// sendRefund latches the session's refund flag and attempts the transfer.
// The latch is taken before the call: a failed attempt still consumes the
// session's single try, so the payment collaborator is never invoked twice
// even when the outcome of the first call is unknown. Failures are logged
// and swallowed; the dispute verdict stands either way.
func (c *Controller) sendRefund(ctx context.Context, req *datatypes.DisputeAnalysisRequest, sess *session.Session, trigger string) bool {
	sess.MarkRefundSent()
	slog.Info("Processing automatic refund", "sessionId", sess.ID, "trigger", trigger)
	result, err := c.payments.SendRefund(ctx, req.RecipientAddress, req.Amount, req.TransactionID)
	if err != nil {
		slog.Error("Failed to process refund", "sessionId", sess.ID, "trigger", trigger, "error", err)
		c.metrics.RecordRefund(trigger, false)
		return false
	}
	c.metrics.RecordRefund(trigger, true)
	slog.Info("Refund processed successfully", "sessionId", sess.ID, "trigger", trigger, "result", result)
	return true
}
