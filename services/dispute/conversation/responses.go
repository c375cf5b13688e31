// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"fmt"

	"github.com/michaelwaves/coinchase/services/dispute/datatypes"
)

// forcedDenyJustification is the verdict recorded when the turn bound is hit
// without a decision from the agent.
const forcedDenyJustification = "Insufficient evidence after 2 follow-ups. Default DENY to prevent fraud."

// forcedDenyMessage accompanies the forced verdict.
const forcedDenyMessage = "Maximum follow-ups reached. Default decision applied."

// needsEvidenceResponse tells the caller what to supply on the next turn.
// The session stays alive, so its id is echoed back.
func needsEvidenceResponse(sessionID string, req *datatypes.DisputeAnalysisRequest, ev *datatypes.EvidenceRequest, step int) datatypes.DisputeAnalysisResponse {
	return datatypes.DisputeAnalysisResponse{
		Status:            datatypes.StatusNeedsEvidence,
		SessionID:         &sessionID,
		TransactionID:     req.TransactionID,
		EvidenceRequested: ev,
		Message: fmt.Sprintf(
			"Additional evidence required: %s. Please provide this evidence in your next request using the session_id.",
			ev.EvidenceType),
		Step: step,
	}
}

// completedResponse carries the final verdict. SessionID is nil because the
// session has been deleted by the time this is built.
func completedResponse(req *datatypes.DisputeAnalysisRequest, decision datatypes.DisputeDecision, refunded bool, step int) datatypes.DisputeAnalysisResponse {
	message := "Decision: " + decision.Decision
	if refunded {
		message += " - Refund sent successfully"
	}
	return datatypes.DisputeAnalysisResponse{
		Status:        datatypes.StatusCompleted,
		SessionID:     nil,
		TransactionID: req.TransactionID,
		Decision:      &decision,
		Message:       message,
		Step:          step,
	}
}

// forcedDenyResponse is the default verdict when the final turn ends without
// a decision.
func forcedDenyResponse(req *datatypes.DisputeAnalysisRequest, evidenceReviewed []string, step int) datatypes.DisputeAnalysisResponse {
	return datatypes.DisputeAnalysisResponse{
		Status:        datatypes.StatusCompleted,
		SessionID:     nil,
		TransactionID: req.TransactionID,
		Decision: &datatypes.DisputeDecision{
			Decision:         datatypes.DecisionDenyRefund,
			Confidence:       0.5,
			Justification:    forcedDenyJustification,
			EvidenceReviewed: evidenceReviewed,
		},
		Message: forcedDenyMessage,
		Step:    step,
	}
}

// analyzingResponse relays the agent's interim message and keeps the session
// open for the next turn.
func analyzingResponse(sessionID string, req *datatypes.DisputeAnalysisRequest, message string, step int) datatypes.DisputeAnalysisResponse {
	return datatypes.DisputeAnalysisResponse{
		Status:        datatypes.StatusAnalyzing,
		SessionID:     &sessionID,
		TransactionID: req.TransactionID,
		Message:       message,
		Step:          step,
	}
}

// refundNote is appended to an analyzing message when the embedded approval
// signal triggered a transfer.
func refundNote(amount float64, address string) string {
	return fmt.Sprintf("\n\nRefund of $%.2f automatically processed to %s", amount, address)
}
