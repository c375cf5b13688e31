// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifier

import (
	"strings"
	"testing"

	"github.com/michaelwaves/coinchase/services/dispute/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_UserPromptMarker(t *testing.T) {
	out := Classify("I cannot decide yet. REQUEST_EVIDENCE:USER_PROMPT", 1)

	require.Equal(t, KindNeedsEvidence, out.Kind)
	require.NotNil(t, out.Evidence)
	assert.Equal(t, datatypes.EvidenceUserPrompt, out.Evidence.EvidenceType)
	assert.Equal(t, "Need to verify user's original authorization and intent", out.Evidence.Reason)
	assert.Equal(t, []string{
		"original_prompt", "authorized_budget", "product_specifications", "user_authorization",
	}, out.Evidence.Fields)
}

func TestClassify_AgentDecisionMarker(t *testing.T) {
	out := Classify("REQUEST_EVIDENCE:AGENT_DECISION please", 2)

	require.Equal(t, KindNeedsEvidence, out.Kind)
	assert.Equal(t, datatypes.EvidenceAgentDecision, out.Evidence.EvidenceType)
	assert.Len(t, out.Evidence.Fields, 4)
}

// Markers are checked before the decision grammar: a reply containing both
// must classify as an evidence request, never as a decision.
func TestClassify_MarkerWinsOverDecisionGrammar(t *testing.T) {
	text := "REQUEST_EVIDENCE:USER_PROMPT\nDECISION: APPROVE_REFUND | CONFIDENCE: 0.9 | JUSTIFICATION: x"
	out := Classify(text, 1)
	assert.Equal(t, KindNeedsEvidence, out.Kind)
}

func TestClassify_StructuredDecision(t *testing.T) {
	text := "DECISION: APPROVE_REFUND | CONFIDENCE: 0.9 | JUSTIFICATION: clear proof"
	out := Classify(text, 2)

	require.Equal(t, KindDecision, out.Kind)
	assert.Equal(t, datatypes.DecisionApproveRefund, out.Decision)
	assert.Equal(t, 0.9, out.Confidence)
	assert.Equal(t, "clear proof", out.Justification)
}

func TestClassify_StructuredDecisionCaseInsensitiveMultiline(t *testing.T) {
	text := "decision: deny_refund | confidence: 0.82 | justification: the item\nwas delivered and signed for.\n"
	out := Classify(text, 3)

	require.Equal(t, KindDecision, out.Kind)
	assert.Equal(t, datatypes.DecisionDenyRefund, out.Decision)
	assert.Equal(t, 0.82, out.Confidence)
	assert.Equal(t, "the item\nwas delivered and signed for.", out.Justification)
}

func TestClassify_StructuredDecisionBadConfidenceFallsThrough(t *testing.T) {
	// "1.2.3" is not a float; the grammar did not really match, but the text
	// still carries an approval keyword, so the keyword path takes over.
	text := "DECISION: APPROVE_REFUND | CONFIDENCE: 1.2.3 | JUSTIFICATION: approved anyway"
	out := Classify(text, 1)

	require.Equal(t, KindDecision, out.Kind)
	assert.Equal(t, datatypes.DecisionApproveRefund, out.Decision)
	assert.Equal(t, defaultKeywordConfidence, out.Confidence)
}

func TestClassify_KeywordApproval(t *testing.T) {
	out := Classify("After review, the refund authorized for this claim.", 1)

	require.Equal(t, KindDecision, out.Kind)
	assert.Equal(t, datatypes.DecisionApproveRefund, out.Decision)
	assert.Equal(t, defaultKeywordConfidence, out.Confidence)
}

func TestClassify_KeywordDenial(t *testing.T) {
	out := Classify("The claim is denied due to proof of delivery.", 2)

	require.Equal(t, KindDecision, out.Kind)
	assert.Equal(t, datatypes.DecisionDenyRefund, out.Decision)
}

// Overlapping approval and denial keywords: approval wins by documented
// precedence.
func TestClassify_KeywordAmbiguityApprovalWins(t *testing.T) {
	out := Classify("I would deny refund normally, but this one is approved.", 2)

	require.Equal(t, KindDecision, out.Kind)
	assert.Equal(t, datatypes.DecisionApproveRefund, out.Decision)
}

func TestClassify_KeywordConfidenceFromPercent(t *testing.T) {
	out := Classify("Refund authorized. Certainty: 85%", 1)

	require.Equal(t, KindDecision, out.Kind)
	assert.Equal(t, 0.85, out.Confidence)
}

func TestClassify_KeywordJustificationTruncatedTo500(t *testing.T) {
	text := "approved " + strings.Repeat("x", 600)
	out := Classify(text, 1)

	require.Equal(t, KindDecision, out.Kind)
	assert.Len(t, []rune(out.Justification), 500)
}

func TestClassify_Analyzing(t *testing.T) {
	text := "I am still reviewing the delivery records for this transaction."
	out := Classify(text, 1)

	require.Equal(t, KindAnalyzing, out.Kind)
	assert.Equal(t, text, out.Message)
}

func TestExtractConfidence(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
		ok   bool
	}{
		{"certainty", "My certainty is 70% here", 0.70, true},
		{"confidence", "Confidence level: 42%", 0.42, true},
		{"absent", "no figure stated", 0, false},
		{"percent without keyword", "about 90% of orders arrive", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractConfidence(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApprovalSignal(t *testing.T) {
	conf, ok := ApprovalSignal("Leaning towards approved, certainty 75%, still verifying one detail.")
	assert.True(t, ok)
	assert.Equal(t, 0.75, conf)

	conf, ok = ApprovalSignal("This looks approved to me.")
	assert.True(t, ok)
	assert.Equal(t, 0.0, conf, "no stated percentage means zero confidence")

	_, ok = ApprovalSignal("Still gathering shipment records.")
	assert.False(t, ok)

	// The secondary scan uses the narrower keyword set: "approve refund" is
	// a classifier keyword but not an analyzing-state trigger.
	_, ok = ApprovalSignal("I may approve refund later.")
	assert.False(t, ok)
}
