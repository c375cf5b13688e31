// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classifier parses the analysis agent's free-text output into one of
// three structured outcomes: an evidence request, a decision, or "still
// analyzing". Precedence is fixed and first-match-wins: evidence markers,
// then the structured decision grammar, then natural-language keywords, then
// analyzing. The natural-language fallback exists because the agent does not
// reliably emit the structured grammar.
package classifier

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/michaelwaves/coinchase/services/dispute/datatypes"
)

// Kind discriminates the outcome variant.
type Kind int

const (
	KindNeedsEvidence Kind = iota
	KindDecision
	KindAnalyzing
)

// Outcome is the classified form of one agent reply. Exactly the fields for
// the active Kind are populated.
type Outcome struct {
	Kind Kind

	// KindNeedsEvidence
	Evidence *datatypes.EvidenceRequest

	// KindDecision
	Decision      string
	Confidence    float64
	Justification string

	// KindAnalyzing
	Message string
}

// Evidence-request markers the agent is instructed to emit verbatim.
const (
	markerUserPrompt    = "REQUEST_EVIDENCE:USER_PROMPT"
	markerAgentDecision = "REQUEST_EVIDENCE:AGENT_DECISION"
)

// defaultKeywordConfidence is used when a decision keyword matched but no
// certainty percentage was present in the text.
const defaultKeywordConfidence = 0.75

// maxJustificationChars caps the justification taken from unstructured text.
const maxJustificationChars = 500

// decisionRe matches the structured decision grammar. The s flag lets the
// justification span multiple lines.
var decisionRe = regexp.MustCompile(
	`(?is)DECISION:\s*(APPROVE_REFUND|DENY_REFUND)\s*\|\s*CONFIDENCE:\s*([\d.]+)\s*\|\s*JUSTIFICATION:\s*(.+)`)

// confidenceRe extracts a "certainty/confidence NN%" figure from prose.
var confidenceRe = regexp.MustCompile(`(?i)(?:CERTAINTY|CONFIDENCE).*?(\d+)%`)

// Keyword sets for the natural-language fallback. Matched case-insensitively
// as substrings. When both sets hit, approval wins; that precedence is a
// documented ambiguity, not something to fix here.
var approvalKeywords = []string{"APPROVED", "REFUND AUTHORIZED", "AUTHORIZE REFUND", "APPROVE REFUND"}
var denialKeywords = []string{"DENIED", "DENY REFUND", "REJECT"}

// approvalSignalKeywords is the narrower set scanned inside analyzing-state
// messages for the secondary refund trigger.
var approvalSignalKeywords = []string{"APPROVED", "REFUND AUTHORIZED", "AUTHORIZE REFUND"}

// Classify parses one raw agent reply. turn is used for logging only; the
// classification itself never branches on it.
func Classify(text string, turn int) Outcome {
	if strings.Contains(text, markerUserPrompt) {
		slog.Info("Classified agent reply as evidence request",
			"evidenceType", datatypes.EvidenceUserPrompt, "step", turn)
		return Outcome{
			Kind: KindNeedsEvidence,
			Evidence: &datatypes.EvidenceRequest{
				EvidenceType: datatypes.EvidenceUserPrompt,
				Reason:       "Need to verify user's original authorization and intent",
				Fields: []string{
					"original_prompt",
					"authorized_budget",
					"product_specifications",
					"user_authorization",
				},
			},
		}
	}

	if strings.Contains(text, markerAgentDecision) {
		slog.Info("Classified agent reply as evidence request",
			"evidenceType", datatypes.EvidenceAgentDecision, "step", turn)
		return Outcome{
			Kind: KindNeedsEvidence,
			Evidence: &datatypes.EvidenceRequest{
				EvidenceType: datatypes.EvidenceAgentDecision,
				Reason:       "Need to verify agent's decision-making process and compliance",
				Fields: []string{
					"selection_rationale",
					"product_details",
					"budget_compliance",
					"approval_steps",
				},
			},
		}
	}

	if m := decisionRe.FindStringSubmatch(text); m != nil {
		confidence, err := strconv.ParseFloat(m[2], 64)
		if err == nil {
			slog.Info("Classified agent reply as structured decision",
				"decision", strings.ToUpper(m[1]), "confidence", confidence, "step", turn)
			return Outcome{
				Kind:          KindDecision,
				Decision:      strings.ToUpper(m[1]),
				Confidence:    confidence,
				Justification: strings.TrimSpace(m[3]),
			}
		}
		// Malformed confidence (e.g. "1.2.3"): the structured form did not
		// really match, fall through to the keyword scan.
		slog.Warn("Structured decision had unparseable confidence, falling back",
			"raw", m[2], "step", turn)
	}

	upper := strings.ToUpper(text)
	isApproval := containsAny(upper, approvalKeywords)
	isDenial := containsAny(upper, denialKeywords)

	if isApproval || isDenial {
		decision := datatypes.DecisionDenyRefund
		if isApproval {
			decision = datatypes.DecisionApproveRefund
		}
		confidence, ok := ExtractConfidence(text)
		if !ok {
			confidence = defaultKeywordConfidence
		}
		slog.Info("Classified agent reply via keyword fallback",
			"decision", decision, "confidence", confidence, "step", turn)
		return Outcome{
			Kind:          KindDecision,
			Decision:      decision,
			Confidence:    confidence,
			Justification: truncateRunes(text, maxJustificationChars),
		}
	}

	return Outcome{Kind: KindAnalyzing, Message: text}
}

// ExtractConfidence pulls a "certainty/confidence NN%" figure out of prose,
// normalized to [0,1]. ok is false when no such pattern is present.
func ExtractConfidence(text string) (confidence float64, ok bool) {
	m := confidenceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return n / 100, true
}

// ApprovalSignal scans an analyzing-state message for an embedded approval.
// It returns the extracted confidence (0 when no percentage was stated) and
// whether an approval keyword was present at all. The caller applies the
// confidence threshold; this function only reports what the text says.
func ApprovalSignal(text string) (confidence float64, approved bool) {
	if !containsAny(strings.ToUpper(text), approvalSignalKeywords) {
		return 0, false
	}
	confidence, _ = ExtractConfidence(text)
	return confidence, true
}

func containsAny(upper string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
