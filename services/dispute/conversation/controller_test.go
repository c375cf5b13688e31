// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelwaves/coinchase/prompts"
	"github.com/michaelwaves/coinchase/services/dispute/datatypes"
	"github.com/michaelwaves/coinchase/services/dispute/session"
	"github.com/michaelwaves/coinchase/services/evidence"
	"github.com/michaelwaves/coinchase/services/llm"
)

var validAddress = "0x" + strings.Repeat("a", 40)

// scriptedAgent replies from a fixed script, one entry per call. The last
// entry repeats if the script runs out.
type scriptedAgent struct {
	replies []string
	err     error
	calls   int
	seen    [][]datatypes.Message
}

func (a *scriptedAgent) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return a.Chat(ctx, []datatypes.Message{{Role: datatypes.RoleUser, Content: prompt}}, params)
}

func (a *scriptedAgent) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (string, error) {
	snapshot := make([]datatypes.Message, len(messages))
	copy(snapshot, messages)
	a.seen = append(a.seen, snapshot)

	if a.err != nil {
		return "", a.err
	}
	idx := a.calls
	if idx >= len(a.replies) {
		idx = len(a.replies) - 1
	}
	a.calls++
	return a.replies[idx], nil
}

type fakeRefunder struct {
	calls    int
	err      error
	lastAddr string
	lastAmt  float64
}

func (f *fakeRefunder) SendRefund(ctx context.Context, address string, amount float64, transactionID string) (map[string]any, error) {
	f.calls++
	f.lastAddr = address
	f.lastAmt = amount
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"status": "sent"}, nil
}

type fakeEvidence struct {
	result evidence.LookupResult
}

func (f *fakeEvidence) CheckDeliveryStatus(identifier string) evidence.LookupResult {
	return f.result
}

func newTestController(t *testing.T, store *session.Store, agent llm.LLMClient, payments Refunder, source EvidenceSource) *Controller {
	t.Helper()
	lib, err := prompts.Load()
	require.NoError(t, err)

	ctrl, err := New(Options{
		Store:    store,
		Agent:    agent,
		Payments: payments,
		Evidence: source,
		Prompts:  lib,
	})
	require.NoError(t, err)
	return ctrl
}

func newRequest() *datatypes.DisputeAnalysisRequest {
	return &datatypes.DisputeAnalysisRequest{
		DisputeDescription: "Package never arrived at my address",
		TransactionID:      "tx_100",
		Amount:             42.5,
	}
}

func TestAnalyze_StructuredDecisionCompletesSession(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{
		"DECISION: APPROVE_REFUND | CONFIDENCE: 0.9 | JUSTIFICATION: Delivery never confirmed.",
	}}
	ctrl := newTestController(t, store, agent, nil, nil)

	resp, err := ctrl.Analyze(context.Background(), newRequest())
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusCompleted, resp.Status)
	assert.Nil(t, resp.SessionID, "completed responses carry a null session id")
	require.NotNil(t, resp.Decision)
	assert.Equal(t, datatypes.DecisionApproveRefund, resp.Decision.Decision)
	assert.InDelta(t, 0.9, resp.Decision.Confidence, 1e-9)
	assert.Equal(t, "Delivery never confirmed.", resp.Decision.Justification)
	assert.Contains(t, resp.Decision.EvidenceReviewed, "dispute_description")
	assert.Equal(t, "Decision: APPROVE_REFUND", resp.Message)
	assert.Equal(t, 1, resp.Step)
	assert.Equal(t, 0, store.Len(), "session must be deleted on completion")
}

func TestAnalyze_EvidenceLoop(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{
		"I need more information. REQUEST_EVIDENCE:USER_PROMPT",
		"DECISION: DENY_REFUND | CONFIDENCE: 0.8 | JUSTIFICATION: Evidence contradicts the claim.",
	}}
	ctrl := newTestController(t, store, agent, nil, nil)

	first, err := ctrl.Analyze(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusNeedsEvidence, first.Status)
	require.NotNil(t, first.SessionID)
	require.NotNil(t, first.EvidenceRequested)
	assert.Equal(t, datatypes.EvidenceUserPrompt, first.EvidenceRequested.EvidenceType)
	assert.Contains(t, first.Message, "Additional evidence required: user_prompt")
	assert.Equal(t, 1, first.Step)
	assert.Equal(t, 1, store.Len())

	followUp := newRequest()
	followUp.SessionID = *first.SessionID
	followUp.AdditionalEvidence = &datatypes.AdditionalEvidence{
		Type: datatypes.EvidenceUserPrompt,
		Data: map[string]string{"original_prompt": "buy a red stapler under $50"},
	}

	second, err := ctrl.Analyze(context.Background(), followUp)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, second.Status)
	assert.Equal(t, 2, second.Step)
	require.NotNil(t, second.Decision)
	assert.Contains(t, second.Decision.EvidenceReviewed, datatypes.EvidenceUserPrompt)
	assert.Equal(t, 0, store.Len())

	// The evidence turn replays the full history plus the system prompt.
	lastCall := agent.seen[len(agent.seen)-1]
	assert.Equal(t, datatypes.RoleSystem, lastCall[0].Role)
	assert.Contains(t, lastCall[len(lastCall)-1].Content, "USER_PROMPT EVIDENCE:")
	assert.Contains(t, lastCall[len(lastCall)-1].Content, "- original_prompt: buy a red stapler under $50")
}

func TestAnalyze_ForcedDenyOnFinalTurn(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{"Still reviewing the materials provided."}}
	ctrl := newTestController(t, store, agent, nil, nil)

	first, err := ctrl.Analyze(context.Background(), newRequest())
	require.NoError(t, err)
	require.Equal(t, datatypes.StatusAnalyzing, first.Status)
	require.NotNil(t, first.SessionID)

	cont := newRequest()
	cont.SessionID = *first.SessionID
	second, err := ctrl.Analyze(context.Background(), cont)
	require.NoError(t, err)
	require.Equal(t, datatypes.StatusAnalyzing, second.Status)
	assert.Equal(t, 2, second.Step)

	third, err := ctrl.Analyze(context.Background(), cont)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, third.Status)
	assert.Nil(t, third.SessionID)
	require.NotNil(t, third.Decision)
	assert.Equal(t, datatypes.DecisionDenyRefund, third.Decision.Decision)
	assert.InDelta(t, 0.5, third.Decision.Confidence, 1e-9)
	assert.Equal(t, "Insufficient evidence after 2 follow-ups. Default DENY to prevent fraud.", third.Decision.Justification)
	assert.Equal(t, "Maximum follow-ups reached. Default decision applied.", third.Message)
	assert.Equal(t, 3, third.Step)
	assert.Equal(t, 0, store.Len(), "forced deny must close the session")
}

func TestAnalyze_UnknownSessionID(t *testing.T) {
	store := session.NewStore(0)
	ctrl := newTestController(t, store, &scriptedAgent{replies: []string{"x"}}, nil, nil)

	req := newRequest()
	req.SessionID = "no-such-session"
	_, err := ctrl.Analyze(context.Background(), req)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestAnalyze_TurnLimitLeavesSessionUntouched(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{"irrelevant"}}
	ctrl := newTestController(t, store, agent, nil, nil)

	sess := store.Create("tx_100")
	sess.Lock()
	sess.AdvanceTurn()
	sess.AdvanceTurn()
	sess.AdvanceTurn()
	sess.Unlock()

	req := newRequest()
	req.SessionID = sess.ID
	_, err := ctrl.Analyze(context.Background(), req)
	assert.ErrorIs(t, err, ErrTurnLimitExceeded)

	sess.Lock()
	assert.Equal(t, 3, sess.Turn(), "rejected turn must not mutate the session")
	assert.Equal(t, 0, sess.HistoryLen())
	sess.Unlock()
	assert.Equal(t, 1, store.Len(), "rejected turn must not delete the session")
	assert.Equal(t, 0, agent.calls, "agent must not be called past the turn limit")
}

func TestAnalyze_AgentErrorDeletesSession(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{err: errors.New("upstream timeout")}
	ctrl := newTestController(t, store, agent, nil, nil)

	_, err := ctrl.Analyze(context.Background(), newRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to analyze dispute")
	assert.Equal(t, 0, store.Len(), "failed turn must not strand the session")
}

func TestAnalyze_DecisionTriggersRefund(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{
		"REQUEST_EVIDENCE:AGENT_DECISION",
		"DECISION: APPROVE_REFUND | CONFIDENCE: 0.95 | JUSTIFICATION: Agent acted within budget.",
	}}
	refunder := &fakeRefunder{}
	ctrl := newTestController(t, store, agent, refunder, nil)

	req := newRequest()
	req.RecipientAddress = validAddress

	first, err := ctrl.Analyze(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, datatypes.StatusNeedsEvidence, first.Status)

	cont := newRequest()
	cont.SessionID = *first.SessionID
	cont.RecipientAddress = validAddress
	second, err := ctrl.Analyze(context.Background(), cont)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusCompleted, second.Status)
	assert.Equal(t, 1, refunder.calls)
	assert.Equal(t, validAddress, refunder.lastAddr)
	assert.InDelta(t, 42.5, refunder.lastAmt, 1e-9)
	assert.Equal(t, "Decision: APPROVE_REFUND - Refund sent successfully", second.Message)
}

func TestAnalyze_NoRefundOnFinalTurnApproval(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{
		"Still analyzing.",
		"Still analyzing.",
		"DECISION: APPROVE_REFUND | CONFIDENCE: 0.9 | JUSTIFICATION: Late but convincing.",
	}}
	refunder := &fakeRefunder{}
	ctrl := newTestController(t, store, agent, refunder, nil)

	req := newRequest()
	req.RecipientAddress = validAddress
	first, err := ctrl.Analyze(context.Background(), req)
	require.NoError(t, err)

	cont := newRequest()
	cont.SessionID = *first.SessionID
	cont.RecipientAddress = validAddress
	_, err = ctrl.Analyze(context.Background(), cont)
	require.NoError(t, err)

	third, err := ctrl.Analyze(context.Background(), cont)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, third.Status)
	assert.Equal(t, datatypes.DecisionApproveRefund, third.Decision.Decision)
	assert.Equal(t, 0, refunder.calls, "no transfer on the final turn")
	assert.Equal(t, "Decision: APPROVE_REFUND", third.Message)
}

func TestAnalyze_RefundFailureIsSwallowed(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{
		"DECISION: APPROVE_REFUND | CONFIDENCE: 0.9 | JUSTIFICATION: Clear case.",
	}}
	refunder := &fakeRefunder{err: errors.New("insufficient balance")}
	ctrl := newTestController(t, store, agent, refunder, nil)

	req := newRequest()
	req.RecipientAddress = validAddress
	resp, err := ctrl.Analyze(context.Background(), req)
	require.NoError(t, err, "a failed transfer must not fail the verdict")

	assert.Equal(t, datatypes.StatusCompleted, resp.Status)
	assert.Equal(t, 1, refunder.calls)
	assert.Equal(t, "Decision: APPROVE_REFUND", resp.Message, "no success suffix on a failed transfer")
}

func TestAnalyze_MalformedAddressBlocksRefund(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{
		"DECISION: APPROVE_REFUND | CONFIDENCE: 0.9 | JUSTIFICATION: Clear case.",
	}}
	refunder := &fakeRefunder{}
	ctrl := newTestController(t, store, agent, refunder, nil)

	req := newRequest()
	req.RecipientAddress = "not-a-wallet"
	resp, err := ctrl.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusCompleted, resp.Status)
	assert.Equal(t, 0, refunder.calls, "malformed payout address must block the transfer")
}

func TestAnalyze_KeywordApprovalCompletesAndRefunds(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{
		"Based on my review the claim looks REFUND AUTHORIZED with certainty 85%, finalizing paperwork.",
	}}
	refunder := &fakeRefunder{}
	ctrl := newTestController(t, store, agent, refunder, nil)

	req := newRequest()
	req.RecipientAddress = validAddress
	resp, err := ctrl.Analyze(context.Background(), req)
	require.NoError(t, err)

	// No structured grammar in the reply, so the keyword scan decides.
	assert.Equal(t, datatypes.StatusCompleted, resp.Status)
	require.NotNil(t, resp.Decision)
	assert.Equal(t, datatypes.DecisionApproveRefund, resp.Decision.Decision)
	assert.InDelta(t, 0.85, resp.Decision.Confidence, 1e-9)
	assert.Equal(t, 1, refunder.calls)
	assert.Equal(t, "Decision: APPROVE_REFUND - Refund sent successfully", resp.Message)
	assert.Equal(t, 0, store.Len(), "keyword decisions close the session like structured ones")
}

func TestAnalyze_KeywordApprovalRefundsAtAnyCertainty(t *testing.T) {
	// The keyword scan produces a decision, and the decision path has no
	// certainty gate: a 60% figure still completes the session and pays out.
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{
		"Leaning towards REFUND AUTHORIZED but certainty 60% so far.",
	}}
	refunder := &fakeRefunder{}
	ctrl := newTestController(t, store, agent, refunder, nil)

	req := newRequest()
	req.RecipientAddress = validAddress
	resp, err := ctrl.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusCompleted, resp.Status)
	require.NotNil(t, resp.Decision)
	assert.Equal(t, datatypes.DecisionApproveRefund, resp.Decision.Decision)
	assert.InDelta(t, 0.6, resp.Decision.Confidence, 1e-9)
	assert.Equal(t, 1, refunder.calls)
	assert.Equal(t, 0, store.Len())
}

func TestSendRefund_FailedAttemptConsumesLatch(t *testing.T) {
	store := session.NewStore(0)
	refunder := &fakeRefunder{err: errors.New("upstream outage")}
	ctrl := newTestController(t, store, &scriptedAgent{replies: []string{"x"}}, refunder, nil)

	req := newRequest()
	req.RecipientAddress = validAddress
	sess := store.Create(req.TransactionID)

	sess.Lock()
	require.True(t, ctrl.refundAllowed(1, req, sess))
	ok := ctrl.sendRefund(context.Background(), req, sess, "decision")
	assert.False(t, ok)
	assert.True(t, sess.RefundSent(), "a failed attempt still consumes the session's single try")
	assert.False(t, ctrl.refundAllowed(1, req, sess), "no second attempt after a failure")
	sess.Unlock()

	assert.Equal(t, 1, refunder.calls)
}

func TestAnalyze_PayoutAddressWhitespaceTrimmed(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{
		"DECISION: APPROVE_REFUND | CONFIDENCE: 0.9 | JUSTIFICATION: Clear case.",
	}}
	refunder := &fakeRefunder{}
	ctrl := newTestController(t, store, agent, refunder, nil)

	req := newRequest()
	req.RecipientAddress = "  " + validAddress + "\n"
	resp, err := ctrl.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusCompleted, resp.Status)
	assert.Equal(t, 1, refunder.calls)
	assert.Equal(t, validAddress, refunder.lastAddr, "payment client must receive the trimmed address")
}

func TestAnalyze_ShipmentEvidenceAutoLoaded(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{
		"DECISION: DENY_REFUND | CONFIDENCE: 0.92 | JUSTIFICATION: Delivery was signed for.",
	}}
	source := &fakeEvidence{result: evidence.LookupResult{
		Found:   true,
		Summary: "Shipment Evidence Summary\nDelivered: Yes",
	}}
	ctrl := newTestController(t, store, agent, nil, source)

	resp, err := ctrl.Analyze(context.Background(), newRequest())
	require.NoError(t, err)

	require.NotNil(t, resp.Decision)
	assert.Contains(t, resp.Decision.EvidenceReviewed, "shipment_evidence")

	firstCall := agent.seen[0]
	userMsg := firstCall[len(firstCall)-1]
	assert.Contains(t, userMsg.Content, "SHIPMENT EVIDENCE (already checked):")
	assert.Contains(t, userMsg.Content, "Delivered: Yes")
	assert.Contains(t, userMsg.Content, "Transaction: tx_100")
	assert.Contains(t, userMsg.Content, "Amount: $42.5")
}

func TestAnalyze_ImagesAttachedToOpeningMessage(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{"Reviewing the attached photos."}}
	ctrl := newTestController(t, store, agent, nil, nil)

	req := newRequest()
	req.Images = []datatypes.ImageAttachment{{Data: "aGVsbG8=", MediaType: "image/png"}}

	resp, err := ctrl.Analyze(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp.SessionID)

	firstCall := agent.seen[0]
	userMsg := firstCall[len(firstCall)-1]
	require.Len(t, userMsg.Images, 1)
	assert.Equal(t, "image/png", userMsg.Images[0].MediaType)

	sess, ok := store.Get(*resp.SessionID)
	require.True(t, ok)
	sess.Lock()
	assert.Contains(t, sess.EvidenceCollected(), "images")
	sess.Unlock()
}

func TestAnalyze_MissingPromptForNewSessionUsesDefaults(t *testing.T) {
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{"Looking into it."}}
	ctrl := newTestController(t, store, agent, nil, nil)

	req := &datatypes.DisputeAnalysisRequest{
		DisputeDescription: "Charged twice for the same item",
	}
	_, err := ctrl.Analyze(context.Background(), req)
	require.NoError(t, err)

	userMsg := agent.seen[0][len(agent.seen[0])-1]
	assert.Contains(t, userMsg.Content, "Transaction: Not provided")
	assert.Contains(t, userMsg.Content, "Amount: $Not provided")
}

func TestNew_RequiresCoreCollaborators(t *testing.T) {
	lib, err := prompts.Load()
	require.NoError(t, err)
	store := session.NewStore(0)
	agent := &scriptedAgent{replies: []string{"x"}}

	_, err = New(Options{Agent: agent, Prompts: lib})
	assert.Error(t, err)
	_, err = New(Options{Store: store, Prompts: lib})
	assert.Error(t, err)
	_, err = New(Options{Store: store, Agent: agent})
	assert.Error(t, err)
	_, err = New(Options{Store: store, Agent: agent, Prompts: lib})
	assert.NoError(t, err)
}
