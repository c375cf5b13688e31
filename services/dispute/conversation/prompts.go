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
	"sort"
	"strconv"
	"strings"

	"github.com/michaelwaves/coinchase/services/dispute/datatypes"
)

// disputePromptName is the prompt library entry driving the analysis agent.
const disputePromptName = "dispute_analysis"

// initialPrompt renders the opening case statement for a new session.
// Missing transaction or amount render as "Not provided"; an empty shipment
// block drops its template line entirely.
func (c *Controller) initialPrompt(req *datatypes.DisputeAnalysisRequest, shipmentText string) (string, error) {
	transaction := req.TransactionID
	if transaction == "" {
		transaction = "Not provided"
	}
	amount := "Not provided"
	if req.Amount > 0 {
		amount = strconv.FormatFloat(req.Amount, 'f', -1, 64)
	}
	return c.prompts.Format(disputePromptName, map[string]string{
		"transaction_id":      transaction,
		"amount":              amount,
		"dispute_description": req.DisputeDescription,
		"shipment_evidence":   shipmentText,
	})
}

// shipmentBlock wraps an evidence summary for inclusion in the opening
// prompt.
func shipmentBlock(summary string) string {
	return "SHIPMENT EVIDENCE (already checked):\n" + summary
}

// evidencePrompt renders caller-supplied evidence for a follow-up turn.
// Fields are emitted in sorted order so identical evidence always renders
// identically.
func evidencePrompt(evidenceType string, data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s EVIDENCE:\n", strings.ToUpper(evidenceType))
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, data[k])
	}
	b.WriteString("\nNow make your final decision with certainty %.")
	return b.String()
}
