// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/michaelwaves/coinchase/services/dispute/conversation"
	"github.com/michaelwaves/coinchase/services/dispute/datatypes"
	"github.com/michaelwaves/coinchase/services/dispute/session"
)

// AnalyzeDispute runs one dispute analysis turn.
//
// Status codes: 400 for a malformed body or a continuation past the turn
// limit, 404 for an unknown or expired session id, 500 when the agent call
// fails.
func AnalyzeDispute(ctrl *conversation.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.DisputeAnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		resp, err := ctrl.Analyze(c.Request.Context(), &req)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{
					"error": fmt.Sprintf("Session %s not found or expired", req.SessionID),
				})
			case errors.Is(err, conversation.ErrTurnLimitExceeded):
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Maximum 2 follow-ups reached. Decision must be made.",
				})
			default:
				slog.Error("Error in dispute analysis", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to analyze dispute: " + err.Error(),
				})
			}
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
