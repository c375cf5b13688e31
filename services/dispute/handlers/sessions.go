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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/michaelwaves/coinchase/services/dispute/observability"
	"github.com/michaelwaves/coinchase/services/dispute/session"
)

// ListSessions returns metadata for every live negotiation session.
func ListSessions(store *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		slog.Info("Received request to list sessions")
		infos := store.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"sessions": infos,
			"count":    len(infos),
		})
	}
}

// DeleteSession force-closes one session by id. Deleting an unknown id is
// not an error; the session may have expired a moment earlier.
func DeleteSession(store *session.Store, metrics *observability.DisputeMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		slog.Info("Received a request to delete a session", "sessionId", id)

		if store.Delete(id) {
			metrics.SessionClosed()
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": id})
	}
}
