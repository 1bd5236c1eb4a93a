// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelterchat/shelterchat/services/orchestrator/memory"
	"github.com/shelterchat/shelterchat/services/orchestrator/observability"
	"github.com/shelterchat/shelterchat/services/orchestrator/rag"
	"github.com/shelterchat/shelterchat/services/orchestrator/session"
)

// writeChatError maps the closed error taxonomy onto HTTP statuses:
//
//   - session construction failure: 500, body names the failed step and
//     whether a retry is worthwhile
//   - retrieval failure: 502, the backend index is unhealthy
//   - memory append failure: 500 with a distinct message, the answer was
//     generated but could not be recorded
//   - anything else: 500 internal
func writeChatError(c *gin.Context, endpoint observability.Endpoint, err error) {
	if ce, ok := session.AsConstructionError(err); ok {
		recordError(endpoint, observability.ErrorCodeConstruction)
		slog.Error("Session construction failed",
			"identity", ce.Identity, "step", ce.Step, "retryable", ce.Retryable, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "session construction failed",
			"step":      string(ce.Step),
			"retryable": ce.Retryable,
		})
		return
	}

	var re *rag.RetrievalError
	if errors.As(err, &re) {
		recordError(endpoint, observability.ErrorCodeRetrieval)
		slog.Error("Retrieval backend failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "document retrieval failed"})
		return
	}

	var ae *memory.AppendError
	if errors.As(err, &ae) {
		recordError(endpoint, observability.ErrorCodeMemoryAppend)
		slog.Error("Failed to record conversation turns", "identity", ae.Identity, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "answer generated but could not be recorded"})
		return
	}

	recordError(endpoint, observability.ErrorCodeInternal)
	slog.Error("Chat request failed", "endpoint", string(endpoint), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// recordRequest and recordError tolerate uninitialized metrics so handler
// tests do not need the Prometheus registry.
func recordRequest(endpoint observability.Endpoint, status string) {
	if m := observability.DefaultMetrics; m != nil {
		m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
	}
}

func recordError(endpoint observability.Endpoint, code observability.ErrorCode) {
	if m := observability.DefaultMetrics; m != nil {
		m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
	}
}
