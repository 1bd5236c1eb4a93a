// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shelterchat/shelterchat/services/orchestrator/datatypes"
	"github.com/shelterchat/shelterchat/services/orchestrator/memory"
	"github.com/shelterchat/shelterchat/services/orchestrator/observability"
	"github.com/shelterchat/shelterchat/services/orchestrator/session"
)

// GetChatHistory returns the caller's turns in chronological order. An
// identity with no history gets an empty array, not an error.
func GetChatHistory(store memory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFrom(c)
		if !ok {
			recordError(observability.EndpointGetHistory, observability.ErrorCodeUnauthorized)
			return
		}

		ctx, span := handlersTracer.Start(c.Request.Context(), "GetChatHistory")
		defer span.End()
		span.SetAttributes(attribute.String("session.identity", identity))

		turns, err := store.GetMessages(ctx, identity)
		if err != nil {
			recordRequest(observability.EndpointGetHistory, "error")
			writeChatError(c, observability.EndpointGetHistory, err)
			return
		}

		entries := make([]datatypes.HistoryEntry, 0, len(turns))
		for _, t := range turns {
			entries = append(entries, datatypes.HistoryEntry{
				Type:    string(t.Role),
				Message: t.Content,
			})
		}

		recordRequest(observability.EndpointGetHistory, "success")
		c.JSON(http.StatusOK, entries)
	}
}

// DeleteChatHistory clears the caller's conversation log and drops the
// cached session so the next question starts from a fresh state. Deleting
// an empty history is a no-op and still returns 200.
func DeleteChatHistory(store memory.Store, mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFrom(c)
		if !ok {
			recordError(observability.EndpointDeleteHistory, observability.ErrorCodeUnauthorized)
			return
		}

		ctx, span := handlersTracer.Start(c.Request.Context(), "DeleteChatHistory")
		defer span.End()
		span.SetAttributes(attribute.String("session.identity", identity))

		if err := store.Clear(ctx, identity); err != nil {
			recordRequest(observability.EndpointDeleteHistory, "error")
			writeChatError(c, observability.EndpointDeleteHistory, err)
			return
		}
		mgr.Invalidate(identity)

		recordRequest(observability.EndpointDeleteHistory, "success")
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	}
}
