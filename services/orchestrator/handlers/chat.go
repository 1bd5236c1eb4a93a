// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shelterchat/shelterchat/services/orchestrator/datatypes"
	"github.com/shelterchat/shelterchat/services/orchestrator/middleware"
	"github.com/shelterchat/shelterchat/services/orchestrator/observability"
	"github.com/shelterchat/shelterchat/services/orchestrator/session"
	"github.com/shelterchat/shelterchat/services/orchestrator/stream"
)

var handlersTracer = otel.Tracer("shelterchat.orchestrator.handlers")

// identityFrom resolves the caller's chat identity from the authenticated
// user. Routes are registered behind AuthMiddleware, so a missing identity
// means the route table is miswired rather than a client mistake.
func identityFrom(c *gin.Context) (string, bool) {
	info := middleware.GetAuthInfo(c)
	if info == nil || info.UserID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return info.UserID, true
}

// CreateChat ensures the caller's session exists. Created reports whether
// this call constructed it; repeat calls reuse the cached state.
func CreateChat(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFrom(c)
		if !ok {
			recordError(observability.EndpointCreateChat, observability.ErrorCodeUnauthorized)
			return
		}

		ctx, span := handlersTracer.Start(c.Request.Context(), "CreateChat")
		defer span.End()
		span.SetAttributes(attribute.String("session.identity", identity))

		existed := mgr.Has(identity)
		if _, err := mgr.Resolve(ctx, identity); err != nil {
			recordRequest(observability.EndpointCreateChat, "error")
			writeChatError(c, observability.EndpointCreateChat, err)
			return
		}

		recordRequest(observability.EndpointCreateChat, "success")
		c.JSON(http.StatusOK, datatypes.CreateChatResponse{
			Identity: identity,
			Created:  !existed,
		})
	}
}

// UserQuestion answers one question and streams the answer back in paced
// chunks. The exchange is fully persisted before the first byte is
// written, so a client that disconnects mid-stream still finds the
// complete turn in its history.
func UserQuestion(mgr *session.Manager, streamer *stream.Streamer) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFrom(c)
		if !ok {
			recordError(observability.EndpointUserQuestion, observability.ErrorCodeUnauthorized)
			return
		}

		var req datatypes.QuestionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			recordError(observability.EndpointUserQuestion, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
			return
		}
		if err := req.Validate(); err != nil {
			recordError(observability.EndpointUserQuestion, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "question exceeds size limit"})
			return
		}

		ctx, span := handlersTracer.Start(c.Request.Context(), "UserQuestion")
		defer span.End()
		span.SetAttributes(attribute.String("session.identity", identity))

		state, err := mgr.Resolve(ctx, identity)
		if err != nil {
			recordRequest(observability.EndpointUserQuestion, "error")
			writeChatError(c, observability.EndpointUserQuestion, err)
			return
		}

		answerStart := time.Now()
		answer, err := state.Agent.Answer(ctx, req.Question)
		if err != nil {
			recordRequest(observability.EndpointUserQuestion, "error")
			writeChatError(c, observability.EndpointUserQuestion, err)
			return
		}
		if m := observability.DefaultMetrics; m != nil {
			m.AnswerLatencySeconds.Observe(time.Since(answerStart).Seconds())
		}

		streamAnswer(c, streamer, answer)
		recordRequest(observability.EndpointUserQuestion, "success")
	}
}

// streamAnswer writes the completed answer as paced chunks, flushing after
// each so proxies do not buffer the whole body. A write error or context
// cancellation means the client went away; that is not a server error.
func streamAnswer(c *gin.Context, streamer *stream.Streamer, answer string) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	start := time.Now()
	status := "success"
	for chunk := range streamer.Stream(c.Request.Context(), answer) {
		if _, err := c.Writer.WriteString(chunk); err != nil {
			status = "client_disconnect"
			if m := observability.DefaultMetrics; m != nil {
				m.ClientDisconnectsTotal.Inc()
			}
			break
		}
		c.Writer.Flush()
		if m := observability.DefaultMetrics; m != nil {
			m.StreamChunksTotal.Inc()
		}
	}
	if c.Request.Context().Err() != nil && status == "success" {
		status = "client_disconnect"
		if m := observability.DefaultMetrics; m != nil {
			m.ClientDisconnectsTotal.Inc()
		}
	}
	if m := observability.DefaultMetrics; m != nil {
		m.StreamDurationSeconds.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
