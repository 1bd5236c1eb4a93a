// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shelterchat/shelterchat/pkg/extensions"
	"github.com/shelterchat/shelterchat/services/orchestrator/handlers"
	"github.com/shelterchat/shelterchat/services/orchestrator/memory"
	"github.com/shelterchat/shelterchat/services/orchestrator/middleware"
	"github.com/shelterchat/shelterchat/services/orchestrator/session"
	"github.com/shelterchat/shelterchat/services/orchestrator/stream"
)

// SetupRoutes wires the orchestrator's HTTP surface. Health and metrics
// are unauthenticated; everything under /v1/chat goes through the auth
// middleware.
func SetupRoutes(router *gin.Engine, mgr *session.Manager, store memory.Store,
	streamer *stream.Streamer, authProvider extensions.AuthProvider) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.Readiness(store))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		chat := v1.Group("/chat")
		chat.Use(middleware.AuthMiddleware(authProvider))
		{
			chat.POST("/create-chat", handlers.CreateChat(mgr))
			chat.POST("/user-question", handlers.UserQuestion(mgr, streamer))
			chat.GET("/chat-history", handlers.GetChatHistory(store))
			chat.DELETE("/chat-history", handlers.DeleteChatHistory(store, mgr))
		}
	}
}
