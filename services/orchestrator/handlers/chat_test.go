// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelterchat/shelterchat/pkg/extensions"
	"github.com/shelterchat/shelterchat/services/llm"
	"github.com/shelterchat/shelterchat/services/orchestrator/datatypes"
	"github.com/shelterchat/shelterchat/services/orchestrator/memory"
	"github.com/shelterchat/shelterchat/services/orchestrator/middleware"
	"github.com/shelterchat/shelterchat/services/orchestrator/rag"
	"github.com/shelterchat/shelterchat/services/orchestrator/session"
	"github.com/shelterchat/shelterchat/services/orchestrator/stream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeLLM answers with a canned reply and remembers the prompts it saw.
type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	prompts []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, nil
}

func (f *fakeLLM) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeRetriever struct {
	passages []rag.Passage
	err      error
}

func (f *fakeRetriever) Search(_ context.Context, query string) ([]rag.Passage, error) {
	if f.err != nil {
		return nil, &rag.RetrievalError{Query: query, Err: f.err}
	}
	return f.passages, nil
}

// testEnv bundles the wired chat surface for one test.
type testEnv struct {
	router *gin.Engine
	mgr    *session.Manager
	store  *memory.InProcStore
	llm    *fakeLLM
}

func newTestEnv(t *testing.T, retriever rag.Retriever) *testEnv {
	t.Helper()

	client := &fakeLLM{reply: "canned answer"}
	store := memory.NewInProcStore()
	builder := &session.Builder{
		LLMFactory: func(_ context.Context, _ string) (llm.LLMClient, error) {
			return client, nil
		},
		RetrieverFactory: func(_ context.Context, _ string) (rag.Retriever, error) {
			return retriever, nil
		},
		Memory: store,
		Prompt: rag.PromptConfig{
			Persona:        "the test shelter platform",
			SupportContact: "support@example.com",
		},
	}
	mgr, err := session.NewManager(builder, session.Options{IdleTTL: -1})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)

	streamer := stream.New(8, 0)
	authProvider := &extensions.NopAuthProvider{}

	router := gin.New()
	chat := router.Group("/v1/chat")
	chat.Use(middleware.AuthMiddleware(authProvider))
	chat.POST("/create-chat", CreateChat(mgr))
	chat.POST("/user-question", UserQuestion(mgr, streamer))
	chat.GET("/chat-history", GetChatHistory(store))
	chat.DELETE("/chat-history", DeleteChatHistory(store, mgr))

	return &testEnv{router: router, mgr: mgr, store: store, llm: client}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestCreateChat_FirstCallCreatesThenReuses(t *testing.T) {
	env := newTestEnv(t, &fakeRetriever{})

	w := env.do(http.MethodPost, "/v1/chat/create-chat", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.CreateChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "local-user", resp.Identity)
	assert.True(t, resp.Created)

	w = env.do(http.MethodPost, "/v1/chat/create-chat", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Created, "second call must reuse the cached session")
	assert.Equal(t, 1, env.mgr.Len())
}

func TestUserQuestion_StreamsFullAnswer(t *testing.T) {
	env := newTestEnv(t, &fakeRetriever{
		passages: []rag.Passage{{Content: "Adoption fees are 50 euros.", Source: "fees.md"}},
	})
	env.llm.reply = "Adopting a furry friend costs 50 euros!"

	w := env.do(http.MethodPost, "/v1/chat/user-question",
		`{"question": "how much are adoption fees?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Adopting a furry friend costs 50 euros!", w.Body.String(),
		"chunk concatenation must reproduce the answer")
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	// Both turns hit the store before the stream finished.
	turns, err := env.store.GetMessages(context.Background(), "local-user")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, memory.RoleHuman, turns[0].Role)
	assert.Equal(t, memory.RoleAssistant, turns[1].Role)
}

func TestUserQuestion_EmptyCorpusStillAnswers(t *testing.T) {
	// No documents seeded at all: retrieval legitimately returns nothing
	// and the prompt falls back to the no-documents marker.
	env := newTestEnv(t, &fakeRetriever{})
	env.llm.reply = "I don't know, please contact support@example.com"

	w := env.do(http.MethodPost, "/v1/chat/user-question",
		`{"question": "how much are adoption fees?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "I don't know, please contact support@example.com", w.Body.String())
	assert.Contains(t, env.llm.lastPrompt(), "(no relevant documents found)")
}

func TestUserQuestion_MissingQuestionIsBadRequest(t *testing.T) {
	env := newTestEnv(t, &fakeRetriever{})

	w := env.do(http.MethodPost, "/v1/chat/user-question", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/v1/chat/user-question", `{"question": ""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserQuestion_OversizedQuestionIsBadRequest(t *testing.T) {
	env := newTestEnv(t, &fakeRetriever{})

	huge := strings.Repeat("a", datatypes.MaxQuestionBytes+1)
	w := env.do(http.MethodPost, "/v1/chat/user-question",
		`{"question": "`+huge+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserQuestion_RetrievalFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t, &fakeRetriever{err: errors.New("index down")})

	w := env.do(http.MethodPost, "/v1/chat/user-question",
		`{"question": "any dogs?"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)

	// The failed turn is not in the history.
	turns, err := env.store.GetMessages(context.Background(), "local-user")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestUserQuestion_ConstructionFailureNamesStep(t *testing.T) {
	// A builder whose model step always fails.
	builder := &session.Builder{
		LLMFactory: func(_ context.Context, _ string) (llm.LLMClient, error) {
			return nil, &llm.ConfigError{Field: "api_key", Err: errors.New("missing")}
		},
		RetrieverFactory: func(_ context.Context, _ string) (rag.Retriever, error) {
			return &fakeRetriever{}, nil
		},
		Memory: memory.NewInProcStore(),
		Prompt: rag.PromptConfig{Persona: "x", SupportContact: "y"},
	}
	mgr, err := session.NewManager(builder, session.Options{IdleTTL: -1})
	require.NoError(t, err)
	defer mgr.Close()

	router := gin.New()
	router.POST("/q", middleware.AuthMiddleware(&extensions.NopAuthProvider{}),
		UserQuestion(mgr, stream.New(8, 0)))

	req := httptest.NewRequest(http.MethodPost, "/q", strings.NewReader(`{"question": "hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "model", body["step"])
	assert.Equal(t, false, body["retryable"])
	assert.Equal(t, 0, mgr.Len(), "failed build must not be cached")
}
