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
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelterchat/shelterchat/services/orchestrator/datatypes"
	"github.com/shelterchat/shelterchat/services/orchestrator/memory"
)

func TestGetChatHistory_EmptyHistoryIsEmptyArray(t *testing.T) {
	env := newTestEnv(t, &fakeRetriever{})

	w := env.do(http.MethodGet, "/v1/chat/chat-history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetChatHistory_ReturnsTurnsInOrder(t *testing.T) {
	env := newTestEnv(t, &fakeRetriever{})
	require.NoError(t, env.store.Append(context.Background(), "local-user",
		memory.Turn{Role: memory.RoleHuman, Content: "do you have cats?"},
		memory.Turn{Role: memory.RoleAssistant, Content: "Yes, three of them."},
	))

	w := env.do(http.MethodGet, "/v1/chat/chat-history", "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []datatypes.HistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, datatypes.HistoryEntry{Type: "human", Message: "do you have cats?"}, entries[0])
	assert.Equal(t, datatypes.HistoryEntry{Type: "assistant", Message: "Yes, three of them."}, entries[1])
}

func TestDeleteChatHistory_ClearsAndInvalidates(t *testing.T) {
	env := newTestEnv(t, &fakeRetriever{})

	// Build up a session with one exchange.
	w := env.do(http.MethodPost, "/v1/chat/user-question", `{"question": "hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, env.mgr.Len())

	w = env.do(http.MethodDelete, "/v1/chat/chat-history", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 0, env.mgr.Len(), "delete must drop the cached session")
	turns, err := env.store.GetMessages(context.Background(), "local-user")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestDeleteChatHistory_EmptyHistoryStillOK(t *testing.T) {
	env := newTestEnv(t, &fakeRetriever{})

	w := env.do(http.MethodDelete, "/v1/chat/chat-history", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Repeat delete is also fine.
	w = env.do(http.MethodDelete, "/v1/chat/chat-history", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
