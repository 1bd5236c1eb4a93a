// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelterchat/shelterchat/services/llm"
	"github.com/shelterchat/shelterchat/services/orchestrator/memory"
	"github.com/shelterchat/shelterchat/services/orchestrator/rag"
)

// scriptedLLM returns canned replies in order, recording each prompt.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

// appendFailStore delegates reads to an InProcStore but fails writes.
type appendFailStore struct {
	*memory.InProcStore
}

func (s *appendFailStore) Append(_ context.Context, identity string, _ ...memory.Turn) error {
	return &memory.AppendError{Identity: identity, Err: errors.New("disk full")}
}

func newTestAgent(t *testing.T, client llm.LLMClient, retriever rag.Retriever, store memory.Store) *ragAgent {
	t.Helper()
	pipeline, err := rag.NewPipeline(retriever, client, rag.PromptConfig{
		Persona:        "the test platform",
		SupportContact: "support@example.com",
	})
	require.NoError(t, err)
	return newRAGAgent("alice", pipeline, client, store)
}

func TestAnswer_PersistsBothTurnsInOrder(t *testing.T) {
	client := &scriptedLLM{replies: []string{"the fee is 50 euros"}}
	store := memory.NewInProcStore()
	agent := newTestAgent(t, client, &fakeRetriever{
		passages: []rag.Passage{{Content: "Adoption fees are 50 euros.", Source: "fees.md"}},
	}, store)

	answer, err := agent.Answer(context.Background(), "how much are adoption fees?")
	require.NoError(t, err)
	assert.Equal(t, "the fee is 50 euros", answer)

	turns, err := store.GetMessages(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, memory.RoleHuman, turns[0].Role)
	assert.Equal(t, "how much are adoption fees?", turns[0].Content)
	assert.Equal(t, memory.RoleAssistant, turns[1].Role)
	assert.Equal(t, "the fee is 50 euros", turns[1].Content)
	assert.Less(t, turns[0].Sequence, turns[1].Sequence)
}

func TestAnswer_GroundsPromptInRetrievedPassages(t *testing.T) {
	client := &scriptedLLM{replies: []string{"answer"}}
	agent := newTestAgent(t, client, &fakeRetriever{
		passages: []rag.Passage{{Content: "Shelters are open on weekends.", Source: "hours.md"}},
	}, memory.NewInProcStore())

	_, err := agent.Answer(context.Background(), "when are you open?")
	require.NoError(t, err)

	require.Len(t, client.prompts, 1, "no history means no condensation call")
	assert.Contains(t, client.prompts[0], "Shelters are open on weekends.")
	assert.Contains(t, client.prompts[0], "when are you open?")
}

func TestAnswer_CondensesFollowUpQuestions(t *testing.T) {
	client := &scriptedLLM{replies: []string{
		"What documents are needed to adopt a dog?", // condensation
		"you need an ID and a form",                 // answer
	}}
	store := memory.NewInProcStore()
	require.NoError(t, store.Append(context.Background(), "alice",
		memory.Turn{Role: memory.RoleHuman, Content: "can I adopt a dog?"},
		memory.Turn{Role: memory.RoleAssistant, Content: "Yes, dogs are available."},
	))

	retriever := &recordingRetriever{}
	agent := newTestAgent(t, client, retriever, store)

	_, err := agent.Answer(context.Background(), "what documents do I need for that?")
	require.NoError(t, err)

	assert.Equal(t, "What documents are needed to adopt a dog?", retriever.lastQuery,
		"retrieval must use the standalone question")
	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[0], "standalone question")
	assert.Contains(t, client.prompts[1], "what documents do I need for that?",
		"the final prompt keeps the user's original wording")
}

func TestAnswer_RetrievalFailureDoesNotPersist(t *testing.T) {
	client := &scriptedLLM{replies: []string{"unused"}}
	store := memory.NewInProcStore()
	agent := newTestAgent(t, client, &fakeRetriever{err: errors.New("index down")}, store)

	_, err := agent.Answer(context.Background(), "hello?")
	require.Error(t, err)

	var re *rag.RetrievalError
	assert.ErrorAs(t, err, &re)

	turns, err := store.GetMessages(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, turns, "a failed turn must not be persisted")
}

func TestAnswer_AppendFailureStillReturnsAnswer(t *testing.T) {
	client := &scriptedLLM{replies: []string{"the answer"}}
	agent := newTestAgent(t, client, &fakeRetriever{}, &appendFailStore{memory.NewInProcStore()})

	answer, err := agent.Answer(context.Background(), "hello?")
	require.Error(t, err)

	var ae *memory.AppendError
	assert.ErrorAs(t, err, &ae)
	assert.Equal(t, "the answer", answer, "the generated answer survives a persistence failure")
}

// recordingRetriever captures the last search query.
type recordingRetriever struct {
	mu        sync.Mutex
	lastQuery string
}

func (r *recordingRetriever) Search(_ context.Context, query string) ([]rag.Passage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastQuery = query
	return nil, nil
}

func TestAnswer_SerializesPerIdentity(t *testing.T) {
	store := memory.NewInProcStore()
	agent := newTestAgent(t, &fakeLLM{reply: "ok"}, &fakeRetriever{}, store)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := agent.Answer(context.Background(), fmt.Sprintf("q%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	turns, err := store.GetMessages(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, turns, 8)
	for i := 0; i < 8; i += 2 {
		assert.Equal(t, memory.RoleHuman, turns[i].Role, "turn %d", i)
		assert.Equal(t, memory.RoleAssistant, turns[i+1].Role, "turn %d", i+1)
	}
}
