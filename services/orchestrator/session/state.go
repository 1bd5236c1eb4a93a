// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session owns the per-identity conversation state: one lazily
// constructed, cached bundle of model, retrieval and memory handles plus the
// composed agent that answers questions. The Manager guarantees at-most-one
// construction per identity under concurrent requests.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shelterchat/shelterchat/services/llm"
	"github.com/shelterchat/shelterchat/services/orchestrator/memory"
	"github.com/shelterchat/shelterchat/services/orchestrator/rag"
)

// Agent is the composed runnable for one identity. Given a question it may
// call the retrieval handle for grounding context, invokes the model with
// the system instruction plus context plus prior turns, persists the
// exchange, and returns the final answer text.
//
// Implementations serialize calls per identity so turns are appended in the
// order their answers completed.
type Agent interface {
	Answer(ctx context.Context, question string) (string, error)
}

// State is the in-process bundle of everything needed to answer a question
// for one identity. It is owned exclusively by the Manager's map; handlers
// use it for the duration of a request and never hold it across requests.
type State struct {
	Identity  string
	LLM       llm.LLMClient
	Retriever rag.Retriever
	Memory    memory.Store
	Agent     Agent

	builtAt      time.Time
	lastUsedUnix atomic.Int64
}

// Touch records activity so the idle reaper does not evict a live session.
func (s *State) Touch(now time.Time) {
	s.lastUsedUnix.Store(now.UnixMilli())
}

// LastUsed returns the time of the most recent Resolve for this state.
func (s *State) LastUsed() time.Time {
	return time.UnixMilli(s.lastUsedUnix.Load())
}

// BuiltAt returns when the state was constructed.
func (s *State) BuiltAt() time.Time { return s.builtAt }
