// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/shelterchat/shelterchat/services/llm"
	"github.com/shelterchat/shelterchat/services/orchestrator/memory"
	"github.com/shelterchat/shelterchat/services/orchestrator/rag"
)

var sessionTracer = otel.Tracer("shelterchat.orchestrator.session")

// ragAgent answers questions for a single identity by grounding the model
// in retrieved passages and the identity's conversation log.
//
// The per-agent mutex serializes Answer calls for one identity, so the two
// turns of each exchange land in memory as an adjacent pair and histories
// never interleave.
type ragAgent struct {
	identity string
	pipeline *rag.Pipeline
	llm      llm.LLMClient
	memory   memory.Store

	mu sync.Mutex
}

func newRAGAgent(identity string, pipeline *rag.Pipeline, client llm.LLMClient, store memory.Store) *ragAgent {
	return &ragAgent{
		identity: identity,
		pipeline: pipeline,
		llm:      client,
		memory:   store,
	}
}

// Answer runs the full exchange: load history, condense the question,
// retrieve grounding passages, generate, then persist both turns.
//
// The answer is returned even when persistence fails; the caller can tell
// that case apart because the error is a *memory.AppendError.
func (a *ragAgent) Answer(ctx context.Context, question string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, span := sessionTracer.Start(ctx, "Agent.Answer")
	defer span.End()
	span.SetAttributes(attribute.String("session.identity", a.identity))

	history, err := a.memory.GetMessages(ctx, a.identity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history read failed")
		return "", fmt.Errorf("failed to load conversation for %q: %w", a.identity, err)
	}

	standalone, err := a.pipeline.Condense(ctx, question, history)
	if err != nil {
		// A failed rewrite only costs retrieval quality. Fall back to the
		// raw question rather than refusing to answer.
		slog.Warn("Question condensation failed, using raw question",
			"identity", a.identity, "error", err)
		standalone = question
	}

	passages, err := a.pipeline.Retrieve(ctx, standalone)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return "", err
	}
	span.SetAttributes(attribute.Int("rag.passages", len(passages)))

	prompt := a.pipeline.BuildPrompt(question, history, passages)
	answer, err := a.llm.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", fmt.Errorf("answer generation failed: %w", err)
	}

	if err := a.memory.Append(ctx, a.identity,
		memory.Turn{Role: memory.RoleHuman, Content: question},
		memory.Turn{Role: memory.RoleAssistant, Content: answer},
	); err != nil {
		span.RecordError(err)
		slog.Error("Failed to persist exchange", "identity", a.identity, "error", err)
		return answer, err
	}

	return answer, nil
}
