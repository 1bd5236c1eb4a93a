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
	"time"

	"github.com/shelterchat/shelterchat/services/llm"
	"github.com/shelterchat/shelterchat/services/orchestrator/memory"
	"github.com/shelterchat/shelterchat/services/orchestrator/rag"
)

// Builder constructs session states. Each failable wiring step is reported
// through a *ConstructionError naming the step that broke.
type Builder struct {
	// LLMFactory opens the model handle for one identity. Factories let
	// tests and multi-backend deployments swap clients without touching
	// the manager.
	LLMFactory func(ctx context.Context, identity string) (llm.LLMClient, error)

	// RetrieverFactory opens the retrieval handle for one identity.
	RetrieverFactory func(ctx context.Context, identity string) (rag.Retriever, error)

	// Memory is the shared conversation store. Its Ping is the failable
	// part of the memory step.
	Memory memory.Store

	// Prompt fixes the persona and fallback contact for every session.
	Prompt rag.PromptConfig
}

func (b *Builder) validate() error {
	if b.LLMFactory == nil {
		return fmt.Errorf("llm factory is nil")
	}
	if b.RetrieverFactory == nil {
		return fmt.Errorf("retriever factory is nil")
	}
	if b.Memory == nil {
		return fmt.Errorf("memory store is nil")
	}
	return nil
}

// Build wires a fresh state for the identity: model handle, retrieval
// handle, memory handle, then the composed agent. The first failing step
// aborts the build; nothing is cached on failure.
func (b *Builder) Build(ctx context.Context, identity string) (*State, error) {
	ctx, span := sessionTracer.Start(ctx, "Builder.Build")
	defer span.End()

	client, err := b.LLMFactory(ctx, identity)
	if err != nil {
		return nil, &ConstructionError{
			Step:      StepModel,
			Identity:  identity,
			Retryable: isRetryable(err),
			Err:       err,
		}
	}

	retriever, err := b.RetrieverFactory(ctx, identity)
	if err != nil {
		return nil, &ConstructionError{Step: StepRetrieval, Identity: identity, Retryable: true, Err: err}
	}

	if err := b.Memory.Ping(ctx); err != nil {
		return nil, &ConstructionError{Step: StepMemory, Identity: identity, Retryable: true, Err: err}
	}

	pipeline, err := rag.NewPipeline(retriever, client, b.Prompt)
	if err != nil {
		return nil, &ConstructionError{Step: StepAgent, Identity: identity, Retryable: false, Err: err}
	}

	state := &State{
		Identity:  identity,
		LLM:       client,
		Retriever: retriever,
		Memory:    b.Memory,
		Agent:     newRAGAgent(identity, pipeline, client, b.Memory),
		builtAt:   time.Now(),
	}
	state.Touch(time.Now())
	return state, nil
}

// isRetryable decides whether a model-step failure is worth retrying.
// Configuration problems fail identically every time; everything else is
// assumed transient.
func isRetryable(err error) bool {
	var ce *llm.ConfigError
	return !errors.As(err, &ce)
}
