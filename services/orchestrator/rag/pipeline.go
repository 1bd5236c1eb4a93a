// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/shelterchat/shelterchat/services/llm"
	"github.com/shelterchat/shelterchat/services/orchestrator/memory"
)

// PromptConfig fixes the assistant's persona and fallback behavior. The
// system instruction tells the model to direct users to the support contact
// when the answer is not in the context, and never to fabricate one.
type PromptConfig struct {
	// Persona names what the assistant supports, e.g. "the adoptaunpeludo.com
	// pet adoption platform".
	Persona string

	// SupportContact is where the assistant sends users it cannot help,
	// e.g. an email address.
	SupportContact string

	// Separator joins retrieved passages. Defaults to a blank line.
	Separator string
}

func (c PromptConfig) separator() string {
	if c.Separator == "" {
		return "\n\n"
	}
	return c.Separator
}

// Pipeline composes grounded prompts for one tenant. It is stateless per
// call and safe for concurrent use.
type Pipeline struct {
	retriever Retriever
	llmClient llm.LLMClient
	cfg       PromptConfig
}

// NewPipeline wires the pipeline to its retriever and to the completion
// client used for question condensation.
func NewPipeline(retriever Retriever, llmClient llm.LLMClient, cfg PromptConfig) (*Pipeline, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is nil")
	}
	if llmClient == nil {
		return nil, fmt.Errorf("llm client is nil")
	}
	if cfg.Persona == "" {
		return nil, fmt.Errorf("prompt persona is empty")
	}
	if cfg.SupportContact == "" {
		return nil, fmt.Errorf("support contact is empty")
	}
	return &Pipeline{retriever: retriever, llmClient: llmClient, cfg: cfg}, nil
}

// Condense rewrites a follow-up question into a standalone question so the
// similarity search is not confused by pronouns referring to earlier turns.
// With no history the question is already standalone and is returned as-is.
func (p *Pipeline) Condense(ctx context.Context, question string, history []memory.Turn) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	ctx, span := ragTracer.Start(ctx, "Pipeline.Condense")
	defer span.End()

	prompt := fmt.Sprintf(
		"Given some conversation history and a question, convert the question to a standalone question.\n\n"+
			"conversation history:\n%s\n\nquestion: %s\n\nstandalone question:",
		FormatHistory(history), question)

	standalone, err := p.llmClient.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("question condensation failed: %w", err)
	}
	standalone = strings.TrimSpace(standalone)
	if standalone == "" {
		return question, nil
	}
	return standalone, nil
}

// Retrieve fetches grounding passages for the (possibly condensed) question.
// Zero passages is not an error: the pipeline degrades to an ungrounded
// answer framed by the system instruction.
func (p *Pipeline) Retrieve(ctx context.Context, query string) ([]Passage, error) {
	return p.retriever.Search(ctx, query)
}

// BuildPrompt assembles the final answer request: system instruction, prior
// turns in chronological order, retrieved passages in relevance order, then
// the current question.
func (p *Pipeline) BuildPrompt(question string, history []memory.Turn, passages []Passage) string {
	var b strings.Builder

	fmt.Fprintf(&b,
		"You are a helpful and enthusiastic support assistant for %s. "+
			"Answer the question using the context provided and the conversation history. "+
			"Try to find the answer in the context first, then in the conversation history. "+
			"If you really do not know the answer, say so and direct the user to contact %s. "+
			"Never make up an answer. Always speak as if you were chatting with a friend.\n\n",
		p.cfg.Persona, p.cfg.SupportContact)

	fmt.Fprintf(&b, "conversation history:\n%s\n\n", FormatHistory(history))
	fmt.Fprintf(&b, "context:\n%s\n\n", p.joinPassages(passages))
	fmt.Fprintf(&b, "question: %s\n\nanswer:", question)

	return b.String()
}

func (p *Pipeline) joinPassages(passages []Passage) string {
	if len(passages) == 0 {
		return "(no relevant documents found)"
	}
	parts := make([]string, 0, len(passages))
	for _, passage := range passages {
		parts = append(parts, passage.Content)
	}
	return strings.Join(parts, p.cfg.separator())
}

// FormatHistory renders prior turns as alternating Human:/AI: lines in
// chronological order.
func FormatHistory(history []memory.Turn) string {
	if len(history) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(history))
	for _, t := range history {
		label := "Human"
		if t.Role == memory.RoleAssistant {
			label = "AI"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, t.Content))
	}
	return strings.Join(lines, "\n")
}
