// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rag turns a raw user question into a grounded answer request:
// similarity search against the document corpus plus prompt composition.
package rag

import (
	"context"
	"fmt"
)

// Passage is one retrieved text fragment, in the relevance order returned by
// the index. Passages are ephemeral: rebuilt per question, never persisted.
type Passage struct {
	Content string
	Source  string
}

// Retriever performs similarity search over the tenant's document corpus.
//
// Implementations must preserve the index's relevance order; the pipeline
// does not re-rank.
type Retriever interface {
	Search(ctx context.Context, query string) ([]Passage, error)
}

// NopRetriever is the lightweight-mode retriever: every search returns
// zero passages, so answers lean entirely on the system instruction and
// conversation history.
type NopRetriever struct{}

func (NopRetriever) Search(ctx context.Context, query string) ([]Passage, error) {
	return nil, nil
}

// RetrievalError wraps a transient failure querying the retrieval index
// during a question. The turn is not persisted when retrieval fails.
type RetrievalError struct {
	Query string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed for query %q: %v", e.Query, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
