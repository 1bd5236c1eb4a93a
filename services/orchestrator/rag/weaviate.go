// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ragTracer = otel.Tracer("shelterchat.orchestrator.rag")

const defaultSearchLimit = 4

// WeaviateRetriever searches a single Weaviate class holding the corpus
// passages. Objects are expected to carry "content" and "source" text
// properties (see cmd/seeder).
type WeaviateRetriever struct {
	client    *weaviate.Client
	className string
	limit     int
}

// NewWeaviateRetriever builds a retriever over the given class. A non-positive
// limit falls back to the default.
func NewWeaviateRetriever(client *weaviate.Client, className string, limit int) (*WeaviateRetriever, error) {
	if client == nil {
		return nil, fmt.Errorf("weaviate client is nil")
	}
	if className == "" {
		return nil, fmt.Errorf("retrieval class name is empty")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &WeaviateRetriever{client: client, className: className, limit: limit}, nil
}

// Search implements Retriever using a nearText query. Results come back in
// the index's relevance order and are passed through unmodified.
func (r *WeaviateRetriever) Search(ctx context.Context, query string) ([]Passage, error) {
	ctx, span := ragTracer.Start(ctx, "WeaviateRetriever.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("class", r.className),
		attribute.Int("limit", r.limit),
	)

	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(r.className).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(r.limit).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query failed")
		return nil, &RetrievalError{Query: query, Err: err}
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("weaviate query error: %s", result.Errors[0].Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query error")
		return nil, &RetrievalError{Query: query, Err: err}
	}

	passages, err := parsePassages(result.Data, r.className)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate response parse failed")
		return nil, &RetrievalError{Query: query, Err: err}
	}
	span.SetAttributes(attribute.Int("passages", len(passages)))
	slog.Debug("Retrieved passages", "count", len(passages))
	return passages, nil
}

// parsePassages extracts Get.<Class>[].{content,source} from the dynamic
// GraphQL response. Marshal and unmarshal for type safety; entries with no
// content are skipped rather than failing the question.
func parsePassages(data interface{}, className string) ([]Passage, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal search response: %w", err)
	}

	var response struct {
		Get map[string][]struct {
			Content string `json:"content"`
			Source  string `json:"source"`
		} `json:"Get"`
	}
	if err := json.Unmarshal(jsonBytes, &response); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}

	objects := response.Get[className]
	passages := make([]Passage, 0, len(objects))
	for _, obj := range objects {
		if obj.Content == "" {
			continue
		}
		passages = append(passages, Passage{Content: obj.Content, Source: obj.Source})
	}
	return passages, nil
}
