// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// batchSize is the number of passages imported per batch call.
const batchSize = 100

// passage is one corpus fragment headed for the index.
type passage struct {
	Content string
	Source  string
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := newClient(weaviateURL)
	if err != nil {
		return err
	}
	if err := ensureSchema(ctx, client); err != nil {
		return err
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	var passages []passage
	for _, root := range args {
		found, err := collectPassages(root, splitter)
		if err != nil {
			return err
		}
		passages = append(passages, found...)
	}
	if len(passages) == 0 {
		return fmt.Errorf("no text files found under %s", strings.Join(args, ", "))
	}

	indexed, err := indexPassages(ctx, client, passages)
	if err != nil {
		return fmt.Errorf("indexed %d of %d passages: %w", indexed, len(passages), err)
	}
	slog.Info("Corpus ingested", "passages", indexed, "class", className)
	return nil
}

func newClient(endpoint string) (*weaviate.Client, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", endpoint)
	}
	return weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
}

// documentSchema is the class the orchestrator's retriever queries.
// Vectorization happens server-side so the seeder never touches an
// embedding model.
func documentSchema() *models.Class {
	return &models.Class{
		Class:       className,
		Description: "Knowledge base passages for the support assistant",
		Vectorizer:  "text2vec-openai",
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Passage text",
				Tokenization: "word",
			},
			{
				Name:         "source",
				DataType:     []string{"text"},
				Description:  "Originating file path",
				Tokenization: "field",
			},
		},
	}
}

// ensureSchema creates the document class if it does not exist. Idempotent.
func ensureSchema(ctx context.Context, client *weaviate.Client) error {
	_, err := client.Schema().ClassGetter().WithClassName(className).Do(ctx)
	if err == nil {
		slog.Info("Schema already exists", "class", className)
		return nil
	}

	slog.Info("Creating schema", "class", className)
	if err := client.Schema().ClassCreator().WithClass(documentSchema()).Do(ctx); err != nil {
		return fmt.Errorf("creating %s schema: %w", className, err)
	}
	return nil
}

// collectPassages walks the path and splits every plain text file into
// overlapping passages.
func collectPassages(root string, splitter textsplitter.TextSplitter) ([]passage, error) {
	var passages []passage

	walk := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isTextFile(path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		chunks, err := splitter.SplitText(string(data))
		if err != nil {
			return fmt.Errorf("splitting %s: %w", path, err)
		}
		for _, chunk := range chunks {
			passages = append(passages, passage{Content: chunk, Source: path})
		}
		slog.Info("Split file", "path", path, "passages", len(chunks))
		return nil
	}

	if err := filepath.WalkDir(root, walk); err != nil {
		return nil, err
	}
	return passages, nil
}

func isTextFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// indexPassages batch imports passages, returning how many the server
// accepted.
func indexPassages(ctx context.Context, client *weaviate.Client, passages []passage) (int, error) {
	indexed := 0

	for i := 0; i < len(passages); i += batchSize {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}

		end := i + batchSize
		if end > len(passages) {
			end = len(passages)
		}
		batch := passages[i:end]

		objects := make([]*models.Object, len(batch))
		for j, p := range batch {
			objects[j] = &models.Object{
				Class: className,
				Properties: map[string]interface{}{
					"content": p.Content,
					"source":  p.Source,
				},
			}
		}

		result, err := client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return indexed, fmt.Errorf("batch import failed: %w", err)
		}
		for _, obj := range result {
			if obj.Result != nil && obj.Result.Errors == nil {
				indexed++
			}
		}
		slog.Info("Indexed batch", "count", len(batch), "total_indexed", indexed)
	}

	return indexed, nil
}
