// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command seeder ingests a knowledge corpus into the Weaviate index the
// orchestrator retrieves from.
//
// Usage:
//
//	seeder ingest ./docs/shelter-info.txt
//	seeder ingest --class ShelterDocument --chunk-size 500 ./docs
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	weaviateURL  string
	className    string
	chunkSize    int
	chunkOverlap int

	rootCmd = &cobra.Command{
		Use:   "seeder",
		Short: "Populate the ShelterChat knowledge base",
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest [file or directory path]",
		Short: "Split local text files into passages and load them into Weaviate",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&weaviateURL, "weaviate-url",
		envOr("WEAVIATE_SERVICE_URL", "http://localhost:8080"), "Weaviate endpoint")
	ingestCmd.Flags().StringVar(&className, "class", "ShelterDocument", "Weaviate class to populate")
	ingestCmd.Flags().IntVar(&chunkSize, "chunk-size", 500, "Passage size in characters")
	ingestCmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 100, "Overlap between adjacent passages")
	rootCmd.AddCommand(ingestCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
