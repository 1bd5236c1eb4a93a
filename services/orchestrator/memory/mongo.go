// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var memTracer = otel.Tracer("shelterchat.orchestrator.memory")

const (
	defaultDatabase   = "memory"
	defaultCollection = "history"
	connectTimeout    = 10 * time.Second
)

// historyDoc is the persisted layout: one document per identity holding the
// full ordered message list. Appends use $push so arrival order is kept even
// under concurrent writers.
type historyDoc struct {
	ID       string      `bson:"_id"`
	Messages []storedMsg `bson:"messages"`
}

type storedMsg struct {
	Role      Role   `bson:"role"`
	Content   string `bson:"content"`
	Timestamp int64  `bson:"ts"`
}

// MongoStore is the MongoDB-backed conversation memory.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to the memory store at connectionURL and verifies
// the connection before returning.
func NewMongoStore(ctx context.Context, connectionURL string) (*MongoStore, error) {
	if connectionURL == "" {
		return nil, fmt.Errorf("mongo connection URL is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to memory store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("memory store unreachable: %w", err)
	}

	slog.Info("Connected to the conversation memory store")
	return &MongoStore{
		client:     client,
		collection: client.Database(defaultDatabase).Collection(defaultCollection),
	}, nil
}

// Ping implements Store.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("memory store ping failed: %w", err)
	}
	return nil
}

// GetMessages implements Store. Sequence numbers are assigned from the
// stored array position, which is the authoritative order.
func (s *MongoStore) GetMessages(ctx context.Context, identity string) ([]Turn, error) {
	ctx, span := memTracer.Start(ctx, "MongoStore.GetMessages")
	defer span.End()
	span.SetAttributes(attribute.String("identity", identity))

	var doc historyDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": identity}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []Turn{}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history read failed")
		return nil, fmt.Errorf("failed to read history for %q: %w", identity, err)
	}

	turns := make([]Turn, 0, len(doc.Messages))
	for i, m := range doc.Messages {
		turns = append(turns, Turn{
			Role:     m.Role,
			Content:  m.Content,
			Sequence: int64(i),
		})
	}
	span.SetAttributes(attribute.Int("turns", len(turns)))
	return turns, nil
}

// Append implements Store.
func (s *MongoStore) Append(ctx context.Context, identity string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	ctx, span := memTracer.Start(ctx, "MongoStore.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("identity", identity),
		attribute.Int("turns", len(turns)),
	)

	now := time.Now().UnixMilli()
	msgs := make([]storedMsg, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, storedMsg{Role: t.Role, Content: t.Content, Timestamp: now})
	}

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": identity},
		bson.M{"$push": bson.M{"messages": bson.M{"$each": msgs}}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history append failed")
		return &AppendError{Identity: identity, Err: err}
	}
	return nil
}

// Clear implements Store. Deleting a missing document is not an error.
func (s *MongoStore) Clear(ctx context.Context, identity string) error {
	ctx, span := memTracer.Start(ctx, "MongoStore.Clear")
	defer span.End()
	span.SetAttributes(attribute.String("identity", identity))

	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": identity}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history clear failed")
		return fmt.Errorf("failed to clear history for %q: %w", identity, err)
	}
	slog.Info("Cleared conversation history", "identity", identity)
	return nil
}

// Close disconnects from the memory store.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
