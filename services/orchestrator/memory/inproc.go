// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"sync"
)

// InProcStore keeps conversation logs in process memory. It backs unit tests
// and the lightweight mode used when no memory store URL is configured;
// history does not survive a restart.
type InProcStore struct {
	mu   sync.RWMutex
	logs map[string][]Turn
}

func NewInProcStore() *InProcStore {
	return &InProcStore{logs: make(map[string][]Turn)}
}

func (s *InProcStore) Ping(_ context.Context) error { return nil }

func (s *InProcStore) GetMessages(_ context.Context, identity string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.logs[identity]
	turns := make([]Turn, len(stored))
	copy(turns, stored)
	for i := range turns {
		turns[i].Sequence = int64(i)
	}
	return turns, nil
}

func (s *InProcStore) Append(_ context.Context, identity string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[identity] = append(s.logs[identity], turns...)
	return nil
}

func (s *InProcStore) Clear(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, identity)
	return nil
}
