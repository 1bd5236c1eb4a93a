// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ch <-chan string) []string {
	var chunks []string
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestChunks_ConcatenationReproducesText(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want int
	}{
		{"empty", "", 8, 0},
		{"shorter than chunk", "hi", 8, 1},
		{"exact multiple", "abcdefgh", 4, 2},
		{"remainder chunk", "abcdefghi", 4, 3},
		{"single char chunks", "abc", 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunks(tt.text, tt.size)
			assert.Len(t, chunks, tt.want)
			assert.Equal(t, tt.text, strings.Join(chunks, ""))
		})
	}
}

func TestChunks_NeverSplitsMultiByteRunes(t *testing.T) {
	text := "día soleado 🐶 mañana habrá perros en el refugio"
	chunks := Chunks(text, 5)

	assert.Equal(t, text, strings.Join(chunks, ""))
	for i, chunk := range chunks {
		assert.True(t, strings.ToValidUTF8(chunk, "") == chunk,
			"chunk %d is not valid UTF-8: %q", i, chunk)
	}
}

func TestStream_EmitsFiniteOrderedSequence(t *testing.T) {
	s := New(4, 0)
	chunks := collect(s.Stream(context.Background(), "abcdefghij"))

	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunks)
}

func TestStream_EmptyTextClosesImmediately(t *testing.T) {
	s := New(4, 0)

	select {
	case _, ok := <-s.Stream(context.Background(), ""):
		assert.False(t, ok, "channel must close without emitting")
	case <-time.After(time.Second):
		t.Fatal("stream did not close")
	}
}

func TestStream_CancellationStopsEmission(t *testing.T) {
	s := New(1, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.Stream(ctx, strings.Repeat("x", 1000))

	// Read a few chunks, then walk away.
	for i := 0; i < 3; i++ {
		_, ok := <-ch
		require.True(t, ok)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	received := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				assert.Less(t, received, 997, "cancellation must stop the sequence early")
				return
			}
			received++
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}

func TestStream_PacingDelaysChunks(t *testing.T) {
	interval := 20 * time.Millisecond
	s := New(1, interval)

	start := time.Now()
	chunks := collect(s.Stream(context.Background(), "abcde"))
	elapsed := time.Since(start)

	assert.Len(t, chunks, 5)
	// First chunk is immediate, the remaining four wait one interval each.
	assert.GreaterOrEqual(t, elapsed, 4*interval)
}

func TestNew_NonPositiveChunkSizeUsesDefault(t *testing.T) {
	s := New(0, 0)
	chunks := collect(s.Stream(context.Background(), strings.Repeat("a", DefaultChunkSize+1)))
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], DefaultChunkSize)
}
