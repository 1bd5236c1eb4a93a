// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream delivers a completed answer as an ordered, paced sequence
// of fixed-size chunks so long answers start appearing before the full text
// is written out.
package stream

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultChunkSize is the number of characters per chunk.
	DefaultChunkSize = 24
)

// Streamer slices answers into chunks and paces their emission. The zero
// interval emits as fast as the consumer reads.
type Streamer struct {
	chunkSize int
	limiter   func() *rate.Limiter
}

// New creates a Streamer emitting chunks of chunkSize characters, with at
// most one chunk per interval. A non-positive chunkSize falls back to the
// default.
func New(chunkSize int, interval time.Duration) *Streamer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	s := &Streamer{chunkSize: chunkSize}
	if interval > 0 {
		s.limiter = func() *rate.Limiter {
			return rate.NewLimiter(rate.Every(interval), 1)
		}
	}
	return s
}

// Stream produces the chunk sequence for text. The returned channel is
// closed once every chunk has been sent, making the sequence finite; each
// call produces a fresh, non-restartable sequence. Concatenating the
// received chunks in order reproduces text exactly.
//
// Cancelling ctx stops emission after the in-flight chunk; the channel is
// closed and no error is surfaced, since a disconnecting caller is not an
// error condition.
func (s *Streamer) Stream(ctx context.Context, text string) <-chan string {
	out := make(chan string)
	chunks := Chunks(text, s.chunkSize)

	var limiter *rate.Limiter
	if s.limiter != nil {
		limiter = s.limiter()
	}

	go func() {
		defer close(out)
		for _, chunk := range chunks {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Chunks splits text into ceil(len/size) non-overlapping slices in order.
// Slicing is rune-aware so multi-byte characters are never split across
// chunk boundaries.
func Chunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
