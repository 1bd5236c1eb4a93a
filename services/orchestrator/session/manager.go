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
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIdleTTL evicts sessions untouched for this long. Eviction only
	// drops in-process handles; conversation memory is durable and the next
	// Resolve rebuilds an equivalent state.
	DefaultIdleTTL = 30 * time.Minute

	// DefaultReapInterval is how often the reaper scans for idle sessions.
	DefaultReapInterval = 1 * time.Minute
)

// Options tune the manager. The zero value gives the defaults above.
type Options struct {
	// IdleTTL is how long a session may go unused before eviction.
	// Zero means DefaultIdleTTL; negative disables idle eviction.
	IdleTTL time.Duration

	// ReapInterval is the scan period for the eviction loop.
	ReapInterval time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time

	// OnBuild and OnEvict are invoked after a successful construction and
	// after each eviction. Used to keep gauges honest.
	OnBuild func(identity string)
	OnEvict func(identity string)
}

// Manager hands out session states keyed by identity. Concurrent Resolve
// calls for the same unknown identity collapse into exactly one
// construction; everyone gets the same *State or the same error. Failed
// builds are never cached.
type Manager struct {
	builder *Builder
	opts    Options

	mu       sync.RWMutex
	sessions map[string]*State
	group    singleflight.Group

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewManager wires a manager around the builder and starts the idle reaper
// unless eviction is disabled.
func NewManager(builder *Builder, opts Options) (*Manager, error) {
	if builder == nil {
		return nil, errors.New("builder is nil")
	}
	if err := builder.validate(); err != nil {
		return nil, err
	}
	if opts.IdleTTL == 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		builder:  builder,
		opts:     opts,
		sessions: make(map[string]*State),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if opts.IdleTTL > 0 {
		go m.reapLoop()
	} else {
		close(m.done)
	}
	return m, nil
}

// Resolve returns the live state for the identity, constructing it exactly
// once under concurrency. The fast path is a read-locked map hit.
func (m *Manager) Resolve(ctx context.Context, identity string) (*State, error) {
	m.mu.RLock()
	state, ok := m.sessions[identity]
	m.mu.RUnlock()
	if ok {
		state.Touch(m.opts.Now())
		return state, nil
	}

	ctx, span := sessionTracer.Start(ctx, "Manager.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("session.identity", identity))

	v, err, shared := m.group.Do(identity, func() (any, error) {
		// Re-check under the write path: another flight may have finished
		// between our read miss and this callback.
		m.mu.RLock()
		existing, ok := m.sessions[identity]
		m.mu.RUnlock()
		if ok {
			return existing, nil
		}

		built, err := m.builder.Build(ctx, identity)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.sessions[identity] = built
		m.mu.Unlock()

		if m.opts.OnBuild != nil {
			m.opts.OnBuild(identity)
		}
		slog.Info("Session constructed", "identity", identity)
		return built, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("session.shared_flight", shared))

	state = v.(*State)
	state.Touch(m.opts.Now())
	return state, nil
}

// Invalidate drops the identity's cached state. The next Resolve constructs
// a distinct state; in-flight requests on the old one finish undisturbed.
func (m *Manager) Invalidate(identity string) {
	m.mu.Lock()
	_, ok := m.sessions[identity]
	delete(m.sessions, identity)
	m.mu.Unlock()

	if ok {
		if m.opts.OnEvict != nil {
			m.opts.OnEvict(identity)
		}
		slog.Info("Session invalidated", "identity", identity)
	}
}

// Has reports whether the identity currently has a cached state.
func (m *Manager) Has(identity string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[identity]
	return ok
}

// Len reports how many sessions are currently cached.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the reaper and drops all sessions. Safe to call twice.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	<-m.done

	m.mu.Lock()
	evicted := make([]string, 0, len(m.sessions))
	for identity := range m.sessions {
		evicted = append(evicted, identity)
	}
	m.sessions = make(map[string]*State)
	m.mu.Unlock()

	if m.opts.OnEvict != nil {
		for _, identity := range evicted {
			m.opts.OnEvict(identity)
		}
	}
}

func (m *Manager) reapLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

// reapIdle evicts every session idle longer than the TTL.
func (m *Manager) reapIdle() {
	now := m.opts.Now()
	cutoff := now.Add(-m.opts.IdleTTL)

	m.mu.Lock()
	var evicted []string
	for identity, state := range m.sessions {
		if state.LastUsed().Before(cutoff) {
			delete(m.sessions, identity)
			evicted = append(evicted, identity)
		}
	}
	m.mu.Unlock()

	for _, identity := range evicted {
		if m.opts.OnEvict != nil {
			m.opts.OnEvict(identity)
		}
		slog.Info("Idle session evicted", "identity", identity, "idle_ttl", m.opts.IdleTTL)
	}
}
