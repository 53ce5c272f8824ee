// Copyright (C) 2025-2026 Cliprally, Inc.
// This file is part of cliprally
//
// cliprally is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// cliprally is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with cliprally.  If not, see <https://www.gnu.org/licenses/>.

// Package breaker implements a process-local circuit breaker. It guards
// the fast path's calls into the ledger: failures within a rolling window
// trip it open, rejecting calls immediately; after a cool-down a single
// trial call decides whether it closes again.
//
// State is deliberately process-local. Each instance of the engine makes
// its own fast/fallback routing decision, so a fleet degrades
// independently per instance.
package breaker

import (
	"errors"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/cliprally/cliprally/logging"
)

// ErrOpen is returned when the breaker rejects a call without attempting
// the wrapped operation.
var ErrOpen = errors.New("breaker: open")

// State is the breaker's position in its lifecycle.
type State int

// Breaker states.
const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker wraps calls to a failure-prone dependency. The zero value is
// not usable; construct with New.
type Breaker struct {
	mu deadlock.Mutex

	state          State
	failures       int
	windowStart    time.Time
	lastTransition time.Time
	trialInFlight  bool

	threshold int
	window    time.Duration
	cooldown  time.Duration

	onTransition func(from, to State)
	now          func() time.Time
	log          logging.Logger
}

// New returns a Closed breaker. It trips Open once threshold failures
// accumulate within window, and allows a half-open trial after cooldown.
func New(threshold int, window, cooldown time.Duration, log logging.Logger) *Breaker {
	return &Breaker{
		state:     Closed,
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		now:       time.Now,
		log:       log,
	}
}

// OnTransition registers a callback invoked (under the breaker lock) on
// every state change. Used to export the state as a metric.
func (b *Breaker) OnTransition(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call runs op unless the breaker is rejecting calls, in which case it
// returns ErrOpen without invoking op. Any error from op counts as a
// failure; nil counts as a success.
func (b *Breaker) Call(op func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	err := op()
	if err != nil {
		b.failure(err)
	} else {
		b.success()
	}
	return err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case Closed:
		return nil
	case Open:
		if now.Sub(b.lastTransition) < b.cooldown {
			return ErrOpen
		}
		b.transition(HalfOpen, now)
		b.trialInFlight = true
		return nil
	default: // HalfOpen
		if b.trialInFlight {
			return ErrOpen
		}
		b.trialInFlight = true
		return nil
	}
}

func (b *Breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.trialInFlight = false
		b.transition(Closed, b.now())
		b.log.With("breaker", "ledger").Info("trial call succeeded, breaker closed")
	}
	b.failures = 0
}

func (b *Breaker) failure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case HalfOpen:
		b.trialInFlight = false
		b.transition(Open, now)
		b.log.With("breaker", "ledger").Warnf("trial call failed, breaker reopened: %v", err)
	case Closed:
		if now.Sub(b.windowStart) > b.window {
			b.windowStart = now
			b.failures = 0
		}
		b.failures++
		if b.failures >= b.threshold {
			b.transition(Open, now)
			b.log.With("breaker", "ledger").Warnf("failure threshold reached (%d in %v), breaker opened: %v",
				b.failures, b.window, err)
		}
	}
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	b.state = to
	b.lastTransition = now
	if to == Closed {
		b.failures = 0
	}
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}
