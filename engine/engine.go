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

// Package engine orchestrates vote ingestion: the eligibility gate in
// front, then exactly one of two recording paths per admitted vote. The
// fast path records into the ledger behind the circuit breaker; the
// fallback path records into the durable store through its atomic
// procedure. Both converge on the count cache, the leaderboards, and the
// broadcast hub.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cliprally/cliprally/breaker"
	"github.com/cliprally/cliprally/gate"
	"github.com/cliprally/cliprally/logging"
	"github.com/cliprally/cliprally/store"
	"github.com/cliprally/cliprally/vote"
)

// Flags is the feature-flag lookup owned by the surrounding application.
type Flags interface {
	FastVotingEnabled() bool
}

// Ledger is the slice of the vote ledger the engine uses.
type Ledger interface {
	SlotOpen(ctx context.Context, itemID string) (bool, error)
	RecordIfAbsent(ctx context.Context, voterKey, itemID string, weight uint64, ttl time.Duration) (bool, error)
	TakeRecord(ctx context.Context, voterKey, itemID string) (uint64, bool, error)
	ReleaseRecord(ctx context.Context, voterKey, itemID string) error
	Increment(ctx context.Context, itemID string, weight uint64) (vote.Totals, error)
	Decrement(ctx context.Context, itemID string, weight uint64) (vote.Totals, error)
	Reconcile(ctx context.Context, itemID string, t vote.Totals) error
	ConsumeBudget(ctx context.Context, voterKey string, k vote.Kind, at time.Time) (uint64, error)
	RefundBudget(ctx context.Context, voterKey string, k vote.Kind, at time.Time) error
}

// Store is the slice of the durable store the engine uses.
type Store interface {
	CastVote(ctx context.Context, v vote.Vote) (vote.Totals, error)
	RevokeVote(ctx context.Context, itemID, voterKey string) (vote.Kind, uint64, vote.Totals, error)
}

// Scores receives rank updates. Implementations are best effort.
type Scores interface {
	UpdateItemScore(ctx context.Context, itemID string, weightedScore uint64)
	UpdateCreatorScore(ctx context.Context, accountID string, weight int64)
	UpdateVoterScore(ctx context.Context, voterKey string, weight int64)
}

// Cache is the read-through count cache's write side.
type Cache interface {
	Set(itemID string, totals vote.Totals)
	Invalidate(itemID string)
}

// Publisher fans committed totals out to connected viewers.
type Publisher interface {
	Publish(itemID string, totals vote.Totals)
}

// Deps are the engine's collaborators.
type Deps struct {
	Gate      *gate.Gate
	Flags     Flags
	Breaker   *breaker.Breaker
	Ledger    Ledger
	Store     Store
	Scores    Scores
	Cache     Cache
	Publisher Publisher
	Log       logging.Logger
}

// Options tune the engine's timeouts.
type Options struct {
	// DedupTTL bounds how long a fast-path dedup marker lives. It must
	// comfortably outlast the longest round.
	DedupTTL time.Duration
	// LedgerTimeout bounds each individual ledger call on the vote path.
	LedgerTimeout time.Duration
	// AsyncTimeout bounds the post-commit work (budget charge, ranks).
	AsyncTimeout time.Duration
}

const (
	defaultDedupTTL      = 72 * time.Hour
	defaultLedgerTimeout = 500 * time.Millisecond
	defaultAsyncTimeout  = 5 * time.Second
)

// Engine records votes. Safe for concurrent use; every inbound request
// runs on its own goroutine and correctness rests on the ledger's
// set-if-not-exists and the store's unique constraint, not on locks.
type Engine struct {
	gate      *gate.Gate
	flags     Flags
	brk       *breaker.Breaker
	ledger    Ledger
	store     Store
	scores    Scores
	cache     Cache
	publisher Publisher
	log       logging.Logger
	opts      Options

	async sync.WaitGroup
	now   func() time.Time
}

// New constructs an Engine. Zero options get defaults.
func New(deps Deps, opts Options) *Engine {
	if opts.DedupTTL == 0 {
		opts.DedupTTL = defaultDedupTTL
	}
	if opts.LedgerTimeout == 0 {
		opts.LedgerTimeout = defaultLedgerTimeout
	}
	if opts.AsyncTimeout == 0 {
		opts.AsyncTimeout = defaultAsyncTimeout
	}

	e := &Engine{
		gate:      deps.Gate,
		flags:     deps.Flags,
		brk:       deps.Breaker,
		ledger:    deps.Ledger,
		store:     deps.Store,
		scores:    deps.Scores,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		log:       deps.Log,
		opts:      opts,
		now:       time.Now,
	}
	e.brk.OnTransition(func(_, to breaker.State) {
		breakerStateGauge.Set(float64(to))
	})
	return e
}

// Cast records one vote. The feature flag picks the recording path once
// per request; the fast path may still hand the request over to the
// fallback path, but exactly one of the two commits the vote.
func (e *Engine) Cast(ctx context.Context, req gate.Request) (vote.Outcome, error) {
	if !e.flags.FastVotingEnabled() {
		return e.castSync(ctx, req)
	}

	adm, err := e.gate.Admit(ctx, req)
	if err != nil {
		return vote.Outcome{}, e.reject(err)
	}

	out, needsFallback, err := e.castFast(ctx, req, adm)
	if err != nil {
		return vote.Outcome{}, e.reject(err)
	}
	if !needsFallback {
		return out, nil
	}
	return e.castSync(ctx, req)
}

// Revoke removes a voter's vote from both representations: the durable
// row and aggregates when the vote committed through the fallback path,
// or the dedup marker and counter when it committed through the fast
// path. Budget is refunded either way.
func (e *Engine) Revoke(ctx context.Context, itemID, voterKey string) (vote.Totals, error) {
	kind, weight, totals, err := e.store.RevokeVote(ctx, itemID, voterKey)
	switch {
	case err == nil:
		e.afterRevoke(itemID, voterKey, kind, weight, totals, true)
		return totals, nil

	case errors.Is(err, store.ErrNoVote):
		// No durable row; the vote may live only in the ledger. Taking
		// the marker is get-and-delete in one step, so concurrent revokes
		// of the same vote cannot both reach the decrement.
		w, ok, lerr := e.ledger.TakeRecord(ctx, voterKey, itemID)
		if lerr != nil {
			return vote.Totals{}, lerr
		}
		if !ok {
			return vote.Totals{}, vote.ErrNotVoted
		}
		totals, lerr := e.ledger.Decrement(ctx, itemID, w)
		if lerr != nil {
			return vote.Totals{}, lerr
		}
		e.afterRevoke(itemID, voterKey, vote.KindForWeight(w), w, totals, false)
		return totals, nil

	default:
		return vote.Totals{}, err
	}
}

// afterRevoke mirrors a revoke into the remaining representations and
// the read models. durable reports which representation held the vote.
func (e *Engine) afterRevoke(itemID, voterKey string, kind vote.Kind, weight uint64, totals vote.Totals, durable bool) {
	e.cache.Invalidate(itemID)
	e.publisher.Publish(itemID, totals)

	e.async.Add(1)
	go func() {
		defer e.async.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.AsyncTimeout)
		defer cancel()

		if err := e.ledger.ReleaseRecord(ctx, voterKey, itemID); err != nil {
			e.log.Warnf("dedup marker for %s/%s not released: %v", itemID, voterKey, err)
		}
		if durable {
			if _, err := e.ledger.Decrement(ctx, itemID, weight); err != nil {
				e.log.Warnf("ledger counter for %s not decremented: %v", itemID, err)
			}
		}
		if err := e.ledger.RefundBudget(ctx, voterKey, kind, e.now()); err != nil {
			e.log.Warnf("budget refund dropped for %s: %v", voterKey, err)
		}
		e.scores.UpdateItemScore(ctx, itemID, totals.WeightedScore)
		e.scores.UpdateVoterScore(ctx, voterKey, -int64(weight))
	}()
}

// afterCommit runs the non-fatal post-commit work shared by both paths:
// cache warm, broadcast, budget charge, and rank updates. Failures here
// never surface to the voter.
func (e *Engine) afterCommit(req gate.Request, adm gate.Admission, totals vote.Totals) {
	e.cache.Set(req.ItemID, totals)
	e.publisher.Publish(req.ItemID, totals)

	e.async.Add(1)
	go func() {
		defer e.async.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.AsyncTimeout)
		defer cancel()

		if _, err := e.ledger.ConsumeBudget(ctx, req.VoterKey, adm.Kind, e.now()); err != nil {
			e.log.Warnf("budget charge dropped for %s: %v", req.VoterKey, err)
		}
		e.scores.UpdateItemScore(ctx, req.ItemID, totals.WeightedScore)
		e.scores.UpdateCreatorScore(ctx, adm.Slot.OwnerAccountID, int64(adm.Weight))
		e.scores.UpdateVoterScore(ctx, req.VoterKey, int64(adm.Weight))
	}()
}

// Flush waits for outstanding post-commit work. Used on shutdown and in
// tests.
func (e *Engine) Flush() {
	e.async.Wait()
}

// reject counts a terminal rejection and passes the error through.
func (e *Engine) reject(err error) error {
	var verr *vote.Error
	if errors.As(err, &verr) {
		votesRejectedTotal.WithLabelValues(verr.Code).Inc()
	}
	return err
}
