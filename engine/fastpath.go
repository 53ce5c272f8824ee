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

package engine

import (
	"context"
	"errors"

	"github.com/cliprally/cliprally/breaker"
	"github.com/cliprally/cliprally/gate"
	"github.com/cliprally/cliprally/vote"
)

// castFast records a vote through the ledger, guarded by the circuit
// breaker. It returns needsFallback=true (with no error) whenever the
// ledger cannot serve the vote: breaker open, missing round state, or a
// ledger failure. The counter is only ever incremented after this
// request claimed the dedup marker, so an increment here and a fallback
// insert can never both happen for the same vote.
func (e *Engine) castFast(ctx context.Context, req gate.Request, adm gate.Admission) (vote.Outcome, bool, error) {
	// validate live round state
	var open bool
	err := e.brk.Call(func() error {
		lctx, cancel := context.WithTimeout(ctx, e.opts.LedgerTimeout)
		defer cancel()
		var err error
		open, err = e.ledger.SlotOpen(lctx, req.ItemID)
		return err
	})
	if err != nil {
		return vote.Outcome{}, true, e.fallBack(req.ItemID, err)
	}
	if !open {
		fallbackTotal.WithLabelValues("no_state").Inc()
		return vote.Outcome{}, true, nil
	}

	// claim the dedup marker
	var claimed bool
	err = e.brk.Call(func() error {
		lctx, cancel := context.WithTimeout(ctx, e.opts.LedgerTimeout)
		defer cancel()
		var err error
		claimed, err = e.ledger.RecordIfAbsent(lctx, req.VoterKey, req.ItemID, adm.Weight, e.opts.DedupTTL)
		return err
	})
	if err != nil {
		return vote.Outcome{}, true, e.fallBack(req.ItemID, err)
	}
	if !claimed {
		return vote.Outcome{}, false, vote.ErrDuplicate
	}

	// The marker is ours: finish the write even if the client has gone
	// away, so the marker never exists without its counter increment.
	var totals vote.Totals
	err = e.brk.Call(func() error {
		lctx, cancel := context.WithTimeout(context.Background(), e.opts.LedgerTimeout)
		defer cancel()
		var err error
		totals, err = e.ledger.Increment(lctx, req.ItemID, adm.Weight)
		return err
	})
	if err != nil {
		// The increment did not happen. The fallback insert takes over;
		// reconciliation after its commit repairs the counter.
		return vote.Outcome{}, true, e.fallBack(req.ItemID, err)
	}

	e.afterCommit(req, adm, totals)
	votesCommittedTotal.WithLabelValues(string(vote.PathFast)).Inc()

	return vote.Outcome{
		ItemID:    req.ItemID,
		Kind:      adm.Kind,
		Totals:    totals,
		Remaining: adm.Remaining.Consume(adm.Kind),
		Path:      vote.PathFast,
	}, false, nil
}

// fallBack classifies why the fast path is handing over and absorbs the
// ledger error; transient infrastructure failures are never surfaced to
// the voter.
func (e *Engine) fallBack(itemID string, err error) error {
	if errors.Is(err, breaker.ErrOpen) {
		fallbackTotal.WithLabelValues("breaker_open").Inc()
		return nil
	}
	fallbackTotal.WithLabelValues("ledger_error").Inc()
	e.log.With("item", itemID).With("breaker", e.brk.State().String()).
		Warnf("ledger unavailable, using durable path: %v", err)
	return nil
}
