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

	"github.com/cliprally/cliprally/gate"
	"github.com/cliprally/cliprally/vote"
)

// castSync records a vote through the durable store's atomic procedure.
// It runs when the feature flag disables fast voting, or when the fast
// path hands the request over. Eligibility is checked again here: the
// checks are read-only and cheap, and this keeps the path safe when it
// is entered directly.
func (e *Engine) castSync(ctx context.Context, req gate.Request) (vote.Outcome, error) {
	adm, err := e.gate.Admit(ctx, req)
	if err != nil {
		return vote.Outcome{}, e.reject(err)
	}

	v := vote.Vote{
		ItemID:       req.ItemID,
		VoterKey:     req.VoterKey,
		AccountID:    req.AccountID,
		Kind:         adm.Kind,
		Weight:       adm.Weight,
		SlotPosition: adm.Slot.Position,
		CastAt:       e.now().UTC(),
	}
	totals, err := e.store.CastVote(ctx, v)
	if err != nil {
		return vote.Outcome{}, e.reject(err)
	}

	// Warm the ledger with the authoritative totals so subsequent
	// fast-path reads agree with the durable store. This is a cache
	// warm, not a second increment.
	rctx, cancel := context.WithTimeout(context.Background(), e.opts.LedgerTimeout)
	if rerr := e.ledger.Reconcile(rctx, req.ItemID, totals); rerr != nil {
		e.log.With("item", req.ItemID).Warnf("ledger counter not reconciled: %v", rerr)
	}
	cancel()

	e.afterCommit(req, adm, totals)
	votesCommittedTotal.WithLabelValues(string(vote.PathSync)).Inc()

	return vote.Outcome{
		ItemID:    req.ItemID,
		Kind:      adm.Kind,
		Totals:    totals,
		Remaining: adm.Remaining.Consume(adm.Kind),
		Path:      vote.PathSync,
	}, nil
}
