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

package voted

import (
	"context"
	"errors"
	"time"

	"github.com/cliprally/cliprally/breaker"
	"github.com/cliprally/cliprally/gate"
	"github.com/cliprally/cliprally/ledger"
	"github.com/cliprally/cliprally/logging"
	"github.com/cliprally/cliprally/store"
	"github.com/cliprally/cliprally/vote"
)

// configFlags serves the engine's feature flag from the loaded config.
type configFlags struct {
	fastVoting bool
}

func (f configFlags) FastVotingEnabled() bool { return f.fastVoting }

// storeSlots resolves round metadata from the items table.
type storeSlots struct {
	store *store.VoteStore
}

func (s storeSlots) ActiveSlot(ctx context.Context, itemID string) (gate.Slot, error) {
	item, err := s.store.Item(ctx, itemID)
	if err != nil {
		return gate.Slot{}, err
	}
	return gate.Slot{
		Position:       item.SlotPosition,
		Status:         item.Status,
		OwnerAccountID: item.AccountID,
		EndsAt:         item.EndsAt,
	}, nil
}

// budgetSource reads spent budget from the ledger's counters, falling
// back to counting durable vote rows when the ledger is open-circuited
// or failing. The ledger counters are the authoritative running tally;
// the store scan is the degraded-mode approximation.
type budgetSource struct {
	brk    *breaker.Breaker
	ledger *ledger.Client
	store  *store.VoteStore
	log    logging.Logger
}

func (b budgetSource) BudgetSpent(ctx context.Context, voterKey string, at time.Time) (vote.Budget, error) {
	if b.brk.State() != breaker.Open {
		spent, err := b.ledger.BudgetSpent(ctx, voterKey, at)
		if err == nil {
			return spent, nil
		}
		if !errors.Is(err, context.Canceled) {
			b.log.Warnf("ledger budget lookup for %s failed, counting store rows: %v", voterKey, err)
		}
	}
	return b.store.BudgetSpent(ctx, voterKey, at)
}
