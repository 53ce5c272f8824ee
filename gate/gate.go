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

// Package gate is the eligibility gate in front of both recording paths.
// It resolves the caller's identity, checks bans, self-votes, the voting
// window, and the daily vote budget, in that order, short-circuiting on
// the first failure. It only reads; budget is charged after a vote
// actually commits, so a vote that fails downstream costs nothing.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/cliprally/cliprally/logging"
	"github.com/cliprally/cliprally/vote"
)

// BanChecker reports whether an account is banned. Implemented by the
// surrounding application's identity service.
type BanChecker interface {
	IsBanned(ctx context.Context, accountID string) (bool, error)
}

// Slot is the time-boxed voting window an item belongs to, owned by the
// surrounding application and read here only.
type Slot struct {
	Position       uint64
	Status         string
	OwnerAccountID string
	EndsAt         time.Time
}

// Slot statuses as exposed by the round metadata source.
const (
	SlotOpen   = "open"
	SlotFrozen = "frozen"
)

// SlotSource resolves the active round/slot metadata for an item.
type SlotSource interface {
	ActiveSlot(ctx context.Context, itemID string) (Slot, error)
}

// BudgetSource reports how much of the daily budget a voter has spent.
type BudgetSource interface {
	BudgetSpent(ctx context.Context, voterKey string, at time.Time) (vote.Budget, error)
}

// Limits are the per-day vote ceilings per weight class.
type Limits struct {
	Standard uint64
	Boosted  uint64
	Maximal  uint64
}

// Budget converts the limits to a full, unspent budget.
func (l Limits) Budget() vote.Budget {
	return vote.Budget{Standard: l.Standard, Boosted: l.Boosted, Maximal: l.Maximal}
}

// Request identifies the vote being attempted.
type Request struct {
	ItemID    string
	VoterKey  string
	AccountID string // empty for anonymous voters
	Kind      vote.Kind
}

// Admission is the gate's grant: the resolved weight class, the slot the
// item belongs to, and the remaining budget before this vote is charged.
type Admission struct {
	Kind      vote.Kind
	Weight    uint64
	Slot      Slot
	Remaining vote.Budget
}

// Gate performs the eligibility checks.
type Gate struct {
	bans    BanChecker
	slots   SlotSource
	budgets BudgetSource
	limits  Limits
	log     logging.Logger

	now func() time.Time
}

// New constructs a Gate.
func New(bans BanChecker, slots SlotSource, budgets BudgetSource, limits Limits, log logging.Logger) *Gate {
	return &Gate{
		bans:    bans,
		slots:   slots,
		budgets: budgets,
		limits:  limits,
		log:     log,
		now:     time.Now,
	}
}

// Admit runs the checks in order: ban, self-vote, voting window, budget.
// The ban check runs first, so a banned self-voter is reported as banned.
// All checks read current state; nothing is mutated here.
func (g *Gate) Admit(ctx context.Context, req Request) (Admission, error) {
	if req.AccountID != "" {
		banned, err := g.bans.IsBanned(ctx, req.AccountID)
		if err != nil {
			return Admission{}, fmt.Errorf("ban lookup for %s: %w", req.AccountID, err)
		}
		if banned {
			return Admission{}, vote.ErrUserBanned
		}
	}

	slot, err := g.slots.ActiveSlot(ctx, req.ItemID)
	if err != nil {
		return Admission{}, fmt.Errorf("slot lookup for %s: %w", req.ItemID, err)
	}

	if req.AccountID != "" && slot.OwnerAccountID == req.AccountID {
		return Admission{}, vote.ErrSelfVote
	}

	now := g.now()
	if slot.Status != SlotOpen || !now.Before(slot.EndsAt) {
		return Admission{}, vote.ErrClosed
	}

	spent, err := g.budgets.BudgetSpent(ctx, req.VoterKey, now)
	if err != nil {
		return Admission{}, fmt.Errorf("budget lookup for %s: %w", req.VoterKey, err)
	}
	remaining := remainingBudget(g.limits, spent)

	if remaining.Remaining(req.Kind) == 0 {
		if req.Kind == vote.KindStandard {
			return Admission{}, vote.DailyLimitError(remaining)
		}
		return Admission{}, vote.BoostLimitError(remaining)
	}

	return Admission{
		Kind:      req.Kind,
		Weight:    req.Kind.Weight(),
		Slot:      slot,
		Remaining: remaining,
	}, nil
}

func remainingBudget(l Limits, spent vote.Budget) vote.Budget {
	return vote.Budget{
		Standard: sub(l.Standard, spent.Standard),
		Boosted:  sub(l.Boosted, spent.Boosted),
		Maximal:  sub(l.Maximal, spent.Maximal),
	}
}

func sub(limit, spent uint64) uint64 {
	if spent >= limit {
		return 0
	}
	return limit - spent
}
