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

// Package vote holds the domain types shared by the vote ingestion engine:
// the vote record itself, weight classes, aggregate totals, and the daily
// voter budget.
package vote

import (
	"fmt"
	"time"
)

// Kind is the weight class of a vote.
type Kind string

// The three weight classes a voter may spend.
const (
	KindStandard Kind = "standard"
	KindBoosted  Kind = "boosted"
	KindMaximal  Kind = "maximal"
)

// Vote weights per kind. The weighted score of an item is the sum of the
// weights of its committed votes, distinct from the raw count.
const (
	WeightStandard uint64 = 1
	WeightBoosted  uint64 = 3
	WeightMaximal  uint64 = 10
)

// Weight returns the score multiplier for the kind.
func (k Kind) Weight() uint64 {
	switch k {
	case KindBoosted:
		return WeightBoosted
	case KindMaximal:
		return WeightMaximal
	default:
		return WeightStandard
	}
}

// KindForWeight maps a stored weight back to its kind.
func KindForWeight(w uint64) Kind {
	switch w {
	case WeightBoosted:
		return KindBoosted
	case WeightMaximal:
		return KindMaximal
	default:
		return KindStandard
	}
}

// ParseKind maps a request weight class to a Kind. The empty string means
// a standard vote.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindStandard:
		return KindStandard, nil
	case KindBoosted:
		return KindBoosted, nil
	case KindMaximal:
		return KindMaximal, nil
	}
	return "", fmt.Errorf("unknown weight class %q", s)
}

// Vote is the atomic fact of one voter endorsing one content item in one
// round. At most one Vote exists per (VoterKey, ItemID) pair; it is never
// updated, only created by one of the two recording paths or removed by an
// explicit revoke.
type Vote struct {
	ItemID       string    `db:"item_id"`
	VoterKey     string    `db:"voter_key"`
	AccountID    string    `db:"account_id"` // empty for anonymous voters
	Kind         Kind      `db:"kind"`
	Weight       uint64    `db:"weight"`
	SlotPosition uint64    `db:"slot_position"`
	CastAt       time.Time `db:"cast_at"`
}

// Totals is the denormalized tally of an item: raw vote count and
// weighted score.
type Totals struct {
	Count         uint64 `db:"vote_count" json:"count"`
	WeightedScore uint64 `db:"weighted_score" json:"weightedScore"`
}

// Budget is a voter's remaining daily capacity per weight class.
type Budget struct {
	Standard uint64 `json:"standard"`
	Boosted  uint64 `json:"boosted"`
	Maximal  uint64 `json:"maximal"`
}

// Consume returns the budget with one unit of the given kind spent.
func (b Budget) Consume(k Kind) Budget {
	switch k {
	case KindBoosted:
		if b.Boosted > 0 {
			b.Boosted--
		}
	case KindMaximal:
		if b.Maximal > 0 {
			b.Maximal--
		}
	default:
		if b.Standard > 0 {
			b.Standard--
		}
	}
	return b
}

// Remaining returns the capacity left for the given kind.
func (b Budget) Remaining(k Kind) uint64 {
	switch k {
	case KindBoosted:
		return b.Boosted
	case KindMaximal:
		return b.Maximal
	default:
		return b.Standard
	}
}

// Path identifies which recording path committed a vote.
type Path string

// The two mutually exclusive recording paths.
const (
	PathFast Path = "fast"
	PathSync Path = "sync"
)

// Outcome reports a committed vote back to the caller.
type Outcome struct {
	ItemID    string
	Kind      Kind
	Totals    Totals
	Remaining Budget
	Path      Path
}
