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

// Package scores maintains the ordered rank structures consumed by the
// leaderboard read endpoints: items by weighted score, creators and
// voters by accumulated weight. Updates are best effort; a failure here
// never rolls back a committed vote.
package scores

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cliprally/cliprally/logging"
)

// The leaderboards.
const (
	BoardItems    = "items"
	BoardCreators = "creators"
	BoardVoters   = "voters"
)

const updateAttempts = 3

func rankKey(board string) string { return "rank:" + board }

// Entry is one leaderboard row.
type Entry struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Updater writes rank updates to the ledger's sorted sets.
type Updater struct {
	rdb *redis.Client
	log logging.Logger
}

// New constructs an Updater sharing the ledger's connection.
func New(rdb *redis.Client, log logging.Logger) *Updater {
	return &Updater{rdb: rdb, log: log}
}

// UpdateItemScore sets the item's rank score to its current weighted
// score. The value is absolute, not a delta, so replays are harmless.
func (u *Updater) UpdateItemScore(ctx context.Context, itemID string, weightedScore uint64) {
	u.update(ctx, "item rank", func(ctx context.Context) error {
		return u.rdb.ZAdd(ctx, rankKey(BoardItems), redis.Z{Score: float64(weightedScore), Member: itemID}).Err()
	})
}

// UpdateCreatorScore credits the item's creator with the vote weight.
func (u *Updater) UpdateCreatorScore(ctx context.Context, accountID string, weight int64) {
	if accountID == "" {
		return
	}
	u.update(ctx, "creator rank", func(ctx context.Context) error {
		return u.rdb.ZIncrBy(ctx, rankKey(BoardCreators), float64(weight), accountID).Err()
	})
}

// UpdateVoterScore credits the voter for participating.
func (u *Updater) UpdateVoterScore(ctx context.Context, voterKey string, weight int64) {
	u.update(ctx, "voter rank", func(ctx context.Context) error {
		return u.rdb.ZIncrBy(ctx, rankKey(BoardVoters), float64(weight), voterKey).Err()
	})
}

// update retries a few times and then gives up with a log line. Rank
// drift self-heals on the item board (absolute scores) and is tolerable
// on the incremental boards.
func (u *Updater) update(ctx context.Context, what string, fn func(ctx context.Context) error) {
	var err error
	for i := 0; i < updateAttempts; i++ {
		if err = fn(ctx); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			u.log.Warnf("%s update abandoned: %v", what, ctx.Err())
			return
		case <-time.After(time.Duration(i+1) * 50 * time.Millisecond):
		}
	}
	u.log.Warnf("%s update dropped after %d attempts: %v", what, updateAttempts, err)
}

// Top returns the highest-scored entries of a board.
func (u *Updater) Top(ctx context.Context, board string, n int64) ([]Entry, error) {
	switch board {
	case BoardItems, BoardCreators, BoardVoters:
	default:
		return nil, fmt.Errorf("unknown leaderboard %q", board)
	}
	zs, err := u.rdb.ZRevRangeWithScores(ctx, rankKey(board), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		entries = append(entries, Entry{ID: id, Score: z.Score})
	}
	return entries, nil
}
