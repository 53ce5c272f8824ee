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

// Package ledger is the client for the cache-backed distributed vote
// ledger. It holds per-item counters (merge rule: sum, so concurrent
// increments from any number of handlers commute), per-voter dedup
// markers, and per-day vote budgets.
//
// The ledger is not the system of record. Counters are reconcilable from
// the relational store at any time, and the fallback path overwrites them
// with the authoritative totals after a durable commit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cliprally/cliprally/logging"
	"github.com/cliprally/cliprally/vote"
)

// Key layout. Counters live in a hash per item so count and score move
// together in one round trip.
const (
	itemKeyPrefix   = "item:"   // hash: count, score
	slotKeyPrefix   = "slot:"   // string: "open", expires at round close
	votedKeyPrefix  = "voted:"  // string: vote weight, the dedup marker
	budgetKeyPrefix = "budget:" // string: votes spent today per class
	bannedKey       = "banned"  // set of banned account ids
)

const (
	countField = "count"
	scoreField = "score"
)

// Options configures the connection to the ledger.
type Options struct {
	Addr           string
	Password       string
	DB             int
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// Client talks to the ledger. Safe for concurrent use.
type Client struct {
	rdb *redis.Client
	log logging.Logger
}

// Dial connects to the ledger at opts.Addr.
func Dial(opts Options, log logging.Logger) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.RequestTimeout,
		WriteTimeout: opts.RequestTimeout,
	})
	return &Client{rdb: rdb, log: log}
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Redis returns the underlying connection, shared with the scores package.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

func itemKey(itemID string) string { return itemKeyPrefix + itemID }
func slotKey(itemID string) string { return slotKeyPrefix + itemID }

func votedKey(voterKey, itemID string) string {
	return votedKeyPrefix + itemID + ":" + voterKey
}

func budgetKey(voterKey string, day string, k vote.Kind) string {
	return fmt.Sprintf("%s%s:%s:%s", budgetKeyPrefix, voterKey, day, k)
}

func dayKey(at time.Time) string {
	return at.UTC().Format("20060102")
}

// nextMidnight returns the UTC day boundary after at, when daily budgets
// reset.
func nextMidnight(at time.Time) time.Time {
	u := at.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

// SeedSlot marks the item's round as open for fast-path validation until
// endsAt. The surrounding application calls this when a round opens;
// absence of the key routes votes to the fallback path.
func (c *Client) SeedSlot(ctx context.Context, itemID string, endsAt time.Time) error {
	ttl := time.Until(endsAt)
	if ttl <= 0 {
		return fmt.Errorf("slot for %s already ended at %v", itemID, endsAt)
	}
	return c.rdb.Set(ctx, slotKey(itemID), "open", ttl).Err()
}

// SlotOpen reports whether the ledger holds live round state for the item.
// A missing or expired key is not an error; it means the fast path cannot
// validate and the caller must use the fallback path.
func (c *Client) SlotOpen(ctx context.Context, itemID string) (bool, error) {
	val, err := c.rdb.Get(ctx, slotKey(itemID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "open", nil
}

// RecordIfAbsent atomically claims the dedup marker for (voterKey, itemID).
// It returns true when this call claimed the marker, false when the voter
// already voted. The marker stores the vote weight so a later revoke can
// undo the counter without consulting the durable store.
func (c *Client) RecordIfAbsent(ctx context.Context, voterKey, itemID string, weight uint64, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, votedKey(voterKey, itemID), strconv.FormatUint(weight, 10), ttl).Result()
}

// TakeRecord atomically removes the dedup marker and returns the weight
// it stored, or false when the voter has no fast-path vote on the item.
// Get-and-delete in one command, so two concurrent revokes cannot both
// observe the marker and decrement the counter twice.
func (c *Client) TakeRecord(ctx context.Context, voterKey, itemID string) (uint64, bool, error) {
	val, err := c.rdb.GetDel(ctx, votedKey(voterKey, itemID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	w, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt dedup marker for %s/%s: %w", itemID, voterKey, err)
	}
	return w, true, nil
}

// ReleaseRecord removes the dedup marker, allowing the voter to vote on
// the item again. Only the revoke operation calls this.
func (c *Client) ReleaseRecord(ctx context.Context, voterKey, itemID string) error {
	return c.rdb.Del(ctx, votedKey(voterKey, itemID)).Err()
}

// Increment adds one vote of the given weight to the item's counter and
// returns the new totals. Increments are plain sums, so concurrent calls
// commute and no stale read can ever overwrite a counter.
func (c *Client) Increment(ctx context.Context, itemID string, weight uint64) (vote.Totals, error) {
	return c.add(ctx, itemID, 1, int64(weight))
}

// Decrement removes one vote of the given weight from the item's counter.
// Only the revoke operation calls this.
func (c *Client) Decrement(ctx context.Context, itemID string, weight uint64) (vote.Totals, error) {
	return c.add(ctx, itemID, -1, -int64(weight))
}

func (c *Client) add(ctx context.Context, itemID string, countDelta, scoreDelta int64) (vote.Totals, error) {
	var countCmd, scoreCmd *redis.IntCmd
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		countCmd = pipe.HIncrBy(ctx, itemKey(itemID), countField, countDelta)
		scoreCmd = pipe.HIncrBy(ctx, itemKey(itemID), scoreField, scoreDelta)
		return nil
	})
	if err != nil {
		return vote.Totals{}, err
	}
	return vote.Totals{
		Count:         clampUint64(countCmd.Val()),
		WeightedScore: clampUint64(scoreCmd.Val()),
	}, nil
}

func clampUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// Totals reads the item's counter. The second return is false when the
// ledger has no entry for the item.
func (c *Client) Totals(ctx context.Context, itemID string) (vote.Totals, bool, error) {
	vals, err := c.rdb.HGetAll(ctx, itemKey(itemID)).Result()
	if err != nil {
		return vote.Totals{}, false, err
	}
	if len(vals) == 0 {
		return vote.Totals{}, false, nil
	}
	count, _ := strconv.ParseUint(vals[countField], 10, 64)
	score, _ := strconv.ParseUint(vals[scoreField], 10, 64)
	return vote.Totals{Count: count, WeightedScore: score}, true, nil
}

// Reconcile overwrites the item's counter with authoritative totals from
// the durable store. This is a cache warm after a fallback commit, not an
// increment; it is the only write that replaces rather than adds.
func (c *Client) Reconcile(ctx context.Context, itemID string, t vote.Totals) error {
	return c.rdb.HSet(ctx, itemKey(itemID),
		countField, strconv.FormatUint(t.Count, 10),
		scoreField, strconv.FormatUint(t.WeightedScore, 10),
	).Err()
}

// Clear zeroes the counters for the given items. This is an
// administrative round-reset operation and the only way a counter goes
// back to zero.
func (c *Client) Clear(ctx context.Context, itemIDs ...string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		keys = append(keys, itemKey(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// ConsumeBudget charges one vote of the given kind against the voter's
// daily budget and returns the total spent today. The counter is lazily
// created on the first vote of the day and expires at the next UTC
// midnight.
func (c *Client) ConsumeBudget(ctx context.Context, voterKey string, k vote.Kind, at time.Time) (uint64, error) {
	key := budgetKey(voterKey, dayKey(at), k)
	spent, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if spent == 1 {
		if err := c.rdb.ExpireAt(ctx, key, nextMidnight(at)).Err(); err != nil {
			c.log.With("voter", voterKey).Warnf("budget expiry not set: %v", err)
		}
	}
	return uint64(spent), nil
}

// RefundBudget returns one vote of the given kind to the voter's daily
// budget after a revoke.
func (c *Client) RefundBudget(ctx context.Context, voterKey string, k vote.Kind, at time.Time) error {
	key := budgetKey(voterKey, dayKey(at), k)
	spent, err := c.rdb.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if spent < 0 {
		// refund without a matching charge; clamp rather than go negative
		return c.rdb.Del(ctx, key).Err()
	}
	return nil
}

// BudgetSpent returns how many votes of each class the voter has spent
// today.
func (c *Client) BudgetSpent(ctx context.Context, voterKey string, at time.Time) (vote.Budget, error) {
	day := dayKey(at)
	vals, err := c.rdb.MGet(ctx,
		budgetKey(voterKey, day, vote.KindStandard),
		budgetKey(voterKey, day, vote.KindBoosted),
		budgetKey(voterKey, day, vote.KindMaximal),
	).Result()
	if err != nil {
		return vote.Budget{}, err
	}
	return vote.Budget{
		Standard: parseSpent(vals[0]),
		Boosted:  parseSpent(vals[1]),
		Maximal:  parseSpent(vals[2]),
	}, nil
}

func parseSpent(v interface{}) uint64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// IsBanned reports whether the account is in the ban set.
func (c *Client) IsBanned(ctx context.Context, accountID string) (bool, error) {
	return c.rdb.SIsMember(ctx, bannedKey, accountID).Result()
}

// SetBanned adds or removes an account from the ban set.
func (c *Client) SetBanned(ctx context.Context, accountID string, banned bool) error {
	if banned {
		return c.rdb.SAdd(ctx, bannedKey, accountID).Err()
	}
	return c.rdb.SRem(ctx, bannedKey, accountID).Err()
}
