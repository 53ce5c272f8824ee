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

package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/cliprally/cliprally/logging"
	"github.com/cliprally/cliprally/vote"
)

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	c := Dial(Options{Addr: mr.Addr()}, logging.TestingLog(t))
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRecordIfAbsentClaimsOnce(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	claimed, err := c.RecordIfAbsent(ctx, "voter-1", "item-1", vote.WeightStandard, time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = c.RecordIfAbsent(ctx, "voter-1", "item-1", vote.WeightStandard, time.Hour)
	require.NoError(t, err)
	require.False(t, claimed)

	// a different voter on the same item is unaffected
	claimed, err = c.RecordIfAbsent(ctx, "voter-2", "item-1", vote.WeightBoosted, time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	w, ok, err := c.TakeRecord(ctx, "voter-2", "item-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vote.WeightBoosted, w)
}

func TestTakeRecordIsOneShot(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	claimed, err := c.RecordIfAbsent(ctx, "voter-1", "item-1", vote.WeightMaximal, time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	// the first take gets the weight and consumes the marker
	w, ok, err := c.TakeRecord(ctx, "voter-1", "item-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vote.WeightMaximal, w)

	// a second take finds nothing
	_, ok, err = c.TakeRecord(ctx, "voter-1", "item-1")
	require.NoError(t, err)
	require.False(t, ok)

	// and the voter can claim the marker again
	claimed, err = c.RecordIfAbsent(ctx, "voter-1", "item-1", vote.WeightStandard, time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestIncrementsCommute(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Increment(ctx, "item-1", vote.WeightStandard)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	totals, ok, err := c.Totals(ctx, "item-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vote.Totals{Count: 10, WeightedScore: 10}, totals)
}

func TestTotalsAbsent(t *testing.T) {
	c, _ := testClient(t)

	_, ok, err := c.Totals(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecrementUndoesOneVote(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	_, err := c.Increment(ctx, "item-1", vote.WeightMaximal)
	require.NoError(t, err)
	_, err = c.Increment(ctx, "item-1", vote.WeightStandard)
	require.NoError(t, err)

	totals, err := c.Decrement(ctx, "item-1", vote.WeightMaximal)
	require.NoError(t, err)
	require.Equal(t, vote.Totals{Count: 1, WeightedScore: 1}, totals)
}

func TestReconcileOverwrites(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	_, err := c.Increment(ctx, "item-1", vote.WeightStandard)
	require.NoError(t, err)

	// authoritative totals from the durable store replace the counter
	require.NoError(t, c.Reconcile(ctx, "item-1", vote.Totals{Count: 7, WeightedScore: 13}))

	totals, ok, err := c.Totals(ctx, "item-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vote.Totals{Count: 7, WeightedScore: 13}, totals)

	// subsequent increments add on top of the reconciled value
	totals, err = c.Increment(ctx, "item-1", vote.WeightBoosted)
	require.NoError(t, err)
	require.Equal(t, vote.Totals{Count: 8, WeightedScore: 16}, totals)
}

func TestClearZeroesCounters(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	_, err := c.Increment(ctx, "item-1", 1)
	require.NoError(t, err)
	_, err = c.Increment(ctx, "item-2", 1)
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx, "item-1", "item-2"))

	_, ok, err := c.Totals(ctx, "item-1")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = c.Totals(ctx, "item-2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSlotOpen(t *testing.T) {
	c, mr := testClient(t)
	ctx := context.Background()

	open, err := c.SlotOpen(ctx, "item-1")
	require.NoError(t, err)
	require.False(t, open)

	require.NoError(t, c.SeedSlot(ctx, "item-1", time.Now().Add(time.Hour)))
	open, err = c.SlotOpen(ctx, "item-1")
	require.NoError(t, err)
	require.True(t, open)

	// the slot key expires when the round ends
	mr.FastForward(2 * time.Hour)
	open, err = c.SlotOpen(ctx, "item-1")
	require.NoError(t, err)
	require.False(t, open)
}

func TestBudgetLifecycle(t *testing.T) {
	c, mr := testClient(t)
	ctx := context.Background()
	at := time.Now().UTC()

	spent, err := c.ConsumeBudget(ctx, "voter-1", vote.KindStandard, at)
	require.NoError(t, err)
	require.Equal(t, uint64(1), spent)

	spent, err = c.ConsumeBudget(ctx, "voter-1", vote.KindStandard, at)
	require.NoError(t, err)
	require.Equal(t, uint64(2), spent)

	_, err = c.ConsumeBudget(ctx, "voter-1", vote.KindBoosted, at)
	require.NoError(t, err)

	b, err := c.BudgetSpent(ctx, "voter-1", at)
	require.NoError(t, err)
	require.Equal(t, vote.Budget{Standard: 2, Boosted: 1, Maximal: 0}, b)

	require.NoError(t, c.RefundBudget(ctx, "voter-1", vote.KindStandard, at))
	b, err = c.BudgetSpent(ctx, "voter-1", at)
	require.NoError(t, err)
	require.Equal(t, uint64(1), b.Standard)

	// budgets reset at the UTC day boundary
	mr.FastForward(25 * time.Hour)
	b, err = c.BudgetSpent(ctx, "voter-1", at.Add(25*time.Hour))
	require.NoError(t, err)
	require.Equal(t, vote.Budget{}, b)
}

func TestBanSet(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	banned, err := c.IsBanned(ctx, "acct-1")
	require.NoError(t, err)
	require.False(t, banned)

	require.NoError(t, c.SetBanned(ctx, "acct-1", true))
	banned, err = c.IsBanned(ctx, "acct-1")
	require.NoError(t, err)
	require.True(t, banned)

	require.NoError(t, c.SetBanned(ctx, "acct-1", false))
	banned, err = c.IsBanned(ctx, "acct-1")
	require.NoError(t, err)
	require.False(t, banned)
}
