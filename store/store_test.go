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

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cliprally/cliprally/logging"
	"github.com/cliprally/cliprally/vote"
)

func testStore(t *testing.T) *VoteStore {
	s, err := Open(uuid.NewString()+".db", true, logging.TestingLog(t))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func admitTestItem(t *testing.T, s *VoteStore, itemID, owner string) {
	err := s.AdmitItem(context.Background(), Item{
		ItemID:       itemID,
		AccountID:    owner,
		SlotPosition: 7,
		EndsAt:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
}

func standardVote(itemID, voterKey string) vote.Vote {
	return vote.Vote{
		ItemID:       itemID,
		VoterKey:     voterKey,
		Kind:         vote.KindStandard,
		Weight:       vote.WeightStandard,
		SlotPosition: 7,
		CastAt:       time.Now().UTC(),
	}
}

func TestCastVoteUpdatesAggregates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	admitTestItem(t, s, "item-1", "owner-1")

	totals, err := s.CastVote(ctx, standardVote("item-1", "voter-1"))
	require.NoError(t, err)
	require.Equal(t, vote.Totals{Count: 1, WeightedScore: 1}, totals)

	boosted := standardVote("item-1", "voter-2")
	boosted.Kind = vote.KindBoosted
	boosted.Weight = vote.WeightBoosted
	totals, err = s.CastVote(ctx, boosted)
	require.NoError(t, err)
	require.Equal(t, vote.Totals{Count: 2, WeightedScore: 4}, totals)

	stored, err := s.Totals(ctx, "item-1")
	require.NoError(t, err)
	require.Equal(t, totals, stored)
}

func TestCastVoteDuplicate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	admitTestItem(t, s, "item-1", "owner-1")

	_, err := s.CastVote(ctx, standardVote("item-1", "voter-1"))
	require.NoError(t, err)

	// a retried insert is a rejection, not a double count
	_, err = s.CastVote(ctx, standardVote("item-1", "voter-1"))
	require.ErrorIs(t, err, vote.ErrDuplicate)

	totals, err := s.Totals(ctx, "item-1")
	require.NoError(t, err)
	require.Equal(t, vote.Totals{Count: 1, WeightedScore: 1}, totals)
}

func TestCastVoteUnknownItem(t *testing.T) {
	s := testStore(t)

	_, err := s.CastVote(context.Background(), standardVote("missing", "voter-1"))
	require.ErrorIs(t, err, ErrUnknownItem)
}

func TestConcurrentSameVoterCountsOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	admitTestItem(t, s, "item-1", "owner-1")

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = s.CastVote(ctx, standardVote("item-1", "voter-1"))
		}(i)
	}
	wg.Wait()

	var committed, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			committed++
		default:
			require.ErrorIs(t, err, vote.ErrDuplicate)
			duplicates++
		}
	}
	require.Equal(t, 1, committed)
	require.Equal(t, attempts-1, duplicates)

	totals, err := s.Totals(ctx, "item-1")
	require.NoError(t, err)
	require.Equal(t, vote.Totals{Count: 1, WeightedScore: 1}, totals)
}

func TestRevokeVote(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	admitTestItem(t, s, "item-1", "owner-1")

	maximal := standardVote("item-1", "voter-1")
	maximal.Kind = vote.KindMaximal
	maximal.Weight = vote.WeightMaximal
	_, err := s.CastVote(ctx, maximal)
	require.NoError(t, err)
	_, err = s.CastVote(ctx, standardVote("item-1", "voter-2"))
	require.NoError(t, err)

	kind, weight, totals, err := s.RevokeVote(ctx, "item-1", "voter-1")
	require.NoError(t, err)
	require.Equal(t, vote.KindMaximal, kind)
	require.Equal(t, vote.WeightMaximal, weight)
	require.Equal(t, vote.Totals{Count: 1, WeightedScore: 1}, totals)

	// the voter can vote again after revoking
	_, err = s.CastVote(ctx, standardVote("item-1", "voter-1"))
	require.NoError(t, err)

	_, _, _, err = s.RevokeVote(ctx, "item-1", "voter-3")
	require.ErrorIs(t, err, ErrNoVote)
}

func TestBudgetSpentCountsTodayOnly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	admitTestItem(t, s, "item-1", "owner-1")
	admitTestItem(t, s, "item-2", "owner-1")
	admitTestItem(t, s, "item-3", "owner-1")

	now := time.Now().UTC()

	v := standardVote("item-1", "voter-1")
	v.CastAt = now
	_, err := s.CastVote(ctx, v)
	require.NoError(t, err)

	boosted := standardVote("item-2", "voter-1")
	boosted.Kind = vote.KindBoosted
	boosted.Weight = vote.WeightBoosted
	boosted.CastAt = now
	_, err = s.CastVote(ctx, boosted)
	require.NoError(t, err)

	// a vote from two days ago is outside today's budget window
	old := standardVote("item-3", "voter-1")
	old.CastAt = now.Add(-48 * time.Hour)
	_, err = s.CastVote(ctx, old)
	require.NoError(t, err)

	b, err := s.BudgetSpent(ctx, "voter-1", now)
	require.NoError(t, err)
	require.Equal(t, vote.Budget{Standard: 1, Boosted: 1, Maximal: 0}, b)
}

func TestFreezeSlot(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	admitTestItem(t, s, "item-1", "owner-1")
	admitTestItem(t, s, "item-2", "owner-2")

	frozen, err := s.FreezeSlot(ctx, 7)
	require.NoError(t, err)
	require.EqualValues(t, 2, frozen)

	item, err := s.Item(ctx, "item-1")
	require.NoError(t, err)
	require.Equal(t, StatusFrozen, item.Status)

	// freezing again is a no-op
	frozen, err = s.FreezeSlot(ctx, 7)
	require.NoError(t, err)
	require.EqualValues(t, 0, frozen)
}

func TestSlotItems(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	admitTestItem(t, s, "item-b", "owner-1")
	admitTestItem(t, s, "item-a", "owner-2")

	ids, err := s.SlotItems(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"item-a", "item-b"}, ids)
}
