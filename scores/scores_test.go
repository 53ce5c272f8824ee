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

package scores

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cliprally/cliprally/logging"
)

func testUpdater(t *testing.T) *Updater {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, logging.TestingLog(t))
}

func TestItemBoardHoldsAbsoluteScores(t *testing.T) {
	u := testUpdater(t)
	ctx := context.Background()

	u.UpdateItemScore(ctx, "item-1", 10)
	u.UpdateItemScore(ctx, "item-2", 4)
	// replaying an older absolute score is harmless drift repair
	u.UpdateItemScore(ctx, "item-1", 13)

	top, err := u.Top(ctx, BoardItems, 10)
	require.NoError(t, err)
	require.Equal(t, []Entry{{ID: "item-1", Score: 13}, {ID: "item-2", Score: 4}}, top)
}

func TestCreatorAndVoterBoardsAccumulate(t *testing.T) {
	u := testUpdater(t)
	ctx := context.Background()

	u.UpdateCreatorScore(ctx, "acct-1", 3)
	u.UpdateCreatorScore(ctx, "acct-1", 1)
	u.UpdateVoterScore(ctx, "voter-1", 1)
	u.UpdateVoterScore(ctx, "voter-2", 10)

	top, err := u.Top(ctx, BoardCreators, 1)
	require.NoError(t, err)
	require.Equal(t, []Entry{{ID: "acct-1", Score: 4}}, top)

	top, err = u.Top(ctx, BoardVoters, 2)
	require.NoError(t, err)
	require.Equal(t, []Entry{{ID: "voter-2", Score: 10}, {ID: "voter-1", Score: 1}}, top)
}

func TestAnonymousCreatorIgnored(t *testing.T) {
	u := testUpdater(t)
	ctx := context.Background()

	u.UpdateCreatorScore(ctx, "", 5)

	top, err := u.Top(ctx, BoardCreators, 10)
	require.NoError(t, err)
	require.Empty(t, top)
}

func TestTopUnknownBoard(t *testing.T) {
	u := testUpdater(t)

	_, err := u.Top(context.Background(), "nope", 10)
	require.Error(t, err)
}
