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

package countcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cliprally/cliprally/vote"
)

func TestGetLoadsThroughOnce(t *testing.T) {
	var loads atomic.Int64
	c := New(16, time.Minute, func(_ context.Context, itemID string) (vote.Totals, bool, error) {
		loads.Add(1)
		return vote.Totals{Count: 3, WeightedScore: 5}, true, nil
	})

	ctx := context.Background()
	totals, ok, err := c.Get(ctx, "item-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vote.Totals{Count: 3, WeightedScore: 5}, totals)

	// second read is a hit
	_, _, err = c.Get(ctx, "item-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, loads.Load())
}

func TestConcurrentMissesCollapse(t *testing.T) {
	var loads atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	c := New(16, time.Minute, func(context.Context, string) (vote.Totals, bool, error) {
		if loads.Add(1) == 1 {
			close(started)
		}
		<-release
		return vote.Totals{Count: 1, WeightedScore: 1}, true, nil
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			totals, ok, err := c.Get(ctx, "item-1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, vote.Totals{Count: 1, WeightedScore: 1}, totals)
		}()
	}

	<-started
	close(release)
	wg.Wait()
	require.EqualValues(t, 1, loads.Load())
}

func TestMissWithoutTotals(t *testing.T) {
	var loads atomic.Int64
	c := New(16, time.Minute, func(context.Context, string) (vote.Totals, bool, error) {
		loads.Add(1)
		return vote.Totals{}, false, nil
	})

	ctx := context.Background()
	_, ok, err := c.Get(ctx, "item-1")
	require.NoError(t, err)
	require.False(t, ok)

	// negative results are not cached
	_, _, err = c.Get(ctx, "item-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, loads.Load())
}

func TestLoaderErrorPropagates(t *testing.T) {
	boom := errors.New("store down")
	c := New(16, time.Minute, func(context.Context, string) (vote.Totals, bool, error) {
		return vote.Totals{}, false, boom
	})

	_, _, err := c.Get(context.Background(), "item-1")
	require.ErrorIs(t, err, boom)
}

func TestSetAndInvalidate(t *testing.T) {
	var loads atomic.Int64
	c := New(16, time.Minute, func(context.Context, string) (vote.Totals, bool, error) {
		loads.Add(1)
		return vote.Totals{Count: 9, WeightedScore: 9}, true, nil
	})
	ctx := context.Background()

	c.Set("item-1", vote.Totals{Count: 2, WeightedScore: 4})
	totals, ok, err := c.Get(ctx, "item-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vote.Totals{Count: 2, WeightedScore: 4}, totals)
	require.Zero(t, loads.Load())

	c.Invalidate("item-1")
	totals, ok, err = c.Get(ctx, "item-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vote.Totals{Count: 9, WeightedScore: 9}, totals)
	require.EqualValues(t, 1, loads.Load())
}
