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

// Package countcache serves current vote totals to readers without
// hitting the ledger or the store on every page view. It is a
// read-through LRU: misses load through the provided loader with
// concurrent loads for the same item collapsed into one, and both
// recording paths overwrite entries after every committed vote.
package countcache

import (
	"context"
	"time"

	"github.com/decred/dcrd/container/lru"
	"golang.org/x/sync/singleflight"

	"github.com/cliprally/cliprally/vote"
)

// Loader fetches the authoritative totals for an item on a cache miss.
// The boolean is false when no totals exist for the item.
type Loader func(ctx context.Context, itemID string) (vote.Totals, bool, error)

// Cache is a read-through count cache. Safe for concurrent use.
type Cache struct {
	entries *lru.Map[string, vote.Totals]
	group   singleflight.Group
	load    Loader
}

// New returns a cache of at most limit items whose entries expire after
// ttl, bounding staleness for items that stop receiving votes.
func New(limit uint32, ttl time.Duration, load Loader) *Cache {
	return &Cache{
		entries: lru.NewMapWithDefaultTTL[string, vote.Totals](limit, ttl),
		load:    load,
	}
}

// Get returns the item's totals, loading through on a miss. The boolean
// is false when the item has no totals anywhere.
func (c *Cache) Get(ctx context.Context, itemID string) (vote.Totals, bool, error) {
	if totals, ok := c.entries.Get(itemID); ok {
		return totals, true, nil
	}

	type loaded struct {
		totals vote.Totals
		ok     bool
	}
	v, err, _ := c.group.Do(itemID, func() (interface{}, error) {
		// recheck after winning the flight; a concurrent Set may have
		// populated the entry already
		if totals, ok := c.entries.Get(itemID); ok {
			return loaded{totals, true}, nil
		}
		totals, ok, err := c.load(ctx, itemID)
		if err != nil {
			return loaded{}, err
		}
		if ok {
			c.entries.Put(itemID, totals)
		}
		return loaded{totals, ok}, nil
	})
	if err != nil {
		return vote.Totals{}, false, err
	}
	l := v.(loaded)
	return l.totals, l.ok, nil
}

// Set stores fresh totals after a committed vote.
func (c *Cache) Set(itemID string, totals vote.Totals) {
	c.entries.Put(itemID, totals)
}

// Invalidate drops the entry so the next read loads through.
func (c *Cache) Invalidate(itemID string) {
	c.entries.Delete(itemID)
}
