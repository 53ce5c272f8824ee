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
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/cliprally/cliprally/logging"
	"github.com/cliprally/cliprally/vote"
)

// Errors reported by the vote store beyond the terminal client errors in
// the vote package.
var (
	ErrUnknownItem = errors.New("store: unknown item")
	ErrNoVote      = errors.New("store: no vote to revoke")
)

// Item statuses. An item is created open when admitted into a round and
// frozen when the round closes; frozen aggregates never change again.
const (
	StatusOpen   = "open"
	StatusFrozen = "frozen"
)

var schema = []string{
	`create table if not exists items (
		item_id        text not null primary key,
		account_id     text not null,
		slot_position  integer not null,
		status         text not null default 'open',
		ends_at        timestamp not null,
		vote_count     integer not null default 0,
		weighted_score integer not null default 0
	)`,
	`create table if not exists votes (
		item_id       text not null,
		voter_key     text not null,
		account_id    text,
		kind          text not null,
		weight        integer not null,
		slot_position integer not null,
		cast_at       timestamp not null,
		unique (voter_key, item_id)
	)`,
	`create index if not exists votes_by_voter_day on votes (voter_key, cast_at)`,
	`create index if not exists items_by_slot on items (slot_position)`,
}

// Item is a content item admitted into a round, carrying its denormalized
// vote tally.
type Item struct {
	ItemID       string    `db:"item_id"`
	AccountID    string    `db:"account_id"`
	SlotPosition uint64    `db:"slot_position"`
	Status       string    `db:"status"`
	EndsAt       time.Time `db:"ends_at"`
	vote.Totals
}

// VoteStore records votes durably. All mutations run through Atomic, so
// the uniqueness check, the vote row insert, and the aggregate update
// commit or roll back together.
type VoteStore struct {
	db  Accessor
	log logging.Logger
}

// Open opens (or creates) the vote database at dbfilename.
func Open(dbfilename string, inMemory bool, log logging.Logger) (*VoteStore, error) {
	acc, err := MakeAccessor(dbfilename, false, inMemory, log)
	if err != nil {
		return nil, err
	}
	s := &VoteStore{db: acc, log: log}
	err = s.db.Atomic(context.Background(), "schema", func(tx *sqlx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		acc.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *VoteStore) Close() {
	s.db.Close()
}

// AdmitItem registers an item into a round with zeroed aggregates.
func (s *VoteStore) AdmitItem(ctx context.Context, item Item) error {
	return s.db.Atomic(ctx, "admitItem", func(tx *sqlx.Tx) error {
		_, err := tx.Exec(
			`insert into items (item_id, account_id, slot_position, status, ends_at) values (?, ?, ?, ?, ?)`,
			item.ItemID, item.AccountID, item.SlotPosition, StatusOpen, item.EndsAt.UTC(),
		)
		return err
	})
}

// Item returns the item row, or ErrUnknownItem.
func (s *VoteStore) Item(ctx context.Context, itemID string) (Item, error) {
	var item Item
	err := s.db.Atomic(ctx, "getItem", func(tx *sqlx.Tx) error {
		err := tx.Get(&item, `select * from items where item_id = ?`, itemID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownItem
		}
		return err
	})
	return item, err
}

// CastVote is the atomic recording procedure of the fallback path: in a
// single transaction it checks uniqueness of (voter, item), inserts the
// vote row, bumps the item's aggregates, and returns the new totals. A
// second vote from the same voter hits the unique constraint and maps to
// vote.ErrDuplicate, which makes a blind retry of this procedure safe: it
// can reject, but never double count.
func (s *VoteStore) CastVote(ctx context.Context, v vote.Vote) (vote.Totals, error) {
	var totals vote.Totals
	err := s.db.Atomic(ctx, "castVote", func(tx *sqlx.Tx) error {
		_, err := tx.Exec(
			`insert into votes (item_id, voter_key, account_id, kind, weight, slot_position, cast_at)
			 values (?, ?, ?, ?, ?, ?, ?)`,
			v.ItemID, v.VoterKey, nullable(v.AccountID), v.Kind, v.Weight, v.SlotPosition, v.CastAt.UTC(),
		)
		if isUniqueViolation(err) {
			return vote.ErrDuplicate
		}
		if err != nil {
			return err
		}

		res, err := tx.Exec(
			`update items set vote_count = vote_count + 1, weighted_score = weighted_score + ? where item_id = ?`,
			v.Weight, v.ItemID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrUnknownItem
		}

		return tx.Get(&totals, `select vote_count, weighted_score from items where item_id = ?`, v.ItemID)
	})
	if err != nil {
		return vote.Totals{}, err
	}
	return totals, nil
}

// RevokeVote removes a voter's vote from the durable store and decrements
// the item's aggregates in the same transaction. It returns the revoked
// vote's kind and weight plus the new totals.
func (s *VoteStore) RevokeVote(ctx context.Context, itemID, voterKey string) (vote.Kind, uint64, vote.Totals, error) {
	var revoked struct {
		Kind   vote.Kind `db:"kind"`
		Weight uint64    `db:"weight"`
	}
	var totals vote.Totals
	err := s.db.Atomic(ctx, "revokeVote", func(tx *sqlx.Tx) error {
		err := tx.Get(&revoked, `select kind, weight from votes where voter_key = ? and item_id = ?`, voterKey, itemID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoVote
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`delete from votes where voter_key = ? and item_id = ?`, voterKey, itemID); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`update items set vote_count = vote_count - 1, weighted_score = weighted_score - ? where item_id = ?`,
			revoked.Weight, itemID,
		); err != nil {
			return err
		}

		return tx.Get(&totals, `select vote_count, weighted_score from items where item_id = ?`, itemID)
	})
	if err != nil {
		return "", 0, vote.Totals{}, err
	}
	return revoked.Kind, revoked.Weight, totals, nil
}

// Totals returns the item's durable aggregates.
func (s *VoteStore) Totals(ctx context.Context, itemID string) (vote.Totals, error) {
	var totals vote.Totals
	err := s.db.Atomic(ctx, "getTotals", func(tx *sqlx.Tx) error {
		err := tx.Get(&totals, `select vote_count, weighted_score from items where item_id = ?`, itemID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownItem
		}
		return err
	})
	return totals, err
}

// BudgetSpent counts the voter's committed durable votes per weight class
// for the UTC day containing at. Fast-path votes are tracked in the
// ledger's budget counters instead; this is the degraded-mode source used
// when the ledger is unavailable.
func (s *VoteStore) BudgetSpent(ctx context.Context, voterKey string, at time.Time) (vote.Budget, error) {
	dayStart := at.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var rows []struct {
		Kind  vote.Kind `db:"kind"`
		Spent uint64    `db:"spent"`
	}
	err := s.db.Atomic(ctx, "budgetSpent", func(tx *sqlx.Tx) error {
		return tx.Select(&rows,
			`select kind, count(*) as spent from votes
			 where voter_key = ? and cast_at >= ? and cast_at < ?
			 group by kind`,
			voterKey, dayStart, dayEnd,
		)
	})
	if err != nil {
		return vote.Budget{}, err
	}

	var b vote.Budget
	for _, r := range rows {
		switch r.Kind {
		case vote.KindBoosted:
			b.Boosted = r.Spent
		case vote.KindMaximal:
			b.Maximal = r.Spent
		default:
			b.Standard = r.Spent
		}
	}
	return b, nil
}

// FreezeSlot marks every item in the slot frozen once the round closes.
func (s *VoteStore) FreezeSlot(ctx context.Context, slotPosition uint64) (int64, error) {
	var frozen int64
	err := s.db.Atomic(ctx, "freezeSlot", func(tx *sqlx.Tx) error {
		res, err := tx.Exec(`update items set status = ? where slot_position = ? and status = ?`,
			StatusFrozen, slotPosition, StatusOpen)
		if err != nil {
			return err
		}
		frozen, err = res.RowsAffected()
		return err
	})
	return frozen, err
}

// SlotItems lists the item ids in a slot, used by the round-reset
// administrative flow to clear ledger counters.
func (s *VoteStore) SlotItems(ctx context.Context, slotPosition uint64) ([]string, error) {
	var ids []string
	err := s.db.Atomic(ctx, "slotItems", func(tx *sqlx.Tx) error {
		return tx.Select(&ids, `select item_id from items where slot_position = ? order by item_id`, slotPosition)
	})
	return ids, err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
