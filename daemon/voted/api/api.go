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

// Package api serves the voting daemon's REST surface: the public vote
// endpoints, the live-update websocket, the leaderboards, and the
// token-guarded admin operations.
package api

import (
	"context"
	"time"

	"github.com/cliprally/cliprally/gate"
	"github.com/cliprally/cliprally/scores"
	"github.com/cliprally/cliprally/store"
	"github.com/cliprally/cliprally/vote"
)

// TokenHeader is the http header carrying the admin API token.
const TokenHeader = "X-Vote-API-Token"

// Voter identity headers. VoterKeyHeader is the stable anonymous device
// key and is required on every vote call; AccountHeader is present only
// for signed-in voters.
const (
	VoterKeyHeader = "X-Voter-Key"
	AccountHeader  = "X-Account-ID"
)

// Node is the running daemon as seen by the API handlers.
type Node interface {
	Cast(ctx context.Context, req gate.Request) (vote.Outcome, error)
	Revoke(ctx context.Context, itemID, voterKey string) (vote.Totals, error)
	Totals(ctx context.Context, itemID string) (vote.Totals, error)
	Leaderboard(ctx context.Context, board string, limit int64) ([]scores.Entry, error)

	AdmitItem(ctx context.Context, item store.Item) error
	FreezeSlot(ctx context.Context, slotPosition uint64) (int64, error)
	SetBanned(ctx context.Context, accountID string, banned bool) error
	ClearLedger(ctx context.Context, itemIDs ...string) error

	Status(ctx context.Context) Status
}

// Status is the health snapshot returned by /health.
type Status struct {
	Status       string    `json:"status"` // "ok" or "degraded"
	FastVoting   bool      `json:"fastVoting"`
	BreakerState string    `json:"breakerState"`
	Viewers      int       `json:"viewers"`
	Time         time.Time `json:"time"`
}
