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

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cliprally/cliprally/gate"
	"github.com/cliprally/cliprally/logging"
	"github.com/cliprally/cliprally/scores"
	"github.com/cliprally/cliprally/store"
	"github.com/cliprally/cliprally/vote"
)

// Handlers holds the request handlers and their shared state.
type Handlers struct {
	node Node
	log  logging.Logger
}

type castRequest struct {
	WeightClass string `json:"weightClass"`
}

type castResponse struct {
	Success          bool        `json:"success"`
	ItemID           string      `json:"itemId"`
	VoteKind         vote.Kind   `json:"voteKind"`
	NewCount         uint64      `json:"newCount"`
	NewWeightedScore uint64      `json:"newWeightedScore"`
	RemainingBudget  vote.Budget `json:"remainingBudget"`
}

type totalsResponse struct {
	Success       bool   `json:"success"`
	ItemID        string `json:"itemId"`
	Count         uint64 `json:"count"`
	WeightedScore uint64 `json:"weightedScore"`
}

type leaderboardResponse struct {
	Success bool           `json:"success"`
	Board   string         `json:"board"`
	Entries []scores.Entry `json:"entries"`
}

type errorResponse struct {
	Success   bool         `json:"success"`
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Remaining *vote.Budget `json:"remaining,omitempty"`
}

// fail maps an engine error onto the wire: terminal client errors carry
// their own code and status, everything else is an internal error.
func (h *Handlers) fail(ctx echo.Context, err error) error {
	var verr *vote.Error
	if errors.As(err, &verr) {
		return ctx.JSON(verr.Status, errorResponse{
			Code:      verr.Code,
			Message:   verr.Message,
			Remaining: verr.Remaining,
		})
	}
	if errors.Is(err, store.ErrUnknownItem) {
		return ctx.JSON(http.StatusNotFound, errorResponse{Code: "UNKNOWN_ITEM", Message: "unknown item"})
	}
	h.log.Warnf("request failed: %v", err)
	return ctx.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
}

func badRequest(ctx echo.Context, code, message string) error {
	return ctx.JSON(http.StatusBadRequest, errorResponse{Code: code, Message: message})
}

// CastVote handles POST /v1/items/:itemID/votes.
func (h *Handlers) CastVote(ctx echo.Context) error {
	itemID := ctx.Param("itemID")
	voterKey := ctx.Request().Header.Get(VoterKeyHeader)
	if voterKey == "" {
		return badRequest(ctx, "MISSING_VOTER_KEY", "the "+VoterKeyHeader+" header is required")
	}

	var body castRequest
	// an empty body means a standard vote
	if err := ctx.Bind(&body); err != nil && ctx.Request().ContentLength > 0 {
		return badRequest(ctx, "MALFORMED_REQUEST", "could not parse request body")
	}
	kind, err := vote.ParseKind(body.WeightClass)
	if err != nil {
		return badRequest(ctx, "UNKNOWN_KIND", err.Error())
	}

	out, err := h.node.Cast(ctx.Request().Context(), gate.Request{
		ItemID:    itemID,
		VoterKey:  voterKey,
		AccountID: ctx.Request().Header.Get(AccountHeader),
		Kind:      kind,
	})
	if err != nil {
		return h.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, castResponse{
		Success:          true,
		ItemID:           out.ItemID,
		VoteKind:         out.Kind,
		NewCount:         out.Totals.Count,
		NewWeightedScore: out.Totals.WeightedScore,
		RemainingBudget:  out.Remaining,
	})
}

// RevokeVote handles DELETE /v1/items/:itemID/votes.
func (h *Handlers) RevokeVote(ctx echo.Context) error {
	itemID := ctx.Param("itemID")
	voterKey := ctx.Request().Header.Get(VoterKeyHeader)
	if voterKey == "" {
		return badRequest(ctx, "MISSING_VOTER_KEY", "the "+VoterKeyHeader+" header is required")
	}

	totals, err := h.node.Revoke(ctx.Request().Context(), itemID, voterKey)
	if err != nil {
		return h.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, totalsResponse{
		Success:       true,
		ItemID:        itemID,
		Count:         totals.Count,
		WeightedScore: totals.WeightedScore,
	})
}

// GetTotals handles GET /v1/items/:itemID/votes.
func (h *Handlers) GetTotals(ctx echo.Context) error {
	itemID := ctx.Param("itemID")
	totals, err := h.node.Totals(ctx.Request().Context(), itemID)
	if err != nil {
		return h.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, totalsResponse{
		Success:       true,
		ItemID:        itemID,
		Count:         totals.Count,
		WeightedScore: totals.WeightedScore,
	})
}

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// GetLeaderboard handles GET /v1/leaderboard/:board.
func (h *Handlers) GetLeaderboard(ctx echo.Context) error {
	board := ctx.Param("board")
	switch board {
	case scores.BoardItems, scores.BoardCreators, scores.BoardVoters:
	default:
		return badRequest(ctx, "UNKNOWN_BOARD", "unknown leaderboard "+board)
	}

	limit := int64(defaultLeaderboardLimit)
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			return badRequest(ctx, "MALFORMED_REQUEST", "limit must be a positive integer")
		}
		limit = min(n, maxLeaderboardLimit)
	}

	entries, err := h.node.Leaderboard(ctx.Request().Context(), board, limit)
	if err != nil {
		return h.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, leaderboardResponse{Success: true, Board: board, Entries: entries})
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(ctx echo.Context) error {
	status := h.node.Status(ctx.Request().Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, status)
}

type admitItemRequest struct {
	ItemID       string    `json:"itemId"`
	AccountID    string    `json:"accountId"`
	SlotPosition uint64    `json:"slotPosition"`
	EndsAt       time.Time `json:"endsAt"`
}

// AdmitItem handles POST /v1/admin/items.
func (h *Handlers) AdmitItem(ctx echo.Context) error {
	var body admitItemRequest
	if err := ctx.Bind(&body); err != nil {
		return badRequest(ctx, "MALFORMED_REQUEST", "could not parse request body")
	}
	if body.ItemID == "" || body.AccountID == "" {
		return badRequest(ctx, "MALFORMED_REQUEST", "itemId and accountId are required")
	}
	if !body.EndsAt.After(time.Now()) {
		return badRequest(ctx, "MALFORMED_REQUEST", "endsAt must be in the future")
	}

	err := h.node.AdmitItem(ctx.Request().Context(), store.Item{
		ItemID:       body.ItemID,
		AccountID:    body.AccountID,
		SlotPosition: body.SlotPosition,
		Status:       store.StatusOpen,
		EndsAt:       body.EndsAt,
	})
	if err != nil {
		return h.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"success": true})
}

// FreezeSlot handles POST /v1/admin/slots/:position/freeze.
func (h *Handlers) FreezeSlot(ctx echo.Context) error {
	position, err := strconv.ParseUint(ctx.Param("position"), 10, 64)
	if err != nil {
		return badRequest(ctx, "MALFORMED_REQUEST", "position must be a non-negative integer")
	}
	frozen, err := h.node.FreezeSlot(ctx.Request().Context(), position)
	if err != nil {
		return h.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]interface{}{"success": true, "frozenItems": frozen})
}

type banRequest struct {
	Banned bool `json:"banned"`
}

// SetBanned handles POST /v1/admin/accounts/:accountID/ban.
func (h *Handlers) SetBanned(ctx echo.Context) error {
	var body banRequest
	if err := ctx.Bind(&body); err != nil {
		return badRequest(ctx, "MALFORMED_REQUEST", "could not parse request body")
	}
	if err := h.node.SetBanned(ctx.Request().Context(), ctx.Param("accountID"), body.Banned); err != nil {
		return h.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"success": true})
}

type clearRequest struct {
	ItemIDs []string `json:"itemIds"`
}

// ClearLedger handles POST /v1/admin/ledger/clear.
func (h *Handlers) ClearLedger(ctx echo.Context) error {
	var body clearRequest
	if err := ctx.Bind(&body); err != nil {
		return badRequest(ctx, "MALFORMED_REQUEST", "could not parse request body")
	}
	if len(body.ItemIDs) == 0 {
		return badRequest(ctx, "MALFORMED_REQUEST", "itemIds is required")
	}
	if err := h.node.ClearLedger(ctx.Request().Context(), body.ItemIDs...); err != nil {
		return h.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"success": true})
}
