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

package vote

import "net/http"

// Error is a terminal client error: never retried, surfaced verbatim with
// a stable wire code. Two Errors compare equal under errors.Is when their
// codes match, so handlers can attach per-request detail (e.g. the
// remaining budget) without breaking sentinel comparisons.
type Error struct {
	Code      string
	Status    int
	Message   string
	Remaining *Budget // set on budget-exhausted errors for client UX
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports code equality so wrapped instances match their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// The terminal rejections a vote request can produce. Duplicate votes are
// always reported as ALREADY_VOTED with HTTP 409, whether the dedup marker
// or the unique constraint caught them.
var (
	ErrUserBanned = &Error{Code: "USER_BANNED", Status: http.StatusForbidden, Message: "voter account is banned"}
	ErrSelfVote   = &Error{Code: "SELF_VOTE_NOT_ALLOWED", Status: http.StatusForbidden, Message: "voting for your own item is not allowed"}
	ErrClosed     = &Error{Code: "VOTING_CLOSED", Status: http.StatusForbidden, Message: "voting is closed for this item"}
	ErrDailyLimit = &Error{Code: "DAILY_LIMIT", Status: http.StatusTooManyRequests, Message: "daily vote limit reached"}
	ErrBoostLimit = &Error{Code: "BOOST_LIMIT", Status: http.StatusTooManyRequests, Message: "boost limit reached"}
	ErrDuplicate  = &Error{Code: "ALREADY_VOTED", Status: http.StatusConflict, Message: "already voted on this item"}
	ErrNotVoted   = &Error{Code: "NOT_VOTED", Status: http.StatusNotFound, Message: "no vote to revoke"}
)

// DailyLimitError returns an ErrDailyLimit instance carrying the voter's
// remaining budget.
func DailyLimitError(remaining Budget) *Error {
	return &Error{Code: ErrDailyLimit.Code, Status: ErrDailyLimit.Status, Message: ErrDailyLimit.Message, Remaining: &remaining}
}

// BoostLimitError returns an ErrBoostLimit instance carrying the voter's
// remaining budget.
func BoostLimitError(remaining Budget) *Error {
	return &Error{Code: ErrBoostLimit.Code, Status: ErrBoostLimit.Status, Message: ErrBoostLimit.Message, Remaining: &remaining}
}
