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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cliprally/cliprally/gate"
	"github.com/cliprally/cliprally/logging"
	"github.com/cliprally/cliprally/scores"
	"github.com/cliprally/cliprally/store"
	"github.com/cliprally/cliprally/vote"
)

// fakeNode serves canned responses and records the last request it saw.
type fakeNode struct {
	castErr   error
	castOut   vote.Outcome
	lastCast  gate.Request
	revokeErr error
	totals    vote.Totals
	totalsErr error
	entries   []scores.Entry
	admitted  *store.Item
	banned    map[string]bool
	status    Status
}

func (f *fakeNode) Cast(_ context.Context, req gate.Request) (vote.Outcome, error) {
	f.lastCast = req
	if f.castErr != nil {
		return vote.Outcome{}, f.castErr
	}
	return f.castOut, nil
}

func (f *fakeNode) Revoke(context.Context, string, string) (vote.Totals, error) {
	if f.revokeErr != nil {
		return vote.Totals{}, f.revokeErr
	}
	return f.totals, nil
}

func (f *fakeNode) Totals(context.Context, string) (vote.Totals, error) {
	return f.totals, f.totalsErr
}

func (f *fakeNode) Leaderboard(context.Context, string, int64) ([]scores.Entry, error) {
	return f.entries, nil
}

func (f *fakeNode) AdmitItem(_ context.Context, item store.Item) error {
	f.admitted = &item
	return nil
}

func (f *fakeNode) FreezeSlot(context.Context, uint64) (int64, error) { return 2, nil }

func (f *fakeNode) SetBanned(_ context.Context, accountID string, banned bool) error {
	if f.banned == nil {
		f.banned = make(map[string]bool)
	}
	f.banned[accountID] = banned
	return nil
}

func (f *fakeNode) ClearLedger(context.Context, ...string) error { return nil }

func (f *fakeNode) Status(context.Context) Status { return f.status }

const testToken = "86fd3a9c4b1e8e6f2d7a5b3c9e1f4a6d"

func newTestServer(t *testing.T, node *fakeNode) *httptest.Server {
	router := NewRouter(logging.TestingLog(t), node, RouterConfig{APIToken: testToken})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, map[string]json.RawMessage) {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestCastVote(t *testing.T) {
	node := &fakeNode{castOut: vote.Outcome{
		ItemID:    "clip-1",
		Kind:      vote.KindBoosted,
		Totals:    vote.Totals{Count: 7, WeightedScore: 21},
		Remaining: vote.Budget{Standard: 199, Boosted: 0, Maximal: 1},
		Path:      vote.PathFast,
	}}
	srv := newTestServer(t, node)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/items/clip-1/votes",
		`{"weightClass":"boosted"}`, map[string]string{VoterKeyHeader: "vk-1", AccountHeader: "acct-9"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `true`, string(body["success"]))
	require.JSONEq(t, `"clip-1"`, string(body["itemId"]))
	require.JSONEq(t, `"boosted"`, string(body["voteKind"]))
	require.JSONEq(t, `7`, string(body["newCount"]))
	require.JSONEq(t, `21`, string(body["newWeightedScore"]))

	var remaining vote.Budget
	require.NoError(t, json.Unmarshal(body["remainingBudget"], &remaining))
	require.Equal(t, uint64(199), remaining.Standard)

	require.Equal(t, "clip-1", node.lastCast.ItemID)
	require.Equal(t, "vk-1", node.lastCast.VoterKey)
	require.Equal(t, "acct-9", node.lastCast.AccountID)
	require.Equal(t, vote.KindBoosted, node.lastCast.Kind)
}

func TestCastVoteRequiresVoterKey(t *testing.T) {
	srv := newTestServer(t, &fakeNode{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/items/clip-1/votes", `{}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.JSONEq(t, `"MISSING_VOTER_KEY"`, string(body["code"]))
}

func TestCastVoteUnknownKind(t *testing.T) {
	srv := newTestServer(t, &fakeNode{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/items/clip-1/votes",
		`{"weightClass":"mega"}`, map[string]string{VoterKeyHeader: "vk-1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.JSONEq(t, `"UNKNOWN_KIND"`, string(body["code"]))
}

func TestCastVoteDuplicate(t *testing.T) {
	srv := newTestServer(t, &fakeNode{castErr: vote.ErrDuplicate})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/items/clip-1/votes",
		`{}`, map[string]string{VoterKeyHeader: "vk-1"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.JSONEq(t, `"ALREADY_VOTED"`, string(body["code"]))
	require.JSONEq(t, `false`, string(body["success"]))
}

func TestCastVoteDailyLimitCarriesRemaining(t *testing.T) {
	srv := newTestServer(t, &fakeNode{castErr: vote.DailyLimitError(vote.Budget{Boosted: 1, Maximal: 1})})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/items/clip-1/votes",
		`{}`, map[string]string{VoterKeyHeader: "vk-1"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.JSONEq(t, `"DAILY_LIMIT"`, string(body["code"]))

	var remaining vote.Budget
	require.NoError(t, json.Unmarshal(body["remaining"], &remaining))
	require.Zero(t, remaining.Standard)
	require.Equal(t, uint64(1), remaining.Boosted)
}

func TestGetTotalsUnknownItem(t *testing.T) {
	srv := newTestServer(t, &fakeNode{totalsErr: store.ErrUnknownItem})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/items/nope/votes", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.JSONEq(t, `"UNKNOWN_ITEM"`, string(body["code"]))
}

func TestRevokeVote(t *testing.T) {
	srv := newTestServer(t, &fakeNode{totals: vote.Totals{Count: 3, WeightedScore: 5}})

	resp, body := doJSON(t, http.MethodDelete, srv.URL+"/v1/items/clip-1/votes",
		"", map[string]string{VoterKeyHeader: "vk-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `3`, string(body["count"]))
}

func TestRevokeVoteNotVoted(t *testing.T) {
	srv := newTestServer(t, &fakeNode{revokeErr: vote.ErrNotVoted})

	resp, body := doJSON(t, http.MethodDelete, srv.URL+"/v1/items/clip-1/votes",
		"", map[string]string{VoterKeyHeader: "vk-1"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.JSONEq(t, `"NOT_VOTED"`, string(body["code"]))
}

func TestLeaderboard(t *testing.T) {
	node := &fakeNode{entries: []scores.Entry{{ID: "clip-1", Score: 42}}}
	srv := newTestServer(t, node)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/leaderboard/items?limit=5", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []scores.Entry
	require.NoError(t, json.Unmarshal(body["entries"], &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "clip-1", entries[0].ID)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/leaderboard/bogus", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.JSONEq(t, `"UNKNOWN_BOARD"`, string(body["code"]))
}

func TestAdminRequiresToken(t *testing.T) {
	srv := newTestServer(t, &fakeNode{})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/admin/items",
		`{"itemId":"clip-1","accountId":"acct-1"}`, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAdmitItem(t *testing.T) {
	node := &fakeNode{}
	srv := newTestServer(t, node)

	endsAt := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/admin/items",
		`{"itemId":"clip-1","accountId":"acct-1","slotPosition":2,"endsAt":"`+endsAt+`"}`,
		map[string]string{TokenHeader: testToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, node.admitted)
	require.Equal(t, "clip-1", node.admitted.ItemID)
	require.Equal(t, store.StatusOpen, node.admitted.Status)
}

func TestAdminBanBearerToken(t *testing.T) {
	node := &fakeNode{}
	srv := newTestServer(t, node)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/admin/accounts/acct-1/ban",
		`{"banned":true}`, map[string]string{"Authorization": "Bearer " + testToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, node.banned["acct-1"])
}

func TestHealthDegraded(t *testing.T) {
	node := &fakeNode{status: Status{Status: "degraded", BreakerState: "open"}}
	srv := newTestServer(t, node)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.JSONEq(t, `"open"`, string(body["breakerState"]))
}
