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

package main

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var (
	topLimit     int64
	admitAccount string
	admitSlot    uint64
	admitEndsIn  time.Duration
	banLift      bool
)

func init() {
	topCmd.Flags().Int64Var(&topLimit, "limit", 10, "Number of entries to return")

	admitCmd.Flags().StringVar(&admitAccount, "account", "", "Creator account of the item")
	admitCmd.Flags().Uint64Var(&admitSlot, "slot", 0, "Slot position the item competes in")
	admitCmd.Flags().DurationVar(&admitEndsIn, "ends-in", 24*time.Hour, "Voting window duration from now")
	admitCmd.MarkFlagRequired("account")

	banCmd.Flags().BoolVar(&banLift, "lift", false, "Lift the ban instead of imposing it")

	rootCmd.AddCommand(totalsCmd, topCmd, healthCmd, admitCmd, freezeCmd, banCmd, clearCmd)
}

var totalsCmd = &cobra.Command{
	Use:   "totals [itemID]",
	Short: "Show an item's vote count and weighted score",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp struct {
			Count         uint64 `json:"count"`
			WeightedScore uint64 `json:"weightedScore"`
		}
		if err := call(http.MethodGet, "/v1/items/"+url.PathEscape(args[0])+"/votes", nil, &resp); err != nil {
			reportErrorf("totals: %v", err)
		}
		fmt.Printf("%s: %d votes, weighted score %d\n", args[0], resp.Count, resp.WeightedScore)
	},
}

var topCmd = &cobra.Command{
	Use:   "top [items|creators|voters]",
	Short: "Show a leaderboard",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp struct {
			Entries []struct {
				ID    string  `json:"id"`
				Score float64 `json:"score"`
			} `json:"entries"`
		}
		path := fmt.Sprintf("/v1/leaderboard/%s?limit=%d", url.PathEscape(args[0]), topLimit)
		if err := call(http.MethodGet, path, nil, &resp); err != nil {
			reportErrorf("top: %v", err)
		}
		for i, e := range resp.Entries {
			fmt.Printf("%3d. %-40s %.0f\n", i+1, e.ID, e.Score)
		}
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show daemon health",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var resp struct {
			Status       string `json:"status"`
			FastVoting   bool   `json:"fastVoting"`
			BreakerState string `json:"breakerState"`
			Viewers      int    `json:"viewers"`
		}
		if err := call(http.MethodGet, "/health", nil, &resp); err != nil {
			reportErrorf("health: %v", err)
		}
		fmt.Printf("status: %s\nfast voting: %v\nbreaker: %s\nviewers: %d\n",
			resp.Status, resp.FastVoting, resp.BreakerState, resp.Viewers)
	},
}

var admitCmd = &cobra.Command{
	Use:   "admit-item [itemID]",
	Short: "Admit an item into a voting slot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body := map[string]interface{}{
			"itemId":       args[0],
			"accountId":    admitAccount,
			"slotPosition": admitSlot,
			"endsAt":       time.Now().Add(admitEndsIn).UTC(),
		}
		if err := call(http.MethodPost, "/v1/admin/items", body, nil); err != nil {
			reportErrorf("admit-item: %v", err)
		}
		fmt.Printf("admitted %s into slot %d\n", args[0], admitSlot)
	},
}

var freezeCmd = &cobra.Command{
	Use:   "freeze [slotPosition]",
	Short: "Freeze a slot's items and clear their ledger state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp struct {
			FrozenItems int64 `json:"frozenItems"`
		}
		if err := call(http.MethodPost, "/v1/admin/slots/"+url.PathEscape(args[0])+"/freeze", nil, &resp); err != nil {
			reportErrorf("freeze: %v", err)
		}
		fmt.Printf("froze %d items\n", resp.FrozenItems)
	},
}

var banCmd = &cobra.Command{
	Use:   "ban [accountID]",
	Short: "Ban an account from voting (or lift the ban with --lift)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body := map[string]bool{"banned": !banLift}
		if err := call(http.MethodPost, "/v1/admin/accounts/"+url.PathEscape(args[0])+"/ban", body, nil); err != nil {
			reportErrorf("ban: %v", err)
		}
		if banLift {
			fmt.Printf("lifted ban on %s\n", args[0])
		} else {
			fmt.Printf("banned %s\n", args[0])
		}
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear [itemID...]",
	Short: "Drop the ledger state of the given items",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body := map[string][]string{"itemIds": args}
		if err := call(http.MethodPost, "/v1/admin/ledger/clear", body, nil); err != nil {
			reportErrorf("clear: %v", err)
		}
		fmt.Printf("cleared %d items\n", len(args))
	},
}
