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

// votectl is the admin CLI for the voting daemon. It talks to a running
// voted instance over its REST API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cliprally/cliprally/daemon/voted/api"
)

var (
	serverURL string
	apiToken  string
)

var rootCmd = &cobra.Command{
	Use:   "votectl",
	Short: "Administer a running voted instance",
	Run: func(cmd *cobra.Command, args []string) {
		// no arguments: print help
		cmd.HelpFunc()(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8580", "Base URL of the voted REST API")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "Admin API token (defaults to $VOTED_API_TOKEN)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func reportErrorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func token() string {
	if apiToken != "" {
		return apiToken
	}
	return os.Getenv("VOTED_API_TOKEN")
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

// call performs one API request and decodes the json response into out.
// Error envelopes become an error carrying the server's code and message.
func call(method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, serverURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t := token(); t != "" {
		req.Header.Set(api.TokenHeader, t)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, raw)
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}
