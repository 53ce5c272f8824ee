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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	c, err := LoadConfigFromDisk(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, defaultLocal, c)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `{"Version": 1, "ListenAddress": "0.0.0.0:9999", "EnableFastVoting": false}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(content), 0o644))

	c, err := LoadConfigFromDisk(dir)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9999", c.ListenAddress)
	require.False(t, c.EnableFastVoting)
	// untouched fields keep their defaults
	require.Equal(t, defaultLocal.DailyStandardLimit, c.DailyStandardLimit)
	require.Equal(t, defaultLocal.LedgerAddress, c.LedgerAddress)
}

func TestSaveRoundTripKeepsOnlyChanges(t *testing.T) {
	dir := t.TempDir()
	c := GetDefaultLocal()
	c.APIToken = "secret"
	c.DailyStandardLimit = 50
	require.NoError(t, c.SaveToDisk(dir))

	raw, err := os.ReadFile(filepath.Join(dir, ConfigFilename))
	require.NoError(t, err)
	require.Contains(t, string(raw), "APIToken")
	require.Contains(t, string(raw), "DailyStandardLimit")
	require.NotContains(t, string(raw), "LedgerAddress")

	loaded, err := LoadConfigFromDisk(dir)
	require.NoError(t, err)
	require.Equal(t, c, loaded)
}

func TestMigrateFillsNewFields(t *testing.T) {
	dir := t.TempDir()
	// a version-0 file written before the count cache existed
	content := `{"Version": 0, "ListenAddress": "127.0.0.1:7000"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(content), 0o644))

	c, err := LoadConfigFromDisk(dir)
	require.NoError(t, err)
	require.Equal(t, defaultLocal.Version, c.Version)
	require.Equal(t, "127.0.0.1:7000", c.ListenAddress)
	require.Equal(t, defaultLocal.CountCacheSize, c.CountCacheSize)
}

func TestDurationAccessors(t *testing.T) {
	c := GetDefaultLocal()
	require.Equal(t, 500*time.Millisecond, c.LedgerRequestTimeout())
	require.Equal(t, time.Minute, c.BreakerWindow())
	require.Equal(t, 72*time.Hour, c.DedupTTL())
}

func TestResolveDBPath(t *testing.T) {
	c := GetDefaultLocal()
	require.Equal(t, filepath.Join("/data", VotesDBFilename), c.ResolveDBPath("/data"))
	c.VotesDBFile = "/elsewhere/votes.sqlite"
	require.Equal(t, "/elsewhere/votes.sqlite", c.ResolveDBPath("/data"))
}
