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

// Package config holds the per-instance configuration of the voting
// daemon. Settings load from a config.json in the data directory, merged
// over built-in defaults, so the file only needs to carry what the
// operator changed.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cliprally/cliprally/util/codecs"
)

// ConfigFilename is the name of the config.json file in the data directory.
const ConfigFilename = "config.json"

// VotesDBFilename is the default name of the durable vote database file.
const VotesDBFilename = "votes.sqlite"

// Local holds the per-instance settings of the voting daemon.
type Local struct {
	// Version tracks the defaults version so old config files can be
	// migrated when a default changes meaning.
	Version uint32

	// ListenAddress is the address the REST API binds to.
	ListenAddress string

	// APIToken guards the admin surface of the REST API. Empty disables
	// the admin endpoints entirely.
	APIToken string

	// CORSAllowedOrigins lists the web origins allowed to call the API
	// from a browser. Empty allows none.
	CORSAllowedOrigins []string

	// RestReadTimeoutSeconds and RestWriteTimeoutSeconds are passed to
	// the http.Server wrapping the REST API.
	RestReadTimeoutSeconds  int
	RestWriteTimeoutSeconds int

	// LedgerAddress is the host:port of the vote ledger.
	LedgerAddress  string
	LedgerPassword string
	LedgerDB       int

	// LedgerDialTimeoutSeconds bounds connection establishment;
	// LedgerRequestTimeoutMillis bounds each command on the vote path.
	LedgerDialTimeoutSeconds   int
	LedgerRequestTimeoutMillis int

	// VotesDBFile overrides the durable vote database location. Relative
	// paths resolve against the data directory.
	VotesDBFile string

	// EnableFastVoting selects the ledger recording path for incoming
	// votes. When false every vote goes straight to the durable store.
	EnableFastVoting bool

	// Circuit breaker tuning for the ledger path.
	BreakerFailureThreshold uint64
	BreakerWindowSeconds    int
	BreakerCooldownSeconds  int

	// DedupTTLHours bounds how long a fast-path duplicate marker lives.
	DedupTTLHours int

	// Daily vote budget per voter, per weight class.
	DailyStandardLimit uint64
	DailyBoostedLimit  uint64
	DailyMaximalLimit  uint64

	// Count cache sizing for the totals read path.
	CountCacheSize       uint32
	CountCacheTTLSeconds int

	// Logging
	BaseLoggerDebugLevel uint32
	LogSizeLimit         uint64

	// DeadlockDetection controls the deadlock detector: negative
	// disables, positive enables, zero keeps the build default.
	DeadlockDetection int
}

var defaultLocal = Local{
	Version:                    1,
	ListenAddress:              "127.0.0.1:8580",
	RestReadTimeoutSeconds:     15,
	RestWriteTimeoutSeconds:    30,
	LedgerAddress:              "127.0.0.1:6379",
	LedgerDialTimeoutSeconds:   5,
	LedgerRequestTimeoutMillis: 500,
	VotesDBFile:                VotesDBFilename,
	EnableFastVoting:           true,
	BreakerFailureThreshold:    5,
	BreakerWindowSeconds:       60,
	BreakerCooldownSeconds:     30,
	DedupTTLHours:              72,
	DailyStandardLimit:         200,
	DailyBoostedLimit:          1,
	DailyMaximalLimit:          1,
	CountCacheSize:             4096,
	CountCacheTTLSeconds:       5,
	BaseLoggerDebugLevel:       4, // logrus InfoLevel
	LogSizeLimit:               1073741824,
}

// GetDefaultLocal returns a copy of the built-in defaults.
func GetDefaultLocal() Local {
	return defaultLocal
}

// LoadConfigFromDisk returns the defaults merged with the config file in
// the given data directory. A missing file is not an error: the defaults
// are returned unchanged.
func LoadConfigFromDisk(dataDir string) (Local, error) {
	c := defaultLocal
	err := codecs.LoadObjectFromFile(filepath.Join(dataDir, ConfigFilename), &c)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	return migrate(c), nil
}

// SaveToDisk writes the settings that differ from the defaults into
// dataDir/config.json.
func (cfg Local) SaveToDisk(dataDir string) error {
	return cfg.SaveToFile(filepath.Join(dataDir, ConfigFilename))
}

// SaveToFile saves the config to a specific filename.
func (cfg Local) SaveToFile(filename string) error {
	return codecs.SaveNonDefaultValuesToFile(filename, cfg, defaultLocal, []string{"Version"})
}

// migrate fills fields added after the file's version with their current
// defaults.
func migrate(c Local) Local {
	if c.Version >= defaultLocal.Version {
		return c
	}
	// version 0 predates the count cache settings
	if c.CountCacheSize == 0 {
		c.CountCacheSize = defaultLocal.CountCacheSize
	}
	if c.CountCacheTTLSeconds == 0 {
		c.CountCacheTTLSeconds = defaultLocal.CountCacheTTLSeconds
	}
	c.Version = defaultLocal.Version
	return c
}

// ResolveDBPath returns the absolute path of the vote database for the
// given data directory.
func (cfg Local) ResolveDBPath(dataDir string) string {
	if filepath.IsAbs(cfg.VotesDBFile) {
		return cfg.VotesDBFile
	}
	return filepath.Join(dataDir, cfg.VotesDBFile)
}

// Limits returns the configured daily budget ceilings.
func (cfg Local) Limits() (standard, boosted, maximal uint64) {
	return cfg.DailyStandardLimit, cfg.DailyBoostedLimit, cfg.DailyMaximalLimit
}

// Duration accessors; the on-disk representation stays in plain integer
// units so the file is hand-editable.

// LedgerDialTimeout returns the ledger connect timeout.
func (cfg Local) LedgerDialTimeout() time.Duration {
	return time.Duration(cfg.LedgerDialTimeoutSeconds) * time.Second
}

// LedgerRequestTimeout returns the per-command ledger timeout.
func (cfg Local) LedgerRequestTimeout() time.Duration {
	return time.Duration(cfg.LedgerRequestTimeoutMillis) * time.Millisecond
}

// BreakerWindow returns the rolling failure-counting window.
func (cfg Local) BreakerWindow() time.Duration {
	return time.Duration(cfg.BreakerWindowSeconds) * time.Second
}

// BreakerCooldown returns the open-state cooldown.
func (cfg Local) BreakerCooldown() time.Duration {
	return time.Duration(cfg.BreakerCooldownSeconds) * time.Second
}

// DedupTTL returns the fast-path duplicate marker lifetime.
func (cfg Local) DedupTTL() time.Duration {
	return time.Duration(cfg.DedupTTLHours) * time.Hour
}

// CountCacheTTL returns the totals cache entry lifetime.
func (cfg Local) CountCacheTTL() time.Duration {
	return time.Duration(cfg.CountCacheTTLSeconds) * time.Second
}
