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

// Package voted assembles the voting daemon: config, logging, the ledger
// and store connections, the vote engine, and the REST API server.
package voted

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/cliprally/cliprally/breaker"
	"github.com/cliprally/cliprally/broadcast"
	"github.com/cliprally/cliprally/config"
	"github.com/cliprally/cliprally/countcache"
	"github.com/cliprally/cliprally/daemon/voted/api"
	"github.com/cliprally/cliprally/engine"
	"github.com/cliprally/cliprally/gate"
	"github.com/cliprally/cliprally/ledger"
	"github.com/cliprally/cliprally/logging"
	"github.com/cliprally/cliprally/scores"
	"github.com/cliprally/cliprally/store"
	"github.com/cliprally/cliprally/vote"
)

// LogFilename is the name of the daemon's log file in the data directory.
const LogFilename = "voted.log"

// Server is one running instance of the voting daemon.
type Server struct {
	RootPath string

	log    logging.Logger
	cfg    config.Local
	ledger *ledger.Client
	store  *store.VoteStore
	brk    *breaker.Breaker
	engine *engine.Engine
	hub    *broadcast.Hub
	cache  *countcache.Cache
	ranks  *scores.Updater

	httpSrv *http.Server
}

// Initialize builds every component from the config. Nothing listens yet;
// call Start afterwards.
func (s *Server) Initialize(cfg config.Local) error {
	s.cfg = cfg
	s.log = logging.Base()

	var logWriter io.Writer = os.Stdout
	if cfg.LogSizeLimit > 0 {
		liveLog := filepath.Join(s.RootPath, LogFilename)
		fmt.Println("Logging to:", liveLog)
		logWriter = logging.MakeCyclicFileWriter(liveLog, liveLog+"."+logging.ArchiveTimeToken+".archive", cfg.LogSizeLimit)
	} else {
		fmt.Println("Logging to: stdout")
	}
	s.log.SetOutput(logWriter)
	s.log.SetJSONFormatter()
	s.log.SetLevel(logging.Level(cfg.BaseLoggerDebugLevel))

	if cfg.DeadlockDetection < 0 {
		deadlock.Opts.Disable = true
	}

	s.ledger = ledger.Dial(ledger.Options{
		Addr:           cfg.LedgerAddress,
		Password:       cfg.LedgerPassword,
		DB:             cfg.LedgerDB,
		DialTimeout:    cfg.LedgerDialTimeout(),
		RequestTimeout: cfg.LedgerRequestTimeout(),
	}, s.log)

	var err error
	s.store, err = store.Open(cfg.ResolveDBPath(s.RootPath), false, s.log)
	if err != nil {
		return fmt.Errorf("open vote store: %w", err)
	}

	s.brk = breaker.New(int(cfg.BreakerFailureThreshold), cfg.BreakerWindow(), cfg.BreakerCooldown(), s.log)
	s.hub = broadcast.NewHub(s.log)
	s.ranks = scores.New(s.ledger.Redis(), s.log)
	s.cache = countcache.New(cfg.CountCacheSize, cfg.CountCacheTTL(), s.loadTotals)

	standard, boosted, maximal := cfg.Limits()
	g := gate.New(
		s.ledger,
		storeSlots{store: s.store},
		budgetSource{brk: s.brk, ledger: s.ledger, store: s.store, log: s.log},
		gate.Limits{Standard: standard, Boosted: boosted, Maximal: maximal},
		s.log,
	)

	s.engine = engine.New(engine.Deps{
		Gate:      g,
		Flags:     configFlags{fastVoting: cfg.EnableFastVoting},
		Breaker:   s.brk,
		Ledger:    s.ledger,
		Store:     s.store,
		Scores:    s.ranks,
		Cache:     s.cache,
		Publisher: s.hub,
		Log:       s.log,
	}, engine.Options{
		DedupTTL:      cfg.DedupTTL(),
		LedgerTimeout: cfg.LedgerRequestTimeout(),
	})

	router := api.NewRouter(s.log, s, api.RouterConfig{
		APIToken:       cfg.APIToken,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Updates:        s.hub,
	})
	s.httpSrv = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.RestReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.RestWriteTimeoutSeconds) * time.Second,
	}
	return nil
}

// Start serves the REST API. It blocks until Stop is called.
func (s *Server) Start() error {
	s.log.Infof("voted listening on %s (fast voting: %v)", s.cfg.ListenAddress, s.cfg.EnableFastVoting)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the daemon down: stop accepting requests, drain in-flight
// post-commit work, then release the connections.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.log.Warnf("http shutdown: %v", err)
	}

	s.engine.Flush()
	s.hub.Close()
	s.store.Close()
	if err := s.ledger.Close(); err != nil {
		s.log.Warnf("ledger close: %v", err)
	}
	s.log.Info("voted stopped")
}

// loadTotals is the count cache's miss path: the ledger counter when it
// is live, the durable aggregates otherwise.
func (s *Server) loadTotals(ctx context.Context, itemID string) (vote.Totals, bool, error) {
	if s.brk.State() != breaker.Open {
		if totals, ok, err := s.ledger.Totals(ctx, itemID); err == nil && ok {
			return totals, true, nil
		}
	}
	totals, err := s.store.Totals(ctx, itemID)
	if errors.Is(err, store.ErrUnknownItem) {
		return vote.Totals{}, false, nil
	}
	if err != nil {
		return vote.Totals{}, false, err
	}
	return totals, true, nil
}

// The api.Node surface.

// Cast records a vote.
func (s *Server) Cast(ctx context.Context, req gate.Request) (vote.Outcome, error) {
	return s.engine.Cast(ctx, req)
}

// Revoke removes a vote.
func (s *Server) Revoke(ctx context.Context, itemID, voterKey string) (vote.Totals, error) {
	return s.engine.Revoke(ctx, itemID, voterKey)
}

// Totals returns the item's current tally through the count cache.
func (s *Server) Totals(ctx context.Context, itemID string) (vote.Totals, error) {
	totals, ok, err := s.cache.Get(ctx, itemID)
	if err != nil {
		return vote.Totals{}, err
	}
	if !ok {
		return vote.Totals{}, store.ErrUnknownItem
	}
	return totals, nil
}

// Leaderboard returns the top entries of the named board.
func (s *Server) Leaderboard(ctx context.Context, board string, limit int64) ([]scores.Entry, error) {
	return s.ranks.Top(ctx, board, limit)
}

// AdmitItem creates the durable item row and seeds the ledger's round
// state. A ledger failure is not fatal: votes on the item will use the
// durable path until reconciliation warms the ledger.
func (s *Server) AdmitItem(ctx context.Context, item store.Item) error {
	if err := s.store.AdmitItem(ctx, item); err != nil {
		return err
	}
	if err := s.ledger.SeedSlot(ctx, item.ItemID, item.EndsAt); err != nil {
		s.log.Warnf("ledger round state for %s not seeded: %v", item.ItemID, err)
	}
	return nil
}

// FreezeSlot closes the round: freezes the durable aggregates and clears
// the ledger's per-item round state.
func (s *Server) FreezeSlot(ctx context.Context, slotPosition uint64) (int64, error) {
	frozen, err := s.store.FreezeSlot(ctx, slotPosition)
	if err != nil {
		return 0, err
	}
	itemIDs, err := s.store.SlotItems(ctx, slotPosition)
	if err != nil {
		return frozen, err
	}
	if err := s.ledger.Clear(ctx, itemIDs...); err != nil {
		s.log.Warnf("ledger state for slot %d not cleared: %v", slotPosition, err)
	}
	return frozen, nil
}

// SetBanned flips an account's ban flag.
func (s *Server) SetBanned(ctx context.Context, accountID string, banned bool) error {
	return s.ledger.SetBanned(ctx, accountID, banned)
}

// ClearLedger drops the ledger state of the given items.
func (s *Server) ClearLedger(ctx context.Context, itemIDs ...string) error {
	return s.ledger.Clear(ctx, itemIDs...)
}

// Status reports daemon health for /health.
func (s *Server) Status(ctx context.Context) api.Status {
	status := api.Status{
		Status:       "ok",
		FastVoting:   s.cfg.EnableFastVoting,
		BreakerState: s.brk.State().String(),
		Viewers:      s.hub.Viewers(),
		Time:         time.Now().UTC(),
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.ledger.Ping(pctx); err != nil || s.brk.State() == breaker.Open {
		status.Status = "degraded"
	}
	return status
}
