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
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cliprally/cliprally/logging"
)

// RouterConfig carries what the router needs beyond the node itself.
type RouterConfig struct {
	// APIToken guards the /v1/admin routes. Empty disables them.
	APIToken string
	// AllowedOrigins lists CORS origins; empty allows none.
	AllowedOrigins []string
	// Updates serves the live-update websocket.
	Updates http.Handler
}

// NewRouter builds the echo router serving the whole REST surface.
func NewRouter(log logging.Logger, node Node, cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(MakeLogger(log))
	e.Use(middleware.Recover())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.AllowedOrigins,
			AllowHeaders: []string{echo.HeaderContentType, VoterKeyHeader, AccountHeader},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		}))
	}

	h := &Handlers{node: node, log: log}

	e.POST("/v1/items/:itemID/votes", h.CastVote)
	e.DELETE("/v1/items/:itemID/votes", h.RevokeVote)
	e.GET("/v1/items/:itemID/votes", h.GetTotals)
	e.GET("/v1/leaderboard/:board", h.GetLeaderboard)
	if cfg.Updates != nil {
		e.GET("/v1/updates", echo.WrapHandler(cfg.Updates))
	}

	e.GET("/health", h.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	admin := e.Group("/v1/admin", TokenAuth(cfg.APIToken))
	admin.POST("/items", h.AdmitItem)
	admin.POST("/slots/:position/freeze", h.FreezeSlot)
	admin.POST("/accounts/:accountID/ban", h.SetBanned)
	admin.POST("/ledger/clear", h.ClearLedger)

	return e
}
