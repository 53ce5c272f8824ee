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
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cliprally/cliprally/logging"
)

// MakeLogger returns an echo middleware that logs one line per request.
func MakeLogger(log logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			req := ctx.Request()
			res := ctx.Response()

			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}

			log.Infof("%s \"%s %s %s\" %d %d %s",
				req.RemoteAddr,
				req.Method,
				req.RequestURI,
				req.Proto,
				res.Status,
				res.Size,
				time.Since(start),
			)
			return err
		}
	}
}

// TokenAuth returns an echo middleware that admits requests carrying the
// admin api token in the TokenHeader or as a bearer token. Comparison is
// constant time.
func TokenAuth(apiToken string) echo.MiddlewareFunc {
	tokenBytes := []byte(apiToken)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if apiToken == "" {
				return echo.NewHTTPError(http.StatusForbidden, "admin API disabled")
			}

			req := ctx.Request()
			provided := []byte(req.Header.Get(TokenHeader))
			if len(provided) == 0 {
				auth := strings.SplitN(req.Header.Get("Authorization"), " ", 2)
				if len(auth) == 2 && strings.EqualFold("Bearer", auth[0]) {
					provided = []byte(auth[1])
				}
			}

			if subtle.ConstantTimeCompare(provided, tokenBytes) == 1 {
				return next(ctx)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid API token")
		}
	}
}
