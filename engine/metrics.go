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

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	votesCommittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cliprally_votes_committed_total",
		Help: "Votes committed, by recording path.",
	}, []string{"path"})

	votesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cliprally_votes_rejected_total",
		Help: "Votes rejected with a terminal client error, by code.",
	}, []string{"code"})

	fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cliprally_fast_path_fallback_total",
		Help: "Fast path handovers to the durable path, by reason.",
	}, []string{"reason"})

	breakerStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cliprally_ledger_breaker_state",
		Help: "Ledger circuit breaker state (0 closed, 1 open, 2 half-open).",
	})
)
