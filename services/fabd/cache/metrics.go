// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheLookups counts lookups by result (hit, miss).
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netfab_plan_cache_lookups_total",
		Help: "Plan cache lookups by result",
	}, []string{"result"})

	// cacheEvictions counts entries dropped by reason (capacity, expired, invalidated).
	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netfab_plan_cache_evictions_total",
		Help: "Plan cache evictions by reason",
	}, []string{"reason"})

	// cacheBuildDuration tracks fabrication latency on a miss.
	cacheBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "netfab_plan_cache_build_duration_seconds",
		Help:    "Time spent fabricating plans on cache misses",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14), // 50µs to ~400ms
	})

	// cacheEntries reports the current entry count.
	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netfab_plan_cache_entries",
		Help: "Plans currently cached",
	})
)
