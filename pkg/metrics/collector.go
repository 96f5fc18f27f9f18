// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-relyingparty.
//
// go-relyingparty is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"context"
	"time"
)

// PendingCounter reports how many pending ceremonies a store holds.
// The in-memory ceremony store satisfies this with its Count method.
type PendingCounter interface {
	Count() int
}

// Collector periodically samples the pending ceremony count into the
// PendingCeremonies gauge.
type Collector struct {
	source   PendingCounter
	interval time.Duration
}

// NewCollector creates a collector sampling the given source. A zero
// interval defaults to 15 seconds.
func NewCollector(source PendingCounter, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
	}
}

// Start samples the gauge on the collector's interval until ctx is
// cancelled.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.collect()
			}
		}
	}()
}

func (c *Collector) collect() {
	SetPendingCeremonies(float64(c.source.Count()))
}
