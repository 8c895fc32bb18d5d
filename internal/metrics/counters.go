// Copyright (c) 2015-2021 MinIO, Inc.
//
// This file is part of MinIO Object Storage stack
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package metrics

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/clinicore/deviceintegration/internal/events"
)

// EventCounters tallies every broadcast event by type, so the events
// metrics group can export counters without every producer (orchestrator,
// queue, indexer) knowing about Prometheus.
type EventCounters struct {
	mu     sync.Mutex
	counts map[events.Type]*atomic.Int64
}

// NewEventCounters subscribes to bus and starts tallying.
func NewEventCounters(bus *events.Broadcaster) *EventCounters {
	c := &EventCounters{counts: make(map[events.Type]*atomic.Int64)}
	bus.Subscribe(func(env events.Envelope) {
		c.counterFor(env.Type).Inc()
	})
	return c
}

func (c *EventCounters) counterFor(t events.Type) *atomic.Int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctr, ok := c.counts[t]
	if !ok {
		ctr = atomic.NewInt64(0)
		c.counts[t] = ctr
	}
	return ctr
}

// Snapshot returns the current count for every event type observed so far.
func (c *EventCounters) Snapshot() map[events.Type]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[events.Type]int64, len(c.counts))
	for t, ctr := range c.counts {
		out[t] = ctr.Load()
	}
	return out
}
