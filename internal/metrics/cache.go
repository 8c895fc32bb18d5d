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
	"time"
)

// cachedValue memoizes the result of Update for TTL, so sequential
// Prometheus scrapes re-walk queue/pool/indexer state at most once per TTL.
// Update runs outside the lock, so concurrent callers that all find the
// value stale may each call it. Adapted from MinIO's timedValue
// (cmd/utils.go), trimmed to the single-value, no-Relax case this package
// needs.
type cachedValue struct {
	Update func() (any, error)
	TTL    time.Duration

	mu         sync.RWMutex
	value      any
	lastUpdate time.Time
}

func (c *cachedValue) ttl() time.Duration {
	if c.TTL <= 0 {
		return time.Second
	}
	return c.TTL
}

// Get returns the cached value if still fresh, otherwise calls Update and
// caches the result.
func (c *cachedValue) Get() (any, error) {
	if v := c.fresh(); v != nil {
		return v, nil
	}
	v, err := c.Update()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.value = v
	c.lastUpdate = time.Now()
	c.mu.Unlock()
	return v, nil
}

func (c *cachedValue) fresh() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil || time.Since(c.lastUpdate) >= c.ttl() {
		return nil
	}
	return c.value
}
