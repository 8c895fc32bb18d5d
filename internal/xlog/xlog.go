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

// Package xlog wires the service's structured logger. It mirrors
// MinIO's internal/logger posture: a package logger built once at
// startup, plus a LogOnce-style helper so a flapping SMB connection or a
// noisy Redis outage doesn't flood the log.
package xlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log *zap.Logger = zap.NewNop()
)

// Init installs the process-wide logger. Call once at startup.
func Init(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// L returns the current process-wide logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Device returns a logger scoped to a device, the common case across
// smbpool, queue handlers and the orchestrator.
func Device(deviceID string) *zap.Logger {
	return L().With(zap.String("device_id", deviceID))
}

// Job returns a logger scoped to a job.
func Job(jobID string, jobType string) *zap.Logger {
	return L().With(zap.String("job_id", jobID), zap.String("job_type", jobType))
}

// LogOnce dedups a repeated error keyed by id so a flapping connection logs
// the failure once, not once per retry. Mirrors the
// logger.LogOnce(ctx, err, id) shape MinIO uses throughout internal/event/target.
type LogOnce struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewLogOnce constructs a ready-to-use LogOnce deduper.
func NewLogOnce() *LogOnce {
	return &LogOnce{seen: make(map[string]bool)}
}

// Do logs err at Error level the first time it is seen for id, and is a
// no-op on subsequent calls until Reset(id) is called.
func (o *LogOnce) Do(id string, err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen[id] {
		return
	}
	o.seen[id] = true
	L().Error("error suppressed after first occurrence", zap.String("id", id), zap.Error(err))
}

// Reset clears the dedup state for id, called once the underlying condition
// recovers (e.g. a reconnect succeeds).
func (o *LogOnce) Reset(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.seen, id)
}
