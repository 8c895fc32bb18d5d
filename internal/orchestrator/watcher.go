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

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/xlog"
)

// StartLocalWatcher watches root on the local filesystem for the given
// device -- the alternative to scheduled SMB polling for a device mounted
// directly on the host ("optional, for locally mounted
// shares"). Dotfiles are ignored; writes are debounced by a
// write-stabilization window before being enqueued, since editors and
// device export tools both tend to emit several rapid writes per file.
// Returns an error immediately if the underlying watch API is
// unavailable on this platform, since inotify-class watching cannot be
// emulated without falling back to polling, which StartScheduler already
// provides.
func (o *Orchestrator) StartLocalWatcher(ctx context.Context, deviceID, root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		watcher.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	debouncer := newStabilizationDebouncer(o.cfg.WatchStabilizeWindow, func(path string) {
		o.handleWatchedWrite(ctx, deviceID, path)
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer watcher.Close()
		defer debouncer.stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				o.handleWatchEvent(ctx, deviceID, watcher, debouncer, ev)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				xlog.Device(deviceID).Warn("filesystem watcher error", zap.Error(err))
			}
		}
	}()

	prevStop := o.watcherStop
	o.watcherStop = func() {
		if prevStop != nil {
			prevStop()
		}
		cancel()
	}
	return nil
}

func (o *Orchestrator) handleWatchEvent(ctx context.Context, deviceID string, watcher *fsnotify.Watcher, debouncer *stabilizationDebouncer, ev fsnotify.Event) {
	if isDotfile(ev.Name) {
		return
	}

	switch {
	case ev.Op&fsnotify.Remove == fsnotify.Remove || ev.Op&fsnotify.Rename == fsnotify.Rename:
		o.deps.Bus.Emit(events.FileRemoved, map[string]any{"deviceId": deviceID, "path": ev.Name})

	case ev.Op&fsnotify.Create == fsnotify.Create:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			watcher.Add(ev.Name)
			o.enqueueFolderMatch(ctx, deviceID, ev.Name)
			return
		}
		debouncer.touch(ev.Name)

	case ev.Op&fsnotify.Write == fsnotify.Write:
		debouncer.touch(ev.Name)
	}
}

func (o *Orchestrator) handleWatchedWrite(ctx context.Context, deviceID, path string) {
	priority := model.PriorityScheduled
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".xml") || strings.HasSuffix(lower, ".dcm") {
		priority = model.PriorityWatcher
	}
	if _, err := o.deps.Queue.AddJob(ctx, model.JobFileProcess, map[string]any{
		"deviceId": deviceID,
		"path":     path,
	}, model.AddJobOptions{Priority: priority}); err != nil {
		xlog.Device(deviceID).Warn("failed to enqueue watched file", zap.String("path", path), zap.Error(err))
	}
}

func (o *Orchestrator) enqueueFolderMatch(ctx context.Context, deviceID, path string) {
	if _, err := o.deps.Queue.AddJob(ctx, model.JobPatientMatch, map[string]any{
		"deviceId": deviceID,
		"path":     path,
	}, model.AddJobOptions{Priority: model.PriorityFolder}); err != nil {
		xlog.Device(deviceID).Warn("failed to enqueue patient_match for new folder", zap.String("path", path), zap.Error(err))
	}
}

func isDotfile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// stabilizationDebouncer delays a per-path callback until no further
// writes to that path have been observed for window.
type stabilizationDebouncer struct {
	window time.Duration
	fire   func(path string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newStabilizationDebouncer(window time.Duration, fire func(path string)) *stabilizationDebouncer {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &stabilizationDebouncer{window: window, fire: fire, timers: make(map[string]*time.Timer)}
}

func (d *stabilizationDebouncer) touch(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.timers[path] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, path)
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			d.fire(path)
		}
	})
}

func (d *stabilizationDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for _, t := range d.timers {
		t.Stop()
	}
}
