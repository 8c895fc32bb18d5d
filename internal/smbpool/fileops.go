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

	"github.com/clinicore/deviceintegration/internal/filecache"
	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/scanner"
)

// ScanDirectoryRecursive acquires device's connection and runs the bounded
// recursive walk of internal/scanner against it.
func (p *Pool) ScanDirectoryRecursive(ctx context.Context, device model.Device, base string, opts model.ScanOptions) (model.ScanResult, error) {
	h, err := p.Acquire(ctx, device)
	if err != nil {
		return model.ScanResult{}, err
	}
	return scanner.Scan(ctx, throttledLister{client: h.client, handle: h}, base, opts), nil
}

// throttledLister gates every directory listing a recursive scan issues
// through the handle's per-device rate limiter, so a deep tree walk cannot
// burst requests against the device faster than RequestsPerSecond allows.
type throttledLister struct {
	client smbClient
	handle *ConnectionHandle
}

func (t throttledLister) ListDir(ctx context.Context, dirPath string) ([]scanner.Entry, error) {
	if err := t.handle.throttle(ctx); err != nil {
		return nil, err
	}
	return t.client.ListDir(ctx, dirPath)
}

// ListDir acquires device's connection and lists one directory's immediate
// children, for callers that do not need a full recursive scan.
func (p *Pool) ListDir(ctx context.Context, device model.Device, dirPath string) ([]scanner.Entry, error) {
	h, err := p.Acquire(ctx, device)
	if err != nil {
		return nil, err
	}
	if err := h.throttle(ctx); err != nil {
		return nil, err
	}
	return h.client.ListDir(ctx, dirPath)
}

// ReadFile returns remotePath's contents, serving from the cache when
// present and not expired, and populating the cache on a miss, per
// the file cache's timeout-eviction contract.
func (p *Pool) ReadFile(ctx context.Context, device model.Device, remotePath string) ([]byte, string, error) {
	key := filecache.Key{DeviceID: device.DeviceID, Path: remotePath}
	if localPath, hit := p.cache.Get(key); hit {
		return nil, localPath, nil
	}

	h, err := p.Acquire(ctx, device)
	if err != nil {
		return nil, "", err
	}
	if err := h.throttle(ctx); err != nil {
		return nil, "", err
	}
	data, err := h.client.ReadFile(remotePath)
	if err != nil {
		h.setHealth(false, err)
		return nil, "", err
	}

	localPath, err := p.cache.Put(key, data)
	if err != nil {
		return data, "", nil
	}
	return data, localPath, nil
}

// WriteFile writes data to remotePath on device's share.
func (p *Pool) WriteFile(ctx context.Context, device model.Device, remotePath string, data []byte) error {
	h, err := p.Acquire(ctx, device)
	if err != nil {
		return err
	}
	if err := h.throttle(ctx); err != nil {
		return err
	}
	return h.client.WriteFile(remotePath, data)
}

// FileExists reports whether remotePath exists on device's share.
func (p *Pool) FileExists(ctx context.Context, device model.Device, remotePath string) (bool, error) {
	h, err := p.Acquire(ctx, device)
	if err != nil {
		return false, err
	}
	if err := h.throttle(ctx); err != nil {
		return false, err
	}
	return h.client.Exists(remotePath), nil
}

// Mkdir creates remotePath (and parents) on device's share.
func (p *Pool) Mkdir(ctx context.Context, device model.Device, remotePath string) error {
	h, err := p.Acquire(ctx, device)
	if err != nil {
		return err
	}
	if err := h.throttle(ctx); err != nil {
		return err
	}
	return h.client.Mkdir(remotePath)
}

// Unlink removes remotePath from device's share. Not idempotent: callers
// wanting delete-if-exists semantics should call FileExists first.
func (p *Pool) Unlink(ctx context.Context, device model.Device, remotePath string) error {
	h, err := p.Acquire(ctx, device)
	if err != nil {
		return err
	}
	if err := h.throttle(ctx); err != nil {
		return err
	}
	return h.client.Unlink(remotePath)
}
