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

package model

import "time"

// ScannedFile describes one file discovered during a directory scan.
type ScannedFile struct {
	Path      string // POSIX-normalized, relative to the scan base
	Size      int64
	Modified  time.Time
	Extension string
	IsImage   bool
	IsPDF     bool
	IsXML     bool
	IsDICOM   bool
}

// ScannedDir describes one directory discovered during a directory scan.
type ScannedDir struct {
	Path     string
	Modified time.Time
}

// ScanResult is the outcome of a bounded recursive scan.
type ScanResult struct {
	Files        []ScannedFile
	Directories  []ScannedDir
	ScannedPaths int
	Truncated    bool
}

// ScanOptions bounds a recursive scan.
type ScanOptions struct {
	MaxDepth      int
	MaxFiles      int
	FilePattern   string // regexp, empty = no filter
	Extensions    []string
	ModifiedAfter time.Time
}

// DefaultScanOptions mirrors the pool's default scan limits.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{MaxDepth: 10, MaxFiles: 5000}
}
