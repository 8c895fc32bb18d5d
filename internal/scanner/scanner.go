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

// Package scanner implements the bounded, depth-first recursive directory
// walk shared by the pool and the indexer. It is a thin wrapper over a Lister so it can be
// exercised in tests without a live SMB connection, mirroring how
// MinIO's folderScanner (cmd/data-scanner.go) is decoupled from the
// erasure backend it ultimately walks.
package scanner

import (
	"context"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/xlog"
)

// dataScannerSleepPerEntry is a throttle hook mirroring
// dataScannerSleepPerFolder in MinIO's cmd/data-scanner.go. It is 0 and
// Scan does not read it, so the walk itself is not throttled.
const dataScannerSleepPerEntry = 0 // disabled by default; callers may wrap Lister to add jitter.

// Entry is one directory listing result, independent of transport.
type Entry struct {
	Name     string
	IsDir    bool
	Size     int64
	Modified time.Time
}

// Lister lists one directory's immediate children. Implementations: the
// SMB pool's remote client, or a local os.ReadDir-backed lister for tests.
type Lister interface {
	ListDir(ctx context.Context, dirPath string) ([]Entry, error)
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".tif": true, ".tiff": true, ".bmp": true}

func classify(name string) (ext string, isImage, isPDF, isXML, isDICOM bool) {
	ext = strings.ToLower(path.Ext(name))
	isImage = imageExts[ext]
	isPDF = ext == ".pdf"
	isXML = ext == ".xml"
	isDICOM = ext == ".dcm" || ext == ".dicom"
	return
}

// Scan performs a depth-first, bounded recursive walk starting at base.
// Errors inside a subtree are logged and skipped so siblings continue, per
// the pool's "Recursive scan" primitive.
func Scan(ctx context.Context, lister Lister, base string, opts model.ScanOptions) model.ScanResult {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 10
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 5000
	}

	var filePattern *regexp.Regexp
	if opts.FilePattern != "" {
		filePattern, _ = regexp.Compile(opts.FilePattern)
	}
	extSet := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		extSet[strings.ToLower(e)] = true
	}

	res := model.ScanResult{}
	walkDir(ctx, lister, base, "", 0, opts, filePattern, extSet, &res)
	return res
}

func walkDir(ctx context.Context, lister Lister, base, rel string, depth int, opts model.ScanOptions,
	filePattern *regexp.Regexp, extSet map[string]bool, res *model.ScanResult,
) {
	if res.Truncated {
		return
	}
	if depth > opts.MaxDepth {
		res.Truncated = true
		return
	}

	full := path.Join(base, rel)
	entries, err := lister.ListDir(ctx, full)
	res.ScannedPaths++
	if err != nil {
		xlog.L().Warn("scan subtree skipped", zap.String("path", full), zap.Error(err))
		return
	}

	var dirs, files []Entry
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		if e.IsDir {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Modified.After(files[j].Modified) })

	for _, d := range dirs {
		childRel := path.Join(rel, d.Name)
		res.Directories = append(res.Directories, model.ScannedDir{Path: childRel, Modified: d.Modified})
	}

	for _, f := range files {
		if len(res.Files) >= opts.MaxFiles {
			res.Truncated = true
			return
		}
		if !opts.ModifiedAfter.IsZero() && !f.Modified.After(opts.ModifiedAfter) {
			continue
		}
		ext, isImage, isPDF, isXML, isDICOM := classify(f.Name)
		if len(extSet) > 0 && !extSet[ext] {
			continue
		}
		if filePattern != nil && !filePattern.MatchString(f.Name) {
			continue
		}
		childRel := path.Join(rel, f.Name)
		res.Files = append(res.Files, model.ScannedFile{
			Path:      childRel,
			Size:      f.Size,
			Modified:  f.Modified,
			Extension: ext,
			IsImage:   isImage,
			IsPDF:     isPDF,
			IsXML:     isXML,
			IsDICOM:   isDICOM,
		})
	}

	for _, d := range dirs {
		if res.Truncated {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		walkDir(ctx, lister, base, path.Join(rel, d.Name), depth+1, opts, filePattern, extSet, res)
	}
}
