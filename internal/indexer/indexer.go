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

// Package indexer implements the patient folder indexer:
// matching a device folder name to an existing patient via legacy-ID
// mappings, name heuristics, and previously confirmed folder-mapping
// records, staging unresolved folders for operator review.
package indexer

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/external"
	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/smbpool"
	"github.com/clinicore/deviceintegration/internal/xlog"
)

// Deps are the indexer's external collaborators.
type Deps struct {
	Devices   external.DeviceStore
	Matcher   external.PatientMatcher
	Mappings  external.FolderMappingStore
	Unmatched external.UnmatchedFolderStore
	SMB       *smbpool.Pool
	Bus       *events.Broadcaster
}

// Options bounds one indexing pass.
type Options struct {
	MaxDepth int
	MaxFiles int
	BasePath string
}

// DefaultOptions mirrors the folder_index job handler: depth 5,
// 2000-file cap.
func DefaultOptions() Options {
	return Options{MaxDepth: 5, MaxFiles: 2000}
}

// Match is the outcome of a successful folder-to-patient resolution.
type Match struct {
	PatientID  string
	Confidence float64
	Method     string // "mapping", "legacy-id", "name"
}

// Stats summarizes one or more indexing passes.
type Stats struct {
	FoldersScanned int
	Matched        int
	Unmatched      int
}

// Indexer resolves device folders to patient records.
type Indexer struct {
	deps    Deps
	matched atomic.Int64
	unmatch atomic.Int64
	scanned atomic.Int64
}

// New builds an Indexer.
func New(deps Deps) *Indexer {
	return &Indexer{deps: deps}
}

// IndexAllDevices runs IndexDeviceFolder over every SMB-configured device,
// aggregating results.
func (idx *Indexer) IndexAllDevices(ctx context.Context, opts Options) (Stats, error) {
	devices, err := idx.deps.Devices.ListSMBConfigured(ctx)
	if err != nil {
		return Stats{}, err
	}

	var total Stats
	for _, d := range devices {
		s, err := idx.IndexDeviceFolder(ctx, *d, opts)
		if err != nil {
			xlog.Device(d.DeviceID).Warn("folder indexing failed", zap.Error(err))
			continue
		}
		total.FoldersScanned += s.FoldersScanned
		total.Matched += s.Matched
		total.Unmatched += s.Unmatched
	}
	return total, nil
}

// IndexDeviceFolder scans device's directory tree and attempts to match
// every discovered directory to a patient.
func (idx *Indexer) IndexDeviceFolder(ctx context.Context, device model.Device, opts Options) (Stats, error) {
	scanOpts := model.ScanOptions{MaxDepth: opts.MaxDepth, MaxFiles: opts.MaxFiles}
	if scanOpts.MaxDepth == 0 {
		scanOpts.MaxDepth = 5
	}
	if scanOpts.MaxFiles == 0 {
		scanOpts.MaxFiles = 2000
	}

	result, err := idx.deps.SMB.ScanDirectoryRecursive(ctx, device, opts.BasePath, scanOpts)
	if err != nil {
		return Stats{}, err
	}

	var scannedBytes uint64
	for _, f := range result.Files {
		scannedBytes += uint64(f.Size)
	}
	xlog.Device(device.DeviceID).Info("folder scan complete",
		zap.Int("directories", len(result.Directories)),
		zap.Int("files", len(result.Files)),
		zap.String("scannedSize", humanize.Bytes(scannedBytes)),
		zap.Bool("truncated", result.Truncated))

	var s Stats
	for _, dir := range result.Directories {
		s.FoldersScanned++
		idx.scanned.Inc()

		match, err := idx.FindPatientMatch(ctx, normalizeFolderName(dir.Path), device.Type)
		if err != nil {
			xlog.Device(device.DeviceID).Warn("folder match lookup failed", zap.String("folder", dir.Path), zap.Error(err))
			continue
		}
		if match != nil {
			s.Matched++
			idx.matched.Inc()
			idx.deps.Bus.Emit(events.PatientMatched, map[string]any{
				"deviceId":   device.DeviceID,
				"folderName": dir.Path,
				"patientId":  match.PatientID,
				"confidence": match.Confidence,
				"method":     match.Method,
			})
			continue
		}

		s.Unmatched++
		idx.unmatch.Inc()
		idx.stageUnmatched(ctx, dir.Path, device.Type, nil)
	}

	idx.deps.Bus.Emit(events.FoldersIndexed, map[string]any{
		"deviceId":  device.DeviceID,
		"scanned":   s.FoldersScanned,
		"matched":   s.Matched,
		"unmatched": s.Unmatched,
	})
	return s, nil
}

// folderNameRe splits a folder name into candidate last/first name
// fragments, the same "Lastname_Firstname" convention filename parsing
// assumes in internal/processor.
var folderNameRe = regexp.MustCompile(`(?i)^([A-Za-z]+)[_\-\s]+([A-Za-z]+)`)

// legacyIDRe pulls a bare numeric legacy identifier out of a folder name.
// The run of digits may be joined to letters or underscores on either side
// (e.g. "export_123456") but not to further digits.
var legacyIDRe = regexp.MustCompile(`(?:^|\D)(\d{4,12})(?:\D|$)`)

// FindPatientMatch tries, in order: a previously confirmed folder mapping,
// a legacy-ID lookup, then a name-based heuristic against the patient
// store. Returns nil (no error) when nothing resolves confidently.
func (idx *Indexer) FindPatientMatch(ctx context.Context, folderName, deviceType string) (*Match, error) {
	if idx.deps.Mappings != nil {
		if patientID, ok, err := idx.deps.Mappings.Get(ctx, folderName, deviceType); err != nil {
			return nil, err
		} else if ok {
			return &Match{PatientID: patientID, Confidence: 1.0, Method: "mapping"}, nil
		}
	}

	if m := legacyIDRe.FindStringSubmatch(folderName); m != nil {
		patientID, ok, err := idx.deps.Matcher.FindByLegacyID(ctx, m[1])
		if err != nil {
			return nil, err
		}
		if ok {
			return &Match{PatientID: patientID, Confidence: 0.9, Method: "legacy-id"}, nil
		}
	}

	if m := folderNameRe.FindStringSubmatch(folderName); m != nil {
		candidates, err := idx.deps.Matcher.FindByName(ctx, m[2], m[1])
		if err != nil {
			return nil, err
		}
		if len(candidates) == 1 {
			return &Match{PatientID: candidates[0], Confidence: 0.75, Method: "name"}, nil
		}
		if len(candidates) > 1 {
			idx.stageUnmatched(ctx, folderName, deviceType, candidates)
			return nil, nil
		}
	}

	return nil, nil
}

func (idx *Indexer) stageUnmatched(ctx context.Context, folderName, deviceType string, candidates []string) {
	if idx.deps.Unmatched == nil {
		return
	}
	now := time.Now().UTC()
	ticket := model.UnmatchedFolderTicket{
		FolderName: folderName,
		DeviceType: deviceType,
		Candidates: candidates,
		CreatedAt:  now,
		ExpiresAt:  now.Add(model.TicketTTL),
	}
	if err := idx.deps.Unmatched.Save(ctx, ticket); err != nil {
		xlog.L().Warn("failed to stage unmatched folder ticket", zap.String("folder", folderName), zap.Error(err))
	}
}

// ManualLinkFolder records an operator-confirmed folder-to-patient link so
// future encounters of the same folder resolve immediately.
func (idx *Indexer) ManualLinkFolder(ctx context.Context, folderPath, patientID, deviceType, userID string) error {
	if err := idx.deps.Mappings.Save(ctx, folderPath, deviceType, patientID, userID); err != nil {
		return err
	}
	idx.deps.Unmatched.Delete(ctx, folderPath, deviceType)
	idx.deps.Bus.Emit(events.PatientMatched, map[string]any{
		"folderName": folderPath,
		"patientId":  patientID,
		"confidence": 1.0,
		"method":     "manual",
	})
	return nil
}

// GetStats returns cumulative indexing counters since process start.
func (idx *Indexer) GetStats() Stats {
	return Stats{
		FoldersScanned: int(idx.scanned.Load()),
		Matched:        int(idx.matched.Load()),
		Unmatched:      int(idx.unmatch.Load()),
	}
}

// GetUnmatchedFolders lists folders currently staged for operator review.
func (idx *Indexer) GetUnmatchedFolders(ctx context.Context) ([]model.UnmatchedFolderTicket, error) {
	if idx.deps.Unmatched == nil {
		return nil, nil
	}
	return idx.deps.Unmatched.List(ctx)
}

// normalizeFolderName strips path separators down to the leaf folder name,
// the unit every matching strategy above operates on.
func normalizeFolderName(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
