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

package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/deviceintegration/internal/adapter"
	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/external"
	"github.com/clinicore/deviceintegration/internal/indexer"
	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/xlog"
)

// fileReader is the subset of *smbpool.Pool the file_process/batch_import
// handlers depend on. Narrowed to an interface so handler control flow can
// be exercised against a fake in tests without a live SMB share.
type fileReader interface {
	ReadFile(ctx context.Context, device model.Device, remotePath string) ([]byte, string, error)
}

// folderMatcher is the subset of *indexer.Indexer the patient_match/
// folder_index handlers depend on.
type folderMatcher interface {
	FindPatientMatch(ctx context.Context, folderName, deviceType string) (*indexer.Match, error)
	IndexDeviceFolder(ctx context.Context, device model.Device, opts indexer.Options) (indexer.Stats, error)
}

// HandlerDeps are the collaborators the four built-in job handlers are
// wired against. Registered through RegisterBuiltinHandlers the
// same way a notification target's Init wires its own dependencies before
// being handed to MinIO's event bus.
type HandlerDeps struct {
	Devices  external.DeviceStore
	Adapters *adapter.Registry
	SMB      fileReader
	Indexer  folderMatcher
	Bus      *events.Broadcaster
}

// RegisterBuiltinHandlers installs the four built-in job handlers on q.
func RegisterBuiltinHandlers(q *Queue, deps HandlerDeps) {
	q.RegisterHandler(model.JobFileProcess, deps.fileProcessHandler)
	q.RegisterHandler(model.JobPatientMatch, deps.patientMatchHandler)
	q.RegisterHandler(model.JobFolderIndex, deps.folderIndexHandler)
	q.RegisterHandler(model.JobBatchImport, deps.batchImportHandler)
}

func jobString(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// fileProcessHandler resolves the device, reads the file over SMB, selects
// an adapter by device type, and invokes its ParseFile/Process sequence,
// per the file_process job contract.
func (d HandlerDeps) fileProcessHandler(ctx context.Context, job model.Job) (map[string]any, error) {
	deviceID := jobString(job.Data, "deviceId")
	remotePath := jobString(job.Data, "path")
	if deviceID == "" || remotePath == "" {
		return nil, fmt.Errorf("file_process: missing deviceId or path")
	}

	device, err := d.Devices.Get(ctx, deviceID)
	if err != nil || device == nil {
		return nil, fmt.Errorf("file_process: resolving device %s: %w", deviceID, err)
	}

	data, localPath, err := d.SMB.ReadFile(ctx, *device, remotePath)
	if err != nil {
		return nil, fmt.Errorf("file_process: reading %s: %w", remotePath, err)
	}
	if data == nil && localPath != "" {
		// Pool.ReadFile served this read from its local cache: the bytes
		// live on disk at localPath rather than being returned directly.
		data, err = os.ReadFile(localPath)
		if err != nil {
			return nil, fmt.Errorf("file_process: reading cached copy of %s: %w", remotePath, err)
		}
	}

	a := d.Adapters.Get(device.Type)
	format := detectFormat(remotePath)
	records, err := a.ParseFile(data, format)
	if err != nil {
		return nil, fmt.Errorf("file_process: parsing %s: %w", remotePath, err)
	}

	patientID, examID := folderIdentity(remotePath)
	count := 0
	for _, rec := range records {
		result := a.Process(ctx, rec, adapter.ProcessContext{
			DeviceID:  deviceID,
			PatientID: patientID,
			ExamID:    examID,
			Source:    model.SourceSMBPoll,
		})
		if result.Success {
			count++
		} else {
			xlog.Device(deviceID).Warn("file_process: adapter rejected record",
				zap.String("path", remotePath), zap.String("errorCode", result.ErrorCode))
		}
	}

	d.Bus.Emit(events.FileProcessed, map[string]any{
		"deviceId":          deviceID,
		"path":              remotePath,
		"measurementCount":  count,
		"recordCount":       len(records),
	})
	return map[string]any{"measurementCount": count, "recordCount": len(records)}, nil
}

// patientMatchHandler invokes the indexer against a single folder path
// named in the job, per the patient_match job contract.
func (d HandlerDeps) patientMatchHandler(ctx context.Context, job model.Job) (map[string]any, error) {
	deviceID := jobString(job.Data, "deviceId")
	path := jobString(job.Data, "path")
	if path == "" {
		return map[string]any{"matched": false}, nil
	}

	device, err := d.Devices.Get(ctx, deviceID)
	if err != nil || device == nil {
		return nil, fmt.Errorf("patient_match: resolving device %s: %w", deviceID, err)
	}

	match, err := d.Indexer.FindPatientMatch(ctx, filepath.Base(path), device.Type)
	if err != nil {
		return nil, fmt.Errorf("patient_match: %w", err)
	}
	if match == nil {
		return map[string]any{"matched": false}, nil
	}

	d.Bus.Emit(events.PatientMatched, map[string]any{
		"deviceId":   deviceID,
		"folderName": path,
		"patientId":  match.PatientID,
		"confidence": match.Confidence,
	})
	return map[string]any{"matched": true, "patientId": match.PatientID, "confidence": match.Confidence}, nil
}

// folderIndexHandler runs a bounded recursive scan over the device's share
// and resolves every discovered directory, per the folder_index job
// entry.
func (d HandlerDeps) folderIndexHandler(ctx context.Context, job model.Job) (map[string]any, error) {
	deviceID := jobString(job.Data, "deviceId")
	device, err := d.Devices.Get(ctx, deviceID)
	if err != nil || device == nil {
		return nil, fmt.Errorf("folder_index: resolving device %s: %w", deviceID, err)
	}

	stats, err := d.Indexer.IndexDeviceFolder(ctx, *device, indexer.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("folder_index: %w", err)
	}
	return map[string]any{
		"scanned":   stats.FoldersScanned,
		"matched":   stats.Matched,
		"unmatched": stats.Unmatched,
	}, nil
}

// batchImportHandler replays file_process over every path in the job's
// file list, collecting a per-file outcome, per the batch_import job
// entry.
func (d HandlerDeps) batchImportHandler(ctx context.Context, job model.Job) (map[string]any, error) {
	deviceID := jobString(job.Data, "deviceId")
	payload, _ := job.Data["payload"].(map[string]any)
	rawFiles, _ := payload["files"].([]any)

	succeeded, failed := 0, 0
	for _, rf := range rawFiles {
		path, ok := rf.(string)
		if !ok || path == "" {
			failed++
			continue
		}
		subCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		_, err := d.fileProcessHandler(subCtx, model.Job{Data: map[string]any{"deviceId": deviceID, "path": path}})
		cancel()
		if err != nil {
			xlog.Device(deviceID).Warn("batch_import: file_process failed", zap.String("path", path), zap.Error(err))
			failed++
			continue
		}
		succeeded++
	}
	return map[string]any{"succeeded": succeeded, "failed": failed, "total": len(rawFiles)}, nil
}

// detectFormat infers an adapter ParseFile format token from a file
// extension; unknown extensions map to "proprietary".
func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".xml":
		return "xml"
	case ".txt":
		return "txt"
	case ".dcm":
		return "dicom"
	case ".hl7":
		return "hl7"
	default:
		return "proprietary"
	}
}

// folderIdentity best-efforts a (patientID, examID) pair from a remote
// path: the parent folder name as-is and the file name without its
// extension. The folder name is not parsed or looked up; a full resolution
// belongs to the patient_match job; this is only the cheap fallback
// file_process needs to stamp Measurement.Patient/Exam when no mapping has
// run yet.
func folderIdentity(remotePath string) (patientID, examID string) {
	dir := filepath.Base(filepath.Dir(remotePath))
	examID = strings.TrimSuffix(filepath.Base(remotePath), filepath.Ext(remotePath))
	return dir, examID
}
