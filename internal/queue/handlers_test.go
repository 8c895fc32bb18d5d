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
	"errors"
	"os"
	"testing"

	"github.com/clinicore/deviceintegration/internal/adapter"
	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/indexer"
	"github.com/clinicore/deviceintegration/internal/model"
)

type fakeDeviceStore struct {
	devices map[string]*model.Device
}

func (f *fakeDeviceStore) Get(ctx context.Context, deviceID string) (*model.Device, error) {
	d, ok := f.devices[deviceID]
	if !ok {
		return nil, errors.New("device not found")
	}
	return d, nil
}

func (f *fakeDeviceStore) ListSMBConfigured(ctx context.Context) ([]*model.Device, error) {
	return nil, nil
}

func (f *fakeDeviceStore) UpdateIntegration(ctx context.Context, deviceID string, integration model.Integration) error {
	return nil
}

type fakeReader struct {
	data      []byte
	localPath string
	err       error
}

func (f *fakeReader) ReadFile(ctx context.Context, device model.Device, remotePath string) ([]byte, string, error) {
	return f.data, f.localPath, f.err
}

type fakeMatcher struct {
	match    *indexer.Match
	matchErr error
	stats    indexer.Stats
	statsErr error
}

func (f *fakeMatcher) FindPatientMatch(ctx context.Context, folderName, deviceType string) (*indexer.Match, error) {
	return f.match, f.matchErr
}

func (f *fakeMatcher) IndexDeviceFolder(ctx context.Context, device model.Device, opts indexer.Options) (indexer.Stats, error) {
	return f.stats, f.statsErr
}

type fakeAdapter struct {
	records []map[string]any
	parseErr error
	result  model.AdapterResult
}

func (a *fakeAdapter) Validate(map[string]any) adapter.ValidationResult { return adapter.ValidationResult{IsValid: true} }
func (a *fakeAdapter) Transform(map[string]any) (*model.Measurement, error) { return &model.Measurement{}, nil }
func (a *fakeAdapter) ParseFile(data []byte, format string) ([]map[string]any, error) {
	return a.records, a.parseErr
}
func (a *fakeAdapter) Process(ctx context.Context, data map[string]any, pctx adapter.ProcessContext) model.AdapterResult {
	return a.result
}
func (a *fakeAdapter) ExtractPatientDemographics(map[string]any) *model.PatientInfo { return nil }

func testDevice(deviceType string) *model.Device {
	return &model.Device{DeviceID: "dev1", Type: deviceType, Protocol: model.ProtocolSMB, Host: "10.0.0.5", Share: "images"}
}

func TestFileProcessHandlerCountsSuccessfulRecords(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register("specular-microscope", &fakeAdapter{
		records: []map[string]any{{"cellDensity": 2500}, {"cellDensity": 2600}},
		result:  model.AdapterResult{Success: true},
	})

	deps := HandlerDeps{
		Devices:  &fakeDeviceStore{devices: map[string]*model.Device{"dev1": testDevice("specular-microscope")}},
		Adapters: registry,
		SMB:      &fakeReader{data: []byte("cellDensity\n2500\n2600\n")},
		Bus:      events.NewBroadcaster(nil, nil),
	}

	out, err := deps.fileProcessHandler(context.Background(), model.Job{
		Data: map[string]any{"deviceId": "dev1", "path": "PatientA/exam1.csv"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["measurementCount"] != 2 || out["recordCount"] != 2 {
		t.Fatalf("expected 2/2, got %v", out)
	}
}

func TestFileProcessHandlerReadsCachedCopyFromLocalDisk(t *testing.T) {
	dir := t.TempDir()
	cachedFile := dir + "/cached.csv"
	if err := os.WriteFile(cachedFile, []byte("cellDensity\n2500\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	registry := adapter.NewRegistry()
	registry.Register("specular-microscope", &fakeAdapter{
		records: []map[string]any{{"cellDensity": 2500}},
		result:  model.AdapterResult{Success: true},
	})

	deps := HandlerDeps{
		Devices:  &fakeDeviceStore{devices: map[string]*model.Device{"dev1": testDevice("specular-microscope")}},
		Adapters: registry,
		SMB:      &fakeReader{data: nil, localPath: cachedFile},
		Bus:      events.NewBroadcaster(nil, nil),
	}

	out, err := deps.fileProcessHandler(context.Background(), model.Job{
		Data: map[string]any{"deviceId": "dev1", "path": "PatientA/exam1.csv"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["measurementCount"] != 1 {
		t.Fatalf("expected the cached copy to be read and parsed, got %v", out)
	}
}

func TestFileProcessHandlerMissingDeviceIdFails(t *testing.T) {
	deps := HandlerDeps{Devices: &fakeDeviceStore{devices: map[string]*model.Device{}}}
	_, err := deps.fileProcessHandler(context.Background(), model.Job{Data: map[string]any{"path": "x"}})
	if err == nil {
		t.Fatal("expected an error for a missing deviceId")
	}
}

func TestPatientMatchHandlerReportsNoMatch(t *testing.T) {
	deps := HandlerDeps{
		Devices: &fakeDeviceStore{devices: map[string]*model.Device{"dev1": testDevice("oct")}},
		Indexer: &fakeMatcher{match: nil},
		Bus:     events.NewBroadcaster(nil, nil),
	}
	out, err := deps.patientMatchHandler(context.Background(), model.Job{
		Data: map[string]any{"deviceId": "dev1", "path": "Unknown_Folder"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["matched"] != false {
		t.Fatalf("expected no match, got %v", out)
	}
}

func TestPatientMatchHandlerReportsMatch(t *testing.T) {
	deps := HandlerDeps{
		Devices: &fakeDeviceStore{devices: map[string]*model.Device{"dev1": testDevice("oct")}},
		Indexer: &fakeMatcher{match: &indexer.Match{PatientID: "p123", Confidence: 0.9}},
		Bus:     events.NewBroadcaster(nil, nil),
	}
	out, err := deps.patientMatchHandler(context.Background(), model.Job{
		Data: map[string]any{"deviceId": "dev1", "path": "Smith_John"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["matched"] != true || out["patientId"] != "p123" {
		t.Fatalf("expected a match on p123, got %v", out)
	}
}

func TestFolderIndexHandlerReturnsStats(t *testing.T) {
	deps := HandlerDeps{
		Devices: &fakeDeviceStore{devices: map[string]*model.Device{"dev1": testDevice("oct")}},
		Indexer: &fakeMatcher{stats: indexer.Stats{FoldersScanned: 10, Matched: 7, Unmatched: 3}},
	}
	out, err := deps.folderIndexHandler(context.Background(), model.Job{Data: map[string]any{"deviceId": "dev1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["scanned"] != 10 || out["matched"] != 7 || out["unmatched"] != 3 {
		t.Fatalf("unexpected stats: %v", out)
	}
}

func TestBatchImportHandlerTalliesPerFileOutcome(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register("specular-microscope", &fakeAdapter{
		records: []map[string]any{{"cellDensity": 2500}},
		result:  model.AdapterResult{Success: true},
	})

	deps := HandlerDeps{
		Devices:  &fakeDeviceStore{devices: map[string]*model.Device{"dev1": testDevice("specular-microscope")}},
		Adapters: registry,
		SMB:      &fakeReader{data: []byte("cellDensity\n2500\n")},
		Bus:      events.NewBroadcaster(nil, nil),
	}

	out, err := deps.batchImportHandler(context.Background(), model.Job{
		Data: map[string]any{
			"deviceId": "dev1",
			"payload":  map[string]any{"files": []any{"a/one.csv", "", "a/two.csv"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["succeeded"] != 2 || out["failed"] != 1 || out["total"] != 3 {
		t.Fatalf("unexpected batch tally: %v", out)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]string{
		"a/b.csv": "csv", "a/b.JSON": "json", "a/b.dcm": "dicom", "a/b.weird": "proprietary",
	}
	for path, want := range cases {
		if got := detectFormat(path); got != want {
			t.Errorf("detectFormat(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestFolderIdentity(t *testing.T) {
	patientID, examID := folderIdentity("Smith_John/exam_20240101.csv")
	if patientID != "Smith_John" || examID != "exam_20240101" {
		t.Fatalf("got (%q, %q)", patientID, examID)
	}
}
