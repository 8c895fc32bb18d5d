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

package adapter

import (
	"context"
	"testing"

	"github.com/clinicore/deviceintegration/internal/model"
)

type fakeMeasurementStore struct {
	saved []*model.Measurement
	err   error
}

func (f *fakeMeasurementStore) Save(ctx context.Context, m *model.Measurement) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, m)
	return "measurement-1", nil
}

type fakeImageStore struct{}

func (f *fakeImageStore) Save(ctx context.Context, img *model.Image) (string, error) {
	return "image-1", nil
}

type fakeLogStore struct {
	completedStatus model.LogStatus
	errDetail       *model.ErrorDetail
}

func (f *fakeLogStore) Create(ctx context.Context, entry *model.IntegrationLogEntry) (string, error) {
	return "log-1", nil
}

func (f *fakeLogStore) Complete(ctx context.Context, id string, status model.LogStatus, proc *model.Processing, created *model.CreatedRecords, errDetail *model.ErrorDetail) error {
	f.completedStatus = status
	f.errDetail = errDetail
	return nil
}

func testDeps() (Deps, *fakeMeasurementStore, *fakeLogStore) {
	ms := &fakeMeasurementStore{}
	ls := &fakeLogStore{}
	return Deps{Measurements: ms, Images: &fakeImageStore{}, Logs: ls}, ms, ls
}

func TestSpecularAdapterValidateRequiresEyeAndECD(t *testing.T) {
	deps, _, _ := testDeps()
	a := NewSpecularMicroscopeAdapter(deps)

	vr := a.Validate(map[string]any{})
	if vr.IsValid {
		t.Fatal("expected validation to fail when eye and ecd are missing")
	}

	vr = a.Validate(map[string]any{"eye": "OD", "ecd": 2500.0, "hexagonality": 110.0})
	if vr.IsValid {
		t.Fatal("expected validation to fail when hexagonality is out of range")
	}
}

func TestSpecularAdapterTransformComputesQualityAndInterpretation(t *testing.T) {
	deps, _, _ := testDeps()
	a := NewSpecularMicroscopeAdapter(deps)

	m, err := a.Transform(map[string]any{
		"eye":          "OD",
		"ecd":          2400.0,
		"cv":           28.0,
		"hexagonality": 65.0,
		"cct":          540.0,
		"cell_count":   180.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Quality.Overall != 100 {
		t.Fatalf("expected overall quality 100 for acceptable factors, got %v", m.Quality.Overall)
	}
	if m.Interpretation != "normal endothelial morphology" {
		t.Fatalf("unexpected interpretation: %q", m.Interpretation)
	}
	if len(m.Findings) != 0 {
		t.Fatalf("expected no findings for healthy cornea, got %v", m.Findings)
	}
}

func TestSpecularAdapterTransformFlagsLowDensity(t *testing.T) {
	deps, _, _ := testDeps()
	a := NewSpecularMicroscopeAdapter(deps)

	m, err := a.Transform(map[string]any{
		"eye":          "OS",
		"ecd":          900.0,
		"cv":           45.0,
		"hexagonality": 30.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Quality.Overall != 50 {
		t.Fatalf("expected overall quality 50 with both factors failing, got %v", m.Quality.Overall)
	}
	if m.Interpretation != "severe endothelial cell loss" {
		t.Fatalf("unexpected interpretation: %q", m.Interpretation)
	}
	if len(m.Findings) != 2 {
		t.Fatalf("expected two findings, got %v", m.Findings)
	}
}

func TestSpecularAdapterProcessSavesOnSuccess(t *testing.T) {
	deps, ms, ls := testDeps()
	a := NewSpecularMicroscopeAdapter(deps)

	result := a.Process(context.Background(), map[string]any{
		"eye": "OD", "ecd": 2500.0, "cv": 20.0, "hexagonality": 70.0,
	}, ProcessContext{DeviceID: "dev-1", PatientID: "pat-1", Source: model.SourceSMBPoll})

	if !result.Success {
		t.Fatalf("expected success, got error %s: %s", result.ErrorCode, result.ErrorMessage)
	}
	if len(ms.saved) != 1 {
		t.Fatalf("expected one measurement saved, got %d", len(ms.saved))
	}
	if ms.saved[0].Device != "dev-1" || ms.saved[0].Patient != "pat-1" {
		t.Fatalf("expected process context propagated onto measurement, got %+v", ms.saved[0])
	}
	if ls.completedStatus != model.LogSuccess {
		t.Fatalf("expected log completed as success, got %s", ls.completedStatus)
	}
}

func TestSpecularAdapterProcessFailsValidation(t *testing.T) {
	deps, ms, ls := testDeps()
	a := NewSpecularMicroscopeAdapter(deps)

	result := a.Process(context.Background(), map[string]any{}, ProcessContext{DeviceID: "dev-1"})
	if result.Success {
		t.Fatal("expected failure for missing required fields")
	}
	if result.ErrorCode != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED, got %s", result.ErrorCode)
	}
	if len(ms.saved) != 0 {
		t.Fatal("expected no measurement saved on validation failure")
	}
	if ls.completedStatus != model.LogFailed {
		t.Fatalf("expected log completed as failed, got %s", ls.completedStatus)
	}
}

func TestSpecularAdapterParseFileRejectsUnknownFormat(t *testing.T) {
	deps, _, _ := testDeps()
	a := NewSpecularMicroscopeAdapter(deps)
	if _, err := a.ParseFile([]byte("x"), "xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSpecularAdapterParseFileCSV(t *testing.T) {
	deps, _, _ := testDeps()
	a := NewSpecularMicroscopeAdapter(deps)
	csv := "eye,ecd,cv,hexagonality\nOD,2500,25,60\n"
	records, err := a.ParseFile([]byte(csv), "csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0]["eye"] != "OD" {
		t.Fatalf("expected eye field OD, got %v", records[0]["eye"])
	}
}

func TestRegistryFallsBackToNoOpAdapter(t *testing.T) {
	r := NewRegistry()
	deps, _, _ := testDeps()
	r.Register(SpecularMicroscopeType, NewSpecularMicroscopeAdapter(deps))

	if !r.Has(SpecularMicroscopeType) {
		t.Fatal("expected registered type to be present")
	}
	if r.Has("unknown-device") {
		t.Fatal("expected unregistered type to report absent")
	}

	result := r.Get("unknown-device").Process(context.Background(), nil, ProcessContext{})
	if result.Success || result.ErrorCode != "NO_ADAPTER" {
		t.Fatalf("expected no-op adapter result, got %+v", result)
	}
}
