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

package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/clinicore/deviceintegration/internal/adapter"
	"github.com/clinicore/deviceintegration/internal/external"
	"github.com/clinicore/deviceintegration/internal/model"
)

type fakeOCRClient struct {
	dicomResp *external.OCRResponse
	dicomErr  error
	genResp   *external.OCRResponse
	genErr    error
}

func (f *fakeOCRClient) Process(ctx context.Context, req external.OCRRequest) (*external.OCRResponse, error) {
	return f.genResp, f.genErr
}

func (f *fakeOCRClient) ProcessDICOM(ctx context.Context, filePath string) (*external.OCRResponse, error) {
	return f.dicomResp, f.dicomErr
}

func (f *fakeOCRClient) Health(ctx context.Context) error { return nil }

func writeTempFile(t *testing.T, name string, contents []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, contents, 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseFilenameExtractsAllFields(t *testing.T) {
	info, confidence := ParseFilename("Dupont_Jean_123456_2020-01-15_OD.jpg")
	if info == nil {
		t.Fatal("expected a non-nil PatientInfo")
	}
	if info.LastName != "Dupont" || info.FirstName != "Jean" {
		t.Fatalf("unexpected name extraction: %+v", info)
	}
	if info.PatientID != "123456" {
		t.Fatalf("expected patient id 123456, got %q", info.PatientID)
	}
	if !info.HasDOB {
		t.Fatal("expected a parsed date of birth")
	}
	if info.Laterality != model.LateralityOD {
		t.Fatalf("expected OD laterality, got %q", info.Laterality)
	}
	if confidence != 1.0 {
		t.Fatalf("expected full confidence with all fields present, got %v", confidence)
	}
}

func TestParseFilenameIgnoresSubstringLaterality(t *testing.T) {
	info, _ := ParseFilename("Bonjour_Report.pdf")
	if info != nil && info.Laterality != "" {
		t.Fatalf("expected no laterality false-positive from substring match, got %q", info.Laterality)
	}
}

func TestParseFilenameReturnsNilWithNoExtractableFields(t *testing.T) {
	info, confidence := ParseFilename("12.tmp")
	if info != nil {
		t.Fatalf("expected nil info for an uninformative filename, got %+v", info)
	}
	if confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", confidence)
	}
}

func TestProcessAcceptsFilenameStrategyAboveThreshold(t *testing.T) {
	registry := adapter.NewRegistry()
	p := New(registry, nil, false, nil)

	path := writeTempFile(t, "Martin_Paul_987654_20200115.jpg", []byte("fake-image-bytes"))
	result := p.Process(context.Background(), path, Options{})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Method != model.MethodFilename {
		t.Fatalf("expected filename method, got %s", result.Method)
	}
	if p.Counters.Filename.Load() != 1 {
		t.Fatalf("expected filename counter incremented, got %d", p.Counters.Filename.Load())
	}
}

func TestProcessFallsBackToPartialFilenameResult(t *testing.T) {
	registry := adapter.NewRegistry()
	p := New(registry, nil, false, nil)

	// Only a patient ID fragment (0.25 confidence) -- below the 0.60 accept
	// threshold but still informative enough for a partial result.
	path := writeTempFile(t, "scan_123456.jpg", []byte("fake-image-bytes"))
	result := p.Process(context.Background(), path, Options{})

	if !result.Success {
		t.Fatalf("expected partial success, got error %q", result.Error)
	}
	if result.Method != model.MethodFilenamePartial {
		t.Fatalf("expected filename_partial method, got %s", result.Method)
	}
}

func TestProcessFailsWhenNothingExtracted(t *testing.T) {
	registry := adapter.NewRegistry()
	p := New(registry, nil, false, nil)

	path := writeTempFile(t, "photo.jpg", []byte("fake-image-bytes"))
	result := p.Process(context.Background(), path, Options{})

	if result.Success {
		t.Fatalf("expected failure, got %+v", result)
	}
	if p.Counters.Failed.Load() != 1 {
		t.Fatalf("expected failed counter incremented, got %d", p.Counters.Failed.Load())
	}
}

func TestProcessUsesOCRFallbackForImages(t *testing.T) {
	registry := adapter.NewRegistry()
	ocr := &fakeOCRClient{genResp: &external.OCRResponse{
		ExtractedInfo: &model.PatientInfo{LastName: "Leroux", PatientID: "555111"},
		OCRConfidence: 0.8,
	}}
	useOCR := true
	p := New(registry, ocr, true, nil)

	path := writeTempFile(t, "img001.jpg", []byte("fake-image-bytes"))
	result := p.Process(context.Background(), path, Options{UseOCR: &useOCR})

	if !result.Success {
		t.Fatalf("expected OCR fallback success, got error %q", result.Error)
	}
	if result.Method != model.MethodOCR {
		t.Fatalf("expected ocr method, got %s", result.Method)
	}
	if result.PatientInfo.LastName != "Leroux" {
		t.Fatalf("expected OCR-provided last name, got %+v", result.PatientInfo)
	}
}

func TestParseFilenameHandlesAlphanumericPatientID(t *testing.T) {
	info, confidence := ParseFilename("DUPONT_JEAN_A12345_19800115.jpg")
	if info == nil {
		t.Fatal("expected a non-nil PatientInfo")
	}
	if info.LastName != "DUPONT" || info.FirstName != "JEAN" {
		t.Fatalf("unexpected name extraction: %+v", info)
	}
	if info.PatientID != "A12345" {
		t.Fatalf("expected patient id A12345, got %q", info.PatientID)
	}
	if !info.HasDOB || info.DateOfBirth.Format("2006-01-02") != "1980-01-15" {
		t.Fatalf("expected date of birth 1980-01-15, got %+v", info.DateOfBirth)
	}
	if confidence != 1.0 {
		t.Fatalf("expected full confidence, got %v", confidence)
	}
}

func TestProcessStructuredMetaShortCircuitsForDICOM(t *testing.T) {
	registry := adapter.NewRegistry()
	ocr := &fakeOCRClient{dicomResp: &external.OCRResponse{
		ExtractedInfo: &model.PatientInfo{LastName: "Rousseau", FirstName: "Anne", PatientID: "777888", HasDOB: true},
	}}
	p := New(registry, ocr, true, nil)

	path := writeTempFile(t, "export.dcm", []byte("fake-dicom-bytes"))
	result := p.Process(context.Background(), path, Options{})

	if !result.Success {
		t.Fatalf("expected structured metadata success, got error %q", result.Error)
	}
	if result.Method != model.MethodStructuredMeta {
		t.Fatalf("expected structured-meta method, got %s", result.Method)
	}
	if result.Confidence != confidenceStructuredMeta {
		t.Fatalf("expected fixed structured-meta confidence, got %v", result.Confidence)
	}
}
