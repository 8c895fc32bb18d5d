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

// Package processor implements the universal file processor: a strategy
// chain that tries structured metadata, a registered device adapter,
// filename parsing, and OCR in turn, short-circuiting as soon as one
// strategy clears its confidence threshold.
package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/clinicore/deviceintegration/internal/adapter"
	"github.com/clinicore/deviceintegration/internal/external"
	"github.com/clinicore/deviceintegration/internal/model"
)

const (
	confidenceStructuredMeta = 0.95
	confidenceAdapterAccept  = 0.70
	confidenceFilenameAccept = 0.60
	confidenceOCRDefault     = 0.6
)

// Options customizes one Process call.
type Options struct {
	DeviceTypeHint string
	UseOCR         *bool // nil defers to the processor's configured default
}

// Result is the outcome of Process.
type Result struct {
	Success          bool
	PatientInfo      *model.PatientInfo
	Confidence       float64
	Method           model.ExtractionMethod
	RawData          map[string]any
	ProcessingTimeMs int64
	Error            string
}

// Counters tracks how many files each strategy ultimately served.
type Counters struct {
	StructuredMeta  atomic.Int64
	Adapter         atomic.Int64
	Filename        atomic.Int64
	OCR             atomic.Int64
	FilenamePartial atomic.Int64
	Failed          atomic.Int64
}

// Processor runs the strategy chain against one local file at a time.
type Processor struct {
	registry *adapter.Registry
	ocr      external.OCRClient
	useOCR   bool
	log      *zap.Logger
	Counters Counters
}

// New builds a Processor. ocr may be nil if OCR fallback is disabled.
func New(registry *adapter.Registry, ocr external.OCRClient, useOCRDefault bool, log *zap.Logger) *Processor {
	return &Processor{registry: registry, ocr: ocr, useOCR: useOCRDefault, log: log}
}

// Process extracts best-effort patient identity from the file at filePath,
// trying each strategy in order and stopping at the first one that clears
// its acceptance threshold.
func (p *Processor) Process(ctx context.Context, filePath string, opts Options) Result {
	start := time.Now()
	deviceType := opts.DeviceTypeHint
	if deviceType == "" {
		deviceType = DetectDeviceType(filePath)
	}

	useOCR := p.useOCR
	if opts.UseOCR != nil {
		useOCR = *opts.UseOCR
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	isDICOM := ext == ".dcm" || ext == ".dicom"
	isImage := ext == ".jpg" || ext == ".jpeg" || ext == ".png" || ext == ".tif" || ext == ".tiff" || ext == ".bmp"
	isPDF := ext == ".pdf"

	var partial *model.PatientInfo
	var partialConfidence float64

	if isDICOM && p.ocr != nil {
		if info, ok := p.tryStructuredMeta(ctx, filePath); ok {
			p.Counters.StructuredMeta.Inc()
			return p.finish(info, confidenceStructuredMeta, model.MethodStructuredMeta, nil, start)
		}
	}

	if deviceType != "" && p.registry.Has(deviceType) {
		if info, ok := p.tryAdapter(deviceType, filePath); ok && info.Confidence >= confidenceAdapterAccept {
			p.Counters.Adapter.Inc()
			return p.finish(info, info.Confidence, model.MethodAdapter, nil, start)
		}
	}

	if info, confidence := ParseFilename(filepath.Base(filePath)); info != nil {
		if confidence >= confidenceFilenameAccept {
			p.Counters.Filename.Inc()
			info.Confidence = confidence
			info.Method = model.MethodFilename
			return p.finish(info, confidence, model.MethodFilename, nil, start)
		}
		partial, partialConfidence = info, confidence
	}

	if (isImage || isPDF) && useOCR && p.ocr != nil {
		if info, ok := p.tryOCR(ctx, filePath, deviceType, partial); ok {
			p.Counters.OCR.Inc()
			return p.finish(info, info.Confidence, model.MethodOCR, nil, start)
		}
	}

	if partial != nil && partial.HasAnyField() {
		p.Counters.FilenamePartial.Inc()
		partial.Confidence = partialConfidence
		partial.Method = model.MethodFilenamePartial
		return p.finish(partial, partialConfidence, model.MethodFilenamePartial, nil, start)
	}

	p.Counters.Failed.Inc()
	return Result{
		Success:          false,
		Error:            "Unable to extract patient information",
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

func (p *Processor) finish(info *model.PatientInfo, confidence float64, method model.ExtractionMethod, raw map[string]any, start time.Time) Result {
	return Result{
		Success:          true,
		PatientInfo:      info,
		Confidence:       confidence,
		Method:           method,
		RawData:          raw,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

func (p *Processor) tryStructuredMeta(ctx context.Context, filePath string) (*model.PatientInfo, bool) {
	resp, err := p.ocr.ProcessDICOM(ctx, filePath)
	if err != nil || resp == nil || resp.Error != "" || resp.ExtractedInfo == nil {
		if p.log != nil {
			p.log.Warn("structured metadata extraction failed", zap.Error(err), zap.String("path", filePath))
		}
		return nil, false
	}
	info := *resp.ExtractedInfo
	info.Method = model.MethodStructuredMeta
	info.Confidence = confidenceStructuredMeta
	return &info, true
}

func (p *Processor) tryAdapter(deviceType, filePath string) (*model.PatientInfo, bool) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, false
	}
	a := p.registry.Get(deviceType)
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	records, err := a.ParseFile(data, format)
	if err != nil || len(records) == 0 {
		return nil, false
	}
	info := a.ExtractPatientDemographics(records[0])
	if info == nil || !info.HasAnyField() {
		return nil, false
	}
	if info.Confidence == 0 {
		info.Confidence = scoreInfo(*info)
	}
	return info, true
}

func (p *Processor) tryOCR(ctx context.Context, filePath, deviceType string, partial *model.PatientInfo) (*model.PatientInfo, bool) {
	resp, err := p.ocr.Process(ctx, external.OCRRequest{FilePath: filePath, DeviceType: deviceType})
	if err != nil || resp == nil || resp.Error != "" {
		if p.log != nil {
			p.log.Warn("OCR extraction failed", zap.Error(err), zap.String("path", filePath))
		}
		return nil, false
	}
	info := resp.ExtractedInfo
	if info == nil {
		info = &model.PatientInfo{}
	}
	merged := *info
	if partial != nil {
		if merged.FirstName == "" {
			merged.FirstName = partial.FirstName
		}
		if merged.LastName == "" {
			merged.LastName = partial.LastName
		}
		if merged.PatientID == "" {
			merged.PatientID = partial.PatientID
		}
		if !merged.HasDOB && partial.HasDOB {
			merged.DateOfBirth, merged.HasDOB = partial.DateOfBirth, true
		}
		if merged.Laterality == "" {
			merged.Laterality = partial.Laterality
		}
	}
	merged.Method = model.MethodOCR
	merged.Confidence = resp.OCRConfidence
	if merged.Confidence == 0 {
		merged.Confidence = confidenceOCRDefault
	}
	if !merged.HasAnyField() {
		return nil, false
	}
	return &merged, true
}
