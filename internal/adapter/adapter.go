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

// Package adapter implements the device-adapter contract and registry:
// each supported device type maps its raw file output into the
// normalized Measurement/Image shapes through a small, uniform interface.
// The registry-of-named-implementations shape mirrors MinIO's
// notification target registry (internal/event/target*, one constructor
// per named target, looked up by type string at config time).
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/deviceintegration/internal/errs"
	"github.com/clinicore/deviceintegration/internal/external"
	"github.com/clinicore/deviceintegration/internal/model"
)

// ValidationResult is the outcome of Adapter.Validate.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// ProcessContext carries the identifiers Adapter.Process needs beyond the
// raw parsed record.
type ProcessContext struct {
	DeviceID  string
	PatientID string
	ExamID    string
	Source    model.SourceChannel
}

// Adapter maps one device type's raw output into the normalized shapes.
type Adapter interface {
	// Validate checks required fields and numeric ranges on a parsed record.
	Validate(data map[string]any) ValidationResult

	// Transform maps a validated record into a Measurement, preserving the
	// original envelope under RawData and computing a quality block.
	Transform(data map[string]any) (*model.Measurement, error)

	// ParseFile parses raw bytes in the device's native format into zero or
	// more flat records ready for Validate/Transform.
	ParseFile(data []byte, format string) ([]map[string]any, error)

	// Process runs Validate, Transform, persistence, and audit logging for
	// one parsed record, returning a success/failure outcome.
	Process(ctx context.Context, data map[string]any, pctx ProcessContext) model.AdapterResult

	// ExtractPatientDemographics optionally pulls identity fields out of an
	// already-parsed record, for use by the universal file processor (H).
	ExtractPatientDemographics(data map[string]any) *model.PatientInfo
}

// Deps are the external collaborators BaseAdapter.Process writes through.
type Deps struct {
	Measurements external.MeasurementStore
	Images       external.ImageStore
	Logs         external.IntegrationLogStore
}

// BaseAdapter implements Process in terms of an embedding adapter's
// Validate/Transform, so concrete adapters only need to supply parsing and
// transform logic, mirroring how MinIO's notification targets share a
// common Save-then-store-on-failure shape.
type BaseAdapter struct {
	DeviceType string
	Deps       Deps
	Self       Adapter // set by concrete adapters to pick up their own Validate/Transform
}

// Process implements the shared validate→transform→persist→log sequence.
func (b *BaseAdapter) Process(ctx context.Context, data map[string]any, pctx ProcessContext) model.AdapterResult {
	logID, _ := b.Deps.Logs.Create(ctx, &model.IntegrationLogEntry{
		Device:      pctx.DeviceID,
		DeviceType:  b.DeviceType,
		EventType:   "file_process",
		Status:      model.LogProcessing,
		InitiatedBy: model.InitiatedByDevice,
		StartedAt:   time.Now().UTC(),
	})

	vr := b.Self.Validate(data)
	if !vr.IsValid {
		b.complete(ctx, logID, model.LogFailed, errs.ClassValidation, fmt.Sprintf("%v", vr.Errors))
		return model.AdapterResult{Success: false, ErrorCode: "VALIDATION_FAILED", ErrorMessage: fmt.Sprintf("%v", vr.Errors)}
	}

	measurement, err := b.Self.Transform(data)
	if err != nil {
		b.complete(ctx, logID, model.LogFailed, errs.ClassProcessing, err.Error())
		return model.AdapterResult{Success: false, ErrorCode: "TRANSFORM_FAILED", ErrorMessage: err.Error()}
	}
	measurement.Device = pctx.DeviceID
	measurement.Patient = pctx.PatientID
	measurement.Exam = pctx.ExamID
	measurement.Source = pctx.Source

	id, err := b.Deps.Measurements.Save(ctx, measurement)
	if err != nil {
		b.complete(ctx, logID, model.LogFailed, errs.ClassResource, err.Error())
		return model.AdapterResult{Success: false, ErrorCode: "SAVE_FAILED", ErrorMessage: err.Error()}
	}

	b.Deps.Logs.Complete(ctx, logID, model.LogSuccess,
		&model.Processing{RecordsProcessed: 1},
		&model.CreatedRecords{DeviceMeasurements: []string{id}, Count: 1},
		nil,
	)
	return model.AdapterResult{Success: true, Measurement: measurement}
}

func (b *BaseAdapter) complete(ctx context.Context, logID string, status model.LogStatus, class errs.Class, message string) {
	b.Deps.Logs.Complete(ctx, logID, status,
		&model.Processing{RecordsFailed: 1},
		nil,
		&model.ErrorDetail{Code: class.String(), Message: message, Severity: model.SeverityWarning},
	)
}

// ExtractPatientDemographics is the zero-value default: adapters that do
// not override it report no identity info, leaving extraction to H's
// filename/OCR strategies.
func (b *BaseAdapter) ExtractPatientDemographics(map[string]any) *model.PatientInfo { return nil }

// noOpAdapter is returned by Registry.Get for unregistered device types,
// "Unknown types produce a no-op adapter that returns
// {success:false, error:{code:'NO_ADAPTER'}}".
type noOpAdapter struct{}

func (noOpAdapter) Validate(map[string]any) ValidationResult { return ValidationResult{IsValid: false, Errors: []string{"no adapter registered"}} }
func (noOpAdapter) Transform(map[string]any) (*model.Measurement, error) {
	return nil, errs.ErrNoAdapter
}
func (noOpAdapter) ParseFile([]byte, string) ([]map[string]any, error) { return nil, errs.ErrNoAdapter }
func (noOpAdapter) Process(context.Context, map[string]any, ProcessContext) model.AdapterResult {
	return model.AdapterResult{Success: false, ErrorCode: "NO_ADAPTER", ErrorMessage: errs.ErrNoAdapter.Error()}
}
func (noOpAdapter) ExtractPatientDemographics(map[string]any) *model.PatientInfo { return nil }

// Registry looks up an Adapter by device type string.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register installs adapter under deviceType, overwriting any prior entry.
func (r *Registry) Register(deviceType string, a Adapter) {
	r.adapters[deviceType] = a
}

// Get returns the adapter for deviceType, or the shared no-op adapter if
// none is registered.
func (r *Registry) Get(deviceType string) Adapter {
	if a, ok := r.adapters[deviceType]; ok {
		return a
	}
	return noOpAdapter{}
}

// Has reports whether deviceType has a registered (non-no-op) adapter.
func (r *Registry) Has(deviceType string) bool {
	_, ok := r.adapters[deviceType]
	return ok
}

// Types lists every registered device type.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	return out
}
