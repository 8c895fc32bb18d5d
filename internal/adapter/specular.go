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
	"fmt"
	"time"

	"github.com/clinicore/deviceintegration/internal/model"
)

// SpecularMicroscopeType is the device-type key this adapter registers
// under, e.g. a corneal endothelial cell-count device.
const SpecularMicroscopeType = "specular-microscope"

// SpecularMicroscopeAdapter maps a specular microscope's CSV export into a
// Measurement carrying endothelial cell-density metrics.
type SpecularMicroscopeAdapter struct {
	BaseAdapter
}

// NewSpecularMicroscopeAdapter constructs the adapter with deps wired for
// persistence and audit logging.
func NewSpecularMicroscopeAdapter(deps Deps) *SpecularMicroscopeAdapter {
	a := &SpecularMicroscopeAdapter{BaseAdapter: BaseAdapter{DeviceType: SpecularMicroscopeType, Deps: deps}}
	a.Self = a
	return a
}

// ParseFile parses the device's CSV export; other formats are rejected as
// this device only ever exports CSV.
func (a *SpecularMicroscopeAdapter) ParseFile(data []byte, format string) ([]map[string]any, error) {
	if format != "csv" {
		return nil, fmt.Errorf("specular microscope adapter: unsupported format %q", format)
	}
	return ParseCSV(data)
}

// Validate requires eye and ECD, and range-checks hexagonality and CV.
func (a *SpecularMicroscopeAdapter) Validate(data map[string]any) ValidationResult {
	var errs []string
	RequireFields(data, []string{"eye", "ecd"}, &errs)
	CheckRange(data, "hexagonality", 0, 100, &errs)
	CheckRange(data, "cv", 0, 100, &errs)
	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// Transform maps the parsed record into the normalized Measurement shape,
// computing a quality block from hexagonality/CV thresholds.
func (a *SpecularMicroscopeAdapter) Transform(data map[string]any) (*model.Measurement, error) {
	ecd, _ := toFloat(data["ecd"])
	cv, _ := toFloat(data["cv"])
	hex, _ := toFloat(data["hexagonality"])
	cct, _ := toFloat(data["cct"])
	cellCount, _ := toFloat(data["cell_count"])
	avgArea, _ := toFloat(data["average_cell_area"])

	factors := []model.QualityFactor{
		{Name: "hexagonality", Value: hex, Acceptable: hex >= 50, Threshold: 50},
		{Name: "cv", Value: cv, Acceptable: cv <= 35, Threshold: 35},
	}
	overall := 100.0
	for _, f := range factors {
		if !f.Acceptable {
			overall -= 25
		}
	}
	if overall < 0 {
		overall = 0
	}

	eye, _ := data["eye"].(string)

	findings := []string{}
	if ecd < 1500 {
		findings = append(findings, "low endothelial cell density")
	}
	if cv > 35 {
		findings = append(findings, "elevated coefficient of variation")
	}

	return &model.Measurement{
		MeasurementType: "specular-microscopy",
		MeasurementDate: time.Now().UTC(),
		Eye:             model.Laterality(eye),
		Payload: map[string]any{
			"ecd":             ecd,
			"cv":              cv,
			"hexagonality":    hex,
			"cct":             cct,
			"cellCount":       cellCount,
			"averageCellArea": avgArea,
		},
		Quality:        model.QualityBlock{Overall: overall, Factors: factors},
		RawData:        data,
		Interpretation: interpretation(ecd, hex, cv),
		Findings:       findings,
	}, nil
}

func interpretation(ecd, hex, cv float64) string {
	if ecd >= 2000 && hex >= 60 && cv <= 30 {
		return "normal endothelial morphology"
	}
	if ecd < 1000 {
		return "severe endothelial cell loss"
	}
	return "borderline endothelial morphology"
}
