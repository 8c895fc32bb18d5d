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

// QualityFactor is one named acceptability check inside a quality block.
type QualityFactor struct {
	Name       string
	Value      float64
	Acceptable bool
	Threshold  float64
}

// QualityBlock summarizes adapter-computed measurement quality.
type QualityBlock struct {
	Overall float64 // 0-100
	Factors []QualityFactor
}

// SourceChannel records how a measurement entered the system.
type SourceChannel string

// Source channels.
const (
	SourceSMBPoll   SourceChannel = "smb-poll"
	SourceWebhook   SourceChannel = "webhook"
	SourceManual    SourceChannel = "manual"
	SourceFolderSync SourceChannel = "folder-sync"
)

// Measurement is the normalized shape an adapter produces for persistence.
// The core only ever writes the fields below; schema ownership and the rest
// of the clinical record live outside this module.
type Measurement struct {
	Device          string
	Patient         string
	Exam            string
	MeasurementType string
	MeasurementDate time.Time
	Eye             Laterality

	Payload map[string]any
	Quality QualityBlock

	Source  SourceChannel
	RawData map[string]any

	Interpretation string
	Findings       []string
}

// Image is the normalized shape for a persisted device image file.
type Image struct {
	Device   string
	Patient  string
	Exam     string
	Eye      Laterality
	FilePath string
	Source   SourceChannel
}

// AdapterResult is the outcome of Adapter.Process.
type AdapterResult struct {
	Success      bool
	Measurement  *Measurement
	Image        *Image
	ErrorCode    string
	ErrorMessage string
}
