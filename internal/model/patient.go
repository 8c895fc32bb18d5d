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

// Laterality is the eye designation on a finding or measurement.
type Laterality string

// Laterality values.
const (
	LateralityOD Laterality = "OD"
	LateralityOS Laterality = "OS"
	LateralityOU Laterality = "OU"
)

// ExtractionMethod names the strategy that produced a PatientInfo.
type ExtractionMethod string

// Extraction methods, in the order the strategy chain tries them.
const (
	MethodStructuredMeta  ExtractionMethod = "structured-meta"
	MethodAdapter         ExtractionMethod = "adapter"
	MethodFilename        ExtractionMethod = "filename"
	MethodOCR             ExtractionMethod = "ocr"
	MethodFilenamePartial ExtractionMethod = "filename_partial"
)

// PatientInfo is the best-effort identity extracted from a device file.
type PatientInfo struct {
	FirstName   string
	LastName    string
	PatientID   string
	DateOfBirth time.Time
	HasDOB      bool
	Gender      string
	Laterality  Laterality

	Confidence float64
	Method     ExtractionMethod
}

// HasAnyField reports whether any identity field was populated.
func (p PatientInfo) HasAnyField() bool {
	return p.FirstName != "" || p.LastName != "" || p.PatientID != "" || p.HasDOB
}

// UnmatchedFolderTicket is staged for operator review when a folder cannot
// be matched to a patient automatically.
type UnmatchedFolderTicket struct {
	FolderName string
	DeviceType string
	Candidates []string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// TicketTTL is the lifetime of an UnmatchedFolderTicket before it expires.
const TicketTTL = 7 * 24 * time.Hour
