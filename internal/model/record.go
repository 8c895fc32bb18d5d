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

// RefractionValues is one eye's sphere/cylinder/axis/addition set.
type RefractionValues struct {
	Sphere   float64
	Cylinder float64
	Axis     float64
	Addition float64
}

// RefractionSide pairs both eyes for one refraction stage (objective,
// subjective, or final prescription).
type RefractionSide struct {
	OD RefractionValues
	OS RefractionValues
}

// RefractionPatch is the subtree updateRefraction is allowed to touch: an
// optional exam link plus any of the three refraction stages. A nil stage
// pointer means "leave this stage untouched".
type RefractionPatch struct {
	ExamID            string
	Objective         *RefractionSide
	Subjective        *RefractionSide
	FinalPrescription *RefractionSide
}

// Diagnosis is one entry in a record's diagnoses array.
type Diagnosis struct {
	Code        string
	Description string
}

// TreatmentPlanPatch is the subtree updateTreatment is allowed to touch.
type TreatmentPlanPatch struct {
	Medications      []string
	Lifestyle        []string
	FollowUp         string
	Referrals        []string
	PatientEducation []string
}

// IOPReading holds intraocular pressure in mmHg per eye. A nil pointer
// means that eye was not measured in this call.
type IOPReading struct {
	OD *float64
	OS *float64
}

// VisualAcuity holds a per-eye acuity notation, accepted in Monoyer,
// Parinaud, or `n/m` fraction form.
type VisualAcuity struct {
	OD string
	OS string
}

// KeratometryReading holds per-eye keratometric power readings.
type KeratometryReading struct {
	OD *float64
	OS *float64
}

// SectionUpdate is the low-level write the granular updater issues against
// the clinical-record store: a single atomic set of exactly the fields of
// one declared subtree, plus the mandatory audit fields. The store is
// expected to perform this as a `findByIdAndUpdate`-style write that
// bypasses whole-document validation.
type SectionUpdate struct {
	RecordID string
	Section  string
	Fields   map[string]any
	UserID   string
}

// ClinicalRecord is the minimal projection of the parent clinical record
// handed back after a granular update; the rest of the clinical schema is
// owned outside this service.
type ClinicalRecord struct {
	RecordID  string
	UpdatedBy string
	UpdatedAt time.Time
	Sections  map[string]map[string]any
}
