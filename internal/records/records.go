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

// Package records implements the granular clinical-record updater:
// one method per declared subtree, each issuing a single
// findByIdAndUpdate-style write that bypasses whole-document validation
// and touches only that subtree plus the updatedBy/updatedAt audit
// fields. A monolithic save on the parent record is deliberately never
// exposed here.
package records

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clinicore/deviceintegration/internal/external"
	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/xlog"
)

// RefractionValues is re-exported for callers that don't want to import
// internal/model directly for this one type.
type RefractionValues = model.RefractionValues

// Updater applies per-section updates to clinical records.
type Updater struct {
	store external.RecordStore
}

// New builds an Updater over a clinical-record store.
func New(store external.RecordStore) *Updater {
	return &Updater{store: store}
}

func validateIDs(fields map[string]string) error {
	for field, id := range fields {
		if err := ValidateID(id, field); err != nil {
			return err
		}
	}
	return nil
}

func (u *Updater) apply(ctx context.Context, recordID, userID, section string, fields map[string]any) (*model.ClinicalRecord, error) {
	if err := validateIDs(map[string]string{"recordId": recordID, "userId": userID}); err != nil {
		return nil, err
	}
	touched := make([]string, 0, len(fields))
	for k := range fields {
		touched = append(touched, k)
	}
	rec, err := u.store.ApplySectionUpdate(ctx, model.SectionUpdate{
		RecordID: recordID,
		Section:  section,
		Fields:   fields,
		UserID:   userID,
	})
	if err != nil {
		xlog.L().Warn("granular record update failed",
			zap.String("recordId", recordID), zap.String("section", section), zap.Error(err))
		return nil, err
	}
	xlog.L().Info("granular record update applied",
		zap.String("recordId", recordID), zap.String("userId", userID),
		zap.String("section", section), zap.Strings("fields", touched))
	return rec, nil
}

func sideFields(prefix string, side *model.RefractionSide) (map[string]any, error) {
	if side == nil {
		return nil, nil
	}
	if err := ValidateRefractionValues("od", side.OD); err != nil {
		return nil, err
	}
	if err := ValidateRefractionValues("os", side.OS); err != nil {
		return nil, err
	}
	return map[string]any{
		prefix + ".od": side.OD,
		prefix + ".os": side.OS,
	}, nil
}

// UpdateRefraction may link an exam document and/or patch any of
// refraction.{objective, subjective, finalPrescription}. Stages left nil
// in patch are not touched, per testable property #10: the call never
// observes or mutates fields outside this subtree plus audit fields.
func (u *Updater) UpdateRefraction(ctx context.Context, recordID, userID string, patch model.RefractionPatch) (*model.ClinicalRecord, error) {
	fields := map[string]any{}
	if patch.ExamID != "" {
		if err := ValidateID(patch.ExamID, "examId"); err != nil {
			return nil, err
		}
		fields["refraction.examId"] = patch.ExamID
	}
	for prefix, side := range map[string]*model.RefractionSide{
		"refraction.objective":         patch.Objective,
		"refraction.subjective":        patch.Subjective,
		"refraction.finalPrescription": patch.FinalPrescription,
	} {
		sf, err := sideFields(prefix, side)
		if err != nil {
			return nil, err
		}
		for k, v := range sf {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("updateRefraction: no fields supplied")
	}
	return u.apply(ctx, recordID, userID, "refraction", fields)
}

// UpdateDiagnosis replaces the diagnoses array wholesale; each entry
// requires both code and description.
func (u *Updater) UpdateDiagnosis(ctx context.Context, recordID, userID string, diagnoses []model.Diagnosis) (*model.ClinicalRecord, error) {
	for i, d := range diagnoses {
		if d.Code == "" || d.Description == "" {
			return nil, fmt.Errorf("updateDiagnosis: entry %d missing code or description", i)
		}
	}
	return u.apply(ctx, recordID, userID, "diagnoses", map[string]any{"diagnoses": diagnoses})
}

// UpdateTreatment patches plan.{medications, lifestyle, followUp,
// referrals, patientEducation}.
func (u *Updater) UpdateTreatment(ctx context.Context, recordID, userID string, patch model.TreatmentPlanPatch) (*model.ClinicalRecord, error) {
	return u.apply(ctx, recordID, userID, "plan", map[string]any{
		"plan.medications":      patch.Medications,
		"plan.lifestyle":        patch.Lifestyle,
		"plan.followUp":         patch.FollowUp,
		"plan.referrals":        patch.Referrals,
		"plan.patientEducation": patch.PatientEducation,
	})
}

// UpdateIOP patches examinations.iop with a 0-60 mmHg range check per eye
// supplied.
func (u *Updater) UpdateIOP(ctx context.Context, recordID, userID string, reading model.IOPReading) (*model.ClinicalRecord, error) {
	fields := map[string]any{}
	if reading.OD != nil {
		if err := ValidateIOP(*reading.OD); err != nil {
			return nil, err
		}
		fields["examinations.iop.od"] = *reading.OD
	}
	if reading.OS != nil {
		if err := ValidateIOP(*reading.OS); err != nil {
			return nil, err
		}
		fields["examinations.iop.os"] = *reading.OS
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("updateIOP: no eye supplied")
	}
	return u.apply(ctx, recordID, userID, "examinations.iop", fields)
}

// UpdateVisualAcuity patches examinations.visualAcuity, accepting Monoyer,
// Parinaud, or n/m fraction notation per eye.
func (u *Updater) UpdateVisualAcuity(ctx context.Context, recordID, userID string, va model.VisualAcuity) (*model.ClinicalRecord, error) {
	fields := map[string]any{}
	if va.OD != "" {
		if err := ValidateVisualAcuity(va.OD); err != nil {
			return nil, err
		}
		fields["examinations.visualAcuity.od"] = va.OD
	}
	if va.OS != "" {
		if err := ValidateVisualAcuity(va.OS); err != nil {
			return nil, err
		}
		fields["examinations.visualAcuity.os"] = va.OS
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("updateVisualAcuity: no eye supplied")
	}
	return u.apply(ctx, recordID, userID, "examinations.visualAcuity", fields)
}

// UpdateAnteriorSegment patches examinations.anteriorSegment with an
// opaque findings map; the document schema for this section lives outside
// the core, so no per-field validation is applied beyond the subtree
// boundary itself.
func (u *Updater) UpdateAnteriorSegment(ctx context.Context, recordID, userID string, findings map[string]any) (*model.ClinicalRecord, error) {
	return u.apply(ctx, recordID, userID, "examinations.anteriorSegment", map[string]any{"examinations.anteriorSegment": findings})
}

// UpdatePosteriorSegment patches examinations.posteriorSegment.
func (u *Updater) UpdatePosteriorSegment(ctx context.Context, recordID, userID string, findings map[string]any) (*model.ClinicalRecord, error) {
	return u.apply(ctx, recordID, userID, "examinations.posteriorSegment", map[string]any{"examinations.posteriorSegment": findings})
}

// UpdateKeratometry patches examinations.keratometry per eye.
func (u *Updater) UpdateKeratometry(ctx context.Context, recordID, userID string, reading model.KeratometryReading) (*model.ClinicalRecord, error) {
	fields := map[string]any{}
	if reading.OD != nil {
		fields["examinations.keratometry.od"] = *reading.OD
	}
	if reading.OS != nil {
		fields["examinations.keratometry.os"] = *reading.OS
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("updateKeratometry: no eye supplied")
	}
	return u.apply(ctx, recordID, userID, "examinations.keratometry", fields)
}

// UpdatePathologyFindings replaces examinations.pathologyFindings.
func (u *Updater) UpdatePathologyFindings(ctx context.Context, recordID, userID string, findings []string) (*model.ClinicalRecord, error) {
	return u.apply(ctx, recordID, userID, "examinations.pathologyFindings", map[string]any{"examinations.pathologyFindings": findings})
}

// UpdateNotes replaces the record's free-text notes field.
func (u *Updater) UpdateNotes(ctx context.Context, recordID, userID, notes string) (*model.ClinicalRecord, error) {
	return u.apply(ctx, recordID, userID, "notes", map[string]any{"notes": notes})
}

// UpdateChiefComplaint replaces the record's chief-complaint field.
func (u *Updater) UpdateChiefComplaint(ctx context.Context, recordID, userID, complaint string) (*model.ClinicalRecord, error) {
	return u.apply(ctx, recordID, userID, "chiefComplaint", map[string]any{"chiefComplaint": complaint})
}

// LinkPrescription idempotently adds prescriptionID to the record's
// prescriptions set. The store is responsible for the add-to-set
// semantics; the updater only validates the ID shape and names the
// touched field for the audit log.
func (u *Updater) LinkPrescription(ctx context.Context, recordID, userID, prescriptionID string) (*model.ClinicalRecord, error) {
	if err := ValidateID(prescriptionID, "prescriptionId"); err != nil {
		return nil, err
	}
	return u.apply(ctx, recordID, userID, "prescriptions", map[string]any{"prescriptions.$addToSet": prescriptionID})
}

// LinkIVT idempotently adds ivtID to the record's IVT injections set.
func (u *Updater) LinkIVT(ctx context.Context, recordID, userID, ivtID string) (*model.ClinicalRecord, error) {
	if err := ValidateID(ivtID, "ivtId"); err != nil {
		return nil, err
	}
	return u.apply(ctx, recordID, userID, "ivtInjections", map[string]any{"ivtInjections.$addToSet": ivtID})
}
