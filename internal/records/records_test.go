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

package records

import (
	"context"
	"testing"
	"time"

	"github.com/clinicore/deviceintegration/internal/model"
)

type fakeRecordStore struct {
	records map[string]*model.ClinicalRecord
	updates []model.SectionUpdate
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: map[string]*model.ClinicalRecord{}}
}

func (f *fakeRecordStore) Get(ctx context.Context, recordID string) (*model.ClinicalRecord, error) {
	return f.records[recordID], nil
}

func (f *fakeRecordStore) ApplySectionUpdate(ctx context.Context, update model.SectionUpdate) (*model.ClinicalRecord, error) {
	f.updates = append(f.updates, update)
	rec, ok := f.records[update.RecordID]
	if !ok {
		rec = &model.ClinicalRecord{RecordID: update.RecordID, Sections: map[string]map[string]any{}}
		f.records[update.RecordID] = rec
	}
	if rec.Sections[update.Section] == nil {
		rec.Sections[update.Section] = map[string]any{}
	}
	for k, v := range update.Fields {
		rec.Sections[update.Section][k] = v
	}
	rec.UpdatedBy = update.UserID
	rec.UpdatedAt = time.Now()
	return rec, nil
}

const (
	testRecordID = "record-0001"
	testUserID   = "user-0001"
)

func validSide() *model.RefractionSide {
	return &model.RefractionSide{
		OD: model.RefractionValues{Sphere: -1.25, Cylinder: -0.5, Axis: 90, Addition: 1.5},
		OS: model.RefractionValues{Sphere: -1.00, Cylinder: -0.25, Axis: 85, Addition: 1.5},
	}
}

func TestUpdateRefractionTouchesOnlyDeclaredSubtree(t *testing.T) {
	store := newFakeRecordStore()
	u := New(store)

	_, err := u.UpdateRefraction(context.Background(), testRecordID, testUserID, model.RefractionPatch{
		Objective: validSide(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.updates) != 1 {
		t.Fatalf("expected exactly one store write, got %d", len(store.updates))
	}
	fields := store.updates[0].Fields
	for key := range fields {
		if key != "refraction.objective.od" && key != "refraction.objective.os" {
			t.Fatalf("update touched field outside declared subtree: %s", key)
		}
	}
	if _, ok := fields["refraction.subjective.od"]; ok {
		t.Fatal("untouched subjective stage must not appear in the write")
	}
	if _, ok := fields["refraction.examId"]; ok {
		t.Fatal("empty examId must not appear in the write")
	}
}

func TestUpdateRefractionRejectsOutOfRangeSphere(t *testing.T) {
	store := newFakeRecordStore()
	u := New(store)

	bad := validSide()
	bad.OD.Sphere = 40 // outside -25..+25 D
	_, err := u.UpdateRefraction(context.Background(), testRecordID, testUserID, model.RefractionPatch{Objective: bad})
	if err == nil {
		t.Fatal("expected an out-of-range sphere to be rejected")
	}
	if len(store.updates) != 0 {
		t.Fatal("store must not be written on validation failure")
	}
}

func TestUpdateRefractionRejectsMalformedRecordID(t *testing.T) {
	store := newFakeRecordStore()
	u := New(store)

	_, err := u.UpdateRefraction(context.Background(), "bad id!", testUserID, model.RefractionPatch{Objective: validSide()})
	if err == nil {
		t.Fatal("expected a malformed record id to be rejected")
	}
	if len(store.updates) != 0 {
		t.Fatal("store must not be written when the id format check fails")
	}
}

func TestUpdateDiagnosisRejectsEntryMissingFields(t *testing.T) {
	u := New(newFakeRecordStore())

	_, err := u.UpdateDiagnosis(context.Background(), testRecordID, testUserID, []model.Diagnosis{
		{Code: "H52.1", Description: "Myopia"},
		{Code: "", Description: "missing code"},
	})
	if err == nil {
		t.Fatal("expected an entry missing its code to be rejected")
	}
}

func TestUpdateDiagnosisReplacesArray(t *testing.T) {
	store := newFakeRecordStore()
	u := New(store)

	diagnoses := []model.Diagnosis{{Code: "H52.1", Description: "Myopia"}}
	rec, err := u.UpdateDiagnosis(context.Background(), testRecordID, testUserID, diagnoses)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Sections["diagnoses"]["diagnoses"] == nil {
		t.Fatal("expected the diagnoses field to be written")
	}
}

func TestUpdateIOPValidatesRangePerEye(t *testing.T) {
	u := New(newFakeRecordStore())
	tooHigh := 75.0
	_, err := u.UpdateIOP(context.Background(), testRecordID, testUserID, model.IOPReading{OD: &tooHigh})
	if err == nil {
		t.Fatal("expected an IOP above 60 mmHg to be rejected")
	}

	ok := 16.0
	store := newFakeRecordStore()
	u2 := New(store)
	if _, err := u2.UpdateIOP(context.Background(), testRecordID, testUserID, model.IOPReading{OD: &ok}); err != nil {
		t.Fatalf("unexpected error for a valid IOP: %v", err)
	}
	if _, ok := store.updates[0].Fields["examinations.iop.os"]; ok {
		t.Fatal("an eye not supplied must not appear in the write")
	}
}

func TestUpdateVisualAcuityAcceptsKnownNotations(t *testing.T) {
	u := New(newFakeRecordStore())
	for _, notation := range []string{"10/10", "20/20", "P2", "CF"} {
		if err := ValidateVisualAcuity(notation); err != nil {
			t.Fatalf("expected %q to be accepted, got %v", notation, err)
		}
	}
	if _, err := u.UpdateVisualAcuity(context.Background(), testRecordID, testUserID, model.VisualAcuity{OD: "not-a-notation"}); err == nil {
		t.Fatal("expected an unrecognized acuity notation to be rejected")
	}
}

func TestLinkPrescriptionValidatesIDFormat(t *testing.T) {
	u := New(newFakeRecordStore())
	if _, err := u.LinkPrescription(context.Background(), testRecordID, testUserID, "not a valid id!"); err == nil {
		t.Fatal("expected a malformed prescription id to be rejected")
	}

	store := newFakeRecordStore()
	u2 := New(store)
	if _, err := u2.LinkPrescription(context.Background(), testRecordID, testUserID, "rx-12345"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.updates) != 1 {
		t.Fatal("expected one store write for a valid link")
	}
}

func TestUpdateNotesTouchesOnlyItsOwnField(t *testing.T) {
	store := newFakeRecordStore()
	u := New(store)

	if _, err := u.UpdateNotes(context.Background(), testRecordID, testUserID, "follow up in 3 months"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.updates[0].Fields["notes"]; !ok {
		t.Fatal("expected notes field in the write")
	}
	if len(store.updates[0].Fields) != 1 {
		t.Fatalf("expected exactly one field in the notes write, got %+v", store.updates[0].Fields)
	}
}
