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

// Package memstore provides in-memory implementations of the internal/
// external boundary interfaces. The clinical document store, patient
// registry, and folder-mapping catalog are owned by another service and
// out of scope for this module; this package exists so
// cmd/deviceintegrationd can run standalone against seeded fixtures
// instead of requiring a live backing store to boot. Production
// deployments wire a real client satisfying the same internal/external
// interfaces in its place.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinicore/deviceintegration/internal/model"
)

// Store is one process-local backing for every internal/external
// interface this module depends on. All methods are safe for concurrent
// use.
type Store struct {
	mu sync.RWMutex

	devices    map[string]*model.Device
	records    map[string]*model.ClinicalRecord
	mappings   map[string]string // folderName|deviceType -> patientID
	unmatched  map[string]model.UnmatchedFolderTicket
	legacyIDs  map[string]string // legacyID -> patientID
	byName     map[string][]string // lower(first)|lower(last) -> patientIDs

	measurements []*model.Measurement
	images       []*model.Image
	logs         map[string]*model.IntegrationLogEntry
	nextLogID    int
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		devices:   make(map[string]*model.Device),
		records:   make(map[string]*model.ClinicalRecord),
		mappings:  make(map[string]string),
		unmatched: make(map[string]model.UnmatchedFolderTicket),
		legacyIDs: make(map[string]string),
		byName:    make(map[string][]string),
		logs:      make(map[string]*model.IntegrationLogEntry),
	}
}

// SeedDevice installs a device for Get/ListSMBConfigured to return. Intended
// for startup fixture loading, not for use by request-handling code.
func (s *Store) SeedDevice(d *model.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.DeviceID] = d
}

// SeedLegacyID registers a legacy-identifier-to-patient mapping for
// PatientMatcher.FindByLegacyID.
func (s *Store) SeedLegacyID(legacyID, patientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacyIDs[legacyID] = patientID
}

// SeedPatientName registers a (firstName, lastName) candidate for
// PatientMatcher.FindByName.
func (s *Store) SeedPatientName(firstName, lastName, patientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nameKey(firstName, lastName)
	s.byName[key] = append(s.byName[key], patientID)
}

func nameKey(first, last string) string {
	return fmt.Sprintf("%s|%s", lower(first), lower(last))
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// --- external.DeviceStore ---

func (s *Store) Get(ctx context.Context, deviceID string) (*model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s not found", deviceID)
	}
	return d, nil
}

func (s *Store) ListSMBConfigured(ctx context.Context) ([]*model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Device
	for _, d := range s.devices {
		if d.IsSMBConfigured() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) UpdateIntegration(ctx context.Context, deviceID string, integration model.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %s not found", deviceID)
	}
	d.Integration = integration
	return nil
}

// --- backing for external.MeasurementStore / external.ImageStore ---
//
// Named distinctly from the interface's Save method because Store also
// backs FolderMappingStore and UnmatchedFolderStore, each with their own Save; the
// Measurements/Images/Mappings/Records/Unmatched wrapper types below adapt
// these onto the exact interface shapes.

func (s *Store) saveMeasurement(ctx context.Context, m *model.Measurement) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measurements = append(s.measurements, m)
	return fmt.Sprintf("measurement_%d", len(s.measurements)), nil
}

func (s *Store) saveImage(ctx context.Context, img *model.Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, img)
	return fmt.Sprintf("image_%d", len(s.images)), nil
}

// Measurements adapts Store onto external.MeasurementStore.
type Measurements struct{ *Store }

func (m Measurements) Save(ctx context.Context, meas *model.Measurement) (string, error) {
	return m.saveMeasurement(ctx, meas)
}

// Images adapts Store onto external.ImageStore.
type Images struct{ *Store }

func (i Images) Save(ctx context.Context, img *model.Image) (string, error) {
	return i.saveImage(ctx, img)
}

// --- external.IntegrationLogStore ---

func (s *Store) Create(ctx context.Context, entry *model.IntegrationLogEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	id := fmt.Sprintf("log_%d", s.nextLogID)
	s.logs[id] = entry
	return id, nil
}

func (s *Store) Complete(ctx context.Context, id string, status model.LogStatus, proc *model.Processing, created *model.CreatedRecords, errDetail *model.ErrorDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.logs[id]
	if !ok {
		return fmt.Errorf("log entry %s not found", id)
	}
	entry.Status = status
	entry.Processing = proc
	entry.Created = created
	entry.ErrorDetails = errDetail
	return nil
}

// --- external.PatientMatcher ---

func (s *Store) FindByLegacyID(ctx context.Context, legacyID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patientID, ok := s.legacyIDs[legacyID]
	return patientID, ok, nil
}

func (s *Store) FindByName(ctx context.Context, firstName, lastName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byName[nameKey(firstName, lastName)], nil
}

// --- backing for external.FolderMappingStore ---

func mappingKey(folderName, deviceType string) string {
	return folderName + "|" + deviceType
}

func (s *Store) getMapping(ctx context.Context, folderName, deviceType string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patientID, ok := s.mappings[mappingKey(folderName, deviceType)]
	return patientID, ok, nil
}

func (s *Store) saveMapping(ctx context.Context, folderName, deviceType, patientID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[mappingKey(folderName, deviceType)] = patientID
	return nil
}

// FolderMappings adapts Store onto external.FolderMappingStore.
type FolderMappings struct{ *Store }

func (f FolderMappings) Get(ctx context.Context, folderName, deviceType string) (string, bool, error) {
	return f.getMapping(ctx, folderName, deviceType)
}

func (f FolderMappings) Save(ctx context.Context, folderName, deviceType, patientID, userID string) error {
	return f.saveMapping(ctx, folderName, deviceType, patientID, userID)
}

// --- backing for external.UnmatchedFolderStore ---

func (s *Store) saveUnmatched(ctx context.Context, ticket model.UnmatchedFolderTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmatched[mappingKey(ticket.FolderName, ticket.DeviceType)] = ticket
	return nil
}

func (s *Store) listUnmatched(ctx context.Context) ([]model.UnmatchedFolderTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.UnmatchedFolderTicket, 0, len(s.unmatched))
	for _, t := range s.unmatched {
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) deleteUnmatched(ctx context.Context, folderName, deviceType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unmatched, mappingKey(folderName, deviceType))
	return nil
}

// UnmatchedFolders adapts Store onto external.UnmatchedFolderStore.
type UnmatchedFolders struct{ *Store }

func (u UnmatchedFolders) Save(ctx context.Context, ticket model.UnmatchedFolderTicket) error {
	return u.saveUnmatched(ctx, ticket)
}

func (u UnmatchedFolders) List(ctx context.Context) ([]model.UnmatchedFolderTicket, error) {
	return u.listUnmatched(ctx)
}

func (u UnmatchedFolders) Delete(ctx context.Context, folderName, deviceType string) error {
	return u.deleteUnmatched(ctx, folderName, deviceType)
}

// --- backing for external.RecordStore ---

func (s *Store) getRecord(ctx context.Context, recordID string) (*model.ClinicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok {
		return nil, fmt.Errorf("record %s not found", recordID)
	}
	return r, nil
}

// Records adapts Store onto external.RecordStore.
type Records struct{ *Store }

func (r Records) Get(ctx context.Context, recordID string) (*model.ClinicalRecord, error) {
	return r.getRecord(ctx, recordID)
}

func (r Records) ApplySectionUpdate(ctx context.Context, update model.SectionUpdate) (*model.ClinicalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[update.RecordID]
	if !ok {
		rec = &model.ClinicalRecord{RecordID: update.RecordID, Sections: make(map[string]map[string]any)}
		r.records[update.RecordID] = rec
	}
	if rec.Sections == nil {
		rec.Sections = make(map[string]map[string]any)
	}
	section := rec.Sections[update.Section]
	if section == nil {
		section = make(map[string]any)
	}
	for k, v := range update.Fields {
		section[k] = v
	}
	rec.Sections[update.Section] = section
	rec.UpdatedBy = update.UserID
	rec.UpdatedAt = time.Now().UTC()
	return rec, nil
}
