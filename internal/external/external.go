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

// Package external declares the boundary interfaces to collaborators that
// this core places out of scope: the document store, the OCR
// microservice, and user/session management. The core depends only on
// these interfaces; concrete implementations (Mongo-style store, HTTP OCR
// client, WebSocket hub) are wired at startup by cmd/deviceintegrationd.
package external

import (
	"context"

	"github.com/clinicore/deviceintegration/internal/model"
)

// DeviceStore is the external document store's device-facing contract.
// The core has write authority only over the Integration subtree.
type DeviceStore interface {
	Get(ctx context.Context, deviceID string) (*model.Device, error)
	ListSMBConfigured(ctx context.Context) ([]*model.Device, error)
	UpdateIntegration(ctx context.Context, deviceID string, integration model.Integration) error
}

// MeasurementStore persists normalized measurements produced by adapters.
type MeasurementStore interface {
	Save(ctx context.Context, m *model.Measurement) (id string, err error)
}

// ImageStore persists normalized image handoffs produced by adapters.
type ImageStore interface {
	Save(ctx context.Context, img *model.Image) (id string, err error)
}

// IntegrationLogStore persists one record per ingestion attempt.
type IntegrationLogStore interface {
	Create(ctx context.Context, entry *model.IntegrationLogEntry) (id string, err error)
	Complete(ctx context.Context, id string, status model.LogStatus, proc *model.Processing, created *model.CreatedRecords, errDetail *model.ErrorDetail) error
}

// PatientMatcher resolves a candidate patient ID for identity info, used by
// the indexer and the universal file processor's downstream consumers.
type PatientMatcher interface {
	FindByLegacyID(ctx context.Context, legacyID string) (patientID string, ok bool, err error)
	FindByName(ctx context.Context, firstName, lastName string) (candidates []string, err error)
}

// FolderMappingStore persists operator-confirmed folder-to-patient links so
// the indexer can short-circuit future encounters of the same folder
// without re-running heuristics.
type FolderMappingStore interface {
	Get(ctx context.Context, folderName, deviceType string) (patientID string, ok bool, err error)
	Save(ctx context.Context, folderName, deviceType, patientID, userID string) error
}

// UnmatchedFolderStore persists folders the indexer could not confidently
// resolve, staged for operator review.
type UnmatchedFolderStore interface {
	Save(ctx context.Context, ticket model.UnmatchedFolderTicket) error
	List(ctx context.Context) ([]model.UnmatchedFolderTicket, error)
	Delete(ctx context.Context, folderName, deviceType string) error
}

// RecordStore is the clinical-record boundary the granular updater writes
// through. ApplySectionUpdate performs one atomic, per-section write that
// bypasses whole-document validation and touches only update.Fields plus
// the updatedBy/updatedAt audit fields; it never re-validates or re-saves
// any other part of the parent record.
type RecordStore interface {
	Get(ctx context.Context, recordID string) (*model.ClinicalRecord, error)
	ApplySectionUpdate(ctx context.Context, update model.SectionUpdate) (*model.ClinicalRecord, error)
}

// OCRRequest is the payload sent to the OCR microservice.
type OCRRequest struct {
	FilePath        string
	DeviceType      string
	ExtractThumbnail bool
}

// OCRResponse is the OCR microservice's response shape.
type OCRResponse struct {
	ExtractedInfo *model.PatientInfo
	OCRText       string
	OCRConfidence float64
	Error         string
}

// OCRClient calls the out-of-process OCR microservice (§6 Outbound).
type OCRClient interface {
	Process(ctx context.Context, req OCRRequest) (*OCRResponse, error)
	ProcessDICOM(ctx context.Context, filePath string) (*OCRResponse, error)
	Health(ctx context.Context) error
}
