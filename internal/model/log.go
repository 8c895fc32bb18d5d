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

// LogStatus is the outcome of one ingestion attempt.
type LogStatus string

// Integration log statuses.
const (
	LogProcessing LogStatus = "PROCESSING"
	LogSuccess    LogStatus = "SUCCESS"
	LogPartial    LogStatus = "PARTIAL"
	LogFailed     LogStatus = "FAILED"
)

// InitiatedBy names who/what triggered an ingestion attempt.
type InitiatedBy string

// Initiator values.
const (
	InitiatedByDevice    InitiatedBy = "DEVICE"
	InitiatedByManual    InitiatedBy = "MANUAL"
	InitiatedByScheduled InitiatedBy = "SCHEDULED"
)

// Severity classifies an error inside an IntegrationLogEntry.
type Severity string

// Severity levels.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ErrorDetail describes a failure recorded on a log entry.
type ErrorDetail struct {
	Code     string
	Message  string
	Severity Severity
}

// WebhookAudit captures the inbound webhook request for audit purposes.
type WebhookAudit struct {
	Signature         string
	SignatureVerified bool
	Headers           map[string]string
	Payload           map[string]any
}

// Source captures request origin metadata.
type Source struct {
	IPAddress string
	UserAgent string
}

// Processing captures per-attempt counters.
type Processing struct {
	RecordsProcessed int
	RecordsFailed    int
	ProcessingTime   time.Duration
}

// CreatedRecords lists the records an ingestion attempt produced.
type CreatedRecords struct {
	DeviceMeasurements []string
	DeviceImages       []string
	Count              int
}

// IntegrationLogEntry is one record per ingestion attempt.
type IntegrationLogEntry struct {
	Device            string
	DeviceType        string
	EventType         string
	Status            LogStatus
	IntegrationMethod string
	InitiatedBy       InitiatedBy
	StartedAt         time.Time
	CompletedAt       time.Time

	Source  Source
	Webhook *WebhookAudit

	ErrorDetails *ErrorDetail
	Processing   *Processing
	Created      *CreatedRecords
}
