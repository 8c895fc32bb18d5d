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

// Package model holds the shared data-model shapes exchanged between the
// device-integration components. The core does not own the Device or
// Measurement documents; it only reads and writes the fields listed here.
package model

import "time"

// Protocol identifies how a device is reached.
type Protocol string

// Supported device protocols.
const (
	ProtocolSMB        Protocol = "smb"
	ProtocolWebhook    Protocol = "webhook"
	ProtocolFolderSync Protocol = "folder-sync"
	ProtocolAPI        Protocol = "api"
	ProtocolManual     Protocol = "manual"
)

// IntegrationStatus is the mutable connection state the core is allowed to write.
type IntegrationStatus string

// Integration status values.
const (
	StatusConnected     IntegrationStatus = "connected"
	StatusDisconnected  IntegrationStatus = "disconnected"
	StatusError         IntegrationStatus = "error"
	StatusPending       IntegrationStatus = "pending"
	StatusNotConfigured IntegrationStatus = "not-configured"
)

// Credentials holds the connection secret for a device share.
type Credentials struct {
	Username string
	Password string
	Domain   string
	Guest    bool
}

// Integration is the mutable subtree of a Device the core has write authority over.
type Integration struct {
	Status            IntegrationStatus
	Method            string
	LastSync          time.Time
	LastConnection    time.Time
	LastWebhook       time.Time
	ConsecutiveErrors int
	WebhookCount      int
	LastSyncStatus    string
}

// Device is the external-owned document; the core reads it in full and
// writes only the Integration subtree back.
type Device struct {
	DeviceID     string
	Name         string
	Type         string
	Manufacturer string
	Model        string

	Protocol Protocol
	Host     string
	Share    string
	Creds    Credentials

	AutoCloseTimeout time.Duration
	WebhookSecret    string

	Integration Integration
}

// IsSMBConfigured reports whether the device should be polled over SMB.
func (d *Device) IsSMBConfigured() bool {
	return d.Protocol == ProtocolSMB && d.Host != "" && d.Share != ""
}
