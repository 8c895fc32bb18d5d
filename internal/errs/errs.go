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

// Package errs classifies errors into a retry-aware taxonomy so
// callers can decide retry vs. surface without re-deriving the policy at
// every call site, the way MinIO's IsErr/IsErrIgnored helpers
// (cmd/utils.go) centralize error-identity checks.
package errs

import "errors"

// Class is the error taxonomy bucket.
type Class int

// Error classes.
const (
	ClassValidation Class = iota
	ClassAuth
	ClassTransientTransport
	ClassPermanentTransport
	ClassProcessing
	ClassResource
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuth:
		return "auth"
	case ClassTransientTransport:
		return "transient-transport"
	case ClassPermanentTransport:
		return "permanent-transport"
	case ClassProcessing:
		return "processing"
	case ClassResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Classified wraps an error with its taxonomy class.
type Classified struct {
	Class Class
	Err   error
}

func (c *Classified) Error() string { return c.Err.Error() }
func (c *Classified) Unwrap() error { return c.Err }

// Classify wraps err with the given class. A nil err returns nil.
func Classify(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Class: class, Err: err}
}

// ClassOf extracts the taxonomy class from err, defaulting to
// ClassTransientTransport for unclassified errors, matching the
// "transient transport errors ... retried through the queue's backoff"
// default failure mode for opaque handler errors.
func ClassOf(err error) Class {
	var c *Classified
	if errors.As(err, &c) {
		return c.Class
	}
	return ClassTransientTransport
}

// IsPermanent reports whether err should never be retried.
func IsPermanent(err error) bool {
	switch ClassOf(err) {
	case ClassValidation, ClassAuth, ClassPermanentTransport:
		return true
	default:
		return false
	}
}

// Is reports whether err matches any of targets, mirroring MinIO's
// IsErr helper.
func Is(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// Sentinel errors shared across components.
var (
	ErrNoAdapter         = errors.New("no adapter registered for device type")
	ErrNoHandler         = errors.New("no handler registered for job type")
	ErrConnectionStale   = errors.New("smb connection stale")
	ErrReconnectExceeded = errors.New("reconnect attempts exceeded")
	ErrCacheMiss         = errors.New("file cache miss")
	ErrUnknownDevice     = errors.New("unknown device")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
)
