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

// Package shellsafety validates external strings before they reach process
// spawning or filesystem path construction, the way MinIO's target
// Validate() methods reject malformed config before a connection pool is
// built (see internal/event/target's RedisArgs/WebhookArgs.Validate).
package shellsafety

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError identifies the offending field so HTTP handlers can
// surface a 400-class response.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// shellMeta is the set of characters that must never reach a spawned
// subprocess or be shell-interpolated.
const shellMeta = ";&|$`<>\n\r"

var (
	hostRe      = regexp.MustCompile(`^[a-zA-Z0-9.\-]{1,253}$`)
	shareRe     = regexp.MustCompile(`^[a-zA-Z0-9 ._\-$]{1,80}$`)
	mountRe     = regexp.MustCompile(`^[a-zA-Z0-9 ._\-/\\]+$`)
	unsafeToken = regexp.MustCompile(`[^a-zA-Z0-9._\-]`)
)

func containsShellMeta(s string) bool {
	return strings.ContainsAny(s, shellMeta)
}

func containsTraversal(s string) bool {
	return strings.Contains(s, "..")
}

// validateShellSafe rejects any string carrying shell metacharacters or a
// path-traversal segment, regardless of which field it came from.
func validateShellSafe(s, field string) error {
	if containsShellMeta(s) {
		return &ValidationError{Field: field, Value: s, Reason: "contains shell metacharacters"}
	}
	if containsTraversal(s) {
		return &ValidationError{Field: field, Value: s, Reason: "contains path traversal (..)"}
	}
	return nil
}

// ValidateShellSafe is the exported form used directly by callers that
// don't have a more specific validator.
func ValidateShellSafe(s, field string) error {
	return validateShellSafe(s, field)
}

// ValidateHost checks a device connection host against a permissive
// hostname/IPv4 charset.
func ValidateHost(s string) error {
	if err := validateShellSafe(s, "host"); err != nil {
		return err
	}
	if !hostRe.MatchString(s) {
		return &ValidationError{Field: "host", Value: s, Reason: "not a valid hostname"}
	}
	return nil
}

// ValidateShareName checks an SMB share name.
func ValidateShareName(s string) error {
	if err := validateShellSafe(s, "share"); err != nil {
		return err
	}
	if !shareRe.MatchString(s) {
		return &ValidationError{Field: "share", Value: s, Reason: "not a valid share name"}
	}
	return nil
}

// ValidateMountPath checks a locally-mounted filesystem path used by the
// orchestrator's filesystem watcher.
func ValidateMountPath(s string) error {
	if err := validateShellSafe(s, "mountPath"); err != nil {
		return err
	}
	// RE2 caps repeat counts at 1000, so the 4096-byte bound is checked here
	// rather than in mountRe.
	if len(s) > 4096 {
		return &ValidationError{Field: "mountPath", Value: s, Reason: "longer than 4096 characters"}
	}
	if !mountRe.MatchString(s) {
		return &ValidationError{Field: "mountPath", Value: s, Reason: "contains disallowed characters"}
	}
	return nil
}

// SanitizeForFilesystem returns a bounded ASCII token safe to embed in a
// generated filename (e.g. the file cache's temp file names).
func SanitizeForFilesystem(s string) string {
	s = unsafeToken.ReplaceAllString(s, "_")
	const maxLen = 120
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	if s == "" {
		s = "_"
	}
	return s
}
