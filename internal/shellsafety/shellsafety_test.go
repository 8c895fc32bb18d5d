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

package shellsafety

import "testing"

func TestValidateHost(t *testing.T) {
	testCases := []struct {
		host    string
		wantErr bool
	}{
		{"oct-device-01.clinic.local", false},
		{"10.0.4.12", false},
		{"host; rm -rf /", true},
		{"host`whoami`", true},
		{"host|cat", true},
		{"host&&ls", true},
		{"host$(ls)", true},
		{"../etc/passwd", true},
		{"host\nINJECT", true},
	}
	for _, tc := range testCases {
		err := ValidateHost(tc.host)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateHost(%q) error = %v, wantErr %v", tc.host, err, tc.wantErr)
		}
	}
}

func TestValidateShareNameRejectsTraversal(t *testing.T) {
	if err := ValidateShareName("../../share"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestValidateMountPathAllowsIdentityAlphabet(t *testing.T) {
	path := "/mnt/devices/oct-01/exports"
	if err := ValidateMountPath(path); err != nil {
		t.Fatalf("expected %q to validate, got %v", path, err)
	}
}

func TestSanitizeForFilesystemIsIdentityOnAllowedAlphabet(t *testing.T) {
	clean := "DUPONT_JEAN_A12345"
	if got := SanitizeForFilesystem(clean); got != clean {
		t.Errorf("SanitizeForFilesystem(%q) = %q, want identity", clean, got)
	}
}

func TestSanitizeForFilesystemStripsDangerousCharacters(t *testing.T) {
	got := SanitizeForFilesystem("a;b|c&d$e`f<g>h\ni")
	for _, ch := range []string{";", "|", "&", "$", "`", "<", ">", "\n"} {
		if containsRune(got, ch) {
			t.Errorf("sanitized value %q still contains %q", got, ch)
		}
	}
}

func containsRune(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
