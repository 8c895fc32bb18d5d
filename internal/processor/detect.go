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

package processor

import "strings"

// deviceTokens maps a registry device-type key to the manufacturer-name
// substrings that identify it in a path or filename.
var deviceTokens = map[string][]string{
	"specular-microscope": {"specular", "sp-1p", "sp-3000p", "em-4000", "cellchek"},
	"oct":                 {"oct", "cirrus", "spectralis", "rs-3000", "triton"},
	"fundus-camera":       {"fundus", "nonmyd", "afc-330", "crystal"},
	"tonometer":           {"tonometer", "tonoref", "icare", "nct"},
	"refractometer":       {"refract", "kr-1", "rm-800"},
}

// DetectDeviceType infers a device-type key from a file path's directory
// components and filename when no explicit hint is supplied.
func DetectDeviceType(filePath string) string {
	lower := strings.ToLower(filePath)
	for deviceType, tokens := range deviceTokens {
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				return deviceType
			}
		}
	}
	return ""
}
