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

import (
	"regexp"
	"strings"
	"time"

	"github.com/clinicore/deviceintegration/internal/model"
)

// genericNameRe matches "Lastname_Firstname" or "Lastname-Firstname" style
// filename prefixes, the common shape across device export conventions.
var genericNameRe = regexp.MustCompile(`(?i)^([A-Za-z]+)[_\-\s]+([A-Za-z]+)`)

// alnumIDRe matches device-style identifiers such as "A12345": a short
// letter prefix directly followed by digits, tried before the plain
// numeric fallback so a patient ID isn't confused with an embedded date.
// The token must be bounded by non-alphanumerics (or the string ends), so
// underscore-separated exports such as "DUPONT_JEAN_A12345_..." match.
var alnumIDRe = regexp.MustCompile(`(?i)(?:^|[^A-Za-z0-9])([A-Za-z]{1,4}\d{3,10})(?:[^A-Za-z0-9]|$)`)

// numericIDRe matches a bare 6-12 digit identifier anywhere in the
// filename, used when no letter-prefixed ID is present.
var numericIDRe = regexp.MustCompile(`(?:^|\D)(\d{6,12})(?:\D|$)`)

var dateLayouts = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`(?:^|\D)(\d{4}-\d{2}-\d{2})(?:\D|$)`), "2006-01-02"},
	{regexp.MustCompile(`(?:^|\D)(\d{2}/\d{2}/\d{4})(?:\D|$)`), "02/01/2006"},
	{regexp.MustCompile(`(?:^|\D)(\d{8})(?:\D|$)`), "20060102"},
}

// lateralityTokenRe matches OD/OS/OU as a standalone token (bounded by
// non-letters) to avoid false hits inside ordinary words such as
// "Bonjour". French/English eye phrases are checked separately since
// they're always multi-word and don't need word-boundary protection.
var lateralityTokenRe = regexp.MustCompile(`(?i)(^|[^a-z])(od|os|ou)([^a-z]|$)`)

var lateralityPhrases = []struct {
	phrase     string
	laterality model.Laterality
}{
	{"right eye", model.LateralityOD},
	{"righteye", model.LateralityOD},
	{"left eye", model.LateralityOS},
	{"lefteye", model.LateralityOS},
	{"both eyes", model.LateralityOU},
	{"botheyes", model.LateralityOU},
	{"oeil droit", model.LateralityOD},
	{"oeildroit", model.LateralityOD},
	{"oeil gauche", model.LateralityOS},
	{"oeilgauche", model.LateralityOS},
	{"deux yeux", model.LateralityOU},
	{"deuxyeux", model.LateralityOU},
}

// ParseFilename extracts a best-effort PatientInfo from a bare filename
// using generic name/ID/date regexes and laterality token scanning. The
// returned confidence is the additive formula: 0.30
// lastName + 0.20 firstName + 0.25 patientId + 0.25 DOB, capped at 1.0.
// Returns nil if nothing at all was extracted.
func ParseFilename(name string) (*model.PatientInfo, float64) {
	info := &model.PatientInfo{}

	if m := genericNameRe.FindStringSubmatch(name); m != nil {
		info.LastName = m[1]
		info.FirstName = m[2]
	}
	if m := alnumIDRe.FindStringSubmatch(name); m != nil {
		info.PatientID = strings.ToUpper(m[1])
	} else if m := numericIDRe.FindStringSubmatch(name); m != nil {
		info.PatientID = m[1]
	}
	if dob, ok := parseEmbeddedDate(name); ok {
		info.DateOfBirth = dob
		info.HasDOB = true
	}
	info.Laterality = extractLaterality(name)

	if !info.HasAnyField() {
		return nil, 0
	}
	return info, scoreInfo(*info)
}

func parseEmbeddedDate(name string) (time.Time, bool) {
	for _, candidate := range dateLayouts {
		m := candidate.re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if t, err := time.Parse(candidate.layout, m[1]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func extractLaterality(name string) model.Laterality {
	if m := lateralityTokenRe.FindStringSubmatch(name); m != nil {
		switch strings.ToLower(m[2]) {
		case "od":
			return model.LateralityOD
		case "os":
			return model.LateralityOS
		case "ou":
			return model.LateralityOU
		}
	}
	lower := strings.ToLower(name)
	for _, p := range lateralityPhrases {
		if strings.Contains(lower, p.phrase) {
			return p.laterality
		}
	}
	return ""
}

// scoreInfo applies the additive confidence formula to an already
// extracted PatientInfo. ParseFilename uses it, as do strategies (e.g. an
// adapter's ExtractPatientDemographics) that don't compute their own.
func scoreInfo(info model.PatientInfo) float64 {
	var score float64
	if info.LastName != "" {
		score += 0.30
	}
	if info.FirstName != "" {
		score += 0.20
	}
	if info.PatientID != "" {
		score += 0.25
	}
	if info.HasDOB {
		score += 0.25
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
