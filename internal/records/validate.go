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
	"regexp"

	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/shellsafety"
)

// opaqueIDRe accepts the document-store's opaque record/exam/prescription
// ID shape: no delimiters the wire format gives any meaning to, just an
// ASCII token.
var opaqueIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)

// ValidateID checks an opaque ID argument (recordId, examId, userId, ...)
// against the allowed charset and length.
func ValidateID(id, field string) error {
	if !opaqueIDRe.MatchString(id) {
		return &shellsafety.ValidationError{Field: field, Value: id, Reason: "not a valid opaque id"}
	}
	return nil
}

const (
	minSphere   = -25.0
	maxSphere   = 25.0
	minCylinder = -10.0
	maxCylinder = 10.0
	minAxis     = 0.0
	maxAxis     = 180.0
	minAddition = 0.25
	maxAddition = 4.00
	minIOP      = 0.0
	maxIOP      = 60.0
)

func inRange(v, lo, hi float64) bool { return v >= lo && v <= hi }

// ValidateSphere checks a refraction sphere value in diopters.
func ValidateSphere(v float64) error {
	if !inRange(v, minSphere, maxSphere) {
		return &shellsafety.ValidationError{Field: "sphere", Reason: "out of range -25..+25 D"}
	}
	return nil
}

// ValidateCylinder checks a refraction cylinder value in diopters.
func ValidateCylinder(v float64) error {
	if !inRange(v, minCylinder, maxCylinder) {
		return &shellsafety.ValidationError{Field: "cylinder", Reason: "out of range -10..+10 D"}
	}
	return nil
}

// ValidateAxis checks a refraction axis in degrees.
func ValidateAxis(v float64) error {
	if !inRange(v, minAxis, maxAxis) {
		return &shellsafety.ValidationError{Field: "axis", Reason: "out of range 0-180 degrees"}
	}
	return nil
}

// ValidateAddition checks a refraction addition in diopters. A zero
// addition means "not applicable" and is always accepted, since not every
// prescription carries a near add.
func ValidateAddition(v float64) error {
	if v == 0 {
		return nil
	}
	if !inRange(v, minAddition, maxAddition) {
		return &shellsafety.ValidationError{Field: "addition", Reason: "out of range +0.25..+4.00 D"}
	}
	return nil
}

// ValidateRefractionValues checks every field of one eye's refraction.
func ValidateRefractionValues(field string, v model.RefractionValues) error {
	if err := ValidateSphere(v.Sphere); err != nil {
		return prefixField(err, field)
	}
	if err := ValidateCylinder(v.Cylinder); err != nil {
		return prefixField(err, field)
	}
	if err := ValidateAxis(v.Axis); err != nil {
		return prefixField(err, field)
	}
	if err := ValidateAddition(v.Addition); err != nil {
		return prefixField(err, field)
	}
	return nil
}

// ValidateIOP checks an intraocular pressure reading in mmHg.
func ValidateIOP(v float64) error {
	if !inRange(v, minIOP, maxIOP) {
		return &shellsafety.ValidationError{Field: "iop", Reason: "out of range 0-60 mmHg"}
	}
	return nil
}

var (
	monoyerRe  = regexp.MustCompile(`^(20|16|14|12|10|8|6|5|4|3|2|1)/(20|16|14|12|10|8|6|5|4|3|2|1|0\.\d+)$`)
	fractionRe = regexp.MustCompile(`^\d{1,3}/\d{1,3}$`)
	parinaudRe = regexp.MustCompile(`(?i)^P ?\d{1,2}$`)
)

// ValidateVisualAcuity accepts a Monoyer fraction (10/10), a Snellen-style
// `n/m` fraction (20/20), a Parinaud near-vision notation (P2), or the
// literal "CF", "HM", "LP", "NLP" near-blind notations.
func ValidateVisualAcuity(notation string) error {
	switch notation {
	case "CF", "HM", "LP", "NLP":
		return nil
	}
	if monoyerRe.MatchString(notation) || fractionRe.MatchString(notation) || parinaudRe.MatchString(notation) {
		return nil
	}
	return &shellsafety.ValidationError{Field: "visualAcuity", Value: notation, Reason: "not a recognized acuity notation"}
}

func prefixField(err error, field string) error {
	if ve, ok := err.(*shellsafety.ValidationError); ok {
		ve.Field = field + "." + ve.Field
		return ve
	}
	return err
}
