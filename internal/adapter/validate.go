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

package adapter

import "fmt"

// RequireFields appends an error to errs for every key in fields missing or
// empty in data, the shared helper adapters use for
// Validate implementations.
func RequireFields(data map[string]any, fields []string, errs *[]string) {
	for _, f := range fields {
		v, ok := data[f]
		if !ok || v == nil || v == "" {
			*errs = append(*errs, fmt.Sprintf("%s is required", f))
		}
	}
}

// CheckRange appends an error to errs if data[field] is present, numeric,
// and outside [min, max].
func CheckRange(data map[string]any, field string, min, max float64, errs *[]string) {
	raw, ok := data[field]
	if !ok {
		return
	}
	v, ok := toFloat(raw)
	if !ok {
		*errs = append(*errs, fmt.Sprintf("%s must be numeric", field))
		return
	}
	if v < min || v > max {
		*errs = append(*errs, fmt.Sprintf("%s must be between %v and %v", field, min, max))
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
