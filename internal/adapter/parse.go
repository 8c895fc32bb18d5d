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

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
)

// ParseCSV is the shared CSV parser adapters delegate to: header row
// defines field names, every subsequent row becomes one record keyed by
// those names. Numeric-looking values are converted to float64 so
// CheckRange can operate on them directly.
func ParseCSV(data []byte) ([]map[string]any, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil || len(rows) == 0 {
		return nil, err
	}

	header := rows[0]
	records := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(row) {
				continue
			}
			rec[col] = coerce(row[i])
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseKeyValue is the shared text parser adapters delegate to, tolerating
// `:`, `=`, and tab as the key/value delimiter on each line. Blank lines and
// lines without a recognized delimiter are skipped.
func ParseKeyValue(data []byte) (map[string]any, error) {
	rec := make(map[string]any)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, ok := splitKV(line)
		if !ok {
			continue
		}
		rec[strings.TrimSpace(key)] = coerce(strings.TrimSpace(value))
	}
	return rec, scanner.Err()
}

func splitKV(line string) (key, value string, ok bool) {
	for _, sep := range []string{":", "=", "\t"} {
		if idx := strings.Index(line, sep); idx > 0 {
			return line[:idx], line[idx+len(sep):], true
		}
	}
	return "", "", false
}

func coerce(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
