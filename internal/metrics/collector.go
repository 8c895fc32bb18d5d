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

package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector fans every registered MetricsGroup's metrics out as
// Prometheus series on each scrape. It plays the same role as
// MinIO's minioNodeCollector (cmd/metrics-v2.go), minus the
// node/cluster split this single-process service has no use for.
type Collector struct {
	groups []*MetricsGroup
	desc   *prometheus.Desc
}

// NewCollector builds a Collector over the given groups, typically
// BuildGroups' result.
func NewCollector(groups []*MetricsGroup) *Collector {
	return &Collector{
		groups: groups,
		desc:   prometheus.NewDesc("deviceintegration_stats", "Statistics exposed by the device integration service", nil, nil),
	}
}

// Describe sends the super-set descriptor; per-series descriptors are
// built dynamically in Collect, the same deliberate choice MinIO's
// collector makes since the label set varies per scrape.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, g := range c.groups {
		if g == nil {
			continue
		}
		for _, m := range g.Get() {
			labels, values := orderedLabelValues(m.VariableLabels)
			desc := prometheus.NewDesc(
				prometheus.BuildFQName(string(m.Description.Namespace), string(m.Description.Subsystem), string(m.Description.Name)),
				m.Description.Help,
				labels,
				nil,
			)
			valueType := prometheus.GaugeValue
			if m.Description.Type == CounterMetric {
				valueType = prometheus.CounterValue
			}
			ch <- prometheus.MustNewConstMetric(desc, valueType, m.Value, values...)
		}
	}
}

// orderedLabelValues returns label names and values in the same
// deterministic order, since prometheus.NewDesc requires the label name
// list and MustNewConstMetric's value list to agree on order, and a map
// alone doesn't guarantee it across calls.
func orderedLabelValues(vl map[string]string) ([]string, []string) {
	if len(vl) == 0 {
		return nil, nil
	}
	labels := make([]string, 0, len(vl))
	for k := range vl {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	values := make([]string, len(labels))
	for i, k := range labels {
		values[i] = vl[k]
	}
	return labels, values
}
