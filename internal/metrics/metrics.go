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

// Package metrics exposes Prometheus series for the queue, the SMB pool,
// the orchestrator's sync state, the folder indexer, and the broadcast
// event stream. It follows the MetricsGroup/Collector split MinIO uses
// for its own series (cmd/metrics-v2.go): each concern registers a cached
// read function, and a single prometheus.Collector fans every group's
// metrics out on scrape, scoped down from MinIO's node/cluster split since this service
// has no equivalent of a multi-node cluster.
package metrics

import (
	"context"
	"time"
)

// MetricNamespace groups metrics by owning subsystem in the exported name.
type MetricNamespace string

// MetricSubsystem further groups metrics within a namespace.
type MetricSubsystem string

// MetricName is the final segment of an exported metric's name.
type MetricName string

// MetricType selects how a Metric's value is exported.
type MetricType string

// Metric value types.
const (
	GaugeMetric   MetricType = "gauge"
	CounterMetric MetricType = "counter"
)

// Namespaces, one per owning package.
const (
	NamespaceQueue   MetricNamespace = "deviceintegration_queue"
	NamespaceSMB     MetricNamespace = "deviceintegration_smb"
	NamespaceSync    MetricNamespace = "deviceintegration_sync"
	NamespaceIndexer MetricNamespace = "deviceintegration_indexer"
	NamespaceEvents  MetricNamespace = "deviceintegration_events"
)

// Subsystems shared across namespaces.
const (
	SubsystemJobs        MetricSubsystem = "jobs"
	SubsystemPriority    MetricSubsystem = "priority"
	SubsystemConnections MetricSubsystem = "connections"
	SubsystemDevices     MetricSubsystem = "devices"
	SubsystemFolders     MetricSubsystem = "folders"
	SubsystemBroadcast   MetricSubsystem = "broadcast"
)

// MetricDescription identifies one exported series.
type MetricDescription struct {
	Namespace MetricNamespace
	Subsystem MetricSubsystem
	Name      MetricName
	Help      string
	Type      MetricType
}

// Metric is one observed value for a MetricDescription, with optional
// labels varying within that description (e.g. one series per priority
// band or per event type).
type Metric struct {
	Description    MetricDescription
	Value          float64
	VariableLabels map[string]string
}

// MetricsGroup is a set of related metrics refreshed together on a TTL,
// the same role MinIO's MetricsGroup plays for bucket/cluster/node
// metrics.
type MetricsGroup struct {
	cache cachedValue
}

// DefaultGroupTTL bounds how often a group's read function re-runs,
// independent of scrape frequency.
const DefaultGroupTTL = 5 * time.Second

// RegisterRead installs the function used to (re)compute this group's
// metrics once the cache goes stale.
func (g *MetricsGroup) RegisterRead(read func(ctx context.Context) []Metric) {
	g.cache.TTL = DefaultGroupTTL
	g.cache.Update = func() (any, error) {
		return read(context.Background()), nil
	}
}

// Get returns this group's current metrics, refreshing them if the cache
// has gone stale.
func (g *MetricsGroup) Get() []Metric {
	v, err := g.cache.Get()
	if err != nil {
		return nil
	}
	m, _ := v.([]Metric)
	return m
}
