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
	"context"
	"strconv"

	"github.com/clinicore/deviceintegration/internal/indexer"
	"github.com/clinicore/deviceintegration/internal/orchestrator"
	"github.com/clinicore/deviceintegration/internal/queue"
	"github.com/clinicore/deviceintegration/internal/smbpool"
)

// Deps are the components this package reports metrics for. Any field may
// be nil; its group is then simply skipped.
type Deps struct {
	Queue        *queue.Queue
	SMB          *smbpool.Pool
	Orchestrator *orchestrator.Orchestrator
	Indexer      *indexer.Indexer
	Events       *EventCounters
}

// BuildGroups constructs one MetricsGroup per available dependency.
func BuildGroups(deps Deps) []*MetricsGroup {
	var groups []*MetricsGroup
	if deps.Queue != nil {
		groups = append(groups, queueMetricsGroup(deps.Queue))
	}
	if deps.SMB != nil {
		groups = append(groups, smbMetricsGroup(deps.SMB))
	}
	if deps.Orchestrator != nil {
		groups = append(groups, syncMetricsGroup(deps.Orchestrator))
	}
	if deps.Indexer != nil {
		groups = append(groups, indexerMetricsGroup(deps.Indexer))
	}
	if deps.Events != nil {
		groups = append(groups, eventsMetricsGroup(deps.Events))
	}
	return groups
}

func queueMetricsGroup(q *queue.Queue) *MetricsGroup {
	g := &MetricsGroup{}
	g.RegisterRead(func(ctx context.Context) []Metric {
		stats, err := q.GetStats()
		if err != nil {
			return nil
		}
		out := []Metric{
			{Description: MetricDescription{NamespaceQueue, SubsystemJobs, "processed_total", "Jobs that reached a terminal completed state", CounterMetric}, Value: float64(stats.Processed)},
			{Description: MetricDescription{NamespaceQueue, SubsystemJobs, "failed_total", "Jobs that exhausted retries into the dead letter queue", CounterMetric}, Value: float64(stats.Failed)},
			{Description: MetricDescription{NamespaceQueue, SubsystemJobs, "delayed", "Jobs waiting on a retry backoff timer", GaugeMetric}, Value: float64(stats.Delayed)},
			{Description: MetricDescription{NamespaceQueue, SubsystemJobs, "dead_letter", "Jobs currently held in the dead letter queue", GaugeMetric}, Value: float64(stats.DeadLetter)},
		}
		for priority, depth := range stats.PerPriority {
			out = append(out, Metric{
				Description:    MetricDescription{NamespaceQueue, SubsystemPriority, "depth", "Queue depth per priority band", GaugeMetric},
				Value:          float64(depth),
				VariableLabels: map[string]string{"priority": strconv.Itoa(priority)},
			})
		}
		return out
	})
	return g
}

func smbMetricsGroup(p *smbpool.Pool) *MetricsGroup {
	g := &MetricsGroup{}
	g.RegisterRead(func(ctx context.Context) []Metric {
		stats := p.GetStats()
		return []Metric{
			{Description: MetricDescription{NamespaceSMB, SubsystemConnections, "connects_total", "Successful SMB connection attempts", CounterMetric}, Value: float64(stats.Connects)},
			{Description: MetricDescription{NamespaceSMB, SubsystemConnections, "failures_total", "Failed SMB connection attempts", CounterMetric}, Value: float64(stats.Failures)},
			{Description: MetricDescription{NamespaceSMB, SubsystemConnections, "active", "SMB connection handles currently open", GaugeMetric}, Value: float64(stats.ActiveHandles)},
			{Description: MetricDescription{NamespaceSMB, SubsystemConnections, "cache_entries", "Entries in the pool's local file cache", GaugeMetric}, Value: float64(stats.CacheEntries)},
		}
	})
	return g
}

func syncMetricsGroup(o *orchestrator.Orchestrator) *MetricsGroup {
	g := &MetricsGroup{}
	g.RegisterRead(func(ctx context.Context) []Metric {
		return []Metric{
			{Description: MetricDescription{NamespaceSync, SubsystemDevices, "active_syncs", "Devices currently mid-sync", GaugeMetric}, Value: float64(o.ActiveSyncCount())},
		}
	})
	return g
}

func indexerMetricsGroup(idx *indexer.Indexer) *MetricsGroup {
	g := &MetricsGroup{}
	g.RegisterRead(func(ctx context.Context) []Metric {
		stats := idx.GetStats()
		return []Metric{
			{Description: MetricDescription{NamespaceIndexer, SubsystemFolders, "scanned_total", "Folders scanned during indexing", CounterMetric}, Value: float64(stats.FoldersScanned)},
			{Description: MetricDescription{NamespaceIndexer, SubsystemFolders, "matched_total", "Folders resolved to a patient", CounterMetric}, Value: float64(stats.Matched)},
			{Description: MetricDescription{NamespaceIndexer, SubsystemFolders, "unmatched_total", "Folders staged for operator review", CounterMetric}, Value: float64(stats.Unmatched)},
		}
	})
	return g
}

func eventsMetricsGroup(counters *EventCounters) *MetricsGroup {
	g := &MetricsGroup{}
	g.RegisterRead(func(ctx context.Context) []Metric {
		snapshot := counters.Snapshot()
		out := make([]Metric, 0, len(snapshot))
		for t, n := range snapshot {
			out = append(out, Metric{
				Description:    MetricDescription{NamespaceEvents, SubsystemBroadcast, "emitted_total", "Broadcast events emitted, by type", CounterMetric},
				Value:          float64(n),
				VariableLabels: map[string]string{"type": string(t)},
			})
		}
		return out
	})
	return g
}
