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
	"net/http"

	"github.com/minio/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes wires GET /metrics onto router, in MinIO's
// Methods().Path().HandlerFunc() mux style (cmd/routers.go's
// registerMetricsRouter). A fresh registry is used rather than the global
// default so the process's metrics surface is exactly this package's
// groups plus the standard Go/process collectors operators expect.
func RegisterRoutes(router *mux.Router, deps Deps) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(BuildGroups(deps)))
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	router.Methods(http.MethodGet).Path("/metrics").Handler(handler)
}
