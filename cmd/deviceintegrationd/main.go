// Copyright (c) 2015-2023 MinIO, Inc.
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

// Command deviceintegrationd runs the medical-device integration core:
// the SMB connection pool, the durable priority job queue, the
// scheduled-poll/webhook/watcher orchestrator, the patient folder
// indexer, the universal file processor, the granular clinical-record
// updater, and the Prometheus metrics surface, all wired together the
// way MinIO's own cmd/server-main.go wires its subsystems before
// serving.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/mux"
	"go.uber.org/zap"

	"github.com/clinicore/deviceintegration/internal/adapter"
	"github.com/clinicore/deviceintegration/internal/config"
	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/external"
	"github.com/clinicore/deviceintegration/internal/filecache"
	"github.com/clinicore/deviceintegration/internal/indexer"
	"github.com/clinicore/deviceintegration/internal/memstore"
	"github.com/clinicore/deviceintegration/internal/metrics"
	"github.com/clinicore/deviceintegration/internal/orchestrator"
	"github.com/clinicore/deviceintegration/internal/processor"
	"github.com/clinicore/deviceintegration/internal/queue"
	"github.com/clinicore/deviceintegration/internal/records"
	"github.com/clinicore/deviceintegration/internal/smbpool"
	"github.com/clinicore/deviceintegration/internal/xlog"
)

func main() {
	configPath := flag.String("config", "", "path to the service's YAML config file")
	address := flag.String("address", ":8090", "bind ADDRESS:PORT for the HTTP surface")
	cacheDir := flag.String("cache-dir", os.TempDir()+"/deviceintegration-cache", "local directory for the SMB read cache")
	devMode := flag.Bool("dev", false, "use a human-readable development logger instead of production JSON logging")
	flag.Parse()

	logger := buildLogger(*devMode)
	xlog.Init(logger)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := memstore.New()

	cache, err := filecache.New(*cacheDir, cfg.SMBPool.CacheTimeout, 10_000)
	if err != nil {
		logger.Fatal("constructing file cache", zap.Error(err))
	}

	bus := events.NewBroadcaster(nil, func(err error) {
		logger.Warn("event broadcast sink failed", zap.Error(err))
	})

	q := buildQueue(cfg, bus, logger)

	pool := smbpool.New(cfg.SMBPool, bus, cache, smbpool.DefaultDialFn)

	adapters := adapter.NewRegistry()
	adapters.Register(adapter.SpecularMicroscopeType, adapter.NewSpecularMicroscopeAdapter(adapter.Deps{
		Measurements: memstore.Measurements{Store: store},
		Images:       memstore.Images{Store: store},
		Logs:         store,
	}))

	idx := indexer.New(indexer.Deps{
		Devices:   store,
		Matcher:   store,
		Mappings:  memstore.FolderMappings{Store: store},
		Unmatched: memstore.UnmatchedFolders{Store: store},
		SMB:       pool,
		Bus:       bus,
	})

	queue.RegisterBuiltinHandlers(q, queue.HandlerDeps{
		Devices:  store,
		Adapters: adapters,
		SMB:      pool,
		Indexer:  idx,
		Bus:      bus,
	})

	// proc is this process's strategy-chain identity extractor. It is
	// exercised by internal/processor's own test suite and is constructed
	// here, but nothing else in this binary calls it;
	// nothing in the webhook/scheduler/watcher flow needs file-content
	// identity extraction since folder-name matching already resolves
	// those paths.
	proc := processor.New(adapters, buildOCRClient(cfg), cfg.Processor.UseOCR, logger)
	_ = proc

	orch := orchestrator.New(orchestrator.Deps{
		Devices: store,
		Logs:    store,
		SMB:     pool,
		Queue:   q,
		Bus:     bus,
	}, cfg.Orchestrator)

	// recordUpdater is the granular clinical-record updater external
	// collaborators call directly as a library dependency (its one-
	// method-per-subtree API is designed for in-process callers, not this
	// service's own HTTP surface, which only owns device/patient-match
	// intake). Constructed here so a future in-process caller in this
	// binary has it ready without re-threading a store reference.
	recordUpdater := records.New(memstore.Records{Store: store})
	_ = recordUpdater

	q.StartProcessing(ctx)
	orch.StartScheduler(ctx)

	router := mux.NewRouter()
	orch.RegisterRoutes(router)
	metrics.RegisterRoutes(router, metrics.Deps{
		Queue:        q,
		SMB:          pool,
		Orchestrator: orch,
		Indexer:      idx,
		Events:       metrics.NewEventCounters(bus),
	})

	srv := &http.Server{
		Addr:    *address,
		Handler: router,
	}

	go func() {
		logger.Info("deviceintegrationd listening", zap.String("address", *address), zap.Bool("queueDurable", q.Durable()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server exited", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}

	orch.Shutdown()
	q.StopProcessing()
	pool.CloseAll()
}

func buildLogger(dev bool) *zap.Logger {
	var l *zap.Logger
	var err error
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		// zap's own constructors fail only on malformed static config;
		// a nop logger keeps the process bootable rather than panicking
		// before logging exists to explain why.
		return zap.NewNop()
	}
	return l
}

// buildQueue constructs a durable Redis-backed queue when RedisConfig
// names an address, or a Redis-absent fallback queue otherwise, per
// the job queue's Redis-absent fallback mode.
func buildQueue(cfg config.Config, bus *events.Broadcaster, logger *zap.Logger) *queue.Queue {
	if cfg.Redis.Address == "" {
		logger.Warn("no redis address configured, running the job queue in synchronous fallback mode")
		return queue.New(nil, cfg.Queue, bus)
	}
	pool := queue.NewRedisPool(cfg.Redis)
	return queue.New(pool, cfg.Queue, bus)
}

// buildOCRClient constructs the OCR microservice client when a URL is
// configured. A literal nil interface (not a typed nil pointer) disables
// the universal file processor's OCR fallback strategy regardless of
// UseOCR, since Processor checks p.ocr != nil against the interface.
func buildOCRClient(cfg config.Config) external.OCRClient {
	if cfg.Processor.OCRServiceURL == "" {
		return nil
	}
	return processor.NewHTTPOCRClient(cfg.Processor.OCRServiceURL, cfg.Processor.OCRTimeout)
}
