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

// Package queue implements the durable priority job queue:
// ten priority bands backed by Redis lists, a delayed sorted set for
// scheduled retries, a capped dead-letter list, and a synchronous
// in-process fallback when Redis is unreachable. Its pool/connection shape
// is grounded on MinIO's internal/event/target/redis.go RedisTarget,
// generalized from "one notification sink" to "a durable work queue".
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gomodule/redigo/redis"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/clinicore/deviceintegration/internal/config"
	"github.com/clinicore/deviceintegration/internal/errs"
	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/xlog"
)

// Handler processes one job's payload and returns a result to store under
// Job.Result.
type Handler func(ctx context.Context, job model.Job) (map[string]any, error)

// connGetter is the subset of *redis.Pool the queue depends on. redis.Conn
// is already an interface in redigo, so a fake connGetter in tests needs no
// live Redis server — mirroring how RedisTarget is built around pool.Get()
// rather than a concrete connection.
type connGetter interface {
	Get() redis.Conn
}

// Queue is the durable priority job queue. A nil pool puts it in
// Redis-absent fallback mode: AddJob executes the handler synchronously and
// StartProcessing is a no-op in fallback mode.
type Queue struct {
	pool connGetter
	cfg  config.QueueConfig
	bus  *events.Broadcaster

	mu       sync.RWMutex
	handlers map[string]Handler

	stopCh  chan struct{}
	running atomic.Bool
	sem     chan struct{}

	processed atomic.Int64
	failedCtr atomic.Int64
}

// New constructs a Queue. pool may be nil to force fallback mode.
func New(pool connGetter, cfg config.QueueConfig, bus *events.Broadcaster) *Queue {
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 3
	}
	return &Queue{
		pool:     pool,
		cfg:      cfg,
		bus:      bus,
		handlers: make(map[string]Handler),
	}
}

// NewRedisPool builds a *redis.Pool from RedisConfig using the same
// dial/AUTH/CLIENT-SETNAME sequence MinIO's internal/event/target/redis.go uses.
func NewRedisPool(cfg config.RedisConfig) *redis.Pool {
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 3
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 2 * time.Minute
	}
	return &redis.Pool{
		MaxIdle:     maxIdle,
		IdleTimeout: idleTimeout,
		Dial: func() (redis.Conn, error) {
			conn, err := redis.Dial("tcp", cfg.Address)
			if err != nil {
				return nil, err
			}
			if cfg.Password != "" {
				if _, err = conn.Do("AUTH", cfg.Password); err != nil {
					conn.Close()
					return nil, err
				}
			}
			if _, err = conn.Do("CLIENT", "SETNAME", "deviceintegrationd"); err != nil {
				conn.Close()
				return nil, err
			}
			return conn, nil
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}
}

// Durable reports whether the queue has a live Redis pool.
func (q *Queue) Durable() bool { return q.pool != nil }

// RegisterHandler installs the handler for jobType, overwriting any prior
// registration.
func (q *Queue) RegisterHandler(jobType model.JobType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[string(jobType)] = h
}

func (q *Queue) handlerFor(jobType model.JobType) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[string(jobType)]
	return h, ok
}

func (q *Queue) key(parts ...string) string {
	s := q.cfg.KeyPrefix
	for _, p := range parts {
		s += p
	}
	return s
}

func randomSuffix() string {
	return uuid.NewString()[:8]
}

// AddJob enqueues data under jobType with the given options, returning the
// constructed job. When the queue has no Redis pool, the handler runs
// synchronously before AddJob returns ("Redis-absent
// fallback").
func (q *Queue) AddJob(ctx context.Context, jobType model.JobType, data map[string]any, opts model.AddJobOptions) (model.Job, error) {
	priority := opts.Priority
	if priority <= 0 {
		priority = model.PriorityScheduled
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = q.cfg.DefaultRetries
	}
	timeoutMs := opts.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = q.cfg.DefaultTimeoutMs
	}

	job := model.Job{
		ID:          fmt.Sprintf("%s_%d_%s", jobType, time.Now().UnixMilli(), randomSuffix()),
		Type:        jobType,
		Data:        data,
		Priority:    priority,
		Retries:     retries,
		RetriesLeft: retries,
		TimeoutMs:   timeoutMs,
		CreatedAt:   time.Now().UTC(),
	}

	if q.pool == nil {
		return q.runSynchronously(ctx, job)
	}

	if opts.DelayMs > 0 {
		job.Status = model.JobDelayed
		job.ScheduledFor = time.Now().Add(time.Duration(opts.DelayMs) * time.Millisecond)
		if err := q.saveJob(job); err != nil {
			return job, err
		}
		if err := q.zaddDelayed(job.ID, job.ScheduledFor); err != nil {
			return job, err
		}
	} else {
		job.Status = model.JobPending
		if err := q.saveJob(job); err != nil {
			return job, err
		}
		if err := q.lpush(q.priorityKey(job.Priority), job.ID); err != nil {
			return job, err
		}
	}

	q.bus.Emit(events.JobAdded, map[string]any{"jobId": job.ID, "type": job.Type, "priority": job.Priority})
	return job, nil
}

func (q *Queue) runSynchronously(ctx context.Context, job model.Job) (model.Job, error) {
	job.Status = model.JobProcessing
	handler, ok := q.handlerFor(job.Type)
	if !ok {
		job.Status = model.JobFailed
		job.FailedAt = time.Now().UTC()
		q.failedCtr.Inc()
		return job, errs.ErrNoHandler
	}

	attempt := model.Attempt{StartedAt: time.Now().UTC()}
	result, err := handler(ctx, job)
	now := time.Now().UTC()
	if err != nil {
		attempt.Error = err.Error()
		job.Attempts = append(job.Attempts, attempt)
		job.Status = model.JobFailed
		job.FailedAt = now
		q.failedCtr.Inc()
		return job, err
	}

	job.Attempts = append(job.Attempts, attempt)
	job.Status = model.JobCompleted
	job.CompletedAt = now
	job.Result = result
	q.processed.Inc()
	return job, nil
}

func (q *Queue) priorityKey(priority int) string {
	return q.key("queue:", fmt.Sprintf("%d", priority))
}

func (q *Queue) saveJob(job model.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	conn := q.pool.Get()
	defer conn.Close()
	_, err = conn.Do("SET", q.key("job:", job.ID), raw, "EX", 24*60*60)
	return err
}

func (q *Queue) lpush(key, value string) error {
	conn := q.pool.Get()
	defer conn.Close()
	_, err := conn.Do("LPUSH", key, value)
	return err
}

func (q *Queue) zaddDelayed(jobID string, ready time.Time) error {
	conn := q.pool.Get()
	defer conn.Close()
	_, err := conn.Do("ZADD", q.key("delayed"), ready.UnixMilli(), jobID)
	return err
}

// GetJob reads and deserializes a job by id.
func (q *Queue) GetJob(id string) (model.Job, bool, error) {
	if q.pool == nil {
		return model.Job{}, false, nil
	}
	conn := q.pool.Get()
	defer conn.Close()
	raw, err := redis.Bytes(conn.Do("GET", q.key("job:", id)))
	if err == redis.ErrNil {
		return model.Job{}, false, nil
	}
	if err != nil {
		return model.Job{}, false, err
	}
	var job model.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return model.Job{}, false, err
	}
	return job, true, nil
}

// Stats summarizes queue depth and lifetime counters.
type Stats struct {
	Durable     bool
	Processed   int64
	Failed      int64
	Delayed     int64
	DeadLetter  int64
	PerPriority map[int]int64
}

// GetStats reports queue depth and lifetime counters. In fallback mode only
// the lifetime counters are meaningful.
func (q *Queue) GetStats() (Stats, error) {
	stats := Stats{Durable: q.Durable(), Processed: q.processed.Load(), Failed: q.failedCtr.Load(), PerPriority: map[int]int64{}}
	if q.pool == nil {
		return stats, nil
	}

	conn := q.pool.Get()
	defer conn.Close()

	delayed, err := redis.Int64(conn.Do("ZCARD", q.key("delayed")))
	if err != nil && err != redis.ErrNil {
		return stats, err
	}
	stats.Delayed = delayed

	dlq, err := redis.Int64(conn.Do("LLEN", q.key("failed")))
	if err != nil && err != redis.ErrNil {
		return stats, err
	}
	stats.DeadLetter = dlq

	for p := model.PriorityWebhook; p <= model.PriorityLowest; p++ {
		n, err := redis.Int64(conn.Do("LLEN", q.priorityKey(p)))
		if err != nil && err != redis.ErrNil {
			continue
		}
		stats.PerPriority[p] = n
	}
	return stats, nil
}

// StartProcessing launches the scheduler and worker loops. No-op when the
// queue has no Redis pool.
func (q *Queue) StartProcessing(ctx context.Context) {
	if q.pool == nil {
		return
	}
	if !q.running.CompareAndSwap(false, true) {
		return
	}
	q.stopCh = make(chan struct{})
	q.sem = make(chan struct{}, q.cfg.WorkerConcurrency)

	go q.schedulerLoop(ctx)
	go q.workerLoop(ctx)
}

// StopProcessing halts both background loops. Safe to call when not running.
func (q *Queue) StopProcessing() {
	if !q.running.CompareAndSwap(true, false) {
		return
	}
	close(q.stopCh)
}

func (q *Queue) schedulerLoop(ctx context.Context) {
	tick := q.cfg.SchedulerTick
	if tick <= 0 {
		tick = 5 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.promoteDelayed()
		}
	}
}

// promoteDelayed moves every delayed job whose ready-time has passed into
// its priority list, per the scheduler thread.
func (q *Queue) promoteDelayed() {
	conn := q.pool.Get()
	defer conn.Close()

	now := time.Now().UnixMilli()
	ids, err := redis.Strings(conn.Do("ZRANGEBYSCORE", q.key("delayed"), 0, now))
	if err != nil {
		if err != redis.ErrNil {
			xlog.L().Warn("scheduler: ZRANGEBYSCORE failed", zap.Error(err))
		}
		return
	}
	for _, id := range ids {
		job, ok, err := q.GetJob(id)
		if err != nil || !ok {
			conn.Do("ZREM", q.key("delayed"), id)
			continue
		}
		job.Status = model.JobPending
		if err := q.saveJob(job); err != nil {
			continue
		}
		if _, err := conn.Do("LPUSH", q.priorityKey(job.Priority), id); err != nil {
			continue
		}
		conn.Do("ZREM", q.key("delayed"), id)
	}
}

// workerLoop pops jobs in strict priority order and spawns a bounded number
// of concurrent processing tasks, per the worker loop.
func (q *Queue) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		default:
		}

		id, ok := q.popNext()
		if !ok {
			time.Sleep(time.Second)
			continue
		}

		select {
		case q.sem <- struct{}{}:
		case <-q.stopCh:
			return
		}
		go func(id string) {
			defer func() { <-q.sem }()
			q.processByID(ctx, id)
		}(id)
	}
}

// popNext scans priority 1..10 and RPOPs the first non-empty list.
func (q *Queue) popNext() (id string, ok bool) {
	conn := q.pool.Get()
	defer conn.Close()

	priorities := make([]int, 0, model.PriorityLowest)
	for p := model.PriorityWebhook; p <= model.PriorityLowest; p++ {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)

	for _, p := range priorities {
		v, err := redis.String(conn.Do("RPOP", q.priorityKey(p)))
		if err == redis.ErrNil {
			continue
		}
		if err != nil {
			xlog.L().Warn("worker: RPOP failed", zap.Int("priority", p), zap.Error(err))
			continue
		}
		return v, true
	}
	return "", false
}

// processByID loads, runs, and finalizes one job, moving it through the
// "Processing" state to a terminal outcome.
func (q *Queue) processByID(ctx context.Context, id string) {
	job, ok, err := q.GetJob(id)
	if err != nil || !ok {
		xlog.L().Warn("worker: job vanished before processing", zap.String("jobId", id), zap.Error(err))
		return
	}

	handler, ok := q.handlerFor(job.Type)
	if !ok {
		q.finalizeFailed(job, errs.ErrNoHandler)
		return
	}

	job.Status = model.JobProcessing
	job.Attempts = append(job.Attempts, model.Attempt{StartedAt: time.Now().UTC()})
	q.saveJob(job)
	q.bus.Emit(events.JobStarted, map[string]any{"jobId": job.ID, "type": job.Type})

	timeout := time.Duration(job.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := handler(runCtx, job)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			q.retryOrFail(job, o.err)
			return
		}
		q.finalizeCompleted(job, o.result)
	case <-runCtx.Done():
		q.retryOrFail(job, fmt.Errorf("job timed out after %s", timeout))
	}
}

func (q *Queue) finalizeCompleted(job model.Job, result map[string]any) {
	job.Status = model.JobCompleted
	job.CompletedAt = time.Now().UTC()
	job.Result = result
	q.saveJob(job)
	q.processed.Inc()
	q.bus.Emit(events.JobCompleted, map[string]any{"jobId": job.ID, "type": job.Type})
}

// retryOrFail decrements retriesLeft and either reschedules with
// exponential backoff or moves the job to the dead-letter list.
func (q *Queue) retryOrFail(job model.Job, cause error) {
	if len(job.Attempts) > 0 {
		job.Attempts[len(job.Attempts)-1].Error = cause.Error()
	}

	if job.RetriesLeft > 0 {
		attemptsUsed := job.Retries - job.RetriesLeft + 1
		job.RetriesLeft--
		job.Status = model.JobDelayed
		delayMs := int64(1) << uint(attemptsUsed-1) * 1000
		job.ScheduledFor = time.Now().Add(time.Duration(delayMs) * time.Millisecond)
		q.saveJob(job)
		q.zaddDelayed(job.ID, job.ScheduledFor)
		q.bus.Emit(events.JobRetry, map[string]any{"jobId": job.ID, "retriesLeft": job.RetriesLeft, "delayMs": delayMs})
		return
	}

	q.finalizeFailed(job, cause)
}

func (q *Queue) finalizeFailed(job model.Job, cause error) {
	job.Status = model.JobFailed
	job.FailedAt = time.Now().UTC()
	q.saveJob(job)
	q.pushFailed(job.ID)
	q.failedCtr.Inc()
	q.bus.Emit(events.JobFailed, map[string]any{"jobId": job.ID, "type": job.Type, "error": cause.Error()})
}

func (q *Queue) pushFailed(id string) {
	conn := q.pool.Get()
	defer conn.Close()
	conn.Do("LPUSH", q.key("failed"), id)
	conn.Do("LTRIM", q.key("failed"), 0, q.capOrDefault()-1)
}

func (q *Queue) capOrDefault() int64 {
	if q.cfg.DeadLetterCap > 0 {
		return int64(q.cfg.DeadLetterCap)
	}
	return 1000
}

// RetryAllFailed reloads every DLQ entry, resets retriesLeft, and
// re-enqueues it at pending status; the DLQ is then cleared.
func (q *Queue) RetryAllFailed() (int, error) {
	if q.pool == nil {
		return 0, nil
	}
	conn := q.pool.Get()
	defer conn.Close()

	ids, err := redis.Strings(conn.Do("LRANGE", q.key("failed"), 0, -1))
	if err != nil && err != redis.ErrNil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		job, ok, err := q.GetJob(id)
		if err != nil || !ok {
			continue
		}
		job.RetriesLeft = job.Retries
		job.Status = model.JobPending
		job.FailedAt = time.Time{}
		if err := q.saveJob(job); err != nil {
			continue
		}
		if _, err := conn.Do("LPUSH", q.priorityKey(job.Priority), id); err != nil {
			continue
		}
		count++
	}
	conn.Do("DEL", q.key("failed"))
	return count, nil
}

// ClearFailedJobs deletes the dead-letter list and returns how many entries
// it held.
func (q *Queue) ClearFailedJobs() (int, error) {
	if q.pool == nil {
		return 0, nil
	}
	conn := q.pool.Get()
	defer conn.Close()
	n, err := redis.Int(conn.Do("LLEN", q.key("failed")))
	if err != nil && err != redis.ErrNil {
		return 0, err
	}
	if _, err := conn.Do("DEL", q.key("failed")); err != nil {
		return 0, err
	}
	return n, nil
}
