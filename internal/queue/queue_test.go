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

package queue

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/clinicore/deviceintegration/internal/config"
	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/model"
)

// memStore is a minimal in-memory Redis stand-in covering the handful of
// commands the queue issues (SET/GET/DEL, LPUSH/RPOP/LLEN/LRANGE/LTRIM,
// ZADD/ZCARD/ZRANGEBYSCORE/ZREM). It exists purely to exercise Queue's
// control flow without a live Redis server.
type memStore struct {
	mu       sync.Mutex
	strings  map[string][]byte
	lists    map[string][]string
	zsets    map[string]map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		strings: map[string][]byte{},
		lists:   map[string][]string{},
		zsets:   map[string]map[string]int64{},
	}
}

func (m *memStore) Get() redis.Conn { return &memConn{store: m} }

type memConn struct {
	store *memStore
}

func (c *memConn) Close() error                                       { return nil }
func (c *memConn) Err() error                                         { return nil }
func (c *memConn) Send(string, ...interface{}) error                  { return nil }
func (c *memConn) Flush() error                                       { return nil }
func (c *memConn) Receive() (interface{}, error)                      { return nil, nil }

func (c *memConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	m := c.store
	m.mu.Lock()
	defer m.mu.Unlock()

	switch cmd {
	case "PING":
		return "PONG", nil
	case "CLIENT":
		return "OK", nil
	case "SET":
		key := args[0].(string)
		val := args[1]
		var b []byte
		switch v := val.(type) {
		case []byte:
			b = v
		case string:
			b = []byte(v)
		}
		m.strings[key] = b
		return "OK", nil
	case "GET":
		key := args[0].(string)
		v, ok := m.strings[key]
		if !ok {
			return nil, redis.ErrNil
		}
		return v, nil
	case "DEL":
		key := args[0].(string)
		delete(m.strings, key)
		delete(m.lists, key)
		delete(m.zsets, key)
		return int64(1), nil
	case "LPUSH":
		key := args[0].(string)
		val := toStr(args[1])
		m.lists[key] = append([]string{val}, m.lists[key]...)
		return int64(len(m.lists[key])), nil
	case "RPOP":
		key := args[0].(string)
		l := m.lists[key]
		if len(l) == 0 {
			return nil, redis.ErrNil
		}
		v := l[len(l)-1]
		m.lists[key] = l[:len(l)-1]
		return v, nil
	case "LLEN":
		key := args[0].(string)
		return int64(len(m.lists[key])), nil
	case "LRANGE":
		key := args[0].(string)
		l := m.lists[key]
		out := make([]interface{}, len(l))
		for i, v := range l {
			out[i] = []byte(v)
		}
		return out, nil
	case "LTRIM":
		key := args[0].(string)
		end, _ := strconv.Atoi(toStr(args[2]))
		l := m.lists[key]
		if end+1 < len(l) {
			m.lists[key] = l[:end+1]
		}
		return "OK", nil
	case "ZADD":
		key := args[0].(string)
		score, _ := strconv.ParseInt(toStr(args[1]), 10, 64)
		member := toStr(args[2])
		if m.zsets[key] == nil {
			m.zsets[key] = map[string]int64{}
		}
		m.zsets[key][member] = score
		return int64(1), nil
	case "ZCARD":
		key := args[0].(string)
		return int64(len(m.zsets[key])), nil
	case "ZREM":
		key := args[0].(string)
		member := toStr(args[1])
		delete(m.zsets[key], member)
		return int64(1), nil
	case "ZRANGEBYSCORE":
		key := args[0].(string)
		max, _ := strconv.ParseInt(toStr(args[2]), 10, 64)
		type pair struct {
			member string
			score  int64
		}
		var pairs []pair
		for member, score := range m.zsets[key] {
			if score <= max {
				pairs = append(pairs, pair{member, score})
			}
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })
		out := make([]interface{}, len(pairs))
		for i, p := range pairs {
			out[i] = []byte(p.member)
		}
		return out, nil
	default:
		return nil, errors.New("memConn: unsupported command " + cmd)
	}
}

func toStr(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func testQueue() *Queue {
	cfg := config.DefaultQueueConfig()
	cfg.SchedulerTick = 10 * time.Millisecond
	return New(newMemStore(), cfg, events.NewBroadcaster(nil, nil))
}

func TestAddJobPendingIsPoppedInPriorityOrder(t *testing.T) {
	q := testQueue()
	ctx := context.Background()

	if _, err := q.AddJob(ctx, model.JobFileProcess, nil, model.AddJobOptions{Priority: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := q.AddJob(ctx, model.JobFileProcess, nil, model.AddJobOptions{Priority: 1}); err != nil {
		t.Fatal(err)
	}

	id, ok := q.popNext()
	if !ok {
		t.Fatal("expected a job to be popped")
	}
	job, ok, err := q.GetJob(id)
	if err != nil || !ok {
		t.Fatalf("job lookup failed: ok=%v err=%v", ok, err)
	}
	if job.Priority != 1 {
		t.Fatalf("expected priority-1 job popped first, got priority %d", job.Priority)
	}
}

func TestFallbackModeRunsHandlerSynchronously(t *testing.T) {
	cfg := config.DefaultQueueConfig()
	q := New(nil, cfg, events.NewBroadcaster(nil, nil))
	var ran bool
	q.RegisterHandler(model.JobFileProcess, func(ctx context.Context, job model.Job) (map[string]any, error) {
		ran = true
		return map[string]any{"ok": true}, nil
	})

	job, err := q.AddJob(context.Background(), model.JobFileProcess, nil, model.AddJobOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("expected handler to run synchronously in fallback mode")
	}
	if job.Status != model.JobCompleted {
		t.Fatalf("expected completed status, got %s", job.Status)
	}
	if stats, _ := q.GetStats(); stats.Durable {
		t.Fatal("expected Durable=false in fallback mode")
	}
}

func TestFallbackModeWithoutHandlerFails(t *testing.T) {
	q := New(nil, config.DefaultQueueConfig(), events.NewBroadcaster(nil, nil))
	job, err := q.AddJob(context.Background(), model.JobPatientMatch, nil, model.AddJobOptions{})
	if err == nil {
		t.Fatal("expected error for missing handler")
	}
	if job.Status != model.JobFailed {
		t.Fatalf("expected failed status, got %s", job.Status)
	}
}

func TestProcessByIDRetriesThenMovesToDeadLetter(t *testing.T) {
	q := testQueue()
	var calls int
	q.RegisterHandler(model.JobFileProcess, func(ctx context.Context, job model.Job) (map[string]any, error) {
		calls++
		return nil, errors.New("boom")
	})

	job, err := q.AddJob(context.Background(), model.JobFileProcess, nil, model.AddJobOptions{Retries: 1})
	if err != nil {
		t.Fatal(err)
	}
	id, _ := q.popNext()
	if id != job.ID {
		t.Fatalf("expected to pop %s, got %s", job.ID, id)
	}
	q.processByID(context.Background(), id)

	delayed, ok, err := q.GetJob(id)
	if err != nil || !ok {
		t.Fatalf("job lookup failed: ok=%v err=%v", ok, err)
	}
	if delayed.Status != model.JobDelayed || delayed.RetriesLeft != 0 {
		t.Fatalf("expected the one granted retry to be scheduled, got status=%s retriesLeft=%d", delayed.Status, delayed.RetriesLeft)
	}

	// The retry is now exhausted; a second attempt must dead-letter the job.
	q.processByID(context.Background(), id)

	final, ok, err := q.GetJob(id)
	if err != nil || !ok {
		t.Fatalf("job lookup failed: ok=%v err=%v", ok, err)
	}
	if final.Status != model.JobFailed {
		t.Fatalf("expected job to land in failed status after exhausting retries, got %s", final.Status)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts (initial + 1 retry), got %d", calls)
	}
	n, _ := q.ClearFailedJobs()
	if n != 1 {
		t.Fatalf("expected 1 dead-lettered job, got %d", n)
	}
}

func TestRetryAllFailedResetsAndRequeues(t *testing.T) {
	q := testQueue()
	q.RegisterHandler(model.JobFileProcess, func(ctx context.Context, job model.Job) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	job, _ := q.AddJob(context.Background(), model.JobFileProcess, nil, model.AddJobOptions{Retries: 1})
	id, _ := q.popNext()
	q.processByID(context.Background(), id) // consumes the one granted retry, status -> delayed
	q.processByID(context.Background(), id) // exhausts it, status -> failed

	n, err := q.RetryAllFailed()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 requeued job, got %d", n)
	}
	requeued, ok, err := q.GetJob(job.ID)
	if err != nil || !ok {
		t.Fatalf("job lookup failed: ok=%v err=%v", ok, err)
	}
	if requeued.Status != model.JobPending || requeued.RetriesLeft != requeued.Retries {
		t.Fatalf("expected reset pending job, got status=%s retriesLeft=%d", requeued.Status, requeued.RetriesLeft)
	}
}
