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

// Package events implements the typed event channel families every
// long-running component publishes on: rather than an ad-hoc runtime
// EventEmitter, each publishes strongly typed payloads on a Broadcaster,
// which fans them out to the external broadcast sink and to local
// in-process subscribers.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Type enumerates the event vocabulary broadcast to subscribers.
type Type string

// Event types.
const (
	JobAdded            Type = "job_added"
	JobStarted          Type = "job_started"
	JobCompleted        Type = "job_completed"
	JobFailed           Type = "job_failed"
	JobRetry            Type = "job_retry"
	FileProcessed       Type = "file_processed"
	FileDetected        Type = "file_detected"
	FileRemoved         Type = "file_removed"
	PatientMatched      Type = "patient_matched"
	FoldersIndexed      Type = "folders_indexed"
	DeviceSyncStarted   Type = "device_sync_started"
	DeviceSyncCompleted Type = "device_sync_completed"
	DeviceSyncError     Type = "device_sync_error"
	SyncComplete        Type = "sync_complete"
	WebhookReceived     Type = "webhook_received"
	Reconnecting        Type = "reconnecting"
	Reconnected         Type = "reconnected"
	ReconnectFailed     Type = "reconnect_failed"
	WatchError          Type = "watch_error"
)

// Envelope is the wire shape broadcast to the external sink.
type Envelope struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Sink is the external collaborator (WebSocket hub / event bus) that
// receives every envelope. It is implemented outside this module; see
// internal/external.
type Sink interface {
	Publish(Envelope) error
}

// Subscriber receives every envelope published in-process, regardless of
// whether an external Sink is wired.
type Subscriber func(Envelope)

// Broadcaster fans out events to the external sink (if any) and to local
// subscribers, so a missing sink degrades to local-only instead of losing
// events, the orchestrator's "Event broadcast" mechanism.
type Broadcaster struct {
	mu          sync.RWMutex
	sink        Sink
	subscribers []Subscriber
	errOnce     func(error)
}

// NewBroadcaster constructs a Broadcaster. errOnce receives sink publish
// errors; pass nil to ignore them.
func NewBroadcaster(sink Sink, errOnce func(error)) *Broadcaster {
	if errOnce == nil {
		errOnce = func(error) {}
	}
	return &Broadcaster{sink: sink, errOnce: errOnce}
}

// Subscribe registers a local subscriber and returns an unsubscribe func.
func (b *Broadcaster) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
	idx := len(b.subscribers) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subscribers[idx] = nil
	}
}

// Emit publishes data under the given event type to the sink (if present)
// and to every local subscriber.
func (b *Broadcaster) Emit(t Type, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.errOnce(err)
		return
	}
	env := Envelope{Type: t, Data: raw, Timestamp: time.Now().UTC()}

	b.mu.RLock()
	sink := b.sink
	subs := append([]Subscriber(nil), b.subscribers...)
	b.mu.RUnlock()

	if sink != nil {
		if err := sink.Publish(env); err != nil {
			b.errOnce(err)
		}
	}
	for _, fn := range subs {
		if fn != nil {
			fn(env)
		}
	}
}
