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

package events

import (
	"errors"
	"testing"
)

type fakeSink struct {
	published []Envelope
	err       error
}

func (f *fakeSink) Publish(e Envelope) error {
	f.published = append(f.published, e)
	return f.err
}

func TestEmitReachesSinkAndSubscribers(t *testing.T) {
	sink := &fakeSink{}
	b := NewBroadcaster(sink, nil)

	var received []Envelope
	unsubscribe := b.Subscribe(func(e Envelope) { received = append(received, e) })

	b.Emit(JobAdded, map[string]any{"jobId": "j1"})

	if len(sink.published) != 1 || sink.published[0].Type != JobAdded {
		t.Fatalf("expected the sink to receive one JobAdded event, got %v", sink.published)
	}
	if len(received) != 1 || received[0].Type != JobAdded {
		t.Fatalf("expected the subscriber to receive one JobAdded event, got %v", received)
	}

	unsubscribe()
	b.Emit(JobCompleted, map[string]any{"jobId": "j1"})
	if len(received) != 1 {
		t.Fatalf("expected no further events after unsubscribe, got %v", received)
	}
	if len(sink.published) != 2 {
		t.Fatalf("expected the sink to still receive events after a local unsubscribe, got %v", sink.published)
	}
}

func TestEmitWithoutSinkStillReachesSubscribers(t *testing.T) {
	b := NewBroadcaster(nil, nil)
	var got Type
	b.Subscribe(func(e Envelope) { got = e.Type })
	b.Emit(WebhookReceived, nil)
	if got != WebhookReceived {
		t.Fatalf("expected local-only delivery to still work without a sink, got %v", got)
	}
}

func TestEmitReportsSinkPublishErrors(t *testing.T) {
	var gotErr error
	sink := &fakeSink{err: errors.New("publish failed")}
	b := NewBroadcaster(sink, func(err error) { gotErr = err })

	b.Emit(JobFailed, map[string]any{})
	if gotErr == nil {
		t.Fatal("expected the sink publish error to reach errOnce")
	}
}

func TestEmitReportsMarshalErrorsWithoutPanicking(t *testing.T) {
	var gotErr error
	b := NewBroadcaster(nil, func(err error) { gotErr = err })
	b.Emit(JobAdded, make(chan int)) // not JSON-marshalable
	if gotErr == nil {
		t.Fatal("expected a marshal error to reach errOnce")
	}
}
