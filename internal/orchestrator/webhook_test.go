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

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clinicore/deviceintegration/internal/config"
	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/queue"
	"github.com/clinicore/deviceintegration/internal/webhooksig"
	"github.com/minio/mux"
)

func webhookTestServer(devices *fakeDeviceStore, q *queue.Queue, logs *fakeLogStore) *mux.Router {
	bus := events.NewBroadcaster(nil, nil)
	o := New(Deps{Devices: devices, Logs: logs, SMB: &fakeSMB{}, Queue: q, Bus: bus}, config.DefaultOrchestratorConfig())
	router := mux.NewRouter()
	o.RegisterRoutes(router)
	return router
}

func signedRequest(t *testing.T, deviceID string, body []byte, secret string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/devices/webhook/"+deviceID, bytes.NewReader(body))
	req.Header.Set("X-Device-Signature", webhooksig.Sign(body, secret))
	return req
}

func TestWebhookHandlerReturns404ForUnknownDevice(t *testing.T) {
	router := webhookTestServer(newFakeDeviceStore(), queue.New(nil, config.DefaultQueueConfig(), events.NewBroadcaster(nil, nil)), &fakeLogStore{})

	body := []byte(`{"eventType":"file_created"}`)
	req := signedRequest(t, "missing", body, "whatever")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWebhookHandlerRejectsBadSignature(t *testing.T) {
	device := &model.Device{DeviceID: "dev-1", WebhookSecret: "right-secret"}
	logs := &fakeLogStore{}
	router := webhookTestServer(newFakeDeviceStore(device), queue.New(nil, config.DefaultQueueConfig(), events.NewBroadcaster(nil, nil)), logs)

	body := []byte(`{"eventType":"file_created"}`)
	req := signedRequest(t, "dev-1", body, "wrong-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(logs.entries) != 1 || logs.entries[0].ErrorDetails == nil || logs.entries[0].ErrorDetails.Code != "INVALID_SIGNATURE" {
		t.Fatalf("expected an INVALID_SIGNATURE log entry, got %+v", logs.entries)
	}
}

func TestWebhookHandlerDispatchesFileCreatedAndBroadcasts(t *testing.T) {
	device := &model.Device{DeviceID: "dev-1", WebhookSecret: "s3cr3t"}
	devices := newFakeDeviceStore(device)
	q := queue.New(nil, config.DefaultQueueConfig(), events.NewBroadcaster(nil, nil))

	var enqueuedPriority int
	q.RegisterHandler(model.JobFileProcess, func(ctx context.Context, job model.Job) (map[string]any, error) {
		enqueuedPriority = job.Priority
		return nil, nil
	})
	logs := &fakeLogStore{}
	router := webhookTestServer(devices, q, logs)

	body := []byte(`{"eventType":"file_created","filePath":"/exports/a.dcm"}`)
	req := signedRequest(t, "dev-1", body, "s3cr3t")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["processed"] != true || resp["eventType"] != "file_created" {
		t.Fatalf("unexpected response body: %+v", resp)
	}
	if enqueuedPriority != model.PriorityWebhook {
		t.Fatalf("expected webhook priority %d, got %d", model.PriorityWebhook, enqueuedPriority)
	}

	updated, _ := devices.Get(context.Background(), "dev-1")
	if updated.Integration.WebhookCount != 1 || updated.Integration.LastSyncStatus != "success" {
		t.Fatalf("expected integration bookkeeping update, got %+v", updated.Integration)
	}
}

func TestWebhookHandlerIgnoresUnknownEventType(t *testing.T) {
	device := &model.Device{DeviceID: "dev-1", WebhookSecret: "s3cr3t"}
	q := queue.New(nil, config.DefaultQueueConfig(), events.NewBroadcaster(nil, nil))
	router := webhookTestServer(newFakeDeviceStore(device), q, &fakeLogStore{})

	body := []byte(`{"eventType":"something_unknown"}`)
	req := signedRequest(t, "dev-1", body, "s3cr3t")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even for an ignored event type, got %d", rec.Code)
	}
}
