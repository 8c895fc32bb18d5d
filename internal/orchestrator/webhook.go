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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/minio/mux"
	"go.uber.org/zap"

	"github.com/clinicore/deviceintegration/internal/events"
	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/webhooksig"
	"github.com/clinicore/deviceintegration/internal/xlog"
)

// webhookEvent is the minimal shape the ingress handler needs out of an
// inbound device webhook body; device-specific extra fields pass through
// untouched into the audit payload.
type webhookEvent struct {
	EventType string `json:"eventType"`
}

// RegisterRoutes wires the orchestrator's HTTP surface (webhook intake,
// inbound routes relevant to this package) onto router, in MinIO's
// Methods().Path().HandlerFunc() style.
func (o *Orchestrator) RegisterRoutes(router *mux.Router) {
	router.Methods(http.MethodPost).Path("/devices/webhook/{deviceId}").HandlerFunc(o.WebhookHandler)
	router.Methods(http.MethodPost).Path("/devices/{id}/sync-folder").HandlerFunc(o.SyncFolderHandler)
}

// WebhookHandler implements the six-step webhook ingress
// algorithm: device lookup, signature verification, a PROCESSING audit
// log entry, event-type dispatch onto the job queue, device integration
// bookkeeping, and a webhook_received broadcast.
func (o *Orchestrator) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := mux.Vars(r)["deviceId"]

	device, err := o.deps.Devices.Get(ctx, deviceID)
	if err != nil || device == nil {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	sig := r.Header.Get("X-Device-Signature")
	verified := webhooksig.Verify(body, sig, device.WebhookSecret)

	headers := map[string]string{}
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	var payload map[string]any
	_ = json.Unmarshal(body, &payload)

	if !verified {
		o.createLog(ctx, *device, "", model.LogFailed, headers, payload, sig, verified, r, &model.ErrorDetail{
			Code:     "INVALID_SIGNATURE",
			Message:  "webhook signature verification failed",
			Severity: model.SeverityCritical,
		})
		o.recordWebhookOutcome(ctx, *device, false)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	_ = json.Unmarshal(body, &event)

	logID, _ := o.createLog(ctx, *device, event.EventType, model.LogProcessing, headers, payload, sig, verified, r, nil)

	dispatched := o.dispatchWebhookEvent(ctx, device.DeviceID, event.EventType, payload)
	if !dispatched && event.EventType != "" {
		xlog.Device(device.DeviceID).Info("ignoring unknown webhook event type", zap.String("eventType", event.EventType))
	}

	if logID != "" {
		o.completeLog(ctx, logID, model.LogSuccess, nil)
	}
	o.recordWebhookOutcome(ctx, *device, true)

	o.deps.Bus.Emit(events.WebhookReceived, map[string]any{
		"deviceId":  device.DeviceID,
		"eventType": event.EventType,
	})

	writeJSON(w, http.StatusOK, map[string]any{"processed": true, "eventType": event.EventType})
}

// dispatchWebhookEvent enqueues the job matching eventType, per the
// webhook dispatch table. Returns false for an unrecognized type so the
// caller can log-and-ignore it without failing the request.
func (o *Orchestrator) dispatchWebhookEvent(ctx context.Context, deviceID, eventType string, payload map[string]any) bool {
	data := map[string]any{"deviceId": deviceID, "payload": payload}

	switch eventType {
	case "file_created", "file_modified":
		if _, err := o.deps.Queue.AddJob(ctx, model.JobFileProcess, data, model.AddJobOptions{Priority: model.PriorityWebhook}); err != nil {
			xlog.Device(deviceID).Warn("failed to enqueue webhook file_process", zap.Error(err))
		}
		return true
	case "exam_complete":
		if _, err := o.deps.Queue.AddJob(ctx, model.JobBatchImport, data, model.AddJobOptions{Priority: model.PriorityWebhook}); err != nil {
			xlog.Device(deviceID).Warn("failed to enqueue webhook batch_import", zap.Error(err))
		}
		return true
	case "folder_created":
		if _, err := o.deps.Queue.AddJob(ctx, model.JobPatientMatch, data, model.AddJobOptions{Priority: model.PriorityWatcher}); err != nil {
			xlog.Device(deviceID).Warn("failed to enqueue webhook patient_match", zap.Error(err))
		}
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// SyncFolderHandler triggers one on-demand sync for a device, the
// `POST /devices/{id}/sync-folder` endpoint.
func (o *Orchestrator) SyncFolderHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := mux.Vars(r)["id"]

	device, err := o.deps.Devices.Get(ctx, deviceID)
	if err != nil || device == nil {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}

	outcome, err := o.SyncDevice(ctx, *device, model.InitiatedByManual)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if outcome.Skipped {
		writeJSON(w, http.StatusOK, map[string]any{"skipped": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filesFound":  outcome.Result.FilesFound,
		"dirsFound":   outcome.Result.DirsFound,
		"enqueuedJob": outcome.Result.EnqueuedJob,
	})
}

func (o *Orchestrator) createLog(ctx context.Context, device model.Device, eventType string, status model.LogStatus, headers map[string]string, payload map[string]any, sig string, verified bool, r *http.Request, errDetail *model.ErrorDetail) (string, error) {
	entry := &model.IntegrationLogEntry{
		Device:            device.DeviceID,
		DeviceType:        device.Type,
		EventType:         eventType,
		Status:            status,
		IntegrationMethod: "webhook",
		InitiatedBy:       model.InitiatedByDevice,
		StartedAt:         time.Now().UTC(),
		Source:            model.Source{IPAddress: r.RemoteAddr, UserAgent: r.UserAgent()},
		Webhook: &model.WebhookAudit{
			Signature:         sig,
			SignatureVerified: verified,
			Headers:           headers,
			Payload:           payload,
		},
		ErrorDetails: errDetail,
	}
	if status != model.LogProcessing {
		entry.CompletedAt = time.Now().UTC()
	}
	id, err := o.deps.Logs.Create(ctx, entry)
	if err != nil {
		xlog.Device(device.DeviceID).Warn("failed to create integration log entry", zap.Error(err))
	}
	return id, err
}

func (o *Orchestrator) completeLog(ctx context.Context, id string, status model.LogStatus, errDetail *model.ErrorDetail) {
	if err := o.deps.Logs.Complete(ctx, id, status, nil, nil, errDetail); err != nil {
		xlog.L().Warn("failed to complete integration log entry", zap.String("logId", id), zap.Error(err))
	}
}

func (o *Orchestrator) recordWebhookOutcome(ctx context.Context, device model.Device, success bool) {
	integration := device.Integration
	now := time.Now().UTC()
	integration.LastWebhook = now
	integration.WebhookCount++
	if success {
		integration.ConsecutiveErrors = 0
		integration.LastSyncStatus = "success"
	} else {
		integration.ConsecutiveErrors++
		integration.LastSyncStatus = "failed"
	}
	if err := o.deps.Devices.UpdateIntegration(ctx, device.DeviceID, integration); err != nil {
		xlog.Device(device.DeviceID).Warn("failed to update integration after webhook", zap.Error(err))
	}
}
