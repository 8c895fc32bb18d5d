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

package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clinicore/deviceintegration/internal/external"
)

// HTTPOCRClient calls the out-of-process OCR microservice over plain
// HTTP/JSON. Its request/response shape follows MinIO's
// WebhookTarget.send: build the body, POST with a context deadline,
// drain and check the status code.
type HTTPOCRClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOCRClient builds a client against baseURL with the given request
// timeout, mirroring WebhookTarget's httpClient construction.
func NewHTTPOCRClient(baseURL string, timeout time.Duration) *HTTPOCRClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPOCRClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Process posts a generic extraction request to the OCR service's default
// endpoint.
func (c *HTTPOCRClient) Process(ctx context.Context, req external.OCRRequest) (*external.OCRResponse, error) {
	return c.post(ctx, "/extract", req)
}

// ProcessDICOM posts a structured-metadata extraction request to the
// service's dicom-specific endpoint.
func (c *HTTPOCRClient) ProcessDICOM(ctx context.Context, filePath string) (*external.OCRResponse, error) {
	return c.post(ctx, "/dicom", external.OCRRequest{FilePath: filePath})
}

// Health checks the OCR service is reachable.
func (c *HTTPOCRClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ocr service health check failed with %v", resp.Status)
	}
	return nil
}

func (c *HTTPOCRClient) post(ctx context.Context, path string, payload external.OCRRequest) (*external.OCRResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("ocr service request failed with %v", resp.Status)
	}

	var out external.OCRResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
