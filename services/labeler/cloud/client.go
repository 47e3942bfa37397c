// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"google.golang.org/api/googleapi"
)

// API is the remote resource surface the mutator depends on: one write
// endpoint and one read endpoint per resource kind.
type API interface {
	// SetLabels performs the type-specific label-replacement write,
	// echoing r.VersionToken, and returns the post-write label state.
	SetLabels(ctx context.Context, r *ManagedResource, desired map[string]string) (*LabelState, error)

	// GetResource reads the resource's current label state. Used to
	// refresh the version token after a conflict; a fresh read, not a
	// retry of the write.
	GetResource(ctx context.Context, r *ManagedResource) (*LabelState, error)
}

// RESTClient implements API against the remote system's REST surface.
//
// Authentication is the injected *http.Client's concern; production
// wiring builds it from service-account credentials, tests pass a plain
// client pointed at an httptest server.
type RESTClient struct {
	baseURL string
	hc      *http.Client
	logger  *slog.Logger
}

// NewRESTClient creates a RESTClient.
//
// # Inputs
//
//   - baseURL: Scheme+host of the remote API, no trailing slash.
//   - hc: HTTP client to use; nil falls back to http.DefaultClient.
//   - logger: Structured logger; nil falls back to slog.Default.
func NewRESTClient(baseURL string, hc *http.Client, logger *slog.Logger) *RESTClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RESTClient{
		baseURL: baseURL,
		hc:      hc,
		logger:  logger.With("component", "cloud.RESTClient"),
	}
}

// SetLabels implements API.
func (c *RESTClient) SetLabels(ctx context.Context, r *ManagedResource, desired map[string]string) (*LabelState, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	spec := endpoints[r.Kind]

	payload, err := json.Marshal(spec.setBody(r, desired))
	if err != nil {
		return nil, fmt.Errorf("encoding label payload for %s: %w", r.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, spec.setMethod, c.baseURL+spec.setPath(r), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building label request for %s: %w", r.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if spec.tokenHeader != "" {
		req.Header.Set(spec.tokenHeader, r.VersionToken)
	}

	data, err := c.roundTrip(req, r)
	if err != nil {
		return nil, err
	}
	return spec.parse(data)
}

// GetResource implements API.
func (c *RESTClient) GetResource(ctx context.Context, r *ManagedResource) (*LabelState, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	spec := endpoints[r.Kind]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+spec.getPath(r), nil)
	if err != nil {
		return nil, fmt.Errorf("building read request for %s: %w", r.ID, err)
	}

	data, err := c.roundTrip(req, r)
	if err != nil {
		return nil, err
	}
	return spec.parse(data)
}

// roundTrip executes one request and maps non-2xx responses onto the
// error taxonomy. Network-level failures pass through untouched so the
// retry transport can classify them.
func (c *RESTClient) roundTrip(req *http.Request, r *ManagedResource) ([]byte, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		status := resp.StatusCode
		message := ""
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			status = gerr.Code
			message = gerr.Message
		}
		c.logger.Debug("remote call failed",
			"resource_id", r.ID,
			"kind", r.Kind.String(),
			"status", status,
		)
		return nil, classifyStatus(r.ID, r.VersionToken, status, message)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response for %s: %w", r.ID, err)
	}
	return data, nil
}
