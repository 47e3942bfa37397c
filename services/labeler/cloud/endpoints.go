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
	"encoding/json"
	"fmt"
	"net/http"
)

// endpointSpec describes how one resource kind talks to the remote API:
// the label-write endpoint, the read endpoint used for refresh-on-
// conflict, the payload shape, and where the version token travels.
//
// Endpoint selection is data, not branching logic. Adding a kind means
// adding a table entry; the Mutator and Coordinator never change.
type endpointSpec struct {
	// setMethod is the HTTP method of the label-write call.
	setMethod string

	// setPath builds the label-write path for a resource.
	setPath func(r *ManagedResource) string

	// getPath builds the read path used to refresh the version token.
	getPath func(r *ManagedResource) string

	// setBody builds the label-write payload. current is the label set
	// as last observed; desired is the full replacement set.
	setBody func(r *ManagedResource, desired map[string]string) any

	// tokenHeader, when non-empty, names the request header carrying the
	// version token instead of a payload field.
	tokenHeader string

	// parse extracts the post-write label state from a response body.
	parse func(data []byte) (*LabelState, error)
}

// Wire shapes. Compute-style kinds version labels with a fingerprint
// field; storage- and serverless-style kinds use an entity tag.

type fingerprintPayload struct {
	Labels           map[string]string `json:"labels"`
	LabelFingerprint string            `json:"labelFingerprint"`
}

type etagPayload struct {
	Labels map[string]string `json:"labels"`
	Etag   string            `json:"etag,omitempty"`
}

type databasePayload struct {
	Settings struct {
		UserLabels map[string]string `json:"userLabels"`
	} `json:"settings"`
	Etag string `json:"etag"`
}

type clusterPayload struct {
	ResourceLabels   map[string]string `json:"resourceLabels"`
	LabelFingerprint string            `json:"labelFingerprint"`
}

type bucketPayload struct {
	// Labels uses pointer values so removed keys marshal as explicit
	// JSON nulls; the bucket endpoint deletes a label only when its key
	// is present with a null value.
	Labels map[string]*string `json:"labels"`
}

func parseFingerprint(data []byte) (*LabelState, error) {
	var body fingerprintPayload
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decoding label response: %w", err)
	}
	return &LabelState{Labels: CloneLabels(body.Labels), VersionToken: body.LabelFingerprint}, nil
}

func parseEtag(data []byte) (*LabelState, error) {
	var body etagPayload
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decoding label response: %w", err)
	}
	return &LabelState{Labels: CloneLabels(body.Labels), VersionToken: body.Etag}, nil
}

func parseDatabase(data []byte) (*LabelState, error) {
	var body databasePayload
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decoding label response: %w", err)
	}
	return &LabelState{Labels: CloneLabels(body.Settings.UserLabels), VersionToken: body.Etag}, nil
}

func parseCluster(data []byte) (*LabelState, error) {
	var body clusterPayload
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decoding label response: %w", err)
	}
	return &LabelState{Labels: CloneLabels(body.ResourceLabels), VersionToken: body.LabelFingerprint}, nil
}

func fingerprintBody(r *ManagedResource, desired map[string]string) any {
	return fingerprintPayload{Labels: desired, LabelFingerprint: r.VersionToken}
}

// bucketBody emits the full desired set plus explicit nulls for every
// key present on the resource but absent from desired. The bucket
// endpoint treats a plain label map as a merge, so omitting a key would
// silently keep it.
func bucketBody(r *ManagedResource, desired map[string]string) any {
	labels := make(map[string]*string, len(desired)+len(r.Labels))
	for k := range r.Labels {
		labels[k] = nil
	}
	for k, v := range desired {
		v := v
		labels[k] = &v
	}
	return bucketPayload{Labels: labels}
}

func computeKind(collection string, zonal bool) endpointSpec {
	scope := func(r *ManagedResource) string {
		if zonal {
			return fmt.Sprintf("zones/%s", r.Location)
		}
		return "global"
	}
	return endpointSpec{
		setMethod: http.MethodPost,
		setPath: func(r *ManagedResource) string {
			return fmt.Sprintf("/compute/v1/projects/%s/%s/%s/%s/setLabels", r.Project, scope(r), collection, r.Name)
		},
		getPath: func(r *ManagedResource) string {
			return fmt.Sprintf("/compute/v1/projects/%s/%s/%s/%s", r.Project, scope(r), collection, r.Name)
		},
		setBody: fingerprintBody,
		parse:   parseFingerprint,
	}
}

// endpoints maps each resource kind to its fixed endpoint shape.
var endpoints = map[ResourceKind]endpointSpec{
	KindInstance: computeKind("instances", true),
	KindDisk:     computeKind("disks", true),
	KindImage:    computeKind("images", false),
	KindSnapshot: computeKind("snapshots", false),

	KindDatabase: {
		setMethod: http.MethodPatch,
		setPath: func(r *ManagedResource) string {
			return fmt.Sprintf("/sql/v1beta4/projects/%s/instances/%s", r.Project, r.Name)
		},
		getPath: func(r *ManagedResource) string {
			return fmt.Sprintf("/sql/v1beta4/projects/%s/instances/%s", r.Project, r.Name)
		},
		setBody: func(r *ManagedResource, desired map[string]string) any {
			var body databasePayload
			body.Settings.UserLabels = desired
			body.Etag = r.VersionToken
			return body
		},
		parse: parseDatabase,
	},

	KindService: {
		setMethod: http.MethodPatch,
		setPath: func(r *ManagedResource) string {
			return fmt.Sprintf("/run/v2/projects/%s/locations/%s/services/%s?updateMask=labels", r.Project, r.Location, r.Name)
		},
		getPath: func(r *ManagedResource) string {
			return fmt.Sprintf("/run/v2/projects/%s/locations/%s/services/%s", r.Project, r.Location, r.Name)
		},
		setBody: func(r *ManagedResource, desired map[string]string) any {
			return etagPayload{Labels: desired, Etag: r.VersionToken}
		},
		parse: parseEtag,
	},

	KindBucket: {
		setMethod: http.MethodPatch,
		setPath: func(r *ManagedResource) string {
			return fmt.Sprintf("/storage/v1/b/%s", r.Name)
		},
		getPath: func(r *ManagedResource) string {
			return fmt.Sprintf("/storage/v1/b/%s", r.Name)
		},
		setBody:     bucketBody,
		tokenHeader: "If-Match",
		parse:       parseEtag,
	},

	KindCluster: {
		setMethod: http.MethodPost,
		setPath: func(r *ManagedResource) string {
			return fmt.Sprintf("/container/v1/projects/%s/locations/%s/clusters/%s:setResourceLabels", r.Project, r.Location, r.Name)
		},
		getPath: func(r *ManagedResource) string {
			return fmt.Sprintf("/container/v1/projects/%s/locations/%s/clusters/%s", r.Project, r.Location, r.Name)
		},
		setBody: func(r *ManagedResource, desired map[string]string) any {
			return clusterPayload{ResourceLabels: desired, LabelFingerprint: r.VersionToken}
		},
		parse: parseCluster,
	},
}
