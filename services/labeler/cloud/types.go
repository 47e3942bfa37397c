// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cloud models managed cloud resources and performs
// optimistic-concurrency label mutations against their type-specific
// remote endpoints.
//
// The remote system is a collection of independently versioned
// per-resource REST endpoints with no cross-resource transaction
// support. Every resource carries an opaque version token that must be
// echoed on writes and is invalidated by every successful mutation, by
// this client or any other actor. That token is the only guard against
// concurrent interference.
package cloud

import "fmt"

// ResourceKind discriminates which type-specific endpoint and payload
// shape a resource uses.
type ResourceKind string

const (
	// KindInstance is a virtual machine instance (zonal).
	KindInstance ResourceKind = "instance"

	// KindDisk is a persistent disk (zonal).
	KindDisk ResourceKind = "disk"

	// KindImage is a machine image (global).
	KindImage ResourceKind = "image"

	// KindSnapshot is a disk snapshot (global).
	KindSnapshot ResourceKind = "snapshot"

	// KindDatabase is a managed database instance (regional).
	KindDatabase ResourceKind = "database"

	// KindService is a serverless service (regional).
	KindService ResourceKind = "service"

	// KindBucket is an object storage bucket (global namespace).
	KindBucket ResourceKind = "bucket"

	// KindCluster is a managed Kubernetes cluster (zonal or regional).
	KindCluster ResourceKind = "cluster"
)

// Kinds lists every supported resource kind.
func Kinds() []ResourceKind {
	return []ResourceKind{
		KindInstance, KindDisk, KindImage, KindSnapshot,
		KindDatabase, KindService, KindBucket, KindCluster,
	}
}

// Valid reports whether the kind has an endpoint mapping.
func (k ResourceKind) Valid() bool {
	_, ok := endpoints[k]
	return ok
}

// String returns the wire name of the kind.
func (k ResourceKind) String() string {
	return string(k)
}

// ManagedResource identifies a single cloud entity.
//
// Labels and VersionToken mutate only via a successful label-update
// call; reusing a stale token for a subsequent write always fails with
// a precondition error. The Mutator treats a ManagedResource as
// exclusively borrowed for the duration of one call.
type ManagedResource struct {
	// ID is the opaque stable identifier used by this system.
	ID string `json:"id"`

	// Name is the resource's name in the remote API's URL space.
	Name string `json:"name"`

	// Kind selects the endpoint and payload shape.
	Kind ResourceKind `json:"kind"`

	// Project is the owning cloud project.
	Project string `json:"project"`

	// Location is the zone or region; empty for global resources.
	Location string `json:"location"`

	// Labels is the current label set as last observed.
	Labels map[string]string `json:"labels"`

	// VersionToken is the opaque optimistic-concurrency fingerprint
	// supplied by the remote system.
	VersionToken string `json:"versionToken"`
}

// Validate checks the fields needed to address the resource remotely.
func (r *ManagedResource) Validate() error {
	if r == nil {
		return ErrNilResource
	}
	if r.ID == "" || r.Name == "" {
		return fmt.Errorf("%w: id and name required", ErrInvalidResource)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidResource, r.Kind)
	}
	if r.Project == "" && r.Kind != KindBucket {
		return fmt.Errorf("%w: project required for kind %q", ErrInvalidResource, r.Kind)
	}
	return nil
}

// LabelUpdateRequest is one full-replacement label write against one
// resource. DesiredLabels is the complete target set, not a diff.
type LabelUpdateRequest struct {
	Resource      *ManagedResource
	DesiredLabels map[string]string
}

// LabelState is the label-relevant slice of a resource's remote state:
// its current labels and the version token that must accompany the next
// write.
type LabelState struct {
	Labels       map[string]string
	VersionToken string
}

// CloneLabels returns a copy of a label map. A nil input yields an
// empty, non-nil map so callers can treat label sets uniformly.
func CloneLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// LabelsEqual reports whether two label sets contain the same pairs.
func LabelsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
