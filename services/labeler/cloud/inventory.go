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
	"os"
	"sync"
)

// Inventory is the boundary with the excluded discovery subsystem: a
// read view over known resources. Real discovery populates it
// elsewhere; this package only consumes it.
type Inventory interface {
	// Get returns the resource with the given id, or ErrResourceNotFound.
	Get(id string) (*ManagedResource, error)

	// List returns all known resources.
	List() []*ManagedResource
}

// MemoryInventory is an in-memory Inventory, seeded from configuration
// or a discovery export.
//
// # Thread Safety
//
// Safe for concurrent use. Get returns the live resource pointer on
// purpose: the mutator updates Labels and VersionToken in place and the
// inventory is the single shared view of remote state.
type MemoryInventory struct {
	mu        sync.RWMutex
	resources map[string]*ManagedResource
}

// NewMemoryInventory creates an inventory over the given resources.
// Resources with duplicate ids keep the last occurrence.
func NewMemoryInventory(resources []*ManagedResource) *MemoryInventory {
	m := &MemoryInventory{resources: make(map[string]*ManagedResource, len(resources))}
	for _, r := range resources {
		m.resources[r.ID] = r
	}
	return m
}

// Get implements Inventory.
func (m *MemoryInventory) Get(id string) (*ManagedResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return nil, ErrResourceNotFound
	}
	return r, nil
}

// List implements Inventory.
func (m *MemoryInventory) List() []*ManagedResource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ManagedResource, 0, len(m.resources))
	for _, r := range m.resources {
		out = append(out, r)
	}
	return out
}

// Put adds or replaces a resource. Used by discovery imports.
func (m *MemoryInventory) Put(r *ManagedResource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[r.ID] = r
}

// LoadInventory reads a discovery export: a JSON array of
// ManagedResource. Every entry must validate; a bad entry fails the
// whole load rather than silently shrinking the inventory.
func LoadInventory(path string) (*MemoryInventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory %s: %w", path, err)
	}
	var resources []*ManagedResource
	if err := json.Unmarshal(data, &resources); err != nil {
		return nil, fmt.Errorf("parsing inventory %s: %w", path, err)
	}
	for _, r := range resources {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("inventory %s: %w", path, err)
		}
	}
	return NewMemoryInventory(resources), nil
}
