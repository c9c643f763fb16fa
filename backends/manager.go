// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"slices"

	"github.com/pkg/errors"
)

// Manager is the collection of backends available to a compilation.
type Manager struct {
	control  ControlBackend
	backends []Backend
	byID     map[string]Backend
}

// NewManager creates a Manager with the control backend and the compute backends, in that order.
//
// It returns an error if IDs are not unique, or if a compute backend claims to be the control one.
func NewManager(control ControlBackend, compute ...Backend) (*Manager, error) {
	if control == nil {
		return nil, errors.New("backends.NewManager() requires a control backend")
	}
	if !control.IsControl() {
		return nil, errors.Errorf("backend %q given as control backend, but IsControl() is false", control.ID())
	}
	m := &Manager{control: control, byID: make(map[string]Backend, len(compute)+1)}
	for _, b := range append([]Backend{control}, compute...) {
		if b == nil {
			return nil, errors.New("backends.NewManager() given a nil backend")
		}
		if b != Backend(control) && b.IsControl() {
			return nil, errors.Errorf("only one control backend allowed, %q and %q given", control.ID(), b.ID())
		}
		if _, found := m.byID[b.ID()]; found {
			return nil, errors.Errorf("backend ID %q registered twice", b.ID())
		}
		m.byID[b.ID()] = b
		m.backends = append(m.backends, b)
	}
	return m, nil
}

// Get returns the backend with the given ID, or nil.
func (m *Manager) Get(id string) Backend {
	return m.byID[id]
}

// Has returns whether there is a backend with the given ID.
func (m *Manager) Has(id string) bool {
	_, found := m.byID[id]
	return found
}

// All returns the backends, the control one first and then in registration order.
func (m *Manager) All() []Backend {
	return slices.Clone(m.backends)
}

// Control returns the control backend.
func (m *Manager) Control() ControlBackend {
	return m.control
}

// IDs of the backends, in the same order as All.
func (m *Manager) IDs() []string {
	ids := make([]string, len(m.backends))
	for ii, b := range m.backends {
		ids[ii] = b.ID()
	}
	return ids
}
