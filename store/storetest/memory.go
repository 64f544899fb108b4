// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sync"

	"zm-image/store"
)

type Memory struct {
	mu      sync.Mutex
	events  map[uint64]*store.Event
	frames  map[uint64]*store.Frame
	storage map[uint64]*store.StorageArea
}

func NewMemory() *Memory {
	return &Memory{
		events:  make(map[uint64]*store.Event),
		frames:  make(map[uint64]*store.Frame),
		storage: make(map[uint64]*store.StorageArea),
	}
}

func (m *Memory) AddEvent(e store.Event) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = &e
	return m
}

func (m *Memory) AddFrame(f store.Frame) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[f.ID] = &f
	return m
}

func (m *Memory) AddStorageArea(s store.StorageArea) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storage[s.ID] = &s
	return m
}

func (m *Memory) Event(_ context.Context, id uint64) (*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, fmt.Errorf("event %d: %w", id, store.ErrNotFound)
}

func (m *Memory) Frame(_ context.Context, id uint64) (*store.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.frames[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, fmt.Errorf("frame %d: %w", id, store.ErrNotFound)
}

func (m *Memory) EventFrame(_ context.Context, eventID, frameID uint64) (*store.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.frames {
		if f.EventID == eventID && f.FrameID == frameID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("frame %d of event %d: %w", frameID, eventID, store.ErrNotFound)
}

func (m *Memory) StorageArea(_ context.Context, id uint64) (*store.StorageArea, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.storage[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, fmt.Errorf("storage area %d: %w", id, store.ErrNotFound)
}
