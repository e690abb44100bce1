package dal

import (
	"context"
	"sort"
	"sync"

	"github.com/Billy-Davies-2/gamefilter/internal/models"
)

// MemoryDAL implements Store using in-memory storage
type MemoryDAL struct {
	mu     sync.RWMutex
	drafts map[string]DraftRecord
	rooms  map[string]RoomRecord
}

// NewMemoryDAL creates a new in-memory data access layer
func NewMemoryDAL() *MemoryDAL {
	return &MemoryDAL{
		drafts: make(map[string]DraftRecord),
		rooms:  make(map[string]RoomRecord),
	}
}

func (m *MemoryDAL) GetDraft(_ context.Context, id string) (DraftRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.drafts[id]
	if !ok {
		return DraftRecord{}, ErrNotFound
	}
	// Copy so callers never share slices with the stored record
	return DraftRecord{Session: rec.Session.Clone(), Version: rec.Version}, nil
}

func (m *MemoryDAL) CreateDraft(_ context.Context, s models.DraftSession) (DraftRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.drafts[s.ID]; ok {
		return DraftRecord{}, ErrExists
	}
	rec := DraftRecord{Session: s.Clone(), Version: 1}
	m.drafts[s.ID] = rec
	return DraftRecord{Session: s.Clone(), Version: 1}, nil
}

func (m *MemoryDAL) SwapDraft(_ context.Context, id string, expected int64, next models.DraftSession) (DraftRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.drafts[id]
	if !ok {
		return DraftRecord{}, ErrNotFound
	}
	if cur.Version != expected {
		return DraftRecord{}, ErrConflict
	}
	rec := DraftRecord{Session: next.Clone(), Version: expected + 1}
	m.drafts[id] = rec
	return DraftRecord{Session: next.Clone(), Version: rec.Version}, nil
}

func (m *MemoryDAL) ListActiveDrafts(_ context.Context) ([]DraftRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []DraftRecord{}
	for _, rec := range m.drafts {
		if rec.Session.Saved.Status() == models.StatusInProgress {
			out = append(out, DraftRecord{Session: rec.Session.Clone(), Version: rec.Version})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session.ID < out[j].Session.ID })
	return out, nil
}

func (m *MemoryDAL) GetRoom(_ context.Context, code string) (RoomRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.rooms[code]
	if !ok {
		return RoomRecord{}, ErrNotFound
	}
	return RoomRecord{Room: rec.Room.Clone(), Version: rec.Version}, nil
}

func (m *MemoryDAL) CreateRoom(_ context.Context, r models.RoomSession) (RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[r.Code]; ok {
		return RoomRecord{}, ErrExists
	}
	m.rooms[r.Code] = RoomRecord{Room: r.Clone(), Version: 1}
	return RoomRecord{Room: r.Clone(), Version: 1}, nil
}

func (m *MemoryDAL) SwapRoom(_ context.Context, code string, expected int64, next models.RoomSession) (RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.rooms[code]
	if !ok {
		return RoomRecord{}, ErrNotFound
	}
	if cur.Version != expected {
		return RoomRecord{}, ErrConflict
	}
	m.rooms[code] = RoomRecord{Room: next.Clone(), Version: expected + 1}
	return RoomRecord{Room: next.Clone(), Version: expected + 1}, nil
}

func (m *MemoryDAL) Ping(context.Context) error { return nil }

func (m *MemoryDAL) Close() error { return nil }
