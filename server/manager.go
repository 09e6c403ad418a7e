package server

import (
	"sync"

	"go.uber.org/zap"
)

// Manager owns the room registry: one room instance per slug, created on
// first use. It is constructed in main and passed where needed; there is no
// package-level singleton.
type Manager struct {
	cfg   Config
	log   *zap.SugaredLogger
	chats ChatLog

	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewManager(cfg Config, log *zap.SugaredLogger, chats ChatLog) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if chats == nil {
		chats = NopChatLog{}
	}
	return &Manager{
		cfg:   cfg,
		log:   log,
		chats: chats,
		rooms: make(map[string]*Room),
	}
}

// GetOrCreateRoom returns the room for a slug, starting it on first use. An
// empty slug falls back to the configured default room.
func (m *Manager) GetOrCreateRoom(slug string) *Room {
	if slug == "" {
		slug = m.cfg.DefaultRoom
	}
	if slug == "" {
		slug = "town"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[slug]
	if !ok {
		r = NewRoom(slug, m.cfg, m.log, m.chats, m.dropRoom)
		m.rooms[slug] = r
		r.Start()
	}
	return r
}

// Room returns an existing room without creating one.
func (m *Manager) Room(slug string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[slug]
	return r, ok
}

// Rooms returns a snapshot of the live rooms.
func (m *Manager) Rooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// dropRoom removes a self-disposed room from the registry.
func (m *Manager) dropRoom(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.rooms[r.Slug]; ok && current == r {
		delete(m.rooms, r.Slug)
	}
}

// Shutdown stops every room.
func (m *Manager) Shutdown() {
	for _, r := range m.Rooms() {
		r.Stop()
	}
}
