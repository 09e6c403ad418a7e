package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// HandleAdminConfig reads or hot-updates a room's tunables.
// GET  /admin/config?room=town           returns the current values
// POST /admin/config?room=town           updates fields from a JSON payload
func (m *Manager) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	room := m.GetOrCreateRoom(r.URL.Query().Get("room"))

	type cfg struct {
		StaleAfterMs *int64 `json:"staleAfterMs,omitempty"`
		MaxPlayers   *int   `json:"maxPlayers,omitempty"`
	}

	switch r.Method {
	case http.MethodGet:
		staleMs := room.StaleAfter().Milliseconds()
		maxPlayers := room.MaxPlayers()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cfg{StaleAfterMs: &staleMs, MaxPlayers: &maxPlayers})
	case http.MethodPost:
		var body cfg
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.StaleAfterMs != nil {
			room.SetStaleAfter(time.Duration(*body.StaleAfterMs) * time.Millisecond)
		}
		if body.MaxPlayers != nil {
			room.SetMaxPlayers(*body.MaxPlayers)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		m.log.Infof("config updated: room=%s stale=%s maxPlayers=%d",
			room.Slug, room.StaleAfter(), room.MaxPlayers())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics reports counters for one room, or for all rooms when no slug
// is given.
// GET /metrics?room=town
func (m *Manager) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("room")
	w.Header().Set("Content-Type", "application/json")

	if slug != "" {
		room, ok := m.Room(slug)
		if !ok {
			http.Error(w, "unknown room", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"room":    room.Slug,
			"players": room.PlayerCount(),
			"metrics": room.Metrics().Snapshot(),
		})
		return
	}

	rooms := make([]map[string]any, 0)
	for _, room := range m.Rooms() {
		rooms = append(rooms, map[string]any{
			"room":    room.Slug,
			"players": room.PlayerCount(),
			"metrics": room.Metrics().Snapshot(),
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"rooms": rooms})
}

// HandleHistory serves recent chat messages for a room.
// GET /history?room=town&limit=50
func (m *Manager) HandleHistory(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("room")
	if slug == "" {
		slug = m.cfg.DefaultRoom
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := m.chats.Recent(r.Context(), slug, limit)
	if err != nil {
		m.log.Warnf("chat history query failed: %v", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []ChatRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"room": slug, "messages": records})
}
