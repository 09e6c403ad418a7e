package server

import "time"

// Defaults applied when a client joins without presentation options.
const (
	DefaultDisplayName  = "Anonymous"
	DefaultAvatarSprite = "brendan"

	spawnX         = 400.0
	spawnY         = 300.0
	spawnDirection = "down"
	spawnAnimation = "idle-down"
)

// Player is the authoritative entry for one connected session. All fields are
// owned by the room loop; nothing outside the loop may read or write them.
type Player struct {
	SessionID    string
	UserID       string
	DisplayName  string
	AvatarSprite string

	X         float64
	Y         float64
	Direction string
	IsMoving  bool
	Animation string

	// CurrentRoom is the logical sub-area the client believes it is in. It is
	// a marker only and never changes which room instance owns the player.
	CurrentRoom string

	LastUpdate time.Time

	conn sender
}

// PlayerSnapshot is the serialized form of a player sent to clients.
type PlayerSnapshot struct {
	SessionID    string  `json:"sessionId"`
	UserID       string  `json:"userId,omitempty"`
	DisplayName  string  `json:"displayName"`
	AvatarSprite string  `json:"avatarSprite"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Direction    string  `json:"direction"`
	IsMoving     bool    `json:"isMoving"`
	Animation    string  `json:"animation"`
	CurrentRoom  string  `json:"currentRoom"`
}

func (p *Player) snapshot() PlayerSnapshot {
	return PlayerSnapshot{
		SessionID:    p.SessionID,
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		AvatarSprite: p.AvatarSprite,
		X:            p.X,
		Y:            p.Y,
		Direction:    p.Direction,
		IsMoving:     p.IsMoving,
		Animation:    p.Animation,
		CurrentRoom:  p.CurrentRoom,
	}
}

// RoomSnapshot is the full serialized room state, sent to a client once on
// join. Incremental state frames carry the changed players only.
type RoomSnapshot struct {
	RoomSlug   string           `json:"roomSlug"`
	RoomName   string           `json:"roomName"`
	MaxPlayers int              `json:"maxPlayers"`
	Players    []PlayerSnapshot `json:"players"`
}

// roomNames maps known room slugs to their display names. The directory comes
// from the surrounding town map; unknown slugs fall back to the slug itself.
var roomNames = map[string]string{
	"town":          "Town Square",
	"room-sage":     "Sage's Study",
	"room-scout":    "Scout's Lookout",
	"room-merchant": "Merchant's Stall",
	"room-oracle":   "Oracle's Chamber",
}

// RoomDisplayName resolves a slug to its human-readable name.
func RoomDisplayName(slug string) string {
	if name, ok := roomNames[slug]; ok {
		return name
	}
	return slug
}
