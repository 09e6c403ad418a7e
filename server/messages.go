package server

import "encoding/json"

// Client and server exchange JSON text frames shaped as {"type": ..., "payload": ...}.

type clientFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type serverFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound message types.
const (
	msgMove       = "move"
	msgHeartbeat  = "heartbeat"
	msgChangeRoom = "changeRoom"
	msgChat       = "chat"
)

type movePayload struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction string  `json:"direction"`
	IsMoving  bool    `json:"isMoving"`
	Animation string  `json:"animation"`
}

type changeRoomPayload struct {
	RoomSlug string `json:"roomSlug"`
}

type chatPayload struct {
	Message string `json:"message"`
}

// Outbound message types.
const (
	msgWelcome      = "welcome"
	msgPlayerJoined = "playerJoined"
	msgPlayerLeft   = "playerLeft"
	msgChatEvent    = "chat"
	msgState        = "state"
	msgError        = "error"
)

// welcomePayload is the first frame a client receives: its assigned session id
// plus a full snapshot of the room it joined.
type welcomePayload struct {
	SessionID string       `json:"sessionId"`
	Room      RoomSnapshot `json:"room"`
}

type playerJoinedPayload struct {
	SessionID    string `json:"sessionId"`
	DisplayName  string `json:"displayName"`
	AvatarSprite string `json:"avatarSprite"`
}

type playerLeftPayload struct {
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
}

type chatEventPayload struct {
	SessionID   string  `json:"sessionId"`
	DisplayName string  `json:"displayName"`
	Message     string  `json:"message"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Timestamp   int64   `json:"timestamp"`
}

// statePayload is the incremental replication frame: the players whose fields
// changed since the last flush.
type statePayload struct {
	RoomSlug string           `json:"roomSlug"`
	Players  []PlayerSnapshot `json:"players"`
}

type errorPayload struct {
	Reason string `json:"reason"`
}

func encodeFrame(typ string, payload any) []byte {
	b, err := json.Marshal(serverFrame{Type: typ, Payload: payload})
	if err != nil {
		// Payloads are plain structs of scalars; marshal cannot fail for them.
		return nil
	}
	return b
}
