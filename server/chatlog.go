package server

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ChatRecord is one relayed chat message as kept in history.
type ChatRecord struct {
	ID          int64   `json:"id"`
	RoomSlug    string  `json:"roomSlug"`
	SessionID   string  `json:"sessionId"`
	DisplayName string  `json:"displayName"`
	Message     string  `json:"message"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	CreatedAt   int64   `json:"createdAt"`
}

// ChatLog stores relayed chat messages. Appends happen off the room loop and
// are best effort; history never influences room state.
type ChatLog interface {
	Append(ctx context.Context, rec ChatRecord) error
	Recent(ctx context.Context, roomSlug string, limit int) ([]ChatRecord, error)
	Close() error
}

// NopChatLog discards everything; used when no history path is configured.
type NopChatLog struct{}

func (NopChatLog) Append(context.Context, ChatRecord) error { return nil }
func (NopChatLog) Recent(context.Context, string, int) ([]ChatRecord, error) {
	return nil, nil
}
func (NopChatLog) Close() error { return nil }

const chatSchema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room_slug TEXT NOT NULL,
	session_id TEXT NOT NULL,
	display_name TEXT NOT NULL,
	content TEXT NOT NULL,
	x REAL NOT NULL,
	y REAL NOT NULL,
	created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages (room_slug, id);
`

// SQLiteChatLog persists chat history to a local sqlite file.
type SQLiteChatLog struct {
	db *sql.DB
}

// OpenChatLog opens (and if needed creates) the chat history database.
func OpenChatLog(path string) (*SQLiteChatLog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("chat log path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(chatSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteChatLog{db: db}, nil
}

func (l *SQLiteChatLog) Append(ctx context.Context, rec ChatRecord) error {
	createdAt := rec.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO chat_messages (room_slug, session_id, display_name, content, x, y, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RoomSlug, rec.SessionID, rec.DisplayName, rec.Message, rec.X, rec.Y, createdAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// Recent returns the last limit messages for a room, oldest first.
func (l *SQLiteChatLog) Recent(ctx context.Context, roomSlug string, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, room_slug, session_id, display_name, content, x, y, created_at_ms
		 FROM (
			SELECT * FROM chat_messages WHERE room_slug = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		roomSlug, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var records []ChatRecord
	for rows.Next() {
		var rec ChatRecord
		if err := rows.Scan(&rec.ID, &rec.RoomSlug, &rec.SessionID, &rec.DisplayName,
			&rec.Message, &rec.X, &rec.Y, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return records, nil
}

func (l *SQLiteChatLog) Close() error {
	return l.db.Close()
}
