package server

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteChatLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	log, err := OpenChatLog(path)
	if err != nil {
		t.Fatalf("OpenChatLog: %v", err)
	}
	defer log.Close()

	ctx := context.Background()
	records := []ChatRecord{
		{RoomSlug: "town", SessionID: "s1", DisplayName: "Ann", Message: "first", X: 1, Y: 2, CreatedAt: 1000},
		{RoomSlug: "town", SessionID: "s2", DisplayName: "Ben", Message: "second", X: 3, Y: 4, CreatedAt: 2000},
		{RoomSlug: "room-sage", SessionID: "s3", DisplayName: "Cay", Message: "elsewhere", CreatedAt: 3000},
	}
	for _, rec := range records {
		if err := log.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := log.Recent(ctx, "town", 50)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 town messages, got %d", len(got))
	}
	if got[0].Message != "first" || got[1].Message != "second" {
		t.Errorf("expected oldest-first order, got %q then %q", got[0].Message, got[1].Message)
	}
	if got[0].DisplayName != "Ann" || got[0].X != 1 || got[0].Y != 2 || got[0].CreatedAt != 1000 {
		t.Errorf("unexpected first record: %+v", got[0])
	}
}

func TestSQLiteChatLogRecentHonorsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	log, err := OpenChatLog(path)
	if err != nil {
		t.Fatalf("OpenChatLog: %v", err)
	}
	defer log.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec := ChatRecord{RoomSlug: "town", SessionID: "s", DisplayName: "N", Message: string(rune('a' + i)), CreatedAt: int64(i + 1)}
		if err := log.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := log.Recent(ctx, "town", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	// The limit keeps the newest, returned oldest-first.
	if got[0].Message != "d" || got[1].Message != "e" {
		t.Errorf("expected [d e], got [%s %s]", got[0].Message, got[1].Message)
	}
}

func TestOpenChatLogRejectsEmptyPath(t *testing.T) {
	if _, err := OpenChatLog("  "); err == nil {
		t.Fatalf("expected error for blank path")
	}
}
