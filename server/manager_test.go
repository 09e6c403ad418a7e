package server

import (
	"testing"
	"time"
)

func TestManagerCreatesOneRoomPerSlug(t *testing.T) {
	m := NewManager(testConfig(), nil, nil)
	defer m.Shutdown()

	town := m.GetOrCreateRoom("town")
	again := m.GetOrCreateRoom("town")
	sage := m.GetOrCreateRoom("room-sage")

	if town != again {
		t.Errorf("same slug must return the same room instance")
	}
	if town == sage {
		t.Errorf("different slugs must get different room instances")
	}
	if sage.Name != "Sage's Study" {
		t.Errorf("room name = %q, want Sage's Study", sage.Name)
	}
	if got := len(m.Rooms()); got != 2 {
		t.Errorf("expected 2 live rooms, got %d", got)
	}
}

func TestManagerEmptySlugUsesDefaultRoom(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultRoom = "town"
	m := NewManager(cfg, nil, nil)
	defer m.Shutdown()

	r := m.GetOrCreateRoom("")
	if r.Slug != "town" {
		t.Errorf("empty slug resolved to %q, want town", r.Slug)
	}
	if r != m.GetOrCreateRoom("town") {
		t.Errorf("empty slug and explicit default must share one instance")
	}
}

func TestManagerDropsDisposedRoom(t *testing.T) {
	m := NewManager(testConfig(), nil, nil)
	defer m.Shutdown()

	r := m.GetOrCreateRoom("town")
	m.dropRoom(r)

	if _, ok := m.Room("town"); ok {
		t.Fatalf("disposed room should be gone from the registry")
	}
	if r2 := m.GetOrCreateRoom("town"); r2 == r {
		t.Errorf("a new join after disposal must get a fresh instance")
	}
}

func TestRoomDisposesAfterEmptyTTL(t *testing.T) {
	cfg := testConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	cfg.EmptyRoomTTL = 20 * time.Millisecond
	m := NewManager(cfg, nil, nil)
	defer m.Shutdown()

	r := m.GetOrCreateRoom("town")
	conn := &fakeConn{}
	r.Join("s1", conn, JoinOptions{})
	r.Leave("s1", true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.Room("town"); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("empty room was not disposed within the TTL")
}
