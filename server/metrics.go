package server

import "sync/atomic"

// RoomMetrics tracks per-room counters for the monitoring endpoint. All
// counters are atomics so the HTTP handlers can read them while the room
// loop is running.
type RoomMetrics struct {
	Joins              int64
	DuplicateEvicted   int64
	StaleEvicted       int64
	Leaves             int64
	MovesApplied       int64
	Heartbeats         int64
	RoomChanges        int64
	ChatMessages       int64
	UnknownSession     int64
	MalformedFrames    int64
	BroadcastFrames    int64
	ReplicationFlushes int64
}

func (m *RoomMetrics) IncJoins()            { atomic.AddInt64(&m.Joins, 1) }
func (m *RoomMetrics) IncDuplicateEvicted() { atomic.AddInt64(&m.DuplicateEvicted, 1) }
func (m *RoomMetrics) IncStaleEvicted()     { atomic.AddInt64(&m.StaleEvicted, 1) }
func (m *RoomMetrics) IncLeaves()           { atomic.AddInt64(&m.Leaves, 1) }
func (m *RoomMetrics) IncMovesApplied()     { atomic.AddInt64(&m.MovesApplied, 1) }
func (m *RoomMetrics) IncHeartbeats()       { atomic.AddInt64(&m.Heartbeats, 1) }
func (m *RoomMetrics) IncRoomChanges()      { atomic.AddInt64(&m.RoomChanges, 1) }
func (m *RoomMetrics) IncChatMessages()     { atomic.AddInt64(&m.ChatMessages, 1) }
func (m *RoomMetrics) IncUnknownSession()   { atomic.AddInt64(&m.UnknownSession, 1) }
func (m *RoomMetrics) IncMalformedFrames()  { atomic.AddInt64(&m.MalformedFrames, 1) }
func (m *RoomMetrics) AddBroadcastFrames(n int64) {
	atomic.AddInt64(&m.BroadcastFrames, n)
}
func (m *RoomMetrics) IncReplicationFlushes() { atomic.AddInt64(&m.ReplicationFlushes, 1) }

// Snapshot returns a read-only copy for HTTP output.
func (m *RoomMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"joins":               atomic.LoadInt64(&m.Joins),
		"duplicate_evicted":   atomic.LoadInt64(&m.DuplicateEvicted),
		"stale_evicted":       atomic.LoadInt64(&m.StaleEvicted),
		"leaves":              atomic.LoadInt64(&m.Leaves),
		"moves_applied":       atomic.LoadInt64(&m.MovesApplied),
		"heartbeats":          atomic.LoadInt64(&m.Heartbeats),
		"room_changes":        atomic.LoadInt64(&m.RoomChanges),
		"chat_messages":       atomic.LoadInt64(&m.ChatMessages),
		"unknown_session":     atomic.LoadInt64(&m.UnknownSession),
		"malformed_frames":    atomic.LoadInt64(&m.MalformedFrames),
		"broadcast_frames":    atomic.LoadInt64(&m.BroadcastFrames),
		"replication_flushes": atomic.LoadInt64(&m.ReplicationFlushes),
	}
}
