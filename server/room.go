package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// sender is the outbound half of a connection. Sends are fire-and-forget: a
// failing or slow client must never stall the room loop.
type sender interface {
	Enqueue(b []byte)
	Close()
}

// JoinOptions carries the client-supplied identity and presentation fields.
// Missing fields get defaults; the userId, when present, drives the
// duplicate-session eviction on join.
type JoinOptions struct {
	UserID       string
	DisplayName  string
	AvatarSprite string
}

type eventKind int

const (
	evJoin eventKind = iota
	evLeave
	evFrame
)

type event struct {
	kind      eventKind
	sessionID string
	client    sender
	opts      JoinOptions
	consented bool
	data      []byte
}

// Room owns one shared world state. Every mutation (join, leave, inbound
// frame, sweep tick, replication flush) runs on the single run goroutine, in
// arrival order. That serialization is what makes the players map safe without
// locks; nothing outside the loop may touch it.
type Room struct {
	Slug string
	Name string

	cfg     Config
	log     *zap.SugaredLogger
	chats   ChatLog
	metrics *RoomMetrics

	players map[string]*Player
	dirty   map[string]struct{}

	events   chan event
	done     chan struct{}
	stopOnce sync.Once

	now func() time.Time

	// Tunable from the admin surface while the loop runs.
	staleAfter atomic.Int64 // nanoseconds
	maxPlayers atomic.Int64

	playerCount atomic.Int64
	emptySince  time.Time

	onDispose func(*Room)
}

// NewRoom builds a room for the given slug without starting its loop. A nil
// logger or chat log is replaced with a no-op one; onDispose may be nil.
func NewRoom(slug string, cfg Config, log *zap.SugaredLogger, chats ChatLog, onDispose func(*Room)) *Room {
	if slug == "" {
		slug = cfg.DefaultRoom
	}
	if slug == "" {
		slug = "town"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if chats == nil {
		chats = NopChatLog{}
	}
	r := &Room{
		Slug:      slug,
		Name:      RoomDisplayName(slug),
		cfg:       cfg,
		log:       log,
		chats:     chats,
		metrics:   &RoomMetrics{},
		players:   make(map[string]*Player),
		dirty:     make(map[string]struct{}),
		events:    make(chan event, 256),
		done:      make(chan struct{}),
		now:       time.Now,
		onDispose: onDispose,
	}
	r.staleAfter.Store(int64(cfg.StaleAfter))
	r.maxPlayers.Store(int64(cfg.MaxPlayers))
	return r
}

// Start launches the room loop.
func (r *Room) Start() {
	go r.run()
}

// Stop shuts the loop down and closes the remaining connections. Safe to call
// more than once.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Room) run() {
	sweepInterval := r.cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	replInterval := r.cfg.ReplicationInterval
	if replInterval <= 0 {
		replInterval = 100 * time.Millisecond
	}
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()
	repl := time.NewTicker(replInterval)
	defer repl.Stop()

	r.log.Infof("room %s (%q) started: sweep=%s stale=%s", r.Slug, r.Name, sweepInterval, r.StaleAfter())
	for {
		select {
		case <-r.done:
			r.closeAll()
			return
		case ev := <-r.events:
			r.dispatch(ev)
		case <-repl.C:
			r.flushReplication()
		case <-sweep.C:
			now := r.now()
			r.sweep(now)
			if r.maybeDispose(now) {
				return
			}
		}
	}
}

// Join hands a freshly accepted connection to the room loop.
func (r *Room) Join(sessionID string, client sender, opts JoinOptions) {
	select {
	case r.events <- event{kind: evJoin, sessionID: sessionID, client: client, opts: opts}:
	case <-r.done:
		client.Close()
	}
}

// Leave reports a disconnect. consented distinguishes a clean close from an
// abrupt one; either way the entry is removed if still present.
func (r *Room) Leave(sessionID string, consented bool) {
	select {
	case r.events <- event{kind: evLeave, sessionID: sessionID, consented: consented}:
	case <-r.done:
	}
}

// Deliver passes one raw inbound frame to the room loop. Frames are dropped
// when the loop is backlogged; clients resend position continuously, so losing
// one intent is cheaper than stalling the reader.
func (r *Room) Deliver(sessionID string, data []byte) {
	select {
	case r.events <- event{kind: evFrame, sessionID: sessionID, data: data}:
	case <-r.done:
	default:
	}
}

// PlayerCount reports the current population; readable outside the loop.
func (r *Room) PlayerCount() int { return int(r.playerCount.Load()) }

// StaleAfter returns the current stale-eviction threshold.
func (r *Room) StaleAfter() time.Duration { return time.Duration(r.staleAfter.Load()) }

// SetStaleAfter updates the stale-eviction threshold for future sweeps.
func (r *Room) SetStaleAfter(d time.Duration) { r.staleAfter.Store(int64(d)) }

// MaxPlayers returns the join-time population cap; 0 means uncapped.
func (r *Room) MaxPlayers() int { return int(r.maxPlayers.Load()) }

// SetMaxPlayers updates the population cap for future joins.
func (r *Room) SetMaxPlayers(n int) { r.maxPlayers.Store(int64(n)) }

// Metrics exposes the room's counters.
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

func (r *Room) dispatch(ev event) {
	switch ev.kind {
	case evJoin:
		r.handleJoin(ev.sessionID, ev.client, ev.opts)
	case evLeave:
		r.handleLeave(ev.sessionID, ev.consented)
	case evFrame:
		r.handleFrame(ev.sessionID, ev.data)
	}
}

func (r *Room) handleJoin(sessionID string, client sender, opts JoinOptions) {
	now := r.now()

	// A reconnecting client (page refresh) kills its own stale session
	// instead of coexisting with it. Runs before the capacity check so the
	// replacement does not count against its own old slot.
	if opts.UserID != "" {
		for id, p := range r.players {
			if p.UserID == opts.UserID && id != sessionID {
				r.evict(p)
				r.metrics.IncDuplicateEvicted()
				r.log.Infof("room %s: evicted duplicate session %s for user %s", r.Slug, id, opts.UserID)
			}
		}
	}

	if max := int(r.maxPlayers.Load()); max > 0 && len(r.players) >= max {
		client.Enqueue(encodeFrame(msgError, errorPayload{Reason: "roomFull"}))
		client.Close()
		r.log.Infof("room %s: join rejected for %s, room full (%d)", r.Slug, sessionID, max)
		return
	}

	displayName := opts.DisplayName
	if displayName == "" {
		displayName = DefaultDisplayName
	}
	sprite := opts.AvatarSprite
	if sprite == "" {
		sprite = DefaultAvatarSprite
	}

	// Spawn is a placeholder; the client's first move corrects it.
	p := &Player{
		SessionID:    sessionID,
		UserID:       opts.UserID,
		DisplayName:  displayName,
		AvatarSprite: sprite,
		X:            spawnX,
		Y:            spawnY,
		Direction:    spawnDirection,
		Animation:    spawnAnimation,
		CurrentRoom:  r.Slug,
		LastUpdate:   now,
		conn:         client,
	}
	r.players[sessionID] = p
	r.playerCount.Store(int64(len(r.players)))
	r.emptySince = time.Time{}
	r.markDirty(sessionID)
	r.metrics.IncJoins()

	r.broadcastExcept(sessionID, encodeFrame(msgPlayerJoined, playerJoinedPayload{
		SessionID:    sessionID,
		DisplayName:  displayName,
		AvatarSprite: sprite,
	}))
	client.Enqueue(encodeFrame(msgWelcome, welcomePayload{SessionID: sessionID, Room: r.snapshot()}))
	r.log.Infof("room %s: %s joined as %q (%d players)", r.Slug, sessionID, displayName, len(r.players))
}

func (r *Room) handleLeave(sessionID string, consented bool) {
	p, ok := r.players[sessionID]
	if !ok {
		// Already gone: evicted as a duplicate, swept as stale, or a second
		// leave for the same session. Not an error, and no broadcast.
		return
	}
	r.remove(p)
	r.metrics.IncLeaves()
	r.broadcast(encodeFrame(msgPlayerLeft, playerLeftPayload{SessionID: sessionID, DisplayName: p.DisplayName}))
	r.log.Infof("room %s: %s left (consented=%t, %d players)", r.Slug, sessionID, consented, len(r.players))
}

func (r *Room) handleFrame(sessionID string, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		r.metrics.IncMalformedFrames()
		return
	}
	p, ok := r.players[sessionID]
	if !ok {
		// A frame can race a leave or an eviction; dropping it is the
		// designed behavior, not an error.
		r.metrics.IncUnknownSession()
		return
	}
	now := r.now()
	p.LastUpdate = now

	switch frame.Type {
	case msgMove:
		var mv movePayload
		if err := json.Unmarshal(frame.Payload, &mv); err != nil {
			r.metrics.IncMalformedFrames()
			return
		}
		// Last write wins; no bounds validation at this layer.
		p.X = mv.X
		p.Y = mv.Y
		p.Direction = mv.Direction
		p.IsMoving = mv.IsMoving
		p.Animation = mv.Animation
		r.markDirty(sessionID)
		r.metrics.IncMovesApplied()
	case msgHeartbeat:
		// Liveness refresh only; nothing to replicate.
		r.metrics.IncHeartbeats()
	case msgChangeRoom:
		var cr changeRoomPayload
		if err := json.Unmarshal(frame.Payload, &cr); err != nil {
			r.metrics.IncMalformedFrames()
			return
		}
		p.CurrentRoom = cr.RoomSlug
		r.markDirty(sessionID)
		r.metrics.IncRoomChanges()
	case msgChat:
		var ch chatPayload
		if err := json.Unmarshal(frame.Payload, &ch); err != nil {
			r.metrics.IncMalformedFrames()
			return
		}
		r.handleChat(p, ch.Message, now)
	default:
		r.metrics.IncMalformedFrames()
	}
}

func (r *Room) handleChat(p *Player, message string, now time.Time) {
	// Echoed to the sender too, so its UI confirms delivery through the same
	// path as received messages.
	r.broadcast(encodeFrame(msgChatEvent, chatEventPayload{
		SessionID:   p.SessionID,
		DisplayName: p.DisplayName,
		Message:     message,
		X:           p.X,
		Y:           p.Y,
		Timestamp:   now.UnixMilli(),
	}))
	r.metrics.IncChatMessages()

	rec := ChatRecord{
		RoomSlug:    r.Slug,
		SessionID:   p.SessionID,
		DisplayName: p.DisplayName,
		Message:     message,
		X:           p.X,
		Y:           p.Y,
		CreatedAt:   now.UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.chats.Append(ctx, rec); err != nil {
			r.log.Warnf("room %s: chat history append failed: %v", r.Slug, err)
		}
	}()
}

// sweep evicts sessions that went silent past the threshold. It is the
// backstop for transports that never report the disconnect.
func (r *Room) sweep(now time.Time) {
	threshold := time.Duration(r.staleAfter.Load())
	if threshold <= 0 {
		return
	}
	for id, p := range r.players {
		if now.Sub(p.LastUpdate) > threshold {
			r.evict(p)
			r.metrics.IncStaleEvicted()
			r.log.Infof("room %s: swept stale session %s (idle %s)", r.Slug, id, now.Sub(p.LastUpdate))
		}
	}
}

// evict removes a player and notifies the remaining clients. Used by the
// duplicate-session guard and by the stale sweep.
func (r *Room) evict(p *Player) {
	r.remove(p)
	r.broadcast(encodeFrame(msgPlayerLeft, playerLeftPayload{SessionID: p.SessionID, DisplayName: p.DisplayName}))
}

func (r *Room) remove(p *Player) {
	delete(r.players, p.SessionID)
	delete(r.dirty, p.SessionID)
	r.playerCount.Store(int64(len(r.players)))
	if len(r.players) == 0 {
		r.emptySince = r.now()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// maybeDispose shuts the room down after it has been empty past the configured
// TTL. A zero TTL keeps empty rooms alive forever.
func (r *Room) maybeDispose(now time.Time) bool {
	if r.cfg.EmptyRoomTTL <= 0 || len(r.players) > 0 || r.emptySince.IsZero() {
		return false
	}
	if now.Sub(r.emptySince) < r.cfg.EmptyRoomTTL {
		return false
	}
	r.log.Infof("room %s: empty for %s, disposing", r.Slug, now.Sub(r.emptySince))
	if r.onDispose != nil {
		r.onDispose(r)
	}
	r.Stop()
	return true
}

// flushReplication pushes the coalesced field changes since the last flush to
// every client.
func (r *Room) flushReplication() {
	if len(r.dirty) == 0 {
		return
	}
	changed := make([]PlayerSnapshot, 0, len(r.dirty))
	for id := range r.dirty {
		if p, ok := r.players[id]; ok {
			changed = append(changed, p.snapshot())
		}
	}
	r.dirty = make(map[string]struct{})
	if len(changed) == 0 {
		return
	}
	r.broadcast(encodeFrame(msgState, statePayload{RoomSlug: r.Slug, Players: changed}))
	r.metrics.IncReplicationFlushes()
}

func (r *Room) markDirty(sessionID string) {
	r.dirty[sessionID] = struct{}{}
}

// snapshot copies the full room state for serialization. State only ever
// leaves the room as a copy, never as a live reference.
func (r *Room) snapshot() RoomSnapshot {
	players := make([]PlayerSnapshot, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p.snapshot())
	}
	return RoomSnapshot{
		RoomSlug:   r.Slug,
		RoomName:   r.Name,
		MaxPlayers: int(r.maxPlayers.Load()),
		Players:    players,
	}
}

func (r *Room) broadcast(b []byte) {
	if b == nil {
		return
	}
	for _, p := range r.players {
		if p.conn != nil {
			p.conn.Enqueue(b)
		}
	}
	r.metrics.AddBroadcastFrames(int64(len(r.players)))
}

func (r *Room) broadcastExcept(sessionID string, b []byte) {
	if b == nil {
		return
	}
	n := int64(0)
	for id, p := range r.players {
		if id == sessionID || p.conn == nil {
			continue
		}
		p.conn.Enqueue(b)
		n++
	}
	r.metrics.AddBroadcastFrames(n)
}

func (r *Room) closeAll() {
	for _, p := range r.players {
		if p.conn != nil {
			p.conn.Close()
		}
	}
	r.players = make(map[string]*Player)
	r.dirty = make(map[string]struct{})
	r.playerCount.Store(0)
}
