package service

import (
	"context"
	"sync"
	"time"

	commonlog "chat_server/server/common/log"
	"chat_server/server/realtime/domain"
)

type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, isOnline bool, lastSeen *time.Time) error
}

type FriendLister interface {
	ListAcceptedFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// PresenceTracker derives online/offline transitions from the registry
// and a per-user heartbeat timeout. Transitions fire only on the first
// connection and the last disconnection, so multi-device users do not
// cause event storms. Each user's registry mutation and its side effects
// (persist + broadcast) run under that user's lock, so a reconnect racing
// an in-flight offline transition always commits its online transition
// after the offline one, never before.
type PresenceTracker struct {
	registry *Registry
	rooms    *Router
	users    PresenceStore
	friends  FriendLister
	timeout  time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	locks  map[string]*sync.Mutex
}

func NewPresenceTracker(registry *Registry, rooms *Router, users PresenceStore, friends FriendLister, timeout time.Duration) *PresenceTracker {
	return &PresenceTracker{
		registry: registry,
		rooms:    rooms,
		users:    users,
		friends:  friends,
		timeout:  timeout,
		timers:   map[string]*time.Timer{},
		locks:    map[string]*sync.Mutex{},
	}
}

// userLock returns the transition lock for a user. Locks are never removed
// from the map; a waiter must keep holding the same mutex a later connect
// would look up.
func (t *PresenceTracker) userLock(userID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[userID] = lock
	}
	return lock
}

// HandleConnect registers the connection and runs the online transition
// when it is the user's first. Returns the assigned connection id.
func (t *PresenceTracker) HandleConnect(ctx context.Context, userID string, conn Conn) string {
	lock := t.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	connID, first := t.registry.Register(userID, conn)
	t.resetTimer(userID)
	if first {
		t.markOnline(ctx, userID)
	}
	return connID
}

// HandleDisconnect unregisters the connection and runs the offline
// transition when it was the user's last. Unknown connection ids are a
// no-op; the heartbeat sweep may already have claimed them.
func (t *PresenceTracker) HandleDisconnect(ctx context.Context, connID string) {
	ownerID, ok := t.registry.Owner(connID)
	if !ok {
		return
	}
	lock := t.userLock(ownerID)
	lock.Lock()
	defer lock.Unlock()
	userID, last, ok := t.registry.Unregister(connID)
	if !ok {
		return
	}
	t.rooms.LeaveAll(connID)
	if last {
		t.stopTimer(userID)
		t.markOffline(ctx, userID)
	}
}

// Heartbeat restarts the user's timeout window.
func (t *PresenceTracker) Heartbeat(userID string) {
	t.resetTimer(userID)
}

func (t *PresenceTracker) resetTimer(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
	}
	t.timers[userID] = time.AfterFunc(t.timeout, func() { t.expire(userID) })
}

func (t *PresenceTracker) stopTimer(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
}

// expire fires when no heartbeat arrived within the window. All of the
// user's registered connections are force-closed to reclaim zombie
// sockets, then the offline transition runs.
func (t *PresenceTracker) expire(userID string) {
	t.mu.Lock()
	delete(t.timers, userID)
	t.mu.Unlock()

	lock := t.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	// A connect or heartbeat that re-armed the timer while this firing
	// waited on the lock supersedes it.
	t.mu.Lock()
	_, rearmed := t.timers[userID]
	t.mu.Unlock()
	if rearmed {
		return
	}

	connIDs := t.registry.ConnectionIDsFor(userID)
	if len(connIDs) == 0 {
		return
	}
	commonlog.Warnf("event=presence action=heartbeat_timeout user_id=%s stale_connections=%d", userID, len(connIDs))
	for _, connID := range connIDs {
		if conn, ok := t.registry.Conn(connID); ok {
			_ = conn.Close()
		}
		t.registry.Unregister(connID)
		t.rooms.LeaveAll(connID)
	}
	t.markOffline(context.Background(), userID)
}

func (t *PresenceTracker) markOnline(ctx context.Context, userID string) {
	if err := t.users.SetPresence(ctx, userID, true, nil); err != nil {
		// Presence is advisory; broadcasts proceed on store failure.
		commonlog.Errorf("event=presence action=persist_online status=failed user_id=%s error=%v", userID, err)
	}
	t.broadcastGlobal(domain.EventUserOnline, domain.UserOnlineEvent{UserID: userID})
	t.notifyFriends(ctx, userID, true, nil)
}

func (t *PresenceTracker) markOffline(ctx context.Context, userID string) {
	lastSeen := time.Now()
	if err := t.users.SetPresence(ctx, userID, false, &lastSeen); err != nil {
		commonlog.Errorf("event=presence action=persist_offline status=failed user_id=%s error=%v", userID, err)
	}
	t.broadcastGlobal(domain.EventUserOffline, domain.UserOfflineEvent{UserID: userID, LastSeen: &lastSeen})
	t.notifyFriends(ctx, userID, false, &lastSeen)
}

// broadcastGlobal reaches every live connection. Friend-scoped
// friendStatusUpdate is the lower-noise channel UIs should prefer; the
// global broadcast is kept as observed behavior.
func (t *PresenceTracker) broadcastGlobal(event string, payload any) {
	envelope := Envelope{Event: event, Payload: payload}
	for _, conn := range t.registry.AllConns() {
		_ = conn.WriteJSON(envelope)
	}
}

func (t *PresenceTracker) notifyFriends(ctx context.Context, userID string, isOnline bool, lastSeen *time.Time) {
	friendIDs, err := t.friends.ListAcceptedFriendIDs(ctx, userID)
	if err != nil {
		commonlog.Errorf("event=presence action=list_friends status=failed user_id=%s error=%v", userID, err)
		return
	}
	payload := domain.FriendStatusUpdateEvent{UserID: userID, IsOnline: isOnline, LastSeen: lastSeen}
	for _, friendID := range friendIDs {
		t.rooms.Broadcast(domain.UserRoom(friendID), domain.EventFriendStatusUpdate, payload)
	}
}
