package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	commonlog "chat_server/server/common/log"
)

const realtimeEventsChannel = "realtime:events"

// Envelope is the frame written to clients for every outbound event.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type routerEvent struct {
	RoomID  string          `json:"room_id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Router maps logical rooms to connection ids and fans broadcasts out to
// the live connections. With a redis client attached, broadcasts travel
// through pub/sub so every process holding members delivers them; without
// one they are delivered locally.
type Router struct {
	registry  *Registry
	mu        sync.RWMutex
	members   map[string]map[string]struct{}
	byConn    map[string]map[string]struct{}
	redis     *redis.Client
	redisSub  *redis.PubSub
	subCancel context.CancelFunc
}

func NewRouter(registry *Registry) *Router {
	return &Router{
		registry: registry,
		members:  map[string]map[string]struct{}{},
		byConn:   map[string]map[string]struct{}{},
	}
}

func (rt *Router) UseRedis(client *redis.Client) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.redis = client
}

func (rt *Router) StartRedisSubscriber(ctx context.Context) error {
	rt.mu.Lock()
	if rt.redis == nil {
		rt.mu.Unlock()
		return errors.New("redis client is nil")
	}
	if rt.redisSub != nil {
		rt.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := rt.redis.Subscribe(subCtx, realtimeEventsChannel)
	rt.redisSub = sub
	rt.subCancel = cancel
	rt.mu.Unlock()

	go rt.consumeEvents(subCtx, sub)
	return nil
}

func (rt *Router) StopRedisSubscriber() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.subCancel != nil {
		rt.subCancel()
		rt.subCancel = nil
	}
	if rt.redisSub != nil {
		_ = rt.redisSub.Close()
		rt.redisSub = nil
	}
}

// Join is idempotent; joining an already-joined room is a no-op.
func (rt *Router) Join(connID, roomID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.members[roomID]; !ok {
		rt.members[roomID] = map[string]struct{}{}
	}
	rt.members[roomID][connID] = struct{}{}
	if _, ok := rt.byConn[connID]; !ok {
		rt.byConn[connID] = map[string]struct{}{}
	}
	rt.byConn[connID][roomID] = struct{}{}
}

func (rt *Router) Leave(connID, roomID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.removeMember(connID, roomID)
}

// LeaveAll drops the connection from every room it joined. Run on
// disconnect so destroyed connections leave no stale membership behind.
func (rt *Router) LeaveAll(connID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for roomID := range rt.byConn[connID] {
		rt.removeMember(connID, roomID)
	}
}

func (rt *Router) removeMember(connID, roomID string) {
	if set, ok := rt.members[roomID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(rt.members, roomID)
		}
	}
	if set, ok := rt.byConn[connID]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(rt.byConn, connID)
		}
	}
}

func (rt *Router) Members(roomID string) []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	ids := make([]string, 0, len(rt.members[roomID]))
	for connID := range rt.members[roomID] {
		ids = append(ids, connID)
	}
	return ids
}

// Broadcast delivers the event to every connection in the room. A room
// with zero members is a normal outcome, not an error.
func (rt *Router) Broadcast(roomID, event string, payload any) {
	if rt.publishBroadcast(roomID, event, payload) {
		return
	}
	fanoutCount := rt.broadcastLocal(roomID, Envelope{Event: event, Payload: payload})
	commonlog.Debugf("event=room_router action=local_dispatch room_id=%s name=%s fanout_count=%d", roomID, event, fanoutCount)
}

func (rt *Router) broadcastLocal(roomID string, envelope Envelope) int {
	rt.mu.RLock()
	connIDs := make([]string, 0, len(rt.members[roomID]))
	for connID := range rt.members[roomID] {
		connIDs = append(connIDs, connID)
	}
	rt.mu.RUnlock()

	count := 0
	for _, connID := range connIDs {
		conn, ok := rt.registry.Conn(connID)
		if !ok {
			continue
		}
		if err := conn.WriteJSON(envelope); err != nil {
			continue
		}
		count++
	}
	return count
}

func (rt *Router) publishBroadcast(roomID, event string, payload any) bool {
	rt.mu.RLock()
	redisClient := rt.redis
	subscribed := rt.redisSub != nil
	rt.mu.RUnlock()
	if redisClient == nil || !subscribed {
		return false
	}
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	b, err := json.Marshal(routerEvent{RoomID: roomID, Event: event, Payload: payloadRaw})
	if err != nil {
		return false
	}
	if err := redisClient.Publish(context.Background(), realtimeEventsChannel, b).Err(); err != nil {
		commonlog.Errorf("event=room_router action=publish status=failed room_id=%s name=%s error=%v", roomID, event, err)
		return false
	}
	return true
}

func (rt *Router) consumeEvents(ctx context.Context, sub *redis.PubSub) {
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		var event routerEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			continue
		}
		var payload any
		if len(event.Payload) > 0 {
			if err := json.Unmarshal(event.Payload, &payload); err != nil {
				continue
			}
		}
		fanoutCount := rt.broadcastLocal(event.RoomID, Envelope{Event: event.Event, Payload: payload})
		commonlog.Debugf("event=room_router action=consume status=ok room_id=%s name=%s fanout_count=%d", event.RoomID, event.Event, fanoutCount)
	}
}
