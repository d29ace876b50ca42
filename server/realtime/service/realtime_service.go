package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	commonlog "chat_server/server/common/log"
	"chat_server/server/realtime/domain"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type inboundEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type typingPayload struct {
	ReceiverID string `json:"receiver_id"`
}

type deliveredPayload struct {
	MessageID string `json:"message_id"`
}

type seenPayload struct {
	MessageIDs []string `json:"message_ids"`
}

type callPayload struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
}

type signalPayload struct {
	CallID string          `json:"call_id"`
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

type friendPayload struct {
	AddresseeID string `json:"addressee_id"`
	RequestID   string `json:"request_id"`
	FriendID    string `json:"friend_id"`
}

// RealtimeService owns the WebSocket endpoint: it authenticates the
// connection, wires it into the registry and rooms, and dispatches the
// inbound event loop.
type RealtimeService struct {
	presence *PresenceTracker
	rooms    *Router
	delivery *DeliveryTracker
	calls    *CallCoordinator
	friends  *FriendService
	groups   GroupStore
}

func NewRealtimeService(presence *PresenceTracker, rooms *Router, delivery *DeliveryTracker, calls *CallCoordinator, friends *FriendService, groups GroupStore) *RealtimeService {
	return &RealtimeService{
		presence: presence,
		rooms:    rooms,
		delivery: delivery,
		calls:    calls,
		friends:  friends,
		groups:   groups,
	}
}

func (s *RealtimeService) HandleWS(c *gin.Context) {
	userID := c.GetString("auth_user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conn := NewWSConn(wsConn)

	ctx := c.Request.Context()
	connID := s.presence.HandleConnect(ctx, userID, conn)
	s.joinUserRooms(ctx, userID, connID)
	s.delivery.SweepPendingOnConnect(ctx, userID)
	commonlog.Infof("event=realtime action=connect user_id=%s conn_id=%s", userID, connID)

	defer func() {
		s.presence.HandleDisconnect(context.Background(), connID)
		commonlog.Infof("event=realtime action=disconnect user_id=%s conn_id=%s", userID, connID)
	}()

	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		var event inboundEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			writeErrorAck(conn, "invalid event frame")
			continue
		}
		s.dispatch(ctx, userID, connID, conn, event)
	}
}

// joinUserRooms subscribes the connection to its personal room and every
// group room from the persisted membership list. A failed membership read
// is logged, not fatal: the user misses group messages until reconnect.
func (s *RealtimeService) joinUserRooms(ctx context.Context, userID, connID string) {
	s.rooms.Join(connID, domain.UserRoom(userID))
	groupIDs, err := s.groups.ListGroupIDs(ctx, userID)
	if err != nil {
		commonlog.Errorf("event=realtime action=seed_group_rooms status=failed user_id=%s error=%v", userID, err)
		return
	}
	for _, groupID := range groupIDs {
		s.rooms.Join(connID, domain.GroupRoom(groupID))
	}
}

func (s *RealtimeService) dispatch(ctx context.Context, userID, connID string, conn Conn, event inboundEvent) {
	switch event.Event {
	case "joinUserRoom":
		s.presence.Heartbeat(userID)
		s.joinUserRooms(ctx, userID, connID)
		s.delivery.SweepPendingOnConnect(ctx, userID)

	case "heartbeat":
		s.presence.Heartbeat(userID)

	case "typing", "stopTyping":
		var p typingPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.ReceiverID == "" {
			writeErrorAck(conn, "receiver_id is required")
			return
		}
		name := domain.EventShowTyping
		if event.Event == "stopTyping" {
			name = domain.EventHideTyping
		}
		s.rooms.Broadcast(domain.UserRoom(p.ReceiverID), name, domain.TypingEvent{SenderID: userID, ReceiverID: p.ReceiverID})

	case "messageDelivered":
		var p deliveredPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.MessageID == "" {
			writeErrorAck(conn, "message_id is required")
			return
		}
		_ = s.delivery.MarkDelivered(ctx, p.MessageID, userID)

	case "messageSeen":
		var p seenPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || len(p.MessageIDs) == 0 {
			writeErrorAck(conn, "message_ids is required")
			return
		}
		_ = s.delivery.MarkSeen(ctx, p.MessageIDs, userID)

	case "answerCall":
		var p callPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.CallID == "" {
			writeErrorAck(conn, "call_id is required")
			return
		}
		if _, err := s.calls.Answer(ctx, p.CallID, userID); err != nil {
			writeErrorAck(conn, err.Error())
		}

	case "declineCall":
		var p callPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.CallID == "" {
			writeErrorAck(conn, "call_id is required")
			return
		}
		if _, err := s.calls.Decline(ctx, p.CallID, userID, p.Reason); err != nil {
			writeErrorAck(conn, err.Error())
		}

	case "joinCall":
		var p callPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.CallID == "" {
			writeErrorAck(conn, "call_id is required")
			return
		}
		if err := s.calls.JoinRoom(connID, p.CallID); err != nil {
			writeErrorAck(conn, err.Error())
			return
		}
		// Joining resolves the caller's invited slot; a no-op when the
		// slot is already settled.
		if _, err := s.calls.Answer(ctx, p.CallID, userID); err != nil {
			writeErrorAck(conn, err.Error())
		}

	case "leaveCall":
		var p callPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.CallID == "" {
			writeErrorAck(conn, "call_id is required")
			return
		}
		s.calls.LeaveRoom(connID, p.CallID)
		if _, err := s.calls.End(ctx, p.CallID, userID); err != nil && !errors.Is(err, ErrNotFound) {
			writeErrorAck(conn, err.Error())
		}

	case "endCall":
		var p callPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.CallID == "" {
			writeErrorAck(conn, "call_id is required")
			return
		}
		if _, err := s.calls.End(ctx, p.CallID, userID); err != nil {
			writeErrorAck(conn, err.Error())
		}

	case "callSignal":
		var p signalPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.CallID == "" || p.To == "" {
			writeErrorAck(conn, "call_id and to are required")
			return
		}
		if err := s.calls.Signal(p.CallID, userID, p.To, p.Signal); err != nil {
			writeErrorAck(conn, err.Error())
		}

	case "sendFriendRequest":
		var p friendPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			writeErrorAck(conn, "invalid payload")
			return
		}
		if _, err := s.friends.SendRequest(ctx, userID, p.AddresseeID); err != nil {
			writeErrorAck(conn, err.Error())
		}

	case "acceptFriendRequest":
		var p friendPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			writeErrorAck(conn, "invalid payload")
			return
		}
		if _, err := s.friends.AcceptRequest(ctx, p.RequestID, userID); err != nil {
			writeErrorAck(conn, err.Error())
		}

	case "removeFriend":
		var p friendPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			writeErrorAck(conn, "invalid payload")
			return
		}
		if err := s.friends.RemoveFriend(ctx, userID, p.FriendID); err != nil {
			writeErrorAck(conn, err.Error())
		}

	default:
		writeErrorAck(conn, "unknown event: "+event.Event)
	}
}

// writeErrorAck surfaces a failure to the originating connection only;
// errors are never broadcast.
func writeErrorAck(conn Conn, message string) {
	_ = conn.WriteJSON(Envelope{Event: "error", Payload: gin.H{"error": message}})
}
