package domain

import (
	"encoding/json"
	"time"
)

// Outbound event names. One payload struct per name so handlers can
// pattern-match on a closed set instead of untyped maps.
const (
	EventUserOnline            = "userOnline"
	EventUserOffline           = "userOffline"
	EventFriendStatusUpdate    = "friendStatusUpdate"
	EventShowTyping            = "showTyping"
	EventHideTyping            = "hideTyping"
	EventMessageStatusUpdated  = "messageStatusUpdated"
	EventNewDirectMessage      = "newDirectMessage"
	EventNewGroupMessage       = "newGroupMessage"
	EventReactionUpdate        = "reactionUpdate"
	EventIncomingCall          = "incomingCall"
	EventCallInitiated         = "callInitiated"
	EventCallAnswered          = "callAnswered"
	EventCallDeclined          = "callDeclined"
	EventCallEnded             = "callEnded"
	EventCallSignal            = "callSignal"
	EventFriendRequestReceived = "friendRequestReceived"
	EventFriendRequestAccepted = "friendRequestAccepted"
	EventFriendRemoved         = "friendRemoved"
	EventNotification          = "notification"
)

type UserOnlineEvent struct {
	UserID string `json:"user_id"`
}

type UserOfflineEvent struct {
	UserID   string     `json:"user_id"`
	LastSeen *time.Time `json:"last_seen"`
}

type FriendStatusUpdateEvent struct {
	UserID   string     `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type TypingEvent struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

type MessageStatusUpdatedEvent struct {
	MessageID string        `json:"message_id"`
	Status    MessageStatus `json:"status"`
}

type ReactionUpdateEvent struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	Removed   bool   `json:"removed,omitempty"`
}

type IncomingCallEvent struct {
	CallID      string   `json:"call_id"`
	Mode        CallMode `json:"mode"`
	Type        CallType `json:"type"`
	InitiatorID string   `json:"initiator_id"`
	GroupID     *string  `json:"group_id,omitempty"`
}

type CallInitiatedEvent struct {
	CallID string `json:"call_id"`
}

type CallAnsweredEvent struct {
	CallID string `json:"call_id"`
	UserID string `json:"user_id"`
}

type CallDeclinedEvent struct {
	CallID string `json:"call_id"`
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

type CallEndedEvent struct {
	CallID   string `json:"call_id"`
	EndedBy  string `json:"ended_by"`
	Duration int    `json:"duration"`
}

// CallSignalEvent relays opaque negotiation data point-to-point. The
// coordinator never inspects Signal.
type CallSignalEvent struct {
	CallID string          `json:"call_id"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

type FriendRequestEvent struct {
	RequestID   string `json:"request_id"`
	RequesterID string `json:"requester_id"`
	AddresseeID string `json:"addressee_id"`
}

type FriendRemovedEvent struct {
	UserID   string `json:"user_id"`
	FriendID string `json:"friend_id"`
}

type NotificationEvent struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}
