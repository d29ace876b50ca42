package domain

import "time"

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusSeen      MessageStatus = "seen"
)

// Rank orders statuses so transitions can be checked for regression.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusSeen:
		return 3
	}
	return 0
}

type MessageKind string

const (
	MessageKindText      MessageKind = "text"
	MessageKindCallEvent MessageKind = "call_event"
)

type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"sender_id"`
	ReceiverID *string     `json:"receiver_id,omitempty"`
	GroupID    *string     `json:"group_id,omitempty"`
	Kind       MessageKind `json:"kind"`
	Body       string      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

type MessageStatusEntry struct {
	MessageID   string        `json:"message_id"`
	RecipientID string        `json:"recipient_id"`
	Status      MessageStatus `json:"status"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// PendingDelivery pairs a swept message with its original sender so the
// sender can be notified after a recipient reconnects.
type PendingDelivery struct {
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
}

type PresenceRecord struct {
	UserID   string     `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type CallMode string

const (
	CallModeDirect CallMode = "direct"
	CallModeGroup  CallMode = "group"
)

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

type CallStatus string

const (
	CallStatusActive CallStatus = "active"
	CallStatusEnded  CallStatus = "ended"
)

type ParticipantStatus string

const (
	ParticipantInvited  ParticipantStatus = "invited"
	ParticipantJoined   ParticipantStatus = "joined"
	ParticipantDeclined ParticipantStatus = "declined"
	ParticipantLeft     ParticipantStatus = "left"
)

type CallParticipant struct {
	UserID   string            `json:"user_id"`
	Status   ParticipantStatus `json:"status"`
	JoinedAt *time.Time        `json:"joined_at,omitempty"`
	LeftAt   *time.Time        `json:"left_at,omitempty"`
}

type CallSession struct {
	ID           string            `json:"id"`
	Mode         CallMode          `json:"mode"`
	Type         CallType          `json:"type"`
	InitiatorID  string            `json:"initiator_id"`
	GroupID      *string           `json:"group_id,omitempty"`
	Participants []CallParticipant `json:"participants"`
	Status       CallStatus        `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	EndedAt      *time.Time        `json:"ended_at,omitempty"`
	Duration     int               `json:"duration"`
}

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
)

type Friendship struct {
	ID          string              `json:"id"`
	RequesterID string              `json:"requester_id"`
	AddresseeID string              `json:"addressee_id"`
	Status      FriendRequestStatus `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
}

type User struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
