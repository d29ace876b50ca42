package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	commonlog "chat_server/server/common/log"
	"chat_server/server/realtime/domain"
)

type CallStore interface {
	SaveSnapshot(ctx context.Context, session domain.CallSession) error
}

const snapshotRetries = 3

// CallCoordinator owns ephemeral call sessions in memory; only terminal
// snapshots reach the store. Mutations to one session are serialized by a
// per-session mutex, so concurrent answers for the same slot resolve with
// a single winner and the loser as a no-op.
type CallCoordinator struct {
	rooms      *Router
	groups     GroupStore
	messages   MessageStore
	dispatcher *Dispatcher
	calls      CallStore
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*callSession
}

type callSession struct {
	mu   sync.Mutex
	data domain.CallSession
}

func NewCallCoordinator(rooms *Router, groups GroupStore, messages MessageStore, dispatcher *Dispatcher, calls CallStore) *CallCoordinator {
	return &CallCoordinator{
		rooms:      rooms,
		groups:     groups,
		messages:   messages,
		dispatcher: dispatcher,
		calls:      calls,
		now:        time.Now,
		sessions:   map[string]*callSession{},
	}
}

// Initiate creates a session and rings every invited participant. Exactly
// one of receiverID and groupID must be set.
func (c *CallCoordinator) Initiate(ctx context.Context, initiatorID string, receiverID, groupID *string, callType domain.CallType) (domain.CallSession, error) {
	hasReceiver := receiverID != nil && *receiverID != ""
	hasGroup := groupID != nil && *groupID != ""
	if hasReceiver == hasGroup {
		return domain.CallSession{}, fmt.Errorf("%w: exactly one of receiver_id and group_id is required", ErrValidation)
	}
	if initiatorID == "" {
		return domain.CallSession{}, fmt.Errorf("%w: initiator_id is required", ErrValidation)
	}
	if callType != domain.CallTypeAudio && callType != domain.CallTypeVideo {
		return domain.CallSession{}, fmt.Errorf("%w: call_type must be audio or video", ErrValidation)
	}

	now := c.now()
	session := domain.CallSession{
		ID:          uuid.NewString(),
		Type:        callType,
		InitiatorID: initiatorID,
		Status:      domain.CallStatusActive,
		StartedAt:   now,
	}
	initiatorSlot := domain.CallParticipant{UserID: initiatorID, Status: domain.ParticipantJoined, JoinedAt: &now}

	if hasReceiver {
		session.Mode = domain.CallModeDirect
		session.Participants = []domain.CallParticipant{
			initiatorSlot,
			{UserID: *receiverID, Status: domain.ParticipantInvited},
		}
	} else {
		memberIDs, err := c.groups.ListMemberIDs(ctx, *groupID)
		if err != nil {
			return domain.CallSession{}, fmt.Errorf("list group members: %w", err)
		}
		session.Mode = domain.CallModeGroup
		session.GroupID = groupID
		session.Participants = []domain.CallParticipant{initiatorSlot}
		for _, memberID := range memberIDs {
			if memberID == initiatorID {
				continue
			}
			session.Participants = append(session.Participants, domain.CallParticipant{UserID: memberID, Status: domain.ParticipantInvited})
		}
	}

	c.mu.Lock()
	c.sessions[session.ID] = &callSession{data: session}
	c.mu.Unlock()

	ring := domain.IncomingCallEvent{
		CallID:      session.ID,
		Mode:        session.Mode,
		Type:        session.Type,
		InitiatorID: initiatorID,
		GroupID:     session.GroupID,
	}
	for _, p := range session.Participants {
		if p.Status == domain.ParticipantInvited {
			c.rooms.Broadcast(domain.UserRoom(p.UserID), domain.EventIncomingCall, ring)
		}
	}
	c.rooms.Broadcast(domain.UserRoom(initiatorID), domain.EventCallInitiated, domain.CallInitiatedEvent{CallID: session.ID})

	commonlog.Infof("event=call action=initiate status=ok call_id=%s mode=%s call_type=%s initiator_id=%s participants=%d",
		session.ID, session.Mode, session.Type, initiatorID, len(session.Participants))
	return session, nil
}

// Answer moves an invited slot to joined. A missing or already-resolved
// slot is a no-op so double-answer races cannot corrupt the set.
func (c *CallCoordinator) Answer(ctx context.Context, callID, userID string) (domain.CallSession, error) {
	sess, err := c.session(callID)
	if err != nil {
		return domain.CallSession{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	slot := findParticipant(&sess.data, userID)
	if slot == nil || slot.Status != domain.ParticipantInvited {
		return sess.data, nil
	}
	now := c.now()
	slot.Status = domain.ParticipantJoined
	slot.JoinedAt = &now

	c.broadcastToParticipants(&sess.data, domain.EventCallAnswered, domain.CallAnsweredEvent{CallID: callID, UserID: userID})
	commonlog.Infof("event=call action=answer status=ok call_id=%s user_id=%s", callID, userID)
	return sess.data, nil
}

// Decline resolves an invited slot to declined. A direct call ends
// immediately since no counterparty remains; a group call continues while
// any other invited or joined participant is left.
func (c *CallCoordinator) Decline(ctx context.Context, callID, userID, reason string) (domain.CallSession, error) {
	sess, err := c.session(callID)
	if err != nil {
		return domain.CallSession{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	slot := findParticipant(&sess.data, userID)
	if slot == nil || slot.Status != domain.ParticipantInvited {
		return sess.data, nil
	}
	slot.Status = domain.ParticipantDeclined

	c.broadcastToParticipants(&sess.data, domain.EventCallDeclined, domain.CallDeclinedEvent{CallID: callID, UserID: userID, Reason: reason})
	commonlog.Infof("event=call action=decline status=ok call_id=%s user_id=%s mode=%s", callID, userID, sess.data.Mode)

	if sess.data.Mode == domain.CallModeDirect {
		return c.finalizeLocked(ctx, sess, userID, "Declined Call"), nil
	}
	if countActive(&sess.data) == 0 {
		return c.finalizeLocked(ctx, sess, userID, "Declined Call"), nil
	}
	return sess.data, nil
}

// JoinRoom subscribes a connection to the call's broadcast room; used by
// joined participants for in-call fan-out.
func (c *CallCoordinator) JoinRoom(connID, callID string) error {
	if _, err := c.session(callID); err != nil {
		return err
	}
	c.rooms.Join(connID, domain.CallRoom(callID))
	return nil
}

func (c *CallCoordinator) LeaveRoom(connID, callID string) {
	c.rooms.Leave(connID, domain.CallRoom(callID))
}

// End marks the caller's slot left. When no joined participant remains
// the session ends: duration runs from the earliest non-initiator join to
// now, zero if nobody but the initiator ever joined.
func (c *CallCoordinator) End(ctx context.Context, callID, userID string) (domain.CallSession, error) {
	sess, err := c.session(callID)
	if err != nil {
		return domain.CallSession{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	slot := findParticipant(&sess.data, userID)
	if slot == nil {
		return domain.CallSession{}, fmt.Errorf("%w: no participant slot for user %s", ErrNotFound, userID)
	}
	if slot.Status == domain.ParticipantJoined || slot.Status == domain.ParticipantInvited {
		now := c.now()
		slot.Status = domain.ParticipantLeft
		slot.LeftAt = &now
	}

	// One side hanging up ends a direct call outright; a group call runs
	// until its last joined participant leaves.
	if sess.data.Mode == domain.CallModeDirect {
		return c.finalizeLocked(ctx, sess, userID, ""), nil
	}

	joined := 0
	for _, p := range sess.data.Participants {
		if p.Status == domain.ParticipantJoined {
			joined++
		}
	}
	if joined > 0 {
		commonlog.Infof("event=call action=leave status=ok call_id=%s user_id=%s joined_remaining=%d", callID, userID, joined)
		return sess.data, nil
	}

	final := c.finalizeLocked(ctx, sess, userID, "")
	return final, nil
}

// Signal relays opaque negotiation payloads point-to-point to the target
// user's personal room, never call-wide, to avoid echo.
func (c *CallCoordinator) Signal(callID, fromUserID, toUserID string, signal json.RawMessage) error {
	if _, err := c.session(callID); err != nil {
		return err
	}
	c.rooms.Broadcast(domain.UserRoom(toUserID), domain.EventCallSignal, domain.CallSignalEvent{
		CallID: callID,
		From:   fromUserID,
		To:     toUserID,
		Signal: signal,
	})
	return nil
}

// Session returns a snapshot of a live session.
func (c *CallCoordinator) Session(callID string) (domain.CallSession, error) {
	sess, err := c.session(callID)
	if err != nil {
		return domain.CallSession{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.data, nil
}

func (c *CallCoordinator) session(callID string) (*callSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[callID]
	if !ok {
		return nil, fmt.Errorf("%w: call %s", ErrNotFound, callID)
	}
	return sess, nil
}

// finalizeLocked terminates the session: stamps the end, computes the
// duration excluding ring time, persists the snapshot with bounded
// retries, appends the synthetic outcome message, and tells everyone.
// Caller must hold sess.mu.
func (c *CallCoordinator) finalizeLocked(ctx context.Context, sess *callSession, endedBy, outcome string) domain.CallSession {
	now := c.now()
	sess.data.Status = domain.CallStatusEnded
	sess.data.EndedAt = &now
	sess.data.Duration = callDuration(&sess.data, now)

	c.mu.Lock()
	delete(c.sessions, sess.data.ID)
	c.mu.Unlock()

	c.persistSnapshot(ctx, sess.data)

	if outcome == "" {
		outcome = fmt.Sprintf("Call ended • Duration: %s", (time.Duration(sess.data.Duration) * time.Second).String())
	}
	c.appendOutcomeMessage(ctx, sess.data, endedBy, outcome)

	// Participant user rooms already reach everyone, including invitees
	// that never joined; an extra call-room broadcast would double-deliver
	// to connections subscribed to both.
	ended := domain.CallEndedEvent{CallID: sess.data.ID, EndedBy: endedBy, Duration: sess.data.Duration}
	c.broadcastToParticipants(&sess.data, domain.EventCallEnded, ended)

	commonlog.Infof("event=call action=end status=ok call_id=%s ended_by=%s duration_seconds=%d", sess.data.ID, endedBy, sess.data.Duration)
	return sess.data
}

func (c *CallCoordinator) persistSnapshot(ctx context.Context, session domain.CallSession) {
	for attempt := 1; attempt <= snapshotRetries; attempt++ {
		err := c.calls.SaveSnapshot(ctx, session)
		if err == nil {
			return
		}
		commonlog.Errorf("event=call action=persist_snapshot status=failed call_id=%s attempt=%d error=%v", session.ID, attempt, err)
		if attempt < snapshotRetries {
			time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
		}
	}
}

// appendOutcomeMessage records the call result in the conversation and
// fans it out like a normal message.
func (c *CallCoordinator) appendOutcomeMessage(ctx context.Context, session domain.CallSession, senderID, body string) {
	message := domain.Message{SenderID: senderID, Kind: domain.MessageKindCallEvent, Body: body}
	recipients := make([]string, 0, len(session.Participants))
	for _, p := range session.Participants {
		if p.UserID != senderID {
			recipients = append(recipients, p.UserID)
		}
	}

	if session.Mode == domain.CallModeGroup {
		message.GroupID = session.GroupID
	} else {
		for _, p := range session.Participants {
			if p.UserID != senderID {
				receiverID := p.UserID
				message.ReceiverID = &receiverID
				break
			}
		}
	}

	created, err := c.messages.CreateMessage(ctx, message, recipients)
	if err != nil {
		commonlog.Errorf("event=call action=append_outcome status=failed call_id=%s error=%v", session.ID, err)
		return
	}
	if created.GroupID != nil {
		c.dispatcher.GroupMessage(ctx, created)
	} else {
		c.dispatcher.DirectMessage(ctx, created)
	}
}

func (c *CallCoordinator) broadcastToParticipants(session *domain.CallSession, event string, payload any) {
	for _, p := range session.Participants {
		c.rooms.Broadcast(domain.UserRoom(p.UserID), event, payload)
	}
}

func findParticipant(session *domain.CallSession, userID string) *domain.CallParticipant {
	for i := range session.Participants {
		if session.Participants[i].UserID == userID {
			return &session.Participants[i]
		}
	}
	return nil
}

func countActive(session *domain.CallSession) int {
	count := 0
	for _, p := range session.Participants {
		if p.Status == domain.ParticipantInvited || p.Status == domain.ParticipantJoined {
			count++
		}
	}
	return count
}

// callDuration measures from the earliest non-initiator join so ring time
// is excluded. Zero when nobody besides the initiator ever joined.
func callDuration(session *domain.CallSession, endedAt time.Time) int {
	var earliest time.Time
	for _, p := range session.Participants {
		if p.UserID == session.InitiatorID || p.JoinedAt == nil {
			continue
		}
		if earliest.IsZero() || p.JoinedAt.Before(earliest) {
			earliest = *p.JoinedAt
		}
	}
	if earliest.IsZero() {
		return 0
	}
	seconds := int(endedAt.Sub(earliest).Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds
}
