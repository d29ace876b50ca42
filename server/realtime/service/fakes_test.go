package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat_server/server/realtime/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Envelope
	closed bool
}

func (c *fakeConn) WriteJSON(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if env, ok := payload.(Envelope); ok {
		c.frames = append(c.frames, env)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) received(event string) []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	matches := make([]Envelope, 0)
	for _, frame := range c.frames {
		if frame.Event == event {
			matches = append(matches, frame)
		}
	}
	return matches
}

func (c *fakeConn) countReceived(event string) int {
	return len(c.received(event))
}

type presenceWrite struct {
	userID   string
	isOnline bool
	lastSeen *time.Time
}

type fakePresenceStore struct {
	mu     sync.Mutex
	writes []presenceWrite
	err    error

	// beforeWrite, when set, runs outside the store lock before the write
	// is recorded. Tests use it to stall a transition mid-flight.
	beforeWrite func(userID string, isOnline bool)
}

func (s *fakePresenceStore) SetPresence(_ context.Context, userID string, isOnline bool, lastSeen *time.Time) error {
	if s.err != nil {
		return s.err
	}
	if s.beforeWrite != nil {
		s.beforeWrite(userID, isOnline)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, presenceWrite{userID: userID, isOnline: isOnline, lastSeen: lastSeen})
	return nil
}

func (s *fakePresenceStore) last() (presenceWrite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return presenceWrite{}, false
	}
	return s.writes[len(s.writes)-1], true
}

func (s *fakePresenceStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

type fakeFriendStore struct {
	mu      sync.Mutex
	nextID  int
	friends map[string][]string
	pending map[string]domain.Friendship
}

func newFakeFriendStore() *fakeFriendStore {
	return &fakeFriendStore{friends: map[string][]string{}, pending: map[string]domain.Friendship{}}
}

func (s *fakeFriendStore) befriend(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends[a] = append(s.friends[a], b)
	s.friends[b] = append(s.friends[b], a)
}

func (s *fakeFriendStore) CreateRequest(_ context.Context, requesterID, addresseeID string) (domain.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	f := domain.Friendship{
		ID:          fmt.Sprintf("fr-%d", s.nextID),
		RequesterID: requesterID,
		AddresseeID: addresseeID,
		Status:      domain.FriendRequestPending,
		CreatedAt:   time.Now(),
	}
	s.pending[f.ID] = f
	return f, nil
}

func (s *fakeFriendStore) AcceptRequest(_ context.Context, requestID, addresseeID string) (domain.Friendship, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.pending[requestID]
	if !ok || f.AddresseeID != addresseeID {
		return domain.Friendship{}, false, nil
	}
	delete(s.pending, requestID)
	f.Status = domain.FriendRequestAccepted
	s.friends[f.RequesterID] = append(s.friends[f.RequesterID], f.AddresseeID)
	s.friends[f.AddresseeID] = append(s.friends[f.AddresseeID], f.RequesterID)
	return f, true, nil
}

func (s *fakeFriendStore) RemoveFriend(_ context.Context, userID, friendID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends[userID] = removeString(s.friends[userID], friendID)
	s.friends[friendID] = removeString(s.friends[friendID], userID)
	return nil
}

func (s *fakeFriendStore) ListAcceptedFriendIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.friends[userID]...), nil
}

func removeString(items []string, target string) []string {
	kept := items[:0]
	for _, item := range items {
		if item != target {
			kept = append(kept, item)
		}
	}
	return kept
}

type fakeGroupStore struct {
	mu      sync.Mutex
	members map[string][]string
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{members: map[string][]string{}}
}

func (s *fakeGroupStore) ListGroupIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0)
	for groupID, memberIDs := range s.members {
		for _, memberID := range memberIDs {
			if memberID == userID {
				ids = append(ids, groupID)
				break
			}
		}
	}
	return ids, nil
}

func (s *fakeGroupStore) ListMemberIDs(_ context.Context, groupID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.members[groupID]...), nil
}

type statusEntry struct {
	senderID string
	status   domain.MessageStatus
}

// fakeMessageStore backs both MessageStore and DeliveryStore. Its status
// transitions apply the same conditional predicates the SQL store does,
// so regressions and unknown entries resolve as zero affected rows.
type fakeMessageStore struct {
	mu        sync.Mutex
	nextID    int
	messages  map[string]domain.Message
	statuses  map[string]map[string]*statusEntry
	createErr error
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		messages: map[string]domain.Message{},
		statuses: map[string]map[string]*statusEntry{},
	}
}

func (s *fakeMessageStore) CreateMessage(_ context.Context, message domain.Message, recipientIDs []string) (domain.Message, error) {
	if s.createErr != nil {
		return domain.Message{}, s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	message.ID = fmt.Sprintf("m-%d", s.nextID)
	message.CreatedAt = time.Now()
	s.messages[message.ID] = message
	s.statuses[message.ID] = map[string]*statusEntry{}
	for _, recipientID := range recipientIDs {
		s.statuses[message.ID][recipientID] = &statusEntry{senderID: message.SenderID, status: domain.MessageStatusSent}
	}
	return message, nil
}

func (s *fakeMessageStore) GetMessage(_ context.Context, messageID string) (domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.messages[messageID]
	return message, ok, nil
}

func (s *fakeMessageStore) MarkDelivered(_ context.Context, messageID, recipientID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.statuses[messageID][recipientID]
	if !ok || entry.status != domain.MessageStatusSent {
		return "", false, nil
	}
	entry.status = domain.MessageStatusDelivered
	return entry.senderID, true, nil
}

func (s *fakeMessageStore) MarkSeen(_ context.Context, messageIDs []string, recipientID string) ([]domain.PendingDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	affected := make([]domain.PendingDelivery, 0)
	for _, messageID := range messageIDs {
		entry, ok := s.statuses[messageID][recipientID]
		if !ok || entry.status == domain.MessageStatusSeen {
			continue
		}
		entry.status = domain.MessageStatusSeen
		affected = append(affected, domain.PendingDelivery{MessageID: messageID, SenderID: entry.senderID})
	}
	return affected, nil
}

func (s *fakeMessageStore) SweepPending(_ context.Context, recipientID string) ([]domain.PendingDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	affected := make([]domain.PendingDelivery, 0)
	for messageID, recipients := range s.statuses {
		entry, ok := recipients[recipientID]
		if !ok || entry.status != domain.MessageStatusSent {
			continue
		}
		entry.status = domain.MessageStatusDelivered
		affected = append(affected, domain.PendingDelivery{MessageID: messageID, SenderID: entry.senderID})
	}
	return affected, nil
}

func (s *fakeMessageStore) statusOf(messageID, recipientID string) (domain.MessageStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.statuses[messageID][recipientID]
	if !ok {
		return "", false
	}
	return entry.status, true
}

func (s *fakeMessageStore) lastMessage() (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.messages[fmt.Sprintf("m-%d", s.nextID)]
	return message, ok
}

type fakeCallStore struct {
	mu       sync.Mutex
	saved    []domain.CallSession
	failures int
}

func (s *fakeCallStore) SaveSnapshot(_ context.Context, session domain.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("snapshot store unavailable")
	}
	s.saved = append(s.saved, session)
	return nil
}

func (s *fakeCallStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type publishedEvent struct {
	routingKey string
	payload    any
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedEvent{routingKey: routingKey, payload: payload})
	return nil
}

// connectUser wires a fake connection through the presence tracker and
// joins its personal room, mirroring the connect path of the ws handler.
func connectUser(tracker *PresenceTracker, rooms *Router, userID string) (*fakeConn, string) {
	conn := &fakeConn{}
	connID := tracker.HandleConnect(context.Background(), userID, conn)
	rooms.Join(connID, domain.UserRoom(userID))
	return conn, connID
}
