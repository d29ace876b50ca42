package service

import (
	"context"
	"fmt"

	"chat_server/server/realtime/domain"
)

type FriendStore interface {
	CreateRequest(ctx context.Context, requesterID, addresseeID string) (domain.Friendship, error)
	AcceptRequest(ctx context.Context, requestID, addresseeID string) (domain.Friendship, bool, error)
	RemoveFriend(ctx context.Context, userID, friendID string) error
	ListAcceptedFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// FriendService runs the friendship store operations and pairs each with
// event emission to both parties.
type FriendService struct {
	store      FriendStore
	dispatcher *Dispatcher
}

func NewFriendService(store FriendStore, dispatcher *Dispatcher) *FriendService {
	return &FriendService{store: store, dispatcher: dispatcher}
}

func (s *FriendService) SendRequest(ctx context.Context, requesterID, addresseeID string) (domain.Friendship, error) {
	if requesterID == "" || addresseeID == "" {
		return domain.Friendship{}, fmt.Errorf("%w: requester_id and addressee_id are required", ErrValidation)
	}
	if requesterID == addresseeID {
		return domain.Friendship{}, fmt.Errorf("%w: cannot friend yourself", ErrValidation)
	}
	friendship, err := s.store.CreateRequest(ctx, requesterID, addresseeID)
	if err != nil {
		return domain.Friendship{}, err
	}
	s.dispatcher.FriendRequestReceived(ctx, friendship)
	return friendship, nil
}

func (s *FriendService) AcceptRequest(ctx context.Context, requestID, addresseeID string) (domain.Friendship, error) {
	if requestID == "" || addresseeID == "" {
		return domain.Friendship{}, fmt.Errorf("%w: request_id and addressee_id are required", ErrValidation)
	}
	friendship, found, err := s.store.AcceptRequest(ctx, requestID, addresseeID)
	if err != nil {
		return domain.Friendship{}, err
	}
	if !found {
		return domain.Friendship{}, fmt.Errorf("%w: pending request %s", ErrNotFound, requestID)
	}
	s.dispatcher.FriendRequestAccepted(ctx, friendship)
	return friendship, nil
}

func (s *FriendService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if userID == "" || friendID == "" {
		return fmt.Errorf("%w: user_id and friend_id are required", ErrValidation)
	}
	if err := s.store.RemoveFriend(ctx, userID, friendID); err != nil {
		return err
	}
	s.dispatcher.FriendRemoved(ctx, userID, friendID)
	return nil
}
