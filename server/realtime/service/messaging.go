package service

import (
	"context"
	"fmt"
	"strings"

	"chat_server/server/realtime/domain"
)

type MessageStore interface {
	CreateMessage(ctx context.Context, message domain.Message, recipientIDs []string) (domain.Message, error)
	GetMessage(ctx context.Context, messageID string) (domain.Message, bool, error)
}

type GroupStore interface {
	ListGroupIDs(ctx context.Context, userID string) ([]string, error)
	ListMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

// MessagingService persists messages with their per-recipient status rows
// and hands fan-out to the dispatcher.
type MessagingService struct {
	messages   MessageStore
	groups     GroupStore
	dispatcher *Dispatcher
}

func NewMessagingService(messages MessageStore, groups GroupStore, dispatcher *Dispatcher) *MessagingService {
	return &MessagingService{messages: messages, groups: groups, dispatcher: dispatcher}
}

func (s *MessagingService) SendDirect(ctx context.Context, senderID, receiverID, body string) (domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Message{}, fmt.Errorf("%w: body is required", ErrValidation)
	}
	if senderID == "" || receiverID == "" {
		return domain.Message{}, fmt.Errorf("%w: sender_id and receiver_id are required", ErrValidation)
	}
	message := domain.Message{
		SenderID:   senderID,
		ReceiverID: &receiverID,
		Kind:       domain.MessageKindText,
		Body:       body,
	}
	created, err := s.messages.CreateMessage(ctx, message, []string{receiverID})
	if err != nil {
		return domain.Message{}, err
	}
	s.dispatcher.DirectMessage(ctx, created)
	return created, nil
}

// SendGroup seeds one status entry per group member except the sender.
func (s *MessagingService) SendGroup(ctx context.Context, senderID, groupID, body string) (domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Message{}, fmt.Errorf("%w: body is required", ErrValidation)
	}
	if senderID == "" || groupID == "" {
		return domain.Message{}, fmt.Errorf("%w: sender_id and group_id are required", ErrValidation)
	}
	memberIDs, err := s.groups.ListMemberIDs(ctx, groupID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("list group members: %w", err)
	}
	recipients := make([]string, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if memberID != senderID {
			recipients = append(recipients, memberID)
		}
	}
	message := domain.Message{
		SenderID: senderID,
		GroupID:  &groupID,
		Kind:     domain.MessageKindText,
		Body:     body,
	}
	created, err := s.messages.CreateMessage(ctx, message, recipients)
	if err != nil {
		return domain.Message{}, err
	}
	s.dispatcher.GroupMessage(ctx, created)
	return created, nil
}

func (s *MessagingService) React(ctx context.Context, userID, messageID, emoji string, removed bool) error {
	if userID == "" || messageID == "" || emoji == "" {
		return fmt.Errorf("%w: user_id, message_id and emoji are required", ErrValidation)
	}
	message, found, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	s.dispatcher.Reaction(ctx, message, domain.ReactionUpdateEvent{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		Removed:   removed,
	})
	return nil
}
