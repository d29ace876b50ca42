package service

import (
	"context"

	commonlog "chat_server/server/common/log"
	"chat_server/server/realtime/domain"
)

// DomainEventPublisher is the optional MQ mirror for dispatched events.
type DomainEventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Dispatcher translates domain events into room-addressed broadcasts. It
// holds no business logic: producers say what happened and to whom, the
// dispatcher decides which rooms get which event name and payload.
type Dispatcher struct {
	rooms *Router
	mq    DomainEventPublisher
}

func NewDispatcher(rooms *Router, mq DomainEventPublisher) *Dispatcher {
	return &Dispatcher{rooms: rooms, mq: mq}
}

func (d *Dispatcher) DirectMessage(ctx context.Context, message domain.Message) {
	d.rooms.Broadcast(domain.UserRoom(message.SenderID), domain.EventNewDirectMessage, message)
	if message.ReceiverID != nil {
		d.rooms.Broadcast(domain.UserRoom(*message.ReceiverID), domain.EventNewDirectMessage, message)
	}
	d.mirror(ctx, "message.direct", message)
}

func (d *Dispatcher) GroupMessage(ctx context.Context, message domain.Message) {
	if message.GroupID != nil {
		d.rooms.Broadcast(domain.GroupRoom(*message.GroupID), domain.EventNewGroupMessage, message)
	}
	d.mirror(ctx, "message.group", message)
}

// Reaction is addressed like the message it belongs to: both direct
// parties' rooms, or the group room.
func (d *Dispatcher) Reaction(ctx context.Context, message domain.Message, update domain.ReactionUpdateEvent) {
	switch {
	case message.GroupID != nil:
		d.rooms.Broadcast(domain.GroupRoom(*message.GroupID), domain.EventReactionUpdate, update)
	default:
		d.rooms.Broadcast(domain.UserRoom(message.SenderID), domain.EventReactionUpdate, update)
		if message.ReceiverID != nil {
			d.rooms.Broadcast(domain.UserRoom(*message.ReceiverID), domain.EventReactionUpdate, update)
		}
	}
	d.mirror(ctx, "message.reaction", update)
}

func (d *Dispatcher) FriendRequestReceived(ctx context.Context, friendship domain.Friendship) {
	payload := domain.FriendRequestEvent{
		RequestID:   friendship.ID,
		RequesterID: friendship.RequesterID,
		AddresseeID: friendship.AddresseeID,
	}
	d.rooms.Broadcast(domain.UserRoom(friendship.AddresseeID), domain.EventFriendRequestReceived, payload)
	d.mirror(ctx, "friend.requested", payload)
}

func (d *Dispatcher) FriendRequestAccepted(ctx context.Context, friendship domain.Friendship) {
	payload := domain.FriendRequestEvent{
		RequestID:   friendship.ID,
		RequesterID: friendship.RequesterID,
		AddresseeID: friendship.AddresseeID,
	}
	d.rooms.Broadcast(domain.UserRoom(friendship.RequesterID), domain.EventFriendRequestAccepted, payload)
	d.rooms.Broadcast(domain.UserRoom(friendship.AddresseeID), domain.EventFriendRequestAccepted, payload)
	d.mirror(ctx, "friend.accepted", payload)
}

func (d *Dispatcher) FriendRemoved(ctx context.Context, userID, friendID string) {
	payload := domain.FriendRemovedEvent{UserID: userID, FriendID: friendID}
	d.rooms.Broadcast(domain.UserRoom(userID), domain.EventFriendRemoved, payload)
	d.rooms.Broadcast(domain.UserRoom(friendID), domain.EventFriendRemoved, payload)
	d.mirror(ctx, "friend.removed", payload)
}

func (d *Dispatcher) Notify(ctx context.Context, notification domain.NotificationEvent) {
	d.rooms.Broadcast(domain.UserRoom(notification.UserID), domain.EventNotification, notification)
	d.mirror(ctx, "notification", notification)
}

func (d *Dispatcher) mirror(ctx context.Context, routingKey string, payload any) {
	if d.mq == nil {
		return
	}
	if err := d.mq.Publish(ctx, routingKey, payload); err != nil {
		commonlog.Errorf("event=dispatcher action=mq_publish status=failed routing_key=%s error=%v", routingKey, err)
	}
}
