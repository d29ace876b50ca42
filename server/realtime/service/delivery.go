package service

import (
	"context"

	commonlog "chat_server/server/common/log"
	"chat_server/server/realtime/domain"
)

type DeliveryStore interface {
	MarkDelivered(ctx context.Context, messageID, recipientID string) (senderID string, updated bool, err error)
	MarkSeen(ctx context.Context, messageIDs []string, recipientID string) ([]domain.PendingDelivery, error)
	SweepPending(ctx context.Context, recipientID string) ([]domain.PendingDelivery, error)
}

// DeliveryTracker walks each (message, recipient) entry through
// sent -> delivered -> seen. The store's conditional updates enforce the
// monotonic order, so a lost race or a repeated ack resolves as a no-op
// affecting zero rows. The same applies to acks for messages the caller
// is not a recipient of.
type DeliveryTracker struct {
	store DeliveryStore
	rooms *Router
}

func NewDeliveryTracker(store DeliveryStore, rooms *Router) *DeliveryTracker {
	return &DeliveryTracker{store: store, rooms: rooms}
}

func (d *DeliveryTracker) MarkDelivered(ctx context.Context, messageID, recipientID string) error {
	senderID, updated, err := d.store.MarkDelivered(ctx, messageID, recipientID)
	if err != nil {
		commonlog.Errorf("event=delivery action=mark_delivered status=failed message_id=%s recipient_id=%s error=%v", messageID, recipientID, err)
		return err
	}
	if !updated {
		return nil
	}
	d.notifySender(senderID, messageID, domain.MessageStatusDelivered)
	return nil
}

func (d *DeliveryTracker) MarkSeen(ctx context.Context, messageIDs []string, recipientID string) error {
	affected, err := d.store.MarkSeen(ctx, messageIDs, recipientID)
	if err != nil {
		commonlog.Errorf("event=delivery action=mark_seen status=failed recipient_id=%s count=%d error=%v", recipientID, len(messageIDs), err)
		return err
	}
	for _, entry := range affected {
		d.notifySender(entry.SenderID, entry.MessageID, domain.MessageStatusSeen)
	}
	return nil
}

// SweepPendingOnConnect flips every still-sent entry for the user to
// delivered and notifies each original sender. Closes the gap for
// messages sent while the recipient was offline.
func (d *DeliveryTracker) SweepPendingOnConnect(ctx context.Context, userID string) {
	affected, err := d.store.SweepPending(ctx, userID)
	if err != nil {
		commonlog.Errorf("event=delivery action=sweep_pending status=failed user_id=%s error=%v", userID, err)
		return
	}
	for _, entry := range affected {
		d.notifySender(entry.SenderID, entry.MessageID, domain.MessageStatusDelivered)
	}
	if len(affected) > 0 {
		commonlog.Infof("event=delivery action=sweep_pending status=ok user_id=%s count=%d", userID, len(affected))
	}
}

func (d *DeliveryTracker) notifySender(senderID, messageID string, status domain.MessageStatus) {
	d.rooms.Broadcast(domain.UserRoom(senderID), domain.EventMessageStatusUpdated,
		domain.MessageStatusUpdatedEvent{MessageID: messageID, Status: status})
}
