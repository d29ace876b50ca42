package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat_server/server/realtime/domain"
)

func newDeliveryFixture() (*DeliveryTracker, *fakeMessageStore, *Registry, *Router) {
	registry := NewRegistry()
	rooms := NewRouter(registry)
	store := newFakeMessageStore()
	return NewDeliveryTracker(store, rooms), store, registry, rooms
}

func joinUserRoom(registry *Registry, rooms *Router, userID string) *fakeConn {
	conn := &fakeConn{}
	connID, _ := registry.Register(userID, conn)
	rooms.Join(connID, domain.UserRoom(userID))
	return conn
}

func TestDeliveryStatusIsMonotonic(t *testing.T) {
	ctx := context.Background()
	tracker, store, registry, rooms := newDeliveryFixture()
	sender := joinUserRoom(registry, rooms, "alice")

	receiverID := "bob"
	msg, err := store.CreateMessage(ctx, domain.Message{SenderID: "alice", ReceiverID: &receiverID, Kind: domain.MessageKindText, Body: "hi"}, []string{"bob"})
	require.NoError(t, err)

	require.NoError(t, tracker.MarkDelivered(ctx, msg.ID, "bob"))
	status, _ := store.statusOf(msg.ID, "bob")
	assert.Equal(t, domain.MessageStatusDelivered, status)

	require.NoError(t, tracker.MarkSeen(ctx, []string{msg.ID}, "bob"))
	status, _ = store.statusOf(msg.ID, "bob")
	assert.Equal(t, domain.MessageStatusSeen, status)

	// Applying delivered after seen must not regress the status.
	require.NoError(t, tracker.MarkDelivered(ctx, msg.ID, "bob"))
	status, _ = store.statusOf(msg.ID, "bob")
	assert.Equal(t, domain.MessageStatusSeen, status)

	// One notification per real transition, none for the no-op.
	updates := sender.received(domain.EventMessageStatusUpdated)
	require.Len(t, updates, 2)
	assert.Equal(t, domain.MessageStatusDelivered, updates[0].Payload.(domain.MessageStatusUpdatedEvent).Status)
	assert.Equal(t, domain.MessageStatusSeen, updates[1].Payload.(domain.MessageStatusUpdatedEvent).Status)
}

func TestDeliveryRepeatedDeliveredAckIsNoop(t *testing.T) {
	ctx := context.Background()
	tracker, store, registry, rooms := newDeliveryFixture()
	sender := joinUserRoom(registry, rooms, "alice")

	receiverID := "bob"
	msg, _ := store.CreateMessage(ctx, domain.Message{SenderID: "alice", ReceiverID: &receiverID, Kind: domain.MessageKindText, Body: "hi"}, []string{"bob"})

	require.NoError(t, tracker.MarkDelivered(ctx, msg.ID, "bob"))
	require.NoError(t, tracker.MarkDelivered(ctx, msg.ID, "bob"))

	assert.Equal(t, 1, sender.countReceived(domain.EventMessageStatusUpdated))
}

func TestDeliveryAckForForeignMessageIsSilent(t *testing.T) {
	ctx := context.Background()
	tracker, store, registry, rooms := newDeliveryFixture()
	sender := joinUserRoom(registry, rooms, "alice")

	receiverID := "bob"
	msg, _ := store.CreateMessage(ctx, domain.Message{SenderID: "alice", ReceiverID: &receiverID, Kind: domain.MessageKindText, Body: "hi"}, []string{"bob"})

	// mallory is not a recipient; the ack affects zero rows.
	require.NoError(t, tracker.MarkDelivered(ctx, msg.ID, "mallory"))
	require.NoError(t, tracker.MarkSeen(ctx, []string{msg.ID, "m-unknown"}, "mallory"))

	status, _ := store.statusOf(msg.ID, "bob")
	assert.Equal(t, domain.MessageStatusSent, status)
	assert.Zero(t, sender.countReceived(domain.EventMessageStatusUpdated))
}

func TestDeliverySweepOnReconnect(t *testing.T) {
	ctx := context.Background()
	tracker, store, registry, rooms := newDeliveryFixture()

	senderA := joinUserRoom(registry, rooms, "alice")
	senderB := joinUserRoom(registry, rooms, "bob")

	receiverID := "carol"
	m1, _ := store.CreateMessage(ctx, domain.Message{SenderID: "alice", ReceiverID: &receiverID, Kind: domain.MessageKindText, Body: "one"}, []string{"carol"})
	m2, _ := store.CreateMessage(ctx, domain.Message{SenderID: "alice", ReceiverID: &receiverID, Kind: domain.MessageKindText, Body: "two"}, []string{"carol"})
	m3, _ := store.CreateMessage(ctx, domain.Message{SenderID: "bob", ReceiverID: &receiverID, Kind: domain.MessageKindText, Body: "three"}, []string{"carol"})

	tracker.SweepPendingOnConnect(ctx, "carol")

	for _, id := range []string{m1.ID, m2.ID, m3.ID} {
		status, ok := store.statusOf(id, "carol")
		require.True(t, ok)
		assert.Equal(t, domain.MessageStatusDelivered, status)
	}

	// Each sender gets exactly one delivered notification per message.
	assert.Equal(t, 2, senderA.countReceived(domain.EventMessageStatusUpdated))
	assert.Equal(t, 1, senderB.countReceived(domain.EventMessageStatusUpdated))

	// A second sweep finds nothing pending.
	tracker.SweepPendingOnConnect(ctx, "carol")
	assert.Equal(t, 2, senderA.countReceived(domain.EventMessageStatusUpdated))
}

func TestDeliveryBulkSeen(t *testing.T) {
	ctx := context.Background()
	tracker, store, registry, rooms := newDeliveryFixture()
	sender := joinUserRoom(registry, rooms, "alice")

	receiverID := "bob"
	m1, _ := store.CreateMessage(ctx, domain.Message{SenderID: "alice", ReceiverID: &receiverID, Kind: domain.MessageKindText, Body: "one"}, []string{"bob"})
	m2, _ := store.CreateMessage(ctx, domain.Message{SenderID: "alice", ReceiverID: &receiverID, Kind: domain.MessageKindText, Body: "two"}, []string{"bob"})

	require.NoError(t, tracker.MarkDelivered(ctx, m1.ID, "bob"))
	require.NoError(t, tracker.MarkSeen(ctx, []string{m1.ID, m2.ID}, "bob"))

	for _, id := range []string{m1.ID, m2.ID} {
		status, _ := store.statusOf(id, "bob")
		assert.Equal(t, domain.MessageStatusSeen, status)
	}
	// delivered(m1) + seen(m1) + seen(m2)
	assert.Equal(t, 3, sender.countReceived(domain.EventMessageStatusUpdated))
}
