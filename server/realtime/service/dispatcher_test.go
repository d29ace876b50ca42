package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat_server/server/realtime/domain"
)

func TestDispatcherDirectMessageAddressing(t *testing.T) {
	registry := NewRegistry()
	rooms := NewRouter(registry)
	dispatcher := NewDispatcher(rooms, nil)

	aliceConn := joinUserRoom(registry, rooms, "alice")
	bobConn := joinUserRoom(registry, rooms, "bob")
	carolConn := joinUserRoom(registry, rooms, "carol")

	receiverID := "bob"
	dispatcher.DirectMessage(context.Background(), domain.Message{ID: "m-1", SenderID: "alice", ReceiverID: &receiverID, Body: "hi"})

	assert.Equal(t, 1, aliceConn.countReceived(domain.EventNewDirectMessage))
	assert.Equal(t, 1, bobConn.countReceived(domain.EventNewDirectMessage))
	assert.Zero(t, carolConn.countReceived(domain.EventNewDirectMessage))
}

func TestDispatcherGroupMessageAddressing(t *testing.T) {
	registry := NewRegistry()
	rooms := NewRouter(registry)
	dispatcher := NewDispatcher(rooms, nil)

	memberConn := &fakeConn{}
	memberID, _ := registry.Register("bob", memberConn)
	rooms.Join(memberID, domain.GroupRoom("g1"))
	outsiderConn := joinUserRoom(registry, rooms, "carol")

	groupID := "g1"
	dispatcher.GroupMessage(context.Background(), domain.Message{ID: "m-1", SenderID: "alice", GroupID: &groupID, Body: "hi all"})

	assert.Equal(t, 1, memberConn.countReceived(domain.EventNewGroupMessage))
	assert.Zero(t, outsiderConn.countReceived(domain.EventNewGroupMessage))
}

func TestDispatcherReactionFollowsMessageAddressing(t *testing.T) {
	registry := NewRegistry()
	rooms := NewRouter(registry)
	dispatcher := NewDispatcher(rooms, nil)

	aliceConn := joinUserRoom(registry, rooms, "alice")
	bobConn := joinUserRoom(registry, rooms, "bob")

	receiverID := "bob"
	message := domain.Message{ID: "m-1", SenderID: "alice", ReceiverID: &receiverID}
	dispatcher.Reaction(context.Background(), message, domain.ReactionUpdateEvent{MessageID: "m-1", UserID: "bob", Emoji: "👍"})

	assert.Equal(t, 1, aliceConn.countReceived(domain.EventReactionUpdate))
	assert.Equal(t, 1, bobConn.countReceived(domain.EventReactionUpdate))
}

func TestDispatcherNotification(t *testing.T) {
	registry := NewRegistry()
	rooms := NewRouter(registry)
	dispatcher := NewDispatcher(rooms, nil)
	conn := joinUserRoom(registry, rooms, "alice")

	dispatcher.Notify(context.Background(), domain.NotificationEvent{UserID: "alice", Title: "hello", Body: "world"})

	frames := conn.received(domain.EventNotification)
	require.Len(t, frames, 1)
	assert.Equal(t, "hello", frames[0].Payload.(domain.NotificationEvent).Title)
}

func TestDispatcherMirrorsToMQ(t *testing.T) {
	registry := NewRegistry()
	rooms := NewRouter(registry)
	publisher := &fakePublisher{}
	dispatcher := NewDispatcher(rooms, publisher)

	receiverID := "bob"
	dispatcher.DirectMessage(context.Background(), domain.Message{ID: "m-1", SenderID: "alice", ReceiverID: &receiverID})
	groupID := "g1"
	dispatcher.GroupMessage(context.Background(), domain.Message{ID: "m-2", SenderID: "alice", GroupID: &groupID})

	require.Len(t, publisher.published, 2)
	assert.Equal(t, "message.direct", publisher.published[0].routingKey)
	assert.Equal(t, "message.group", publisher.published[1].routingKey)
}
