package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat_server/server/realtime/domain"
)

func newFriendFixture() (*FriendService, *Registry, *Router, *fakeFriendStore) {
	registry := NewRegistry()
	rooms := NewRouter(registry)
	store := newFakeFriendStore()
	return NewFriendService(store, NewDispatcher(rooms, nil)), registry, rooms, store
}

func TestSendFriendRequestNotifiesAddressee(t *testing.T) {
	svc, registry, rooms, _ := newFriendFixture()
	bobConn := joinUserRoom(registry, rooms, "bob")

	friendship, err := svc.SendRequest(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.FriendRequestPending, friendship.Status)

	frames := bobConn.received(domain.EventFriendRequestReceived)
	require.Len(t, frames, 1)
	payload := frames[0].Payload.(domain.FriendRequestEvent)
	assert.Equal(t, "alice", payload.RequesterID)
}

func TestSendFriendRequestValidation(t *testing.T) {
	svc, _, _, _ := newFriendFixture()

	_, err := svc.SendRequest(context.Background(), "alice", "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.SendRequest(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAcceptFriendRequestNotifiesBothParties(t *testing.T) {
	svc, registry, rooms, _ := newFriendFixture()
	aliceConn := joinUserRoom(registry, rooms, "alice")
	bobConn := joinUserRoom(registry, rooms, "bob")

	friendship, err := svc.SendRequest(context.Background(), "alice", "bob")
	require.NoError(t, err)

	accepted, err := svc.AcceptRequest(context.Background(), friendship.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.FriendRequestAccepted, accepted.Status)

	assert.Equal(t, 1, aliceConn.countReceived(domain.EventFriendRequestAccepted))
	assert.Equal(t, 1, bobConn.countReceived(domain.EventFriendRequestAccepted))
}

func TestAcceptUnknownRequest(t *testing.T) {
	svc, _, _, _ := newFriendFixture()
	_, err := svc.AcceptRequest(context.Background(), "fr-404", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveFriendNotifiesBothParties(t *testing.T) {
	svc, registry, rooms, store := newFriendFixture()
	store.befriend("alice", "bob")
	aliceConn := joinUserRoom(registry, rooms, "alice")
	bobConn := joinUserRoom(registry, rooms, "bob")

	require.NoError(t, svc.RemoveFriend(context.Background(), "alice", "bob"))

	assert.Equal(t, 1, aliceConn.countReceived(domain.EventFriendRemoved))
	assert.Equal(t, 1, bobConn.countReceived(domain.EventFriendRemoved))

	remaining, err := store.ListAcceptedFriendIDs(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
