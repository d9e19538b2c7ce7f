package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"telecare/domain"
	"telecare/domain/event"
)

func TestRooms_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	rooms := NewRooms(registry)

	roomKey := domain.ChatRoomKey("doc-1", "pat-1")
	rooms.Join(roomKey, "doc-1")
	rooms.Join(roomKey, "doc-1")

	req.Equal([]string{"doc-1"}, rooms.Members(roomKey))
}

func TestRooms_Leave_Drops_Empty_Room(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms(NewRegistry())

	roomKey := domain.RoleRoomKey(domain.RoleDoctor)
	rooms.Join(roomKey, "doc-1")
	rooms.Leave(roomKey, "doc-1")

	req.Nil(rooms.Members(roomKey))
}

func TestRooms_LeaveAll(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms(NewRegistry())

	rooms.Join(domain.RoleRoomKey(domain.RoleDoctor), "doc-1")
	rooms.Join(domain.ChatRoomKey("doc-1", "pat-1"), "doc-1")
	rooms.Join(domain.ChatRoomKey("doc-1", "pat-1"), "pat-1")

	rooms.LeaveAll("doc-1")

	req.Nil(rooms.Members(domain.RoleRoomKey(domain.RoleDoctor)))
	req.Equal([]string{"pat-1"}, rooms.Members(domain.ChatRoomKey("doc-1", "pat-1")))
}

func TestRooms_Broadcast_Skips_Sender_And_Offline_Members(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	rooms := NewRooms(registry)

	docSink := &stubSink{}
	registry.Register(doctorIdentity("doc-1"), docSink)

	roomKey := domain.ChatRoomKey("doc-1", "pat-1")
	rooms.Join(roomKey, "doc-1")
	// pat-1 joined earlier but already disconnected: member without a sink.
	rooms.Join(roomKey, "pat-1")

	rooms.Broadcast(context.Background(), roomKey, event.Typing{FromID: "pat-1", IsTyping: true}, "pat-1")

	received := docSink.received()
	req.Len(received, 1)
	typing, ok := received[0].(event.Typing)
	req.True(ok)
	req.True(typing.IsTyping)
}
