package chat

import (
	"secure-chat/internal/protocol"
)

// Bus builds and broadcasts system-originated packets on behalf of the
// connection handlers. Stateless.
type Bus struct{}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) UserJoined(room *Room, username string) {
	room.Broadcast(protocol.UserJoined(username))
}

func (b *Bus) UserLeft(room *Room, username string) {
	room.Broadcast(protocol.UserLeft(username))
}

func (b *Bus) Chat(room *Room, username, message string) {
	room.Broadcast(protocol.ChatBroadcast(username, message))
}
