package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// Builder helpers for every packet shape the protocol exchanges. Usable by
// both the server and test clients.

func Heartbeat() *Packet {
	return New(OpHeartbeat)
}

func CreateRoom() *Packet {
	return New(OpCreateRoom)
}

func JoinRoom(roomCode string) *Packet {
	return New(OpJoinRoom).AddStr(FieldRoomCode, roomCode)
}

func ChatSend(message string) *Packet {
	return New(OpChatSend).
		AddU32(FieldContentLen, uint32(len(message))).
		AddStr(FieldMessage, message)
}

func Leave() *Packet {
	return New(OpLeave)
}

func SetUsername(username string) *Packet {
	return New(OpSetUsername).AddStr(FieldUsername, username)
}

func GetLogs() *Packet {
	return New(OpGetLogs)
}

func HeartbeatAck(nowMS uint64) *Packet {
	return New(OpHeartbeatAck).AddU64(FieldTimestampMS, nowMS)
}

func CreateRoomAck(roomID uuid.UUID, roomCode string) *Packet {
	return New(OpCreateRoomAck).
		AddBytes(FieldRoomID, roomID[:]).
		AddStr(FieldRoomCode, roomCode)
}

func JoinRoomAck(roomID uuid.UUID, roomCode string) *Packet {
	return New(OpJoinRoomAck).
		AddBytes(FieldRoomID, roomID[:]).
		AddStr(FieldRoomCode, roomCode)
}

func ChatBroadcast(username, message string) *Packet {
	return New(OpChatBroadcast).
		AddStr(FieldUsername, username).
		AddU32(FieldContentLen, uint32(len(message))).
		AddStr(FieldMessage, message)
}

func UserJoined(username string) *Packet {
	return New(OpUserJoined).AddStr(FieldUsername, username)
}

func UserLeft(username string) *Packet {
	return New(OpUserLeft).AddStr(FieldUsername, username)
}

func SetUsernameAck(username string) *Packet {
	return New(OpSetUsernameAck).AddStr(FieldUsername, username)
}

func GetLogsAck(text string) *Packet {
	return New(OpGetLogsAck).AddStr(FieldMessage, text)
}

func Error(code uint32, reason string) *Packet {
	return New(OpError).
		AddU32(FieldErrorCode, code).
		AddStr(FieldReason, reason)
}

// ValidateContentLen reports whether a CHAT_SEND packet's declared content
// length matches the UTF-8 byte length of its message field.
func ValidateContentLen(p *Packet) bool {
	msg, ok := p.Bytes(FieldMessage)
	if !ok {
		return false
	}
	declared, err := p.U32(FieldContentLen)
	if err != nil {
		return false
	}
	return declared == uint32(len(msg))
}

// RoomID decodes the packet's FieldRoomID as a 16-byte UUID.
func (p *Packet) RoomID() (uuid.UUID, error) {
	v, ok := p.Bytes(FieldRoomID)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: room id", ErrFieldMissing)
	}
	id, err := uuid.FromBytes(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode room id: %w", err)
	}
	return id, nil
}
