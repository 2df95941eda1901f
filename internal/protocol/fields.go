// Package protocol defines the binary wire format shared by the chat server
// and its clients: a fixed 12-byte header followed by a payload of ordered
// type-length-value fields.
package protocol

// Operation codes. Client-to-server opcodes occupy the low range,
// server-to-client acknowledgements and fan-outs start at 0x11.
const (
	OpHeartbeat   byte = 0x01
	OpCreateRoom  byte = 0x02
	OpJoinRoom    byte = 0x03
	OpChatSend    byte = 0x04
	OpLeave       byte = 0x05
	OpSetUsername byte = 0x06
	OpGetLogs     byte = 0x07

	OpHeartbeatAck  byte = 0x11
	OpCreateRoomAck byte = 0x12
	OpJoinRoomAck   byte = 0x13
	OpChatBroadcast byte = 0x14
	OpUserJoined    byte = 0x15
	OpUserLeft      byte = 0x16
	// OpLeaveAck is reserved in the enumeration but never emitted: the
	// server acknowledges LEAVE by echoing an OpLeave packet.
	OpLeaveAck       byte = 0x17
	OpSetUsernameAck byte = 0x18
	OpGetLogsAck     byte = 0x19

	OpError byte = 0x7F
)

// Field type identifiers carried in the 2-byte TLV type slot.
const (
	FieldUsername    uint16 = 0x0001 // UTF-8 string
	FieldRoomCode    uint16 = 0x0002 // UTF-8 string, 6 ASCII digits
	FieldRoomID      uint16 = 0x0003 // 16 raw bytes, big-endian 128-bit value
	FieldMessage     uint16 = 0x0004 // UTF-8 string
	FieldContentLen  uint16 = 0x0005 // u32, UTF-8 byte length of FieldMessage
	FieldReason      uint16 = 0x0006 // UTF-8 string
	FieldTimestampMS uint16 = 0x0007 // u64, epoch milliseconds
	FieldErrorCode   uint16 = 0x0008 // u32
)

// Error codes carried in FieldErrorCode.
const (
	CodeBadRequest uint32 = 400
	CodeNotFound   uint32 = 404
)
