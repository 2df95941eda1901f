package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic spells "CHAT" and opens every packet.
	Magic uint32 = 0x43484154
	// Version is the current protocol version.
	Version byte = 1
	// HeaderSize is the fixed header: magic(4) + version(1) + opcode(1) +
	// reserved(2) + payload length(4).
	HeaderSize = 12
	// MaxFieldLen is the largest value a field can carry (16-bit length).
	MaxFieldLen = 0xFFFF
	// MaxPayload rejects implausible payload lengths before allocating.
	MaxPayload = 1 << 20
)

var (
	ErrBadMagic        = errors.New("bad magic")
	ErrPayloadTooLarge = errors.New("payload length implausible")
	ErrTruncatedField  = errors.New("truncated field header")
	ErrFieldOverrun    = errors.New("field length exceeds remaining payload")
	ErrFieldMissing    = errors.New("field missing")
	ErrFieldWidth      = errors.New("field width mismatch")
)

// Field is one (type, value) entry of a packet payload. Values are opaque
// bytes interpreted according to the field type.
type Field struct {
	Type  uint16
	Value []byte
}

// Packet is a single protocol message. The field list is ordered and may
// contain duplicate types; lookups return the first match. A packet is
// treated as immutable once queued for send.
type Packet struct {
	Version byte
	Opcode  byte
	Fields  []Field
}

// New returns an empty packet for the given opcode at the current version.
func New(opcode byte) *Packet {
	return &Packet{Version: Version, Opcode: opcode}
}

// Encode serializes the packet: header followed by each field in list order.
func (p *Packet) Encode() []byte {
	payloadLen := 0
	for _, f := range p.Fields {
		payloadLen += 4 + len(f.Value)
	}

	buf := make([]byte, HeaderSize, HeaderSize+payloadLen)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[4] = p.Version
	buf[5] = p.Opcode
	// buf[6:8] reserved, zero on write
	binary.BigEndian.PutUint32(buf[8:12], uint32(payloadLen))

	for _, f := range p.Fields {
		var hdr [4]byte
		binary.BigEndian.PutUint16(hdr[0:2], f.Type)
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(f.Value)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, f.Value...)
	}
	return buf
}

// Read blocks until one full packet or end-of-stream is observed. A stream
// that closes before any header byte arrives returns io.EOF; any later
// truncation or framing violation is an error and the caller must drop the
// connection, since no resynchronization is possible.
func Read(r io.Reader) (*Packet, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	if magic := binary.BigEndian.Uint32(header[0:4]); magic != Magic {
		return nil, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}

	pkt := &Packet{Version: header[4], Opcode: header[5]}
	// header[6:8] reserved, ignored on read

	payloadLen := binary.BigEndian.Uint32(header[8:12])
	if payloadLen > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	for off := 0; off < len(payload); {
		if len(payload)-off < 4 {
			return nil, ErrTruncatedField
		}
		typ := binary.BigEndian.Uint16(payload[off : off+2])
		length := int(binary.BigEndian.Uint16(payload[off+2 : off+4]))
		off += 4
		if length > len(payload)-off {
			return nil, ErrFieldOverrun
		}
		value := make([]byte, length)
		copy(value, payload[off:off+length])
		off += length
		pkt.Fields = append(pkt.Fields, Field{Type: typ, Value: value})
	}
	return pkt, nil
}

// Write encodes the packet and writes it to w in a single call.
func Write(w io.Writer, p *Packet) error {
	if _, err := w.Write(p.Encode()); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

// AddBytes appends a raw field. Values longer than MaxFieldLen are split
// across consecutive fields of the same type; StrAll reassembles them.
func (p *Packet) AddBytes(typ uint16, v []byte) *Packet {
	for len(v) > MaxFieldLen {
		p.Fields = append(p.Fields, Field{Type: typ, Value: v[:MaxFieldLen]})
		v = v[MaxFieldLen:]
	}
	p.Fields = append(p.Fields, Field{Type: typ, Value: v})
	return p
}

// AddStr appends a UTF-8 string field.
func (p *Packet) AddStr(typ uint16, s string) *Packet {
	return p.AddBytes(typ, []byte(s))
}

// AddU32 appends a big-endian unsigned 32-bit field.
func (p *Packet) AddU32(typ uint16, v uint32) *Packet {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return p.AddBytes(typ, b[:])
}

// AddU64 appends a big-endian unsigned 64-bit field.
func (p *Packet) AddU64(typ uint16, v uint64) *Packet {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return p.AddBytes(typ, b[:])
}

// Bytes returns the first field of the given type, or false if absent.
func (p *Packet) Bytes(typ uint16) ([]byte, bool) {
	for _, f := range p.Fields {
		if f.Type == typ {
			return f.Value, true
		}
	}
	return nil, false
}

// Str returns the first field of the given type as a UTF-8 string.
func (p *Packet) Str(typ uint16) (string, bool) {
	v, ok := p.Bytes(typ)
	if !ok {
		return "", false
	}
	return string(v), true
}

// StrAll concatenates every field of the given type in list order. Used for
// values that were split into chunks by AddBytes.
func (p *Packet) StrAll(typ uint16) (string, bool) {
	var out []byte
	found := false
	for _, f := range p.Fields {
		if f.Type == typ {
			out = append(out, f.Value...)
			found = true
		}
	}
	return string(out), found
}

// U32 decodes the first field of the given type as a big-endian u32.
func (p *Packet) U32(typ uint16) (uint32, error) {
	v, ok := p.Bytes(typ)
	if !ok {
		return 0, fmt.Errorf("%w: type 0x%04X", ErrFieldMissing, typ)
	}
	if len(v) != 4 {
		return 0, fmt.Errorf("%w: u32 needs 4 bytes, got %d", ErrFieldWidth, len(v))
	}
	return binary.BigEndian.Uint32(v), nil
}

// U64 decodes the first field of the given type as a big-endian u64.
func (p *Packet) U64(typ uint16) (uint64, error) {
	v, ok := p.Bytes(typ)
	if !ok {
		return 0, fmt.Errorf("%w: type 0x%04X", ErrFieldMissing, typ)
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%w: u64 needs 8 bytes, got %d", ErrFieldWidth, len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}
