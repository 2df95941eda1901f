package chat

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"secure-chat/internal/protocol"
)

// AnonymousName labels sessions that never declared a username.
const AnonymousName = "anonymous"

// Session is the per-connection state: the authenticated byte stream, the
// self-declared username, the room currently joined (if any) and a liveness
// timestamp refreshed on every received packet. A session belongs to at most
// one room at a time.
type Session struct {
	conn net.Conn

	// writeMu serializes the write path so two broadcasts never interleave
	// their bytes on the same stream.
	writeMu sync.Mutex

	mu       sync.Mutex
	username string
	room     *Room

	lastSeenMS atomic.Int64
}

func NewSession(conn net.Conn) *Session {
	s := &Session{conn: conn}
	s.Touch()
	return s
}

// Touch refreshes the last-seen timestamp.
func (s *Session) Touch() {
	s.lastSeenMS.Store(time.Now().UnixMilli())
}

// LastSeen reports when the session last received a packet.
func (s *Session) LastSeen() time.Time {
	return time.UnixMilli(s.lastSeenMS.Load())
}

func (s *Session) SetUsername(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
}

// Username returns the declared username, or AnonymousName if unset.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.username == "" {
		return AnonymousName
	}
	return s.username
}

// Room returns the currently joined room, or nil.
func (s *Session) Room() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) setRoom(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = r
}

// Send serializes the packet and writes it to the connection.
func (s *Session) Send(p *protocol.Packet) error {
	return s.write(p.Encode())
}

func (s *Session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(data)
	return err
}

func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Session) Close() error {
	return s.conn.Close()
}
